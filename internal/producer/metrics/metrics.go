package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/conveyorproject/conveyor/internal/repository"
)

const MetricsPrefix = "conveyor_producer_"

const collectTimeout = 5 * time.Second

var m = NewMetrics(MetricsPrefix)

func Get() *Metrics {
	return m
}

type Metrics struct {
	producedCounter    prometheus.Counter
	appendErrorCounter prometheus.Counter
	trimmedCounter     prometheus.Counter
}

func NewMetrics(prefix string) *Metrics {
	return &Metrics{
		producedCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: prefix + "produced_total",
			Help: "Number of work items appended to the stream",
		}),
		appendErrorCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: prefix + "append_errors_total",
			Help: "Number of appends rejected by the stream store",
		}),
		trimmedCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: prefix + "trimmed_entries_total",
			Help: "Number of stream entries removed by trimming",
		}),
	}
}

func (m *Metrics) RecordProduced() {
	m.producedCounter.Inc()
}

func (m *Metrics) RecordAppendError() {
	m.appendErrorCounter.Inc()
}

func (m *Metrics) RecordTrimmed(count int64) {
	m.trimmedCounter.Add(float64(count))
}

var streamLengthDesc = prometheus.NewDesc(
	MetricsPrefix+"stream_length",
	"Number of entries currently in the stream",
	nil,
	nil,
)

var pendingEntriesDesc = prometheus.NewDesc(
	MetricsPrefix+"pending_entries",
	"Number of entries delivered to a consumer but not yet acknowledged",
	nil,
	nil,
)

func ExposeStreamMetrics(repo repository.StreamRepository) *StreamInfoCollector {
	collector := &StreamInfoCollector{repo: repo}
	prometheus.MustRegister(collector)
	return collector
}

type StreamInfoCollector struct {
	repo repository.StreamRepository
}

func (c *StreamInfoCollector) Describe(desc chan<- *prometheus.Desc) {
	desc <- streamLengthDesc
	desc <- pendingEntriesDesc
}

func (c *StreamInfoCollector) Collect(metrics chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	length, err := c.repo.Length(ctx)
	if err != nil {
		log.Errorf("Error while reading stream length for metrics %s", err)
		metrics <- prometheus.NewInvalidMetric(streamLengthDesc, err)
	} else {
		metrics <- prometheus.MustNewConstMetric(streamLengthDesc, prometheus.GaugeValue, float64(length))
	}

	pending, err := c.repo.PendingCount(ctx)
	if err != nil {
		// No group yet means nothing is in flight.
		var notFound *repository.ErrNotFound
		if !errors.As(err, &notFound) {
			log.Errorf("Error while reading pending count for metrics %s", err)
			metrics <- prometheus.NewInvalidMetric(pendingEntriesDesc, err)
			return
		}
		pending = 0
	}
	metrics <- prometheus.MustNewConstMetric(pendingEntriesDesc, prometheus.GaugeValue, float64(pending))
}
