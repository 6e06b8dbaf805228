package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ProcessingError string

const (
	ProcessingErrorMalformed ProcessingError = "malformed"
	ProcessingErrorSinkWrite ProcessingError = "sink_write"
	ProcessingErrorAck       ProcessingError = "ack"
	ProcessingErrorPoll      ProcessingError = "poll"
	ProcessingErrorPanic     ProcessingError = "panic"
)

const MetricsPrefix = "conveyor_consumer_"

var m = NewMetrics(MetricsPrefix)

func Get() *Metrics {
	return m
}

type Metrics struct {
	processedCounter *prometheus.CounterVec
	errorCounter     *prometheus.CounterVec
}

func NewMetrics(prefix string) *Metrics {
	processedOpts := prometheus.CounterOpts{
		Name: prefix + "processed_total",
		Help: "Number of work items processed and acknowledged, by consumer",
	}
	errorOpts := prometheus.CounterOpts{
		Name: prefix + "processing_errors",
		Help: "Number of processing errors grouped by consumer and error type",
	}
	return &Metrics{
		processedCounter: promauto.NewCounterVec(processedOpts, []string{"consumer"}),
		errorCounter:     promauto.NewCounterVec(errorOpts, []string{"consumer", "error"}),
	}
}

func (m *Metrics) RecordProcessed(consumerId string) {
	m.processedCounter.With(map[string]string{"consumer": consumerId}).Inc()
}

func (m *Metrics) RecordError(consumerId string, errorType ProcessingError) {
	m.errorCounter.With(map[string]string{"consumer": consumerId, "error": string(errorType)}).Inc()
}
