package consumer

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/conveyorproject/conveyor/internal/consumer/configuration"
	"github.com/conveyorproject/conveyor/internal/consumer/metrics"
	"github.com/conveyorproject/conveyor/internal/model"
	"github.com/conveyorproject/conveyor/internal/repository"
)

// readCount keeps each poll to a single entry so that backpressure is
// visible in the stream rather than in reader-side buffers.
const readCount = 1

// StreamReader pulls work items assigned to one consumer identity by the
// shared group, records each in its output sink, then acknowledges. Entries
// are acknowledged only after the sink write is durable: a crash between
// write and ack can later surface as a duplicate output line, but an
// acknowledged item always has a record. Faults never stop the loop; each
// iteration recovers panics and transient errors back off before the next
// poll.
type StreamReader struct {
	repo           repository.StreamRepository
	sink           Sink
	config         configuration.ConsumerConfiguration
	consumerId     string
	metrics        *metrics.Metrics
	processedCount int64
}

func NewStreamReader(
	repo repository.StreamRepository,
	sink Sink,
	config configuration.ConsumerConfiguration,
	consumerId string,
	m *metrics.Metrics,
) *StreamReader {
	return &StreamReader{
		repo:       repo,
		sink:       sink,
		config:     config,
		consumerId: consumerId,
		metrics:    m,
	}
}

// Run polls until ctx is cancelled. Creating the consumer group is the one
// startup step that must succeed; a group that already exists is fine.
func (r *StreamReader) Run(ctx context.Context) error {
	if err := r.repo.EnsureGroup(ctx); err != nil {
		return err
	}
	log.Infof("Consumer %s started", r.consumerId)

	for {
		select {
		case <-ctx.Done():
			log.Infof("Consumer %s stopping after %d processed items", r.consumerId, r.processedCount)
			return nil
		default:
		}
		r.runIteration(ctx)
	}
}

func (r *StreamReader) runIteration(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.RecordError(r.consumerId, metrics.ProcessingErrorPanic)
			log.Errorf("Recovered from panic in consumer %s: %v\n%s", r.consumerId, rec, debug.Stack())
			r.sleep(ctx, r.config.ErrorBackoff)
		}
	}()

	exists, err := r.repo.StreamExists(ctx)
	if err != nil {
		r.handlePollError(ctx, err)
		return
	}
	if !exists {
		// An expected startup race with the producer, not an error.
		log.Debugf("Stream not created yet; consumer %s waiting", r.consumerId)
		r.sleep(ctx, r.config.StreamAbsentBackoff)
		return
	}

	entries, err := r.repo.ReadGroup(ctx, r.consumerId, readCount, r.config.PollTimeout)
	if err != nil {
		var notFound *repository.ErrNotFound
		if errors.As(err, &notFound) {
			// The group vanished between the existence check and the read.
			r.sleep(ctx, r.config.StreamAbsentBackoff)
			return
		}
		r.handlePollError(ctx, err)
		return
	}
	// A zero-result poll is not an error.
	for _, entry := range entries {
		r.process(ctx, entry)
		r.sleep(ctx, r.config.ProcessInterval)
	}
}

// process writes the durable output line and acknowledges the entry, in that
// order. A malformed payload is logged and left unacknowledged so it is never
// fabricated as processed; a failed sink write leaves the entry
// unacknowledged for the same reason. A failed ack leaves the entry pending,
// where it stays until some reclaim mechanism acts.
func (r *StreamReader) process(ctx context.Context, entry *repository.Entry) {
	item, err := model.Unmarshal(entry.Payload)
	if err != nil {
		r.metrics.RecordError(r.consumerId, metrics.ProcessingErrorMalformed)
		log.WithError(err).Warnf("Consumer %s received malformed entry %s; leaving it unacknowledged", r.consumerId, entry.ID)
		return
	}

	if err := r.sink.WriteProcessed(item); err != nil {
		r.metrics.RecordError(r.consumerId, metrics.ProcessingErrorSinkWrite)
		log.WithError(err).Errorf("Consumer %s failed to record package %d; leaving entry %s unacknowledged", r.consumerId, item.SequenceNumber, entry.ID)
		return
	}

	if _, err := r.repo.Ack(ctx, entry.ID); err != nil {
		r.metrics.RecordError(r.consumerId, metrics.ProcessingErrorAck)
		log.WithError(err).Errorf("Consumer %s failed to acknowledge entry %s", r.consumerId, entry.ID)
		return
	}

	r.processedCount++
	r.metrics.RecordProcessed(r.consumerId)
	log.Infof("Consumer %s processed package %d", r.consumerId, item.SequenceNumber)
}

func (r *StreamReader) handlePollError(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	r.metrics.RecordError(r.consumerId, metrics.ProcessingErrorPoll)
	log.WithError(err).Errorf("Consumer %s failed to poll; backing off", r.consumerId)
	r.sleep(ctx, r.config.ErrorBackoff)
}

func (r *StreamReader) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
