package producer

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/conveyorproject/conveyor/internal/producer/configuration"
	"github.com/conveyorproject/conveyor/internal/producer/metrics"
	"github.com/conveyorproject/conveyor/internal/repository"
)

// TrimmingMonitor bounds stream length. Each cycle it reads the stream length
// and the group's pending-entry count; when length exceeds HighWatermark it
// trims the stream down to Target. Trimming is length based and removes the
// oldest entries whether or not they have been delivered or acknowledged; the
// pending count is read for accounting only, so operators can see how close
// trimming runs to the in-flight window.
type TrimmingMonitor struct {
	repo    repository.StreamRepository
	config  configuration.TrimConfiguration
	metrics *metrics.Metrics
}

func NewTrimmingMonitor(repo repository.StreamRepository, config configuration.TrimConfiguration, m *metrics.Metrics) *TrimmingMonitor {
	return &TrimmingMonitor{
		repo:    repo,
		config:  config,
		metrics: m,
	}
}

func (t *TrimmingMonitor) Trim(ctx context.Context) error {
	length, err := t.repo.Length(ctx)
	if err != nil {
		return err
	}
	pending, err := t.pendingCount(ctx)
	if err != nil {
		return err
	}
	if length <= t.config.HighWatermark {
		return nil
	}

	removed, err := t.repo.Trim(ctx, t.config.Target, t.config.Approximate)
	if err != nil {
		return err
	}
	t.metrics.RecordTrimmed(removed)
	log.Infof("Trimmed %d entries (length %d exceeded %d, %d pending at trim time)",
		removed, length, t.config.HighWatermark, pending)
	return nil
}

// pendingCount treats a missing stream or group as zero in flight; the
// monitor can run before any consumer has created the group.
func (t *TrimmingMonitor) pendingCount(ctx context.Context) (int64, error) {
	pending, err := t.repo.PendingCount(ctx)
	if err != nil {
		var notFound *repository.ErrNotFound
		if errors.As(err, &notFound) {
			return 0, nil
		}
		return 0, err
	}
	return pending, nil
}
