package producer

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/conveyorproject/conveyor/internal/common/util"
	"github.com/conveyorproject/conveyor/internal/model"
	"github.com/conveyorproject/conveyor/internal/producer/metrics"
	"github.com/conveyorproject/conveyor/internal/repository"
)

// Producer appends one work item per tick with a strictly increasing sequence
// number starting at 1. The number advances only after the store confirms the
// append, so a failed append reuses the same number on the next tick and the
// produced sequence never has gaps.
type Producer struct {
	repo           repository.StreamRepository
	clock          util.Clock
	metrics        *metrics.Metrics
	sequenceNumber int64
}

func NewProducer(repo repository.StreamRepository, clock util.Clock, m *metrics.Metrics) *Producer {
	return &Producer{
		repo:    repo,
		clock:   clock,
		metrics: m,
	}
}

func (p *Producer) Produce(ctx context.Context) (*model.WorkItem, error) {
	item := &model.WorkItem{
		SequenceNumber: p.sequenceNumber + 1,
		ProducedAt:     p.clock.Now(),
	}
	id, err := p.repo.Append(ctx, item)
	if err != nil {
		p.metrics.RecordAppendError()
		return nil, err
	}
	p.sequenceNumber = item.SequenceNumber
	p.metrics.RecordProduced()
	log.Infof("Produced package %d as entry %s", item.SequenceNumber, id)
	return item, nil
}
