package model

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// WorkItem is a single unit of work carried on the stream. SequenceNumber
// identifies the item within a run and ProducedAt records when the producer
// created it, at second precision.
type WorkItem struct {
	SequenceNumber int64
	ProducedAt     time.Time
}

// envelope is the wire form of a WorkItem. Fields are pointers so that a
// missing field can be told apart from a zero value when decoding.
type envelope struct {
	TimestampProducer *int64   `json:"timestamp_producer"`
	Payload           *payload `json:"payload"`
}

type payload struct {
	Package *int64 `json:"package"`
}

func (item *WorkItem) Marshal() (string, error) {
	timestamp := item.ProducedAt.Unix()
	sequenceNumber := item.SequenceNumber
	data, err := json.Marshal(&envelope{
		TimestampProducer: &timestamp,
		Payload:           &payload{Package: &sequenceNumber},
	})
	if err != nil {
		return "", errors.WithStack(err)
	}
	return string(data), nil
}

func Unmarshal(data string) (*WorkItem, error) {
	env := &envelope{}
	if err := json.Unmarshal([]byte(data), env); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal work item")
	}
	if env.TimestampProducer == nil {
		return nil, errors.Errorf("work item is missing required field timestamp_producer")
	}
	if env.Payload == nil {
		return nil, errors.Errorf("work item is missing required field payload")
	}
	if env.Payload.Package == nil {
		return nil, errors.Errorf("work item is missing required field payload.package")
	}
	return &WorkItem{
		SequenceNumber: *env.Payload.Package,
		ProducedAt:     time.Unix(*env.TimestampProducer, 0),
	}, nil
}
