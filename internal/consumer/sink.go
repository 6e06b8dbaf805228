package consumer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/conveyorproject/conveyor/internal/model"
)

// Sink records processed work items durably.
type Sink interface {
	WriteProcessed(item *model.WorkItem) error
}

// OutputSink is an append-only per-consumer text file. Every line is synced
// to disk before WriteProcessed returns, so an acknowledged item always has a
// durable record even if the process dies immediately after the write.
type OutputSink struct {
	consumerId string
	file       *os.File
}

func OpenOutputSink(dir string, consumerId string) (*OutputSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create output directory %s", dir)
	}
	path := filepath.Join(dir, fmt.Sprintf("consumer_%s.txt", consumerId))
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open output sink %s", path)
	}
	return &OutputSink{consumerId: consumerId, file: file}, nil
}

func (s *OutputSink) WriteProcessed(item *model.WorkItem) error {
	line := fmt.Sprintf("Consumer %s processed package %d (timestamp: %d)\n",
		s.consumerId, item.SequenceNumber, item.ProducedAt.Unix())
	if _, err := s.file.WriteString(line); err != nil {
		return errors.Wrapf(err, "failed to write output line for package %d", item.SequenceNumber)
	}
	if err := s.file.Sync(); err != nil {
		return errors.Wrapf(err, "failed to sync output sink after package %d", item.SequenceNumber)
	}
	return nil
}

func (s *OutputSink) Close() error {
	return s.file.Close()
}
