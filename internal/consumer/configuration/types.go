package configuration

import (
	"time"

	"github.com/conveyorproject/conveyor/internal/common/config"
)

type ConsumerConfiguration struct {
	// Database configuration
	Redis config.RedisConfig
	// Port on which metrics and health endpoints are served
	MetricsPort uint16 `validate:"required"`
	// Name of the stream work items are read from
	Stream string `validate:"required"`
	// Name of the consumer group shared by all consumer processes
	Group string `validate:"required"`
	// Directory per-consumer output files are written to
	OutputDirectory string `validate:"required"`
	// Number of readers this process runs, each with its own consumer identity
	Parallelism int `validate:"required,gt=0"`
	// Upper bound on how long one poll blocks waiting for new entries
	PollTimeout time.Duration `validate:"required"`
	// Pause after each processed entry, standing in for real work
	ProcessInterval time.Duration
	// Time to wait before re-checking a stream that does not exist yet
	StreamAbsentBackoff time.Duration `validate:"required"`
	// Time to wait after a transient store fault before polling again
	ErrorBackoff time.Duration `validate:"required"`
}
