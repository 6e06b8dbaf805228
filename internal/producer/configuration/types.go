package configuration

import (
	"time"

	"github.com/conveyorproject/conveyor/internal/common/config"
)

type ProducerConfiguration struct {
	// Database configuration
	Redis config.RedisConfig
	// Port on which metrics and health endpoints are served
	MetricsPort uint16 `validate:"required"`
	// Name of the stream work items are appended to
	Stream string `validate:"required"`
	// Name of the consumer group, used for pending-entry accounting
	Group string `validate:"required"`
	// Time between appends; the tick period is the production rate
	ProduceInterval time.Duration `validate:"required"`
	// Trimming policy
	Trim TrimConfiguration
}

// TrimConfiguration bounds stream length. Trimming is length based and does
// not consult delivery or acknowledgement state, so entries no consumer has
// read or acknowledged are removed along with everything else past the
// boundary. That data-loss risk is accepted in exchange for bounded storage.
type TrimConfiguration struct {
	// Time between trim checks, independent of the produce tick
	Interval time.Duration `validate:"required"`
	// Stream length above which a trim is triggered
	HighWatermark int64 `validate:"required,gt=0"`
	// Stream length trimmed down to
	Target int64 `validate:"required,gt=0,ltefield=HighWatermark"`
	// Let the store trim at a coarser boundary to reduce its cost
	Approximate bool
}
