package consumer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/conveyorproject/conveyor/internal/common"
	commonconfig "github.com/conveyorproject/conveyor/internal/common/config"
	"github.com/conveyorproject/conveyor/internal/common/health"
	"github.com/conveyorproject/conveyor/internal/common/util"
	"github.com/conveyorproject/conveyor/internal/consumer/configuration"
	"github.com/conveyorproject/conveyor/internal/consumer/metrics"
	"github.com/conveyorproject/conveyor/internal/repository"
)

// Run starts config.Parallelism readers, each with its own consumer identity
// and output sink, and blocks until ctx is cancelled or a reader fails to
// start.
func Run(ctx context.Context, config *configuration.ConsumerConfiguration) error {
	log.Info("Conveyor consumer starting")

	if err := config.Validate(); err != nil {
		commonconfig.LogValidationErrors(err)
		return errors.Errorf("consumer configuration is invalid")
	}

	db := redis.NewUniversalClient(config.Redis.AsUniversalOptions())
	defer util.CloseResource("redis client", db)

	repo := repository.NewRedisStreamRepository(db, config.Stream, config.Group)
	m := metrics.Get()

	startupComplete := health.NewStartupCompleteChecker()
	healthChecks := health.NewMultiChecker(startupComplete)
	healthChecks.Add(repository.NewRedisHealth(db))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health.SetupHttpMux(mux, healthChecks)
	shutdownHttpServer := common.ServeHttp(config.MetricsPort, mux)
	defer shutdownHttpServer()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < config.Parallelism; i++ {
		// Identity is fresh per process lifetime, never persisted: a
		// restarted consumer is a new group member.
		consumerId := uuid.NewString()[:8]
		sink, err := OpenOutputSink(config.OutputDirectory, consumerId)
		if err != nil {
			return err
		}
		defer util.CloseResource(fmt.Sprintf("output sink of consumer %s", consumerId), sink)

		reader := NewStreamReader(repo, sink, *config, consumerId, m)
		g.Go(func() error { return reader.Run(ctx) })
	}

	startupComplete.MarkComplete()
	log.Info("Conveyor consumer started")

	return g.Wait()
}
