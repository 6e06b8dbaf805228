package producer

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/conveyorproject/conveyor/internal/common"
	commonconfig "github.com/conveyorproject/conveyor/internal/common/config"
	"github.com/conveyorproject/conveyor/internal/common/health"
	"github.com/conveyorproject/conveyor/internal/common/task"
	"github.com/conveyorproject/conveyor/internal/common/util"
	"github.com/conveyorproject/conveyor/internal/producer/configuration"
	"github.com/conveyorproject/conveyor/internal/producer/metrics"
	"github.com/conveyorproject/conveyor/internal/repository"
)

const shutdownTimeout = 2 * time.Second

// Run starts the producer and its trimming monitor and blocks until ctx is
// cancelled.
func Run(ctx context.Context, config *configuration.ProducerConfiguration) error {
	log.Info("Conveyor producer starting")

	if err := config.Validate(); err != nil {
		commonconfig.LogValidationErrors(err)
		return errors.Errorf("producer configuration is invalid")
	}

	db := redis.NewUniversalClient(config.Redis.AsUniversalOptions())
	defer util.CloseResource("redis client", db)

	repo := repository.NewRedisStreamRepository(db, config.Stream, config.Group)

	m := metrics.Get()
	metrics.ExposeStreamMetrics(repo)

	startupComplete := health.NewStartupCompleteChecker()
	healthChecks := health.NewMultiChecker(startupComplete)
	healthChecks.Add(repository.NewRedisHealth(db))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health.SetupHttpMux(mux, healthChecks)
	shutdownHttpServer := common.ServeHttp(config.MetricsPort, mux)
	defer shutdownHttpServer()

	producer := NewProducer(repo, &util.DefaultClock{}, m)
	trimmer := NewTrimmingMonitor(repo, config.Trim, m)

	taskManager := task.NewBackgroundTaskManager(metrics.MetricsPrefix)
	defer taskManager.StopAll(shutdownTimeout)
	taskManager.Register(func() {
		if _, err := producer.Produce(ctx); err != nil {
			log.WithError(err).Error("Failed to append work item")
		}
	}, config.ProduceInterval, "produce")
	taskManager.Register(func() {
		if err := trimmer.Trim(ctx); err != nil {
			log.WithError(err).Error("Failed to trim stream")
		}
	}, config.Trim.Interval, "trim")

	startupComplete.MarkComplete()
	log.Info("Conveyor producer started")

	<-ctx.Done()
	log.Info("Conveyor producer stopping")
	return nil
}
