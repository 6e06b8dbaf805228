package consumer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyorproject/conveyor/internal/common/util"
	"github.com/conveyorproject/conveyor/internal/consumer/configuration"
	"github.com/conveyorproject/conveyor/internal/consumer/metrics"
	"github.com/conveyorproject/conveyor/internal/producer"
	producerconfiguration "github.com/conveyorproject/conveyor/internal/producer/configuration"
	producermetrics "github.com/conveyorproject/conveyor/internal/producer/metrics"
	"github.com/conveyorproject/conveyor/internal/repository"
	"github.com/conveyorproject/conveyor/internal/verifier"
)

// Three packages, two consumers polling concurrently: the union of outputs
// covers every package exactly once, whatever the delivery split.
func TestScenario_ThreePackagesTwoConsumers(t *testing.T) {
	repo := newStreamRepository(t)
	outputDir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := producer.NewProducer(repo, &util.DefaultClock{}, producermetrics.NewMetrics("scenario_three_prod_"))
	producePackages(t, p, 3)

	for _, consumerId := range []string{"aaa", "bbb"} {
		sink, err := OpenOutputSink(outputDir, consumerId)
		require.NoError(t, err)
		defer sink.Close()

		reader := NewStreamReader(repo, sink, scenarioConfig(), consumerId, metrics.NewMetrics("scenario_three_"+consumerId+"_"))
		go func() { _ = reader.Run(ctx) }()
	}

	err := retry.Do(func() error {
		if n := countOutputLines(t, outputDir); n != 3 {
			return errors.Errorf("expected 3 output lines, got %d", n)
		}
		return nil
	}, retry.Attempts(100))
	require.NoError(t, err)
	cancel()

	app, buf := newVerifierApp(outputDir)
	passed, err := app.Verify()
	require.NoError(t, err)
	assert.True(t, passed)
	assert.Contains(t, buf.String(), "Total processed: 3\n")
	assert.Contains(t, buf.String(), "Duplicate packages: 0\n")
	assert.Contains(t, buf.String(), "Missing packages: 0\n")
}

// A consumer that records an item but dies before acknowledging leaves the
// entry pending; once it is handed to another consumer, both outputs carry
// the package and verification must fail.
func TestScenario_DuplicateAfterCrashBeforeAck(t *testing.T) {
	repo := newStreamRepository(t)
	outputDir := t.TempDir()
	ctx := context.Background()

	require.NoError(t, repo.EnsureGroup(ctx))
	p := producer.NewProducer(repo, &util.DefaultClock{}, producermetrics.NewMetrics("scenario_dup_prod_"))
	producePackages(t, p, 1)

	entries, err := repo.ReadGroup(ctx, "aaa", 1, -1)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	sinkA, err := OpenOutputSink(outputDir, "aaa")
	require.NoError(t, err)
	crashed := NewStreamReader(&ackFailingRepository{repo}, sinkA, scenarioConfig(), "aaa", metrics.NewMetrics("scenario_dup_aaa_"))
	crashed.process(ctx, entries[0])
	require.NoError(t, sinkA.Close())

	// redelivery hands the same entry to consumer bbb
	sinkB, err := OpenOutputSink(outputDir, "bbb")
	require.NoError(t, err)
	second := NewStreamReader(repo, sinkB, scenarioConfig(), "bbb", metrics.NewMetrics("scenario_dup_bbb_"))
	second.process(ctx, entries[0])
	require.NoError(t, sinkB.Close())

	app, buf := newVerifierApp(outputDir)
	passed, err := app.Verify()
	require.NoError(t, err)
	assert.False(t, passed)
	assert.Contains(t, buf.String(), "  package 1 seen 2 times (consumers: aaa, bbb)\n")
}

// Trimming is length based, so entries produced while the consumer stalls
// are lost for good once the stream is trimmed past them. Verification
// reports them missing, and only fails for it in strict mode.
func TestScenario_TrimLosesUndeliveredEntries(t *testing.T) {
	repo := newStreamRepository(t)
	outputDir := t.TempDir()
	ctx := context.Background()

	require.NoError(t, repo.EnsureGroup(ctx))
	p := producer.NewProducer(repo, &util.DefaultClock{}, producermetrics.NewMetrics("scenario_trim_prod_"))

	sink, err := OpenOutputSink(outputDir, "aaa")
	require.NoError(t, err)
	defer sink.Close()
	reader := NewStreamReader(repo, sink, scenarioConfig(), "aaa", metrics.NewMetrics("scenario_trim_"))

	producePackages(t, p, 10)
	assert.Equal(t, 10, drainStream(t, reader, repo))

	// the consumer stalls while the producer runs far ahead
	producePackages(t, p, 140)

	trimmer := producer.NewTrimmingMonitor(repo, producerconfiguration.TrimConfiguration{
		Interval:      time.Second,
		HighWatermark: 100,
		Target:        50,
		Approximate:   false,
	}, producermetrics.NewMetrics("scenario_trim_monitor_"))
	require.NoError(t, trimmer.Trim(ctx))

	length, err := repo.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(50), length)

	// the consumer resumes and drains what survived
	assert.Equal(t, 50, drainStream(t, reader, repo))

	app, buf := newVerifierApp(outputDir)
	passed, err := app.Verify()
	require.NoError(t, err)
	assert.True(t, passed)
	assert.Contains(t, buf.String(), "Total processed: 60\n")
	assert.Contains(t, buf.String(), "Missing packages: 90\n")
	assert.Contains(t, buf.String(), "  11-100\n")

	strictApp, _ := newVerifierApp(outputDir)
	strictApp.Params.Strict = true
	passed, err = strictApp.Verify()
	require.NoError(t, err)
	assert.False(t, passed)
}

// scenarioConfig polls without blocking so loops stay responsive under test.
func scenarioConfig() configuration.ConsumerConfiguration {
	return configuration.ConsumerConfiguration{
		PollTimeout:         -1,
		ProcessInterval:     time.Millisecond,
		StreamAbsentBackoff: 5 * time.Millisecond,
		ErrorBackoff:        5 * time.Millisecond,
	}
}

func newStreamRepository(t *testing.T) *repository.RedisStreamRepository {
	mr := miniredis.RunT(t)
	db := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { _ = db.Close() })
	return repository.NewRedisStreamRepository(db, "packages", "processors")
}

func newVerifierApp(dir string) (*verifier.App, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	return &verifier.App{Params: &verifier.Params{OutputDir: dir}, Out: buf}, buf
}

func producePackages(t *testing.T, p *producer.Producer, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		_, err := p.Produce(context.Background())
		require.NoError(t, err)
	}
}

func drainStream(t *testing.T, reader *StreamReader, repo repository.StreamRepository) int {
	t.Helper()
	ctx := context.Background()
	total := 0
	for {
		entries, err := repo.ReadGroup(ctx, reader.consumerId, 50, -1)
		require.NoError(t, err)
		if len(entries) == 0 {
			return total
		}
		for _, entry := range entries {
			reader.process(ctx, entry)
			total++
		}
	}
}

func countOutputLines(t *testing.T, dir string) int {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "consumer_*.txt"))
	require.NoError(t, err)
	count := 0
	for _, file := range files {
		content, err := os.ReadFile(file)
		require.NoError(t, err)
		for _, line := range strings.Split(string(content), "\n") {
			if line != "" {
				count++
			}
		}
	}
	return count
}

type ackFailingRepository struct {
	repository.StreamRepository
}

func (r *ackFailingRepository) Ack(ctx context.Context, ids ...string) (int64, error) {
	return 0, errors.New("connection lost before ack")
}
