package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyorproject/conveyor/internal/model"
)

// noBlock makes ReadGroup return immediately rather than wait for entries.
const noBlock = time.Duration(-1)

func TestAppend_CreatesStream(t *testing.T) {
	withRepository(t, func(r *RedisStreamRepository) {
		ctx := context.Background()

		exists, err := r.StreamExists(ctx)
		require.NoError(t, err)
		assert.False(t, exists)

		length, err := r.Length(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), length)

		id, err := r.Append(ctx, &model.WorkItem{SequenceNumber: 1, ProducedAt: time.Unix(100, 0)})
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		exists, err = r.StreamExists(ctx)
		require.NoError(t, err)
		assert.True(t, exists)

		length, err = r.Length(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), length)
	})
}

func TestEnsureGroup_Idempotent(t *testing.T) {
	withRepository(t, func(r *RedisStreamRepository) {
		ctx := context.Background()

		require.NoError(t, r.EnsureGroup(ctx))
		require.NoError(t, r.EnsureGroup(ctx))

		exists, err := r.StreamExists(ctx)
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestEnsureGroup_SeesEntriesAppendedBeforeGroupCreation(t *testing.T) {
	withRepository(t, func(r *RedisStreamRepository) {
		ctx := context.Background()

		_, err := r.Append(ctx, &model.WorkItem{SequenceNumber: 1, ProducedAt: time.Unix(100, 0)})
		require.NoError(t, err)
		require.NoError(t, r.EnsureGroup(ctx))

		entries, err := r.ReadGroup(ctx, "consumer-a", 10, noBlock)
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})
}

func TestReadGroup_DeliversInOrder(t *testing.T) {
	withRepository(t, func(r *RedisStreamRepository) {
		ctx := context.Background()
		require.NoError(t, r.EnsureGroup(ctx))
		appendItems(t, r, 1, 3)

		entries, err := r.ReadGroup(ctx, "consumer-a", 2, noBlock)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, []int64{1, 2}, sequenceNumbers(t, entries))

		entries, err = r.ReadGroup(ctx, "consumer-a", 2, noBlock)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, []int64{3}, sequenceNumbers(t, entries))
	})
}

func TestReadGroup_EntryDeliveredToAtMostOneConsumer(t *testing.T) {
	withRepository(t, func(r *RedisStreamRepository) {
		ctx := context.Background()
		require.NoError(t, r.EnsureGroup(ctx))
		appendItems(t, r, 1, 4)

		first, err := r.ReadGroup(ctx, "consumer-a", 2, noBlock)
		require.NoError(t, err)
		require.Len(t, first, 2)

		// a second consumer only ever sees what the first was not handed
		second, err := r.ReadGroup(ctx, "consumer-b", 10, noBlock)
		require.NoError(t, err)
		require.Len(t, second, 2)
		assert.Equal(t, []int64{1, 2}, sequenceNumbers(t, first))
		assert.Equal(t, []int64{3, 4}, sequenceNumbers(t, second))

		pending, err := r.PendingCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), pending)
	})
}

func TestReadGroup_EmptyWhenNoNewEntries(t *testing.T) {
	withRepository(t, func(r *RedisStreamRepository) {
		ctx := context.Background()
		require.NoError(t, r.EnsureGroup(ctx))

		entries, err := r.ReadGroup(ctx, "consumer-a", 10, noBlock)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestReadGroup_NotFoundWithoutGroup(t *testing.T) {
	withRepository(t, func(r *RedisStreamRepository) {
		ctx := context.Background()
		appendItems(t, r, 1, 1)

		_, err := r.ReadGroup(ctx, "consumer-a", 10, noBlock)
		var notFound *ErrNotFound
		require.ErrorAs(t, err, &notFound)
	})
}

func TestAck_ClearsPending(t *testing.T) {
	withRepository(t, func(r *RedisStreamRepository) {
		ctx := context.Background()
		require.NoError(t, r.EnsureGroup(ctx))
		appendItems(t, r, 1, 3)

		entries, err := r.ReadGroup(ctx, "consumer-a", 10, noBlock)
		require.NoError(t, err)
		require.Len(t, entries, 3)

		pending, err := r.PendingCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), pending)

		acked, err := r.Ack(ctx, entries[0].ID, entries[1].ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), acked)

		pending, err = r.PendingCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), pending)
	})
}

func TestPendingCount_NotFoundWithoutGroup(t *testing.T) {
	withRepository(t, func(r *RedisStreamRepository) {
		ctx := context.Background()
		appendItems(t, r, 1, 1)

		_, err := r.PendingCount(ctx)
		var notFound *ErrNotFound
		require.ErrorAs(t, err, &notFound)
	})
}

func TestTrim_DropsOldestEntries(t *testing.T) {
	withRepository(t, func(r *RedisStreamRepository) {
		ctx := context.Background()
		require.NoError(t, r.EnsureGroup(ctx))
		appendItems(t, r, 1, 10)

		removed, err := r.Trim(ctx, 4, false)
		require.NoError(t, err)
		assert.Equal(t, int64(6), removed)

		length, err := r.Length(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), length)

		// trimmed entries are gone even though they were never delivered
		entries, err := r.ReadGroup(ctx, "consumer-a", 10, noBlock)
		require.NoError(t, err)
		assert.Equal(t, []int64{7, 8, 9, 10}, sequenceNumbers(t, entries))
	})
}

func TestReadGroup_EntryWithoutDataField(t *testing.T) {
	mr := miniredis.RunT(t)
	db := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	defer db.Close()
	r := NewRedisStreamRepository(db, "packages", "processors")
	ctx := context.Background()

	require.NoError(t, r.EnsureGroup(ctx))
	_, err := db.XAdd(ctx, &redis.XAddArgs{
		Stream: "packages",
		Values: map[string]interface{}{"other": "x"},
	}).Result()
	require.NoError(t, err)

	entries, err := r.ReadGroup(ctx, "consumer-a", 10, noBlock)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Payload)
}

func withRepository(t *testing.T, action func(r *RedisStreamRepository)) {
	mr := miniredis.RunT(t)
	db := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	defer db.Close()

	action(NewRedisStreamRepository(db, "packages", "processors"))
}

func appendItems(t *testing.T, r *RedisStreamRepository, first int64, last int64) {
	t.Helper()
	for i := first; i <= last; i++ {
		_, err := r.Append(context.Background(), &model.WorkItem{
			SequenceNumber: i,
			ProducedAt:     time.Unix(100+i, 0),
		})
		require.NoError(t, err)
	}
}

func sequenceNumbers(t *testing.T, entries []*Entry) []int64 {
	t.Helper()
	numbers := []int64{}
	for _, entry := range entries {
		item, err := model.Unmarshal(entry.Payload)
		require.NoError(t, err)
		numbers = append(numbers, item.SequenceNumber)
	}
	return numbers
}
