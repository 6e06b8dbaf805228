package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/conveyorproject/conveyor/internal/model"
)

const dataKey = "data"

// groupStartId makes a newly created consumer group see the stream from the
// beginning rather than only entries appended after group creation.
const groupStartId = "0"

// Entry is a single stream entry as stored, before any decoding. Payload is
// empty if the entry carries no data field.
type Entry struct {
	ID      string
	Payload string
}

type StreamRepository interface {
	// Append adds a work item to the stream, creating the stream if it does
	// not exist, and returns the id assigned to the new entry.
	Append(ctx context.Context, item *model.WorkItem) (string, error)
	// EnsureGroup creates the consumer group, and the stream if necessary.
	// It succeeds if the group already exists.
	EnsureGroup(ctx context.Context) error
	// ReadGroup fetches up to count entries not yet delivered to any consumer
	// in the group, waiting up to block for entries to arrive. A negative
	// block returns immediately. The result is empty if no entries arrived,
	// and *ErrNotFound if the stream or group does not exist.
	ReadGroup(ctx context.Context, consumerId string, count int64, block time.Duration) ([]*Entry, error)
	// Ack acknowledges delivered entries and returns how many were newly
	// acknowledged.
	Ack(ctx context.Context, ids ...string) (int64, error)
	// Length returns the number of entries in the stream, 0 if the stream
	// does not exist.
	Length(ctx context.Context) (int64, error)
	// PendingCount returns the number of entries delivered to some consumer
	// in the group but not yet acknowledged, or *ErrNotFound if the stream
	// or group does not exist.
	PendingCount(ctx context.Context) (int64, error)
	// Trim drops the oldest entries so that at most maxLength remain,
	// regardless of delivery or acknowledgement state, and returns the
	// number of entries removed. If approximate is set the server may keep
	// slightly more than maxLength for efficiency.
	Trim(ctx context.Context, maxLength int64, approximate bool) (int64, error)
	StreamExists(ctx context.Context) (bool, error)
}

type RedisStreamRepository struct {
	db     redis.UniversalClient
	stream string
	group  string
}

func NewRedisStreamRepository(db redis.UniversalClient, stream string, group string) *RedisStreamRepository {
	return &RedisStreamRepository{db: db, stream: stream, group: group}
}

func (repo *RedisStreamRepository) Append(ctx context.Context, item *model.WorkItem) (string, error) {
	data, err := item.Marshal()
	if err != nil {
		return "", err
	}
	id, err := repo.db.XAdd(ctx, &redis.XAddArgs{
		Stream: repo.stream,
		Values: map[string]interface{}{dataKey: data},
	}).Result()
	if err != nil {
		return "", errors.Wrapf(err, "failed to append work item %d to stream %s", item.SequenceNumber, repo.stream)
	}
	return id, nil
}

func (repo *RedisStreamRepository) EnsureGroup(ctx context.Context) error {
	err := repo.db.XGroupCreateMkStream(ctx, repo.stream, repo.group, groupStartId).Err()
	if err != nil {
		if isBusyGroup(err) {
			return nil
		}
		return errors.Wrapf(err, "failed to create consumer group %s on stream %s", repo.group, repo.stream)
	}
	return nil
}

func (repo *RedisStreamRepository) ReadGroup(ctx context.Context, consumerId string, count int64, block time.Duration) ([]*Entry, error) {
	result, err := repo.db.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    repo.group,
		Consumer: consumerId,
		Streams:  []string{repo.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		if isNoGroup(err) {
			return nil, repo.notFound()
		}
		return nil, errors.Wrapf(err, "failed to read from stream %s as consumer %s", repo.stream, consumerId)
	}

	entries := []*Entry{}
	for _, stream := range result {
		for _, message := range stream.Messages {
			// An entry without the data field decodes to an empty payload,
			// which the caller treats as malformed.
			payload, _ := message.Values[dataKey].(string)
			entries = append(entries, &Entry{ID: message.ID, Payload: payload})
		}
	}
	return entries, nil
}

func (repo *RedisStreamRepository) Ack(ctx context.Context, ids ...string) (int64, error) {
	acked, err := repo.db.XAck(ctx, repo.stream, repo.group, ids...).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "failed to ack %d entries on stream %s", len(ids), repo.stream)
	}
	return acked, nil
}

func (repo *RedisStreamRepository) Length(ctx context.Context) (int64, error) {
	length, err := repo.db.XLen(ctx, repo.stream).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read length of stream %s", repo.stream)
	}
	return length, nil
}

func (repo *RedisStreamRepository) PendingCount(ctx context.Context) (int64, error) {
	pending, err := repo.db.XPending(ctx, repo.stream, repo.group).Result()
	if err != nil {
		if isNoGroup(err) {
			return 0, repo.notFound()
		}
		return 0, errors.Wrapf(err, "failed to read pending entries of stream %s", repo.stream)
	}
	return pending.Count, nil
}

func (repo *RedisStreamRepository) Trim(ctx context.Context, maxLength int64, approximate bool) (int64, error) {
	var cmd *redis.IntCmd
	if approximate {
		cmd = repo.db.XTrimMaxLenApprox(ctx, repo.stream, maxLength, 0)
	} else {
		cmd = repo.db.XTrimMaxLen(ctx, repo.stream, maxLength)
	}
	removed, err := cmd.Result()
	if err != nil {
		return 0, errors.Wrapf(err, "failed to trim stream %s to %d entries", repo.stream, maxLength)
	}
	return removed, nil
}

func (repo *RedisStreamRepository) StreamExists(ctx context.Context) (bool, error) {
	exists, err := repo.db.Exists(ctx, repo.stream).Result()
	if err != nil {
		return false, errors.Wrapf(err, "failed to check existence of stream %s", repo.stream)
	}
	return exists > 0, nil
}

func (repo *RedisStreamRepository) notFound() *ErrNotFound {
	return &ErrNotFound{ResourceNames: []string{
		fmt.Sprintf("stream %q", repo.stream),
		fmt.Sprintf("group %q", repo.group),
	}}
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func isNoGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "NOGROUP")
}
