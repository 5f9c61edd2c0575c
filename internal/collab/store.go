package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hivechat/relay/internal/domain"
)

const (
	messageTTL  = 24 * time.Hour
	historyKeep = 500
)

// MessageStore persists accepted messages. The gateway calls Persist
// before broadcast but proceeds regardless of the outcome.
type MessageStore interface {
	Persist(ctx context.Context, msg *domain.Message) error
	Ping(ctx context.Context) error
}

// RedisStore keeps a bounded per-room history in a sorted set scored by
// send time.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		DialTimeout:  500 * time.Millisecond,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return &RedisStore{client: client}, nil
}

func roomMessagesKey(room domain.RoomID) string {
	return fmt.Sprintf("room:%s:messages", room)
}

func (s *RedisStore) Persist(ctx context.Context, msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := roomMessagesKey(msg.Room)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.SentAt.UnixMilli()),
		Member: data,
	})
	pipe.ZRemRangeByRank(ctx, key, 0, -(historyKeep + 1))
	pipe.Expire(ctx, key, messageTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// NopStore is used when no redis address is configured.
type NopStore struct{}

func (NopStore) Persist(ctx context.Context, msg *domain.Message) error { return nil }
func (NopStore) Ping(ctx context.Context) error                         { return nil }
