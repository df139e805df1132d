package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	"github.com/ragrelay/server/internal/agent/model"
	errx "github.com/ragrelay/server/internal/core/error"
	logx "github.com/ragrelay/server/pkg/logger"
)

// RedisHistoryLog keeps an append-only chat history per thread as a Redis
// list of JSON messages. It is an audit record, not the resumable state; the
// checkpoint store owns resumption.
type RedisHistoryLog struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisHistoryLog(rdb redis.Cmdable, ttl time.Duration) *RedisHistoryLog {
	return &RedisHistoryLog{rdb: rdb, ttl: ttl}
}

func (r *RedisHistoryLog) key(threadID string) string {
	return fmt.Sprintf("thread:%s:history", threadID)
}

func (r *RedisHistoryLog) Append(ctx context.Context, threadID string, messages []*schema.Message) error {
	if len(messages) == 0 {
		return nil
	}

	rows := make([]interface{}, 0, len(messages))
	for _, msg := range messages {
		b, err := json.Marshal(msg)
		if err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to marshal history message")
			return fmt.Errorf("marshal history message: %w", err)
		}
		rows = append(rows, b)
	}

	key := r.key(threadID)
	if err := r.rdb.RPush(ctx, key, rows...).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push history to redis")
		return errx.WrapRedis(err)
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on history key")
		}
	}
	return nil
}

// Load returns the full history of a thread in append order.
func (r *RedisHistoryLog) Load(ctx context.Context, threadID string) ([]*schema.Message, error) {
	key := r.key(threadID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load history from redis")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]*schema.Message, 0, len(rows))
	for i, s := range rows {
		var m schema.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Int("index", i).Msg("failed to unmarshal history message")
			return nil, fmt.Errorf("unmarshal history message at index %d: %w", i, err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, nil
}

var _ model.HistoryLog = (*RedisHistoryLog)(nil)
