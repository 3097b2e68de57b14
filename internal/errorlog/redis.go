package errorlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cvbuilder/api/pkg/analytics"
)

// RedisRing keeps the log in a capped redis list so every API instance sees
// the same entries.
type RedisRing struct {
	client *redis.Client
	key    string
	cap    int
	now    func() time.Time
}

func NewRedisRing(client *redis.Client, key string, capacity int) *RedisRing {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	if key == "" {
		key = "cvbuilder:errors"
	}
	return &RedisRing{client: client, key: key, cap: capacity, now: time.Now}
}

func (r *RedisRing) Kind() string { return "redis" }

func (r *RedisRing) Append(ctx context.Context, entries ...analytics.ErrorLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	now := r.now()
	values := make([]any, 0, len(entries))
	for _, e := range entries {
		payload, err := json.Marshal(normalize(e, now))
		if err != nil {
			return fmt.Errorf("encode error entry: %w", err)
		}
		values = append(values, payload)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, r.key, values...)
		pipe.LTrim(ctx, r.key, 0, int64(r.cap-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("append error entries: %w", err)
	}
	return nil
}

func (r *RedisRing) List(ctx context.Context, filter Filter, limit, offset int) (Page, error) {
	raw, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return Page{}, fmt.Errorf("read error entries: %w", err)
	}

	all := make([]analytics.ErrorLogEntry, 0, len(raw))
	for _, item := range raw {
		var e analytics.ErrorLogEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		all = append(all, e)
	}
	return paginate(all, filter, limit, offset), nil
}

func (r *RedisRing) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
