package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/and161185/sendergate/internal/model"
)

const statsKey = "sendergate:audit:stats"

type statsDoc struct {
	Total       int64                  `json:"total"`
	ByAction    map[model.Action]int64 `json:"by_action"`
	WindowSec   int64                  `json:"window_sec"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// Redis shares the snapshot between every server using the same Redis.
type Redis struct {
	client redis.Cmdable
}

// NewRedis wraps an existing client.
func NewRedis(client redis.Cmdable) *Redis { return &Redis{client: client} }

func (r *Redis) Get(ctx context.Context) (model.AuditStats, bool, error) {
	raw, err := r.client.Get(ctx, statsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.AuditStats{}, false, nil
	}
	if err != nil {
		return model.AuditStats{}, false, err
	}
	var d statsDoc
	if err := json.Unmarshal(raw, &d); err != nil {
		return model.AuditStats{}, false, err
	}
	return model.AuditStats{
		Total:       d.Total,
		ByAction:    d.ByAction,
		Window:      time.Duration(d.WindowSec) * time.Second,
		GeneratedAt: d.GeneratedAt,
	}, true, nil
}

func (r *Redis) Put(ctx context.Context, s model.AuditStats, ttl time.Duration) error {
	raw, err := json.Marshal(statsDoc{
		Total:       s.Total,
		ByAction:    s.ByAction,
		WindowSec:   int64(s.Window / time.Second),
		GeneratedAt: s.GeneratedAt,
	})
	if err != nil {
		return err
	}
	return r.client.Set(ctx, statsKey, raw, ttl).Err()
}

// Dial connects to Redis and verifies the connection, as the server does at startup.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
