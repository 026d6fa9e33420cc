package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "sendergate:lease:"

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Redis is a Locker shared by every process using the same Redis.
type Redis struct {
	client redis.Cmdable
}

// NewRedis wraps an existing client.
func NewRedis(client redis.Cmdable) *Redis { return &Redis{client: client} }

// TryAcquire sets the lease key with NX and a TTL.
func (r *Redis) TryAcquire(ctx context.Context, name string, ttl time.Duration) (Release, bool, error) {
	token, err := uuid.NewV4()
	if err != nil {
		return nil, false, err
	}
	key := keyPrefix + name
	ok, err := r.client.SetNX(ctx, key, token.String(), ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lease %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, r.client, []string{key}, token.String()).Err()
	}, true, nil
}
