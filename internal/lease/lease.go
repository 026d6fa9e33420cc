// Package lease grants named, expiring, exclusive leases so a periodic job runs
// on at most one dispatcher at a time.
package lease

import (
	"context"
	"time"
)

// Release gives a lease back before it expires.
type Release func(ctx context.Context) error

// Locker grants leases. ok is false when another holder owns name.
type Locker interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (release Release, ok bool, err error)
}
