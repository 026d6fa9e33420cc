// Package limiter throttles operator notifications about blocked senders, so a
// flood from one sender produces a bounded number of alerts per window.
package limiter

import "context"

// Limiter counts notification attempts per (sender, channel).
type Limiter interface {
	// Allow records one attempt and reports whether it fits in the current window.
	Allow(ctx context.Context, senderID, channel string) (bool, error)
	// Reset clears the counter, e.g. after the sender was added to the registry.
	Reset(ctx context.Context, senderID, channel string) error
}
