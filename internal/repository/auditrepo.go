package repository

import (
	"context"
	"time"

	"github.com/and161185/sendergate/internal/model"
)

// AuditRepository is the append-only audit store.
type AuditRepository interface {
	// Insert appends an entry and returns its id and server-assigned time.
	Insert(ctx context.Context, e model.AuditEntry) (int64, time.Time, error)

	// Query returns entries newest first.
	Query(ctx context.Context, f model.AuditFilter) ([]model.AuditEntry, error)

	// CountByAction aggregates entries created at or after since (zero means all).
	CountByAction(ctx context.Context, since time.Time) (map[model.Action]int64, error)

	// DeleteBefore removes entries older than cutoff and reports how many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
