package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is a Locker shared by every process using the same database.
type Postgres struct {
	pool pgxQuerier
}

// NewPostgres wraps a pool (*pgxpool.Pool or a mock).
func NewPostgres(pool pgxQuerier) *Postgres { return &Postgres{pool: pool} }

// TryAcquire inserts the lease row, or takes it over once the holder's lease expired.
func (p *Postgres) TryAcquire(ctx context.Context, name string, ttl time.Duration) (Release, bool, error) {
	token, err := uuid.NewV4()
	if err != nil {
		return nil, false, err
	}
	const q = `
INSERT INTO job_leases (name, token, expires_at)
VALUES ($1, $2, now() + $3::interval)
ON CONFLICT (name) DO UPDATE
SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at
WHERE job_leases.expires_at <= now()
RETURNING token`
	var got uuid.UUID
	err = p.pool.QueryRow(ctx, q, name, token, ttl).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lease %s: %w", name, err)
	}
	return func(ctx context.Context) error {
		_, err := p.pool.Exec(ctx, `DELETE FROM job_leases WHERE name=$1 AND token=$2`, name, token)
		return err
	}, true, nil
}
