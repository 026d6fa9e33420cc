package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/and161185/sendergate/internal/errs"
	"github.com/and161185/sendergate/internal/model"
)

// ContactRepo implements repository.ContactRepository on Postgres.
type ContactRepo struct{ db *DB }

// NewContactRepo constructs a ContactRepo.
func NewContactRepo(db *DB) *ContactRepo { return &ContactRepo{db: db} }

const contactCols = `id, sender_id, channel, name, notes, trust_level, created_at, updated_at`

var contactColumns = []string{"id", "sender_id", "channel", "name", "notes", "trust_level", "created_at", "updated_at"}

func scanContact(row scanner) (*model.Contact, error) {
	var (
		c       model.Contact
		channel pgtype.Text
		trust   string
	)
	if err := row.Scan(&c.ID, &c.SenderID, &channel, &c.Name, &c.Notes, &trust, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	lvl, err := model.ParseTrustLevel(trust)
	if err != nil {
		return nil, fmt.Errorf("contact %s: %w", c.ID, err)
	}
	c.Channel = channel.String
	c.TrustLevel = lvl
	return &c, nil
}

// Resolve reads the channel-specific and global rows in one round trip,
// channel-specific first.
func (r *ContactRepo) Resolve(ctx context.Context, senderID, channel string) (*model.Contact, error) {
	const q = `
SELECT ` + contactCols + `
FROM contacts
WHERE sender_id = $1 AND (channel = $2 OR channel IS NULL)
ORDER BY channel IS NULL
LIMIT 1`
	c, err := scanContact(r.db.Pool.QueryRow(ctx, q, senderID, nullable(channel)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	return c, err
}

// Create inserts a contact. The unique index on (sender_id, channel) decides races.
func (r *ContactRepo) Create(ctx context.Context, in model.NewContact) (*model.Contact, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	const q = `
INSERT INTO contacts (id, sender_id, channel, name, notes, trust_level)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING ` + contactCols
	c, err := scanContact(r.db.Pool.QueryRow(ctx, q,
		id, in.SenderID, nullable(in.Channel), in.Name, in.Notes, in.TrustLevel.String()))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errs.ErrConflict
		}
		return nil, err
	}
	return c, nil
}

// Update locks the exact-scope row, applies the patch and returns the new state.
func (r *ContactRepo) Update(ctx context.Context, senderID, channel string, patch model.ContactPatch) (out *model.ContactUpdate, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			out, err = nil, e
		}
	}()

	const sel = `
SELECT ` + contactCols + `
FROM contacts
WHERE sender_id = $1 AND channel IS NOT DISTINCT FROM $2
FOR UPDATE`
	cur, err := scanContact(tx.QueryRow(ctx, sel, senderID, nullable(channel)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}

	prev := cur.TrustLevel
	if patch.TrustLevel != nil {
		cur.TrustLevel = *patch.TrustLevel
	}
	if patch.Name != nil {
		cur.Name = *patch.Name
	}
	if patch.Notes != nil {
		cur.Notes = *patch.Notes
	}

	const upd = `
UPDATE contacts SET trust_level=$2, name=$3, notes=$4, updated_at=now()
WHERE id=$1
RETURNING updated_at`
	if err = tx.QueryRow(ctx, upd, cur.ID, cur.TrustLevel.String(), cur.Name, cur.Notes).Scan(&cur.UpdatedAt); err != nil {
		return nil, err
	}
	return &model.ContactUpdate{Contact: *cur, PreviousTrust: prev}, nil
}

// Remove deletes the exact-scope row. Audit entries keep their dangling contact_id.
func (r *ContactRepo) Remove(ctx context.Context, senderID, channel string) (*model.Contact, error) {
	const q = `
DELETE FROM contacts
WHERE sender_id = $1 AND channel IS NOT DISTINCT FROM $2
RETURNING ` + contactCols
	c, err := scanContact(r.db.Pool.QueryRow(ctx, q, senderID, nullable(channel)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	return c, err
}

// List pages through contacts matching the filter.
func (r *ContactRepo) List(ctx context.Context, f model.ContactFilter) ([]model.Contact, error) {
	limit, offset := pageBounds(f.Limit, f.Offset, 100, 1000)
	b := psql.Select(contactColumns...).
		From("contacts").
		OrderBy("sender_id", "channel NULLS FIRST").
		Limit(limit)
	if offset > 0 {
		b = b.Offset(offset)
	}
	if f.TrustLevel != nil {
		b = b.Where(sq.Eq{"trust_level": f.TrustLevel.String()})
	}
	if f.Channel != "" {
		b = b.Where(sq.Or{sq.Eq{"channel": f.Channel}, sq.Eq{"channel": nil}})
	}

	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Contact, 0, limit)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
