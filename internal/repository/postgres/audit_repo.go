package postgres

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/and161185/sendergate/internal/model"
)

// AuditRepo implements repository.AuditRepository on Postgres. Rows are never updated;
// a trigger rejects UPDATE at the storage layer.
type AuditRepo struct{ db *DB }

// NewAuditRepo constructs an AuditRepo.
func NewAuditRepo(db *DB) *AuditRepo { return &AuditRepo{db: db} }

var auditColumns = []string{
	"id", "action", "sender_id", "channel", "contact_id",
	"message_preview", "decision_reason", "metadata", "created_at",
}

// Insert appends one entry. A zero CreatedAt takes the server clock; replayed
// entries keep the time of the original event.
func (r *AuditRepo) Insert(ctx context.Context, e model.AuditEntry) (int64, time.Time, error) {
	const q = `
INSERT INTO audit_logs (action, sender_id, channel, contact_id, message_preview, decision_reason, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7, COALESCE($8, now()))
RETURNING id, created_at`
	var meta, at0 any
	if len(e.Metadata) > 0 {
		meta = string(e.Metadata)
	}
	if !e.CreatedAt.IsZero() {
		at0 = e.CreatedAt
	}
	var (
		id int64
		at time.Time
	)
	err := r.db.Pool.QueryRow(ctx, q,
		string(e.Action), e.SenderID, nullable(e.Channel), e.ContactID,
		e.MessagePreview, e.Reason, meta, at0,
	).Scan(&id, &at)
	return id, at, err
}

// Query filters entries and returns them newest first.
func (r *AuditRepo) Query(ctx context.Context, f model.AuditFilter) ([]model.AuditEntry, error) {
	limit, offset := pageBounds(f.Limit, f.Offset, 100, 1000)
	b := psql.Select(auditColumns...).
		From("audit_logs").
		OrderBy("created_at DESC", "id DESC").
		Limit(limit)
	if offset > 0 {
		b = b.Offset(offset)
	}
	if f.SenderID != "" {
		b = b.Where(sq.Eq{"sender_id": f.SenderID})
	}
	if f.Channel != "" {
		b = b.Where(sq.Eq{"channel": f.Channel})
	}
	if f.Action != "" {
		b = b.Where(sq.Eq{"action": string(f.Action)})
	}
	if !f.Since.IsZero() {
		b = b.Where(sq.GtOrEq{"created_at": f.Since})
	}
	if !f.Until.IsZero() {
		b = b.Where(sq.Lt{"created_at": f.Until})
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

	out := make([]model.AuditEntry, 0, limit)
	for rows.Next() {
		var (
			e       model.AuditEntry
			action  string
			channel pgtype.Text
			meta    []byte
		)
		if err := rows.Scan(&e.ID, &action, &e.SenderID, &channel, &e.ContactID,
			&e.MessagePreview, &e.Reason, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = model.Action(action)
		e.Channel = channel.String
		if len(meta) > 0 {
			e.Metadata = meta
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByAction groups entries by action, optionally bounded to a window start.
func (r *AuditRepo) CountByAction(ctx context.Context, since time.Time) (map[model.Action]int64, error) {
	b := psql.Select("action", "count(*)").From("audit_logs").GroupBy("action")
	if !since.IsZero() {
		b = b.Where(sq.GtOrEq{"created_at": since})
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

	out := make(map[model.Action]int64)
	for rows.Next() {
		var (
			action string
			n      int64
		)
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		out[model.Action(action)] = n
	}
	return out, rows.Err()
}

// DeleteBefore prunes entries created strictly before cutoff.
func (r *AuditRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM audit_logs WHERE created_at < $1`
	tag, err := r.db.Pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
