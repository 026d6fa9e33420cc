package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/sendergate/internal/errs"
	"github.com/and161185/sendergate/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func contactRows(cs ...model.Contact) *pgxmock.Rows {
	rows := pgxmock.NewRows(contactColumns)
	for _, c := range cs {
		var ch any
		if c.Channel != "" {
			ch = c.Channel
		}
		rows.AddRow(c.ID, c.SenderID, ch, c.Name, c.Notes, c.TrustLevel.String(), c.CreatedAt, c.UpdatedAt)
	}
	return rows
}

func sampleContact(channel string, lvl model.TrustLevel) model.Contact {
	now := time.Now().UTC().Truncate(time.Second)
	return model.Contact{
		ID:         uuid.Must(uuid.NewV4()),
		SenderID:   "+1555",
		Channel:    channel,
		Name:       "Alice",
		TrustLevel: lvl,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

const resolveSQL = `FROM contacts\s+WHERE sender_id = \$1 AND \(channel = \$2 OR channel IS NULL\)\s+ORDER BY channel IS NULL`

func TestContactRepo_Resolve_ChannelSpecific(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContactRepo(db)

	c := sampleContact("telegram", model.TrustSovereign)
	mock.ExpectQuery(resolveSQL).
		WithArgs("+1555", "telegram").
		WillReturnRows(contactRows(c))

	got, err := r.Resolve(context.Background(), "+1555", "telegram")
	require.NoError(t, err)
	require.Equal(t, "telegram", got.Channel)
	require.Equal(t, model.TrustSovereign, got.TrustLevel)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepo_Resolve_GlobalOnlyWhenChannelAbsent(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContactRepo(db)

	c := sampleContact("", model.TrustTrusted)
	mock.ExpectQuery(resolveSQL).
		WithArgs("+1555", nil).
		WillReturnRows(contactRows(c))

	got, err := r.Resolve(context.Background(), "+1555", "")
	require.NoError(t, err)
	require.True(t, got.IsGlobal())
	require.Equal(t, model.TrustTrusted, got.TrustLevel)
}

func TestContactRepo_Resolve_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContactRepo(db)

	mock.ExpectQuery(resolveSQL).
		WithArgs("ghost", "email").
		WillReturnError(pgx.ErrNoRows)

	_, err := r.Resolve(context.Background(), "ghost", "email")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestContactRepo_Create_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContactRepo(db)

	c := sampleContact("", model.TrustTrusted)
	mock.ExpectQuery(`INSERT INTO contacts \(id, sender_id, channel, name, notes, trust_level\)`).
		WithArgs(pgxmock.AnyArg(), "+1555", nil, "Alice", "", "trusted").
		WillReturnRows(contactRows(c))

	got, err := r.Create(context.Background(), model.NewContact{
		SenderID: "+1555", TrustLevel: model.TrustTrusted, Name: "Alice",
	})
	require.NoError(t, err)
	require.Equal(t, c.ID, got.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepo_Create_Conflict(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContactRepo(db)

	mock.ExpectQuery(`INSERT INTO contacts`).
		WithArgs(pgxmock.AnyArg(), "+1555", "telegram", "", "", "limited").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := r.Create(context.Background(), model.NewContact{
		SenderID: "+1555", Channel: "telegram", TrustLevel: model.TrustLimited,
	})
	require.ErrorIs(t, err, errs.ErrConflict)
}

func TestContactRepo_Update_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContactRepo(db)

	c := sampleContact("", model.TrustTrusted)
	later := c.UpdatedAt.Add(time.Minute)
	blocked := model.TrustBlocked

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery(`WHERE sender_id = \$1 AND channel IS NOT DISTINCT FROM \$2\s+FOR UPDATE`).
		WithArgs("+1555", nil).
		WillReturnRows(contactRows(c))
	mock.ExpectQuery(`UPDATE contacts SET trust_level=\$2, name=\$3, notes=\$4, updated_at=now\(\)`).
		WithArgs(c.ID, "blocked", "Alice", "").
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(later))
	mock.ExpectCommit()

	got, err := r.Update(context.Background(), "+1555", "", model.ContactPatch{TrustLevel: &blocked})
	require.NoError(t, err)
	require.Equal(t, model.TrustTrusted, got.PreviousTrust)
	require.Equal(t, model.TrustBlocked, got.Contact.TrustLevel)
	require.Equal(t, later, got.Contact.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepo_Update_NotFound_NoFallbackToGlobal(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContactRepo(db)

	name := "Bob"
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery(`channel IS NOT DISTINCT FROM \$2\s+FOR UPDATE`).
		WithArgs("+1555", "whatsapp").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := r.Update(context.Background(), "+1555", "whatsapp", model.ContactPatch{Name: &name})
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepo_Remove(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContactRepo(db)

	c := sampleContact("telegram", model.TrustLimited)
	mock.ExpectQuery(`DELETE FROM contacts\s+WHERE sender_id = \$1 AND channel IS NOT DISTINCT FROM \$2`).
		WithArgs("+1555", "telegram").
		WillReturnRows(contactRows(c))
	mock.ExpectQuery(`DELETE FROM contacts`).
		WithArgs("+1555", "telegram").
		WillReturnError(pgx.ErrNoRows)

	got, err := r.Remove(context.Background(), "+1555", "telegram")
	require.NoError(t, err)
	require.Equal(t, c.ID, got.ID)

	_, err = r.Remove(context.Background(), "+1555", "telegram")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestContactRepo_List_Filters(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContactRepo(db)

	global := sampleContact("", model.TrustTrusted)
	scoped := sampleContact("telegram", model.TrustTrusted)
	lvl := model.TrustTrusted

	mock.ExpectQuery(`SELECT id, sender_id, channel, name, notes, trust_level, created_at, updated_at FROM contacts WHERE trust_level = \$1 AND \(channel = \$2 OR channel IS NULL\) ORDER BY sender_id, channel NULLS FIRST LIMIT 20 OFFSET 40`).
		WithArgs("trusted", "telegram").
		WillReturnRows(contactRows(global, scoped))

	got, err := r.List(context.Background(), model.ContactFilter{
		TrustLevel: &lvl, Channel: "telegram", Limit: 20, Offset: 40,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].IsGlobal())
	require.Equal(t, "telegram", got[1].Channel)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepo_List_NoFilters_DefaultLimit(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewContactRepo(db)

	mock.ExpectQuery(`FROM contacts ORDER BY sender_id, channel NULLS FIRST LIMIT 100$`).
		WillReturnRows(contactRows())

	got, err := r.List(context.Background(), model.ContactFilter{})
	require.NoError(t, err)
	require.Empty(t, got)
}
