package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/sendergate/internal/errs"
	"github.com/and161185/sendergate/internal/model"
	"github.com/and161185/sendergate/internal/repository"
)

type scopeKey struct{ sender, channel string }

type memContacts struct {
	mu         sync.Mutex
	byScope    map[scopeKey]model.Contact
	resolveErr error
}

var _ repository.ContactRepository = (*memContacts)(nil)

func newMemContacts() *memContacts { return &memContacts{byScope: map[scopeKey]model.Contact{}} }

func (m *memContacts) Resolve(_ context.Context, senderID, channel string) (*model.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	if channel != "" {
		if c, ok := m.byScope[scopeKey{senderID, channel}]; ok {
			return &c, nil
		}
	}
	if c, ok := m.byScope[scopeKey{senderID, ""}]; ok {
		return &c, nil
	}
	return nil, errs.ErrNotFound
}

func (m *memContacts) Create(_ context.Context, in model.NewContact) (*model.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scopeKey{in.SenderID, in.Channel}
	if _, ok := m.byScope[k]; ok {
		return nil, errs.ErrConflict
	}
	now := time.Now()
	c := model.Contact{
		ID: uuid.Must(uuid.NewV4()), SenderID: in.SenderID, Channel: in.Channel,
		Name: in.Name, Notes: in.Notes, TrustLevel: in.TrustLevel, CreatedAt: now, UpdatedAt: now,
	}
	m.byScope[k] = c
	return &c, nil
}

func (m *memContacts) Update(_ context.Context, senderID, channel string, p model.ContactPatch) (*model.ContactUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scopeKey{senderID, channel}
	c, ok := m.byScope[k]
	if !ok {
		return nil, errs.ErrNotFound
	}
	prev := c.TrustLevel
	if p.TrustLevel != nil {
		c.TrustLevel = *p.TrustLevel
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Notes != nil {
		c.Notes = *p.Notes
	}
	c.UpdatedAt = time.Now()
	m.byScope[k] = c
	return &model.ContactUpdate{Contact: c, PreviousTrust: prev}, nil
}

func (m *memContacts) Remove(_ context.Context, senderID, channel string) (*model.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scopeKey{senderID, channel}
	c, ok := m.byScope[k]
	if !ok {
		return nil, errs.ErrNotFound
	}
	delete(m.byScope, k)
	return &c, nil
}

func (m *memContacts) List(_ context.Context, f model.ContactFilter) ([]model.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Contact
	for _, c := range m.byScope {
		if f.TrustLevel != nil && c.TrustLevel != *f.TrustLevel {
			continue
		}
		if f.Channel != "" && c.Channel != "" && c.Channel != f.Channel {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SenderID != out[j].SenderID {
			return out[i].SenderID < out[j].SenderID
		}
		return out[i].Channel < out[j].Channel
	})
	return out, nil
}

type memAudit struct {
	mu        sync.Mutex
	entries   []model.AuditEntry
	insertErr error
	counts    map[model.Action]int64
	countErr  error
	since     time.Time
	cutoff    time.Time
	deleted   int64
}

var _ repository.AuditRepository = (*memAudit)(nil)

func (m *memAudit) Insert(_ context.Context, e model.AuditEntry) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return 0, time.Time{}, m.insertErr
	}
	e.ID = int64(len(m.entries) + 1)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.entries = append(m.entries, e)
	return e.ID, e.CreatedAt, nil
}

func (m *memAudit) Query(_ context.Context, f model.AuditFilter) ([]model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AuditEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if f.SenderID != "" && e.SenderID != f.SenderID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memAudit) CountByAction(_ context.Context, since time.Time) (map[model.Action]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.since = since
	return m.counts, m.countErr
}

func (m *memAudit) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoff = cutoff
	return m.deleted, nil
}

func (m *memAudit) all() []model.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AuditEntry(nil), m.entries...)
}

type fakeSubmitter struct {
	mu    sync.Mutex
	kinds []string
	last  any
	err   error
}

func (f *fakeSubmitter) Submit(kind string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
	f.last = payload
	return f.err
}

type decisionCall struct {
	req model.CheckRequest
	res model.CheckResult
}

type contactCall struct {
	action   model.Action
	contact  model.Contact
	previous model.TrustLevel
	actor    string
}

type fakeEvents struct {
	mu        sync.Mutex
	decisions []decisionCall
	contacts  []contactCall
	err       error
}

func (f *fakeEvents) Decision(req model.CheckRequest, res model.CheckResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, decisionCall{req, res})
	return f.err
}

func (f *fakeEvents) ContactChanged(action model.Action, c model.Contact, previous model.TrustLevel, actor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contacts = append(f.contacts, contactCall{action, c, previous, actor})
	return f.err
}

func (f *fakeEvents) decisionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.decisions)
}
