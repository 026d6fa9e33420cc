// Package convert maps domain types to and from wire messages.
package convert

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/sendergate/internal/api"
	"github.com/and161185/sendergate/internal/errs"
	"github.com/and161185/sendergate/internal/model"
)

// --- helpers ---

func nullID(id uuid.NullUUID) string {
	if !id.Valid {
		return ""
	}
	return id.UUID.String()
}

func trust(s string) (model.TrustLevel, error) {
	return model.ParseTrustLevel(s)
}

// --- Check ---

// FromCheckRequest converts a wire check request.
func FromCheckRequest(in *api.CheckRequest) model.CheckRequest {
	return model.CheckRequest{
		SenderID:       in.SenderID,
		Channel:        in.Channel,
		MessagePreview: in.MessagePreview,
		Metadata:       in.Metadata,
	}
}

// ToCheckResponse converts a decision.
func ToCheckResponse(r model.CheckResult) *api.CheckResponse {
	out := &api.CheckResponse{
		Decision:    string(r.Decision),
		TrustLevel:  r.TrustLevel.String(),
		Reason:      r.Reason,
		MayAct:      r.MayAct(),
		Degraded:    r.Degraded,
		ContactID:   nullID(r.ContactID),
		ContactName: r.ContactName,
		AuditID:     r.AuditID,
	}
	if r.ContactID.Valid {
		out.MatchedOn = r.MatchedOn
		if out.MatchedOn == "" {
			out.MatchedOn = "global"
		}
	}
	return out
}

// --- Contacts ---

// ToContact converts a domain contact.
func ToContact(c model.Contact) api.Contact {
	return api.Contact{
		ID:         c.ID.String(),
		SenderID:   c.SenderID,
		Channel:    c.Channel,
		TrustLevel: c.TrustLevel.String(),
		Name:       c.Name,
		Notes:      c.Notes,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

// ToContacts converts a slice of contacts.
func ToContacts(cs []model.Contact) []api.Contact {
	out := make([]api.Contact, 0, len(cs))
	for _, c := range cs {
		out = append(out, ToContact(c))
	}
	return out
}

// FromAddContact converts an add request; the trust level is required.
func FromAddContact(in *api.AddContactRequest) (model.NewContact, error) {
	lvl, err := trust(in.TrustLevel)
	if err != nil {
		return model.NewContact{}, err
	}
	return model.NewContact{
		SenderID:   in.SenderID,
		Channel:    in.Channel,
		TrustLevel: lvl,
		Name:       in.Name,
		Notes:      in.Notes,
	}, nil
}

// FromUpdateContact converts the optional fields of an update request.
func FromUpdateContact(in *api.UpdateContactRequest) (model.ContactPatch, error) {
	var p model.ContactPatch
	if in.TrustLevel != nil {
		lvl, err := trust(*in.TrustLevel)
		if err != nil {
			return p, err
		}
		p.TrustLevel = &lvl
	}
	p.Name, p.Notes = in.Name, in.Notes
	return p, nil
}

// FromListContacts converts list filters.
func FromListContacts(in *api.ListContactsRequest) (model.ContactFilter, error) {
	f := model.ContactFilter{Channel: in.Channel, Limit: in.Limit, Offset: in.Offset}
	if strings.TrimSpace(in.TrustLevel) != "" {
		lvl, err := trust(in.TrustLevel)
		if err != nil {
			return f, err
		}
		f.TrustLevel = &lvl
	}
	return f, nil
}

// --- Audit ---

// FromListAuditLogs converts audit filters.
func FromListAuditLogs(in *api.ListAuditLogsRequest) (model.AuditFilter, error) {
	f := model.AuditFilter{
		SenderID: strings.TrimSpace(in.SenderID),
		Channel:  strings.TrimSpace(in.Channel),
		Limit:    in.Limit,
		Offset:   in.Offset,
	}
	if in.Action != "" {
		a, err := model.ParseAction(in.Action)
		if err != nil {
			return f, err
		}
		f.Action = a
	}
	if in.Since != nil {
		f.Since = *in.Since
	}
	if in.Until != nil {
		f.Until = *in.Until
	}
	return f, nil
}

// ToAuditEntry converts one audit entry.
func ToAuditEntry(e model.AuditEntry) api.AuditLogEntry {
	return api.AuditLogEntry{
		ID:             e.ID,
		Action:         string(e.Action),
		SenderID:       e.SenderID,
		Channel:        e.Channel,
		ContactID:      nullID(e.ContactID),
		MessagePreview: e.MessagePreview,
		Reason:         e.Reason,
		Metadata:       e.Metadata,
		CreatedAt:      e.CreatedAt,
	}
}

// ToAuditEntries converts audit entries, preserving order.
func ToAuditEntries(es []model.AuditEntry) []api.AuditLogEntry {
	out := make([]api.AuditLogEntry, 0, len(es))
	for _, e := range es {
		out = append(out, ToAuditEntry(e))
	}
	return out
}

// ToAuditStats converts aggregated stats.
func ToAuditStats(s model.AuditStats) *api.AuditStatsResponse {
	by := make(map[string]int64, len(s.ByAction))
	for a, n := range s.ByAction {
		by[string(a)] = n
	}
	return &api.AuditStatsResponse{
		Total:         s.Total,
		ByAction:      by,
		WindowSeconds: int64(s.Window / time.Second),
		GeneratedAt:   s.GeneratedAt,
	}
}

// --- Dead letters ---

// ToDeadLetters converts dead-lettered tasks.
func ToDeadLetters(ts []model.Task) []api.DeadLetter {
	out := make([]api.DeadLetter, 0, len(ts))
	for _, t := range ts {
		out = append(out, api.DeadLetter{
			ID:          t.ID.String(),
			Kind:        t.Kind,
			Payload:     t.Payload,
			Attempts:    t.Attempts,
			MaxAttempts: t.MaxAttempts,
			LastError:   t.LastError,
			CreatedAt:   t.CreatedAt,
			UpdatedAt:   t.UpdatedAt,
		})
	}
	return out
}

// ParseTaskID parses a dead letter id.
func ParseTaskID(s string) (uuid.UUID, error) {
	id, err := uuid.FromString(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid task id %q", errs.ErrInvalidArgument, s)
	}
	return id, nil
}
