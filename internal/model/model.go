// Package model defines domain entities used by services and repositories.
package model

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Contact is a trust assignment for a sender, scoped to one channel or global.
type Contact struct {
	ID         uuid.UUID  // server-generated PK
	SenderID   string     // opaque platform identifier (phone, account id, email)
	Channel    string     // "" means the record applies to every channel
	Name       string     // display only
	Notes      string     // display only
	TrustLevel TrustLevel // decides the check outcome
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsGlobal reports whether the contact applies across all channels.
func (c Contact) IsGlobal() bool { return c.Channel == "" }

// NewContact is the create intent for the registry.
type NewContact struct {
	SenderID   string
	Channel    string
	TrustLevel TrustLevel
	Name       string
	Notes      string
}

// ContactPatch carries optional changes; nil fields are left untouched.
type ContactPatch struct {
	TrustLevel *TrustLevel
	Name       *string
	Notes      *string
}

// Empty reports whether the patch changes nothing.
func (p ContactPatch) Empty() bool {
	return p.TrustLevel == nil && p.Name == nil && p.Notes == nil
}

// ContactUpdate reports the stored record after a patch plus the trust level it replaced.
type ContactUpdate struct {
	Contact       Contact
	PreviousTrust TrustLevel
}

// ContactFilter narrows ListContacts. Channel matches channel-specific records
// for that channel and global records, since both apply there.
type ContactFilter struct {
	TrustLevel *TrustLevel
	Channel    string
	Limit      int
	Offset     int
}

// AuditEntry is an immutable record of one decision or one admin mutation.
type AuditEntry struct {
	ID             int64
	Action         Action
	SenderID       string
	Channel        string
	ContactID      uuid.NullUUID   // weak reference, may point at a removed contact
	MessagePreview string          // opaque, truncated, never interpreted
	Reason         string          // human-readable justification
	Metadata       json.RawMessage // optional JSON object
	CreatedAt      time.Time
}

// AuditFilter narrows audit queries. Zero values mean "no filter".
type AuditFilter struct {
	SenderID string
	Channel  string
	Action   Action
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

// AuditStats aggregates audit entries by action.
type AuditStats struct {
	Total       int64
	ByAction    map[Action]int64
	Window      time.Duration // 0 means all entries
	GeneratedAt time.Time
}

// CheckRequest is one inbound message to evaluate.
type CheckRequest struct {
	SenderID       string
	Channel        string
	MessagePreview string
	Metadata       json.RawMessage
}

// CheckResult is the decision returned to the caller.
type CheckResult struct {
	Decision    Decision
	TrustLevel  TrustLevel // blocked when no contact exists
	Reason      string
	ContactID   uuid.NullUUID
	ContactName string
	MatchedOn   string // channel of the matched record, "" for global
	Degraded    bool   // resolver unavailable, treat as blocked
	AuditID     int64  // 0 if the audit write failed
}

// MayAct reports whether the agent may invoke side-effecting capabilities for this message.
func (r CheckResult) MayAct() bool { return r.Decision == DecisionAllowed && !r.Degraded }
