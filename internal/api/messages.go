// Package api defines the sendergate.v1.Gate wire contract: messages, the
// JSON codec they travel in, the service descriptor and a typed client.
package api

import (
	"encoding/json"
	"time"
)

type CheckRequest struct {
	SenderID       string          `json:"sender_id"`
	Channel        string          `json:"channel,omitempty"`
	MessagePreview string          `json:"message_preview,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

type CheckResponse struct {
	Decision    string `json:"decision"`
	TrustLevel  string `json:"trust_level"`
	Reason      string `json:"reason"`
	MayAct      bool   `json:"may_act"`
	Degraded    bool   `json:"degraded,omitempty"`
	ContactID   string `json:"contact_id,omitempty"`
	ContactName string `json:"contact_name,omitempty"`
	MatchedOn   string `json:"matched_on,omitempty"` // "global" or the channel name
	AuditID     int64  `json:"audit_id,omitempty"`
}

type Contact struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	Channel    string    `json:"channel,omitempty"`
	TrustLevel string    `json:"trust_level"`
	Name       string    `json:"name,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type AddContactRequest struct {
	SenderID   string `json:"sender_id"`
	Channel    string `json:"channel,omitempty"`
	TrustLevel string `json:"trust_level"`
	Name       string `json:"name,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// UpdateContactRequest targets the exact (sender_id, channel) scope. Absent
// fields are left unchanged.
type UpdateContactRequest struct {
	SenderID   string  `json:"sender_id"`
	Channel    string  `json:"channel,omitempty"`
	TrustLevel *string `json:"trust_level,omitempty"`
	Name       *string `json:"name,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

type ContactResponse struct {
	Contact Contact `json:"contact"`
}

type RemoveContactRequest struct {
	SenderID string `json:"sender_id"`
	Channel  string `json:"channel,omitempty"`
}

type RemoveContactResponse struct{}

type ListContactsRequest struct {
	TrustLevel string `json:"trust_level,omitempty"`
	Channel    string `json:"channel,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

type ListContactsResponse struct {
	Contacts []Contact `json:"contacts"`
}

type AuditLogEntry struct {
	ID             int64           `json:"id"`
	Action         string          `json:"action"`
	SenderID       string          `json:"sender_id"`
	Channel        string          `json:"channel,omitempty"`
	ContactID      string          `json:"contact_id,omitempty"`
	MessagePreview string          `json:"message_preview,omitempty"`
	Reason         string          `json:"decision_reason"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type ListAuditLogsRequest struct {
	SenderID string     `json:"sender_id,omitempty"`
	Channel  string     `json:"channel,omitempty"`
	Action   string     `json:"action,omitempty"`
	Since    *time.Time `json:"since,omitempty"`
	Until    *time.Time `json:"until,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}

type ListAuditLogsResponse struct {
	Entries []AuditLogEntry `json:"entries"`
}

type AuditStatsRequest struct {
	Fresh bool `json:"fresh,omitempty"`
}

type AuditStatsResponse struct {
	Total         int64            `json:"total"`
	ByAction      map[string]int64 `json:"by_action"`
	WindowSeconds int64            `json:"window_seconds"` // 0 means every entry
	GeneratedAt   time.Time        `json:"generated_at"`
}

type DeadLetter struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ListDeadLettersRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

type ListDeadLettersResponse struct {
	Tasks []DeadLetter `json:"tasks"`
}

type RequeueDeadLetterRequest struct {
	ID string `json:"id"`
}

type RequeueDeadLetterResponse struct{}
