// Package notify turns decisions and registry changes into outbound
// notifications: operator alerts, webhooks and the decision stream.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/and161185/sendergate/internal/model"
)

// Event types, also used as webhook event filters.
const (
	EventDecisionAllowed = "decision.allowed"
	EventDecisionLimited = "decision.limited"
	EventDecisionBlocked = "decision.blocked"
	EventContactAdded    = "contact.added"
	EventContactUpdated  = "contact.updated"
	EventContactRemoved  = "contact.removed"
)

// EventTypes lists every event type.
var EventTypes = []string{
	EventDecisionAllowed, EventDecisionLimited, EventDecisionBlocked,
	EventContactAdded, EventContactUpdated, EventContactRemoved,
}

// Event is the payload carried by notification tasks. It never includes the
// message preview.
type Event struct {
	Type          string    `json:"type"`
	SenderID      string    `json:"sender_id"`
	Channel       string    `json:"channel,omitempty"`
	TrustLevel    string    `json:"trust_level"`
	PreviousTrust string    `json:"previous_trust_level,omitempty"`
	Decision      string    `json:"decision,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	ContactID     string    `json:"contact_id,omitempty"`
	ContactName   string    `json:"contact_name,omitempty"`
	Degraded      bool      `json:"degraded,omitempty"`
	AuditID       int64     `json:"audit_id,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	At            time.Time `json:"at"`
}

// DecisionEvent describes one check outcome.
func DecisionEvent(req model.CheckRequest, res model.CheckResult, at time.Time) Event {
	e := Event{
		Type:        "decision." + string(res.Decision),
		SenderID:    req.SenderID,
		Channel:     req.Channel,
		TrustLevel:  res.TrustLevel.String(),
		Decision:    string(res.Decision),
		Reason:      res.Reason,
		ContactName: res.ContactName,
		Degraded:    res.Degraded,
		AuditID:     res.AuditID,
		At:          at.UTC(),
	}
	if res.ContactID.Valid {
		e.ContactID = res.ContactID.UUID.String()
	}
	return e
}

// ContactEvent describes one registry mutation. previous is only reported for
// updates that changed the trust level.
func ContactEvent(action model.Action, c model.Contact, previous model.TrustLevel, actor string, at time.Time) Event {
	e := Event{
		Type:        "contact." + strings.TrimPrefix(string(action), "contact_"),
		SenderID:    c.SenderID,
		Channel:     c.Channel,
		TrustLevel:  c.TrustLevel.String(),
		ContactID:   c.ID.String(),
		ContactName: c.Name,
		Actor:       actor,
		At:          at.UTC(),
	}
	if action == model.ActionContactUpdated && previous != c.TrustLevel {
		e.PreviousTrust = previous.String()
	}
	return e
}

// IsDecision reports whether e came from a check.
func (e Event) IsDecision() bool { return strings.HasPrefix(e.Type, "decision.") }

// Summary is a one-line human description used by chat-style sinks.
func (e Event) Summary() string {
	scope := e.Channel
	if scope == "" {
		scope = "all channels"
	}
	if e.IsDecision() {
		s := fmt.Sprintf("%s: sender %s on %s (%s)", e.Decision, e.SenderID, scope, e.Reason)
		if e.Degraded {
			s += " [degraded]"
		}
		return s
	}
	s := fmt.Sprintf("%s: sender %s on %s, trust %s", e.Type, e.SenderID, scope, e.TrustLevel)
	if e.PreviousTrust != "" {
		s += " (was " + e.PreviousTrust + ")"
	}
	if e.Actor != "" {
		s += " by " + e.Actor
	}
	return s
}
