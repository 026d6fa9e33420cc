package model

import (
	"fmt"
	"strings"

	"github.com/and161185/sendergate/internal/errs"
)

// TrustLevel is a privilege tier. Higher rank means more privilege; gaps
// between ranks leave room for intermediate tiers.
type TrustLevel int

const (
	TrustBlocked   TrustLevel = 0
	TrustLimited   TrustLevel = 10
	TrustTrusted   TrustLevel = 20
	TrustSovereign TrustLevel = 30
)

var trustNames = map[TrustLevel]string{
	TrustBlocked:   "blocked",
	TrustLimited:   "limited",
	TrustTrusted:   "trusted",
	TrustSovereign: "sovereign",
}

func (t TrustLevel) String() string {
	if s, ok := trustNames[t]; ok {
		return s
	}
	return fmt.Sprintf("trust(%d)", int(t))
}

// Valid reports whether t is one of the defined tiers.
func (t TrustLevel) Valid() bool {
	_, ok := trustNames[t]
	return ok
}

// AtLeast reports whether t ranks at or above min.
func (t TrustLevel) AtLeast(min TrustLevel) bool { return t >= min }

// ParseTrustLevel accepts the tier names case-insensitively.
func ParseTrustLevel(s string) (TrustLevel, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for lvl, name := range trustNames {
		if name == key {
			return lvl, nil
		}
	}
	return TrustBlocked, fmt.Errorf("%w: unknown trust level %q", errs.ErrInvalidArgument, s)
}

// Decision is the outcome of evaluating a sender/channel pair.
type Decision string

const (
	DecisionAllowed Decision = "allowed"
	DecisionLimited Decision = "limited"
	DecisionBlocked Decision = "blocked"
)

// DecisionFor maps a trust tier to its decision. Unknown tiers are blocked.
func DecisionFor(t TrustLevel) Decision {
	switch {
	case t.AtLeast(TrustTrusted):
		return DecisionAllowed
	case t.AtLeast(TrustLimited):
		return DecisionLimited
	default:
		return DecisionBlocked
	}
}

// Action returns the audit action recorded for this decision.
func (d Decision) Action() Action { return Action(d) }

// Action is the kind of event recorded in the audit log.
type Action string

const (
	ActionAllowed        Action = "allowed"
	ActionBlocked        Action = "blocked"
	ActionLimited        Action = "limited"
	ActionContactAdded   Action = "contact_added"
	ActionContactUpdated Action = "contact_updated"
	ActionContactRemoved Action = "contact_removed"
)

// Actions lists every action in a stable order.
var Actions = []Action{
	ActionAllowed, ActionBlocked, ActionLimited,
	ActionContactAdded, ActionContactUpdated, ActionContactRemoved,
}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Actions {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: unknown action %q", errs.ErrInvalidArgument, s)
}
