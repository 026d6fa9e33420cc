// Package service implements the decision gate, registry administration and
// the audit recorder on top of the repositories and the dispatcher.
package service

import (
	"fmt"
	"strings"

	"github.com/and161185/sendergate/internal/errs"
	"github.com/and161185/sendergate/internal/model"
)

const (
	maxSenderLen  = 256
	maxChannelLen = 64
	maxNameLen    = 200
	maxNotesLen   = 2000
)

// Events publishes side effects of checks and registry mutations.
type Events interface {
	Decision(req model.CheckRequest, res model.CheckResult) error
	ContactChanged(action model.Action, c model.Contact, previous model.TrustLevel, actor string) error
}

// normalizeScope trims the key of a contact and validates it.
func normalizeScope(senderID, channel string) (string, string, error) {
	senderID, channel = strings.TrimSpace(senderID), strings.TrimSpace(channel)
	if senderID == "" {
		return "", "", fmt.Errorf("%w: empty sender_id", errs.ErrInvalidArgument)
	}
	if len(senderID) > maxSenderLen {
		return "", "", fmt.Errorf("%w: sender_id longer than %d bytes", errs.ErrInvalidArgument, maxSenderLen)
	}
	if len(channel) > maxChannelLen {
		return "", "", fmt.Errorf("%w: channel longer than %d bytes", errs.ErrInvalidArgument, maxChannelLen)
	}
	return senderID, channel, nil
}

func validateText(field, v string, max int) error {
	if len(v) > max {
		return fmt.Errorf("%w: %s longer than %d bytes", errs.ErrInvalidArgument, field, max)
	}
	return nil
}

func scopeName(channel string) string {
	if channel == "" {
		return "global"
	}
	return channel
}
