package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/sendergate/internal/errs"
	"github.com/and161185/sendergate/internal/model"
	"github.com/and161185/sendergate/internal/repository"
)

// AdminService mutates the contact registry. Every mutation is audited and
// announced to the dispatcher.
type AdminService interface {
	// AddContact creates a contact; errs.ErrConflict if the scope is taken.
	AddContact(ctx context.Context, actor string, in model.NewContact) (*model.Contact, error)
	// UpdateContact patches the contact at the exact scope; errs.ErrNotFound if absent.
	UpdateContact(ctx context.Context, actor, senderID, channel string, patch model.ContactPatch) (*model.Contact, error)
	// RemoveContact deletes the contact at the exact scope; errs.ErrNotFound if absent.
	RemoveContact(ctx context.Context, actor, senderID, channel string) error
	// ListContacts returns contacts matching the filter.
	ListContacts(ctx context.Context, f model.ContactFilter) ([]model.Contact, error)
	// Authorize allows the root subject and sovereign contacts.
	Authorize(ctx context.Context, subject, channel string) error
}

type AdminServiceImpl struct {
	contacts    repository.ContactRepository
	audit       AuditService
	events      Events
	rootSubject string
	log         *zap.Logger
}

// NewAdminService constructs AdminService.
func NewAdminService(contacts repository.ContactRepository, audit AuditService, events Events, rootSubject string, log *zap.Logger) *AdminServiceImpl {
	return &AdminServiceImpl{contacts: contacts, audit: audit, events: events, rootSubject: rootSubject, log: log.Named("admin")}
}

func (s *AdminServiceImpl) AddContact(ctx context.Context, actor string, in model.NewContact) (*model.Contact, error) {
	senderID, channel, err := normalizeScope(in.SenderID, in.Channel)
	if err != nil {
		return nil, err
	}
	in.SenderID, in.Channel = senderID, channel
	in.Name, in.Notes = strings.TrimSpace(in.Name), strings.TrimSpace(in.Notes)
	if !in.TrustLevel.Valid() {
		return nil, fmt.Errorf("%w: unknown trust level %d", errs.ErrInvalidArgument, in.TrustLevel)
	}
	if err := errors.Join(validateText("name", in.Name, maxNameLen), validateText("notes", in.Notes, maxNotesLen)); err != nil {
		return nil, err
	}

	c, err := s.contacts.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("add contact: %w", err)
	}
	s.after(ctx, model.ActionContactAdded, *c, c.TrustLevel, actor,
		fmt.Sprintf("added as %s for %s by %s", c.TrustLevel, scopeName(c.Channel), actor),
		map[string]any{"trust_level": c.TrustLevel.String()})
	return c, nil
}

func (s *AdminServiceImpl) UpdateContact(ctx context.Context, actor, senderID, channel string, patch model.ContactPatch) (*model.Contact, error) {
	senderID, channel, err := normalizeScope(senderID, channel)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", errs.ErrInvalidArgument)
	}
	if patch.TrustLevel != nil && !patch.TrustLevel.Valid() {
		return nil, fmt.Errorf("%w: unknown trust level %d", errs.ErrInvalidArgument, *patch.TrustLevel)
	}
	if patch.Name != nil {
		v := strings.TrimSpace(*patch.Name)
		patch.Name = &v
		if err := validateText("name", v, maxNameLen); err != nil {
			return nil, err
		}
	}
	if patch.Notes != nil {
		v := strings.TrimSpace(*patch.Notes)
		patch.Notes = &v
		if err := validateText("notes", v, maxNotesLen); err != nil {
			return nil, err
		}
	}

	up, err := s.contacts.Update(ctx, senderID, channel, patch)
	if err != nil {
		return nil, fmt.Errorf("update contact: %w", err)
	}
	c := up.Contact

	reason := fmt.Sprintf("details updated by %s", actor)
	meta := map[string]any{"trust_level": c.TrustLevel.String()}
	if up.PreviousTrust != c.TrustLevel {
		reason = fmt.Sprintf("trust changed %s -> %s by %s", up.PreviousTrust, c.TrustLevel, actor)
		meta["previous_trust_level"] = up.PreviousTrust.String()
	}
	s.after(ctx, model.ActionContactUpdated, c, up.PreviousTrust, actor, reason, meta)
	return &c, nil
}

func (s *AdminServiceImpl) RemoveContact(ctx context.Context, actor, senderID, channel string) error {
	senderID, channel, err := normalizeScope(senderID, channel)
	if err != nil {
		return err
	}
	c, err := s.contacts.Remove(ctx, senderID, channel)
	if err != nil {
		return fmt.Errorf("remove contact: %w", err)
	}
	s.after(ctx, model.ActionContactRemoved, *c, c.TrustLevel, actor,
		fmt.Sprintf("removed from %s by %s", scopeName(c.Channel), actor),
		map[string]any{"trust_level": c.TrustLevel.String()})
	return nil
}

func (s *AdminServiceImpl) ListContacts(ctx context.Context, f model.ContactFilter) ([]model.Contact, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return nil, fmt.Errorf("%w: negative limit/offset", errs.ErrInvalidArgument)
	}
	if f.TrustLevel != nil && !f.TrustLevel.Valid() {
		return nil, fmt.Errorf("%w: unknown trust level %d", errs.ErrInvalidArgument, *f.TrustLevel)
	}
	f.Channel = strings.TrimSpace(f.Channel)
	return s.contacts.List(ctx, f)
}

// Authorize fails closed: a registry error denies access.
func (s *AdminServiceImpl) Authorize(ctx context.Context, subject, channel string) error {
	if subject == "" {
		return errs.ErrUnauthorized
	}
	if subject == s.rootSubject {
		return nil
	}
	c, err := s.contacts.Resolve(ctx, subject, strings.TrimSpace(channel))
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return errs.ErrForbidden
	case err != nil:
		return fmt.Errorf("authorize: %w", err)
	case !c.TrustLevel.AtLeast(model.TrustSovereign):
		return errs.ErrForbidden
	}
	return nil
}

// after records the audit entry and submits the change event. Neither failure
// undoes the mutation.
func (s *AdminServiceImpl) after(ctx context.Context, action model.Action, c model.Contact, previous model.TrustLevel, actor, reason string, meta map[string]any) {
	meta["actor"] = actor
	raw, _ := json.Marshal(meta)
	_, _ = s.audit.Record(ctx, model.AuditEntry{
		Action:    action,
		SenderID:  c.SenderID,
		Channel:   c.Channel,
		ContactID: uuid.NullUUID{UUID: c.ID, Valid: true},
		Reason:    reason,
		Metadata:  raw,
	})
	if err := s.events.ContactChanged(action, c, previous, actor); err != nil {
		s.log.Warn("contact event not dispatched",
			zap.String("action", string(action)),
			zap.String("sender_id", c.SenderID),
			zap.Error(err),
		)
	}
}
