// Package repository declares persistence contracts used by services.
package repository

import (
	"context"

	"github.com/and161185/sendergate/internal/model"
)

// ContactRepository stores trust assignments keyed by (sender_id, channel).
type ContactRepository interface {
	// Resolve returns the channel-specific contact if one exists, else the global one.
	// An empty channel resolves only the global record. Returns errs.ErrNotFound if neither exists.
	Resolve(ctx context.Context, senderID, channel string) (*model.Contact, error)

	// Create inserts a contact; errs.ErrConflict if the exact scope is taken.
	Create(ctx context.Context, c model.NewContact) (*model.Contact, error)

	// Update patches the contact at the exact scope; errs.ErrNotFound if absent.
	Update(ctx context.Context, senderID, channel string, patch model.ContactPatch) (*model.ContactUpdate, error)

	// Remove deletes the contact at the exact scope and returns it; errs.ErrNotFound if absent.
	Remove(ctx context.Context, senderID, channel string) (*model.Contact, error)

	// List returns contacts matching the filter.
	List(ctx context.Context, f model.ContactFilter) ([]model.Contact, error)
}
