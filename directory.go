package login

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Directory resolves human entered usernames to identifiers
type Directory struct {
	users  Users
	logger Logger
}

// NewDirectory will create a new Directory
func NewDirectory(users Users) *Directory {
	return &Directory{
		users:  users,
		logger: defLogger{},
	}
}

func (d *Directory) WithLogger(l Logger) *Directory {
	d.logger = normalizeLogger(l)
	return d
}

// ResolveUsername returns the id for name. Names that could never have
// been created are rejected without touching the store.
func (d *Directory) ResolveUsername(ctx context.Context, name string) (uuid.UUID, error) {
	name = strings.TrimSpace(name)
	if err := ValidateUsername(name); err != nil {
		return GuestID, userNotFound(map[string]any{"username": name})
	}

	user, err := d.users.GetByUsername(ctx, name)
	if err != nil {
		if !IsUserNotFound(err) {
			d.logger.Error("resolve username lookup failed", "error", err)
		}
		return GuestID, err
	}

	return user.ID, nil
}

// Exists reports whether a persisted record exists for id
func (d *Directory) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	if id == GuestID {
		return false, nil
	}
	return d.users.Exists(ctx, id)
}
