package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/bankcards-api/internal/domain"
)

// UserStore defines the interface for user data persistence.
type UserStore interface {
	// Create saves a new user to the store.
	// The caller MUST have hashed the password into HashedPassword.
	// Returns ErrUsernameExists if the username is already taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetByUsername retrieves a user by their username.
	// Returns ErrUserNotFound if the user does not exist.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)

	// Update replaces the password hash and roles of an existing user.
	// Returns ErrUserNotFound if the user does not exist.
	Update(ctx context.Context, user *domain.User) error

	// Delete removes a user from the store by their ID.
	// Returns ErrUserNotFound if the user does not exist and ErrReferenced
	// if the user still owns cards.
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns one page of users matching filter ordered by username,
	// plus the total count of matching users.
	List(ctx context.Context, filter domain.UserFilter) ([]*domain.User, int64, error)
}
