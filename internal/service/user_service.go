package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/phrazzld/bankcards-api/internal/service/auth"
	"github.com/phrazzld/bankcards-api/internal/store"
)

// UpdateUserInput carries the optional fields of a user update.
// A nil Roles leaves the roles unchanged; an empty, non-nil Roles is rejected.
type UpdateUserInput struct {
	Password *string
	Roles    []domain.Role
}

// UserService manages the user directory
type UserService interface {
	// CreateUser creates a new user. An empty role list defaults to USER.
	CreateUser(ctx context.Context, username, password string, roles []domain.Role) (*domain.User, error)

	// GetUser retrieves a user by their ID
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	// ResolveOwner returns the user who may own cards, or an OwnerNotFound error
	ResolveOwner(ctx context.Context, ownerID uuid.UUID) (*domain.User, error)

	// ListUsers returns one page of users matching filter
	ListUsers(ctx context.Context, filter domain.UserFilter) (domain.Page[*domain.User], error)

	// UpdateUser replaces the password and/or roles of a user
	UpdateUser(ctx context.Context, userID uuid.UUID, in UpdateUserInput) (*domain.User, error)

	// DeleteUser deletes a user who owns no cards
	DeleteUser(ctx context.Context, userID uuid.UUID) error

	// UserStats summarises the cards owned by a user
	UserStats(ctx context.Context, userID uuid.UUID) (*domain.UserStats, error)
}

// UserServiceImpl implements the UserService interface
type UserServiceImpl struct {
	userStore store.UserStore
	cardStore store.CardStore
	hasher    auth.PasswordHasher
	logger    *slog.Logger
}

// NewUserService creates a new UserService
func NewUserService(
	userStore store.UserStore,
	cardStore store.CardStore,
	hasher auth.PasswordHasher,
	logger *slog.Logger,
) (UserService, error) {
	if userStore == nil {
		return nil, domain.NewValidationError("userStore", "cannot be nil", domain.ErrValidation)
	}
	if cardStore == nil {
		return nil, domain.NewValidationError("cardStore", "cannot be nil", domain.ErrValidation)
	}
	if hasher == nil {
		return nil, domain.NewValidationError("hasher", "cannot be nil", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &UserServiceImpl{
		userStore: userStore,
		cardStore: cardStore,
		hasher:    hasher,
		logger:    logger.With("component", "user_service"),
	}, nil
}

// CreateUser validates, hashes the password and stores a new user
func (s *UserServiceImpl) CreateUser(
	ctx context.Context,
	username, password string,
	roles []domain.Role,
) (*domain.User, error) {
	user, err := domain.NewUser(username, password, roles)
	if err != nil {
		return nil, userValidationError(err)
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error("failed to hash password",
			"error", err,
			"username", username)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	user.HashedPassword = hashed
	user.Password = ""

	if err := s.userStore.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrUsernameExists) {
			s.logger.Debug("attempted to create user with existing username",
				"username", username)
		} else {
			s.logger.Error("failed to save user",
				"error", err,
				"username", username)
		}
		return nil, translateUserError("create user", err)
	}

	s.logger.Info("user created",
		"user_id", user.ID,
		"username", user.Username,
		"roles", user.RoleStrings())

	return user, nil
}

// GetUser retrieves a user by their ID
func (s *UserServiceImpl) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.userStore.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			s.logger.Error("failed to retrieve user",
				"error", err,
				"user_id", userID)
		}
		return nil, translateUserError("get user", err)
	}
	return user, nil
}

// ResolveOwner retrieves a card owner; an unknown ID is reported as OwnerNotFound
func (s *UserServiceImpl) ResolveOwner(ctx context.Context, ownerID uuid.UUID) (*domain.User, error) {
	user, err := s.userStore.GetByID(ctx, ownerID)
	if err != nil {
		return nil, translateStoreError("resolve owner", err)
	}
	return user, nil
}

// ListUsers returns one page of users
func (s *UserServiceImpl) ListUsers(
	ctx context.Context,
	filter domain.UserFilter,
) (domain.Page[*domain.User], error) {
	filter.PageRequest = domain.NewPageRequest(filter.Page, filter.Size)

	users, total, err := s.userStore.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list users", "error", err)
		return domain.Page[*domain.User]{}, translateUserError("list users", err)
	}
	return domain.NewPage(users, filter.PageRequest, total), nil
}

// UpdateUser retrieves the full user, applies the provided fields and
// passes the complete user back to the store
func (s *UserServiceImpl) UpdateUser(
	ctx context.Context,
	userID uuid.UUID,
	in UpdateUserInput,
) (*domain.User, error) {
	const op = "update user"

	if in.Password != nil {
		if err := domain.ValidatePassword(*in.Password); err != nil {
			return nil, userValidationError(err)
		}
	}
	if in.Roles != nil {
		if len(in.Roles) == 0 {
			return nil, domain.NewValidationError("roles", "at least one role is required", nil)
		}
		for _, r := range in.Roles {
			if _, err := domain.ParseRole(string(r)); err != nil {
				return nil, userValidationError(err)
			}
		}
	}

	user, err := s.userStore.GetByID(ctx, userID)
	if err != nil {
		return nil, translateUserError(op, err)
	}

	if in.Password != nil {
		hashed, err := s.hasher.Hash(*in.Password)
		if err != nil {
			s.logger.Error("failed to hash password",
				"error", err,
				"user_id", userID)
			return nil, fmt.Errorf("failed to update user: %w", err)
		}
		user.HashedPassword = hashed
	}
	if in.Roles != nil {
		user.Roles = append([]domain.Role(nil), in.Roles...)
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.userStore.Update(ctx, user); err != nil {
		s.logger.Error("failed to update user",
			"error", err,
			"user_id", userID)
		return nil, translateUserError(op, err)
	}

	s.logger.Info("user updated",
		"user_id", userID,
		"password_changed", in.Password != nil,
		"roles", user.RoleStrings())

	return user, nil
}

// DeleteUser deletes a user by their ID
func (s *UserServiceImpl) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	if err := s.userStore.Delete(ctx, userID); err != nil {
		if errors.Is(err, store.ErrReferenced) {
			s.logger.Debug("refused to delete user who still owns cards",
				"user_id", userID)
		} else if !errors.Is(err, store.ErrUserNotFound) {
			s.logger.Error("failed to delete user",
				"error", err,
				"user_id", userID)
		}
		return translateUserError("delete user", err)
	}

	s.logger.Info("user deleted", "user_id", userID)
	return nil
}

// UserStats counts a user's cards by stored status and sums their balances
func (s *UserServiceImpl) UserStats(ctx context.Context, userID uuid.UUID) (*domain.UserStats, error) {
	user, err := s.userStore.GetByID(ctx, userID)
	if err != nil {
		return nil, translateUserError("user stats", err)
	}

	summary, err := s.cardStore.SummarizeOwner(ctx, userID)
	if err != nil {
		return nil, translateUserError("user stats", err)
	}

	return &domain.UserStats{
		UserID:       user.ID,
		Username:     user.Username,
		TotalCards:   summary.Total,
		ActiveCards:  summary.Active,
		BlockedCards: summary.Blocked,
		ExpiredCards: summary.Expired,
		TotalBalance: summary.TotalBalance,
	}, nil
}

// translateUserError is translateStoreError for operations where the user
// is the subject rather than a card owner.
func translateUserError(op string, err error) error {
	if errors.Is(err, store.ErrUserNotFound) {
		return domain.NewCardError(op, domain.ErrUserNotFound, "")
	}
	return translateStoreError(op, err)
}

// userValidationError attaches the offending field to a user validation failure.
func userValidationError(err error) error {
	field := "user"
	switch {
	case errors.Is(err, domain.ErrInvalidUsername):
		field = "username"
	case errors.Is(err, domain.ErrEmptyPassword),
		errors.Is(err, domain.ErrPasswordTooShort),
		errors.Is(err, domain.ErrPasswordTooLong):
		field = "password"
	case errors.Is(err, domain.ErrInvalidRole):
		field = "roles"
	}
	return domain.NewValidationError(field, "invalid value", err)
}
