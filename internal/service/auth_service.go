package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/phrazzld/bankcards-api/internal/platform/logger"
	"github.com/phrazzld/bankcards-api/internal/service/auth"
	"github.com/phrazzld/bankcards-api/internal/store"
)

// AuthResult is returned by a successful registration or login.
type AuthResult struct {
	User        *domain.User
	AccessToken string
	ExpiresAt   time.Time
}

// AuthService issues access tokens.
type AuthService interface {
	// Register creates a USER account and returns a token for it.
	Register(ctx context.Context, username, password string) (*AuthResult, error)

	// Login checks the credentials and returns a token.
	// Unknown users and wrong passwords both fail with ErrInvalidCredentials.
	Login(ctx context.Context, username, password string) (*AuthResult, error)
}

type authServiceImpl struct {
	users    UserService
	store    store.UserStore
	verifier auth.PasswordVerifier
	tokens   auth.JWTService
	clock    Clock
	logger   *slog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	users UserService,
	userStore store.UserStore,
	verifier auth.PasswordVerifier,
	tokens auth.JWTService,
	clock Clock,
	logger *slog.Logger,
) (AuthService, error) {
	if users == nil {
		return nil, domain.NewValidationError("users", "cannot be nil", domain.ErrValidation)
	}
	if userStore == nil {
		return nil, domain.NewValidationError("userStore", "cannot be nil", domain.ErrValidation)
	}
	if verifier == nil {
		return nil, domain.NewValidationError("verifier", "cannot be nil", domain.ErrValidation)
	}
	if tokens == nil {
		return nil, domain.NewValidationError("tokens", "cannot be nil", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &authServiceImpl{
		users:    users,
		store:    userStore,
		verifier: verifier,
		tokens:   tokens,
		clock:    clock,
		logger:   logger.With(slog.String("component", "auth_service")),
	}, nil
}

// Register implements AuthService.Register.
func (s *authServiceImpl) Register(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.users.CreateUser(ctx, username, password, []domain.Role{domain.RoleUser})
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, user)
}

// Login implements AuthService.Login.
func (s *authServiceImpl) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	const op = "login"
	log := logger.FromContextOrDefault(ctx, s.logger)

	user, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			log.Debug("login attempt for unknown user")
			return nil, domain.NewCardError(op, domain.ErrInvalidCredentials, "")
		}
		return nil, translateStoreError(op, err)
	}

	if err := s.verifier.Compare(user.HashedPassword, password); err != nil {
		log.Debug("login attempt with wrong password",
			slog.String("user_id", user.ID.String()))
		return nil, domain.NewCardError(op, domain.ErrInvalidCredentials, "")
	}

	return s.issue(ctx, user)
}

func (s *authServiceImpl) issue(ctx context.Context, user *domain.User) (*AuthResult, error) {
	issuedAt := s.clock.Now()
	token, err := s.tokens.GenerateToken(ctx, user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		User:        user,
		AccessToken: token,
		ExpiresAt:   issuedAt.Add(s.tokens.TokenLifetime()),
	}, nil
}
