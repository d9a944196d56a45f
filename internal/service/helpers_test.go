package service_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/bankcards-api/internal/config"
	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/phrazzld/bankcards-api/internal/platform/memory"
	"github.com/phrazzld/bankcards-api/internal/platform/metrics"
	"github.com/phrazzld/bankcards-api/internal/service"
	"github.com/phrazzld/bankcards-api/internal/service/auth"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var startTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// testClock is a settable clock safe for concurrent reads.
type testClock struct {
	nanos atomic.Int64
}

func newTestClock(t time.Time) *testClock {
	c := &testClock{}
	c.Set(t)
	return c
}

func (c *testClock) Now() time.Time {
	return time.Unix(0, c.nanos.Load()).UTC()
}

func (c *testClock) Set(t time.Time) {
	c.nanos.Store(t.UnixNano())
}

func (c *testClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

type fixture struct {
	db        *memory.DB
	clock     *testClock
	metrics   *metrics.Metrics
	cards     service.CardService
	transfers service.TransferService
	users     service.UserService
	auth      service.AuthService
	owner     *domain.User
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:            "test-jwt-secret-that-is-32-chars-long",
		TokenLifetimeMinutes: 60,
		BCryptCost:           4,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := discardLogger()
	db := memory.New(logger)
	clock := newTestClock(startTime)
	m := metrics.New()
	opts := service.CardServiceOptions{
		Clock:       service.NewClockFunc(clock.Now, time.UTC),
		LockTimeout: 2 * time.Second,
		Metrics:     m,
	}
	hasher := auth.NewBcryptVerifier(4)

	cards, err := service.NewCardService(db.Cards(), db.Users(), opts, logger)
	require.NoError(t, err)
	transfers, err := service.NewTransferService(db.Cards(), db.Transfers(),
		service.TransferServiceOptions{CardServiceOptions: opts}, logger)
	require.NoError(t, err)
	users, err := service.NewUserService(db.Users(), db.Cards(), hasher, logger)
	require.NoError(t, err)

	tokens, err := auth.NewJWTService(testAuthConfig())
	require.NoError(t, err)
	authSvc, err := service.NewAuthService(users, db.Users(), hasher, tokens, opts.Clock, logger)
	require.NoError(t, err)

	owner, err := users.CreateUser(context.Background(), "alice", "password1", nil)
	require.NoError(t, err)

	return &fixture{
		db:        db,
		clock:     clock,
		metrics:   m,
		cards:     cards,
		transfers: transfers,
		users:     users,
		auth:      authSvc,
		owner:     owner,
	}
}

// createCard issues a card for ownerID expiring two years from now.
func (f *fixture) createCard(t *testing.T, ownerID uuid.UUID, number, balance string) *domain.Card {
	t.Helper()
	return f.createCardExpiring(t, ownerID, number, balance, f.clock.Now().AddDate(2, 0, 0))
}

func (f *fixture) createCardExpiring(
	t *testing.T,
	ownerID uuid.UUID,
	number, balance string,
	expiry time.Time,
) *domain.Card {
	t.Helper()
	b := decimal.RequireFromString(balance)
	details, err := f.cards.CreateCard(context.Background(), service.CreateCardInput{
		Number:     number,
		ExpiryDate: expiry,
		Balance:    &b,
		OwnerID:    ownerID,
	})
	require.NoError(t, err)
	return details.Card
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	details, err := f.cards.GetCard(context.Background(), id)
	require.NoError(t, err)
	return details.Card.Balance
}

func (f *fixture) createUser(t *testing.T, username string) *domain.User {
	t.Helper()
	user, err := f.users.CreateUser(context.Background(), username, "password1", nil)
	require.NoError(t, err)
	return user
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
