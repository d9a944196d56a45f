package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/bankcards-api/internal/api"
	"github.com/phrazzld/bankcards-api/internal/api/middleware"
	"github.com/phrazzld/bankcards-api/internal/config"
	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/phrazzld/bankcards-api/internal/platform/memory"
	"github.com/phrazzld/bankcards-api/internal/service"
	"github.com/phrazzld/bankcards-api/internal/service/auth"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// testServer runs the /api routes against the in-memory store.
type testServer struct {
	*httptest.Server
	cards      service.CardService
	users      service.UserService
	auth       service.AuthService
	adminToken string
	userToken  string
	user       *domain.User
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := discardLogger()
	db := memory.New(logger)
	opts := service.CardServiceOptions{
		Clock:       service.NewClock(time.UTC),
		LockTimeout: 2 * time.Second,
	}
	hasher := auth.NewBcryptVerifier(4)

	cards, err := service.NewCardService(db.Cards(), db.Users(), opts, logger)
	require.NoError(t, err)
	transfers, err := service.NewTransferService(db.Cards(), db.Transfers(),
		service.TransferServiceOptions{CardServiceOptions: opts}, logger)
	require.NoError(t, err)
	users, err := service.NewUserService(db.Users(), db.Cards(), hasher, logger)
	require.NoError(t, err)
	tokens, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:            "test-jwt-secret-that-is-32-chars-long",
		TokenLifetimeMinutes: 60,
		BCryptCost:           4,
	})
	require.NoError(t, err)
	authSvc, err := service.NewAuthService(users, db.Users(), hasher, tokens, opts.Clock, logger)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware(logger))
	api.RegisterRoutes(r, api.Handlers{
		Auth:      api.NewAuthHandler(authSvc, logger),
		Cards:     api.NewCardHandler(cards, logger),
		AdminCard: api.NewAdminCardHandler(cards, logger),
		Transfers: api.NewTransferHandler(transfers, logger),
		Users:     api.NewUserHandler(users, logger),
	}, middleware.NewAuthMiddleware(tokens))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	_, err = users.CreateUser(ctx, "admin", "password1", []domain.Role{domain.RoleAdmin})
	require.NoError(t, err)
	admin, err := authSvc.Login(ctx, "admin", "password1")
	require.NoError(t, err)
	user, err := authSvc.Register(ctx, "alice", "password1")
	require.NoError(t, err)

	return &testServer{
		Server:     srv,
		cards:      cards,
		users:      users,
		auth:       authSvc,
		adminToken: admin.AccessToken,
		userToken:  user.AccessToken,
		user:       user.User,
	}
}

// do sends a JSON request and decodes a JSON response into out when out is non-nil.
func (s *testServer) do(t *testing.T, method, path, token string, body, out any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			b, err := json.Marshal(body)
			require.NoError(t, err)
			raw = string(b)
		}
		reader = bytes.NewBufferString(raw)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// createCard issues a card for ownerID that expires in two years.
func (s *testServer) createCard(t *testing.T, ownerID uuid.UUID, number, balance string) *domain.Card {
	t.Helper()
	b := decimal.RequireFromString(balance)
	details, err := s.cards.CreateCard(context.Background(), service.CreateCardInput{
		Number:     number,
		ExpiryDate: time.Now().AddDate(2, 0, 0),
		Balance:    &b,
		OwnerID:    ownerID,
	})
	require.NoError(t, err)
	return details.Card
}

// errorBody mirrors shared.ErrorResponse on the wire.
type errorBody struct {
	Error   string         `json:"error"`
	TraceID string         `json:"trace_id"`
	Details map[string]any `json:"details"`
}
