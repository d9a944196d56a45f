package api_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/bankcards-api/internal/api"
	"github.com/phrazzld/bankcards-api/internal/api/middleware"
	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthHandler(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	t.Run("register", func(t *testing.T) {
		var out api.AuthResponse
		resp := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
			"username": "bob", "password": "password1", "confirmPassword": "password1",
		}, &out)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.NotEmpty(t, out.AccessToken)
		assert.Equal(t, []string{"USER"}, out.Roles)
		_, err := time.Parse(time.RFC3339, out.ExpiresAt)
		assert.NoError(t, err)
	})

	t.Run("register with mismatched confirmation", func(t *testing.T) {
		var out errorBody
		resp := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
			"username": "carol", "password": "password1", "confirmPassword": "password2",
		}, &out)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "confirmPassword", out.Details["field"])
	})

	t.Run("register taken username", func(t *testing.T) {
		var out errorBody
		resp := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
			"username": "alice", "password": "password1", "confirmPassword": "password1",
		}, &out)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "USERNAME_TAKEN", out.Details["code"])
	})

	t.Run("login", func(t *testing.T) {
		var out api.AuthResponse
		resp := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"username": "alice", "password": "password1",
		}, &out)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, s.user.ID, out.UserID)
	})

	t.Run("login wrong password", func(t *testing.T) {
		var out errorBody
		resp := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"username": "alice", "password": "wrong-password",
		}, &out)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Invalid username or password", out.Error)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/api/auth/login", "", `{"username": "alice",`, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown field", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/api/auth/login", "",
			`{"username": "alice", "password": "password1", "admin": true}`, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRoutes_Authorization(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/api/cards", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/api/cards", "not-a-jwt", http.StatusUnauthorized},
		{"user on own cards", http.MethodGet, "/api/cards", s.userToken, http.StatusOK},
		{"user on admin route", http.MethodGet, "/api/admin/cards", s.userToken, http.StatusForbidden},
		{"admin on admin route", http.MethodGet, "/api/admin/cards", s.adminToken, http.StatusOK},
		{"admin users", http.MethodGet, "/api/admin/users", s.adminToken, http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := s.do(t, tc.method, tc.path, tc.token, nil, nil)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestCardRoutes(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	var created api.CardResponse
	resp := s.do(t, http.MethodPost, "/api/admin/cards", s.adminToken, map[string]any{
		"number":         "4000000000001111",
		"expiryDate":     time.Now().AddDate(2, 0, 0).Format(domain.DateLayout),
		"initialBalance": "500",
		"ownerId":        s.user.ID,
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "4000000000001111", created.Number)
	assert.Equal(t, "**** **** **** 1111", created.MaskedNumber)
	assert.Equal(t, "500.00", created.Balance)
	assert.Equal(t, "ACTIVE", created.Status)
	assert.Equal(t, "alice", created.OwnerDisplayName)

	t.Run("duplicate number", func(t *testing.T) {
		var out errorBody
		resp := s.do(t, http.MethodPost, "/api/admin/cards", s.adminToken, map[string]any{
			"number":     "4000000000001111",
			"expiryDate": time.Now().AddDate(1, 0, 0).Format(domain.DateLayout),
			"ownerId":    s.user.ID,
		}, &out)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "DUPLICATE_CARD_NUMBER", out.Details["code"])
		assert.NotContains(t, out.Error, "4000000000001111")
	})

	t.Run("past expiry", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/api/admin/cards", s.adminToken, map[string]any{
			"number":     "4000000000009999",
			"expiryDate": "2001-01-01",
			"ownerId":    s.user.ID,
		}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown owner", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/api/admin/cards", s.adminToken, map[string]any{
			"number":     "4000000000009999",
			"expiryDate": time.Now().AddDate(1, 0, 0).Format(domain.DateLayout),
			"ownerId":    uuid.New(),
		}, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("owner sees masked number", func(t *testing.T) {
		var out api.CardResponse
		resp := s.do(t, http.MethodGet, "/api/cards/"+created.ID.String(), s.userToken, nil, &out)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "**** **** **** 1111", out.Number)
	})

	t.Run("balance", func(t *testing.T) {
		var out api.BalanceResponse
		resp := s.do(t, http.MethodGet, "/api/cards/"+created.ID.String()+"/balance", s.userToken, nil, &out)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "500.00", out.Balance)
	})

	t.Run("foreign card is not found", func(t *testing.T) {
		bob, err := s.auth.Register(context.Background(), "bob", "password1")
		require.NoError(t, err)
		resp := s.do(t, http.MethodGet, "/api/cards/"+created.ID.String(), bob.AccessToken, nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("invalid id", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/api/cards/not-a-uuid", s.userToken, nil, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("update with lowercase status", func(t *testing.T) {
		var out errorBody
		resp := s.do(t, http.MethodPut, "/api/admin/cards/"+created.ID.String(), s.adminToken,
			map[string]any{"status": "blocked"}, &out)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_STATUS", out.Details["code"])
	})

	t.Run("block request then admin activate", func(t *testing.T) {
		var blocked api.CardResponse
		resp := s.do(t, http.MethodPost, "/api/cards/"+created.ID.String()+"/block-request", s.userToken,
			map[string]string{"reason": "lost"}, &blocked)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "BLOCKED", blocked.Status)

		var active api.CardResponse
		resp = s.do(t, http.MethodPost, "/api/admin/cards/"+created.ID.String()+"/activate", s.adminToken,
			nil, &active)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ACTIVE", active.Status)
	})

	t.Run("block request needs a reason", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/api/cards/"+created.ID.String()+"/block-request", s.userToken,
			map[string]string{}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestCardRoutes_List(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	for i := 1; i <= 3; i++ {
		s.createCard(t, s.user.ID, fmt.Sprintf("400000000000%04d", i*1111), "10")
	}
	blocked := s.createCard(t, s.user.ID, "4000000000005555", "10")
	_, err := s.cards.BlockCard(context.Background(), blocked.ID)
	require.NoError(t, err)

	var page api.PageResponse[api.CardResponse]
	resp := s.do(t, http.MethodGet, "/api/cards?size=2&sortBy=number&sortDirection=ASC", s.userToken, nil, &page)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(4), page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Content, 2)
	assert.Equal(t, "**** **** **** 1111", page.Content[0].MaskedNumber)
	assert.True(t, page.First)

	resp = s.do(t, http.MethodGet, "/api/cards?status=BLOCKED", s.userToken, nil, &page)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, page.Content, 1)
	assert.Equal(t, blocked.ID, page.Content[0].ID)

	resp = s.do(t, http.MethodGet, "/api/cards?search=**22-22", s.userToken, nil, &page)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, page.Content, 1)
	assert.Equal(t, "**** **** **** 2222", page.Content[0].MaskedNumber)

	resp = s.do(t, http.MethodGet, "/api/cards?status=active", s.userToken, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/admin/cards?ownerId="+uuid.NewString(), s.adminToken, nil, &page)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, page.Content)
}

func TestTransferRoutes(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	a := s.createCard(t, s.user.ID, "4000000000001111", "500")
	b := s.createCard(t, s.user.ID, "4000000000002222", "300")

	var receipt api.TransferResponse
	resp := s.do(t, http.MethodPost, "/api/transfers", s.userToken, map[string]any{
		"fromCardId":  a.ID,
		"toCardId":    b.ID,
		"amount":      "100",
		"description": "rent",
	}, &receipt)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "100.00", receipt.Amount)
	assert.Equal(t, "COMPLETED", receipt.Status)
	assert.Equal(t, "**** **** **** 1111", receipt.FromMasked)
	assert.Equal(t, "**** **** **** 2222", receipt.ToMasked)

	t.Run("insufficient funds reports available balance", func(t *testing.T) {
		var out errorBody
		resp := s.do(t, http.MethodPost, "/api/transfers", s.userToken, map[string]any{
			"fromCardId": a.ID, "toCardId": b.ID, "amount": "1000",
		}, &out)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, "INSUFFICIENT_FUNDS", out.Details["code"])
		assert.Equal(t, "400.00", out.Details["available"])
		assert.NotEmpty(t, out.TraceID)
		assert.Equal(t, out.TraceID, resp.Header.Get(middleware.TraceIDHeader))
	})

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"same card", map[string]any{"fromCardId": a.ID, "toCardId": a.ID, "amount": "1"},
			http.StatusUnprocessableEntity, "SAME_CARD_TRANSFER"},
		{"zero amount", map[string]any{"fromCardId": a.ID, "toCardId": b.ID, "amount": "0"},
			http.StatusBadRequest, "INVALID_AMOUNT"},
		{"too large", map[string]any{"fromCardId": a.ID, "toCardId": b.ID, "amount": "1000001"},
			http.StatusUnprocessableEntity, "AMOUNT_TOO_LARGE"},
		{"unknown card", map[string]any{"fromCardId": uuid.New(), "toCardId": b.ID, "amount": "1"},
			http.StatusNotFound, "CARD_NOT_FOUND"},
		{"missing amount", map[string]any{"fromCardId": a.ID, "toCardId": b.ID},
			http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out errorBody
			resp := s.do(t, http.MethodPost, "/api/transfers", s.userToken, tc.body, &out)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.code, out.Details["code"])
		})
	}

	t.Run("list", func(t *testing.T) {
		var page api.PageResponse[api.TransferResponse]
		resp := s.do(t, http.MethodGet, "/api/transfers", s.userToken, nil, &page)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, page.Content, 1)
		assert.Equal(t, receipt.TransactionID, page.Content[0].TransactionID)
		assert.Equal(t, "rent", page.Content[0].Description)
	})
}

func TestUserRoutes(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	var created api.UserResponse
	resp := s.do(t, http.MethodPost, "/api/admin/users", s.adminToken, map[string]any{
		"username": "carol", "password": "password1", "roles": []string{"USER", "ADMIN"},
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, []string{"USER", "ADMIN"}, created.Roles)

	resp = s.do(t, http.MethodPost, "/api/admin/users", s.adminToken, map[string]any{
		"username": "dave", "password": "password1", "roles": []string{"admin"},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var page api.PageResponse[api.UserResponse]
	resp = s.do(t, http.MethodGet, "/api/admin/users?role=ADMIN", s.adminToken, nil, &page)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(2), page.TotalElements)

	var updated api.UserResponse
	resp = s.do(t, http.MethodPut, "/api/admin/users/"+created.ID.String(), s.adminToken,
		map[string]any{"roles": []string{"USER"}}, &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"USER"}, updated.Roles)

	s.createCard(t, s.user.ID, "4000000000001111", "12.5")
	var stats api.UserStatsResponse
	resp = s.do(t, http.MethodGet, "/api/admin/users/"+s.user.ID.String()+"/stats", s.adminToken, nil, &stats)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, stats.TotalCards)
	assert.Equal(t, "12.50", stats.TotalBalance)

	resp = s.do(t, http.MethodDelete, "/api/admin/users/"+s.user.ID.String(), s.adminToken, nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "/api/admin/users/"+created.ID.String(), s.adminToken, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/admin/users/"+created.ID.String(), s.adminToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
