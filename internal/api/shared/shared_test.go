package shared

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/bankcards-api/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))

	traced := SetTraceID(ctx)
	id := GetTraceID(traced)
	assert.Len(t, id, 32)
	_, err := hex.DecodeString(id)
	assert.NoError(t, err)
	assert.Empty(t, GetTraceID(ctx), "parent context must stay untouched")

	assert.Equal(t, "abc-123", GetTraceID(WithTraceID(ctx, "abc-123")))
	assert.Len(t, GetTraceID(WithTraceID(ctx, "has space")), 32)
	assert.Len(t, GetTraceID(WithTraceID(ctx, strings.Repeat("a", 65))), 32)

	assert.Empty(t, GetTraceID(context.WithValue(ctx, TraceIDKey, 123)))
}

func TestGenerateTraceIDUnique(t *testing.T) {
	t.Parallel()
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := generateTraceID()
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestClaimsContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, ok := GetUserID(ctx)
	assert.False(t, ok)

	_, ok = GetUserID(WithClaims(ctx, &auth.Claims{}))
	assert.False(t, ok, "nil user id is not an authenticated caller")

	id := uuid.New()
	got, ok := GetUserID(WithClaims(ctx, &auth.Claims{UserID: id}))
	assert.True(t, ok)
	assert.Equal(t, id, got)
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()
	type payload struct {
		Name string `json:"name" validate:"required,min=2"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"ok"}`, false},
		{"trailing comma", `{"name":"ok",}`, true},
		{"unknown field", `{"name":"ok","extra":1}`, true},
		{"two documents", `{"name":"ok"}{"name":"again"}`, true},
		{"empty", ``, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var p payload
			err := DecodeJSON(req, &p)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, ValidateRequest(&p))
		})
	}

	assert.Error(t, ValidateRequest(&payload{Name: "x"}))
}

func TestRespondWithErrorAndLog(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/api/cards", nil)
	req = req.WithContext(WithTraceID(req.Context(), "trace-1"))
	rec := httptest.NewRecorder()

	RespondWithErrorAndLog(rec, req, http.StatusUnprocessableEntity, "Insufficient funds",
		assert.AnError, WithDetails(map[string]any{"available": "1.00"}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Insufficient funds", body["error"])
	assert.Equal(t, "trace-1", body["trace_id"])
	assert.Equal(t, map[string]any{"available": "1.00"}, body["details"])
	assert.NotContains(t, body, "code")
}

func TestRespondWithError_NoDetails(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	RespondWithError(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusNotFound, "Card not found")

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Card not found", body["error"])
	assert.NotContains(t, body, "details")
	assert.NotContains(t, body, "trace_id")
}
