package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	mw "github.com/kiranshivaraju/chronos/internal/api/middleware"
	"github.com/kiranshivaraju/chronos/internal/store"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

// --- Mock Store ---

// mockStore overrides the key lookups; every other Store method panics.
type mockStore struct {
	store.Store
	keys    []*models.APIKey
	err     error
	touched chan uuid.UUID
}

func (m *mockStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return m.keys, m.err
}

func (m *mockStore) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	if m.touched != nil {
		m.touched <- id
	}
	return nil
}

// --- Mock Cache ---

type mockCache struct {
	counter int64
	err     error
}

func (m *mockCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (m *mockCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (m *mockCache) Delete(_ context.Context, _ ...string) error                       { return nil }
func (m *mockCache) Ping(_ context.Context) error                                      { return nil }
func (m *mockCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	m.counter++
	return m.counter, m.err
}

// --- helpers ---

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func hashKey(t *testing.T, rawKey string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)
}

func keyFor(t *testing.T, rawKey string, userID uuid.UUID, scopes ...string) *models.APIKey {
	t.Helper()
	return &models.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		KeyHash:   hashKey(t, rawKey),
		KeyPrefix: rawKey[:8],
		Scopes:    scopes,
	}
}

func authorized(rawKey string) *http.Request {
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	return req
}

// ========================================
// Auth Middleware Tests
// ========================================

func TestAuth_MissingAuthHeader(t *testing.T) {
	auth := mw.NewAuth(&mockStore{})
	handler := auth.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", errBody(t, w)["code"])
}

func TestAuth_InvalidBearerFormat(t *testing.T) {
	auth := mw.NewAuth(&mockStore{})
	handler := auth.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Basic abc123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_KeyTooShort(t *testing.T) {
	auth := mw.NewAuth(&mockStore{})
	handler := auth.Authenticate(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authorized("short"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_LookupFails(t *testing.T) {
	auth := mw.NewAuth(&mockStore{err: errors.New("db down")})
	handler := auth.Authenticate(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authorized("cr_test1234567890"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestAuth_WrongKey(t *testing.T) {
	rawKey := "cr_test1234567890abcdef"
	ms := &mockStore{keys: []*models.APIKey{keyFor(t, "different_key_entirely", uuid.New(), models.ScopeUser)}}
	handler := mw.NewAuth(ms).Authenticate(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authorized(rawKey))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_ValidKey(t *testing.T) {
	rawKey := "cr_test1234567890abcdef"
	userID := uuid.New()
	key := keyFor(t, rawKey, userID, models.ScopeUser, models.ScopeOperator)
	ms := &mockStore{keys: []*models.APIKey{key}, touched: make(chan uuid.UUID, 1)}

	var (
		gotUserID uuid.UUID
		gotOK     bool
		operator  bool
		admin     bool
	)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, gotOK = mw.GetUserID(r)
		operator = mw.HasScope(r, models.ScopeOperator)
		admin = mw.HasScope(r, models.ScopeAdmin)
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	mw.NewAuth(ms).Authenticate(inner).ServeHTTP(w, authorized(rawKey))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gotOK)
	assert.Equal(t, userID, gotUserID)
	assert.True(t, operator)
	assert.False(t, admin)

	select {
	case id := <-ms.touched:
		assert.Equal(t, key.ID, id)
	case <-time.After(time.Second):
		t.Fatal("last_used_at was not updated")
	}
}

func TestAuth_RequireScope_Allowed(t *testing.T) {
	rawKey := "cr_admin_1234567890abcdef"
	auth := mw.NewAuth(&mockStore{keys: []*models.APIKey{keyFor(t, rawKey, uuid.New(), models.ScopeAdmin)}})
	handler := auth.Authenticate(auth.RequireScope(models.ScopeOperator, models.ScopeAdmin)(okHandler()))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authorized(rawKey))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_RequireScope_Denied(t *testing.T) {
	rawKey := "cr_user__1234567890abcdef"
	auth := mw.NewAuth(&mockStore{keys: []*models.APIKey{keyFor(t, rawKey, uuid.New(), models.ScopeUser)}})
	handler := auth.Authenticate(auth.RequireScope(models.ScopeAdmin)(okHandler()))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authorized(rawKey))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", errBody(t, w)["code"])
}

func TestGenerateKey(t *testing.T) {
	raw, prefix, hash, err := mw.GenerateKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(raw, mw.KeyPrefix))
	assert.Len(t, prefix, 8)
	assert.Equal(t, raw[:8], prefix)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)))

	other, _, _, err := mw.GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, raw, other)
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func withPrefix(req *http.Request, prefix string) *http.Request {
	ctx := context.WithValue(req.Context(), mw.ExportedKeyPrefixKey(), prefix)
	return req.WithContext(ctx)
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	rl := mw.NewRateLimit(&mockCache{}, 60)
	handler := rl.Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withPrefix(httptest.NewRequest("GET", "/test", nil), "cr_test1"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	mc := &mockCache{counter: 60} // next IncrWithExpiry will return 61
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withPrefix(httptest.NewRequest("GET", "/test", nil), "cr_over1"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errBody(t, w)["code"])
}

func TestRateLimit_CacheErrorFailsOpen(t *testing.T) {
	handler := mw.NewRateLimit(&mockCache{err: errors.New("redis down")}, 1).Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withPrefix(httptest.NewRequest("GET", "/test", nil), "cr_down1"))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_NoKeyPrefix_PassThrough(t *testing.T) {
	handler := mw.NewRateLimit(&mockCache{}, 60).Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Recovery Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	w := httptest.NewRecorder()
	mw.Recovery(panicking).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestRecovery_NoPanic(t *testing.T) {
	w := httptest.NewRecorder()
	mw.Recovery(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Logging Middleware Tests
// ========================================

func TestLogger_PassesStatusThrough(t *testing.T) {
	failing := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	w := httptest.NewRecorder()
	mw.Logger(failing).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
}
