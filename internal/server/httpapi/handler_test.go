package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/zkvault/internal/logging"
	"github.com/dmitrijs2005/zkvault/internal/server/auth"
	"github.com/dmitrijs2005/zkvault/internal/server/config"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
	"github.com/dmitrijs2005/zkvault/internal/server/ratelimit"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/zkvault/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	hashH1 = strings.Repeat("ab", 32)
	hashH2 = strings.Repeat("ef", 32)
	saltS1 = strings.Repeat("cd", 32)
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	router   *gin.Engine
	repos    *repomanager.MemoryRepositoryManager
	sessions *services.SessionService
	clock    *testClock
	redis    *miniredis.Miniredis
}

func newTestEnv(t *testing.T, adminPassword string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-signing-secret-0123456789"
	cfg.CORSOrigins = []string{"https://app.example.com"}

	clock := &testClock{t: time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)}
	repos := repomanager.NewMemoryRepositoryManager()

	a, err := services.NewAuthService(repos, cfg, logging.Nop{}, auth.WithClock(clock.Now))
	require.NoError(t, err)
	s := services.NewSessionService(repos, a, cfg, logging.Nop{}, services.WithSessionClock(clock.Now))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := ratelimit.New(rdb, ratelimit.WithClock(clock.Now))

	h := NewHandler(a, s, l, adminPassword, logging.Nop{})
	return &testEnv{
		router:   NewRouter(h, cfg.CORSOrigins, logging.Nop{}),
		repos:    repos,
		sessions: s,
		clock:    clock,
		redis:    mr,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response {
	t.Helper()
	var r response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	return r
}

type tokens struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (e *testEnv) register(t *testing.T, email string) tokens {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/auth/register", gin.H{
		"email": email, "auth_hash": hashH1, "salt": saltS1, "device_name": "Laptop",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var tk tokens
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &tk))
	return tk
}

func (e *testEnv) login(t *testing.T, email, hash string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": email, "auth_hash": hash}, nil)
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestRegister_ReturnsTokensAndSalt(t *testing.T) {
	e := newTestEnv(t, "")

	w := e.do(t, http.MethodPost, "/api/auth/register", gin.H{
		"email": "Alice@Example.com", "auth_hash": hashH1, "salt": saltS1,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		User struct {
			Email string `json:"email"`
		} `json:"user"`
		Salt string `json:"salt"`
		tokens
	}
	r := decode(t, w)
	require.True(t, r.Success)
	require.NoError(t, json.Unmarshal(r.Data, &got))

	assert.Equal(t, "alice@example.com", got.User.Email)
	assert.Equal(t, saltS1, got.Salt)
	assert.NotEmpty(t, got.Token)
	assert.Len(t, got.RefreshToken, 64)
	assert.Equal(t, 900, got.ExpiresIn)
}

func TestRegister_DuplicateAndValidation(t *testing.T) {
	e := newTestEnv(t, "")
	e.register(t, "bob@example.com")

	w := e.do(t, http.MethodPost, "/api/auth/register", gin.H{
		"email": "bob@example.com", "auth_hash": hashH1, "salt": saltS1,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeRegistrationFailed, decode(t, w).Error.Code)

	w = e.do(t, http.MethodPost, "/api/auth/register", gin.H{
		"email": "nope", "auth_hash": hashH1, "salt": saltS1,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, services.CodeInvalidEmail, decode(t, w).Error.Code)
}

func TestSalt_KnownAndDecoy(t *testing.T) {
	e := newTestEnv(t, "")
	e.register(t, "carol@example.com")

	var got struct {
		Salt string `json:"salt"`
	}

	w := e.do(t, http.MethodPost, "/api/auth/salt", gin.H{"email": "carol@example.com"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, saltS1, got.Salt)

	w = e.do(t, http.MethodPost, "/api/auth/salt", gin.H{"email": "ghost@example.com"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Len(t, got.Salt, 64)
	assert.NotEqual(t, saltS1, got.Salt)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	e := newTestEnv(t, "")
	e.register(t, "dave@example.com")

	wrongHash := e.login(t, "dave@example.com", hashH2)
	unknown := e.login(t, "ghost@example.com", hashH1)

	assert.Equal(t, http.StatusUnauthorized, wrongHash.Code)
	assert.Equal(t, wrongHash.Code, unknown.Code)
	assert.Equal(t, wrongHash.Body.String(), unknown.Body.String())
	assert.Equal(t, CodeLoginFailed, decode(t, wrongHash).Error.Code)
}

func TestLogin_BanAfterRepeatedFailures(t *testing.T) {
	e := newTestEnv(t, "")
	e.register(t, "erin@example.com")

	for i := 0; i < 5; i++ {
		w := e.login(t, "erin@example.com", hashH2)
		require.Equal(t, http.StatusUnauthorized, w.Code, "attempt %d", i+1)
		e.clock.Advance(6 * time.Second)
	}

	w := e.login(t, "erin@example.com", hashH1)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	r := decode(t, w)
	assert.Equal(t, ratelimit.ReasonAccountBanned, r.Error.Code)
	assert.Positive(t, r.Error.RetryAfter)
}

func TestLogin_CooldownBetweenFailures(t *testing.T) {
	e := newTestEnv(t, "")
	e.register(t, "fay@example.com")

	require.Equal(t, http.StatusUnauthorized, e.login(t, "fay@example.com", hashH2).Code)

	w := e.login(t, "fay@example.com", hashH1)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, ratelimit.ReasonTooFrequent, decode(t, w).Error.Code)

	e.clock.Advance(6 * time.Second)
	assert.Equal(t, http.StatusOK, e.login(t, "fay@example.com", hashH1).Code)
}

func TestLogin_IPLimit(t *testing.T) {
	e := newTestEnv(t, "")

	for i := 0; i < 10; i++ {
		w := e.login(t, fmt.Sprintf("ghost%d@example.com", i), hashH2)
		require.Equal(t, http.StatusUnauthorized, w.Code, "attempt %d", i+1)
	}

	w := e.login(t, "late@example.com", hashH2)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, ratelimit.ReasonIPRateLimit, decode(t, w).Error.Code)
}

func TestSessionFlow_RefreshRevokeAndLogout(t *testing.T) {
	e := newTestEnv(t, "")
	a := e.register(t, "gina@example.com")

	e.clock.Advance(6 * time.Second)
	w := e.login(t, "gina@example.com", hashH1)
	require.Equal(t, http.StatusOK, w.Code)
	var b tokens
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &b))

	w = e.do(t, http.MethodGet, "/api/auth/heartbeat", nil, bearer(a.Token))
	require.Equal(t, http.StatusOK, w.Code)
	var hb struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &hb))

	w = e.do(t, http.MethodGet, "/api/sessions", nil, bearer(b.Token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "refresh_token")
	var list struct {
		Sessions []struct {
			ID        string `json:"id"`
			IsCurrent bool   `json:"is_current"`
		} `json:"sessions"`
		MaxDevices int `json:"max_devices"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &list))
	require.Len(t, list.Sessions, 2)
	assert.Equal(t, 3, list.MaxDevices)

	// B revokes A.
	w = e.do(t, http.MethodDelete, "/api/sessions/"+hb.SessionID, nil, bearer(b.Token))
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/api/auth/heartbeat", nil, bearer(a.Token))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, CodeSessionInvalid, decode(t, w).Error.Code)

	w = e.do(t, http.MethodPost, "/api/auth/refresh", gin.H{"refresh_token": a.RefreshToken}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, CodeInvalidRefreshToken, decode(t, w).Error.Code)

	w = e.do(t, http.MethodPost, "/api/auth/refresh", gin.H{"refresh_token": b.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPost, "/api/auth/logout", nil, bearer(b.Token))
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/api/auth/heartbeat", nil, bearer(b.Token))
	assert.Equal(t, CodeSessionInvalid, decode(t, w).Error.Code)
}

func TestRevokeSession_OwnAndForeign(t *testing.T) {
	e := newTestEnv(t, "")
	a := e.register(t, "hana@example.com")
	other := e.register(t, "ivan@example.com")

	w := e.do(t, http.MethodGet, "/api/auth/heartbeat", nil, bearer(a.Token))
	var hb struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &hb))

	w = e.do(t, http.MethodDelete, "/api/sessions/"+hb.SessionID, nil, bearer(a.Token))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeCannotLogoutSelf, decode(t, w).Error.Code)

	w = e.do(t, http.MethodDelete, "/api/sessions/"+hb.SessionID, nil, bearer(other.Token))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodDelete, "/api/sessions/does-not-exist", nil, bearer(a.Token))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBearerAuth_Rejections(t *testing.T) {
	e := newTestEnv(t, "")

	w := e.do(t, http.MethodGet, "/api/auth/heartbeat", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, CodeUnauthorized, decode(t, w).Error.Code)

	w = e.do(t, http.MethodGet, "/api/auth/heartbeat", nil, map[string]string{"Authorization": "Basic abc"})
	assert.Equal(t, CodeUnauthorized, decode(t, w).Error.Code)

	w = e.do(t, http.MethodGet, "/api/sessions", nil, bearer("not.a.token"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, CodeInvalidToken, decode(t, w).Error.Code)
}

func TestAdminCleanup(t *testing.T) {
	e := newTestEnv(t, "admin-pass-123")
	e.register(t, "jan@example.com")
	e.clock.Advance(8 * 24 * time.Hour)

	w := e.do(t, http.MethodPost, "/api/admin/cleanup", nil, map[string]string{"X-Admin-Password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/api/admin/cleanup", nil, map[string]string{"X-Admin-Password": "admin-pass-123"})
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Deleted int64 `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, int64(1), got.Deleted)

	all, err := e.repos.Sessions().FindByUserID(context.Background(), mustUser(t, e, "jan@example.com").ID)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAdminGuard_BanAndDisabled(t *testing.T) {
	e := newTestEnv(t, "admin-pass-123")
	for i := 0; i < 5; i++ {
		w := e.do(t, http.MethodPost, "/api/admin/cleanup", nil, map[string]string{"X-Admin-Password": "wrong"})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := e.do(t, http.MethodPost, "/api/admin/cleanup", nil, map[string]string{"X-Admin-Password": "admin-pass-123"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, ratelimit.ReasonAdminBanned, decode(t, w).Error.Code)

	disabled := newTestEnv(t, "")
	w = disabled.do(t, http.MethodPost, "/api/admin/cleanup", nil, map[string]string{"X-Admin-Password": ""})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	e := newTestEnv(t, "")

	w := e.do(t, http.MethodOptions, "/api/auth/login", nil, map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = e.do(t, http.MethodOptions, "/api/auth/login", nil, map[string]string{"Origin": "https://evil.example.com"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRedisDown_IsInternalError(t *testing.T) {
	e := newTestEnv(t, "")
	e.redis.Close()

	w := e.login(t, "kim@example.com", hashH1)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, CodeInternal, decode(t, w).Error.Code)
}

func mustUser(t *testing.T, e *testEnv, email string) *models.User {
	t.Helper()
	u, err := e.repos.Users().GetUserByEmail(context.Background(), email)
	require.NoError(t, err)
	return u
}
