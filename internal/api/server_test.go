package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/TheMich157/whitelisthub/internal/audit"
	"github.com/TheMich157/whitelisthub/internal/clock"
	"github.com/TheMich157/whitelisthub/internal/health"
	"github.com/TheMich157/whitelisthub/internal/logging"
	"github.com/TheMich157/whitelisthub/internal/mainloop"
	"github.com/TheMich157/whitelisthub/internal/scheduler"
	"github.com/TheMich157/whitelisthub/internal/whitelist"
)

const testKey = "test-key"

type testEnv struct {
	srv   *Server
	loop  *mainloop.Loop
	audit *audit.Store
	clk   *clock.MockClock
	path  string
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()
	root := t.TempDir()
	path := filepath.Join(root, "whitelist.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))

	clk := clock.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	file, err := whitelist.NewFileStore(whitelist.FileOptions{
		ServerRoot:    root,
		WhitelistFile: "whitelist.json",
		Mode:          whitelist.ModeOffline,
		Logger:        logging.Discard(),
	})
	require.NoError(t, err)

	auditStore, err := audit.NewStore(":memory:", 30, clk)
	require.NoError(t, err)
	t.Cleanup(func() { auditStore.Close() })

	store := whitelist.Instrument(file, auditStore, logging.Discard())

	loop := mainloop.New(16, logging.Discard())
	loop.Start()
	t.Cleanup(loop.Stop)

	checker := health.NewChecker(clk)
	checker.Register("whitelist", health.WhitelistCheck(store))

	opts := Options{
		Store:       store,
		Loop:        loop,
		Mode:        whitelist.ModeOffline,
		APIKey:      testKey,
		Health:      checker,
		BridgeState: func() string { return "authenticated" },
		Audit:       auditStore,
		Clock:       clk,
		Logger:      logging.Discard(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv, err := NewServer(opts)
	require.NoError(t, err)
	return &testEnv{srv: srv, loop: loop, audit: auditStore, clk: clk, path: path}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.RemoteAddr = "192.0.2.10:4567"
	req.Header.Set("X-API-Key", testKey)
	for k, v := range headers {
		if v == "" {
			req.Header.Del(k)
			continue
		}
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)

	env := newTestEnv(t, nil)
	_, err = NewServer(Options{Store: env.srv.store, Loop: env.loop})
	assert.Error(t, err, "missing API key")
}

func TestAdd(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/whitelist/add", `{"username":"Notch"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[AddResponse](t, rr)
	assert.True(t, resp.Success)
	assert.Equal(t, "Notch added to whitelist", resp.Message)
	assert.Equal(t, "Notch", resp.Username)
	assert.Equal(t, "b50ad385-829d-3141-a216-7e7d7539ba7f", resp.UUID)
	assert.Equal(t, whitelist.ModeOffline, resp.Mode)

	data, err := os.ReadFile(env.path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name": "Notch"`)

	events, err := env.audit.Query(context.Background(), audit.Filter{Action: audit.ActionAdd})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "api", events[0].Source)
	assert.Equal(t, "192.0.2.10", events[0].IP)
	assert.True(t, events[0].Success)
}

func TestAdd_Errors(t *testing.T) {
	env := newTestEnv(t, nil)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/whitelist/add", `{"username":"Steve"}`, nil).Code)

	tests := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{"duplicate case-insensitive", `{"username":"steve"}`, http.StatusConflict, whitelist.ErrAlreadyWhitelisted.Error()},
		{"invalid name", `{"username":"ab"}`, http.StatusBadRequest, whitelist.ErrInvalidUsername.Error()},
		{"missing name", `{}`, http.StatusBadRequest, "Username required"},
		{"bad json", `{"username":`, http.StatusBadRequest, "Invalid request body"},
		{"wrong type", `{"username":42}`, http.StatusBadRequest, "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.srv.limiter.Reset("192.0.2.10")
			rr := env.do(t, http.MethodPost, "/api/whitelist/add", tt.body, nil)
			assert.Equal(t, tt.code, rr.Code)
			assert.Equal(t, tt.msg, decode[ErrorResponse](t, rr).Error)
		})
	}
}

func TestRemove(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/whitelist/add", `{"username":"Alex"}`, nil)

	rr := env.do(t, http.MethodDelete, "/api/whitelist/remove", `{"username":"ALEX"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, RemoveResponse{Success: true, Message: "ALEX removed from whitelist"}, decode[RemoveResponse](t, rr))

	rr = env.do(t, http.MethodDelete, "/api/whitelist/remove", `{"username":"Alex"}`, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, whitelist.ErrNotFound.Error(), decode[ErrorResponse](t, rr).Error)
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/whitelist/status", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"count":0,"users":[],"mode":"offline"}`, rr.Body.String())

	env.do(t, http.MethodPost, "/api/whitelist/add", `{"username":"Notch"}`, nil)
	resp := decode[StatusResponse](t, env.do(t, http.MethodGet, "/api/whitelist/status", "", nil))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, []string{"Notch"}, resp.Users)

	events, err := env.audit.Query(context.Background(), audit.Filter{Action: audit.ActionStatus})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestStatus_ReadFailureHidesPath(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, os.WriteFile(env.path, []byte("{broken"), 0o644))

	rr := env.do(t, http.MethodGet, "/api/whitelist/status", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), env.path)
}

func TestAPIKey(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, key := range []string{"", "wrong", testKey + "x"} {
		h := map[string]string{"X-API-Key": key}
		rr := env.do(t, http.MethodGet, "/api/whitelist/status", "", h)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "key %q", key)
		assert.Equal(t, "Invalid API key", decode[ErrorResponse](t, rr).Error)
	}

	events, err := env.audit.Query(context.Background(), audit.Filter{Action: audit.ActionAuthFailed})
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestAPIKey_Hashed(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte(testKey), bcrypt.MinCost)
	require.NoError(t, err)
	env := newTestEnv(t, func(o *Options) {
		o.APIKey = ""
		o.APIKeyHash = string(hash)
	})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/whitelist/status", "", nil).Code)
	rr := env.do(t, http.MethodGet, "/api/whitelist/status", "", map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.RateLimit = 3 })

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/whitelist/status", "", nil).Code)
	}
	rr := env.do(t, http.MethodGet, "/api/whitelist/status", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.Equal(t, "Rate limit exceeded", decode[ErrorResponse](t, rr).Error)

	// Health is never limited.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/health", "", nil).Code)

	env.clk.Advance(time.Minute)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/whitelist/status", "", nil).Code)
}

func TestRateLimit_CountsUnauthenticated(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.RateLimit = 1 })
	bad := map[string]string{"X-API-Key": "nope"}

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/whitelist/status", "", bad).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodGet, "/api/whitelist/status", "", bad).Code)
}

func TestBodyLimit(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.MaxBodyBytes = 32 })
	body := `{"username":"` + strings.Repeat("a", 64) + `"}`
	rr := env.do(t, http.MethodPost, "/api/whitelist/add", body, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.Info = Info{RCONEnabled: true, RCONHost: "localhost", RCONPort: 25575}
	})

	rr := env.do(t, http.MethodGet, "/api/health", "", map[string]string{"X-API-Key": ""})
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[HealthResponse](t, rr)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "minecraft-whitelist-api", resp.Service)
	assert.Equal(t, whitelist.ModeOffline, resp.Mode)
	assert.True(t, resp.RCONEnabled)
	assert.Equal(t, 25575, resp.RCONPort)
	assert.Equal(t, whitelist.BackendFile, resp.Backend)
	assert.Equal(t, "authenticated", resp.Bridge)
	assert.Contains(t, resp.Checks, "whitelist")
	assert.Empty(t, resp.Tasks)
}

func TestHealth_Tasks(t *testing.T) {
	lastRun := time.Date(2025, 6, 1, 11, 59, 50, 0, time.UTC)
	env := newTestEnv(t, func(o *Options) {
		o.Tasks = func() []scheduler.TaskStatus {
			return []scheduler.TaskStatus{
				{ID: scheduler.TaskHealthCheck, Name: "Health check", Enabled: true, LastRun: lastRun, RunCount: 3},
				{ID: scheduler.TaskStateSnapshot, Name: "State snapshot", Enabled: true, LastError: "bridge not ready", ErrorCount: 1},
			}
		}
	})

	rr := env.do(t, http.MethodGet, "/api/health", "", map[string]string{"X-API-Key": ""})
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[HealthResponse](t, rr)
	require.Len(t, resp.Tasks, 2)
	assert.Equal(t, scheduler.TaskHealthCheck, resp.Tasks[0].ID)
	assert.True(t, resp.Tasks[0].LastRun.Equal(lastRun))
	assert.Equal(t, int64(3), resp.Tasks[0].RunCount)
	assert.Equal(t, "bridge not ready", resp.Tasks[1].LastError)
}

func TestHealth_Unhealthy(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, os.Remove(env.path))

	rr := env.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "unhealthy", decode[HealthResponse](t, rr).Status)
}

func TestAuditQuery(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/whitelist/add", `{"username":"Notch"}`, nil)
	env.do(t, http.MethodPost, "/api/whitelist/add", `{"username":"Steve"}`, nil)

	rr := env.do(t, http.MethodGet, "/api/audit?player=notch", "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[AuditResponse](t, rr)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "Notch", resp.Events[0].Player)
	assert.EqualValues(t, 2, resp.Total)
	assert.Equal(t, defaultAuditLimit, resp.Limit)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/audit?since=yesterday", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/audit?limit=-1", "", nil).Code)

	resp = decode[AuditResponse](t, env.do(t, http.MethodGet, "/api/audit?limit=5000", "", nil))
	assert.Equal(t, maxAuditLimit, resp.Limit)
}

func TestLoopStopped(t *testing.T) {
	env := newTestEnv(t, nil)
	env.loop.Stop()

	rr := env.do(t, http.MethodPost, "/api/whitelist/add", `{"username":"Notch"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/api/whitelist/add", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")

	assert.Equal(t, "10.0.0.1", clientIP(r, false))
	assert.Equal(t, "203.0.113.5", clientIP(r, true))

	r.Header.Del("X-Forwarded-For")
	r.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", clientIP(r, true))

	r.Header.Set("X-Real-IP", "garbage")
	assert.Equal(t, "10.0.0.1", clientIP(r, true))
}

func TestServe_Shutdown(t *testing.T) {
	env := newTestEnv(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/api/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
