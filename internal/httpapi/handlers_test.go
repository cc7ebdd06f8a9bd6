package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"call-inbox/internal/audit"
	"call-inbox/internal/auth"
	"call-inbox/internal/claims"
	"call-inbox/internal/config"
	"call-inbox/internal/feed"
	"call-inbox/internal/mappings"
	"call-inbox/internal/notify"
	"call-inbox/internal/phone"
	"call-inbox/internal/reporting"
	"call-inbox/internal/routing"
	"call-inbox/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (r *recordingNotifier) SendCallStatusNotification(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

type harness struct {
	router   *gin.Engine
	h        *Handlers
	claims   *claims.MemoryRepo
	audit    *audit.MemoryRepo
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mgr, err := auth.NewManager(config.AuthConfig{
		Password:         "pw",
		LoginAccessToken: "door",
		SigningSecret:    "secret",
		SessionTTL:       30 * 24 * time.Hour,
		DeviceTTL:        10 * 365 * 24 * time.Hour,
	}, auth.NewMemoryStore(), nil, nil)
	require.NoError(t, err)

	claimRepo := claims.NewMemoryRepo()
	now := time.Now().UTC()
	claimRepo.Put(claims.CallClaim{PhoneNorm: "38651395476", Status: claims.StatusMissed, UpdatedAt: now.Add(-time.Minute), ExpiresAt: now.Add(time.Hour)})
	claimRepo.Put(claims.CallClaim{PhoneNorm: "38640111222", Status: claims.StatusMissed, UpdatedAt: now.Add(-2 * time.Minute), ExpiresAt: now.Add(-time.Minute)})

	auditRepo := audit.NewMemoryRepo()
	auditSvc := audit.NewService(auditRepo)
	notifier := &recordingNotifier{}
	n := phone.Normalizer{}

	claimSvc := claims.NewService(claimRepo, claims.Options{Notifier: notifier, Audit: auditSvc, Changes: feed.NewLocalBus()})
	mappingRepo := mappings.NewMemoryRepo()
	h := &Handlers{
		Auth:         mgr,
		Claims:       claimSvc,
		Mappings:     mappings.NewService(mappingRepo, auditSvc, n, nil),
		Routing:      routing.NewResolver(mappingRepo, claimRepo, n, nil),
		Reporting:    reporting.NewService(reporting.NewClaimsRepo(claimRepo)),
		Feed:         &feed.Publisher{Source: claimSvc, Interval: 20 * time.Millisecond},
		Notifier:     notifier,
		Audit:        auditSvc,
		LoginLimiter: auth.NewLoginLimiter(100),
	}
	log := logger.NewWithWriter("production", &bytes.Buffer{})
	return &harness{router: NewRouter(h, log), h: h, claims: claimRepo, audit: auditRepo, notifier: notifier}
}

func (hs *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	hs.router.ServeHTTP(w, req)
	return w
}

func (hs *harness) login(t *testing.T, body map[string]any) string {
	t.Helper()
	w := hs.do(t, http.MethodPost, "/api/login?token=door", "", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestProtectedRoutesRequireCredential(t *testing.T) {
	hs := newHarness(t)

	w := hs.do(t, http.MethodGet, "/api/calls", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "unauthorized", body["error"])

	w = hs.do(t, http.MethodGet, "/api/calls", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_CookieSessionAndInbox(t *testing.T) {
	hs := newHarness(t)

	w := hs.do(t, http.MethodPost, "/api/login?token=door", "", map[string]any{"password": "pw", "extension": "101"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.SessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/api/calls", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	hs.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	rows := decode[[]claims.CallClaim](t, w)
	require.Len(t, rows, 1, "expired claims are hidden by default")
	assert.Equal(t, "38651395476", rows[0].PhoneNorm)

	req = httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	hs.router.ServeHTTP(w, req)
	id := decode[map[string]any](t, w)
	assert.Equal(t, "101", id["extension"])
	assert.Equal(t, "session", id["kind"])

	events := hs.audit.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, audit.EventTypeLogin, events[len(events)-1].Type)
}

func TestLogin_Failures(t *testing.T) {
	hs := newHarness(t)

	w := hs.do(t, http.MethodPost, "/api/login", "", map[string]any{"password": "pw"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid or missing access token", decode[map[string]string](t, w)["message"])

	w = hs.do(t, http.MethodPost, "/api/login?token=door", "", map[string]any{"password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid password", decode[map[string]string](t, w)["message"])

	w = hs.do(t, http.MethodPost, "/api/login?token=door", "", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = hs.do(t, http.MethodPost, "/api/login?token=door", "", map[string]any{"extension": "101"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid password", decode[map[string]string](t, w)["message"])

	w = hs.do(t, http.MethodPost, "/api/login?token=door", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", decode[map[string]string](t, w)["error"])

	events := hs.audit.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, audit.EventTypeLoginFailed, events[0].Type)
}

func TestLogin_RateLimited(t *testing.T) {
	hs := newHarness(t)
	hs.h.LoginLimiter = auth.NewLoginLimiter(1)

	w := hs.do(t, http.MethodPost, "/api/login?token=door", "", map[string]any{"password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = hs.do(t, http.MethodPost, "/api/login?token=door", "", map[string]any{"password": "pw"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", decode[map[string]string](t, w)["error"])
}

func TestValidateLoginToken(t *testing.T) {
	hs := newHarness(t)
	assert.Equal(t, http.StatusOK, hs.do(t, http.MethodGet, "/api/login/validate?token=door", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, hs.do(t, http.MethodGet, "/api/login/validate?token=wrong", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, hs.do(t, http.MethodGet, "/api/login/validate", "", nil).Code)
}

func TestRestoreSession_DeviceTokenOnly(t *testing.T) {
	hs := newHarness(t)
	device := hs.login(t, map[string]any{"password": "pw", "extension": "102", "device": true})
	session := hs.login(t, map[string]any{"password": "pw"})

	w := hs.do(t, http.MethodPost, "/api/session/restore", "", map[string]string{"deviceToken": device})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "102", decode[map[string]any](t, w)["extension"])
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.DeviceCookie, cookies[0].Name)
	assert.False(t, cookies[0].HttpOnly)

	w = hs.do(t, http.MethodPost, "/api/session/restore", "", map[string]string{"device_token": session})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = hs.do(t, http.MethodPost, "/api/session/restore", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogout_RevokesCredential(t *testing.T) {
	hs := newHarness(t)
	token := hs.login(t, map[string]any{"password": "pw", "extension": "101"})

	require.Equal(t, http.StatusOK, hs.do(t, http.MethodPost, "/api/logout", token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, hs.do(t, http.MethodGet, "/api/session", token, nil).Code)
}

func TestPatchCall_Transitions(t *testing.T) {
	hs := newHarness(t)
	token := hs.login(t, map[string]any{"password": "pw", "extension": "101"})

	w := hs.do(t, http.MethodPatch, "/api/calls/051395476", token, map[string]string{"status": "claimed", "extension": "101"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[claims.CallClaim](t, w)
	assert.Equal(t, claims.StatusClaimed, got.Status)
	require.NotNil(t, got.HandledByExt)
	assert.Equal(t, "101", *got.HandledByExt)

	w = hs.do(t, http.MethodPatch, "/api/calls/38651395476", token, map[string]string{"status": "handled", "extension": "204"})
	require.Equal(t, http.StatusOK, w.Code)

	w = hs.do(t, http.MethodPatch, "/api/calls/38651395476", token, map[string]string{"status": "claimed", "extension": "204"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "handled calls cannot be claimed again")

	w = hs.do(t, http.MethodPatch, "/api/calls/38651395476", token, map[string]string{"status": "archived", "extension": "204"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Status must be one of: claimed, handled", decode[map[string]string](t, w)["message"])

	w = hs.do(t, http.MethodPatch, "/api/calls/38699999999", token, map[string]string{"status": "claimed", "extension": "204"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	hs.notifier.mu.Lock()
	assert.Len(t, hs.notifier.sent, 2)
	hs.notifier.mu.Unlock()

	w = hs.do(t, http.MethodGet, "/api/calls/38651395476", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, claims.StatusHandled, decode[claims.CallClaim](t, w).Status)

	history := hs.audit.History("38651395476")
	require.Len(t, history, 2)
	assert.Equal(t, "missed -> claimed by 101", history[0].Message)
	assert.Equal(t, "claimed -> handled by 204", history[1].Message)
}

func TestPatchCall_RequiresExtension(t *testing.T) {
	hs := newHarness(t)
	token := hs.login(t, map[string]any{"password": "pw"})

	w := hs.do(t, http.MethodPatch, "/api/calls/38651395476", token, map[string]string{"status": "claimed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Extension is required", decode[map[string]string](t, w)["message"])

	bound := hs.login(t, map[string]any{"password": "pw", "extension": "101"})
	w = hs.do(t, http.MethodPatch, "/api/calls/38651395476", bound, map[string]string{"status": "claimed"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "credential extension must not stand in for the body")

	w = hs.do(t, http.MethodGet, "/api/calls/38651395476", bound, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, claims.StatusMissed, decode[claims.CallClaim](t, w).Status)
}

func TestListCalls_QueryValidation(t *testing.T) {
	hs := newHarness(t)
	token := hs.login(t, map[string]any{"password": "pw"})

	w := hs.do(t, http.MethodGet, "/api/calls?includeExpired=true", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]claims.CallClaim](t, w), 2)

	w = hs.do(t, http.MethodGet, "/api/calls?search=395", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]claims.CallClaim](t, w), 1)

	for _, q := range []string{"limit=-1", "limit=501", "limit=x", "includeHandled=maybe", "since=yesterday", "status=bogus"} {
		w = hs.do(t, http.MethodGet, "/api/calls?"+q, token, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestMappingsAndRouting(t *testing.T) {
	hs := newHarness(t)
	token := hs.login(t, map[string]any{"password": "pw"})
	expires := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)

	w := hs.do(t, http.MethodPost, "/api/mappings", token, map[string]string{"phone_number": "040 111 222", "extension": "204", "expires_at": expires})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "38640111222", decode[mappings.ExtensionMapping](t, w).PhoneNumber)

	w = hs.do(t, http.MethodGet, "/api/routing/+38640111222", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	d := decode[routing.Decision](t, w)
	assert.Equal(t, routing.ActionConnect, d.Action)
	assert.Equal(t, "204", d.ConnectTo)

	w = hs.do(t, http.MethodGet, "/api/routing/38640111222?format=twiml", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/xml")
	assert.Contains(t, w.Body.String(), "<Number>204</Number>")

	w = hs.do(t, http.MethodPatch, "/api/mappings/38640111222", token, map[string]string{"extension": "205"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "205", decode[mappings.ExtensionMapping](t, w).Extension)

	w = hs.do(t, http.MethodPatch, "/api/mappings/38640111222", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = hs.do(t, http.MethodGet, "/api/mappings", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]mappings.ExtensionMapping](t, w), 1)

	w = hs.do(t, http.MethodDelete, "/api/mappings/38640111222", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "38640111222", decode[map[string]any](t, w)["phone_number"])

	w = hs.do(t, http.MethodDelete, "/api/mappings/38640111222", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = hs.do(t, http.MethodGet, "/api/routing/38640111222", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, routing.ActionDefault, decode[routing.Decision](t, w).Action)
}

func TestCallsSummary(t *testing.T) {
	hs := newHarness(t)
	token := hs.login(t, map[string]any{"password": "pw"})

	w := hs.do(t, http.MethodGet, "/api/calls/summary", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode[reporting.ClaimsSummary](t, w)
	assert.Equal(t, 2, out.Total)
	assert.Equal(t, 2, out.ByStatus[claims.StatusMissed])
}

func TestNotify(t *testing.T) {
	hs := newHarness(t)
	token := hs.login(t, map[string]any{"password": "pw", "extension": "101"})

	w := hs.do(t, http.MethodPost, "/api/notify", token, map[string]string{"phone": "051 395 476"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "38651395476", decode[map[string]any](t, w)["phone"])
	hs.notifier.mu.Lock()
	require.Len(t, hs.notifier.sent, 1)
	assert.Equal(t, "missed", hs.notifier.sent[0].Status)
	hs.notifier.mu.Unlock()

	w = hs.do(t, http.MethodPost, "/api/notify", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "phone is required", decode[map[string]string](t, w)["message"])
}

func TestInternalErrorDetailOnlyWhenExposed(t *testing.T) {
	hs := newHarness(t)
	token := hs.login(t, map[string]any{"password": "pw"})
	hs.notifier.err = errors.New("onesignal: 503")

	w := hs.do(t, http.MethodPost, "/api/notify", token, map[string]string{"phone": "38651395476"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "internal", body["error"])
	assert.Empty(t, body["detail"])

	hs.h.ExposeErrorDetail = true
	w = hs.do(t, http.MethodPost, "/api/notify", token, map[string]string{"phone": "38651395476"})
	assert.Equal(t, "onesignal: 503", decode[map[string]string](t, w)["detail"])
}

type denyAll struct{}

func (denyAll) Acquire(context.Context, string) (func(), bool, error) { return func() {}, false, nil }

func TestStreamCalls_ConnectionCap(t *testing.T) {
	hs := newHarness(t)
	hs.h.FeedConns = denyAll{}
	hs.h.FeedMaxConns = 1
	token := hs.login(t, map[string]any{"password": "pw"})

	w := hs.do(t, http.MethodGet, "/api/calls/stream", token, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestStreamCalls_SSE(t *testing.T) {
	hs := newHarness(t)
	token := hs.login(t, map[string]any{"password": "pw"})
	srv := httptest.NewServer(hs.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/calls/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	var frames []string
	for sc.Scan() && len(frames) < 2 {
		if line := sc.Text(); strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimPrefix(line, "data: "))
		}
	}
	require.Len(t, frames, 2)
	assert.JSONEq(t, `{"type":"connected"}`, frames[0])

	var update struct {
		Type  string             `json:"type"`
		Calls []claims.CallClaim `json:"calls"`
	}
	require.NoError(t, json.Unmarshal([]byte(frames[1]), &update))
	assert.Equal(t, "update", update.Type)
	require.Len(t, update.Calls, 1)
	assert.Equal(t, "38651395476", update.Calls[0].PhoneNorm)
}

func TestHealthz(t *testing.T) {
	hs := newHarness(t)
	assert.Equal(t, http.StatusOK, hs.do(t, http.MethodGet, "/healthz", "", nil).Code)

	hs.h.Health = func(context.Context) error { return errors.New("db down") }
	assert.Equal(t, http.StatusServiceUnavailable, hs.do(t, http.MethodGet, "/healthz", "", nil).Code)
}
