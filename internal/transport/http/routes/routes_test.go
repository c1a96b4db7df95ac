package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/josemoyano04/user-manager/internal/core/domain"
	"github.com/josemoyano04/user-manager/internal/infra/config"
	"github.com/josemoyano04/user-manager/internal/infra/database"
	"github.com/josemoyano04/user-manager/internal/infra/security"
	"github.com/josemoyano04/user-manager/internal/infra/telemetry"
	"github.com/josemoyano04/user-manager/internal/repository/memory"
	"github.com/josemoyano04/user-manager/internal/repository/sqlrepo"
	"github.com/josemoyano04/user-manager/internal/transport/http/handlers"
	httproutes "github.com/josemoyano04/user-manager/internal/transport/http/routes"
	"github.com/josemoyano04/user-manager/internal/usecase"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []domain.RecoveryEmail
	err  error
}

func (m *captureMailer) SendRecoveryCode(_ context.Context, email domain.RecoveryEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

func (m *captureMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatalf("expected a recovery email to be sent")
	}
	return m.sent[len(m.sent)-1].Code
}

type testServer struct {
	router *gin.Engine
	mailer *captureMailer
	codes  *memory.RecoveryCodeStore
}

func newTestServer(t *testing.T, env string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	storage, err := database.OpenSQLite(ctx, "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })
	if err := database.MigrateSQLite(ctx, storage, log); err != nil {
		t.Fatalf("MigrateSQLite returned error: %v", err)
	}

	hasher, err := security.NewHasher(security.Argon2Config{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewHasher returned error: %v", err)
	}
	tokens, err := security.NewTokenManager("integration-secret", "HS256", 30*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenManager returned error: %v", err)
	}

	registry := prometheus.NewRegistry()
	metrics, err := telemetry.NewRecoveryMetrics(registry)
	if err != nil {
		t.Fatalf("NewRecoveryMetrics returned error: %v", err)
	}

	users := sqlrepo.NewUserDirectory(storage)
	policy := security.NewPasswordPolicy(8, 0)
	codes := memory.NewRecoveryCodeStore(10*time.Minute, time.Hour, log)
	mailer := &captureMailer{}
	cfg := &config.AppConfig{App: config.AppSettings{Env: env, CORSOrigins: []string{"*"}}}

	services := httproutes.ServiceSet{
		Auth:  usecase.NewAuthService(users, hasher, tokens, log),
		Users: usecase.NewUserService(users, hasher, policy, nil, log),
		Recovery: usecase.NewPasswordRecoveryService(users, codes, mailer, hasher, policy, tokens, nil, metrics,
			usecase.RecoveryOptions{AllowCustomCode: true, ExposeCode: cfg.IsDevelopment()}, log),
	}

	router := httproutes.Register(httproutes.Dependencies{
		Config:         cfg,
		Logger:         log,
		Services:       services,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Probes:         map[string]handlers.Probe{"database": storage.Ping},
	})

	return &testServer{router: router, mailer: mailer, codes: codes}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) login(t *testing.T, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
}

var alice = handlers.UserRequest{
	FullName: "Alice Liddell",
	Username: "alice",
	Email:    "alice@x.com",
	Password: "rabbit-hole-42",
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}

	r := httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: zap.NewNop(),
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestReadinessReportsFailingProbe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := httproutes.Register(httproutes.Dependencies{
		Config: &config.AppConfig{},
		Probes: map[string]handlers.Probe{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		},
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	expectStatus(t, w, http.StatusServiceUnavailable)
	body := decode[handlers.ReadyResponse](t, w)
	if body.Checks["database"] != "ok" || body.Checks["redis"] != "unavailable" {
		t.Fatalf("unexpected checks: %v", body.Checks)
	}
}

func TestRegisterLoginAndRecoveryScenario(t *testing.T) {
	srv := newTestServer(t, "test")

	rr := srv.do(t, http.MethodPost, "/user/register", alice, "")
	expectStatus(t, rr, http.StatusCreated)
	created := decode[handlers.UserMessageResponse](t, rr)
	if created.User.Username != "alice" || created.User.Email != "alice@x.com" {
		t.Fatalf("unexpected registered user: %+v", created.User)
	}
	if strings.Contains(rr.Body.String(), "password") {
		t.Fatalf("response must not leak password material: %s", rr.Body.String())
	}

	duplicate := alice
	duplicate.Email = "other@x.com"
	expectStatus(t, srv.do(t, http.MethodPost, "/user/register", duplicate, ""), http.StatusConflict)

	rr = srv.login(t, "alice", "wrong-password")
	expectStatus(t, rr, http.StatusUnauthorized)
	if rr.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("expected bearer challenge on failed login")
	}

	rr = srv.login(t, "alice", alice.Password)
	expectStatus(t, rr, http.StatusOK)
	login := decode[handlers.TokenResponse](t, rr)
	if login.TokenType != "Bearer" || login.AccessToken == "" {
		t.Fatalf("unexpected login response: %+v", login)
	}

	rr = srv.do(t, http.MethodGet, "/user/me", nil, login.AccessToken)
	expectStatus(t, rr, http.StatusOK)
	if me := decode[handlers.UserResponse](t, rr); me.Username != "alice" || me.FullName != "Alice Liddell" {
		t.Fatalf("unexpected /user/me response: %+v", me)
	}

	rr = srv.do(t, http.MethodPost, "/recovery-password/request", handlers.RecoveryCodeRequest{Email: "alice@x.com"}, "")
	expectStatus(t, rr, http.StatusOK)
	requested := decode[handlers.RecoveryCodeResponse](t, rr)
	if requested.DevCode != "" {
		t.Fatalf("dev code must only be echoed in development")
	}
	if remaining := time.Until(requested.ExpiresAt); remaining <= 9*time.Minute || remaining > 10*time.Minute {
		t.Fatalf("expected a 10 minute expiry, got %v", remaining)
	}
	code := srv.mailer.lastCode(t)

	wrong := "00000"
	if code == wrong {
		wrong = "99999"
	}
	rr = srv.do(t, http.MethodPost, "/recovery-password/verify-code", handlers.VerifyCodeRequest{Email: "alice@x.com", Code: wrong}, "")
	expectStatus(t, rr, http.StatusBadRequest)
	if msg := decode[handlers.ErrorResponse](t, rr).Error; !strings.Contains(msg, "incorrect") {
		t.Fatalf("expected incorrect code message, got %q", msg)
	}

	rr = srv.do(t, http.MethodPost, "/recovery-password/verify-code", handlers.VerifyCodeRequest{Email: "alice@x.com", Code: code}, "")
	expectStatus(t, rr, http.StatusOK)
	verified := decode[handlers.VerifyCodeResponse](t, rr)
	if srv.codes.Len() != 0 {
		t.Fatalf("expected redeemed code to be removed from the store")
	}

	expectStatus(t, srv.do(t, http.MethodPost, "/recovery-password/verify-code", handlers.VerifyCodeRequest{Email: "alice@x.com", Code: code}, ""), http.StatusBadRequest)

	rr = srv.do(t, http.MethodPost, "/recovery-password/reset", handlers.ResetPasswordRequest{Email: "alice@x.com", NewPassword: "looking-glass-7"}, verified.AccessToken)
	expectStatus(t, rr, http.StatusOK)

	expectStatus(t, srv.login(t, "alice", alice.Password), http.StatusUnauthorized)
	expectStatus(t, srv.login(t, "alice", "looking-glass-7"), http.StatusOK)
}

func TestDeleteInvalidatesOutstandingTokens(t *testing.T) {
	srv := newTestServer(t, "test")

	expectStatus(t, srv.do(t, http.MethodPost, "/user/register", alice, ""), http.StatusCreated)
	token := decode[handlers.TokenResponse](t, srv.login(t, "alice", alice.Password)).AccessToken

	rr := srv.do(t, http.MethodDelete, "/user/delete", nil, token)
	expectStatus(t, rr, http.StatusOK)

	update := alice
	update.FullName = "Ghost"
	rr = srv.do(t, http.MethodPut, "/user/update", update, token)
	expectStatus(t, rr, http.StatusUnauthorized)
	if rr.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("expected bearer challenge")
	}

	expectStatus(t, srv.do(t, http.MethodDelete, "/user/delete", nil, token), http.StatusUnauthorized)
	expectStatus(t, srv.do(t, http.MethodGet, "/user/me", nil, token), http.StatusNotFound)
}

func TestRegisterRejectsMalformedEmail(t *testing.T) {
	srv := newTestServer(t, "test")

	for _, email := range []string{"alice@x", "not-an-email", "a@[127.0.0.1]"} {
		in := alice
		in.Email = email
		rr := srv.do(t, http.MethodPost, "/user/register", in, "")
		expectStatus(t, rr, http.StatusBadRequest)
	}
	expectStatus(t, srv.do(t, http.MethodPost, "/recovery-password/request", handlers.RecoveryCodeRequest{Email: "alice@x"}, ""), http.StatusBadRequest)
}

func TestUpdateActsOnTokenSubject(t *testing.T) {
	srv := newTestServer(t, "test")

	expectStatus(t, srv.do(t, http.MethodPost, "/user/register", alice, ""), http.StatusCreated)
	bob := handlers.UserRequest{FullName: "Bob", Username: "bob", Email: "bob@x.com", Password: "builder-can-fix"}
	expectStatus(t, srv.do(t, http.MethodPost, "/user/register", bob, ""), http.StatusCreated)

	token := decode[handlers.TokenResponse](t, srv.login(t, "alice", alice.Password)).AccessToken

	taken := alice
	taken.Email = "bob@x.com"
	expectStatus(t, srv.do(t, http.MethodPut, "/user/update", taken, token), http.StatusConflict)

	renamed := alice
	renamed.FullName = "Alice Pleasance Liddell"
	rr := srv.do(t, http.MethodPut, "/user/update", renamed, token)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[handlers.UserMessageResponse](t, rr).User.FullName; got != "Alice Pleasance Liddell" {
		t.Fatalf("unexpected full name %q", got)
	}

	expectStatus(t, srv.do(t, http.MethodPut, "/user/update", renamed, ""), http.StatusUnauthorized)
}

func TestRecoveryRequestErrors(t *testing.T) {
	srv := newTestServer(t, "development")
	expectStatus(t, srv.do(t, http.MethodPost, "/user/register", alice, ""), http.StatusCreated)

	expectStatus(t, srv.do(t, http.MethodPost, "/recovery-password/request", handlers.RecoveryCodeRequest{Email: "nobody@x.com"}, ""), http.StatusNotFound)
	expectStatus(t, srv.do(t, http.MethodPost, "/recovery-password/request", handlers.RecoveryCodeRequest{Email: "alice@x.com", CustomCode: "12"}, ""), http.StatusBadRequest)

	rr := srv.do(t, http.MethodPost, "/recovery-password/request", handlers.RecoveryCodeRequest{Email: "alice@x.com", CustomCode: "24680"}, "")
	expectStatus(t, rr, http.StatusOK)
	if got := decode[handlers.RecoveryCodeResponse](t, rr).DevCode; got != "24680" {
		t.Fatalf("expected dev code echo in development, got %q", got)
	}

	srv.mailer.err = errors.New("dial tcp: connection refused")
	expectStatus(t, srv.do(t, http.MethodPost, "/recovery-password/request", handlers.RecoveryCodeRequest{Email: "alice@x.com"}, ""), http.StatusBadGateway)
}

func TestResetRequiresOwnership(t *testing.T) {
	srv := newTestServer(t, "test")
	expectStatus(t, srv.do(t, http.MethodPost, "/user/register", alice, ""), http.StatusCreated)
	bob := handlers.UserRequest{FullName: "Bob", Username: "bob", Email: "bob@x.com", Password: "builder-can-fix"}
	expectStatus(t, srv.do(t, http.MethodPost, "/user/register", bob, ""), http.StatusCreated)

	bobToken := decode[handlers.TokenResponse](t, srv.login(t, "bob", bob.Password)).AccessToken

	rr := srv.do(t, http.MethodPost, "/recovery-password/reset", handlers.ResetPasswordRequest{Email: "alice@x.com", NewPassword: "stolen-password-1"}, bobToken)
	expectStatus(t, rr, http.StatusUnauthorized)
	expectStatus(t, srv.login(t, "alice", alice.Password), http.StatusOK)
}

func TestMeReportsTokenProblems(t *testing.T) {
	srv := newTestServer(t, "test")

	expectStatus(t, srv.do(t, http.MethodGet, "/user/me", nil, ""), http.StatusUnauthorized)

	rr := srv.do(t, http.MethodGet, "/user/me", nil, "garbage")
	expectStatus(t, rr, http.StatusBadRequest)
	if msg := decode[handlers.ErrorResponse](t, rr).Error; msg != "token invalid" {
		t.Fatalf("expected token invalid, got %q", msg)
	}
}
