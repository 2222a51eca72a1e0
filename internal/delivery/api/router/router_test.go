package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"readzone/config"
	apimiddleware "readzone/internal/delivery/api/middleware"
	"readzone/internal/delivery/api/response"
	"readzone/internal/delivery/api/router/handler"
	"readzone/internal/delivery/api/validator"
	"readzone/internal/delivery/middleware"
	"readzone/internal/infra/auth"
	"readzone/internal/infra/captcha"
	"readzone/internal/infra/clock"
	"readzone/internal/infra/persistence/memory"
	"readzone/internal/infra/ratelimit"
	"readzone/internal/usecase/impl"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "Passw0rd!"

type capturedMail struct {
	kind  string
	email string
	token string
}

type capturingNotifier struct {
	mu    sync.Mutex
	mails []capturedMail
}

func (n *capturingNotifier) SendVerificationEmail(_ context.Context, email, _, token string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mails = append(n.mails, capturedMail{kind: "verify", email: email, token: token})
}

func (n *capturingNotifier) SendPasswordResetEmail(_ context.Context, email, _, token string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mails = append(n.mails, capturedMail{kind: "reset", email: email, token: token})
}

func (n *capturingNotifier) lastToken(t *testing.T, kind string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()

	for i := len(n.mails) - 1; i >= 0; i-- {
		if n.mails[i].kind == kind {
			return n.mails[i].token
		}
	}
	t.Fatalf("no %s mail captured", kind)

	return ""
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorInfo `json:"error"`
}

type testServer struct {
	echo     *echo.Echo
	clock    *clock.FixedClock
	notifier *capturingNotifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{}
	cfg.SecretKey.Access = "access-secret-for-tests"
	cfg.SecretKey.Refresh = "refresh-secret-for-tests"
	cfg.Auth = &config.AuthConfig{BcryptCost: 4}
	config.ApplyDefaults(cfg)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewFixedClock(time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC))
	store := memory.NewStore(clk)
	tokens, err := auth.NewJWTService(cfg, clk, clock.NewRandomSource())
	require.NoError(t, err)
	notifier := &capturingNotifier{}

	authUC := impl.NewAuthService(impl.AuthServiceParams{
		TxManager:        store.TransactionManager(),
		UserRepo:         store.UserRepo(),
		RefreshTokenRepo: store.RefreshTokenRepo(),
		Hasher:           auth.NewBcryptHasher(cfg),
		TokenService:     tokens,
		RateLimiter:      ratelimit.NewMemoryLimiter(clk),
		Notifier:         notifier,
		AbuseChecker:     captcha.NewRecaptchaChecker(cfg, logger),
		Clock:            clk,
		Config:           cfg,
		Logger:           logger,
	})
	sessionUC := impl.NewSessionService(impl.SessionServiceParams{
		TxManager:        store.TransactionManager(),
		RefreshTokenRepo: store.RefreshTokenRepo(),
		Clock:            clk,
		Logger:           logger,
	})

	e := echo.New()
	ipExtractor, err := apimiddleware.NewIPExtractor(cfg.HTTP.TrustedProxies)
	require.NoError(t, err)
	e.IPExtractor = ipExtractor
	e.Validator = validator.New()
	e.HTTPErrorHandler = apimiddleware.NewErrorMiddleware(logger).HandleHTTPError
	e.Use(middleware.NewRequestIDMiddleware(logger).Process)

	r := NewRouter(RouterParams{
		AuthHandler: handler.NewAuthHandler(handler.AuthHandlerParams{
			AuthUC: authUC, Config: cfg, Logger: logger,
		}),
		SessionHandler: handler.NewSessionHandler(handler.SessionHandlerParams{
			SessionUC: sessionUC, Logger: logger,
		}),
		AuthMiddleware: apimiddleware.NewAuthMiddleware(authUC),
	})
	r.RegisterRoutes(e)

	return &testServer{echo: e, clock: clk, notifier: notifier}
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(req *http.Request) {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
}

func withForwardedFor(ip string) requestOption {
	return func(req *http.Request) { req.Header.Set(echo.HeaderXForwardedFor, ip) }
}

func withCookie(cookie *http.Cookie) requestOption {
	return func(req *http.Request) { req.AddCookie(cookie) }
}

func (s *testServer) do(t *testing.T, method, target string, body any, opts ...requestOption) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, opt := range opts {
		opt(req)
	}

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}

	return rec, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(raw, &out))

	return out
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "refresh_token" {
			return cookie
		}
	}
	t.Fatal("refresh_token cookie not set")

	return nil
}

func (s *testServer) registerAndLogin(t *testing.T, handle, email string) (handler.TokenResponse, *http.Cookie) {
	t.Helper()

	rec, _ := s.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"handle": handle, "email": email, "nickname": handle + "-nick", "password": testPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"handle": handle, "password": testPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	return decode[handler.TokenResponse](t, env.Data), refreshCookie(t, rec)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestLoginSetsRefreshCookieAndMeUsesAccessToken(t *testing.T) {
	s := newTestServer(t)

	pair, cookie := s.registerAndLogin(t, "reader1", "reader1@example.com")

	assert.NotEmpty(t, pair.AccessToken)
	assert.Equal(t, pair.RefreshToken, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), cookie.MaxAge)
	assert.Equal(t, (7 * 24 * time.Hour).Milliseconds(), pair.RefreshTokenMaxAgeMs)
	require.NotNil(t, pair.User)
	assert.Equal(t, "reader1", pair.User.Handle)

	rec, env := s.do(t, http.MethodGet, "/api/v1/auth/me", nil, withBearer(pair.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	me := decode[map[string]any](t, env.Data)
	assert.Equal(t, "reader1", me["handle"])
	assert.Equal(t, false, me["isVerified"])
}

func TestProtectedRoutesRejectMissingOrWrongKindTokens(t *testing.T) {
	s := newTestServer(t)
	pair, _ := s.registerAndLogin(t, "reader2", "")

	tests := []struct {
		name string
		opts []requestOption
	}{
		{name: "no header"},
		{name: "refresh token as bearer", opts: []requestOption{withBearer(pair.RefreshToken)}},
		{name: "garbage", opts: []requestOption{withBearer("not-a-token")}},
		{name: "not bearer", opts: []requestOption{func(req *http.Request) {
			req.Header.Set(echo.HeaderAuthorization, "Basic abc")
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(t, http.MethodGet, "/api/v1/auth/me", nil, tt.opts...)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
		})
	}
}

func TestRefreshFromCookieRotatesAndRejectsReplay(t *testing.T) {
	s := newTestServer(t)
	_, cookie := s.registerAndLogin(t, "reader3", "")

	rec, env := s.do(t, http.MethodPost, "/api/v1/auth/refresh", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := decode[handler.TokenResponse](t, env.Data)
	assert.NotEqual(t, cookie.Value, rotated.RefreshToken)
	assert.Equal(t, rotated.RefreshToken, refreshCookie(t, rec).Value)

	rec, env = s.do(t, http.MethodPost, "/api/v1/auth/refresh",
		map[string]string{"refreshToken": cookie.Value})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
	assert.Nil(t, env.Error.Details)
	assert.Equal(t, -1, refreshCookie(t, rec).MaxAge)
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	s := newTestServer(t)
	_, cookie := s.registerAndLogin(t, "reader4", "")

	rec, _ := s.do(t, http.MethodPost, "/api/v1/auth/logout", nil, withCookie(cookie))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/logout", map[string]string{"refreshToken": "bogus"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh", nil, withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": "not-an-email", "nickname": "n", "password": testPassword,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	details, ok := env.Error.Details.(string)
	require.True(t, ok)
	assert.Contains(t, details, "handle is required")
	assert.Contains(t, details, "email must be a valid email address")
}

func TestRegisterConflictNamesField(t *testing.T) {
	s := newTestServer(t)
	s.registerAndLogin(t, "reader5", "reader5@example.com")

	rec, env := s.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"handle": "reader5", "nickname": "someone-else", "password": testPassword,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONFLICT", env.Error.Code)
	assert.Equal(t, "handle", env.Error.Details)
}

func TestCheckDuplicate(t *testing.T) {
	s := newTestServer(t)
	s.registerAndLogin(t, "reader6", "")

	rec, env := s.do(t, http.MethodGet, "/api/v1/auth/check-duplicate?field=handle&value=reader6", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, env.Data)["available"])

	rec, env = s.do(t, http.MethodGet, "/api/v1/auth/check-duplicate?field=handle&value=fresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, env.Data)["available"])

	rec, env = s.do(t, http.MethodGet, "/api/v1/auth/check-duplicate?field=password&value=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}

func TestSessionRoutes(t *testing.T) {
	s := newTestServer(t)
	pair, _ := s.registerAndLogin(t, "reader7", "")

	rec, env := s.do(t, http.MethodGet, "/api/v1/auth/sessions", nil, withBearer(pair.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	sessions := decode[[]map[string]any](t, env.Data)
	require.Len(t, sessions, 1)

	rec, _ = s.do(t, http.MethodDelete, "/api/v1/auth/sessions/not-a-uuid", nil, withBearer(pair.AccessToken))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	sessionID, ok := sessions[0]["id"].(string)
	require.True(t, ok)
	rec, _ = s.do(t, http.MethodDelete, "/api/v1/auth/sessions/"+sessionID, nil, withBearer(pair.AccessToken))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodDelete, "/api/v1/auth/sessions", nil, withBearer(pair.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode[map[string]any](t, env.Data)["revokedSessions"])
}

func TestPasswordResetFlow(t *testing.T) {
	s := newTestServer(t)
	s.registerAndLogin(t, "reader8", "reader8@example.com")

	unknownRec, unknownEnv := s.do(t, http.MethodPost, "/api/v1/auth/password-reset/request",
		map[string]string{"email": "nobody@example.com"})
	knownRec, knownEnv := s.do(t, http.MethodPost, "/api/v1/auth/password-reset/request",
		map[string]string{"email": "reader8@example.com"})
	require.Equal(t, http.StatusOK, unknownRec.Code)
	require.Equal(t, http.StatusOK, knownRec.Code)

	unknownBody := decode[map[string]any](t, unknownEnv.Data)
	knownBody := decode[map[string]any](t, knownEnv.Data)
	assert.Equal(t, unknownBody["message"], knownBody["message"])
	assert.Equal(t, unknownBody["rateLimit"], knownBody["rateLimit"])

	token := s.notifier.lastToken(t, "reset")

	rec, env := s.do(t, http.MethodGet, "/api/v1/auth/password-reset/check?token="+token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "valid", decode[map[string]any](t, env.Data)["status"])

	rec, env = s.do(t, http.MethodPost, "/api/v1/auth/password-reset/confirm", map[string]string{
		"token": token, "newPassword": "N3wPassword!", "confirmPassword": "N3wPassword!",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reset := decode[handler.TokenResponse](t, env.Data)
	require.NotNil(t, reset.RevokedSessions)
	assert.Equal(t, 1, *reset.RevokedSessions)
	assert.Equal(t, reset.RefreshToken, refreshCookie(t, rec).Value)

	rec, env = s.do(t, http.MethodGet, "/api/v1/auth/password-reset/check?token="+token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "used", decode[map[string]any](t, env.Data)["status"])
}

func TestVerificationFlow(t *testing.T) {
	s := newTestServer(t)
	s.registerAndLogin(t, "reader9", "reader9@example.com")

	rec, env := s.do(t, http.MethodPost, "/api/v1/auth/verification/resend",
		map[string]string{"email": "reader9@example.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "sent", decode[map[string]any](t, env.Data)["status"])

	rec, env = s.do(t, http.MethodPost, "/api/v1/auth/verification/resend",
		map[string]string{"email": "reader9@example.com"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.NotNil(t, env.Error)
	assert.Equal(t, "RATE_LIMITED", env.Error.Code)

	token := s.notifier.lastToken(t, "verify")
	rec, env = s.do(t, http.MethodPost, "/api/v1/auth/verify-email", map[string]string{"token": token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	user := decode[map[string]any](t, env.Data)["user"].(map[string]any)
	assert.Equal(t, true, user["isVerified"])

	rec, env = s.do(t, http.MethodPost, "/api/v1/auth/verify-email", map[string]string{"token": token})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_VERIFICATION_TOKEN", env.Error.Code)
}

func TestLoginRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	s := newTestServer(t)
	rec, _ := s.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"handle": "alice", "nickname": "Alice", "password": testPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	login := map[string]string{"handle": "alice", "password": "Wr0ngPassword!"}
	for i := range 20 {
		rec, _ := s.do(t, http.MethodPost, "/api/v1/auth/login", login, withForwardedFor(fmt.Sprintf("203.0.113.%d", i+1)))
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}

	rec, env := s.do(t, http.MethodPost, "/api/v1/auth/login", login, withForwardedFor("198.51.100.200"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "RATE_LIMITED", env.Error.Code)
}
