package impl

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"readzone/config"
	"readzone/internal/domain/service"
	"readzone/internal/infra/auth"
	"readzone/internal/infra/clock"
	"readzone/internal/infra/persistence/memory"
	"readzone/internal/infra/ratelimit"
	"readzone/internal/usecase"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testPassword = "Passw0rd!"
	testIP       = "203.0.113.7"
)

var testNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.SecretKey.Access = "access-secret-for-tests"
	cfg.SecretKey.Refresh = "refresh-secret-for-tests"
	cfg.SecretKey.EmailVerification = "verification-secret-for-tests"
	cfg.SecretKey.PasswordReset = "reset-secret-for-tests"
	cfg.Auth = &config.AuthConfig{BcryptCost: 4}
	config.ApplyDefaults(cfg)

	return cfg
}

type sentMail struct {
	kind     string
	email    string
	nickname string
	token    string
}

// recordingNotifier keeps every mail the service asked for.
type recordingNotifier struct {
	mu    sync.Mutex
	mails []sentMail
}

func (n *recordingNotifier) SendVerificationEmail(_ context.Context, email, nickname, token string) {
	n.record(sentMail{kind: "verify", email: email, nickname: nickname, token: token})
}

func (n *recordingNotifier) SendPasswordResetEmail(_ context.Context, email, nickname, token string) {
	n.record(sentMail{kind: "reset", email: email, nickname: nickname, token: token})
}

func (n *recordingNotifier) record(m sentMail) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mails = append(n.mails, m)
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	total := 0
	for _, m := range n.mails {
		if m.kind == kind {
			total++
		}
	}

	return total
}

func (n *recordingNotifier) last(t *testing.T, kind string) sentMail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()

	for i := len(n.mails) - 1; i >= 0; i-- {
		if n.mails[i].kind == kind {
			return n.mails[i]
		}
	}
	t.Fatalf("no %s mail was sent", kind)

	return sentMail{}
}

type mockAbuseChecker struct {
	mock.Mock
}

func (m *mockAbuseChecker) Enabled() bool {
	return m.Called().Bool(0)
}

func (m *mockAbuseChecker) Verify(ctx context.Context, token, remoteIP string) (*service.AbuseCheckResult, error) {
	args := m.Called(ctx, token, remoteIP)
	result, _ := args.Get(0).(*service.AbuseCheckResult)

	return result, args.Error(1)
}

type mockRateLimiter struct {
	mock.Mock
}

func (m *mockRateLimiter) Check(ctx context.Context, key string, window time.Duration, maxCount int) (*service.RateDecision, error) {
	args := m.Called(ctx, key, window, maxCount)
	decision, _ := args.Get(0).(*service.RateDecision)

	return decision, args.Error(1)
}

// interleavingTokenService runs before once, just ahead of the first Issue of kind.
// It lets a test commit a competing write while a flow is between its read and write.
type interleavingTokenService struct {
	service.TokenService

	kind   service.TokenKind
	before func()
	armed  bool
}

func (s *interleavingTokenService) Issue(payload *service.TokenPayload, ttl time.Duration) (string, error) {
	if s.armed && payload.Kind == s.kind {
		s.armed = false
		s.before()
	}

	return s.TokenService.Issue(payload, ttl)
}

// authFixture wires the auth service to the memory store and the real token and hash services.
type authFixture struct {
	cfg      *config.Config
	clock    *clock.FixedClock
	store    *memory.Store
	tokens   service.TokenService
	notifier *recordingNotifier
	limiter  service.RateLimiter
	checker  service.AbuseChecker
	wrap     func(service.TokenService) service.TokenService
	service  usecase.AuthUsecase
	sessions usecase.SessionUsecase
}

type fixtureOption func(*authFixture)

func withLimiter(limiter service.RateLimiter) fixtureOption {
	return func(f *authFixture) { f.limiter = limiter }
}

func withAbuseChecker(checker service.AbuseChecker) fixtureOption {
	return func(f *authFixture) { f.checker = checker }
}

func withTokenWrapper(wrap func(service.TokenService) service.TokenService) fixtureOption {
	return func(f *authFixture) { f.wrap = wrap }
}

func withConfig(mutate func(cfg *config.Config)) fixtureOption {
	return func(f *authFixture) { mutate(f.cfg) }
}

func newAuthFixture(t *testing.T, opts ...fixtureOption) *authFixture {
	t.Helper()

	clk := clock.NewFixedClock(testNow)
	f := &authFixture{
		cfg:      newTestConfig(),
		clock:    clk,
		store:    memory.NewStore(clk),
		notifier: &recordingNotifier{},
		limiter:  ratelimit.NewMemoryLimiter(clk),
	}
	for _, opt := range opts {
		opt(f)
	}

	tokens, err := auth.NewJWTService(f.cfg, clk, clock.NewRandomSource())
	require.NoError(t, err)
	f.tokens = tokens
	if f.wrap != nil {
		f.tokens = f.wrap(tokens)
	}

	logger := newDiscardLogger()
	f.service = NewAuthService(AuthServiceParams{
		TxManager:        f.store.TransactionManager(),
		UserRepo:         f.store.UserRepo(),
		RefreshTokenRepo: f.store.RefreshTokenRepo(),
		Hasher:           auth.NewBcryptHasher(f.cfg),
		TokenService:     f.tokens,
		RateLimiter:      f.limiter,
		Notifier:         f.notifier,
		AbuseChecker:     f.checker,
		Clock:            clk,
		Config:           f.cfg,
		Logger:           logger,
	})
	f.sessions = NewSessionService(SessionServiceParams{
		TxManager:        f.store.TransactionManager(),
		RefreshTokenRepo: f.store.RefreshTokenRepo(),
		Clock:            clk,
		Logger:           logger,
	})

	return f
}

func (f *authFixture) register(t *testing.T, handle, email, nickname string) *usecase.RegisterOutput {
	t.Helper()

	out, err := f.service.Register(context.Background(), &usecase.RegisterInput{
		Handle:   handle,
		Email:    email,
		Nickname: nickname,
		Password: testPassword,
	})
	require.NoError(t, err)

	return out
}

func (f *authFixture) login(t *testing.T, handle, password string) *usecase.AuthOutput {
	t.Helper()

	out, err := f.service.Login(context.Background(), &usecase.LoginInput{
		Handle:    handle,
		Password:  password,
		IPAddress: testIP,
	})
	require.NoError(t, err)

	return out
}

func (f *authFixture) refresh(refreshToken string) (*usecase.RefreshOutput, error) {
	return f.service.Refresh(context.Background(), &usecase.RefreshInput{RefreshToken: refreshToken})
}

func (f *authFixture) grantCount(t *testing.T) int64 {
	t.Helper()

	stats, err := f.store.RefreshTokenRepo().GetStatistics(context.Background(), f.clock.Now())
	require.NoError(t, err)

	return stats.Total
}
