package auth

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/elskow/crm-auth/internal/config"
)

const (
	testPassword = "correct-horse-battery"
	testEmail    = "alice@example.com"
)

func newTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zap.NewNop()
}

func newTestConfig() *config.AuthConfig {
	return &config.AuthConfig{
		JWTSecret:                 "test-secret-key-that-is-long-enough-for-hs256",
		AccessTokenDuration:       time.Hour,
		RefreshTokenDuration:      time.Hour * 24,
		PasswordResetDuration:     time.Hour,
		EmailVerificationDuration: time.Hour * 24,
		BcryptCost:                bcrypt.MinCost,
		AppURL:                    "https://app.example.com",
		OAuthCallbackEnabled:      true,
	}
}

type recordingMailer struct {
	mu     sync.Mutex
	reset  map[string]string
	verify map[string]string
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{
		reset:  make(map[string]string),
		verify: make(map[string]string),
	}
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, user *User, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset[user.Email] = link
	return nil
}

func (m *recordingMailer) SendEmailVerification(_ context.Context, user *User, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verify[user.Email] = link
	return nil
}

func (m *recordingMailer) resetToken(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	return tokenFromLink(t, m.reset[email])
}

func (m *recordingMailer) verifyToken(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	return tokenFromLink(t, m.verify[email])
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	require.NotEmpty(t, link, "no link was sent")
	u, err := url.Parse(link)
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

// testClock is shared by every component of a test environment.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	config     *config.AuthConfig
	repo       *mockRepository
	tokens     *TokenService
	sessions   *SessionRegistry
	twoFactor  *TwoFactorGate
	hasher     *PasswordHasher
	mailer     *recordingMailer
	middleware *AuthMiddleware
	service    *Service
	clock      *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := newTestConfig()
	log := newTestLogger(t)
	clock := &testClock{now: time.Now()}

	repo := newMockRepository()
	tokens, err := NewTokenService(cfg)
	require.NoError(t, err)
	tokens.now = clock.Now

	hasher := NewPasswordHasher(cfg.BcryptCost)
	sessions := NewSessionRegistry(repo, log)
	sessions.now = clock.Now
	twoFactor := NewTwoFactorGate(&config.TwoFactorConfig{Issuer: "CRM Test"}, repo, hasher, log)
	twoFactor.now = clock.Now
	mailer := newRecordingMailer()

	service := NewService(ServiceParams{
		Config:     cfg,
		Log:        log,
		Repository: repo,
		Tokens:     tokens,
		Sessions:   sessions,
		TwoFactor:  twoFactor,
		Hasher:     hasher,
		Mailer:     mailer,
	})
	service.now = clock.Now

	return &testEnv{
		config:     cfg,
		repo:       repo,
		tokens:     tokens,
		sessions:   sessions,
		twoFactor:  twoFactor,
		hasher:     hasher,
		mailer:     mailer,
		middleware: NewAuthMiddleware(tokens, repo, log),
		service:    service,
		clock:      clock,
	}
}

// register creates a password account and returns its first session.
func (e *testEnv) register(t *testing.T, email string) *AuthResult {
	t.Helper()
	result, err := e.service.Register(context.Background(), RegisterInput{
		Email:    email,
		Name:     "Alice",
		Password: testPassword,
	})
	require.NoError(t, err)
	return result
}
