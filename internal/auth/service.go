package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elskow/crm-auth/internal/apperror"
	"github.com/elskow/crm-auth/internal/config"
)

const (
	defaultPasswordResetDuration     = time.Hour
	defaultEmailVerificationDuration = 24 * time.Hour
	userTokenBytes                   = 32
)

type Service struct {
	config     *config.AuthConfig
	log        *zap.Logger
	repository Repository
	tokens     *TokenService
	sessions   *SessionRegistry
	twoFactor  *TwoFactorGate
	hasher     *PasswordHasher
	mailer     Mailer
	now        func() time.Time
}

type ServiceParams struct {
	Config     *config.AuthConfig
	Log        *zap.Logger
	Repository Repository
	Tokens     *TokenService
	Sessions   *SessionRegistry
	TwoFactor  *TwoFactorGate
	Hasher     *PasswordHasher
	Mailer     Mailer
}

// AuthResult is returned by every flow that ends in a signed-in user. When
// TwoFactorRequired is set no tokens are issued.
type AuthResult struct {
	User              *User
	AccessToken       string
	RefreshToken      string
	TwoFactorRequired bool
}

type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

type LoginInput struct {
	Email    string
	Password string
	Code     string
}

// OAuthProfile is the identity resolved by the provider exchange.
type OAuthProfile struct {
	Provider       string
	ProviderUserID string
	Email          string
	Name           string
}

func NewService(p ServiceParams) *Service {
	return &Service{
		config:     p.Config,
		log:        p.Log,
		repository: p.Repository,
		tokens:     p.Tokens,
		sessions:   p.Sessions,
		twoFactor:  p.TwoFactor,
		hasher:     p.Hasher,
		mailer:     p.Mailer,
		now:        time.Now,
	}
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := normalizeEmail(in.Email)
	if !isValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	if _, err := s.repository.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hashedPassword, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: &hashedPassword,
		Role:         RoleUser,
	}
	if err := s.repository.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("user registered", zap.String("user_id", user.ID))

	if err := s.sendVerification(ctx, user); err != nil {
		s.log.Error("failed to send verification email", zap.String("user_id", user.ID), zap.Error(err))
	}

	return s.startSession(ctx, user)
}

func (s *Service) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return nil, apperror.New(apperror.Validation, "email and password are required")
	}

	user, err := s.repository.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.hasher.CheckUserPassword(nil, in.Password) // Prevent timing attacks
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !s.hasher.CheckUserPassword(user, in.Password) {
		return nil, ErrInvalidCredentials
	}

	return s.signIn(ctx, user, in.Code)
}

// Refresh mints a new access token. The refresh token must both verify and
// still have a live session that belongs to the same user.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	session, err := s.sessions.FindByToken(ctx, refreshToken)
	if err != nil {
		if apperror.KindOf(err) == apperror.Internal {
			return nil, err
		}
		return nil, ErrInvalidToken
	}
	if session.UserID != claims.UserID {
		s.log.Warn("refresh token subject does not match session owner",
			zap.String("session_id", session.ID))
		return nil, ErrInvalidToken
	}

	user, err := s.repository.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	accessToken, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Logout revokes the session behind the refresh token. Unknown or already
// revoked tokens are not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.Delete(ctx, refreshToken)
}

func (s *Service) Me(ctx context.Context, userID string) (*User, error) {
	return s.repository.GetUserByID(ctx, userID)
}

func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.repository.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPassword() {
		return ErrPasswordNotSet
	}
	if !s.hasher.CheckPasswordHash(currentPassword, *user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if newPassword == currentPassword {
		return ErrPasswordUnchanged
	}

	hashedPassword, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.repository.UpdatePasswordHash(ctx, userID, hashedPassword); err != nil {
		return err
	}

	s.log.Info("password changed", zap.String("user_id", userID))
	return nil
}

// RequestPasswordReset never reports whether the email is registered.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.repository.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}

	token, err := s.issueUserToken(ctx, user.ID, PurposePasswordReset, s.durationOr(s.config.PasswordResetDuration, defaultPasswordResetDuration))
	if err != nil {
		return err
	}

	return s.mailer.SendPasswordReset(ctx, user, buildLink(s.config.AppURL, "reset-password", token))
}

// ResetPassword sets a new password and revokes every session of the user.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hashedPassword, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return err
	}

	userID, revoked, err := s.repository.ResetPassword(ctx, hashToken(token), hashedPassword, s.now())
	if err != nil {
		return err
	}

	s.log.Info("password reset",
		zap.String("user_id", userID),
		zap.Int64("revoked_sessions", revoked))
	return nil
}

func (s *Service) RequestEmailVerification(ctx context.Context, userID string) error {
	user, err := s.repository.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return ErrEmailAlreadyVerified
	}
	return s.sendVerification(ctx, user)
}

func (s *Service) VerifyEmail(ctx context.Context, token string) (*AuthResult, error) {
	userToken, err := s.repository.ConsumeUserToken(ctx, PurposeEmailVerification, hashToken(token), s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repository.VerifyEmail(ctx, userToken.UserID); err != nil {
		return nil, err
	}

	user, err := s.repository.GetUserByID(ctx, userToken.UserID)
	if err != nil {
		return nil, err
	}

	s.log.Info("email verified", zap.String("user_id", user.ID))
	return s.signIn(ctx, user, "")
}

// OAuthLogin signs in the account bound to the provider identity, creating an
// OAuth-only account on first use. Existing password accounts are never
// linked implicitly. code is the TOTP code for accounts with two-factor on.
func (s *Service) OAuthLogin(ctx context.Context, profile OAuthProfile, code string) (*AuthResult, error) {
	provider := strings.ToLower(strings.TrimSpace(profile.Provider))
	providerUserID := strings.TrimSpace(profile.ProviderUserID)
	if provider == "" || providerUserID == "" {
		return nil, ErrInvalidOAuthProfile
	}

	user, err := s.repository.GetUserByOAuth(ctx, provider, providerUserID)
	if err == nil {
		return s.signIn(ctx, user, code)
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	email := normalizeEmail(profile.Email)
	if !isValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if _, err := s.repository.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrOAuthEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	user = &User{
		ID:              uuid.NewString(),
		Email:           email,
		Name:            strings.TrimSpace(profile.Name),
		Role:            RoleUser,
		EmailVerified:   true,
		OAuthProvider:   &provider,
		OAuthProviderID: &providerUserID,
	}
	if err := s.repository.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("oauth account created",
		zap.String("user_id", user.ID),
		zap.String("provider", provider))
	return s.startSession(ctx, user)
}

// signIn is the single gate in front of startSession for existing accounts.
// Without a code an account with two-factor enabled gets no tokens.
func (s *Service) signIn(ctx context.Context, user *User, code string) (*AuthResult, error) {
	if user.TwoFactorEnabled {
		if strings.TrimSpace(code) == "" {
			return &AuthResult{User: user, TwoFactorRequired: true}, nil
		}
		if err := s.twoFactor.verifyUser(user, code); err != nil {
			return nil, err
		}
	}
	return s.startSession(ctx, user)
}

func (s *Service) startSession(ctx context.Context, user *User) (*AuthResult, error) {
	accessToken, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}
	if _, err := s.sessions.Create(ctx, user.ID, refreshToken, s.tokens.RefreshTTL()); err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.repository.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.log.Error("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = &now
	}

	return &AuthResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (s *Service) sendVerification(ctx context.Context, user *User) error {
	token, err := s.issueUserToken(ctx, user.ID, PurposeEmailVerification, s.durationOr(s.config.EmailVerificationDuration, defaultEmailVerificationDuration))
	if err != nil {
		return err
	}
	return s.mailer.SendEmailVerification(ctx, user, buildLink(s.config.AppURL, "verify-email", token))
}

func (s *Service) issueUserToken(ctx context.Context, userID string, purpose TokenPurpose, ttl time.Duration) (string, error) {
	raw := make([]byte, userTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", storeError("generate user token", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	now := s.now()
	err := s.repository.CreateUserToken(ctx, &UserToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: hashToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *Service) durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func isValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
