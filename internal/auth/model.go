package auth

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type TokenPurpose string

const (
	PurposePasswordReset     TokenPurpose = "password_reset"
	PurposeEmailVerification TokenPurpose = "email_verification"
)

var (
	errNoCredential       = errors.New("user has neither a password nor an oauth identity")
	errPartialOAuth       = errors.New("oauth provider and provider user id must be set together")
	errTwoFactorInvariant = errors.New("two-factor secret must be set iff two-factor is enabled")
	errEmptyEmail         = errors.New("email is required")
	errUnknownRole        = errors.New("unknown role")
)

type User struct {
	ID               string     `gorm:"primaryKey;type:uuid" json:"id"`
	Email            string     `gorm:"uniqueIndex;not null" json:"email"`
	Name             string     `gorm:"not null;default:''" json:"name"`
	PasswordHash     *string    `json:"-"`
	Role             Role       `gorm:"type:varchar(16);not null;default:user" json:"role"`
	EmailVerified    bool       `gorm:"not null;default:false" json:"email_verified"`
	TwoFactorEnabled bool       `gorm:"column:two_factor_enabled;not null;default:false" json:"two_factor_enabled"`
	TwoFactorSecret  *string    `gorm:"column:two_factor_secret" json:"-"`
	OAuthProvider    *string    `gorm:"column:oauth_provider;uniqueIndex:idx_users_oauth" json:"oauth_provider,omitempty"`
	OAuthProviderID  *string    `gorm:"column:oauth_provider_id;uniqueIndex:idx_users_oauth" json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"-"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// HasPassword reports whether the account can authenticate with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Validate checks the record-level invariants of a user row.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Email) == "" {
		return errEmptyEmail
	}
	if u.Role != RoleUser && u.Role != RoleAdmin {
		return errUnknownRole
	}
	if (u.OAuthProvider == nil) != (u.OAuthProviderID == nil) {
		return errPartialOAuth
	}
	if !u.HasPassword() && u.OAuthProvider == nil {
		return errNoCredential
	}
	if u.TwoFactorEnabled != (u.TwoFactorSecret != nil) {
		return errTwoFactorInvariant
	}
	return nil
}

// BeforeCreate normalises the email and rejects rows that break the user
// invariants. Column updates go through targeted repository methods instead.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	u.Email = normalizeEmail(u.Email)
	return u.Validate()
}

type Session struct {
	ID        string `gorm:"primaryKey;type:uuid"`
	UserID    string `gorm:"type:uuid;index;not null"`
	TokenHash string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"index;not null"`
}

func (Session) TableName() string {
	return "sessions"
}

// UserToken is a single-use token for password reset or email verification.
type UserToken struct {
	ID        string       `gorm:"primaryKey;type:uuid"`
	UserID    string       `gorm:"type:uuid;index;not null"`
	Purpose   TokenPurpose `gorm:"type:varchar(32);not null"`
	TokenHash string       `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"not null"`
}

func (UserToken) TableName() string {
	return "user_tokens"
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
