package auth

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/elskow/crm-auth/internal/apperror"
)

// Repository is the credential store: users, sessions and single-use tokens.
type Repository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByOAuth(ctx context.Context, provider, providerUserID string) (*User, error)
	UpdateTwoFactor(ctx context.Context, userID string, secret *string, enabled bool) error
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
	VerifyEmail(ctx context.Context, userID string) error

	CreateSession(ctx context.Context, session *Session) error
	// GetSessionByTokenHash ignores rows that expired at or before now.
	GetSessionByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*Session, error)
	DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error
	DeleteSessionsByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	// CreateUserToken replaces any outstanding token of the same purpose.
	CreateUserToken(ctx context.Context, token *UserToken) error
	// ConsumeUserToken removes the token and returns it if it was still valid.
	ConsumeUserToken(ctx context.Context, purpose TokenPurpose, tokenHash string, now time.Time) (*UserToken, error)
	// ResetPassword consumes a password reset token, stores the new hash and
	// deletes every session of the token owner in one transaction. On any
	// failure the token stays usable.
	ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (userID string, revoked int64, err error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateUser(ctx context.Context, user *User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserExists
		}
		return storeError("create user", err)
	}
	return nil
}

func (r *repository) GetUserByID(ctx context.Context, id string) (*User, error) {
	return r.findUser(ctx, "id = ?", id)
}

func (r *repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return r.findUser(ctx, "email = ?", normalizeEmail(email))
}

func (r *repository) GetUserByOAuth(ctx context.Context, provider, providerUserID string) (*User, error) {
	return r.findUser(ctx, "oauth_provider = ? AND oauth_provider_id = ?", provider, providerUserID)
}

func (r *repository) findUser(ctx context.Context, query string, args ...any) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).Where(query, args...).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeError("find user", err)
	}
	return &user, nil
}

func (r *repository) UpdateTwoFactor(ctx context.Context, userID string, secret *string, enabled bool) error {
	if enabled != (secret != nil) {
		return apperror.Wrap(apperror.Internal, "internal error", errTwoFactorInvariant)
	}
	return r.updateUser(ctx, userID, map[string]any{
		"two_factor_secret":  secret,
		"two_factor_enabled": enabled,
	})
}

func (r *repository) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return r.updateUser(ctx, userID, map[string]any{"password_hash": hash})
}

func (r *repository) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	return r.updateUser(ctx, userID, map[string]any{"last_login_at": at})
}

func (r *repository) VerifyEmail(ctx context.Context, userID string) error {
	return r.updateUser(ctx, userID, map[string]any{"email_verified": true})
}

func (r *repository) updateUser(ctx context.Context, userID string, values map[string]any) error {
	res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(values)
	if res.Error != nil {
		return storeError("update user", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *repository) CreateSession(ctx context.Context, session *Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return storeError("create session", err)
	}
	return nil
}

func (r *repository) GetSessionByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*Session, error) {
	var session Session
	err := r.db.WithContext(ctx).
		Where("token_hash = ? AND expires_at > ?", tokenHash, now).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, storeError("find session", err)
	}
	return &session, nil
}

func (r *repository) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&Session{}).Error; err != nil {
		return storeError("delete session", err)
	}
	return nil
}

func (r *repository) DeleteSessionsByUser(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&Session{})
	if res.Error != nil {
		return 0, storeError("delete user sessions", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *repository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&Session{})
	if res.Error != nil {
		return 0, storeError("delete expired sessions", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *repository) CreateUserToken(ctx context.Context, token *UserToken) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND purpose = ?", token.UserID, token.Purpose).
			Delete(&UserToken{}).Error; err != nil {
			return err
		}
		return tx.Create(token).Error
	})
	if err != nil {
		return storeError("create user token", err)
	}
	return nil
}

func (r *repository) ConsumeUserToken(ctx context.Context, purpose TokenPurpose, tokenHash string, now time.Time) (*UserToken, error) {
	var tokens []UserToken
	res := r.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("token_hash = ? AND purpose = ?", tokenHash, purpose).
		Delete(&tokens)
	if res.Error != nil {
		return nil, storeError("consume user token", res.Error)
	}
	if len(tokens) == 0 || !tokens[0].ExpiresAt.After(now) {
		return nil, ErrTokenNotFound
	}
	return &tokens[0], nil
}

func (r *repository) ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, int64, error) {
	var (
		userID  string
		revoked int64
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tokens []UserToken
		if err := tx.Clauses(clause.Returning{}).
			Where("token_hash = ? AND purpose = ?", tokenHash, PurposePasswordReset).
			Delete(&tokens).Error; err != nil {
			return err
		}
		if len(tokens) == 0 || !tokens[0].ExpiresAt.After(now) {
			return ErrTokenNotFound
		}
		userID = tokens[0].UserID

		res := tx.Model(&User{}).Where("id = ?", userID).Updates(map[string]any{"password_hash": passwordHash})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}

		res = tx.Where("user_id = ?", userID).Delete(&Session{})
		if res.Error != nil {
			return res.Error
		}
		revoked = res.RowsAffected
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) || errors.Is(err, ErrUserNotFound) {
			return "", 0, err
		}
		return "", 0, storeError("reset password", err)
	}
	return userID, revoked, nil
}

func storeError(op string, err error) error {
	return apperror.Internalf("%s: %w", op, err)
}
