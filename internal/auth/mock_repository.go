package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type mockRepository struct {
	users      map[string]*User
	sessions   map[string]*Session
	userTokens map[string]*UserToken

	// resetErr, when set, fails ResetPassword before anything is changed.
	resetErr error
	mu       sync.RWMutex
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users:      make(map[string]*User),
		sessions:   make(map[string]*Session),
		userTokens: make(map[string]*UserToken),
	}
}

func (r *mockRepository) CreateUser(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user.Email = normalizeEmail(user.Email)
	if err := user.Validate(); err != nil {
		return storeError("create user", err)
	}

	for _, u := range r.users {
		if u.Email == user.Email {
			return ErrUserExists
		}
		if user.OAuthProvider != nil && u.OAuthProvider != nil &&
			*u.OAuthProvider == *user.OAuthProvider && *u.OAuthProviderID == *user.OAuthProviderID {
			return ErrUserExists
		}
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	// Clone the user to prevent external modifications
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *mockRepository) GetUserByID(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (r *mockRepository) GetUserByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	email = normalizeEmail(email)
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *mockRepository) GetUserByOAuth(_ context.Context, provider, providerUserID string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.OAuthProvider != nil && *u.OAuthProvider == provider && *u.OAuthProviderID == providerUserID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *mockRepository) UpdateTwoFactor(_ context.Context, userID string, secret *string, enabled bool) error {
	if enabled != (secret != nil) {
		return storeError("update two-factor", errTwoFactorInvariant)
	}
	return r.update(userID, func(u *User) {
		u.TwoFactorSecret = secret
		u.TwoFactorEnabled = enabled
	})
}

func (r *mockRepository) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	return r.update(userID, func(u *User) {
		u.PasswordHash = &hash
	})
}

func (r *mockRepository) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	return r.update(userID, func(u *User) {
		u.LastLoginAt = &at
	})
}

func (r *mockRepository) VerifyEmail(_ context.Context, userID string) error {
	return r.update(userID, func(u *User) {
		u.EmailVerified = true
	})
}

func (r *mockRepository) update(userID string, fn func(*User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[userID]
	if !exists {
		return ErrUserNotFound
	}
	fn(user)
	user.UpdatedAt = time.Now()
	return nil
}

func (r *mockRepository) CreateSession(_ context.Context, session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.TokenHash]; exists {
		return storeError("create session", ErrUserExists)
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	stored := *session
	r.sessions[session.TokenHash] = &stored
	return nil
}

func (r *mockRepository) GetSessionByTokenHash(_ context.Context, tokenHash string, now time.Time) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[tokenHash]
	if !exists || !session.ExpiresAt.After(now) {
		return nil, ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (r *mockRepository) DeleteSessionByTokenHash(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, tokenHash)
	return nil
}

func (r *mockRepository) DeleteSessionsByUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for hash, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, hash)
			n++
		}
	}
	return n, nil
}

func (r *mockRepository) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for hash, s := range r.sessions {
		if !s.ExpiresAt.After(now) {
			delete(r.sessions, hash)
			n++
		}
	}
	return n, nil
}

func (r *mockRepository) CreateUserToken(_ context.Context, token *UserToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash, t := range r.userTokens {
		if t.UserID == token.UserID && t.Purpose == token.Purpose {
			delete(r.userTokens, hash)
		}
	}
	stored := *token
	r.userTokens[token.TokenHash] = &stored
	return nil
}

func (r *mockRepository) ConsumeUserToken(_ context.Context, purpose TokenPurpose, tokenHash string, now time.Time) (*UserToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, exists := r.userTokens[tokenHash]
	if !exists || token.Purpose != purpose {
		return nil, ErrTokenNotFound
	}
	delete(r.userTokens, tokenHash)
	if !token.ExpiresAt.After(now) {
		return nil, ErrTokenNotFound
	}
	return token, nil
}

func (r *mockRepository) ResetPassword(_ context.Context, tokenHash, passwordHash string, now time.Time) (string, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resetErr != nil {
		return "", 0, storeError("reset password", r.resetErr)
	}

	token, exists := r.userTokens[tokenHash]
	if !exists || token.Purpose != PurposePasswordReset || !token.ExpiresAt.After(now) {
		return "", 0, ErrTokenNotFound
	}
	user, exists := r.users[token.UserID]
	if !exists {
		return "", 0, ErrUserNotFound
	}

	delete(r.userTokens, tokenHash)
	user.PasswordHash = &passwordHash
	user.UpdatedAt = time.Now()

	var revoked int64
	for hash, s := range r.sessions {
		if s.UserID == user.ID {
			delete(r.sessions, hash)
			revoked++
		}
	}
	return user.ID, revoked, nil
}

func (r *mockRepository) sessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
