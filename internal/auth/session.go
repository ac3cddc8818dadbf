package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionRegistry tracks issued refresh tokens so they can be revoked. Tokens
// are stored as SHA-256 digests; the registry never mints tokens itself.
type SessionRegistry struct {
	repository Repository
	log        *zap.Logger
	now        func() time.Time
}

func NewSessionRegistry(repo Repository, log *zap.Logger) *SessionRegistry {
	return &SessionRegistry{
		repository: repo,
		log:        log,
		now:        time.Now,
	}
}

func (r *SessionRegistry) Create(ctx context.Context, userID, refreshToken string, ttl time.Duration) (*Session, error) {
	now := r.now()
	session := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: hashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := r.repository.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// FindByToken returns ErrSessionNotFound for unknown tokens and for rows that
// expired but have not been swept yet.
func (r *SessionRegistry) FindByToken(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrSessionNotFound
	}
	return r.repository.GetSessionByTokenHash(ctx, hashToken(refreshToken), r.now())
}

// Delete is idempotent.
func (r *SessionRegistry) Delete(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return r.repository.DeleteSessionByTokenHash(ctx, hashToken(refreshToken))
}

func (r *SessionRegistry) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	return r.repository.DeleteSessionsByUser(ctx, userID)
}

func (r *SessionRegistry) SweepExpired(ctx context.Context) (int64, error) {
	removed, err := r.repository.DeleteExpiredSessions(ctx, r.now())
	if err != nil {
		return 0, err
	}
	r.log.Info("swept expired sessions", zap.Int64("removed", removed))
	return removed, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
