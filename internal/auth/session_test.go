package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistry_CreateAndFind(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.sessions.Create(ctx, "user-1", "refresh-token", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, hashToken("refresh-token"), session.TokenHash)
	assert.NotEqual(t, "refresh-token", session.TokenHash)
	assert.Equal(t, env.clock.Now().Add(time.Hour), session.ExpiresAt)

	found, err := env.sessions.FindByToken(ctx, "refresh-token")
	require.NoError(t, err)
	assert.Equal(t, session.ID, found.ID)
	assert.Equal(t, "user-1", found.UserID)
}

func TestSessionRegistry_FindByToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.sessions.Create(ctx, "user-1", "live", time.Hour)
	require.NoError(t, err)
	_, err = env.sessions.Create(ctx, "user-1", "stale", time.Minute)
	require.NoError(t, err)
	env.clock.Advance(2 * time.Minute)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"live session", "live", nil},
		{"expired but not swept", "stale", ErrSessionNotFound},
		{"unknown token", "unknown", ErrSessionNotFound},
		{"empty token", "", ErrSessionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.sessions.FindByToken(ctx, tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSessionRegistry_DeleteIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.sessions.Create(ctx, "user-1", "refresh-token", time.Hour)
	require.NoError(t, err)

	require.NoError(t, env.sessions.Delete(ctx, "refresh-token"))
	require.NoError(t, env.sessions.Delete(ctx, "refresh-token"))
	require.NoError(t, env.sessions.Delete(ctx, ""))

	_, err = env.sessions.FindByToken(ctx, "refresh-token")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionRegistry_DeleteAllForUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, token := range []string{"a", "b", "c"} {
		_, err := env.sessions.Create(ctx, "user-1", token, time.Hour)
		require.NoError(t, err)
	}
	_, err := env.sessions.Create(ctx, "user-2", "d", time.Hour)
	require.NoError(t, err)

	removed, err := env.sessions.DeleteAllForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	assert.Equal(t, 1, env.repo.sessionCount())

	_, err = env.sessions.FindByToken(ctx, "d")
	assert.NoError(t, err)
}

func TestSessionRegistry_SweepExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.sessions.Create(ctx, "user-1", "short", time.Minute)
	require.NoError(t, err)
	_, err = env.sessions.Create(ctx, "user-1", "exact", 2*time.Minute)
	require.NoError(t, err)
	_, err = env.sessions.Create(ctx, "user-1", "long", time.Hour)
	require.NoError(t, err)

	env.clock.Advance(2 * time.Minute)

	removed, err := env.sessions.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Equal(t, 1, env.repo.sessionCount())

	_, err = env.sessions.FindByToken(ctx, "long")
	assert.NoError(t, err)

	removed, err = env.sessions.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestHashToken(t *testing.T) {
	assert.Equal(t, hashToken("abc"), hashToken("abc"))
	assert.NotEqual(t, hashToken("abc"), hashToken("abd"))
	assert.Len(t, hashToken("abc"), 64)
}
