package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elskow/crm-auth/internal/apperror"
)

// midStep sits 15 seconds into a 30 second TOTP step.
var midStep = time.Unix(1_700_000_010+15, 0).UTC()

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

// enableTwoFactor runs the full enrollment for userID and returns the secret.
func enableTwoFactor(t *testing.T, env *testEnv, userID string) string {
	t.Helper()
	ctx := context.Background()

	enrollment, err := env.twoFactor.BeginEnrollment(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, env.twoFactor.ConfirmEnrollment(ctx, userID, enrollment.Secret, codeAt(t, enrollment.Secret, env.clock.Now())))
	return enrollment.Secret
}

func TestTwoFactorGate_BeginEnrollment(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, testEmail).User

	enrollment, err := env.twoFactor.BeginEnrollment(context.Background(), user.ID)
	require.NoError(t, err)

	assert.Regexp(t, secretPattern, enrollment.Secret)
	assert.True(t, strings.HasPrefix(enrollment.URI, "otpauth://totp/"))
	assert.Contains(t, enrollment.URI, "secret="+enrollment.Secret)
	assert.True(t, strings.HasPrefix(enrollment.QRCode, "data:image/png;base64,"))

	stored, err := env.repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, stored.TwoFactorEnabled)
	assert.Nil(t, stored.TwoFactorSecret)
}

func TestTwoFactorGate_ConfirmEnrollment(t *testing.T) {
	env := newTestEnv(t)
	env.clock.now = midStep
	ctx := context.Background()
	user := env.register(t, testEmail).User

	enrollment, err := env.twoFactor.BeginEnrollment(ctx, user.ID)
	require.NoError(t, err)

	tests := []struct {
		name    string
		secret  string
		code    string
		wantErr error
	}{
		{"malformed secret", "not-base32!", codeAt(t, enrollment.Secret, midStep), ErrMalformedSecret},
		{"malformed code", enrollment.Secret, "12ab56", ErrMalformedTwoFactorCode},
		{"short code", enrollment.Secret, "12345", ErrMalformedTwoFactorCode},
		{"wrong code", enrollment.Secret, codeAt(t, enrollment.Secret, midStep.Add(-10*time.Minute)), ErrInvalidTwoFactorCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.twoFactor.ConfirmEnrollment(ctx, user.ID, tt.secret, tt.code)
			assert.ErrorIs(t, err, tt.wantErr)

			stored, err := env.repo.GetUserByID(ctx, user.ID)
			require.NoError(t, err)
			assert.False(t, stored.TwoFactorEnabled)
		})
	}

	t.Run("valid code enables", func(t *testing.T) {
		lower := strings.ToLower(enrollment.Secret)
		require.NoError(t, env.twoFactor.ConfirmEnrollment(ctx, user.ID, lower, codeAt(t, enrollment.Secret, midStep)))

		stored, err := env.repo.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, stored.TwoFactorEnabled)
		require.NotNil(t, stored.TwoFactorSecret)
		assert.Equal(t, enrollment.Secret, *stored.TwoFactorSecret)
	})

	t.Run("already enabled", func(t *testing.T) {
		_, err := env.twoFactor.BeginEnrollment(ctx, user.ID)
		assert.ErrorIs(t, err, ErrTwoFactorAlreadyEnabled)
		assert.Equal(t, apperror.Conflict, apperror.KindOf(err))

		err = env.twoFactor.ConfirmEnrollment(ctx, user.ID, enrollment.Secret, codeAt(t, enrollment.Secret, midStep))
		assert.ErrorIs(t, err, ErrTwoFactorAlreadyEnabled)
	})
}

func TestTwoFactorGate_VerificationWindow(t *testing.T) {
	env := newTestEnv(t)
	env.clock.now = midStep
	user := env.register(t, testEmail).User
	secret := enableTwoFactor(t, env, user.ID)

	tests := []struct {
		name   string
		offset time.Duration
		valid  bool
	}{
		{"current step", 0, true},
		{"one step back", -30 * time.Second, true},
		{"two steps back", -60 * time.Second, true},
		{"one step ahead", 30 * time.Second, true},
		{"two steps ahead", 60 * time.Second, true},
		{"three steps back", -90 * time.Second, false},
		{"three steps ahead", 90 * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := codeAt(t, secret, midStep.Add(tt.offset))
			err := env.twoFactor.VerifyLoginCode(context.Background(), user.ID, code)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidTwoFactorCode)
			assert.Equal(t, apperror.Unauthorized, apperror.KindOf(err))
		})
	}
}

func TestTwoFactorGate_ConfiguredSkew(t *testing.T) {
	one, zero := uint(1), uint(0)

	tests := []struct {
		name     string
		skew     *uint
		accepted []time.Duration
		rejected []time.Duration
	}{
		{
			name:     "unset falls back to two steps",
			accepted: []time.Duration{-60 * time.Second, 60 * time.Second},
			rejected: []time.Duration{-90 * time.Second},
		},
		{
			name:     "one step",
			skew:     &one,
			accepted: []time.Duration{-30 * time.Second, 30 * time.Second},
			rejected: []time.Duration{-60 * time.Second, 60 * time.Second},
		},
		{
			name:     "zero accepts the current step only",
			skew:     &zero,
			accepted: []time.Duration{0},
			rejected: []time.Duration{-30 * time.Second, 30 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.clock.now = midStep
			ctx := context.Background()
			user := env.register(t, testEmail).User
			secret := enableTwoFactor(t, env, user.ID)
			env.twoFactor.config.Skew = tt.skew

			for _, offset := range tt.accepted {
				err := env.twoFactor.VerifyLoginCode(ctx, user.ID, codeAt(t, secret, midStep.Add(offset)))
				assert.NoError(t, err, "offset %s", offset)
			}
			for _, offset := range tt.rejected {
				err := env.twoFactor.VerifyLoginCode(ctx, user.ID, codeAt(t, secret, midStep.Add(offset)))
				assert.ErrorIs(t, err, ErrInvalidTwoFactorCode, "offset %s", offset)
			}
		})
	}
}

func TestTwoFactorGate_VerifyWithoutTwoFactor(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, testEmail).User

	err := env.twoFactor.VerifyLoginCode(context.Background(), user.ID, "123456")
	assert.ErrorIs(t, err, ErrInvalidTwoFactorCode)
}

func TestTwoFactorGate_Disable(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong password", func(t *testing.T) {
		env := newTestEnv(t)
		user := env.register(t, testEmail).User
		enableTwoFactor(t, env, user.ID)

		err := env.twoFactor.Disable(ctx, user.ID, "wrong-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		stored, err := env.repo.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, stored.TwoFactorEnabled)
	})

	t.Run("not enabled", func(t *testing.T) {
		env := newTestEnv(t)
		user := env.register(t, testEmail).User

		err := env.twoFactor.Disable(ctx, user.ID, testPassword)
		assert.ErrorIs(t, err, ErrTwoFactorNotEnabled)
		assert.Equal(t, apperror.Conflict, apperror.KindOf(err))
	})

	t.Run("oauth only account", func(t *testing.T) {
		env := newTestEnv(t)
		result, err := env.service.OAuthLogin(ctx, OAuthProfile{
			Provider:       "google",
			ProviderUserID: "g-1",
			Email:          testEmail,
		}, "")
		require.NoError(t, err)
		enableTwoFactor(t, env, result.User.ID)

		err = env.twoFactor.Disable(ctx, result.User.ID, "anything")
		assert.ErrorIs(t, err, ErrPasswordNotSet)
		assert.Equal(t, apperror.Forbidden, apperror.KindOf(err))
	})

	t.Run("success clears the secret", func(t *testing.T) {
		env := newTestEnv(t)
		user := env.register(t, testEmail).User
		enableTwoFactor(t, env, user.ID)

		require.NoError(t, env.twoFactor.Disable(ctx, user.ID, testPassword))

		stored, err := env.repo.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.False(t, stored.TwoFactorEnabled)
		assert.Nil(t, stored.TwoFactorSecret)

		_, err = env.twoFactor.BeginEnrollment(ctx, user.ID)
		assert.NoError(t, err)
	})
}
