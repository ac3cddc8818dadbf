package auth

import (
	"context"
	"encoding/base64"
	"regexp"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/elskow/crm-auth/internal/config"
)

const (
	totpPeriod     = 30
	totpSecretSize = 20
	defaultQRSize  = 256
	defaultSkew    = 2
)

var (
	secretPattern = regexp.MustCompile(`^[A-Z2-7]{16,}=*$`)
	codePattern   = regexp.MustCompile(`^\d{6}$`)
)

// Enrollment is handed back to the client. The secret is not stored until the
// client proves possession of it through ConfirmEnrollment.
type Enrollment struct {
	Secret string `json:"secret"`
	URI    string `json:"otpauth_uri"`
	QRCode string `json:"qr_code"`
}

// TwoFactorGate drives the disabled -> pending -> enabled -> disabled life
// cycle of TOTP based two-factor authentication.
type TwoFactorGate struct {
	config     *config.TwoFactorConfig
	repository Repository
	hasher     *PasswordHasher
	log        *zap.Logger
	now        func() time.Time
}

func NewTwoFactorGate(cfg *config.TwoFactorConfig, repo Repository, hasher *PasswordHasher, log *zap.Logger) *TwoFactorGate {
	return &TwoFactorGate{
		config:     cfg,
		repository: repo,
		hasher:     hasher,
		log:        log,
		now:        time.Now,
	}
}

func (g *TwoFactorGate) BeginEnrollment(ctx context.Context, userID string) (*Enrollment, error) {
	user, err := g.repository.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      g.config.Issuer,
		AccountName: user.Email,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, storeError("generate totp secret", err)
	}

	qr, err := qrDataURI(key.URL(), g.qrSize())
	if err != nil {
		return nil, err
	}

	return &Enrollment{
		Secret: key.Secret(),
		URI:    key.URL(),
		QRCode: qr,
	}, nil
}

func (g *TwoFactorGate) ConfirmEnrollment(ctx context.Context, userID, secret, code string) error {
	secret = strings.ToUpper(strings.TrimSpace(secret))
	if !secretPattern.MatchString(secret) {
		return ErrMalformedSecret
	}

	user, err := g.repository.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.TwoFactorEnabled {
		return ErrTwoFactorAlreadyEnabled
	}

	if err := g.validate(secret, code); err != nil {
		return err
	}

	if err := g.repository.UpdateTwoFactor(ctx, userID, &secret, true); err != nil {
		return err
	}
	g.log.Info("two-factor authentication enabled", zap.String("user_id", userID))
	return nil
}

// Disable requires the account password so a hijacked session alone cannot
// turn two-factor off.
func (g *TwoFactorGate) Disable(ctx context.Context, userID, password string) error {
	user, err := g.repository.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPassword() {
		return ErrPasswordNotSet
	}
	if !user.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}
	if !g.hasher.CheckPasswordHash(password, *user.PasswordHash) {
		return ErrInvalidCredentials
	}

	if err := g.repository.UpdateTwoFactor(ctx, userID, nil, false); err != nil {
		return err
	}
	g.log.Info("two-factor authentication disabled", zap.String("user_id", userID))
	return nil
}

func (g *TwoFactorGate) VerifyLoginCode(ctx context.Context, userID, code string) error {
	user, err := g.repository.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	return g.verifyUser(user, code)
}

func (g *TwoFactorGate) verifyUser(user *User, code string) error {
	if !user.TwoFactorEnabled || user.TwoFactorSecret == nil {
		return ErrInvalidTwoFactorCode
	}
	return g.validate(*user.TwoFactorSecret, code)
}

func (g *TwoFactorGate) validate(secret, code string) error {
	code = strings.TrimSpace(code)
	if !codePattern.MatchString(code) {
		return ErrMalformedTwoFactorCode
	}

	ok, err := totp.ValidateCustom(code, secret, g.now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      g.skew(),
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !ok {
		return ErrInvalidTwoFactorCode
	}
	return nil
}

func (g *TwoFactorGate) skew() uint {
	if g.config.Skew == nil {
		return defaultSkew
	}
	return *g.config.Skew
}

func (g *TwoFactorGate) qrSize() int {
	if g.config.QRSize <= 0 {
		return defaultQRSize
	}
	return g.config.QRSize
}

func qrDataURI(content string, size int) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return "", storeError("encode qr code", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
