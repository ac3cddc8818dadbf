package auth

import "github.com/elskow/crm-auth/internal/apperror"

// Verification failures share one message per surface so a caller cannot
// tell which check failed.
var (
	ErrUserNotFound    = apperror.New(apperror.NotFound, "user not found")
	ErrUserExists      = apperror.New(apperror.Conflict, "user already exists")
	ErrSessionNotFound = apperror.New(apperror.Unauthorized, "invalid or expired session")
	ErrTokenNotFound   = apperror.New(apperror.Unauthorized, "invalid or expired token")

	ErrInvalidCredentials = apperror.New(apperror.Unauthorized, "invalid credentials")
	ErrInvalidToken       = apperror.New(apperror.Unauthorized, "invalid or expired token")
	ErrUnauthenticated    = apperror.New(apperror.Unauthorized, "authentication required")
	ErrForbidden          = apperror.New(apperror.Forbidden, "insufficient permissions")

	ErrPasswordNotSet    = apperror.New(apperror.Forbidden, "account has no password")
	ErrWeakPassword      = apperror.New(apperror.Validation, "password must be between 8 and 72 characters")
	ErrPasswordUnchanged = apperror.New(apperror.Validation, "new password must differ from the current one")
	ErrInvalidEmail      = apperror.New(apperror.Validation, "invalid email format")

	ErrTwoFactorAlreadyEnabled = apperror.New(apperror.Conflict, "two-factor authentication is already enabled")
	ErrTwoFactorNotEnabled     = apperror.New(apperror.Conflict, "two-factor authentication is not enabled")
	ErrInvalidTwoFactorCode    = apperror.New(apperror.Unauthorized, "invalid two-factor code")
	ErrMalformedTwoFactorCode  = apperror.New(apperror.Validation, "two-factor code must be 6 digits")
	ErrMalformedSecret         = apperror.New(apperror.Validation, "invalid two-factor secret")

	ErrEmailAlreadyVerified = apperror.New(apperror.Conflict, "email is already verified")
	ErrOAuthEmailTaken      = apperror.New(apperror.Conflict, "email is registered with another sign-in method")
	ErrInvalidOAuthProfile  = apperror.New(apperror.Validation, "oauth provider and provider user id are required")
)
