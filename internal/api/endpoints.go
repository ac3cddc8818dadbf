package api

// Route prefixes
const (
	AuthPrefix  = "/api/auth"
	AdminPrefix = "/api/admin"
)

// Authentication endpoints, relative to AuthPrefix
const (
	AuthRegister           = "/register"
	AuthLogin              = "/login"
	AuthRefresh            = "/refresh"
	AuthLogout             = "/logout"
	AuthMe                 = "/me"
	AuthPasswordChange     = "/password/change"
	AuthPasswordForgot     = "/password/forgot"
	AuthPasswordReset      = "/password/reset"
	AuthEmailVerifyRequest = "/email/verify/request"
	AuthEmailVerify        = "/email/verify"
	AuthOAuthCallback      = "/oauth/callback"
	AuthTwoFactorSetup     = "/2fa/setup"
	AuthTwoFactorEnable    = "/2fa/enable"
	AuthTwoFactorDisable   = "/2fa/disable"
)

// Admin endpoints, relative to AdminPrefix
const (
	AdminMaintenanceSweep = "/maintenance/sweep"
	AdminMaintenanceStats = "/maintenance/stats"
)

// PublicEndpoints defines endpoints that don't require authentication
var PublicEndpoints = map[string]bool{
	AuthRegister:       true,
	AuthLogin:          true,
	AuthRefresh:        true,
	AuthLogout:         true,
	AuthPasswordForgot: true,
	AuthPasswordReset:  true,
	AuthEmailVerify:    true,
	AuthOAuthCallback:  true,
}

// IsProtected reports whether the auth endpoint requires an access token.
func IsProtected(path string) bool {
	isPublic, exists := PublicEndpoints[path]
	return !exists || !isPublic
}
