package auth

import (
	"net/http"
	"time"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"

	accessCookieMaxAge  = 24 * time.Hour
	refreshCookieMaxAge = 30 * 24 * time.Hour
)

type cookieWriter struct {
	secure bool
}

func (c cookieWriter) setAccess(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.build(AccessTokenCookie, token, accessCookieMaxAge))
}

func (c cookieWriter) setSession(w http.ResponseWriter, result *AuthResult) {
	c.setAccess(w, result.AccessToken)
	http.SetCookie(w, c.build(RefreshTokenCookie, result.RefreshToken, refreshCookieMaxAge))
}

func (c cookieWriter) clear(w http.ResponseWriter) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		cookie := c.build(name, "", 0)
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
		http.SetCookie(w, cookie)
	}
}

func (c cookieWriter) build(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func refreshTokenFromRequest(r *http.Request, body string) string {
	if cookie, err := r.Cookie(RefreshTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return body
}
