package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/elskow/crm-auth/internal/api"
	"github.com/elskow/crm-auth/internal/apperror"
)

// Define a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key used to store the authenticated user in the context
	UserContextKey contextKey = "user"
)

type AuthMiddleware struct {
	tokens     *TokenService
	repository Repository
	log        *zap.Logger
}

func NewAuthMiddleware(tokens *TokenService, repo Repository, log *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:     tokens,
		repository: repo,
		log:        log,
	}
}

// Authenticate accepts the access token from the access_token cookie or an
// Authorization bearer header and resolves its subject.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.authenticate(r)
		if err != nil {
			if apperror.KindOf(err) != apperror.Internal {
				m.log.Debug("authentication failed",
					zap.String("path", r.URL.Path),
					zap.Error(err))
				err = ErrUnauthenticated
			}
			api.WriteError(w, m.log, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

func (m *AuthMiddleware) authenticate(r *http.Request) (*User, error) {
	token := accessTokenFromRequest(r)
	if token == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := m.tokens.VerifyAccessToken(token)
	if err != nil {
		return nil, err
	}

	user, err := m.repository.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if apperror.KindOf(err) == apperror.NotFound {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

// RequireRole must run after Authenticate.
func (m *AuthMiddleware) RequireRole(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r.Context())
			if err != nil {
				api.WriteError(w, m.log, err)
				return
			}
			if user.Role != role {
				m.log.Warn("role check failed",
					zap.String("user_id", user.ID),
					zap.String("required", string(role)))
				api.WriteError(w, m.log, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// Helper function to get the user from context
func UserFromContext(ctx context.Context) (*User, error) {
	user, ok := ctx.Value(UserContextKey).(*User)
	if !ok || user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

func accessTokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}
