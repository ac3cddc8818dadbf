package auth

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/elskow/crm-auth/internal/api"
	"github.com/elskow/crm-auth/internal/apperror"
	"github.com/elskow/crm-auth/internal/config"
)

type Handler struct {
	service    *Service
	twoFactor  *TwoFactorGate
	middleware *AuthMiddleware
	cookies    cookieWriter
	config     *config.AuthConfig
	log        *zap.Logger
}

// RouteOptions plugs per-route middleware such as rate limits. Nil entries
// are skipped.
type RouteOptions struct {
	LoginLimit         func(http.Handler) http.Handler
	PasswordResetLimit func(http.Handler) http.Handler
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

type oauthCallbackRequest struct {
	Provider       string `json:"provider"`
	ProviderUserID string `json:"provider_user_id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	Code           string `json:"code"`
}

type enableTwoFactorRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

type disableTwoFactorRequest struct {
	Password string `json:"password"`
}

type sessionResponse struct {
	User              *User  `json:"user,omitempty"`
	AccessToken       string `json:"access_token,omitempty"`
	TwoFactorRequired bool   `json:"two_factor_required,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func NewHandler(service *Service, twoFactor *TwoFactorGate, middleware *AuthMiddleware, cfg *config.AuthConfig, log *zap.Logger) *Handler {
	return &Handler{
		service:    service,
		twoFactor:  twoFactor,
		middleware: middleware,
		cookies:    cookieWriter{secure: cfg.SecureCookies},
		config:     cfg,
		log:        log,
	}
}

// Routes returns the router mounted under api.AuthPrefix.
func (h *Handler) Routes(opts RouteOptions) chi.Router {
	r := chi.NewRouter()

	h.handle(r, http.MethodPost, api.AuthRegister, h.Register)
	h.handle(r, http.MethodPost, api.AuthLogin, h.Login, opts.LoginLimit)
	h.handle(r, http.MethodPost, api.AuthRefresh, h.Refresh)
	h.handle(r, http.MethodPost, api.AuthLogout, h.Logout)
	h.handle(r, http.MethodGet, api.AuthMe, h.Me)
	h.handle(r, http.MethodPost, api.AuthPasswordChange, h.ChangePassword)
	h.handle(r, http.MethodPost, api.AuthPasswordForgot, h.ForgotPassword, opts.PasswordResetLimit)
	h.handle(r, http.MethodPost, api.AuthPasswordReset, h.ResetPassword, opts.PasswordResetLimit)
	h.handle(r, http.MethodPost, api.AuthEmailVerifyRequest, h.RequestEmailVerification)
	h.handle(r, http.MethodPost, api.AuthEmailVerify, h.VerifyEmail)
	if h.config.OAuthCallbackEnabled {
		h.handle(r, http.MethodPost, api.AuthOAuthCallback, h.OAuthCallback)
	}
	h.handle(r, http.MethodPost, api.AuthTwoFactorSetup, h.SetupTwoFactor)
	h.handle(r, http.MethodPost, api.AuthTwoFactorEnable, h.EnableTwoFactor)
	h.handle(r, http.MethodPost, api.AuthTwoFactorDisable, h.DisableTwoFactor)

	return r
}

func (h *Handler) handle(r chi.Router, method, path string, fn http.HandlerFunc, extra ...func(http.Handler) http.Handler) {
	var handler http.Handler = fn
	if api.IsProtected(path) {
		handler = h.middleware.Authenticate(handler)
	}
	for _, mw := range extra {
		if mw != nil {
			handler = mw(handler)
		}
	}
	r.Method(method, path, handler)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	if err := validateRegisterRequest(&req); err != nil {
		h.log.Warn("invalid register request", zap.String("error", err.Error()))
		api.WriteError(w, h.log, err)
		return
	}

	result, err := h.service.Register(r.Context(), RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	h.writeSession(w, http.StatusCreated, result)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	if err := validateLoginRequest(&req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	result, err := h.service.Login(r.Context(), LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Code:     req.Code,
	})
	if err != nil {
		if apperror.KindOf(err) == apperror.Unauthorized {
			h.log.Info("login rejected", zap.Error(err))
		}
		api.WriteError(w, h.log, err)
		return
	}

	h.writeSession(w, http.StatusOK, result)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	result, err := h.service.Refresh(r.Context(), refreshTokenFromRequest(r, req.RefreshToken))
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	h.cookies.setAccess(w, result.AccessToken)
	api.WriteJSON(w, http.StatusOK, sessionResponse{
		User:        result.User,
		AccessToken: result.AccessToken,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	if err := h.service.Logout(r.Context(), refreshTokenFromRequest(r, req.RefreshToken)); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	h.cookies.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, sessionResponse{User: user})
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	var req changePasswordRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		api.WriteError(w, h.log, apperror.New(apperror.Validation, "current and new password are required"))
		return
	}

	if err := h.service.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	if !isValidEmail(normalizeEmail(req.Email)) {
		api.WriteError(w, h.log, ErrInvalidEmail)
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusAccepted, messageResponse{
		Message: "If the account exists, a reset link has been sent",
	})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	if req.Token == "" {
		api.WriteError(w, h.log, ErrTokenNotFound)
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	h.cookies.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	if err := h.service.RequestEmailVerification(r.Context(), user.ID); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusAccepted, messageResponse{Message: "Verification email sent"})
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	if req.Token == "" {
		api.WriteError(w, h.log, ErrTokenNotFound)
		return
	}

	result, err := h.service.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	h.writeSession(w, http.StatusOK, result)
}

func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	var req oauthCallbackRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	result, err := h.service.OAuthLogin(r.Context(), OAuthProfile{
		Provider:       req.Provider,
		ProviderUserID: req.ProviderUserID,
		Email:          req.Email,
		Name:           req.Name,
	}, req.Code)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	h.writeSession(w, http.StatusOK, result)
}

func (h *Handler) SetupTwoFactor(w http.ResponseWriter, r *http.Request) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	enrollment, err := h.twoFactor.BeginEnrollment(r.Context(), user.ID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, enrollment)
}

func (h *Handler) EnableTwoFactor(w http.ResponseWriter, r *http.Request) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	var req enableTwoFactorRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	if err := h.twoFactor.ConfirmEnrollment(r.Context(), user.ID, req.Secret, req.Code); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	var req disableTwoFactorRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	if err := h.twoFactor.Disable(r.Context(), user.ID, req.Password); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeSession sets the session cookies, or only reports the pending second
// factor when the account still has to present a TOTP code.
func (h *Handler) writeSession(w http.ResponseWriter, status int, result *AuthResult) {
	if result.TwoFactorRequired {
		api.WriteJSON(w, http.StatusOK, sessionResponse{TwoFactorRequired: true})
		return
	}
	h.cookies.setSession(w, result)
	api.WriteJSON(w, status, sessionResponse{
		User:        result.User,
		AccessToken: result.AccessToken,
	})
}

func validateRegisterRequest(req *registerRequest) error {
	if strings.TrimSpace(req.Email) == "" {
		return apperror.New(apperror.Validation, "email is required")
	}
	if !isValidEmail(normalizeEmail(req.Email)) {
		return ErrInvalidEmail
	}
	if req.Password == "" {
		return apperror.New(apperror.Validation, "password is required")
	}
	if len(strings.TrimSpace(req.Name)) > 100 {
		return apperror.New(apperror.Validation, "name must be at most 100 characters")
	}
	return nil
}

func validateLoginRequest(req *loginRequest) error {
	if strings.TrimSpace(req.Email) == "" {
		return apperror.New(apperror.Validation, "email is required")
	}
	if req.Password == "" {
		return apperror.New(apperror.Validation, "password is required")
	}
	return nil
}
