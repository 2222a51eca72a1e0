package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"readzone/config"
	"readzone/internal/delivery/api/middleware"
	"readzone/internal/delivery/api/response"
	"readzone/internal/domain/entity"
	"readzone/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api/v1/auth"
)

// AuthHandlerParams holds dependencies for AuthHandler, injected by Fx.
type AuthHandlerParams struct {
	fx.In

	AuthUC usecase.AuthUsecase
	Config *config.Config
	Logger *slog.Logger
}

// AuthHandler holds dependencies for authentication-related handlers
type AuthHandler struct {
	authUC       usecase.AuthUsecase
	secureCookie bool
	logger       *slog.Logger
}

// NewAuthHandler is the constructor for AuthHandler
func NewAuthHandler(params AuthHandlerParams) *AuthHandler {
	return &AuthHandler{
		authUC:       params.AuthUC,
		secureCookie: params.Config.HTTP.SecureCookie,
		logger:       params.Logger,
	}
}

// RegisterRequest represents the request body for account registration
type RegisterRequest struct {
	Handle   string `json:"handle" validate:"required,min=3,max=32"`
	Email    string `json:"email" validate:"omitempty,email"`
	Nickname string `json:"nickname" validate:"required,max=50"`
	Password string `json:"password" validate:"required"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Handle   string `json:"handle" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest carries an optional refresh token; the cookie is used when absent
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// PasswordResetRequest represents a "forgot password" submission
type PasswordResetRequest struct {
	Email        string `json:"email" validate:"required,email"`
	CaptchaToken string `json:"captchaToken"`
}

// ConfirmPasswordResetRequest represents the request body for consuming a reset token
type ConfirmPasswordResetRequest struct {
	Token           string `json:"token" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

// VerifyEmailRequest represents the request body for consuming a verification token
type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

// VerificationEmailRequest asks for a (new) verification email
type VerificationEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// CheckDuplicateRequest is bound from the query string
type CheckDuplicateRequest struct {
	Field string `query:"field" json:"field" validate:"required,oneof=handle email nickname"`
	Value string `query:"value" json:"value" validate:"required"`
}

// TokenResponse is the body returned whenever a token pair is issued
type TokenResponse struct {
	AccessToken          string             `json:"accessToken"`
	RefreshToken         string             `json:"refreshToken"`
	AccessTokenExpiresAt time.Time          `json:"accessTokenExpiresAt"`
	RefreshTokenMaxAgeMs int64              `json:"refreshTokenMaxAgeMs"`
	User                 *entity.PublicUser `json:"user,omitempty"`
	RevokedSessions      *int               `json:"revokedSessions,omitempty"`
}

// Register handles account registration
func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid registration input")
	}

	if err := c.Validate(&req); err != nil {
		return response.HandleAppError(c, err)
	}

	output, err := h.authUC.Register(c.Request().Context(), &usecase.RegisterInput{
		Handle:   req.Handle,
		Email:    req.Email,
		Nickname: req.Nickname,
		Password: req.Password,
	})
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusCreated, map[string]any{
		"user":                  output.User,
		"verificationEmailSent": output.VerificationEmailSent,
	})
}

// Login handles handle/password login
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid login input")
	}

	if err := c.Validate(&req); err != nil {
		return response.HandleAppError(c, err)
	}

	output, err := h.authUC.Login(c.Request().Context(), &usecase.LoginInput{
		Handle:    req.Handle,
		Password:  req.Password,
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return response.HandleAppError(c, err)
	}

	h.setRefreshCookie(c, output.RefreshToken, output.RefreshTokenMaxAgeMs)

	return response.Success(c, http.StatusOK, TokenResponse{
		AccessToken:          output.AccessToken,
		RefreshToken:         output.RefreshToken,
		AccessTokenExpiresAt: output.AccessTokenExpiresAt,
		RefreshTokenMaxAgeMs: output.RefreshTokenMaxAgeMs,
		User:                 output.User,
	})
}

// RefreshToken rotates the presented refresh token into a new pair
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	var req RefreshTokenRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid refresh token input")
	}

	output, err := h.authUC.Refresh(c.Request().Context(), &usecase.RefreshInput{
		RefreshToken: refreshTokenFrom(c, req.RefreshToken),
	})
	if err != nil {
		h.clearRefreshCookie(c)

		return response.HandleAppError(c, err)
	}

	h.setRefreshCookie(c, output.RefreshToken, output.RefreshTokenMaxAgeMs)

	return response.Success(c, http.StatusOK, TokenResponse{
		AccessToken:          output.AccessToken,
		RefreshToken:         output.RefreshToken,
		AccessTokenExpiresAt: output.AccessTokenExpiresAt,
		RefreshTokenMaxAgeMs: output.RefreshTokenMaxAgeMs,
	})
}

// Logout ends the grant behind the presented refresh token. It always succeeds.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req RefreshTokenRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid logout input")
	}

	if err := h.authUC.Logout(c.Request().Context(), &usecase.LogoutInput{
		RefreshToken: refreshTokenFrom(c, req.RefreshToken),
	}); err != nil {
		return response.HandleAppError(c, err)
	}

	h.clearRefreshCookie(c)

	return response.Success(c, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// RequestPasswordReset handles "forgot password" submissions
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req PasswordResetRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid password reset input")
	}

	if err := c.Validate(&req); err != nil {
		return response.HandleAppError(c, err)
	}

	output, err := h.authUC.RequestPasswordReset(c.Request().Context(), &usecase.PasswordResetRequestInput{
		Email:        req.Email,
		CaptchaToken: req.CaptchaToken,
		IPAddress:    c.RealIP(),
		UserAgent:    c.Request().UserAgent(),
	})
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, map[string]any{
		"message":     output.Message,
		"maskedEmail": output.MaskedEmail,
		"rateLimit":   output.RateLimit,
	})
}

// CheckResetToken reports the state of a password reset link
func (h *AuthHandler) CheckResetToken(c echo.Context) error {
	output, err := h.authUC.CheckResetToken(c.Request().Context(), c.QueryParam("token"))
	if err != nil {
		return response.HandleAppError(c, err)
	}

	body := map[string]any{
		"status":        output.Status,
		"canRequestNew": output.CanRequestNew,
	}
	if output.MaskedEmail != "" {
		body["maskedEmail"] = output.MaskedEmail
	}
	if output.IssuedAt != nil {
		body["issuedAt"] = output.IssuedAt
	}
	if output.ExpiresAt != nil {
		body["expiresAt"] = output.ExpiresAt
	}

	return response.Success(c, http.StatusOK, body)
}

// ConfirmPasswordReset consumes a reset token and signs the user in again
func (h *AuthHandler) ConfirmPasswordReset(c echo.Context) error {
	var req ConfirmPasswordResetRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid password reset input")
	}

	if err := c.Validate(&req); err != nil {
		return response.HandleAppError(c, err)
	}

	output, err := h.authUC.ResetPassword(c.Request().Context(), &usecase.ResetPasswordInput{
		Token:           req.Token,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		return response.HandleAppError(c, err)
	}

	h.setRefreshCookie(c, output.RefreshToken, output.RefreshTokenMaxAgeMs)

	return response.Success(c, http.StatusOK, TokenResponse{
		AccessToken:          output.AccessToken,
		RefreshToken:         output.RefreshToken,
		AccessTokenExpiresAt: output.AccessTokenExpiresAt,
		RefreshTokenMaxAgeMs: output.RefreshTokenMaxAgeMs,
		User:                 output.User,
		RevokedSessions:      &output.RevokedSessions,
	})
}

// VerifyEmail consumes an email verification token
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req VerifyEmailRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid verification input")
	}

	if err := c.Validate(&req); err != nil {
		return response.HandleAppError(c, err)
	}

	output, err := h.authUC.VerifyEmail(c.Request().Context(), req.Token)
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, map[string]any{"user": output.User})
}

// RequestVerificationEmail sends or resends the verification email
func (h *AuthHandler) RequestVerificationEmail(c echo.Context) error {
	var req VerificationEmailRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid verification input")
	}

	if err := c.Validate(&req); err != nil {
		return response.HandleAppError(c, err)
	}

	output, err := h.authUC.RequestEmailVerification(c.Request().Context(), &usecase.EmailVerificationRequestInput{
		Email:     req.Email,
		IPAddress: c.RealIP(),
	})
	if err != nil {
		return response.HandleAppError(c, err)
	}

	if output.Status == usecase.VerificationRequestRateLimited {
		c.Response().Header().Set("Retry-After", strconv.FormatInt(output.RetryAfterSeconds, 10))

		return response.Error(c, http.StatusTooManyRequests, "RATE_LIMITED",
			"too many verification requests, please try again later",
			map[string]int64{"retryAfterSeconds": output.RetryAfterSeconds},
		)
	}

	body := map[string]any{
		"status":      output.Status,
		"maskedEmail": output.MaskedEmail,
	}
	if output.ExpiresIn != "" {
		body["expiresIn"] = output.ExpiresIn
	}

	return response.Success(c, http.StatusOK, body)
}

// CheckDuplicate reports whether a handle, email or nickname is still available
func (h *AuthHandler) CheckDuplicate(c echo.Context) error {
	var req CheckDuplicateRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid duplicate check input")
	}

	if err := c.Validate(&req); err != nil {
		return response.HandleAppError(c, err)
	}

	output, err := h.authUC.CheckDuplicate(c.Request().Context(), &usecase.CheckDuplicateInput{
		Field: req.Field,
		Value: req.Value,
	})
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, map[string]any{
		"field":     output.Field,
		"available": output.Available,
	})
}

// Me returns the authenticated user's profile
func (h *AuthHandler) Me(c echo.Context) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "UNAUTHORIZED", "Invalid user ID in token")
	}

	user, err := h.authUC.GetCurrentUser(c.Request().Context(), userID)
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, user)
}

func (h *AuthHandler) setRefreshCookie(c echo.Context, token string, maxAgeMs int64) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		MaxAge:   int(maxAgeMs / 1000),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// refreshTokenFrom prefers the body value and falls back to the cookie.
func refreshTokenFrom(c echo.Context, bodyToken string) string {
	if bodyToken != "" {
		return bodyToken
	}

	cookie, err := c.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}

	return cookie.Value
}
