// Package router contains routing and server setup for the HTTP delivery.
package router

import (
	"readzone/internal/delivery/api/middleware"
	"readzone/internal/delivery/api/router/handler"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In

	AuthHandler    *handler.AuthHandler
	SessionHandler *handler.SessionHandler
	AuthMiddleware *middleware.AuthMiddleware
}

// router holds all the handlers that need to be registered.
type router struct {
	authHandler    *handler.AuthHandler
	sessionHandler *handler.SessionHandler
	authMiddleware *middleware.AuthMiddleware
}

// NewRouter is the constructor for the Router.
// Fx will inject the required handlers here.
func NewRouter(params RouterParams) *router {
	return &router{
		authHandler:    params.AuthHandler,
		sessionHandler: params.SessionHandler,
		authMiddleware: params.AuthMiddleware,
	}
}

// RegisterRoutes sets up all the API routes for the application.
func (r *router) RegisterRoutes(e *echo.Echo) {
	// Health check endpoint
	e.GET("/health", handler.HealthCheck)

	authGroup := e.Group("/api/v1/auth")
	{
		authGroup.POST("/register", r.authHandler.Register)
		authGroup.POST("/login", r.authHandler.Login)
		authGroup.POST("/refresh", r.authHandler.RefreshToken)
		authGroup.POST("/logout", r.authHandler.Logout)
		authGroup.GET("/check-duplicate", r.authHandler.CheckDuplicate)

		authGroup.POST("/password-reset/request", r.authHandler.RequestPasswordReset)
		authGroup.GET("/password-reset/check", r.authHandler.CheckResetToken)
		authGroup.POST("/password-reset/confirm", r.authHandler.ConfirmPasswordReset)

		authGroup.POST("/verify-email", r.authHandler.VerifyEmail)
		authGroup.POST("/verification/send", r.authHandler.RequestVerificationEmail)
		authGroup.POST("/verification/resend", r.authHandler.RequestVerificationEmail)
	}

	// Routes that require a valid access token
	protected := authGroup.Group("", r.authMiddleware.Authenticate)
	{
		protected.GET("/me", r.authHandler.Me)
		protected.GET("/sessions", r.sessionHandler.GetSessions)
		protected.DELETE("/sessions/:id", r.sessionHandler.RevokeSession)
		protected.DELETE("/sessions", r.sessionHandler.RevokeAllSessions)
	}
}
