package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"authapi/internal/handlers"
	"authapi/internal/middleware"
)

// SetupRoutes registers the account API under /api/v1.
func SetupRoutes(
	r *gin.Engine,
	authHandler *handlers.AuthHandler,
	gate middleware.VerificationGate,
	authn middleware.Authenticator,
	log *slog.Logger,
) *gin.Engine {
	api := r.Group("/api/v1")

	// ---- public
	api.POST("/registration", authHandler.Register)
	api.POST("/login", middleware.CheckVerified(gate, log), authHandler.Login)
	api.GET("/verify-email/:token", authHandler.VerifyEmail)
	api.PATCH("/resend-verification-email", authHandler.ResendVerification)

	api.PATCH("/request-reset", authHandler.RequestReset)
	api.PATCH("/reset-password", authHandler.ResetPassword)
	api.PATCH("/resend-reset-link", authHandler.ResendResetLink)

	// ---- protected
	protected := api.Group("", middleware.AuthMiddleware(authn, log))
	{
		protected.GET("/me", authHandler.Me)
	}

	return r
}
