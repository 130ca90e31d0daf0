package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"authapi/internal/models"
	"authapi/internal/services"
)

type VerificationGate interface {
	IsVerified(ctx context.Context, email string) (bool, error)
}

// CheckVerified rejects login attempts for accounts that have not confirmed
// their email, before any password comparison happens.
//
// Unknown emails are passed through so the login handler answers them with
// the same 401 as a wrong password. The body is read with ShouldBindBodyWith,
// so the next handler must bind the same way.
func CheckVerified(gate VerificationGate, log *slog.Logger) gin.HandlerFunc {
	log = log.With("component", "verified-gate")
	return func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"status": "failed", "message": "Invalid request body"})
			return
		}
		email := strings.TrimSpace(req.Email)
		if email == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"status": "failed", "message": "Email is required"})
			return
		}

		ok, err := gate.IsVerified(c.Request.Context(), email)
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			c.Next()
			return
		case err != nil:
			log.ErrorContext(c.Request.Context(), "verification check failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"status": "failed", "message": "Internal Server Error"})
			return
		case !ok:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "failed",
				"message": "Your account is not verified. Please verify your email before logging in.",
			})
			return
		}
		c.Next()
	}
}
