package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"authapi/internal/models"
	"authapi/internal/services"
)

// Ключи gin-контекста, которые выставляет AuthMiddleware.
const (
	CtxUser   = "user"
	CtxUserID = "user_id"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// bearerToken вытаскивает токен из "Authorization: Bearer <token>".
func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// AuthMiddleware requires a valid session token and puts the account into
// the gin context.
func AuthMiddleware(auth Authenticator, log *slog.Logger) gin.HandlerFunc {
	log = log.With("component", "auth-middleware")
	return func(c *gin.Context) {
		// пропускаем preflight
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "failed", "message": "Unauthorized: No token provided"})
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		switch {
		case err == nil:
		case errors.Is(err, services.ErrUnauthenticated):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "failed", "message": "Unauthorized: Invalid token"})
			return
		default:
			log.ErrorContext(c.Request.Context(), "authenticate failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"status": "failed", "message": "Internal Server Error"})
			return
		}

		c.Set(CtxUser, user)
		c.Set(CtxUserID, user.ID)
		c.Next()
	}
}

// CurrentUser returns the account set by AuthMiddleware.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(CtxUser)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok && u != nil
}
