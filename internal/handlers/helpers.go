package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"authapi/internal/services"
	"authapi/internal/validation"
)

const (
	statusSuccess = "success"
	statusFailed  = "failed"
)

// errorResponse maps a service error to a status code and a caller-safe
// message. Anything not listed is a server failure with a generic message.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrEmailAlreadyExists):
		return http.StatusBadRequest, "Email already exists"
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, services.ErrAccountNotVerified):
		return http.StatusUnauthorized, "Your account is not verified. Please verify your email before logging in."
	case errors.Is(err, services.ErrUnauthenticated):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, services.ErrTokenNotFound):
		return http.StatusBadRequest, "Invalid or expired token"
	case errors.Is(err, services.ErrTokenExpired):
		return http.StatusBadRequest, "Verification link expired. Please request a new one."
	case errors.Is(err, services.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, services.ErrAlreadyVerified):
		return http.StatusBadRequest, "Email is already verified"
	case errors.Is(err, services.ErrResetAlreadyPending):
		return http.StatusBadRequest, "Please wait before requesting a new reset link"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

// fail пишет ответ об ошибке; серверные ошибки логируются целиком,
// наружу уходит только общее сообщение.
func fail(c *gin.Context, log *slog.Logger, op string, err error) {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		validationFailed(c, verr.Fields)
		return
	}

	code, msg := errorResponse(err)
	if code >= http.StatusInternalServerError {
		log.ErrorContext(c.Request.Context(), "request failed", "op", op, "err", err)
	} else {
		log.DebugContext(c.Request.Context(), "request rejected", "op", op, "err", err)
	}
	c.JSON(code, gin.H{"status": statusFailed, "message": msg})
}

func validationFailed(c *gin.Context, fields []validation.FieldError) {
	c.JSON(http.StatusBadRequest, gin.H{
		"status":  statusFailed,
		"message": "Validation failed",
		"errors":  fields,
	})
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"status": statusFailed, "message": "Invalid request body"})
}

func succeed(c *gin.Context, code int, message string, extra gin.H) {
	body := gin.H{"status": statusSuccess, "message": message}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(code, body)
}
