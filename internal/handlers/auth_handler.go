package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"authapi/internal/middleware"
	"authapi/internal/models"
	"authapi/internal/services"
	"authapi/internal/validation"
)

type AuthHandler struct {
	auth         services.AuthService
	verification services.VerificationService
	reset        services.PasswordResetService
	log          *slog.Logger
}

func NewAuthHandler(
	auth services.AuthService,
	verification services.VerificationService,
	reset services.PasswordResetService,
	log *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:         auth,
		verification: verification,
		reset:        reset,
		log:          log.With("component", "auth-handler"),
	}
}

// @Summary      Регистрация
// @Description  Создаёт неподтверждённый аккаунт и отправляет ссылку подтверждения на email
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.RegistrationRequest  true  "Данные регистрации"
// @Success      201   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]interface{}
// @Failure      500   {object}  map[string]interface{}
// @Router       /registration [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	profile, err := h.auth.Register(c.Request.Context(), req)
	if err != nil {
		// аккаунт создан, но письмо не ушло: пользователь может запросить повтор
		if profile != nil && errors.Is(err, services.ErrNotification) {
			h.log.ErrorContext(c.Request.Context(), "registration email failed", "user_id", profile.ID, "err", err)
			succeed(c, http.StatusCreated,
				"Registration successful, but the verification email could not be sent. Please request a new one.",
				gin.H{"data": profile})
			return
		}
		fail(c, h.log, "register", err)
		return
	}
	succeed(c, http.StatusCreated, "Registration successful. Please check your email to verify your account.", gin.H{"data": profile})
}

// @Summary      Вход в систему
// @Description  Проверяет пароль подтверждённого аккаунта и возвращает session token
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.LoginRequest  true  "Данные для входа"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]interface{}
// @Failure      401   {object}  map[string]interface{}
// @Failure      500   {object}  map[string]interface{}
// @Router       /login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	// тело уже прочитано CheckVerified, поэтому ShouldBindBodyWith
	var req models.LoginRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		badRequest(c)
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, h.log, "login", err)
		return
	}
	succeed(c, http.StatusOK, "Login successful", gin.H{"token": token})
}

// @Summary      Подтверждение email
// @Tags         Auth
// @Produce      json
// @Param        token  path      string  true  "Токен из письма"
// @Success      200    {object}  map[string]interface{}
// @Failure      400    {object}  map[string]interface{}
// @Router       /verify-email/{token} [get]
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	if _, err := h.verification.ConsumeVerification(c.Request.Context(), c.Param("token")); err != nil {
		fail(c, h.log, "verify-email", err)
		return
	}
	succeed(c, http.StatusOK, "Email successfully verified", nil)
}

// @Summary      Повторная отправка письма подтверждения
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.EmailRequest  true  "Email"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]interface{}
// @Router       /resend-verification-email [patch]
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	email, ok := bindEmail(c)
	if !ok {
		return
	}

	err := h.verification.ResendVerification(c.Request.Context(), email)
	switch {
	case err == nil:
		succeed(c, http.StatusOK, "Verification email resent successfully.", nil)
	case errors.Is(err, services.ErrUserNotFound):
		// здесь 400, а не 404
		c.JSON(http.StatusBadRequest, gin.H{"status": statusFailed, "message": "User not found"})
	default:
		fail(c, h.log, "resend-verification", err)
	}
}

// @Summary      Запрос сброса пароля
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.EmailRequest  true  "Email"
// @Success      200   {object}  map[string]interface{}
// @Failure      404   {object}  map[string]interface{}
// @Router       /request-reset [patch]
func (h *AuthHandler) RequestReset(c *gin.Context) {
	email, ok := bindEmail(c)
	if !ok {
		return
	}
	if err := h.reset.RequestReset(c.Request.Context(), email); err != nil {
		fail(c, h.log, "request-reset", err)
		return
	}
	succeed(c, http.StatusOK, "Password reset email sent", nil)
}

// @Summary      Сброс пароля по токену
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.ResetPasswordRequest  true  "Токен и новый пароль"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]interface{}
// @Router       /reset-password [patch]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	if err := h.reset.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		fail(c, h.log, "reset-password", err)
		return
	}
	succeed(c, http.StatusOK, "Password reset successful", nil)
}

// @Summary      Повторная ссылка сброса
// @Description  Отказывает, пока предыдущая ссылка ещё действует
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.EmailRequest  true  "Email"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]interface{}
// @Failure      404   {object}  map[string]interface{}
// @Router       /resend-reset-link [patch]
func (h *AuthHandler) ResendResetLink(c *gin.Context) {
	email, ok := bindEmail(c)
	if !ok {
		return
	}
	if err := h.reset.ResendReset(c.Request.Context(), email); err != nil {
		fail(c, h.log, "resend-reset-link", err)
		return
	}
	succeed(c, http.StatusOK, "New password reset email sent", nil)
}

// @Summary      Текущий пользователь
// @Tags         Auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]interface{}
// @Router       /me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"status": statusFailed, "message": "Unauthorized"})
		return
	}
	succeed(c, http.StatusOK, "OK", gin.H{"data": user.Profile()})
}

func bindEmail(c *gin.Context) (string, bool) {
	var req models.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return "", false
	}
	email := strings.TrimSpace(req.Email)
	if errs := validation.Required("email", email, "Email is required"); len(errs) > 0 {
		validationFailed(c, errs)
		return "", false
	}
	return email, true
}
