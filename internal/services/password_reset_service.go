package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"authapi/internal/metrics"
	"authapi/internal/models"
	"authapi/internal/repositories"
	"authapi/internal/validation"
)

// Hasher is the credential hasher used by reset and registration.
type Hasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, hash string) (bool, error)
}

type PasswordResetService interface {
	RequestReset(ctx context.Context, email string) error
	ResendReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

type passwordResetService struct {
	users    repositories.UserRepository
	tokens   TokenSource
	hasher   Hasher
	notifier Notifier
	ttl      time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewPasswordResetService(
	users repositories.UserRepository,
	tokens TokenSource,
	hasher Hasher,
	notifier Notifier,
	ttl time.Duration,
	log *slog.Logger,
	m *metrics.Metrics,
	now func() time.Time,
) PasswordResetService {
	if now == nil {
		now = time.Now
	}
	return &passwordResetService{
		users:    users,
		tokens:   tokens,
		hasher:   hasher,
		notifier: notifier,
		ttl:      ttl,
		log:      log.With("component", "password-reset"),
		metrics:  m,
		now:      now,
	}
}

// RequestReset always issues a new token, superseding any pending one.
func (s *passwordResetService) RequestReset(ctx context.Context, email string) error {
	user, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}
	return s.issue(ctx, user)
}

// ResendReset refuses while the current token is still inside its window.
// Unlike RequestReset it never replaces a live token.
func (s *passwordResetService) ResendReset(ctx context.Context, email string) error {
	user, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}
	if user.Reset.Active(s.now()) {
		return ErrResetAlreadyPending
	}
	return s.issue(ctx, user)
}

// ResetPassword consumes a reset token. Unknown and expired tokens are
// indistinguishable: both are ErrTokenNotFound.
func (s *passwordResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if errs := validation.Password("newPassword", newPassword); len(errs) > 0 {
		return validationErr(errs)
	}

	var user *models.User
	if token != "" {
		u, err := s.users.FindByResetToken(ctx, token)
		if err != nil {
			return storeErr("find user by reset token", err)
		}
		user = u
	}
	if user == nil || !user.Reset.Matches(token, s.now()) {
		s.metrics.TokenConsumed(metrics.KindReset, "not_found")
		return ErrTokenNotFound
	}

	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return hashingErr("hash new password", err)
	}
	ok, err := s.users.ConsumeResetToken(ctx, user.ID, token, hash, s.now())
	if err != nil {
		return storeErr("save new password", err)
	}
	if !ok {
		s.metrics.TokenConsumed(metrics.KindReset, "not_found")
		return ErrTokenNotFound
	}
	s.metrics.TokenConsumed(metrics.KindReset, "ok")
	s.log.InfoContext(ctx, "password reset", "user_id", user.ID)
	return nil
}

func (s *passwordResetService) lookup(ctx context.Context, email string) (*models.User, error) {
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, storeErr("find user by email", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// issue persists first, then notifies; a failed delivery leaves the token saved.
func (s *passwordResetService) issue(ctx context.Context, user *models.User) error {
	token, err := s.tokens.NewToken()
	if err != nil {
		return tokenErr(err)
	}
	pending := models.PendingToken{Value: token, ExpiresAt: s.now().Add(s.ttl)}
	ok, err := s.users.SetResetToken(ctx, user.ID, pending)
	if err != nil {
		return storeErr("save reset token", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	s.metrics.TokenIssued(metrics.KindReset)

	if err := s.notifier.SendResetLink(ctx, user.Email, token); err != nil {
		s.metrics.Notification(metrics.KindReset, "failed")
		s.log.ErrorContext(ctx, "reset email not delivered", "user_id", user.ID, "err", err)
		return notificationErr(metrics.KindReset, err)
	}
	s.metrics.Notification(metrics.KindReset, "ok")
	s.log.InfoContext(ctx, "reset link sent", "user_id", user.ID)
	return nil
}
