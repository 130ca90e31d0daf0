package services

import (
	"context"
	"log/slog"
	"time"

	"authapi/internal/metrics"
	"authapi/internal/models"
	"authapi/internal/repositories"
)

// TokenSource mints opaque one-time tokens.
type TokenSource interface {
	NewToken() (string, error)
}

type VerificationService interface {
	StartVerification(ctx context.Context, email string) error
	ConsumeVerification(ctx context.Context, token string) (*models.User, error)
	ResendVerification(ctx context.Context, email string) error
}

type verificationService struct {
	users    repositories.UserRepository
	tokens   TokenSource
	notifier Notifier
	ttl      time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewVerificationService(
	users repositories.UserRepository,
	tokens TokenSource,
	notifier Notifier,
	ttl time.Duration,
	log *slog.Logger,
	m *metrics.Metrics,
	now func() time.Time,
) VerificationService {
	if now == nil {
		now = time.Now
	}
	return &verificationService{
		users:    users,
		tokens:   tokens,
		notifier: notifier,
		ttl:      ttl,
		log:      log.With("component", "verification"),
		metrics:  m,
		now:      now,
	}
}

// StartVerification issues a fresh token for an unverified account,
// replacing any outstanding one, and mails the link.
//
// The token is saved before delivery. If delivery fails the error is
// ErrNotification and the saved token stays valid; the caller can resend.
func (s *verificationService) StartVerification(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return storeErr("find user by email", err)
	}
	if user == nil {
		return ErrUserNotFound
	}
	if user.Verified {
		return ErrAlreadyVerified
	}

	token, err := s.tokens.NewToken()
	if err != nil {
		return tokenErr(err)
	}
	pending := models.PendingToken{Value: token, ExpiresAt: s.now().Add(s.ttl)}
	ok, err := s.users.SetVerificationToken(ctx, user.ID, pending)
	if err != nil {
		return storeErr("save verification token", err)
	}
	if !ok {
		// подтвердили параллельно, пока выпускали токен
		return ErrAlreadyVerified
	}
	s.metrics.TokenIssued(metrics.KindVerification)

	if err := s.notifier.SendVerificationLink(ctx, user.Email, token); err != nil {
		s.metrics.Notification(metrics.KindVerification, "failed")
		s.log.ErrorContext(ctx, "verification email not delivered", "user_id", user.ID, "err", err)
		return notificationErr(metrics.KindVerification, err)
	}
	s.metrics.Notification(metrics.KindVerification, "ok")
	s.log.InfoContext(ctx, "verification link sent", "user_id", user.ID)
	return nil
}

// ConsumeVerification marks the account holding token as verified.
// An expired token is reported as ErrTokenExpired and left in place.
func (s *verificationService) ConsumeVerification(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		s.metrics.TokenConsumed(metrics.KindVerification, "not_found")
		return nil, ErrTokenNotFound
	}
	user, err := s.users.FindByVerificationToken(ctx, token)
	if err != nil {
		return nil, storeErr("find user by verification token", err)
	}
	if user == nil || user.Verification == nil || user.Verification.Value != token {
		s.metrics.TokenConsumed(metrics.KindVerification, "not_found")
		return nil, ErrTokenNotFound
	}
	if s.now().After(user.Verification.ExpiresAt) {
		s.metrics.TokenConsumed(metrics.KindVerification, "expired")
		return nil, ErrTokenExpired
	}

	ok, err := s.users.MarkVerified(ctx, user.ID, token)
	if err != nil {
		return nil, storeErr("mark user verified", err)
	}
	if !ok {
		// токен успели погасить или заменить
		s.metrics.TokenConsumed(metrics.KindVerification, "not_found")
		return nil, ErrTokenNotFound
	}
	user.Verified = true
	user.Verification = nil
	s.metrics.TokenConsumed(metrics.KindVerification, "ok")
	s.log.InfoContext(ctx, "email verified", "user_id", user.ID)
	return user, nil
}

// ResendVerification is StartVerification for an explicit user request;
// the previous token stops working as soon as the new one is saved.
func (s *verificationService) ResendVerification(ctx context.Context, email string) error {
	return s.StartVerification(ctx, email)
}
