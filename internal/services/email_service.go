package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"gopkg.in/gomail.v2"
)

// Notifier delivers verification and reset links to the account owner.
// It gives no retry guarantee of its own beyond what the implementation documents.
type Notifier interface {
	SendVerificationLink(ctx context.Context, email, token string) error
	SendResetLink(ctx context.Context, email, token string) error
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromEmail    string

	// VerifyURL: база ссылки подтверждения, токен дописывается в конец.
	VerifyURL string
	// ResetURL: база ссылки сброса пароля, токен дописывается в конец.
	ResetURL string

	SendTimeout  time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

type emailService struct {
	send     func(m *gomail.Message) error
	from     string
	verify   string
	reset    string
	timeout  time.Duration
	attempts int
	backoff  time.Duration
	log      *slog.Logger
}

// NewEmailService sends mail over SMTP. Each attempt is bounded by
// SendTimeout and failed attempts are retried with exponential backoff up to
// MaxAttempts in total.
func NewEmailService(cfg EmailConfig, log *slog.Logger) Notifier {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	return newEmailService(cfg, func(m *gomail.Message) error { return dialer.DialAndSend(m) }, log)
}

func newEmailService(cfg EmailConfig, send func(m *gomail.Message) error, log *slog.Logger) *emailService {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &emailService{
		send:     send,
		from:     cfg.FromEmail,
		verify:   cfg.VerifyURL,
		reset:    cfg.ResetURL,
		timeout:  cfg.SendTimeout,
		attempts: cfg.MaxAttempts,
		backoff:  cfg.RetryBackoff,
		log:      log.With("component", "email"),
	}
}

func (s *emailService) SendVerificationLink(ctx context.Context, email, token string) error {
	link := buildLink(s.verify, token)

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Email Verification")
	m.SetBody("text/html", fmt.Sprintf(`
		<h3>Confirm your email address</h3>
		<p>Click <a href="%s">here</a> to verify your email.</p>
		<p>If you did not create an account, you can ignore this email.</p>
	`, link))

	if err := s.deliver(ctx, m); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

func (s *emailService) SendResetLink(ctx context.Context, email, token string) error {
	link := buildLink(s.reset, token)

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Password Reset Request")
	m.SetBody("text/html", fmt.Sprintf(`
		<h3>Password reset requested</h3>
		<p>You requested a password reset. Click the link below to reset your password:</p>
		<p><a href="%s">%s</a></p>
		<p>If you did not request this change, you can ignore this email.</p>
	`, link, link))

	if err := s.deliver(ctx, m); err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}
	return nil
}

func (s *emailService) deliver(ctx context.Context, m *gomail.Message) error {
	b := retry.WithMaxRetries(uint64(s.attempts-1), retry.NewExponential(s.backoff))
	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := s.sendOnce(ctx, m); err != nil {
			s.log.WarnContext(ctx, "smtp send failed",
				"to", strings.Join(m.GetHeader("To"), ","),
				"attempt", attempt,
				"err", err,
			)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// sendOnce bounds a single SMTP exchange. gomail has no context support, so
// an attempt that outlives the timeout is abandoned, not interrupted.
func (s *emailService) sendOnce(ctx context.Context, m *gomail.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.send(m) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildLink(base, token string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(token)
}

type logNotifier struct {
	verify string
	reset  string
	log    *slog.Logger
}

// NewLogNotifier is the dry-run notifier: links are written to the log at
// debug level instead of being mailed.
// NewLogNotifier is the development notifier: nothing is sent and the full
// link, token included, goes to the log at debug level only.
func NewLogNotifier(verifyURL, resetURL string, log *slog.Logger) Notifier {
	return &logNotifier{verify: verifyURL, reset: resetURL, log: log.With("component", "email", "mode", "dry-run")}
}

func (n *logNotifier) SendVerificationLink(ctx context.Context, email, token string) error {
	n.log.DebugContext(ctx, "verification link", "to", email, "link", buildLink(n.verify, token))
	return nil
}

func (n *logNotifier) SendResetLink(ctx context.Context, email, token string) error {
	n.log.DebugContext(ctx, "reset link", "to", email, "link", buildLink(n.reset, token))
	return nil
}
