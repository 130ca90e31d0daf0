package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"authapi/internal/metrics"
	"authapi/internal/models"
	"authapi/internal/repositories"
	"authapi/internal/utils"
	"authapi/internal/validation"
)

// SessionTokens signs and checks session tokens.
type SessionTokens interface {
	Issue(userID, email string) (string, error)
	Verify(token string) (*utils.SessionClaims, error)
}

// AuthService: регистрация, вход и проверка сессии.
type AuthService interface {
	Register(ctx context.Context, req models.RegistrationRequest) (*models.Profile, error)
	Login(ctx context.Context, email, password string) (string, error)
	IsVerified(ctx context.Context, email string) (bool, error)
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

type authService struct {
	users        repositories.UserRepository
	hasher       Hasher
	sessions     SessionTokens
	verification VerificationService
	log          *slog.Logger
	metrics      *metrics.Metrics
}

func NewAuthService(
	users repositories.UserRepository,
	hasher Hasher,
	sessions SessionTokens,
	verification VerificationService,
	log *slog.Logger,
	m *metrics.Metrics,
) AuthService {
	return &authService{
		users:        users,
		hasher:       hasher,
		sessions:     sessions,
		verification: verification,
		log:          log.With("component", "auth"),
		metrics:      m,
	}
}

// Register creates an unverified account and starts email verification.
//
// The duplicate check and the insert are separate store calls. Two racing
// registrations for one email both pass the check; the loser is rejected by
// the store's unique constraint and also gets ErrEmailAlreadyExists.
//
// If the account was created but the verification email could not be sent,
// the profile is returned together with an ErrNotification error.
func (s *authService) Register(ctx context.Context, req models.RegistrationRequest) (*models.Profile, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Mobile = strings.TrimSpace(req.Mobile)

	if errs := validation.Registration(req.Email, req.FirstName, req.LastName, req.Mobile, req.Password); len(errs) > 0 {
		return nil, validationErr(errs)
	}

	existing, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, storeErr("find user by email", err)
	}
	if existing != nil {
		return nil, ErrEmailAlreadyExists
	}

	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, hashingErr("hash password", err)
	}

	user := &models.User{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Mobile:       req.Mobile,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicateEmail) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, storeErr("create user", err)
	}
	s.log.InfoContext(ctx, "user registered", "user_id", user.ID)

	profile := user.Profile()
	if err := s.verification.StartVerification(ctx, user.Email); err != nil {
		return profile, err
	}
	return profile, nil
}

// Login never tells an unknown email apart from a wrong password.
// Unverified accounts are refused before the password is compared.
func (s *authService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return "", storeErr("find user by email", err)
	}
	if user == nil {
		s.metrics.Login("invalid_credentials")
		return "", ErrInvalidCredentials
	}
	if !user.Verified {
		s.metrics.Login("not_verified")
		return "", ErrAccountNotVerified
	}

	ok, err := s.hasher.Verify(ctx, password, user.PasswordHash)
	if err != nil {
		return "", hashingErr("verify password", err)
	}
	if !ok {
		s.metrics.Login("invalid_credentials")
		return "", ErrInvalidCredentials
	}

	token, err := s.sessions.Issue(user.ID, user.Email)
	if err != nil {
		return "", oops.Code("session_error").In("session-issuer").Wrapf(err, "issue session token")
	}
	s.metrics.Login("ok")
	s.log.InfoContext(ctx, "user logged in", "user_id", user.ID)
	return token, nil
}

func (s *authService) IsVerified(ctx context.Context, email string) (bool, error) {
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return false, storeErr("find user by email", err)
	}
	if user == nil {
		return false, ErrUserNotFound
	}
	return user.Verified, nil
}

// Authenticate resolves a session token to its account.
func (s *authService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.sessions.Verify(token)
	if err != nil {
		return nil, errors.Join(ErrUnauthenticated, err)
	}
	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, storeErr("find user by id", err)
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}
