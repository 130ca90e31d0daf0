package utils

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrSessionMalformed = errors.New("session token malformed")
	ErrSessionSignature = errors.New("session token signature invalid")
	ErrSessionExpired   = errors.New("session token expired")
	ErrSessionInvalid   = errors.New("session token invalid")
)

// SessionClaims: полезная нагрузка сессионного JWT.
type SessionClaims struct {
	Email  string `json:"email"`
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// SessionIssuer signs and verifies HS256 session tokens with a fixed TTL.
type SessionIssuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewSessionIssuer(secret []byte, ttl time.Duration) *SessionIssuer {
	return &SessionIssuer{key: secret, ttl: ttl, now: time.Now}
}

// SetClock overrides the time source used for iat/exp and validation.
func (s *SessionIssuer) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *SessionIssuer) TTL() time.Duration { return s.ttl }

func (s *SessionIssuer) Issue(userID, email string) (string, error) {
	now := s.now()
	claims := &SessionClaims{
		Email:  email,
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify checks signature and expiry. No leeway: any defect rejects the token.
func (s *SessionIssuer) Verify(token string) (*SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrSessionMalformed
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) {
			// принимаем только HMAC
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return s.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrSessionMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, ErrSessionSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrSessionExpired
	default:
		return nil, ErrSessionInvalid
	}
	if !parsed.Valid {
		return nil, ErrSessionInvalid
	}
	if claims.UserID == "" || claims.Email == "" {
		return nil, ErrSessionMalformed
	}
	return claims, nil
}
