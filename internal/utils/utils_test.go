package utils

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestTokenGenerator_FixedLengthHex(t *testing.T) {
	g := NewTokenGenerator(0)

	tok, err := g.NewToken()
	require.NoError(t, err)
	assert.Len(t, tok, 2*MinTokenBytes)
	assert.Equal(t, strings.Trim(tok, "0123456789abcdef"), "", "token must be lowercase hex")
}

func TestTokenGenerator_FloorIs32Bytes(t *testing.T) {
	tok, err := NewTokenGenerator(8).NewToken()
	require.NoError(t, err)
	assert.Len(t, tok, 64)

	tok, err = NewTokenGenerator(48).NewToken()
	require.NoError(t, err)
	assert.Len(t, tok, 96)
}

func TestTokenGenerator_NoCollisions(t *testing.T) {
	g := NewTokenGenerator(MinTokenBytes)
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		tok, err := g.NewToken()
		require.NoError(t, err)
		_, dup := seen[tok]
		require.False(t, dup, "duplicate token after %d draws", i)
		seen[tok] = struct{}{}
	}
}

func TestPasswordHasher_RoundTrip(t *testing.T) {
	ctx := context.Background()
	h := NewPasswordHasher(bcrypt.MinCost, 2)

	for _, pw := range []string{"Secret123", "Пароль123X", "a b c D 9", strings.Repeat("Z9", 36)} {
		hash, err := h.Hash(ctx, pw)
		require.NoError(t, err)
		assert.NotEqual(t, pw, hash)

		ok, err := h.Verify(ctx, pw, hash)
		require.NoError(t, err)
		assert.True(t, ok, "password %q must verify against its own hash", pw)

		ok, err = h.Verify(ctx, pw+"x", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestPasswordHasher_OverlongInputNeverMatches(t *testing.T) {
	ctx := context.Background()
	h := NewPasswordHasher(bcrypt.MinCost, 1)

	pw := strings.Repeat("Ab3", 24) // ровно 72 байта
	require.Len(t, pw, MaxPasswordBytes)
	hash, err := h.Hash(ctx, pw)
	require.NoError(t, err)

	for _, suffix := range []string{"x", "Secret123", strings.Repeat("z", 100)} {
		ok, err := h.Verify(ctx, pw+suffix, hash)
		require.NoError(t, err)
		assert.False(t, ok, "suffix %q past the bcrypt limit must not verify", suffix)
	}

	_, err = h.Hash(ctx, pw+"x")
	assert.Error(t, err)
}

func TestPasswordHasher_SaltedHashesDiffer(t *testing.T) {
	ctx := context.Background()
	h := NewPasswordHasher(bcrypt.MinCost, 1)

	a, err := h.Hash(ctx, "Secret123")
	require.NoError(t, err)
	b, err := h.Hash(ctx, "Secret123")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestPasswordHasher_MalformedHash(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost, 1)

	ok, err := h.Verify(context.Background(), "Secret123", "not-a-bcrypt-hash")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestPasswordHasher_CostClamp(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(0, 1).Cost())
	assert.Equal(t, bcrypt.MinCost, NewPasswordHasher(1, 1).Cost())
	assert.Equal(t, bcrypt.MaxCost, NewPasswordHasher(99, 1).Cost())
}

func TestPasswordHasher_CanceledContext(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost, 1)
	require.NoError(t, h.sem.Acquire(context.Background(), 1))
	defer h.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Hash(ctx, "Secret123")
	assert.ErrorIs(t, err, context.Canceled)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSessionIssuer_RoundTrip(t *testing.T) {
	s := NewSessionIssuer([]byte("super-secret"), time.Hour)

	tok, err := s.Issue("user-1", "a@x.com")
	require.NoError(t, err)

	claims, err := s.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "a@x.com", claims.Email)
	require.NotNil(t, claims.IssuedAt)
	require.NotNil(t, claims.ExpiresAt)
	assert.Equal(t, time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestSessionIssuer_ExpiryBoundary(t *testing.T) {
	issuedAt := time.Unix(1_700_000_000, 0)
	ttl := 30 * time.Minute

	s := NewSessionIssuer([]byte("k"), ttl)
	s.SetClock(fixedClock(issuedAt))
	tok, err := s.Issue("u1", "a@x.com")
	require.NoError(t, err)

	s.SetClock(fixedClock(issuedAt.Add(ttl - time.Second)))
	_, err = s.Verify(tok)
	require.NoError(t, err)

	s.SetClock(fixedClock(issuedAt.Add(ttl + time.Second)))
	_, err = s.Verify(tok)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestSessionIssuer_WrongSecret(t *testing.T) {
	tok, err := NewSessionIssuer([]byte("right"), time.Hour).Issue("u1", "a@x.com")
	require.NoError(t, err)

	_, err = NewSessionIssuer([]byte("wrong"), time.Hour).Verify(tok)
	assert.ErrorIs(t, err, ErrSessionSignature)
}

func TestSessionIssuer_TamperedPayload(t *testing.T) {
	s := NewSessionIssuer([]byte("k"), time.Hour)
	tok, err := s.Issue("u1", "a@x.com")
	require.NoError(t, err)

	other, err := s.Issue("u2", "b@x.com")
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	otherParts := strings.Split(other, ".")
	forged := parts[0] + "." + otherParts[1] + "." + parts[2]

	_, err = s.Verify(forged)
	assert.ErrorIs(t, err, ErrSessionSignature)
}

func TestSessionIssuer_Malformed(t *testing.T) {
	s := NewSessionIssuer([]byte("k"), time.Hour)
	for _, tok := range []string{"", "   ", "abc", "a.b.c"} {
		_, err := s.Verify(tok)
		assert.ErrorIs(t, err, ErrSessionMalformed, "token %q", tok)
	}
}

func TestSessionIssuer_RejectsNoneAlgorithm(t *testing.T) {
	claims := &SessionClaims{
		Email:  "a@x.com",
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewSessionIssuer([]byte("k"), time.Hour).Verify(tok)
	assert.ErrorIs(t, err, ErrSessionSignature)
}

func TestSessionIssuer_MissingIdentity(t *testing.T) {
	key := []byte("k")
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)

	_, err = NewSessionIssuer(key, time.Hour).Verify(tok)
	assert.ErrorIs(t, err, ErrSessionMalformed)
}
