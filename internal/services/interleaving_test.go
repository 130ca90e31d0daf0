package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authapi/internal/models"
	"authapi/internal/repositories"
	"authapi/internal/utils"
)

// gapStore runs hook once, right after the first lookup of kind returns,
// so another flow changes the account between a caller's read and its write.
type gapStore struct {
	repositories.UserRepository
	kind string
	hook func()
	done bool
}

func (s *gapStore) gap(kind string) {
	if kind == s.kind && !s.done {
		s.done = true
		s.hook()
	}
}

func (s *gapStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := s.UserRepository.FindByEmail(ctx, email)
	s.gap("email")
	return u, err
}

func (s *gapStore) FindByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	u, err := s.UserRepository.FindByVerificationToken(ctx, token)
	s.gap("verification")
	return u, err
}

func (s *gapStore) FindByResetToken(ctx context.Context, token string) (*models.User, error) {
	u, err := s.UserRepository.FindByResetToken(ctx, token)
	s.gap("reset")
	return u, err
}

// servicesWithGap builds a second pair of lifecycle services over the
// fixture's store; their lookups of kind pause for hook.
func (f *fixture) servicesWithGap(kind string, hook func()) (VerificationService, PasswordResetService) {
	store := &gapStore{UserRepository: f.users, kind: kind, hook: hook}
	tokens := utils.NewTokenGenerator(utils.MinTokenBytes)
	return NewVerificationService(store, tokens, f.notifier, verificationTTL, discard, nil, f.clock.Now),
		NewPasswordResetService(store, tokens, f.hasher, f.notifier, resetTTL, discard, nil, f.clock.Now)
}

func TestRequestReset_KeepsVerificationDoneMeanwhile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.register(t, "a@x.com")

	_, reset := f.servicesWithGap("email", func() {
		_, err := f.verification.ConsumeVerification(ctx, v)
		require.NoError(t, err)
	})
	require.NoError(t, reset.RequestReset(ctx, "a@x.com"))

	u := f.user(t, "a@x.com")
	assert.True(t, u.Verified, "verified must never revert")
	assert.Nil(t, u.Verification)
	assert.NotNil(t, u.Reset)

	_, err := f.verification.ConsumeVerification(ctx, v)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestResendVerification_KeepsPasswordResetMeanwhile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "a@x.com")
	require.NoError(t, f.reset.RequestReset(ctx, "a@x.com"))
	r := f.notifier.last(t, "reset", "a@x.com")

	verification, _ := f.servicesWithGap("email", func() {
		require.NoError(t, f.reset.ResetPassword(ctx, r, "NewPass12"))
	})
	require.NoError(t, verification.ResendVerification(ctx, "a@x.com"))

	u := f.user(t, "a@x.com")
	assert.Nil(t, u.Reset)
	ok, err := f.hasher.Verify(ctx, "NewPass12", u.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok, "old hash must not come back")
	assert.NotNil(t, u.Verification)

	assert.ErrorIs(t, f.reset.ResetPassword(ctx, r, "Other1234"), ErrTokenNotFound)
}

func TestResendVerification_AccountVerifiedMeanwhile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.register(t, "a@x.com")
	sent := f.notifier.count()

	verification, _ := f.servicesWithGap("email", func() {
		_, err := f.verification.ConsumeVerification(ctx, v)
		require.NoError(t, err)
	})
	assert.ErrorIs(t, verification.ResendVerification(ctx, "a@x.com"), ErrAlreadyVerified)

	u := f.user(t, "a@x.com")
	assert.True(t, u.Verified)
	assert.Nil(t, u.Verification)
	assert.Equal(t, sent, f.notifier.count(), "no link for a verified account")
}

func TestConsumeVerification_TokenReplacedMeanwhile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v1 := f.register(t, "a@x.com")

	verification, _ := f.servicesWithGap("verification", func() {
		require.NoError(t, f.verification.ResendVerification(ctx, "a@x.com"))
	})
	_, err := verification.ConsumeVerification(ctx, v1)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.False(t, f.user(t, "a@x.com").Verified)

	v2 := f.notifier.last(t, "verification", "a@x.com")
	_, err = f.verification.ConsumeVerification(ctx, v2)
	assert.NoError(t, err)
}

func TestResetPassword_SecondConsumerLoses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.registerVerified(t, "a@x.com")
	require.NoError(t, f.reset.RequestReset(ctx, "a@x.com"))
	r := f.notifier.last(t, "reset", "a@x.com")

	_, reset := f.servicesWithGap("reset", func() {
		require.NoError(t, f.reset.ResetPassword(ctx, r, "First1234"))
	})
	assert.ErrorIs(t, reset.ResetPassword(ctx, r, "Second123"), ErrTokenNotFound)

	_, err := f.auth.Login(ctx, "a@x.com", "First1234")
	assert.NoError(t, err)
	_, err = f.auth.Login(ctx, "a@x.com", "Second123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLifecycles_ConcurrentOnOneAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.register(t, "a@x.com")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.reset.RequestReset(ctx, "a@x.com")
		}()
	}
	_, err := f.verification.ConsumeVerification(ctx, v)
	require.NoError(t, err)
	wg.Wait()

	u := f.user(t, "a@x.com")
	assert.True(t, u.Verified)
	assert.Nil(t, u.Verification)
	assert.NotNil(t, u.Reset)
}
