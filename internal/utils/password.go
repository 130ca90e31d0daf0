package utils

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// MaxPasswordBytes: bcrypt смотрит только на первые 72 байта.
const MaxPasswordBytes = 72

// PasswordHasher hashes and verifies passwords with bcrypt.
//
// bcrypt is CPU bound, so concurrent Hash/Verify calls are limited by a
// weighted semaphore; waiting callers give up when their context is done.
type PasswordHasher struct {
	cost int
	sem  *semaphore.Weighted
}

// NewPasswordHasher clamps cost into bcrypt's valid range (0 means
// bcrypt.DefaultCost) and defaults concurrency to GOMAXPROCS.
func NewPasswordHasher(cost, concurrency int) *PasswordHasher {
	switch {
	case cost == 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &PasswordHasher{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(concurrency)),
	}
}

func (h *PasswordHasher) Cost() int { return h.cost }

func (h *PasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify returns (false, nil) on mismatch and an error only when the stored
// hash is malformed or the context ends before a slot frees up.
//
// Input longer than MaxPasswordBytes never matches: Hash cannot produce a
// hash for it, and bcrypt would otherwise compare only its prefix.
func (h *PasswordHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	if len(password) > MaxPasswordBytes {
		return false, nil
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
