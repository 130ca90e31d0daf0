package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"authapi/internal/models"
)

type memoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User // by id
	now   func() time.Time
}

// NewMemoryUserRepository returns a process-local store for development and tests.
// Stored values are cloned on the way in and out.
func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{
		users: make(map[string]*models.User),
		now:   time.Now,
	}
}

func (r *memoryUserRepository) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == user.Email {
			return ErrDuplicateEmail
		}
	}

	now := r.now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = user.Clone()
	return nil
}

func (r *memoryUserRepository) Save(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return ErrNotFound
	}
	for id, u := range r.users {
		if id != user.ID && u.Email == user.Email {
			return ErrDuplicateEmail
		}
	}

	user.UpdatedAt = r.now()
	r.users[user.ID] = user.Clone()
	return nil
}

func (r *memoryUserRepository) SetVerificationToken(_ context.Context, id string, pending models.PendingToken) (bool, error) {
	return r.update(id, func(u *models.User) bool {
		if u.Verified {
			return false
		}
		u.Verification = &pending
		return true
	}), nil
}

func (r *memoryUserRepository) MarkVerified(_ context.Context, id, token string) (bool, error) {
	return r.update(id, func(u *models.User) bool {
		if u.Verification == nil || u.Verification.Value != token {
			return false
		}
		u.Verified = true
		u.Verification = nil
		return true
	}), nil
}

func (r *memoryUserRepository) SetResetToken(_ context.Context, id string, pending models.PendingToken) (bool, error) {
	return r.update(id, func(u *models.User) bool {
		u.Reset = &pending
		return true
	}), nil
}

func (r *memoryUserRepository) ConsumeResetToken(_ context.Context, id, token, passwordHash string, now time.Time) (bool, error) {
	return r.update(id, func(u *models.User) bool {
		if !u.Reset.Matches(token, now) {
			return false
		}
		u.PasswordHash = passwordHash
		u.Reset = nil
		return true
	}), nil
}

// update applies apply to the stored account under the write lock; the
// change is kept only when apply reports a match.
func (r *memoryUserRepository) update(id string, apply func(*models.User) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.users[id]
	if !ok {
		return false
	}
	next := cur.Clone()
	if !apply(next) {
		return false
	}
	next.UpdatedAt = r.now()
	r.users[id] = next
	return true
}

func (r *memoryUserRepository) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Email == email }), nil
}

func (r *memoryUserRepository) FindByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.users[id].Clone(), nil
}

func (r *memoryUserRepository) FindByVerificationToken(_ context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	return r.find(func(u *models.User) bool {
		return u.Verification != nil && u.Verification.Value == token
	}), nil
}

func (r *memoryUserRepository) FindByResetToken(_ context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	return r.find(func(u *models.User) bool {
		return u.Reset != nil && u.Reset.Value == token
	}), nil
}

func (r *memoryUserRepository) find(match func(*models.User) bool) *models.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if match(u) {
			return u.Clone()
		}
	}
	return nil
}
