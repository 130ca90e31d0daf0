package models

import "time"

// PendingToken: одноразовый токен вместе со сроком действия.
// Пара существует целиком или не существует вовсе (nil на аккаунте).
type PendingToken struct {
	Value     string    `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// Matches is the single lookup predicate: token == stored AND now <= expiry.
func (p *PendingToken) Matches(token string, now time.Time) bool {
	if p == nil || p.Value == "" || p.Value != token {
		return false
	}
	return !now.After(p.ExpiresAt)
}

// Active reports whether the token is still inside its validity window (now < expiry).
func (p *PendingToken) Active(now time.Time) bool {
	return p != nil && now.Before(p.ExpiresAt)
}

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FirstName    string `json:"firstname"`
	LastName     string `json:"lastname"`
	Mobile       string `json:"mobile"`
	PasswordHash string `json:"-"` // не отдаём наружу
	Verified     bool   `json:"verified"`

	// pending-токены: nil: нет активной верификации / сброса
	Verification *PendingToken `json:"-"`
	Reset        *PendingToken `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so stores never share pending tokens with callers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	if u.Verification != nil {
		v := *u.Verification
		cp.Verification = &v
	}
	if u.Reset != nil {
		r := *u.Reset
		cp.Reset = &r
	}
	return &cp
}

// Profile: публичные поля аккаунта (без хеша пароля и токенов).
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Mobile    string `json:"mobile"`
}

func (u *User) Profile() *Profile {
	return &Profile{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Mobile:    u.Mobile,
	}
}

type RegistrationRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Mobile    string `json:"mobile"`
	Password  string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}
