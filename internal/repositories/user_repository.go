package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"authapi/internal/models"
)

var (
	// ErrDuplicateEmail: нарушение уникальности email при Create.
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrNotFound: Save для несуществующей строки.
	ErrNotFound = errors.New("user not found")
)

const uniqueViolation = "23505"

// UserRepository is the durable store of user accounts.
//
// Lookup misses return (nil, nil): absence is not an error.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByVerificationToken(ctx context.Context, token string) (*models.User, error)
	FindByResetToken(ctx context.Context, token string) (*models.User, error)
	// Create assigns ID, CreatedAt and UpdatedAt on user.
	Create(ctx context.Context, user *models.User) error
	// Save persists every mutable field of user in one statement.
	Save(ctx context.Context, user *models.User) error

	// Точечные записи жизненного цикла: каждая трогает только свои колонки,
	// поэтому параллельные потоки одного аккаунта не затирают друг друга.
	// false: строка не подошла под условие (состояние уже изменилось).

	// SetVerificationToken replaces the pending verification of an unverified account.
	SetVerificationToken(ctx context.Context, id string, pending models.PendingToken) (bool, error)
	// MarkVerified sets verified and clears the pending verification while token is still stored.
	MarkVerified(ctx context.Context, id, token string) (bool, error)
	// SetResetToken replaces the pending reset.
	SetResetToken(ctx context.Context, id string, pending models.PendingToken) (bool, error)
	// ConsumeResetToken replaces the password hash and clears the pending reset
	// while token is stored and now <= its expiry.
	ConsumeResetToken(ctx context.Context, id, token, passwordHash string, now time.Time) (bool, error)
}

type userRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{DB: db}
}

const userColumns = `
	id, email, first_name, last_name, mobile, password_hash, verified,
	verification_token, verification_token_expires_at,
	reset_token, reset_token_expires_at,
	created_at, updated_at
`

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	const q = `
		INSERT INTO users (
			email, first_name, last_name, mobile, password_hash, verified,
			verification_token, verification_token_expires_at,
			reset_token, reset_token_expires_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id, created_at, updated_at
	`
	vt, vte := pendingArgs(user.Verification)
	rt, rte := pendingArgs(user.Reset)
	err := r.DB.QueryRowContext(ctx, q,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Mobile,
		user.PasswordHash,
		user.Verified,
		vt, vte,
		rt, rte,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("users create: %w", err)
	}
	return nil
}

func (r *userRepository) Save(ctx context.Context, user *models.User) error {
	const q = `
		UPDATE users
		SET
			email=$1,
			first_name=$2,
			last_name=$3,
			mobile=$4,
			password_hash=$5,
			verified=$6,
			verification_token=$7,
			verification_token_expires_at=$8,
			reset_token=$9,
			reset_token_expires_at=$10,
			updated_at=NOW()
		WHERE id=$11
		RETURNING updated_at
	`
	vt, vte := pendingArgs(user.Verification)
	rt, rte := pendingArgs(user.Reset)
	err := r.DB.QueryRowContext(ctx, q,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Mobile,
		user.PasswordHash,
		user.Verified,
		vt, vte,
		rt, rte,
		user.ID,
	).Scan(&user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("users save: %w", err)
	}
	return nil
}

func (r *userRepository) SetVerificationToken(ctx context.Context, id string, pending models.PendingToken) (bool, error) {
	const q = `
		UPDATE users
		SET verification_token=$2, verification_token_expires_at=$3, updated_at=NOW()
		WHERE id=$1 AND verified=FALSE
	`
	return r.execOne(ctx, "set verification token", q, id, pending.Value, pending.ExpiresAt)
}

func (r *userRepository) MarkVerified(ctx context.Context, id, token string) (bool, error) {
	const q = `
		UPDATE users
		SET verified=TRUE, verification_token=NULL, verification_token_expires_at=NULL, updated_at=NOW()
		WHERE id=$1 AND verification_token=$2
	`
	return r.execOne(ctx, "mark verified", q, id, token)
}

func (r *userRepository) SetResetToken(ctx context.Context, id string, pending models.PendingToken) (bool, error) {
	const q = `
		UPDATE users
		SET reset_token=$2, reset_token_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`
	return r.execOne(ctx, "set reset token", q, id, pending.Value, pending.ExpiresAt)
}

func (r *userRepository) ConsumeResetToken(ctx context.Context, id, token, passwordHash string, now time.Time) (bool, error) {
	const q = `
		UPDATE users
		SET password_hash=$3, reset_token=NULL, reset_token_expires_at=NULL, updated_at=NOW()
		WHERE id=$1 AND reset_token=$2 AND reset_token_expires_at >= $4
	`
	return r.execOne(ctx, "consume reset token", q, id, token, passwordHash, now)
}

// execOne runs a conditional single-row UPDATE and reports whether it matched.
func (r *userRepository) execOne(ctx context.Context, op, q string, args ...any) (bool, error) {
	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("users %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("users %s: %w", op, err)
	}
	return n == 1, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "email", email)
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, "id::text", id)
}

func (r *userRepository) FindByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	return r.findOne(ctx, "verification_token", token)
}

func (r *userRepository) FindByResetToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	return r.findOne(ctx, "reset_token", token)
}

// findOne: column is always a constant from this file, never user input.
func (r *userRepository) findOne(ctx context.Context, column, value string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1 LIMIT 1`
	u, err := scanUser(r.DB.QueryRowContext(ctx, q, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("users find by %s: %w", column, err)
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var (
		vt  sql.NullString
		vte sql.NullTime
		rt  sql.NullString
		rte sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Mobile, &u.PasswordHash, &u.Verified,
		&vt, &vte,
		&rt, &rte,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Verification = pendingFromNull(vt, vte)
	u.Reset = pendingFromNull(rt, rte)
	return u, nil
}

func pendingArgs(p *models.PendingToken) (sql.NullString, sql.NullTime) {
	if p == nil {
		return sql.NullString{}, sql.NullTime{}
	}
	return sql.NullString{String: p.Value, Valid: true}, sql.NullTime{Time: p.ExpiresAt, Valid: true}
}

func pendingFromNull(token sql.NullString, expires sql.NullTime) *models.PendingToken {
	if !token.Valid || !expires.Valid {
		return nil
	}
	return &models.PendingToken{Value: token.String, ExpiresAt: expires.Time}
}

// isUniqueViolation понимает ошибки обоих драйверов (lib/pq и pgx).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}
