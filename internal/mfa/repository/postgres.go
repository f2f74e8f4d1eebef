package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rightvendors/portfolyze/internal/mfa/domain"
)

// PostgresRepository stores verifications in phone_verifications.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a verification repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists v. v must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, v *domain.Verification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO phone_verifications (id, phone_number, code_hash, attempts, client_ip, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.Phone, v.CodeHash, v.Attempts, v.ClientIP, v.ExpiresAt, v.CreatedAt)
	return err
}

// GetByID returns the verification for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Verification, error) {
	var v domain.Verification
	err := r.db.QueryRowContext(ctx, `
		SELECT id, phone_number, code_hash, attempts, client_ip, expires_at, created_at
		FROM phone_verifications WHERE id = $1`, id).
		Scan(&v.ID, &v.Phone, &v.CodeHash, &v.Attempts, &v.ClientIP, &v.ExpiresAt, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// IncrementAttempts adds one failed attempt and returns the new count. Returns sql.ErrNoRows if
// the verification is gone.
func (r *PostgresRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		UPDATE phone_verifications SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`, id).Scan(&n)
	return n, err
}

// Delete removes the verification by id.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM phone_verifications WHERE id = $1`, id)
	return err
}

// Consume deletes the verification and reports whether a row was removed by this call.
func (r *PostgresRepository) Consume(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM phone_verifications WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteByPhone removes every pending verification for phone.
func (r *PostgresRepository) DeleteByPhone(ctx context.Context, phone string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM phone_verifications WHERE phone_number = $1`, phone)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpired removes verifications that expired before now.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM phone_verifications WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
