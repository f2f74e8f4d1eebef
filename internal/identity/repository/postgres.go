package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rightvendors/portfolyze/internal/identity/domain"
)

const uniqueViolation = "23505"

const identityColumns = `id, phone_number, display_name, created_at, updated_at, last_sign_in_at`

// PostgresRepository stores identities in the identities table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an identity repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the identity for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	return r.getOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
}

// GetByPhone returns the identity for an E.164 phone number, or nil if not found.
func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*domain.Identity, error) {
	return r.getOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE phone_number = $1`, phone)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.Identity, error) {
	var (
		i        domain.Identity
		lastSign sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&i.ID, &i.Phone, &i.DisplayName, &i.CreatedAt, &i.UpdatedAt, &lastSign)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if lastSign.Valid {
		i.LastSignInAt = &lastSign.Time
	}
	return &i, nil
}

// Create persists the identity. The identity must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, i *domain.Identity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (id, phone_number, display_name, created_at, updated_at, last_sign_in_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		i.ID, i.Phone, i.DisplayName, i.CreatedAt, i.UpdatedAt, timeToNullTime(i.LastSignInAt))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicatePhone
	}
	return err
}

// UpdateDisplayName sets the display name for id.
func (r *PostgresRepository) UpdateDisplayName(ctx context.Context, id, displayName string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities SET display_name = $2, updated_at = $3 WHERE id = $1`, id, displayName, at)
	return err
}

// TouchSignIn records a successful sign-in for id.
func (r *PostgresRepository) TouchSignIn(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE identities SET last_sign_in_at = $2 WHERE id = $1`, id, at)
	return err
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
