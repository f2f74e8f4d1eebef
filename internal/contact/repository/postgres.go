package repository

import (
	"context"
	"database/sql"

	"github.com/rightvendors/portfolyze/internal/contact/domain"
)

// PostgresRepository stores contact messages in the contact_messages table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a contact repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, m *domain.Message) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contact_messages (id, name, email, company, message, relayed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.Name, m.Email, m.Company, m.Message, m.Relayed, m.CreatedAt)
	return err
}

func (r *PostgresRepository) MarkRelayed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE contact_messages SET relayed = TRUE WHERE id = $1`, id)
	return err
}
