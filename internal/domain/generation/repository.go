package generation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

const recordColumns = `id, user_id, transaction_id, prompt, platform, width, height,
	plan, asset_url, asset_provider, attribution, elapsed_ms, created_at`

// PostgresRepository stores generation records.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO generations (` + recordColumns + `)
		VALUES (:id, :user_id, :transaction_id, :prompt, :platform, :width, :height,
			:plan, :asset_url, :asset_provider, :attribution, :elapsed_ms, :created_at)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Record, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var records []*Record
	err := r.db.SelectContext(ctx2, &records, `
		SELECT `+recordColumns+`
		FROM generations
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	if records == nil {
		records = []*Record{}
	}
	return records, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rec Record
	err := r.db.GetContext(ctx2, &rec, `SELECT `+recordColumns+` FROM generations WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get generation: %w", err)
	}
	return &rec, nil
}
