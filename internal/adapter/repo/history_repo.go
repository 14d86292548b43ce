package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// HistoryRepositoryPG implements domain.HistoryRepository.
type HistoryRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository creates a new history repository backed by PostgreSQL.
func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepositoryPG {
	return &HistoryRepositoryPG{pool: pool}
}

// Create inserts a retained result.
func (r *HistoryRepositoryPG) Create(ctx context.Context, item *domain.HistoryItem) error {
	query := `
INSERT INTO history (id, user_id, pdf_name, title, result, expires_at)
VALUES ($1, $2, $3, $4, $5, $6);
`
	_, err := r.pool.Exec(ctx, query,
		item.ID,
		item.UserID,
		item.PDFName,
		item.Title,
		item.Result,
		item.ExpiresAt,
	)
	return err
}

// ListByUser returns the user's unexpired items, newest first.
func (r *HistoryRepositoryPG) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.HistoryItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `
SELECT id, user_id, pdf_name, title, result, created_at, expires_at
FROM history
WHERE user_id = $1 AND expires_at > now()
ORDER BY created_at DESC
LIMIT $2 OFFSET $3;
`
	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.HistoryItem
	for rows.Next() {
		var it domain.HistoryItem
		if err := rows.Scan(&it.ID, &it.UserID, &it.PDFName, &it.Title, &it.Result, &it.CreatedAt, &it.ExpiresAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetByID returns the item when it belongs to the user and has not expired.
func (r *HistoryRepositoryPG) GetByID(ctx context.Context, userID, id string) (*domain.HistoryItem, error) {
	query := `
SELECT id, user_id, pdf_name, title, result, created_at, expires_at
FROM history
WHERE id = $1 AND user_id = $2 AND expires_at > now();
`
	row := r.pool.QueryRow(ctx, query, id, userID)
	var it domain.HistoryItem
	if err := row.Scan(&it.ID, &it.UserID, &it.PDFName, &it.Title, &it.Result, &it.CreatedAt, &it.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &it, nil
}

// DeleteExpired removes rows past their retention window.
func (r *HistoryRepositoryPG) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM history WHERE expires_at <= now();`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ domain.HistoryRepository = (*HistoryRepositoryPG)(nil)
