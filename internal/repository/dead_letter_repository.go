package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/pagecast/pagecast/internal/models"
)

type DeadLetterRepository interface {
	Create(ctx context.Context, dl *models.DeadLetter) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]*models.DeadLetter, error)
}

type deadLetterRepository struct {
	db *sql.DB
}

func NewDeadLetterRepository(db *sql.DB) DeadLetterRepository {
	return &deadLetterRepository{db: db}
}

func (r *deadLetterRepository) Create(ctx context.Context, dl *models.DeadLetter) (int64, error) {
	query := `
		INSERT INTO dead_letters (job_id, post_id, last_error, attempts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id) DO UPDATE
		SET last_error = EXCLUDED.last_error, attempts = EXCLUDED.attempts
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, dl.JobID, dl.PostID, dl.LastError, dl.Attempts).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *deadLetterRepository) ListRecent(ctx context.Context, limit int) ([]*models.DeadLetter, error) {
	query := `SELECT id, job_id, post_id, last_error, attempts, created_at FROM dead_letters ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var letters []*models.DeadLetter
	for rows.Next() {
		var dl models.DeadLetter
		err := rows.Scan(&dl.ID, &dl.JobID, &dl.PostID, &dl.LastError, &dl.Attempts, &dl.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		letters = append(letters, &dl)
	}
	return letters, rows.Err()
}
