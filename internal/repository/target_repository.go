package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/pagecast/pagecast/internal/models"
)

type TargetRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Target, error)
	ListExpiring(ctx context.Context, from, to time.Time) ([]*models.Target, error)
	UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error
}

type targetRepository struct {
	db *sql.DB
}

func NewTargetRepository(db *sql.DB) TargetRepository {
	return &targetRepository{db: db}
}

const targetColumns = `id, user_id, platform, account_id, account_name, access_token, refresh_token, token_expires_at, created_at`

func (r *targetRepository) GetByID(ctx context.Context, id int64) (*models.Target, error) {
	query := `SELECT ` + targetColumns + ` FROM targets WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var t models.Target
	err := row.Scan(&t.ID, &t.UserID, &t.Platform, &t.AccountID, &t.AccountName,
		&t.AccessToken, &t.RefreshToken, &t.TokenExpiresAt, &t.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &t, nil
}

func (r *targetRepository) ListExpiring(ctx context.Context, from, to time.Time) ([]*models.Target, error) {
	query := `SELECT ` + targetColumns + ` FROM targets WHERE token_expires_at BETWEEN $1 AND $2`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var targets []*models.Target
	for rows.Next() {
		var t models.Target
		err := rows.Scan(&t.ID, &t.UserID, &t.Platform, &t.AccountID, &t.AccountName,
			&t.AccessToken, &t.RefreshToken, &t.TokenExpiresAt, &t.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		targets = append(targets, &t)
	}
	return targets, rows.Err()
}

func (r *targetRepository) UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `UPDATE targets SET access_token = $1, refresh_token = $2, token_expires_at = $3 WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, accessToken, refreshToken, expiresAt, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
