package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/pagecast/pagecast/internal/models"
)

type PostTargetRepository interface {
	ListByPostID(ctx context.Context, postID int64) ([]*models.PostTarget, error)
	Create(ctx context.Context, tx *sql.Tx, pt *models.PostTarget) (int64, error)
	MarkPublishing(ctx context.Context, id int64) error
	MarkPublished(ctx context.Context, id int64, remoteID string) error
	MarkFailed(ctx context.Context, id int64, errorCode, errorMessage string) error
	SetCommentResult(ctx context.Context, id int64, commentID, commentError string) error
}

type postTargetRepository struct {
	db *sql.DB
}

func NewPostTargetRepository(db *sql.DB) PostTargetRepository {
	return &postTargetRepository{db: db}
}

const postTargetColumns = `id, post_id, target_id, status, remote_id, error_code, error_message, comment_id, comment_error, updated_at`

func (r *postTargetRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.PostTarget, error) {
	query := `SELECT ` + postTargetColumns + ` FROM post_targets WHERE post_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var targets []*models.PostTarget
	for rows.Next() {
		var pt models.PostTarget
		var remoteID, errorCode, errorMessage, commentID, commentError sql.NullString
		err := rows.Scan(&pt.ID, &pt.PostID, &pt.TargetID, &pt.Status,
			&remoteID, &errorCode, &errorMessage, &commentID, &commentError, &pt.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		pt.RemoteID = remoteID.String
		pt.ErrorCode = errorCode.String
		pt.ErrorMessage = errorMessage.String
		pt.CommentID = commentID.String
		pt.CommentError = commentError.String
		targets = append(targets, &pt)
	}
	return targets, rows.Err()
}

func (r *postTargetRepository) Create(ctx context.Context, tx *sql.Tx, pt *models.PostTarget) (int64, error) {
	query := `
		INSERT INTO post_targets (post_id, target_id, status)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	status := pt.Status
	if status == "" {
		status = models.TargetStatusPending
	}

	var id int64
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, pt.PostID, pt.TargetID, status).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, pt.PostID, pt.TargetID, status).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *postTargetRepository) MarkPublishing(ctx context.Context, id int64) error {
	query := `UPDATE post_targets SET status = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, models.TargetStatusPublishing, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postTargetRepository) MarkPublished(ctx context.Context, id int64, remoteID string) error {
	query := `
		UPDATE post_targets
		SET status = $1, remote_id = $2, error_code = NULL, error_message = NULL, updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, models.TargetStatusPublished, remoteID, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postTargetRepository) MarkFailed(ctx context.Context, id int64, errorCode, errorMessage string) error {
	query := `
		UPDATE post_targets
		SET status = $1, remote_id = NULL, error_code = $2, error_message = $3, updated_at = $4
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, models.TargetStatusFailed, errorCode, errorMessage, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postTargetRepository) SetCommentResult(ctx context.Context, id int64, commentID, commentError string) error {
	query := `UPDATE post_targets SET comment_id = $1, comment_error = $2, updated_at = $3 WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, commentID, commentError, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
