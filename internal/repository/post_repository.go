package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/pagecast/pagecast/internal/models"
)

type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	CheckByUserID(ctx context.Context, postID, userID int64) (bool, error)
	UpdateStatus(ctx context.Context, postID int64, status string) error
	SetScheduledState(ctx context.Context, postID int64, at time.Time) error
	ResetToDraft(ctx context.Context, postID int64) error
	SetPublishResult(ctx context.Context, postID int64, status string, publishedAt *time.Time) error
	ListOverdue(ctx context.Context, userID int64, now time.Time) ([]*models.Post, error)
	Remove(ctx context.Context, id int64) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, content, title, first_comment, media_refs, status, scheduled_at, published_at, created_at, updated_at`

func scanPost(row interface{ Scan(dest ...any) error }) (*models.Post, error) {
	var post models.Post
	var scheduledAt, publishedAt sql.NullTime
	err := row.Scan(&post.ID, &post.UserID, &post.Content, &post.Title, &post.FirstComment,
		pq.Array(&post.MediaRefs), &post.Status, &scheduledAt, &publishedAt, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if scheduledAt.Valid {
		post.ScheduledAt = &scheduledAt.Time
	}
	if publishedAt.Valid {
		post.PublishedAt = &publishedAt.Time
	}
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (user_id, content, title, first_comment, media_refs, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	var err error

	status := post.Status
	if status == "" {
		status = models.PostStatusDraft
	}

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, post.UserID, post.Content, post.Title, post.FirstComment, pq.Array(post.MediaRefs), status).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, post.UserID, post.Content, post.Title, post.FirstComment, pq.Array(post.MediaRefs), status).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	query := "SELECT 1 FROM posts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *postRepository) UpdateStatus(ctx context.Context, postID int64, status string) error {
	query := `UPDATE posts SET status = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, status, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// SetScheduledState moves the post and all its target rows to scheduled in
// one transaction, so the relational record can never be half-scheduled.
func (r *postRepository) SetScheduledState(ctx context.Context, postID int64, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	postQuery := `UPDATE posts SET status = $1, scheduled_at = $2, updated_at = $3 WHERE id = $4`
	if _, err := tx.ExecContext(ctx, postQuery, models.PostStatusScheduled, at, time.Now(), postID); err != nil {
		slog.Info(err.Error())
		return err
	}

	targetQuery := `UPDATE post_targets SET status = $1, updated_at = $2 WHERE post_id = $3`
	if _, err := tx.ExecContext(ctx, targetQuery, models.TargetStatusScheduled, time.Now(), postID); err != nil {
		slog.Info(err.Error())
		return err
	}

	return tx.Commit()
}

// ResetToDraft is the inverse of SetScheduledState: post back to draft with
// no scheduled time, targets back to pending with prior results cleared.
func (r *postRepository) ResetToDraft(ctx context.Context, postID int64) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	postQuery := `UPDATE posts SET status = $1, scheduled_at = NULL, updated_at = $2 WHERE id = $3`
	if _, err := tx.ExecContext(ctx, postQuery, models.PostStatusDraft, time.Now(), postID); err != nil {
		slog.Info(err.Error())
		return err
	}

	targetQuery := `
		UPDATE post_targets
		SET status = $1, remote_id = NULL, error_code = NULL, error_message = NULL,
			comment_id = NULL, comment_error = NULL, updated_at = $2
		WHERE post_id = $3
	`
	if _, err := tx.ExecContext(ctx, targetQuery, models.TargetStatusPending, time.Now(), postID); err != nil {
		slog.Info(err.Error())
		return err
	}

	return tx.Commit()
}

func (r *postRepository) SetPublishResult(ctx context.Context, postID int64, status string, publishedAt *time.Time) error {
	// Terminal statuses drop the schedule so the sweeper never sees the post
	// as overdue again.
	query := `UPDATE posts SET status = $1, published_at = $2, scheduled_at = NULL, updated_at = $3 WHERE id = $4`

	var at sql.NullTime
	if publishedAt != nil {
		at = sql.NullTime{Time: *publishedAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query, status, at, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// ListOverdue returns scheduled posts whose deadline has passed. userID 0
// means all users.
func (r *postRepository) ListOverdue(ctx context.Context, userID int64, now time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2`
	args := []any{models.PostStatusScheduled, now}
	if userID != 0 {
		query += ` AND user_id = $3`
		args = append(args, userID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)

	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
