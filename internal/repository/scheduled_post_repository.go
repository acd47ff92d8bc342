package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/leaderflow/delivery/internal/models"
)

type ScheduledPostRepository interface {
	Create(ctx context.Context, post *models.ScheduledPost) error
	GetByID(ctx context.Context, id string) (*models.ScheduledPost, error)
	List(ctx context.Context) ([]*models.ScheduledPost, error)
	ListPending(ctx context.Context) ([]*models.ScheduledPost, error)
	Claim(ctx context.Context, id string) (bool, error)
	SetTerminalStatus(ctx context.Context, id, status, errMsg string) error
	SetScheduledTime(ctx context.Context, id string, t time.Time) error
}

type scheduledPostRepository struct {
	db *sql.DB
}

func NewScheduledPostRepository(db *sql.DB) ScheduledPostRepository {
	return &scheduledPostRepository{db: db}
}

const postColumns = `id, content, platforms, scheduled_time, status, error, external_job_id, brand_id, created_at`

func (r *scheduledPostRepository) Create(ctx context.Context, post *models.ScheduledPost) error {
	content, err := json.Marshal(post.Content)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	platforms, err := json.Marshal(post.Platforms)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	query := `
		INSERT INTO scheduled_posts (id, content, platforms, scheduled_time, status, error, external_job_id, brand_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		post.ID,
		string(content),
		string(platforms),
		post.ScheduledTime,
		post.Status,
		post.Error,
		post.ExternalJobID,
		post.BrandID,
	).Scan(&post.CreatedAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduledPostRepository) GetByID(ctx context.Context, id string) (*models.ScheduledPost, error) {
	query := fmt.Sprintf(`SELECT %s FROM scheduled_posts WHERE id = $1`, postColumns)
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

func (r *scheduledPostRepository) List(ctx context.Context) ([]*models.ScheduledPost, error) {
	query := fmt.Sprintf(`SELECT %s FROM scheduled_posts ORDER BY created_at DESC`, postColumns)
	return r.queryPosts(ctx, query)
}

func (r *scheduledPostRepository) ListPending(ctx context.Context) ([]*models.ScheduledPost, error) {
	query := fmt.Sprintf(`SELECT %s FROM scheduled_posts WHERE status = $1 ORDER BY scheduled_time`, postColumns)
	return r.queryPosts(ctx, query, models.PostStatusPending)
}

// Claim atomically moves a pending post to processing. Exactly one of any
// number of concurrent dispatchers wins the row; the rest get false and must
// not touch a platform adapter.
func (r *scheduledPostRepository) Claim(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = $1
		WHERE id = $2 AND status = $3
	`
	result, err := r.db.ExecContext(ctx, query, models.PostStatusProcessing, id, models.PostStatusPending)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

// SetTerminalStatus moves a pending or claimed post to success or failed. The
// status guard in the WHERE clause keeps terminal states monotonic: a post
// that already resolved is never rewritten.
func (r *scheduledPostRepository) SetTerminalStatus(ctx context.Context, id, status, errMsg string) error {
	query := `
		UPDATE scheduled_posts
		SET status = $1, error = $2
		WHERE id = $3 AND status IN ($4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, status, errMsg, id, models.PostStatusPending, models.PostStatusProcessing)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduledPostRepository) SetScheduledTime(ctx context.Context, id string, t time.Time) error {
	query := `UPDATE scheduled_posts SET scheduled_time = $1 WHERE id = $2 AND status = $3`
	_, err := r.db.ExecContext(ctx, query, t, id, models.PostStatusPending)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduledPostRepository) queryPosts(ctx context.Context, query string, args ...interface{}) ([]*models.ScheduledPost, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (*models.ScheduledPost, error) {
	var post models.ScheduledPost
	var content, platforms string
	err := row.Scan(&post.ID, &content, &platforms, &post.ScheduledTime,
		&post.Status, &post.Error, &post.ExternalJobID, &post.BrandID, &post.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(content), &post.Content); err != nil {
		return nil, fmt.Errorf("corrupt content column for post %s: %w", post.ID, err)
	}
	if err := json.Unmarshal([]byte(platforms), &post.Platforms); err != nil {
		return nil, fmt.Errorf("corrupt platforms column for post %s: %w", post.ID, err)
	}
	return &post, nil
}
