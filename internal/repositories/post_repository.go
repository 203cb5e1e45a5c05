package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xiaozining525-dotcom/bk/internal/models"
	"go.uber.org/zap"
)

const metadataColumns = `id, title, excerpt, tags, category, created_at, views, url, status, is_pinned`

// postRepository implements PostRepository.
// Full posts live in "posts", the list projection in "post_metadata".
type postRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *sql.DB, logger *zap.Logger) *postRepository {
	return &postRepository{
		db:     db,
		logger: logger,
	}
}

// Exists checks if a post with the given ID exists
func (r *postRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM posts WHERE id = ?)`, id).Scan(&exists); err != nil {
		r.logger.Error("failed to check post existence", zap.Error(err), zap.String("id", id))
		return false, fmt.Errorf("failed to check post existence: %w", err)
	}
	return exists, nil
}

// Upsert writes the post content and then its metadata row.
// Existing view counters are kept. The two writes are not transactional.
func (r *postRepository) Upsert(ctx context.Context, post *models.Post) error {
	tags, err := json.Marshal(post.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	contentQuery := `
		INSERT INTO posts (id, title, excerpt, content, tags, category, created_at, views, url, status, is_pinned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			title = VALUES(title), excerpt = VALUES(excerpt), content = VALUES(content),
			tags = VALUES(tags), category = VALUES(category), created_at = VALUES(created_at),
			url = VALUES(url), status = VALUES(status), is_pinned = VALUES(is_pinned)
	`
	_, err = r.db.ExecContext(ctx, contentQuery,
		post.ID, post.Title, post.Excerpt, post.Content, string(tags), post.Category,
		post.CreatedAt, post.Views, post.URL, string(post.Status), post.IsPinned,
	)
	if err != nil {
		r.logger.Error("failed to upsert post", zap.Error(err), zap.String("id", post.ID))
		return fmt.Errorf("failed to upsert post: %w", err)
	}

	metadataQuery := `
		INSERT INTO post_metadata (` + metadataColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			title = VALUES(title), excerpt = VALUES(excerpt), tags = VALUES(tags),
			category = VALUES(category), created_at = VALUES(created_at),
			url = VALUES(url), status = VALUES(status), is_pinned = VALUES(is_pinned)
	`
	_, err = r.db.ExecContext(ctx, metadataQuery,
		post.ID, post.Title, post.Excerpt, string(tags), post.Category,
		post.CreatedAt, post.Views, post.URL, string(post.Status), post.IsPinned,
	)
	if err != nil {
		r.logger.Warn("post content saved but metadata write failed", zap.Error(err), zap.String("id", post.ID))
		return fmt.Errorf("failed to upsert post metadata: %w", err)
	}

	return nil
}

// GetByID retrieves a full post by ID
func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	query := `
		SELECT id, title, excerpt, content, tags, category, created_at, views, url, status, is_pinned
		FROM posts
		WHERE id = ?
	`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: Post not found", models.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get post by id", zap.Error(err), zap.String("id", id))
		return nil, fmt.Errorf("failed to get post by id: %w", err)
	}

	return post, nil
}

// IncrementViews adds one view to the post in both tables.
// It reports false when the post has no metadata row and nothing was counted.
func (r *postRepository) IncrementViews(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE post_metadata SET views = views + 1 WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("failed to increment metadata views", zap.Error(err), zap.String("id", id))
		return false, fmt.Errorf("failed to increment views: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := r.db.ExecContext(ctx, `UPDATE posts SET views = views + 1 WHERE id = ?`, id); err != nil {
		r.logger.Warn("metadata views incremented but post write failed", zap.Error(err), zap.String("id", id))
		return true, fmt.Errorf("failed to increment post views: %w", err)
	}

	return true, nil
}

// ListMetadata retrieves the metadata projection, optionally restricted to published posts
func (r *postRepository) ListMetadata(ctx context.Context, publishedOnly bool) ([]models.PostMetadata, error) {
	query := `SELECT ` + metadataColumns + ` FROM post_metadata`
	args := []any{}
	if publishedOnly {
		query += ` WHERE status = ?`
		args = append(args, string(models.PostStatusPublished))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to query post metadata", zap.Error(err))
		return nil, fmt.Errorf("failed to query post metadata: %w", err)
	}
	defer rows.Close()

	list := []models.PostMetadata{}
	for rows.Next() {
		var (
			meta   models.PostMetadata
			tags   []byte
			status string
		)
		if err := rows.Scan(
			&meta.ID, &meta.Title, &meta.Excerpt, &tags, &meta.Category,
			&meta.CreatedAt, &meta.Views, &meta.URL, &status, &meta.IsPinned,
		); err != nil {
			r.logger.Error("failed to scan post metadata", zap.Error(err))
			return nil, fmt.Errorf("failed to scan post metadata: %w", err)
		}
		if meta.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		meta.Status = models.PostStatus(status)
		list = append(list, meta)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating post metadata", zap.Error(err))
		return nil, fmt.Errorf("error iterating post metadata: %w", err)
	}

	return list, nil
}

// ListPublished retrieves the most recent published posts with content.
// A limit of 0 returns every published post.
func (r *postRepository) ListPublished(ctx context.Context, limit int) ([]models.Post, error) {
	query := `
		SELECT id, title, excerpt, content, tags, category, created_at, views, url, status, is_pinned
		FROM posts
		WHERE status = ?
		ORDER BY created_at DESC
	`
	args := []any{string(models.PostStatusPublished)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to query published posts", zap.Error(err))
		return nil, fmt.Errorf("failed to query published posts: %w", err)
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			r.logger.Error("failed to scan post", zap.Error(err))
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, *post)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating posts", zap.Error(err))
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}

	return posts, nil
}

// Delete removes the post content and its metadata row
func (r *postRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id); err != nil {
		r.logger.Error("failed to delete post", zap.Error(err), zap.String("id", id))
		return fmt.Errorf("failed to delete post: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM post_metadata WHERE id = ?`, id); err != nil {
		r.logger.Warn("post content deleted but metadata delete failed", zap.Error(err), zap.String("id", id))
		return fmt.Errorf("failed to delete post metadata: %w", err)
	}

	return nil
}

func scanPost(row rowScanner) (*models.Post, error) {
	var (
		post   models.Post
		tags   []byte
		status string
	)

	if err := row.Scan(
		&post.ID, &post.Title, &post.Excerpt, &post.Content, &tags, &post.Category,
		&post.CreatedAt, &post.Views, &post.URL, &status, &post.IsPinned,
	); err != nil {
		return nil, err
	}

	var err error
	if post.Tags, err = decodeTags(tags); err != nil {
		return nil, err
	}
	post.Status = models.PostStatus(status)
	return &post, nil
}

func decodeTags(raw []byte) ([]string, error) {
	tags := []string{}
	if len(raw) == 0 {
		return tags, nil
	}
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}
