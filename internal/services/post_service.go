package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xiaozining525-dotcom/bk/internal/models"
	"go.uber.org/zap"
)

// PostRepository is the interface that wraps methods for post data access
type PostRepository interface {
	// Method Exists checks if a post with the given ID exists.
	Exists(ctx context.Context, id string) (bool, error)
	// Method Upsert writes the full post and its metadata row, keeping existing views.
	Upsert(ctx context.Context, post *models.Post) error
	// Method GetByID retrieves a full post.
	//
	// If the post does not exist, models.ErrNotFound will be returned together with nil.
	GetByID(ctx context.Context, id string) (*models.Post, error)
	// Method IncrementViews adds one view and reports whether a row was counted.
	IncrementViews(ctx context.Context, id string) (bool, error)
	// Method ListMetadata retrieves the metadata projection.
	//
	// "publishedOnly" parameter restricts the result to published posts.
	ListMetadata(ctx context.Context, publishedOnly bool) ([]models.PostMetadata, error)
	// Method Delete removes the post and its metadata row.
	Delete(ctx context.Context, id string) error
}

// DocumentInvalidator drops rendered documents built from posts
type DocumentInvalidator interface {
	Invalidate(ctx context.Context) error
}

// postService implements post operations with the authorization rules applied
type postService struct {
	repo        PostRepository
	invalidator DocumentInvalidator
	logger      *zap.Logger
	now         func() time.Time
}

// NewPostService creates a new post service
func NewPostService(repo PostRepository, invalidator DocumentInvalidator, logger *zap.Logger) *postService {
	return &postService{
		repo:        repo,
		invalidator: invalidator,
		logger:      logger,
		now:         time.Now,
	}
}

// Save creates or replaces a post and returns its id.
// Updating an existing post requires the admin role, creating one requires manage_contents.
func (s *postService) Save(ctx context.Context, caller *models.User, post *models.Post) (string, error) {
	if caller == nil {
		return "", fmt.Errorf("%w: Unauthorized", models.ErrUnauthorized)
	}
	if strings.TrimSpace(post.Title) == "" {
		return "", fmt.Errorf("%w: Missing title", models.ErrValidation)
	}
	if post.Status != "" && !post.Status.Valid() {
		return "", fmt.Errorf("%w: Invalid status", models.ErrValidation)
	}

	exists := false
	if post.ID != "" {
		var err error
		if exists, err = s.repo.Exists(ctx, post.ID); err != nil {
			return "", err
		}
	}

	if exists {
		if !caller.IsAdmin() {
			return "", fmt.Errorf("%w: Permission denied: Only Main Admin can edit existing articles.", models.ErrPermissionDenied)
		}
	} else if !caller.HasPermission(models.PermissionManageContents) {
		return "", fmt.Errorf("%w: Permission denied: You cannot create articles.", models.ErrPermissionDenied)
	}

	applyPostDefaults(post, s.now())

	if err := s.repo.Upsert(ctx, post); err != nil {
		return "", err
	}

	s.invalidate(ctx)
	s.logger.Info("post saved",
		zap.String("id", post.ID),
		zap.String("by", caller.Username),
		zap.Bool("created", !exists),
	)
	return post.ID, nil
}

func applyPostDefaults(post *models.Post, now time.Time) {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CreatedAt == 0 {
		post.CreatedAt = now.UnixMilli()
	}
	if post.Status == "" {
		post.Status = models.PostStatusDraft
	}
	if post.Category == "" {
		post.Category = models.DefaultCategory
	}
	if post.Tags == nil {
		post.Tags = []string{}
	}
}

// Get returns a post and counts the view. Drafts are hidden from anonymous callers.
func (s *postService) Get(ctx context.Context, caller *models.User, id string) (*models.Post, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: Missing ID", models.ErrValidation)
	}

	post, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if post.Status == models.PostStatusDraft && caller == nil {
		return nil, fmt.Errorf("%w: Unauthorized: Draft", models.ErrForbidden)
	}

	counted, err := s.repo.IncrementViews(ctx, id)
	switch {
	case err != nil:
		s.logger.Warn("failed to count view", zap.Error(err), zap.String("id", id))
	case !counted:
		s.logger.Debug("view not counted, metadata row missing", zap.String("id", id))
	default:
		post.Views++
	}

	return post, nil
}

// List returns a page of post metadata. Anonymous callers only see published posts.
func (s *postService) List(ctx context.Context, caller *models.User, query models.PostListQuery) (*models.PostList, error) {
	posts, err := s.repo.ListMetadata(ctx, caller == nil)
	if err != nil {
		return nil, err
	}
	return queryPosts(posts, query), nil
}

// Delete removes a post. Only admins may delete.
func (s *postService) Delete(ctx context.Context, caller *models.User, id string) error {
	if caller == nil {
		return fmt.Errorf("%w: Unauthorized", models.ErrUnauthorized)
	}
	if !caller.IsAdmin() {
		return fmt.Errorf("%w: Permission denied: Only Main Admin can delete articles.", models.ErrPermissionDenied)
	}
	if id == "" {
		return fmt.Errorf("%w: Missing ID", models.ErrValidation)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidate(ctx)
	s.logger.Info("post deleted", zap.String("id", id), zap.String("by", caller.Username))
	return nil
}

func (s *postService) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate cached documents", zap.Error(err))
	}
}
