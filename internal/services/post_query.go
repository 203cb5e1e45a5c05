package services

import (
	"slices"
	"strings"

	"github.com/xiaozining525-dotcom/bk/internal/models"
)

// List paging defaults
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// normalizeQuery applies paging defaults and bounds
func normalizeQuery(q models.PostListQuery) models.PostListQuery {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	q.Search = strings.TrimSpace(q.Search)
	return q
}

// filterPosts keeps posts matching every filter set in q
func filterPosts(posts []models.PostMetadata, q models.PostListQuery) []models.PostMetadata {
	search := strings.ToLower(q.Search)

	out := make([]models.PostMetadata, 0, len(posts))
	for _, p := range posts {
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Title), search) &&
			!strings.Contains(strings.ToLower(p.Excerpt), search) {
			continue
		}
		if q.Category != "" && p.Category != q.Category {
			continue
		}
		if q.Tag != "" && !slices.Contains(p.Tags, q.Tag) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// sortPosts orders pinned posts first, then newest first. The sort is stable.
func sortPosts(posts []models.PostMetadata) {
	slices.SortStableFunc(posts, func(a, b models.PostMetadata) int {
		if a.IsPinned != b.IsPinned {
			if a.IsPinned {
				return -1
			}
			return 1
		}
		switch {
		case a.CreatedAt > b.CreatedAt:
			return -1
		case a.CreatedAt < b.CreatedAt:
			return 1
		}
		return 0
	})
}

// paginate returns the page slice [(page-1)*limit, page*limit).
// Pages past the end are empty; page is compared before multiplying so huge values cannot overflow.
func paginate(posts []models.PostMetadata, page, limit int) []models.PostMetadata {
	pages := (len(posts) + limit - 1) / limit
	if page-1 >= pages {
		return []models.PostMetadata{}
	}
	start := (page - 1) * limit
	end := min(start+limit, len(posts))
	return posts[start:end]
}

// queryPosts filters, sorts and paginates the metadata projection
func queryPosts(posts []models.PostMetadata, q models.PostListQuery) *models.PostList {
	q = normalizeQuery(q)

	filtered := filterPosts(posts, q)
	sortPosts(filtered)

	return &models.PostList{
		List:  paginate(filtered, q.Page, q.Limit),
		Total: len(filtered),
		Page:  q.Page,
		Limit: q.Limit,
	}
}
