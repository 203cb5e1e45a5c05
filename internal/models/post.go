package models

// PostStatus is the publication state of a post
type PostStatus string

// PostStatus constants
const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusPublished PostStatus = "published"
)

// Valid reports whether s is a known status
func (s PostStatus) Valid() bool {
	return s == PostStatusDraft || s == PostStatusPublished
}

// DefaultCategory is assigned to posts saved without a category
const DefaultCategory = "Uncategorized"

// Post represents a full blog post
type Post struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Excerpt   string     `json:"excerpt"`
	Content   string     `json:"content"` // Markdown
	Tags      []string   `json:"tags"`
	Category  string     `json:"category"`
	CreatedAt int64      `json:"createdAt"` // epoch milliseconds
	Views     int64      `json:"views"`
	URL       string     `json:"url,omitempty"`
	Status    PostStatus `json:"status"`
	IsPinned  bool       `json:"isPinned"`
}

// Metadata returns the list projection of the post
func (p *Post) Metadata() PostMetadata {
	return PostMetadata{
		ID:        p.ID,
		Title:     p.Title,
		Excerpt:   p.Excerpt,
		Tags:      p.Tags,
		Category:  p.Category,
		CreatedAt: p.CreatedAt,
		Views:     p.Views,
		URL:       p.URL,
		Status:    p.Status,
		IsPinned:  p.IsPinned,
	}
}

// PostMetadata is a post without its content, used for listings
type PostMetadata struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Excerpt   string     `json:"excerpt"`
	Tags      []string   `json:"tags"`
	Category  string     `json:"category"`
	CreatedAt int64      `json:"createdAt"`
	Views     int64      `json:"views"`
	URL       string     `json:"url,omitempty"`
	Status    PostStatus `json:"status"`
	IsPinned  bool       `json:"isPinned"`
}

// PostListQuery holds list filters and pagination
type PostListQuery struct {
	Page     int
	Limit    int
	Search   string
	Category string
	Tag      string
}

// HasFilters reports whether any filter is set
func (q PostListQuery) HasFilters() bool {
	return q.Search != "" || q.Category != "" || q.Tag != ""
}

// PostList is a page of post metadata
type PostList struct {
	List  []PostMetadata `json:"list"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// SavePostResponse is returned after an upsert
type SavePostResponse struct {
	ID string `json:"id"`
}
