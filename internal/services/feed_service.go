package services

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/xiaozining525-dotcom/bk/internal/markdown"
	"github.com/xiaozining525-dotcom/bk/internal/models"
	"go.uber.org/zap"
)

// Document kinds and lifetimes
const (
	DocumentFeed    = "feed"
	DocumentSitemap = "sitemap"

	FeedMaxAge    = time.Hour
	SitemapMaxAge = 24 * time.Hour

	// FeedSize is the number of posts listed in the feed
	FeedSize = 20

	documentKeyPrefix = "doc:"
	// http.TimeFormat, the RFC 1123 form used by RSS readers
	rssDateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"
	contentNS     = "http://purl.org/rss/1.0/modules/content/"
	sitemapNS     = "http://www.sitemaps.org/schemas/sitemap/0.9"
)

// FeedPostRepository is the interface that wraps the post reads used by feed and sitemap
type FeedPostRepository interface {
	// Method ListPublished retrieves the newest published posts with content, 0 means all.
	ListPublished(ctx context.Context, limit int) ([]models.Post, error)
	// Method ListMetadata retrieves the metadata projection.
	ListMetadata(ctx context.Context, publishedOnly bool) ([]models.PostMetadata, error)
}

// DocumentCache is the interface that wraps storage for rendered documents
type DocumentCache interface {
	// Method Get returns a cached body, models.ErrNotFound on a miss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Method Set stores body under key for ttl.
	Set(ctx context.Context, key string, body []byte, ttl time.Duration) error
	// Method DeleteByPrefix drops every key starting with prefix.
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// SiteInfo describes the channel of the feed
type SiteInfo struct {
	Title       string
	Description string
	Language    string
}

// feedService renders the RSS feed and the sitemap, cached in Redis
type feedService struct {
	repo   FeedPostRepository
	cache  DocumentCache
	site   SiteInfo
	logger *zap.Logger
}

// NewFeedService creates a new feed service
func NewFeedService(repo FeedPostRepository, cache DocumentCache, site SiteInfo, logger *zap.Logger) *feedService {
	return &feedService{
		repo:   repo,
		cache:  cache,
		site:   site,
		logger: logger,
	}
}

// DocumentKey returns the cache key of a document kind rendered for base
func DocumentKey(kind, base string) string {
	return fmt.Sprintf("%s%s:%016x", documentKeyPrefix, kind, xxhash.Sum64String(base))
}

// ETag returns a strong entity tag for body
func ETag(body []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
}

// Feed returns the RSS document for base
func (s *feedService) Feed(ctx context.Context, base string) (*models.Document, error) {
	return s.document(ctx, DocumentFeed, base, FeedMaxAge, s.renderFeed)
}

// Sitemap returns the sitemap document for base
func (s *feedService) Sitemap(ctx context.Context, base string) (*models.Document, error) {
	return s.document(ctx, DocumentSitemap, base, SitemapMaxAge, s.renderSitemap)
}

// Invalidate drops every cached document
func (s *feedService) Invalidate(ctx context.Context) error {
	return s.cache.DeleteByPrefix(ctx, documentKeyPrefix)
}

// Warm renders both documents for base and stores them in the cache
func (s *feedService) Warm(ctx context.Context, base string) error {
	base = strings.TrimRight(base, "/")

	feed, err := s.renderFeed(ctx, base)
	if err != nil {
		return err
	}
	s.store(ctx, DocumentKey(DocumentFeed, base), feed, FeedMaxAge)

	sitemap, err := s.renderSitemap(ctx, base)
	if err != nil {
		return err
	}
	s.store(ctx, DocumentKey(DocumentSitemap, base), sitemap, SitemapMaxAge)

	return nil
}

type renderFunc func(ctx context.Context, base string) ([]byte, error)

// document serves kind from the cache, rendering and storing it on a miss.
// Cache failures are logged and the document is rendered directly.
func (s *feedService) document(ctx context.Context, kind, base string, maxAge time.Duration, render renderFunc) (*models.Document, error) {
	base = strings.TrimRight(base, "/")
	key := DocumentKey(kind, base)

	body, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		return &models.Document{Body: body, ETag: ETag(body), MaxAge: maxAge}, nil
	case !errors.Is(err, models.ErrNotFound):
		s.logger.Warn("document cache read failed", zap.Error(err), zap.String("key", key))
	}

	body, err = render(ctx, base)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, body, maxAge)

	return &models.Document{Body: body, ETag: ETag(body), MaxAge: maxAge}, nil
}

func (s *feedService) store(ctx context.Context, key string, body []byte, ttl time.Duration) {
	if err := s.cache.Set(ctx, key, body, ttl); err != nil {
		s.logger.Warn("document cache write failed", zap.Error(err), zap.String("key", key))
	}
}

type cdata struct {
	Text string `xml:",cdata"`
}

type rss struct {
	XMLName   xml.Name   `xml:"rss"`
	Version   string     `xml:"version,attr"`
	ContentNS string     `xml:"xmlns:content,attr"`
	Channel   rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Language    string    `xml:"language"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       cdata  `xml:"title"`
	Description cdata  `xml:"description"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	PubDate     string `xml:"pubDate"`
	Content     cdata  `xml:"content:encoded"`
}

func (s *feedService) renderFeed(ctx context.Context, base string) ([]byte, error) {
	posts, err := s.repo.ListPublished(ctx, FeedSize)
	if err != nil {
		return nil, err
	}

	doc := rss{
		Version:   "2.0",
		ContentNS: contentNS,
		Channel: rssChannel{
			Title:       s.site.Title,
			Link:        base,
			Description: s.site.Description,
			Language:    s.site.Language,
			Items:       make([]rssItem, 0, len(posts)),
		},
	}

	for _, post := range posts {
		html, err := markdown.Render(post.Content)
		if err != nil {
			s.logger.Warn("failed to render post for feed", zap.Error(err), zap.String("id", post.ID))
			html = ""
		}
		link := postLink(base, post.ID)
		doc.Channel.Items = append(doc.Channel.Items, rssItem{
			Title:       cdata{post.Title},
			Description: cdata{post.Excerpt},
			Link:        link,
			GUID:        link,
			PubDate:     time.UnixMilli(post.CreatedAt).UTC().Format(rssDateFormat),
			Content:     cdata{html},
		})
	}

	return marshalXML(doc)
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	NS      string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

func (s *feedService) renderSitemap(ctx context.Context, base string) ([]byte, error) {
	posts, err := s.repo.ListMetadata(ctx, true)
	if err != nil {
		return nil, err
	}

	set := urlSet{
		NS: sitemapNS,
		URLs: []sitemapURL{
			{Loc: base + "/", ChangeFreq: "daily", Priority: "1.0"},
			{Loc: base + "/#/about", ChangeFreq: "monthly", Priority: "0.5"},
		},
	}
	for _, post := range posts {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        postLink(base, post.ID),
			LastMod:    time.UnixMilli(post.CreatedAt).UTC().Format(time.DateOnly),
			ChangeFreq: "monthly",
			Priority:   "0.8",
		})
	}

	return marshalXML(set)
}

func postLink(base, id string) string {
	return base + "/#/post/" + id
}

func marshalXML(v any) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode xml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
