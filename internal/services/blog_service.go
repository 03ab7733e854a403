package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/BrianStatesThat/thepepassport/internal/db"
	"github.com/BrianStatesThat/thepepassport/internal/models"
)

const (
	blogPostsTable = "blog_posts"

	DefaultPostLimit    = 10
	DefaultRelatedLimit = 3
)

var ErrPostNotFound = errors.New("blog post not found")

// IBlogService reads blog_posts, newest published first.
type IBlogService interface {
	Posts(ctx context.Context, creds db.Credentials, limit int) ([]models.BlogPost, error)
	PostBySlug(ctx context.Context, creds db.Credentials, slug string) (*models.BlogPost, error)
	// RelatedPosts returns the latest posts other than excludeID.
	RelatedPosts(ctx context.Context, creds db.Credentials, excludeID string, limit int) ([]models.BlogPost, error)
}

type blogService struct {
	store db.RowStore
	log   *slog.Logger
}

func NewBlogService(store db.RowStore, logger *slog.Logger) IBlogService {
	return &blogService{store: store, log: logger}
}

func (s *blogService) Posts(ctx context.Context, creds db.Credentials, limit int) ([]models.BlogPost, error) {
	if limit <= 0 {
		limit = DefaultPostLimit
	}
	posts, err := s.selectPosts(ctx, creds, nil, limit)
	if err != nil {
		s.log.Warn("blog read failed", "op", "posts", "err", err)
		return []models.BlogPost{}, err
	}
	return posts, nil
}

func (s *blogService) RelatedPosts(ctx context.Context, creds db.Credentials, excludeID string, limit int) ([]models.BlogPost, error) {
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}
	var filters []db.Filter
	if excludeID != "" {
		filters = append(filters, db.Neq("id", excludeID))
	}
	posts, err := s.selectPosts(ctx, creds, filters, limit)
	if err != nil {
		s.log.Warn("blog read failed", "op", "related", "exclude", excludeID, "err", err)
		return []models.BlogPost{}, err
	}
	return posts, nil
}

func (s *blogService) PostBySlug(ctx context.Context, creds db.Credentials, slug string) (*models.BlogPost, error) {
	if strings.TrimSpace(slug) == "" {
		return nil, ErrPostNotFound
	}
	row, err := s.store.SelectOne(ctx, creds, db.Query{
		Table:   blogPostsTable,
		Filters: []db.Filter{db.Eq("slug", slug)},
	})
	if errors.Is(err, db.ErrNoRows) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		s.log.Warn("blog read failed", "op", "by_slug", "slug", slug, "err", err)
		return nil, fmt.Errorf("finding post %q: %w", slug, err)
	}
	post := NormalizePost(row)
	return &post, nil
}

// selectPosts orders by published_at, or by created_at on tables that never
// had a published_at column.
func (s *blogService) selectPosts(ctx context.Context, creds db.Credentials, filters []db.Filter, limit int) ([]models.BlogPost, error) {
	q := db.Query{
		Table:   blogPostsTable,
		Filters: filters,
		Order:   []db.Order{{Column: "published_at", Desc: true}, {Column: "id"}},
		Limit:   limit,
	}
	rows, err := s.store.Select(ctx, creds, q)
	if errors.Is(err, db.ErrUnknownColumn) {
		q.Order[0].Column = "created_at"
		rows, err = s.store.Select(ctx, creds, q)
	}
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w", blogPostsTable, err)
	}
	posts := make([]models.BlogPost, 0, len(rows))
	for _, row := range rows {
		posts = append(posts, NormalizePost(row))
	}
	return posts, nil
}

// NormalizePost maps a blog_posts row of any known shape to models.BlogPost.
func NormalizePost(row db.Row) models.BlogPost {
	p := models.BlogPost{
		ID:              idString(row["id"]),
		Slug:            textOr(row["slug"], ""),
		Title:           firstText(row, "title", "name"),
		Excerpt:         firstText(row, "excerpt", "summary"),
		Content:         textOr(row["content"], ""),
		FeaturedImage:   firstText(row, "featured_image", "image"),
		Author:          textOr(row["author"], models.DefaultBlogAuthor),
		Tags:            asStrings(preferred(row, "tags", "tag_list")),
		RelatedListings: asStrings(row["related_listings"]),
	}
	if p.Title == "" {
		p.Title = untitled
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}

	p.PublishedAt = isoTimestamp(firstTimestamp(row, "published_at", "updated_at", "created_at"))
	if present(row, "published") {
		p.Published = asBool(row["published"])
	} else {
		p.Published = timestampOr(row["published_at"], "") != ""
	}
	p.Date = p.PublishedAt
	p.CreatedAt = timestampOr(row["created_at"], p.PublishedAt)
	p.UpdatedAt = timestampOr(row["updated_at"], p.PublishedAt)

	p.ReadingTime = readingMinutes(row)
	if s, ok := asText(row["readTime"]); ok && !isNumeric(s) {
		p.ReadTime = s
	} else {
		p.ReadTime = strconv.Itoa(p.ReadingTime) + " min"
	}
	return p
}

func firstTimestamp(row db.Row, keys ...string) string {
	for _, k := range keys {
		if ts := timestampOr(row[k], ""); ts != "" {
			return ts
		}
	}
	return ""
}

// isoTimestamp reformats parseable timestamps as UTC with milliseconds.
// Anything else is returned unchanged.
func isoTimestamp(ts string) string {
	if ts == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// readingMinutes reads read_time, reading_time or readTime. Strings like
// "7 min" count by their leading digits. Non-positive values become 1.
func readingMinutes(row db.Row) int {
	for _, k := range []string{"read_time", "reading_time", "readTime"} {
		v, ok := row[k]
		if !ok || v == nil {
			continue
		}
		var n float64
		if s, isString := v.(string); isString {
			n = float64(leadingInt(s))
		} else {
			n = asFloat(v)
		}
		if n = math.Floor(n); n >= 1 {
			return int(n)
		}
		return 1
	}
	return 1
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
