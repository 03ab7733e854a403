package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BrianStatesThat/thepepassport/internal/db"
	"github.com/BrianStatesThat/thepepassport/internal/models"
)

const (
	sitemapNamespace     = "http://www.sitemaps.org/schemas/sitemap/0.9"
	sitemapListingPage   = 200
	sitemapPostLimit     = 1000
	sitemapTimeLayout    = time.RFC3339
	sitemapContentHeader = xml.Header
)

// SitemapURL is one <url> entry.
type SitemapURL struct {
	Loc        string  `xml:"loc"`
	LastMod    string  `xml:"lastmod,omitempty"`
	ChangeFreq string  `xml:"changefreq,omitempty"`
	Priority   float64 `xml:"priority"`
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []SitemapURL `xml:"url"`
}

// ISitemapService builds sitemap.xml for the public site.
type ISitemapService interface {
	// Entries returns static routes followed by listings, posts and
	// categories. When a dynamic source fails the entries gathered so far are
	// returned with the error.
	Entries(ctx context.Context, creds db.Credentials, now time.Time) ([]SitemapURL, error)
	// Render returns the sitemap document. Read failures still produce a
	// document.
	Render(ctx context.Context, creds db.Credentials, now time.Time) ([]byte, error)
}

type sitemapService struct {
	siteURL    string
	listings   IListingService
	blog       IBlogService
	categories ICategoryService
}

func NewSitemapService(siteURL string, listings IListingService, blog IBlogService, categories ICategoryService) ISitemapService {
	return &sitemapService{
		siteURL:    strings.TrimRight(siteURL, "/"),
		listings:   listings,
		blog:       blog,
		categories: categories,
	}
}

func (s *sitemapService) absolute(path string) string {
	return s.siteURL + path
}

func (s *sitemapService) Entries(ctx context.Context, creds db.Credentials, now time.Time) ([]SitemapURL, error) {
	stamp := now.UTC().Format(sitemapTimeLayout)
	entries := []SitemapURL{
		{Loc: s.absolute("/"), LastMod: stamp, ChangeFreq: "daily", Priority: 1},
		{Loc: s.absolute("/explore"), LastMod: stamp, ChangeFreq: "daily", Priority: 0.9},
		{Loc: s.absolute("/listings"), LastMod: stamp, ChangeFreq: "daily", Priority: 0.9},
		{Loc: s.absolute("/events"), LastMod: stamp, ChangeFreq: "daily", Priority: 0.8},
		{Loc: s.absolute("/blog"), LastMod: stamp, ChangeFreq: "weekly", Priority: 0.8},
		{Loc: s.absolute("/privacy"), LastMod: stamp, ChangeFreq: "yearly", Priority: 0.2},
		{Loc: s.absolute("/terms"), LastMod: stamp, ChangeFreq: "yearly", Priority: 0.2},
	}

	listings, err := s.allListings(ctx, creds)
	if err != nil {
		return entries, err
	}
	for _, l := range listings {
		if strings.TrimSpace(l.Slug) == "" {
			continue
		}
		entries = append(entries, SitemapURL{
			Loc:        s.absolute("/listings/" + url.PathEscape(l.Slug)),
			LastMod:    lastModified(now, l.UpdatedAt, l.CreatedAt),
			ChangeFreq: "weekly",
			Priority:   0.7,
		})
	}

	posts, err := s.blog.Posts(ctx, creds, sitemapPostLimit)
	if err != nil {
		return entries, err
	}
	for _, p := range posts {
		if strings.TrimSpace(p.Slug) == "" {
			continue
		}
		entries = append(entries, SitemapURL{
			Loc:        s.absolute("/blog/" + url.PathEscape(p.Slug)),
			LastMod:    lastModified(now, p.UpdatedAt, p.PublishedAt, p.CreatedAt),
			ChangeFreq: "monthly",
			Priority:   0.6,
		})
	}

	categories, err := s.categories.Categories(ctx, creds)
	if err != nil {
		return entries, err
	}
	for _, c := range categories {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		entries = append(entries, SitemapURL{
			Loc:        s.absolute("/categories/" + url.PathEscape(c.Name)),
			LastMod:    stamp,
			ChangeFreq: "weekly",
			Priority:   0.6,
		})
	}
	return entries, nil
}

func (s *sitemapService) Render(ctx context.Context, creds db.Credentials, now time.Time) ([]byte, error) {
	entries, readErr := s.Entries(ctx, creds, now)
	body, err := xml.MarshalIndent(urlSet{Xmlns: sitemapNamespace, URLs: entries}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding sitemap: %w", err)
	}
	return append([]byte(sitemapContentHeader), body...), readErr
}

// allListings walks every page of listings.
func (s *sitemapService) allListings(ctx context.Context, creds db.Credentials) ([]models.Listing, error) {
	first, err := s.listings.Page(ctx, creds, 1, sitemapListingPage, "")
	if err != nil {
		return nil, fmt.Errorf("sitemap listings page 1: %w", err)
	}
	all := append([]models.Listing{}, first.Data...)
	for page := 2; page <= first.TotalPages; page++ {
		next, err := s.listings.Page(ctx, creds, page, sitemapListingPage, "")
		if err != nil {
			return nil, fmt.Errorf("sitemap listings page %d: %w", page, err)
		}
		all = append(all, next.Data...)
	}
	return all, nil
}

// lastModified returns the first usable timestamp, else now. The epoch
// placeholder used for missing listing timestamps does not count.
func lastModified(now time.Time, candidates ...string) string {
	for _, c := range candidates {
		if c == "" || c == models.EpochTimestamp {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, c); err == nil {
			return t.UTC().Format(sitemapTimeLayout)
		}
	}
	return now.UTC().Format(sitemapTimeLayout)
}
