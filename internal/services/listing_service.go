package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BrianStatesThat/thepepassport/internal/db"
	"github.com/BrianStatesThat/thepepassport/internal/models"
)

// IListingService defines the read operations on listings. Every method
// returns what it could read together with the error that stopped it, so
// callers can render an empty state and still know the read failed.
type IListingService interface {
	List(ctx context.Context, creds db.Credentials, category string, limit int) ([]models.Listing, error)
	Page(ctx context.Context, creds db.Credentials, page, pageSize int, category string) (*models.ListingPage, error)
	Featured(ctx context.Context, creds db.Credentials, limit int) ([]models.Listing, error)
	BySlug(ctx context.Context, creds db.Credentials, slug string) (*models.Listing, error)
	Search(ctx context.Context, creds db.Credentials, query string, limit int) ([]models.Listing, error)
	ByCategory(ctx context.Context, creds db.Credentials, name string, limit int) ([]models.Listing, error)
}

const (
	listingsTable      = "listings"
	listingImagesTable = "listing_images"

	DefaultListLimit = 20
	DefaultPageSize  = 20
)

var ErrListingNotFound = errors.New("listing not found")

type listingService struct {
	store      db.RowStore
	resolver   ICategoryResolver
	normalizer ListingNormalizer
	log        *slog.Logger
}

// NewListingService creates a new ListingService.
func NewListingService(store db.RowStore, resolver ICategoryResolver, normalizer ListingNormalizer, logger *slog.Logger) IListingService {
	return &listingService{store: store, resolver: resolver, normalizer: normalizer, log: logger}
}

// listingsQuery is newest first, ties broken by id.
func listingsQuery(filters ...db.Filter) db.Query {
	return db.Query{
		Table:   listingsTable,
		Filters: filters,
		Order:   []db.Order{{Column: "created_at", Desc: true}, {Column: "id"}},
		Embed:   &db.Embed{Table: listingImagesTable, ForeignKey: "listing_id"},
	}
}

func withFilter(q db.Query, f db.Filter) db.Query {
	filters := make([]db.Filter, 0, len(q.Filters)+1)
	q.Filters = append(append(filters, q.Filters...), f)
	return q
}

func (s *listingService) List(ctx context.Context, creds db.Credentials, category string, limit int) ([]models.Listing, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := listingsQuery()
	q.Limit = limit

	if strings.TrimSpace(category) == "" {
		listings, err := s.fetch(ctx, creds, q)
		if err != nil {
			s.log.Warn("listing read failed", "op", "list", "err", err)
			return []models.Listing{}, err
		}
		return listings, nil
	}

	var byName []models.Listing
	narrowed, resolution, err := s.narrow(ctx, creds, q, category, func(q db.Query) (bool, error) {
		listings, err := s.fetch(ctx, creds, q)
		byName = listings
		return len(listings) > 0, err
	})
	switch {
	case err != nil:
		s.log.Warn("listing read failed", "op", "list", "category", category, "err", err)
		return []models.Listing{}, err
	case resolution == models.ResolvedByName:
		return byName, nil
	case resolution == models.ResolutionUnresolved:
		return []models.Listing{}, nil
	}

	listings, err := s.fetch(ctx, creds, narrowed)
	if errors.Is(err, db.ErrUnknownColumn) {
		return []models.Listing{}, nil
	}
	if err != nil {
		s.log.Warn("listing read failed", "op", "list", "category", category, "filter", "category_ids", "err", err)
		return []models.Listing{}, err
	}
	return listings, nil
}

func (s *listingService) ByCategory(ctx context.Context, creds db.Credentials, name string, limit int) ([]models.Listing, error) {
	if strings.TrimSpace(name) == "" {
		return []models.Listing{}, nil
	}
	return s.List(ctx, creds, name, limit)
}

func (s *listingService) Page(ctx context.Context, creds db.Credentials, page, pageSize int, category string) (*models.ListingPage, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	result := &models.ListingPage{Data: []models.Listing{}, Page: page, PageSize: pageSize, TotalPages: 1}

	q := listingsQuery()
	var total int
	var err error
	if strings.TrimSpace(category) == "" {
		total, err = s.store.Count(ctx, creds, q)
	} else {
		q, result.Resolution, err = s.narrow(ctx, creds, q, category, func(q db.Query) (bool, error) {
			n, err := s.store.Count(ctx, creds, q)
			total = n
			return n > 0, err
		})
		switch {
		case err != nil:
		case result.Resolution == models.ResolutionUnresolved:
			total = 0
		case result.Resolution == models.ResolvedByID:
			total, err = s.store.Count(ctx, creds, q)
			if errors.Is(err, db.ErrUnknownColumn) {
				total, err = 0, nil
			}
		}
	}
	if err != nil {
		s.log.Warn("listing count failed", "op", "page", "category", category, "err", err)
		return result, err
	}

	result.Total = total
	if total > 0 {
		result.TotalPages = (total + pageSize - 1) / pageSize
	}
	offset := (page - 1) * pageSize
	if offset >= total {
		return result, nil
	}

	q.Limit = pageSize
	q.Offset = offset
	data, err := s.fetch(ctx, creds, q)
	if err != nil {
		s.log.Warn("listing read failed", "op", "page", "page", page, "err", err)
		return result, err
	}
	result.Data = data
	return result, nil
}

func (s *listingService) Featured(ctx context.Context, creds db.Credentials, limit int) ([]models.Listing, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := listingsQuery(db.Eq("featured", true))
	q.Limit = limit

	listings, err := s.fetch(ctx, creds, q)
	if err == nil {
		return listings, nil
	}
	listings, legacyErr := s.fetch(ctx, creds, q.With(0, db.Eq("is_featured", true)))
	if legacyErr == nil {
		return listings, nil
	}
	err = errors.Join(err, legacyErr)
	s.log.Warn("featured listings read failed", "err", err)
	return []models.Listing{}, err
}

func (s *listingService) BySlug(ctx context.Context, creds db.Credentials, slug string) (*models.Listing, error) {
	if strings.TrimSpace(slug) == "" {
		return nil, ErrListingNotFound
	}
	q := listingsQuery(db.Eq("slug", slug))
	q.Order = nil

	row, err := s.store.SelectOne(ctx, creds, q)
	if isMissingEmbed(err) {
		row, err = s.store.SelectOne(ctx, creds, q.WithoutEmbed())
	}
	if errors.Is(err, db.ErrNoRows) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		s.log.Warn("listing read failed", "op", "by_slug", "slug", slug, "err", err)
		return nil, fmt.Errorf("finding listing %q: %w", slug, err)
	}

	rows, err := s.resolver.HydrateCategoryNames(ctx, creds, []db.Row{row})
	if err != nil {
		s.log.Warn("category hydration failed", "slug", slug, "err", err)
	}
	listing := s.normalizer.Normalize(rows[0])
	return &listing, nil
}

func (s *listingService) Search(ctx context.Context, creds db.Credentials, query string, limit int) ([]models.Listing, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.Listing{}, nil
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := listingsQuery(db.ILikeAny(query, "title", "description"))
	q.Limit = limit

	listings, err := s.fetch(ctx, creds, q)
	if err == nil {
		return listings, nil
	}
	listings, nameErr := s.fetch(ctx, creds, q.With(0, db.ILikeAny(query, "name", "description")))
	if nameErr == nil {
		return listings, nil
	}
	err = errors.Join(err, nameErr)
	s.log.Warn("listing search failed", "query", query, "err", err)
	return []models.Listing{}, err
}

// narrow adds the category filter to q. The name filter is tried with probe
// first; when it reports no rows, or the categories column does not exist,
// the name is resolved to an id and a category_ids filter is returned
// instead. ResolutionUnresolved means nothing can match.
func (s *listingService) narrow(ctx context.Context, creds db.Credentials, q db.Query, category string, probe func(db.Query) (bool, error)) (db.Query, models.CategoryResolution, error) {
	byName := withFilter(q, db.Contains("categories", category))
	hit, err := probe(byName)
	if err != nil && !errors.Is(err, db.ErrUnknownColumn) {
		return q, "", err
	}
	if err == nil && hit {
		return byName, models.ResolvedByName, nil
	}

	id, found, err := s.resolver.ResolveCategoryID(ctx, creds, category)
	if err != nil {
		return q, "", err
	}
	if !found {
		return q, models.ResolutionUnresolved, nil
	}
	return withFilter(q, db.Contains("category_ids", id)), models.ResolvedByID, nil
}

// fetch selects rows, dropping the listing_images embed if that relation is
// missing, then hydrates category names and normalizes.
func (s *listingService) fetch(ctx context.Context, creds db.Credentials, q db.Query) ([]models.Listing, error) {
	rows, err := s.store.Select(ctx, creds, q)
	if isMissingEmbed(err) && q.Embed != nil {
		rows, err = s.store.Select(ctx, creds, q.WithoutEmbed())
	}
	if err != nil {
		return nil, fmt.Errorf("selecting %s where %s: %w", q.Table, describeFilters(q.Filters), err)
	}
	rows, err = s.resolver.HydrateCategoryNames(ctx, creds, rows)
	if err != nil {
		s.log.Warn("category hydration failed", "err", err)
	}
	return s.normalizer.NormalizeAll(rows), nil
}

// isMissingEmbed is true for errors that can come from the listing_images
// relation. A plain listings column error also matches; the retry without
// the embed then fails the same way and that error is returned.
func isMissingEmbed(err error) bool {
	return errors.Is(err, db.ErrUnknownTable) || errors.Is(err, db.ErrUnknownColumn)
}

func describeFilters(filters []db.Filter) string {
	if len(filters) == 0 {
		return "true"
	}
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = f.String()
	}
	return strings.Join(parts, " and ")
}
