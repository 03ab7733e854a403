package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BrianStatesThat/thepepassport/internal/db"
	"github.com/BrianStatesThat/thepepassport/internal/models"
)

// ICategoryService reads the categories table.
type ICategoryService interface {
	Categories(ctx context.Context, creds db.Credentials) ([]models.Category, error)
	// CategoriesWithCounts attaches the number of listings in each category.
	// A failed count leaves that category at 0.
	CategoriesWithCounts(ctx context.Context, creds db.Credentials) ([]models.Category, error)
}

type categoryService struct {
	store db.RowStore
	log   *slog.Logger
}

func NewCategoryService(store db.RowStore, logger *slog.Logger) ICategoryService {
	return &categoryService{store: store, log: logger}
}

func (s *categoryService) Categories(ctx context.Context, creds db.Credentials) ([]models.Category, error) {
	rows, err := s.store.Select(ctx, creds, db.Query{
		Table: categoriesTable,
		Order: []db.Order{{Column: "name"}},
	})
	if err != nil {
		s.log.Warn("category read failed", "err", err)
		return []models.Category{}, fmt.Errorf("selecting categories: %w", err)
	}
	categories := make([]models.Category, 0, len(rows))
	for _, row := range rows {
		categories = append(categories, normalizeCategory(row))
	}
	return categories, nil
}

func (s *categoryService) CategoriesWithCounts(ctx context.Context, creds db.Credentials) ([]models.Category, error) {
	categories, err := s.Categories(ctx, creds)
	if err != nil {
		return categories, err
	}

	var wg sync.WaitGroup
	for i := range categories {
		wg.Add(1)
		go func(c *models.Category) {
			defer wg.Done()
			n, err := s.count(ctx, creds, *c)
			if err != nil {
				s.log.Warn("category count failed", "category", c.Name, "err", err)
				n = 0
			}
			c.ListingCount = &n
		}(&categories[i])
	}
	wg.Wait()
	return categories, nil
}

// count tries the categories name array first and the category_ids array
// when that finds nothing.
func (s *categoryService) count(ctx context.Context, creds db.Credentials, c models.Category) (int, error) {
	n, err := s.store.Count(ctx, creds, db.Query{
		Table:   listingsTable,
		Filters: []db.Filter{db.Contains("categories", c.Name)},
	})
	if err == nil && n > 0 {
		return n, nil
	}
	if err != nil && !errors.Is(err, db.ErrUnknownColumn) {
		return 0, err
	}
	if c.ID == "" {
		return 0, nil
	}
	n, err = s.store.Count(ctx, creds, db.Query{
		Table:   listingsTable,
		Filters: []db.Filter{db.Contains("category_ids", c.ID)},
	})
	if errors.Is(err, db.ErrUnknownColumn) {
		return 0, nil
	}
	return n, err
}

func normalizeCategory(row db.Row) models.Category {
	c := models.Category{
		ID:          idString(row["id"]),
		Name:        firstText(row, "name", "slug"),
		Slug:        textOr(row["slug"], ""),
		Description: textOr(row["description"], ""),
		Icon:        textOr(row["icon"], ""),
		Color:       textOr(row["color"], ""),
	}
	if c.Slug == "" {
		c.Slug = CategorySlug(c.Name)
	}
	return c
}
