package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BrianStatesThat/thepepassport/internal/db"
)

const categoriesTable = "categories"

// ICategoryResolver bridges the two listing schema shapes: categories as an
// array of names and categories as an array of category ids.
type ICategoryResolver interface {
	// ResolveCategoryID finds a category id by exact name, then by derived
	// slug. found is false when the name is blank or nothing matches.
	ResolveCategoryID(ctx context.Context, creds db.Credentials, name string) (id string, found bool, err error)
	// HydrateCategoryNames fills categories from category_ids on rows that
	// have no names. The input rows are not modified.
	HydrateCategoryNames(ctx context.Context, creds db.Credentials, rows []db.Row) ([]db.Row, error)
}

type categoryResolver struct {
	store db.RowStore
}

func NewCategoryResolver(store db.RowStore) ICategoryResolver {
	return &categoryResolver{store: store}
}

// CategorySlug lower-cases name and replaces whitespace runs with "-".
func CategorySlug(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

func (r *categoryResolver) ResolveCategoryID(ctx context.Context, creds db.Credentials, name string) (string, bool, error) {
	if strings.TrimSpace(name) == "" {
		return "", false, nil
	}

	row, err := r.store.SelectOne(ctx, creds, db.Query{
		Table:   categoriesTable,
		Filters: []db.Filter{db.Eq("name", name)},
	})
	if err == nil {
		return idString(row["id"]), true, nil
	}
	if !errors.Is(err, db.ErrNoRows) {
		return "", false, fmt.Errorf("resolving category %q by name: %w", name, err)
	}

	row, err = r.store.SelectOne(ctx, creds, db.Query{
		Table:   categoriesTable,
		Filters: []db.Filter{db.Eq("slug", CategorySlug(name))},
	})
	switch {
	case err == nil:
		return idString(row["id"]), true, nil
	case errors.Is(err, db.ErrNoRows), errors.Is(err, db.ErrUnknownColumn):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("resolving category %q by slug: %w", name, err)
	}
}

func (r *categoryResolver) HydrateCategoryNames(ctx context.Context, creds db.Credentials, rows []db.Row) ([]db.Row, error) {
	var ids []string
	seen := map[string]bool{}
	for _, row := range rows {
		if needsHydration(row) {
			for _, id := range asStrings(row["category_ids"]) {
				if id != "" && !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
	}
	if len(ids) == 0 {
		return rows, nil
	}

	categories, err := r.store.Select(ctx, creds, db.Query{
		Table:   categoriesTable,
		Filters: []db.Filter{db.In("id", ids...)},
	})
	if err != nil {
		return rows, fmt.Errorf("hydrating category names: %w", err)
	}
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		if name := firstText(c, "name", "slug"); name != "" {
			names[idString(c["id"])] = name
		}
	}

	out := make([]db.Row, len(rows))
	for i, row := range rows {
		if !needsHydration(row) {
			out[i] = row
			continue
		}
		resolved := make([]string, 0)
		for _, id := range asStrings(row["category_ids"]) {
			if name, ok := names[id]; ok {
				resolved = append(resolved, name)
			}
		}
		hydrated := make(db.Row, len(row)+1)
		for k, v := range row {
			hydrated[k] = v
		}
		hydrated["categories"] = dedupeStrings(resolved)
		out[i] = hydrated
	}
	return out, nil
}

func needsHydration(row db.Row) bool {
	return len(asStrings(row["categories"])) == 0 && len(asStrings(row["category_ids"])) > 0
}
