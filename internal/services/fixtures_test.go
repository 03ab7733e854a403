package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BrianStatesThat/thepepassport/internal/db"
	"github.com/BrianStatesThat/thepepassport/internal/logger"
	"github.com/BrianStatesThat/thepepassport/internal/models"
)

const listingsFixture = `
categories:
  - {id: cat-1, name: Eat, slug: eat}
  - {id: cat-2, name: Stay, slug: stay}
  - {id: cat-3, name: "", slug: things-to-do}
  - {id: cat-9, name: Eat Out, slug: eat-out}
listings:
  - id: "1"
    slug: old-harbour-grill
    title: Old Harbour Grill
    description: Seafood on the water
    categories: [Stay]
    featured: true
    created_at: "2024-01-01T10:00:00Z"
  - id: "2"
    slug: jazz-cellar
    title: Jazz Cellar
    description: Live music most nights
    categories: []
    category_ids: [cat-1, cat-3]
    featured: false
    created_at: "2024-03-01T10:00:00Z"
  - id: "3"
    slug: dune-lodge
    title: Dune Lodge
    description: Beachfront stays
    categories: [Stay]
    featured: false
    created_at: "2024-03-01T10:00:00Z"
listing_images:
  - {id: img-1, listing_id: "1", url: "http://img/1.jpg", is_primary: true}
`

func newTestStore(t *testing.T, fixture string) *db.MemoryStore {
	t.Helper()
	s, err := db.ParseMemoryFixture([]byte(fixture))
	require.NoError(t, err)
	return s
}

func newTestListingService(store db.RowStore) IListingService {
	return NewListingService(store, NewCategoryResolver(store), ListingNormalizer{}, logger.Discard())
}

func listingIDs(listings []models.Listing) []string {
	out := make([]string, 0, len(listings))
	for _, l := range listings {
		out = append(out, l.ID)
	}
	return out
}

func bg() context.Context { return context.Background() }
