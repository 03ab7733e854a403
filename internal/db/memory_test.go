package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bg() context.Context { return context.Background() }

const fixtureYAML = `
categories:
  - {id: cat-1, name: Eat, slug: eat}
  - {id: cat-2, name: Stay, slug: stay}
listings:
  - id: 1
    title: Old Harbour Grill
    description: Seafood on the water
    categories: [Eat]
    featured: true
    created_at: "2024-01-01T10:00:00Z"
  - id: 2
    title: Jazz Cellar
    description: Live music
    categories: []
    category_ids: [cat-1]
    featured: false
    created_at: "2024-03-01T10:00:00Z"
  - id: 3
    title: Dune Lodge
    description: Beachfront stays
    categories: [Stay]
    featured: false
    created_at: "2024-03-01T10:00:00Z"
listing_images:
  - {id: img-1, listing_id: 1, url: "http://img/1.jpg", is_primary: true}
  - {id: img-2, listing_id: 3, storage_path: "a b.jpg"}
`

func newFixtureStore(t *testing.T) *MemoryStore {
	t.Helper()
	s, err := ParseMemoryFixture([]byte(fixtureYAML))
	require.NoError(t, err)
	return s
}

func ids(rows []Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, scalarString(r["id"]))
	}
	return out
}

func TestMemoryStore_OrderWithTieBreak(t *testing.T) {
	s := newFixtureStore(t)
	rows, err := s.Select(bg(), Anonymous, Query{
		Table: "listings",
		Order: []Order{{Column: "created_at", Desc: true}, {Column: "id"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3", "1"}, ids(rows))
}

func TestMemoryStore_Filters(t *testing.T) {
	s := newFixtureStore(t)

	rows, err := s.Select(bg(), Anonymous, Query{Table: "listings", Filters: []Filter{Contains("categories", "Eat")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(rows))

	rows, err = s.Select(bg(), Anonymous, Query{Table: "listings", Filters: []Filter{Contains("category_ids", "cat-1")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids(rows))

	rows, err = s.Select(bg(), Anonymous, Query{Table: "listings", Filters: []Filter{Eq("featured", true)}})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(rows))

	rows, err = s.Select(bg(), Anonymous, Query{Table: "listings", Filters: []Filter{ILikeAny("JAZZ", "title", "description")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids(rows))

	rows, err = s.Select(bg(), Anonymous, Query{Table: "categories", Filters: []Filter{In("id", "cat-2", "cat-9")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"cat-2"}, ids(rows))

	rows, err = s.Select(bg(), Anonymous, Query{Table: "listings", Filters: []Filter{Eq("id", "1")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(rows), "string id matches numeric fixture id")
}

func TestMemoryStore_UnknownColumnAndTable(t *testing.T) {
	s := newFixtureStore(t)

	_, err := s.Select(bg(), Anonymous, Query{Table: "listings", Filters: []Filter{Eq("is_featured", true)}})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = s.Select(bg(), Anonymous, Query{Table: "listings", Filters: []Filter{ILikeAny("x", "name", "description")}})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = s.Select(bg(), Anonymous, Query{Table: "events"})
	assert.ErrorIs(t, err, ErrUnknownTable)

	_, err = s.Count(bg(), Anonymous, Query{Table: "listings", Filters: []Filter{Contains("tags", "x")}})
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestMemoryStore_LimitOffsetCount(t *testing.T) {
	s := newFixtureStore(t)
	q := Query{Table: "listings", Order: []Order{{Column: "id"}}, Limit: 2, Offset: 1}
	rows, err := s.Select(bg(), Anonymous, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, ids(rows))

	q.Offset = 10
	rows, err = s.Select(bg(), Anonymous, q)
	require.NoError(t, err)
	assert.Empty(t, rows)

	n, err := s.Count(bg(), Anonymous, q)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMemoryStore_EmbedAndSelectOne(t *testing.T) {
	s := newFixtureStore(t)
	row, err := s.SelectOne(bg(), Anonymous, Query{
		Table:   "listings",
		Filters: []Filter{Eq("id", 1)},
		Embed:   &Embed{Table: "listing_images", ForeignKey: "listing_id"},
	})
	require.NoError(t, err)
	images, ok := row["listing_images"].([]interface{})
	require.True(t, ok)
	require.Len(t, images, 1)
	assert.Equal(t, "http://img/1.jpg", images[0].(map[string]interface{})["url"])

	_, err = s.SelectOne(bg(), Anonymous, Query{Table: "listings", Filters: []Filter{Eq("id", 42)}})
	assert.ErrorIs(t, err, ErrNoRows)

	_, err = s.Select(bg(), Anonymous, Query{Table: "listings", Embed: &Embed{Table: "photos", ForeignKey: "listing_id"}})
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestMemoryStore_ReturnedRowsAreCopies(t *testing.T) {
	s := newFixtureStore(t)
	rows, err := s.Select(bg(), Anonymous, Query{Table: "categories"})
	require.NoError(t, err)
	rows[0]["name"] = "changed"

	again, err := s.Select(bg(), Anonymous, Query{Table: "categories", Filters: []Filter{Eq("id", "cat-1")}})
	require.NoError(t, err)
	assert.Equal(t, "Eat", again[0]["name"])
}

func TestMemoryStore_Insert(t *testing.T) {
	s := newFixtureStore(t)
	out, err := s.Insert(bg(), Anonymous, "enquiries", Row{"name": "Thandi", "email": "t@example.com"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.NotEmpty(t, out[0]["id"])
	assert.NotEmpty(t, out[0]["created_at"])

	_, err = s.Insert(bg(), Anonymous, "enquiries", Row{"id": out[0]["id"]})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	n, err := s.Count(bg(), Anonymous, Query{Table: "enquiries"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
