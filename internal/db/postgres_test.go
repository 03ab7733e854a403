package db

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSelect_ListingsPage(t *testing.T) {
	stmt, args, err := buildSelect(Query{
		Table:   "listings",
		Filters: []Filter{Eq("status", "published"), Contains("categories", "Eat")},
		Order:   []Order{{Column: "created_at", Desc: true}, {Column: "id"}},
		Limit:   20,
		Offset:  40,
		Embed:   &Embed{Table: "listing_images", ForeignKey: "listing_id"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT to_jsonb(t) || jsonb_build_object('listing_images', COALESCE((SELECT jsonb_agg(to_jsonb(e)) FROM "listing_images" e WHERE e."listing_id" = t."id"), '[]'::jsonb)) FROM "listings" t`+
			` WHERE t."status"::text = $1 AND t."categories"::text[] @> ARRAY[$2]::text[]`+
			` ORDER BY t."created_at" DESC, t."id" ASC LIMIT $3 OFFSET $4`,
		stmt)
	assert.Equal(t, []interface{}{"published", "Eat", 20, 40}, args)
}

func TestBuildSelect_BooleanAndSearch(t *testing.T) {
	stmt, args, err := buildSelect(Query{
		Table:   "listings",
		Filters: []Filter{Eq("featured", true), ILikeAny("50%_off", "title", "description")},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT to_jsonb(t) FROM "listings" t WHERE t."featured" = $1 AND (t."title" ILIKE $2 OR t."description" ILIKE $2)`,
		stmt)
	assert.Equal(t, []interface{}{true, `%50\%\_off%`}, args)
}

func TestBuildSelect_InAndNeq(t *testing.T) {
	stmt, args, err := buildSelect(Query{
		Table:   "categories",
		Filters: []Filter{In("id", "cat-1", "cat-2"), Neq("slug", "hidden")},
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT to_jsonb(t) FROM "categories" t WHERE t."id"::text = ANY($1) AND t."slug"::text <> $2`, stmt)
	require.Len(t, args, 2)
	assert.Equal(t, pq.Array([]string{"cat-1", "cat-2"}), args[0])
}

func TestBuildSelect_RejectsBadIdentifiers(t *testing.T) {
	_, _, err := buildSelect(Query{Table: "listings; drop table x"})
	assert.Error(t, err)

	_, _, err = buildSelect(Query{Table: "listings", Order: []Order{{Column: `created_at"`}}})
	assert.Error(t, err)
}

func TestBuildCount(t *testing.T) {
	stmt, args, err := buildCount(Query{
		Table:   "listings",
		Filters: []Filter{Contains("category_ids", "cat-1")},
		Limit:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT count(*) FROM "listings" t WHERE t."category_ids"::text[] @> ARRAY[$1]::text[]`, stmt)
	assert.Equal(t, []interface{}{"cat-1"}, args)
}

func TestBuildInsert_DefaultsMissingColumns(t *testing.T) {
	stmt, args, err := buildInsert("enquiries", []Row{
		{"name": "A", "email": "a@example.com"},
		{"name": "B", "phone": "041 000 0000"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "enquiries" AS t ("email", "name", "phone") VALUES ($1, $2, DEFAULT), (DEFAULT, $3, $4) RETURNING to_jsonb(t)`,
		stmt)
	assert.Equal(t, []interface{}{"a@example.com", "A", "B", "041 000 0000"}, args)
}

func TestTranslatePgError(t *testing.T) {
	assert.ErrorIs(t, translatePgError(&pq.Error{Code: "42703"}), ErrUnknownColumn)
	assert.ErrorIs(t, translatePgError(&pq.Error{Code: "42P01"}), ErrUnknownTable)
	assert.ErrorIs(t, translatePgError(&pq.Error{Code: "23505"}), ErrDuplicateKey)

	other := errors.New("boom")
	assert.Equal(t, other, translatePgError(other))
	assert.NoError(t, translatePgError(nil))
}
