package services

import (
	"math"
	"net/url"
	"sort"
	"strings"

	"github.com/BrianStatesThat/thepepassport/internal/db"
	"github.com/BrianStatesThat/thepepassport/internal/models"
)

const untitled = "Untitled"

// ListingNormalizer turns raw listings rows of any known schema shape into
// models.Listing. It never fails: malformed or missing fields become
// defaults.
type ListingNormalizer struct {
	// StorageBaseURL is the public prefix for listing_images rows that only
	// carry a storage path. Empty means such rows are skipped.
	StorageBaseURL string
}

// Normalize maps one row. Rows are expected to have been through
// HydrateCategoryNames already when they only carry category_ids.
func (n ListingNormalizer) Normalize(row db.Row) models.Listing {
	l := models.Listing{
		ID:              idString(row["id"]),
		Slug:            textOr(row["slug"], ""),
		Title:           firstText(row, "title", "name"),
		Description:     textOr(row["description"], ""),
		LongDescription: textOr(row["long_description"], ""),
		Categories:      asStrings(row["categories"]),
		Status:          textOr(row["status"], models.StatusDraft),
		PriceRange:      textOr(row["price_range"], ""),
		OpeningHours:    row["opening_hours"],
		CreatedAt:       timestampOr(row["created_at"], models.EpochTimestamp),
		UpdatedAt:       timestampOr(row["updated_at"], models.EpochTimestamp),
	}
	if l.Title == "" {
		l.Title = untitled
	}
	if l.Categories == nil {
		l.Categories = []string{}
	}
	if features := asStrings(row["features"]); len(features) > 0 {
		l.Features = features
	}

	l.Images = n.images(row)
	if len(l.Images) > 0 {
		l.FeaturedImage = l.Images[0]
	}

	l.Location = normalizeLocation(row)
	l.Contact = normalizeContact(row)

	l.Rating = math.Max(0, asFloat(preferred(row, "rating", "avg_rating")))
	l.ReviewCount = int(math.Max(0, math.Round(asFloat(preferred(row, "review_count", "ratings_count")))))
	l.Featured = asBool(row["featured"]) || asBool(row["is_featured"])
	l.Verified = asBool(row["verified"]) || asBool(row["is_verified"])
	return l
}

// NormalizeAll maps rows in order.
func (n ListingNormalizer) NormalizeAll(rows []db.Row) []models.Listing {
	out := make([]models.Listing, 0, len(rows))
	for _, row := range rows {
		out = append(out, n.Normalize(row))
	}
	return out
}

// images is the explicit featured image, then listing_images primary-first
// then oldest, then the inline images array. Deduplicated, first seen wins.
func (n ListingNormalizer) images(row db.Row) []string {
	var all []string
	if s, ok := asText(row["featured_image"]); ok {
		all = append(all, s)
	}
	all = append(all, n.relatedImageURLs(row["listing_images"])...)
	all = append(all, asStrings(row["images"])...)
	return dedupeStrings(all)
}

func (n ListingNormalizer) relatedImageURLs(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok || len(items) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if m := asMap(item); m != nil {
			rows = append(rows, m)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		pi, pj := asBool(rows[i]["is_primary"]), asBool(rows[j]["is_primary"])
		if pi != pj {
			return pi
		}
		ci, cj := timestampOr(rows[i]["created_at"], ""), timestampOr(rows[j]["created_at"], "")
		if ci == "" || cj == "" {
			return ci != "" && cj == ""
		}
		return ci < cj
	})

	urls := make([]string, 0, len(rows))
	for _, r := range rows {
		if u := n.imageURL(r); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func (n ListingNormalizer) imageURL(r map[string]interface{}) string {
	if u := firstText(r, "url", "public_url"); u != "" {
		return u
	}
	path := firstText(r, "storage_path", "path")
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if n.StorageBaseURL == "" {
		return ""
	}
	segments := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(n.StorageBaseURL, "/") + "/" + strings.Join(segments, "/")
}

func normalizeLocation(row db.Row) models.Location {
	nested := asMap(row["location"])

	loc := models.Location{
		Address: firstText(nested, "address"),
		Area:    firstText(nested, "area"),
	}
	if loc.Address == "" {
		loc.Address = composeAddress(row)
	}
	if loc.Area == "" {
		loc.Area = textOr(row["area"], "")
	}

	if present(nested, "lat") {
		loc.Lat = asFloat(nested["lat"])
	} else {
		loc.Lat = asFloat(row["latitude"])
	}
	if present(nested, "lng") {
		loc.Lng = asFloat(nested["lng"])
	} else {
		loc.Lng = asFloat(row["longitude"])
	}
	return loc
}

// composeAddress joins street and address first, then city, region,
// postal_code and country, skipping blanks.
func composeAddress(row db.Row) string {
	var line []string
	for _, k := range []string{"street", "address"} {
		if s, ok := asText(row[k]); ok {
			line = append(line, strings.TrimSpace(s))
		}
	}
	parts := make([]string, 0, 5)
	if len(line) > 0 {
		parts = append(parts, strings.Join(line, ", "))
	}
	for _, k := range []string{"city", "region", "postal_code", "country"} {
		if s, ok := asText(row[k]); ok {
			parts = append(parts, strings.TrimSpace(s))
		} else if f := asFloat(row[k]); k == "postal_code" && f > 0 {
			parts = append(parts, idString(row[k]))
		}
	}
	return strings.Join(parts, ", ")
}

func normalizeContact(row db.Row) *models.Contact {
	nested := asMap(row["contact"])
	pick := func(key string) string {
		if s := firstText(nested, key); s != "" {
			return s
		}
		return textOr(row[key], "")
	}
	c := models.Contact{Phone: pick("phone"), Email: pick("email"), Website: pick("website")}
	if c == (models.Contact{}) {
		return nil
	}
	return &c
}

// preferred returns the canonical key's value when set, else the alias.
func preferred(row db.Row, canonical, alias string) interface{} {
	if present(row, canonical) {
		return row[canonical]
	}
	return row[alias]
}
