package models

// Listing is the canonical point-of-interest shape. Every listing row from
// the database is normalized into this before it is used anywhere else.
type Listing struct {
	ID              string      `json:"id"`
	Slug            string      `json:"slug"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	LongDescription string      `json:"long_description,omitempty"`
	Categories      []string    `json:"categories"`
	Images          []string    `json:"images"`
	FeaturedImage   string      `json:"featured_image"` // always Images[0] when Images is non-empty
	Location        Location    `json:"location"`
	Contact         *Contact    `json:"contact,omitempty"`
	Rating          float64     `json:"rating"`
	ReviewCount     int         `json:"review_count"`
	Featured        bool        `json:"featured"`
	Verified        bool        `json:"verified"`
	Status          string      `json:"status"`
	PriceRange      string      `json:"price_range,omitempty"`
	OpeningHours    interface{} `json:"opening_hours,omitempty"`
	Features        []string    `json:"features,omitempty"`
	CreatedAt       string      `json:"created_at"`
	UpdatedAt       string      `json:"updated_at"`
}

// Location holds a free-text address and coordinates. Lat/Lng are 0 when unknown.
type Location struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Area    string  `json:"area,omitempty"`
}

type Contact struct {
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Website string `json:"website,omitempty"`
}

const (
	StatusPublished = "published"
	StatusDraft     = "draft"
	StatusArchived  = "archived"
)

// EpochTimestamp stands in for missing created_at/updated_at values.
const EpochTimestamp = "1970-01-01T00:00:00.000Z"

// CategoryResolution records which schema shape served a category filter.
type CategoryResolution string

const (
	ResolvedByName       CategoryResolution = "categories"   // categories array of names matched
	ResolvedByID         CategoryResolution = "category_ids" // fell back to the id array
	ResolutionUnresolved CategoryResolution = "unresolved"   // no rows by name and the name matched no category
)

// ListingPage is one window of a paginated listing query.
type ListingPage struct {
	Data       []Listing          `json:"data"`
	Total      int                `json:"total"`
	TotalPages int                `json:"totalPages"`
	Page       int                `json:"page"`
	PageSize   int                `json:"pageSize"`
	Resolution CategoryResolution `json:"resolution,omitempty"`
}
