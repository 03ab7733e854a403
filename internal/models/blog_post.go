package models

// BlogPost is a normalized blog_posts row.
type BlogPost struct {
	ID              string   `json:"id"`
	Slug            string   `json:"slug"`
	Title           string   `json:"title"`
	Excerpt         string   `json:"excerpt"`
	Content         string   `json:"content"`
	FeaturedImage   string   `json:"featured_image,omitempty"`
	Author          string   `json:"author"`
	Published       bool     `json:"published"`
	PublishedAt     string   `json:"published_at"`
	Date            string   `json:"date"` // alias of PublishedAt kept for card rendering
	ReadingTime     int      `json:"reading_time"`
	ReadTime        string   `json:"readTime"` // e.g. "4 min"
	Tags            []string `json:"tags"`
	RelatedListings []string `json:"related_listings,omitempty"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

const DefaultBlogAuthor = "The PE Passport"
