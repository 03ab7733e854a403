package models

type Event struct {
	ID            string `json:"id" yaml:"id"`
	Slug          string `json:"slug" yaml:"slug"`
	Title         string `json:"title" yaml:"title"`
	Description   string `json:"description" yaml:"description"`
	StartsAt      string `json:"starts_at" yaml:"starts_at"`
	EndsAt        string `json:"ends_at,omitempty" yaml:"ends_at"`
	Venue         string `json:"venue" yaml:"venue"`
	City          string `json:"city" yaml:"city"`
	Category      string `json:"category" yaml:"category"`
	PriceLabel    string `json:"price_label,omitempty" yaml:"price_label"`
	Featured      bool   `json:"featured" yaml:"featured"`
	TicketURL     string `json:"ticket_url,omitempty" yaml:"ticket_url"`
	FeaturedImage string `json:"featured_image,omitempty" yaml:"featured_image"`
}
