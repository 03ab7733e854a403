package models

// Enquiry is a contact form submission, optionally about a listing.
type Enquiry struct {
	ID        string `json:"id,omitempty"`
	Reference string `json:"reference"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Message   string `json:"message"`
	ListingID string `json:"listing_id,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
}

const (
	EnquiryStatusNew       = "new"
	EnquiryStatusRead      = "read"
	EnquiryStatusResponded = "responded"
)

// ListingSuggestion is a visitor's proposal for a new place to list.
type ListingSuggestion struct {
	ID               string `json:"id,omitempty"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	PlaceName        string `json:"place_name"`
	PlaceDescription string `json:"place_description"`
	Category         string `json:"category,omitempty"`
	Address          string `json:"address,omitempty"`
	Status           string `json:"status"`
	CreatedAt        string `json:"created_at,omitempty"`
}

const (
	SuggestionStatusPending  = "pending"
	SuggestionStatusApproved = "approved"
	SuggestionStatusRejected = "rejected"
)
