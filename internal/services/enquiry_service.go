package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode"

	"github.com/BrianStatesThat/thepepassport/internal/db"
	"github.com/BrianStatesThat/thepepassport/internal/models"
	"github.com/BrianStatesThat/thepepassport/internal/utils"
)

const (
	enquiriesTable   = "enquiries"
	suggestionsTable = "listing_suggestions"
)

// ErrInvalidEnquiry wraps every validation failure of a submitted form.
var ErrInvalidEnquiry = errors.New("invalid submission")

// EnquiryNotifier is told about stored enquiries. The background task
// client implements it.
type EnquiryNotifier interface {
	NotifyEnquiry(ctx context.Context, enquiry *models.Enquiry) error
}

// IEnquiryService stores contact form enquiries and place suggestions.
type IEnquiryService interface {
	SubmitEnquiry(ctx context.Context, creds db.Credentials, enquiry models.Enquiry) (*models.Enquiry, error)
	SubmitSuggestion(ctx context.Context, creds db.Credentials, suggestion models.ListingSuggestion) (*models.ListingSuggestion, error)
}

type enquiryService struct {
	store    db.RowStore
	notifier EnquiryNotifier
	log      *slog.Logger
}

// NewEnquiryService creates a new EnquiryService. notifier may be nil.
func NewEnquiryService(store db.RowStore, notifier EnquiryNotifier, logger *slog.Logger) IEnquiryService {
	return &enquiryService{store: store, notifier: notifier, log: logger}
}

func (s *enquiryService) SubmitEnquiry(ctx context.Context, creds db.Credentials, enquiry models.Enquiry) (*models.Enquiry, error) {
	enquiry.Name = strings.TrimSpace(enquiry.Name)
	enquiry.Email = strings.TrimSpace(enquiry.Email)
	enquiry.Phone = strings.TrimSpace(enquiry.Phone)
	enquiry.Message = strings.TrimSpace(enquiry.Message)
	enquiry.ListingID = strings.TrimSpace(enquiry.ListingID)
	if err := validateContact(enquiry.Name, enquiry.Email); err != nil {
		return nil, err
	}
	if enquiry.Message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidEnquiry)
	}
	enquiry.Status = models.EnquiryStatusNew

	var stored db.Row
	operation := func() error {
		enquiry.Reference = utils.NewSixID().String()
		row := db.Row{
			"reference": enquiry.Reference,
			"name":      enquiry.Name,
			"email":     enquiry.Email,
			"message":   enquiry.Message,
			"status":    enquiry.Status,
		}
		if enquiry.Phone != "" {
			row["phone"] = enquiry.Phone
		}
		if enquiry.ListingID != "" {
			row["listing_id"] = enquiry.ListingID
		}
		rows, err := s.store.Insert(ctx, creds, enquiriesTable, row)
		if errors.Is(err, db.ErrUnknownColumn) {
			// older enquiries tables have no reference column
			delete(row, "reference")
			rows, err = s.store.Insert(ctx, creds, enquiriesTable, row)
		}
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			stored = rows[0]
		}
		return nil
	}
	if err := db.Try(operation); err != nil {
		s.log.Error("enquiry insert failed", "email", enquiry.Email, "err", err)
		return nil, fmt.Errorf("storing enquiry: %w", err)
	}
	enquiry.ID = idString(stored["id"])
	enquiry.CreatedAt = timestampOr(stored["created_at"], "")

	if s.notifier != nil {
		if err := s.notifier.NotifyEnquiry(ctx, &enquiry); err != nil {
			s.log.Warn("enquiry notification not queued", "reference", enquiry.Reference, "err", err)
		}
	}
	return &enquiry, nil
}

func (s *enquiryService) SubmitSuggestion(ctx context.Context, creds db.Credentials, suggestion models.ListingSuggestion) (*models.ListingSuggestion, error) {
	suggestion.Name = strings.TrimSpace(suggestion.Name)
	suggestion.Email = strings.TrimSpace(suggestion.Email)
	suggestion.PlaceName = strings.TrimSpace(suggestion.PlaceName)
	suggestion.PlaceDescription = strings.TrimSpace(suggestion.PlaceDescription)
	if err := validateContact(suggestion.Name, suggestion.Email); err != nil {
		return nil, err
	}
	if suggestion.PlaceName == "" {
		return nil, fmt.Errorf("%w: place_name is required", ErrInvalidEnquiry)
	}
	suggestion.Status = models.SuggestionStatusPending

	row := db.Row{
		"name":              suggestion.Name,
		"email":             suggestion.Email,
		"place_name":        suggestion.PlaceName,
		"place_description": suggestion.PlaceDescription,
		"status":            suggestion.Status,
	}
	if c := strings.TrimSpace(suggestion.Category); c != "" {
		row["category"] = c
	}
	if a := strings.TrimSpace(suggestion.Address); a != "" {
		row["address"] = a
	}
	rows, err := s.store.Insert(ctx, creds, suggestionsTable, row)
	if err != nil {
		s.log.Error("suggestion insert failed", "email", suggestion.Email, "err", err)
		return nil, fmt.Errorf("storing suggestion: %w", err)
	}
	if len(rows) > 0 {
		suggestion.ID = idString(rows[0]["id"])
		suggestion.CreatedAt = timestampOr(rows[0]["created_at"], "")
	}
	return &suggestion, nil
}

func validateContact(name, email string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEnquiry)
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: name contains control characters", ErrInvalidEnquiry)
	}
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidEnquiry)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: email is not a valid address", ErrInvalidEnquiry)
	}
	return nil
}
