package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BrianStatesThat/thepepassport/internal/db"
	"github.com/BrianStatesThat/thepepassport/internal/logger"
	"github.com/BrianStatesThat/thepepassport/internal/models"
	"github.com/BrianStatesThat/thepepassport/internal/utils"
)

type MockEnquiryNotifier struct {
	mock.Mock
}

func (m *MockEnquiryNotifier) NotifyEnquiry(ctx context.Context, enquiry *models.Enquiry) error {
	args := m.Called(ctx, enquiry)
	return args.Error(0)
}

func TestEnquiryService_SubmitEnquiry(t *testing.T) {
	store := db.NewMemoryStore(map[string][]db.Row{})
	notifier := new(MockEnquiryNotifier)
	notifier.On("NotifyEnquiry", mock.Anything, mock.MatchedBy(func(e *models.Enquiry) bool {
		return e.Email == "visitor@example.com" && e.Reference != ""
	})).Return(nil).Once()
	svc := NewEnquiryService(store, notifier, logger.Discard())

	enquiry, err := svc.SubmitEnquiry(bg(), db.Anonymous, models.Enquiry{
		Name:      " Lindiwe ",
		Email:     "visitor@example.com",
		Message:   "Do you take group bookings?",
		ListingID: "5",
	})
	require.NoError(t, err)
	assert.Equal(t, "Lindiwe", enquiry.Name)
	assert.Equal(t, models.EnquiryStatusNew, enquiry.Status)
	assert.Len(t, enquiry.Reference, 10)
	assert.NotEmpty(t, enquiry.ID)
	assert.NotEmpty(t, enquiry.CreatedAt)
	notifier.AssertExpectations(t)

	rows, err := store.Select(bg(), db.Anonymous, db.Query{Table: "enquiries"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "5", rows[0]["listing_id"])
	assert.Equal(t, enquiry.Reference, rows[0]["reference"])
	assert.NotContains(t, rows[0], "phone")
}

func TestEnquiryService_ReferenceCollisionRetries(t *testing.T) {
	original := utils.NewSixIDHook
	defer func() { utils.NewSixIDHook = original }()

	taken := utils.SixID{9, 9, 9, 9, 9, 9}
	free := utils.SixID{1, 1, 1, 1, 1, 1}
	queue := []utils.SixID{taken, free}
	utils.NewSixIDHook = func() (utils.SixID, bool) {
		if len(queue) == 0 {
			return utils.SixID{}, false
		}
		id := queue[0]
		queue = queue[1:]
		return id, true
	}

	store := db.NewMemoryStore(map[string][]db.Row{
		"enquiries": {{"id": "e-1", "reference": taken.String()}},
	})
	store.Unique("enquiries", "reference")
	svc := NewEnquiryService(store, nil, logger.Discard())

	enquiry, err := svc.SubmitEnquiry(bg(), db.Anonymous, models.Enquiry{
		Name: "Sipho", Email: "sipho@example.com", Message: "Hi",
	})
	require.NoError(t, err)
	assert.Equal(t, free.String(), enquiry.Reference)
}

func TestEnquiryService_NotifierFailureIsNotFatal(t *testing.T) {
	notifier := new(MockEnquiryNotifier)
	notifier.On("NotifyEnquiry", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	svc := NewEnquiryService(db.NewMemoryStore(nil), notifier, logger.Discard())

	_, err := svc.SubmitEnquiry(bg(), db.Anonymous, models.Enquiry{
		Name: "Sipho", Email: "sipho@example.com", Message: "Hi",
	})
	assert.NoError(t, err)
	notifier.AssertNumberOfCalls(t, "NotifyEnquiry", 1)
}

func TestEnquiryService_Validation(t *testing.T) {
	svc := NewEnquiryService(db.NewMemoryStore(nil), nil, logger.Discard())

	cases := map[string]models.Enquiry{
		"name":    {Email: "a@example.com", Message: "hi"},
		"email":   {Name: "A", Message: "hi"},
		"invalid": {Name: "A", Email: "not-an-email", Message: "hi"},
		"display": {Name: "A", Email: "A <a@example.com>", Message: "hi"},
		"message": {Name: "A", Email: "a@example.com", Message: "   "},
		"newline": {Name: "Eve\r\nBcc: victim@example.com", Email: "eve@example.com", Message: "hi"},
		"control": {Name: "Eve\x00", Email: "eve@example.com", Message: "hi"},
	}
	for name, in := range cases {
		_, err := svc.SubmitEnquiry(bg(), db.Anonymous, in)
		assert.ErrorIs(t, err, ErrInvalidEnquiry, name)
	}
}

func TestEnquiryService_SubmitSuggestion(t *testing.T) {
	store := db.NewMemoryStore(nil)
	svc := NewEnquiryService(store, nil, logger.Discard())

	suggestion, err := svc.SubmitSuggestion(bg(), db.Anonymous, models.ListingSuggestion{
		Name:      "Ayesha",
		Email:     "ayesha@example.com",
		PlaceName: "Sacramento Trail",
		Category:  "Do",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionStatusPending, suggestion.Status)
	assert.NotEmpty(t, suggestion.ID)

	rows, err := store.Select(bg(), db.Anonymous, db.Query{Table: "listing_suggestions"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Do", rows[0]["category"])
	assert.NotContains(t, rows[0], "address")

	_, err = svc.SubmitSuggestion(bg(), db.Anonymous, models.ListingSuggestion{Name: "A", Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrInvalidEnquiry)
}
