package handlers_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/BrianStatesThat/thepepassport/internal/db"
	"github.com/BrianStatesThat/thepepassport/internal/models"
	"github.com/BrianStatesThat/thepepassport/internal/services"
)

// --- Mocks ---

// MockListingService
type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) List(ctx context.Context, creds db.Credentials, category string, limit int) ([]models.Listing, error) {
	args := m.Called(ctx, creds, category, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}

func (m *MockListingService) Page(ctx context.Context, creds db.Credentials, page, pageSize int, category string) (*models.ListingPage, error) {
	args := m.Called(ctx, creds, page, pageSize, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ListingPage), args.Error(1)
}

func (m *MockListingService) Featured(ctx context.Context, creds db.Credentials, limit int) ([]models.Listing, error) {
	args := m.Called(ctx, creds, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}

func (m *MockListingService) BySlug(ctx context.Context, creds db.Credentials, slug string) (*models.Listing, error) {
	args := m.Called(ctx, creds, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) Search(ctx context.Context, creds db.Credentials, query string, limit int) ([]models.Listing, error) {
	args := m.Called(ctx, creds, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}

func (m *MockListingService) ByCategory(ctx context.Context, creds db.Credentials, name string, limit int) ([]models.Listing, error) {
	args := m.Called(ctx, creds, name, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}

// MockCategoryService
type MockCategoryService struct {
	mock.Mock
}

func (m *MockCategoryService) Categories(ctx context.Context, creds db.Credentials) ([]models.Category, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Category), args.Error(1)
}

func (m *MockCategoryService) CategoriesWithCounts(ctx context.Context, creds db.Credentials) ([]models.Category, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Category), args.Error(1)
}

// MockBlogService
type MockBlogService struct {
	mock.Mock
}

func (m *MockBlogService) Posts(ctx context.Context, creds db.Credentials, limit int) ([]models.BlogPost, error) {
	args := m.Called(ctx, creds, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BlogPost), args.Error(1)
}

func (m *MockBlogService) PostBySlug(ctx context.Context, creds db.Credentials, slug string) (*models.BlogPost, error) {
	args := m.Called(ctx, creds, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BlogPost), args.Error(1)
}

func (m *MockBlogService) RelatedPosts(ctx context.Context, creds db.Credentials, excludeID string, limit int) ([]models.BlogPost, error) {
	args := m.Called(ctx, creds, excludeID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BlogPost), args.Error(1)
}

// MockEventService
type MockEventService struct {
	mock.Mock
}

func (m *MockEventService) Events(ctx context.Context, creds db.Credentials) ([]models.Event, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *MockEventService) Upcoming(ctx context.Context, creds db.Credentials, limit int, now time.Time) ([]models.Event, error) {
	args := m.Called(ctx, creds, limit, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Event), args.Error(1)
}

// MockEnquiryService
type MockEnquiryService struct {
	mock.Mock
}

func (m *MockEnquiryService) SubmitEnquiry(ctx context.Context, creds db.Credentials, enquiry models.Enquiry) (*models.Enquiry, error) {
	args := m.Called(ctx, creds, enquiry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Enquiry), args.Error(1)
}

func (m *MockEnquiryService) SubmitSuggestion(ctx context.Context, creds db.Credentials, suggestion models.ListingSuggestion) (*models.ListingSuggestion, error) {
	args := m.Called(ctx, creds, suggestion)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ListingSuggestion), args.Error(1)
}

// MockSitemapService
type MockSitemapService struct {
	mock.Mock
}

func (m *MockSitemapService) Entries(ctx context.Context, creds db.Credentials, now time.Time) ([]services.SitemapURL, error) {
	args := m.Called(ctx, creds, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]services.SitemapURL), args.Error(1)
}

func (m *MockSitemapService) Render(ctx context.Context, creds db.Credentials, now time.Time) ([]byte, error) {
	args := m.Called(ctx, creds, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
