package api

import (
	"log/slog"

	"github.com/BrianStatesThat/thepepassport/internal/config"
	"github.com/BrianStatesThat/thepepassport/internal/db"
	"github.com/BrianStatesThat/thepepassport/internal/services"
)

// NewServices wires every service over one row store. notifier may be nil.
func NewServices(cfg *config.Config, store db.RowStore, notifier services.EnquiryNotifier, logger *slog.Logger) (Services, error) {
	resolver := services.NewCategoryResolver(store)
	listings := services.NewListingService(store, resolver, services.ListingNormalizer{StorageBaseURL: cfg.StoragePublicBaseURL}, logger)
	categories := services.NewCategoryService(store, logger)
	blog := services.NewBlogService(store, logger)
	events, err := services.NewEventService(store, logger)
	if err != nil {
		return Services{}, err
	}
	return Services{
		Listings:   listings,
		Categories: categories,
		Blog:       blog,
		Events:     events,
		Enquiries:  services.NewEnquiryService(store, notifier, logger),
		Sitemap:    services.NewSitemapService(cfg.SiteURL, listings, blog, categories),
	}, nil
}
