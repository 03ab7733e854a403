package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/BrianStatesThat/thepepassport/internal/api/middleware"
	"github.com/BrianStatesThat/thepepassport/internal/models"
	"github.com/BrianStatesThat/thepepassport/internal/services"
)

// RestListingHandler handles REST requests for listings.
type RestListingHandler struct {
	listingService services.IListingService
}

// NewRestListingHandler creates a new RestListingHandler.
func NewRestListingHandler(listingService services.IListingService) *RestListingHandler {
	return &RestListingHandler{listingService: listingService}
}

type listingPageResponse struct {
	*models.ListingPage
	Degraded bool `json:"degraded,omitempty"`
}

// ListListings handles GET /v1/listings?page&page_size&category
func (h *RestListingHandler) ListListings(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page <= 0 {
		page = 1
	}
	pageSize := queryLimit(c, "page_size", services.DefaultPageSize)
	category := strings.TrimSpace(c.Query("category"))

	result, err := h.listingService.Page(c.Request.Context(), middleware.Credentials(c), page, pageSize, category)
	if result == nil {
		result = &models.ListingPage{Data: []models.Listing{}, Page: page, PageSize: pageSize, TotalPages: 1}
	}
	if result.Data == nil {
		result.Data = []models.Listing{}
	}
	resp := listingPageResponse{ListingPage: result}
	if err != nil {
		degrade(c, "listings.page", err)
		resp.Degraded = true
	}
	c.JSON(http.StatusOK, resp)
}

// FeaturedListings handles GET /v1/listings/featured?limit
func (h *RestListingHandler) FeaturedListings(c *gin.Context) {
	limit := queryLimit(c, "limit", services.DefaultListLimit)
	listings, err := h.listingService.Featured(c.Request.Context(), middleware.Credentials(c), limit)
	respondList(c, "listings.featured", listings, err)
}

// SearchListings handles GET /v1/listings/search?q&limit
func (h *RestListingHandler) SearchListings(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusOK, gin.H{"data": []models.Listing{}})
		return
	}
	limit := queryLimit(c, "limit", services.DefaultListLimit)
	listings, err := h.listingService.Search(c.Request.Context(), middleware.Credentials(c), query, limit)
	respondList(c, "listings.search", listings, err)
}

// GetListingBySlug handles GET /v1/listings/:slug
func (h *RestListingHandler) GetListingBySlug(c *gin.Context) {
	listing, err := h.listingService.BySlug(c.Request.Context(), middleware.Credentials(c), c.Param("slug"))
	if err != nil {
		if errors.Is(err, services.ErrListingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
			return
		}
		degrade(c, "listings.slug", err)
		c.JSON(http.StatusOK, gin.H{"data": nil, "degraded": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": listing})
}

func RegisterRestListingRoutes(r gin.IRoutes, handler *RestListingHandler) {
	r.GET("/listings", handler.ListListings)
	r.GET("/listings/featured", handler.FeaturedListings)
	r.GET("/listings/search", handler.SearchListings)
	r.GET("/listings/:slug", handler.GetListingBySlug)
}
