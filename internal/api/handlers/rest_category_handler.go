package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/BrianStatesThat/thepepassport/internal/api/middleware"
	"github.com/BrianStatesThat/thepepassport/internal/services"
)

// RestCategoryHandler serves the category directory.
type RestCategoryHandler struct {
	categoryService services.ICategoryService
	listingService  services.IListingService
}

func NewRestCategoryHandler(categoryService services.ICategoryService, listingService services.IListingService) *RestCategoryHandler {
	return &RestCategoryHandler{categoryService: categoryService, listingService: listingService}
}

// GetCategories handles GET /v1/categories
func (h *RestCategoryHandler) GetCategories(c *gin.Context) {
	categories, err := h.categoryService.Categories(c.Request.Context(), middleware.Credentials(c))
	respondList(c, "categories", categories, err)
}

// GetCategoryCounts handles GET /v1/categories/counts
func (h *RestCategoryHandler) GetCategoryCounts(c *gin.Context) {
	categories, err := h.categoryService.CategoriesWithCounts(c.Request.Context(), middleware.Credentials(c))
	respondList(c, "categories.counts", categories, err)
}

// GetCategoryListings handles GET /v1/categories/:name/listings?limit
func (h *RestCategoryHandler) GetCategoryListings(c *gin.Context) {
	limit := queryLimit(c, "limit", services.DefaultListLimit)
	listings, err := h.listingService.ByCategory(c.Request.Context(), middleware.Credentials(c), c.Param("name"), limit)
	respondList(c, "categories.listings", listings, err)
}

func RegisterRestCategoryRoutes(r gin.IRoutes, handler *RestCategoryHandler) {
	r.GET("/categories", handler.GetCategories)
	r.GET("/categories/counts", handler.GetCategoryCounts)
	r.GET("/categories/:name/listings", handler.GetCategoryListings)
}
