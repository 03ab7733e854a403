package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/BrianStatesThat/thepepassport/internal/api/middleware"
	"github.com/BrianStatesThat/thepepassport/internal/models"
	"github.com/BrianStatesThat/thepepassport/internal/services"
)

// RestEnquiryHandler accepts contact form enquiries and place suggestions.
type RestEnquiryHandler struct {
	enquiryService services.IEnquiryService
}

func NewRestEnquiryHandler(enquiryService services.IEnquiryService) *RestEnquiryHandler {
	return &RestEnquiryHandler{enquiryService: enquiryService}
}

// SubmitEnquiry handles POST /v1/enquiries
func (h *RestEnquiryHandler) SubmitEnquiry(c *gin.Context) {
	var req models.Enquiry
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	enquiry, err := h.enquiryService.SubmitEnquiry(c.Request.Context(), middleware.Credentials(c), req)
	if err != nil {
		h.fail(c, err, "Failed to submit enquiry")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": enquiry})
}

// SubmitSuggestion handles POST /v1/suggestions
func (h *RestEnquiryHandler) SubmitSuggestion(c *gin.Context) {
	var req models.ListingSuggestion
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	suggestion, err := h.enquiryService.SubmitSuggestion(c.Request.Context(), middleware.Credentials(c), req)
	if err != nil {
		h.fail(c, err, "Failed to submit suggestion")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": suggestion})
}

func (h *RestEnquiryHandler) fail(c *gin.Context, err error, msg string) {
	if errors.Is(err, services.ErrInvalidEnquiry) {
		c.JSON(http.StatusBadRequest, gin.H{"error": strings.TrimPrefix(err.Error(), services.ErrInvalidEnquiry.Error()+": ")})
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func RegisterRestEnquiryRoutes(r gin.IRoutes, handler *RestEnquiryHandler) {
	r.POST("/enquiries", handler.SubmitEnquiry)
	r.POST("/suggestions", handler.SubmitSuggestion)
}
