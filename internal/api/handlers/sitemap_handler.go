package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BrianStatesThat/thepepassport/internal/api/middleware"
	"github.com/BrianStatesThat/thepepassport/internal/services"
)

// SitemapHandler serves /sitemap.xml.
type SitemapHandler struct {
	sitemapService services.ISitemapService
	now            func() time.Time
}

func NewSitemapHandler(sitemapService services.ISitemapService) *SitemapHandler {
	return &SitemapHandler{sitemapService: sitemapService, now: time.Now}
}

// GetSitemap renders the sitemap as the requesting visitor. When a source
// fails the partial document is still served.
func (h *SitemapHandler) GetSitemap(c *gin.Context) {
	doc, err := h.sitemapService.Render(c.Request.Context(), middleware.Credentials(c), h.now())
	if err != nil {
		degrade(c, "sitemap", err)
	}
	if len(doc) == 0 {
		c.String(http.StatusInternalServerError, "sitemap unavailable")
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", doc)
}
