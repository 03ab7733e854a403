package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BrianStatesThat/thepepassport/internal/api/middleware"
	"github.com/BrianStatesThat/thepepassport/internal/models"
	"github.com/BrianStatesThat/thepepassport/internal/services"
)

// RestBlogHandler serves blog posts.
type RestBlogHandler struct {
	blogService services.IBlogService
}

func NewRestBlogHandler(blogService services.IBlogService) *RestBlogHandler {
	return &RestBlogHandler{blogService: blogService}
}

// GetPosts handles GET /v1/blog?limit
func (h *RestBlogHandler) GetPosts(c *gin.Context) {
	limit := queryLimit(c, "limit", services.DefaultPostLimit)
	posts, err := h.blogService.Posts(c.Request.Context(), middleware.Credentials(c), limit)
	respondList(c, "blog.posts", posts, err)
}

// GetPostBySlug handles GET /v1/blog/:slug
func (h *RestBlogHandler) GetPostBySlug(c *gin.Context) {
	post, err := h.blogService.PostBySlug(c.Request.Context(), middleware.Credentials(c), c.Param("slug"))
	if err != nil {
		if errors.Is(err, services.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
			return
		}
		degrade(c, "blog.slug", err)
		c.JSON(http.StatusOK, gin.H{"data": nil, "degraded": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": post})
}

// GetRelatedPosts handles GET /v1/blog/:slug/related?limit. The slug is
// resolved first so the post itself can be excluded.
func (h *RestBlogHandler) GetRelatedPosts(c *gin.Context) {
	ctx := c.Request.Context()
	creds := middleware.Credentials(c)
	limit := queryLimit(c, "limit", services.DefaultRelatedLimit)

	post, err := h.blogService.PostBySlug(ctx, creds, c.Param("slug"))
	if err != nil {
		if errors.Is(err, services.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
			return
		}
		respondList(c, "blog.related", []models.BlogPost{}, err)
		return
	}
	related, err := h.blogService.RelatedPosts(ctx, creds, post.ID, limit)
	respondList(c, "blog.related", related, err)
}

func RegisterRestBlogRoutes(r gin.IRoutes, handler *RestBlogHandler) {
	r.GET("/blog", handler.GetPosts)
	r.GET("/blog/:slug", handler.GetPostBySlug)
	r.GET("/blog/:slug/related", handler.GetRelatedPosts)
}
