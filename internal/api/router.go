package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/BrianStatesThat/thepepassport/internal/api/handlers"
	"github.com/BrianStatesThat/thepepassport/internal/api/middleware"
	"github.com/BrianStatesThat/thepepassport/internal/cache"
	"github.com/BrianStatesThat/thepepassport/internal/captcha"
	"github.com/BrianStatesThat/thepepassport/internal/config"
	"github.com/BrianStatesThat/thepepassport/internal/email"
	"github.com/BrianStatesThat/thepepassport/internal/services"
	"github.com/BrianStatesThat/thepepassport/internal/tasks"
)

// Services bundles what the public API serves.
type Services struct {
	Listings   services.IListingService
	Categories services.ICategoryService
	Blog       services.IBlogService
	Events     services.IEventService
	Enquiries  services.IEnquiryService
	Sitemap    services.ISitemapService
}

// SetupRouter configures and returns the main Gin engine. responseCache may
// be nil to disable GET caching.
func SetupRouter(cfg *config.Config, svc Services, verifier captcha.ITurnstileVerifier, responseCache cache.Store, logger *slog.Logger) *gin.Engine {
	r := gin.New()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	// Apply global middleware first (order matters)
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogMiddleware(logger))
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigin))
	r.Use(middleware.CredentialsMiddleware(cfg.JwtSecret))
	r.Use(middleware.CaptchaMiddleware(cfg, verifier))
	r.Use(rateLimiter.Limit())
	r.Use(middleware.ResponseCache(responseCache, cfg.GetCacheTTL))

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})
		handlers.RegisterRestListingRoutes(v1, handlers.NewRestListingHandler(svc.Listings))
		handlers.RegisterRestCategoryRoutes(v1, handlers.NewRestCategoryHandler(svc.Categories, svc.Listings))
		handlers.RegisterRestBlogRoutes(v1, handlers.NewRestBlogHandler(svc.Blog))
		handlers.RegisterRestEventRoutes(v1, handlers.NewRestEventHandler(svc.Events))
		handlers.RegisterRestEnquiryRoutes(v1, handlers.NewRestEnquiryHandler(svc.Enquiries))
	}
	r.GET("/sitemap.xml", handlers.NewSitemapHandler(svc.Sitemap).GetSitemap)

	return r
}

// SetupServiceRouter configures and returns the service Gin engine.
// rdb backs getTestEmail and taskClient backs publishSitemap; either may be
// nil, which disables that method.
func SetupServiceRouter(cfg *config.Config, rdb *redis.Client, taskClient tasks.IAsynqClient, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			slog.Info("received shutdown command via service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				slog.Warn("shutdown channel already signaled")
			}

		case "getTestEmail":
			if rdb == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Redis not configured"})
				return
			}
			var args []string // ["kind", "email"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 2 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [kind, email]"})
				return
			}
			getTestEmail(c, rdb, email.MockEmailKey(args[1], args[0]))

		case "publishSitemap":
			if taskClient == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Task queue not configured"})
				return
			}
			now := time.Now()
			info, err := tasks.EnqueueSitemapPublish(c.Request.Context(), taskClient, now)
			if errors.Is(err, asynq.ErrTaskIDConflict) {
				c.JSON(http.StatusOK, gin.H{"success": true, "result": tasks.SitemapPublishTaskID(now), "message": "Sitemap publish already queued"})
				return
			}
			if err != nil {
				slog.Error("service API: failed to enqueue sitemap publish", "err", err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to enqueue sitemap publish"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "result": info.ID})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}

// getTestEmail polls Redis briefly for a mock email and deletes it once
// read.
func getTestEmail(c *gin.Context, rdb *redis.Client, redisKey string) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	var emailJSON string
	found := false
	for i := 0; i < 10; i++ {
		var err error
		emailJSON, err = rdb.Get(ctx, redisKey).Result()
		if err == nil {
			found = true
			rdb.Del(ctx, redisKey)
			break
		}
		if !errors.Is(err, redis.Nil) {
			slog.Error("service API: redis get failed", "key", redisKey, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found in Redis for key %s", redisKey)})
		return
	}

	var emailData map[string]interface{}
	if err := json.Unmarshal([]byte(emailJSON), &emailData); err != nil {
		slog.Error("service API: stored email is not JSON", "key", redisKey, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": emailData})
}
