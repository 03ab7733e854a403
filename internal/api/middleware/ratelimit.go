package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/BrianStatesThat/thepepassport/internal/config"
	"github.com/BrianStatesThat/thepepassport/internal/models"
)

const (
	limiterCleanupInterval = 10 * time.Minute
	limiterIdleTimeout     = 30 * time.Minute
)

// clientLimiter stores the buckets of one client on one route.
type clientLimiter struct {
	softLimiter *rate.Limiter
	hardLimiter *rate.Limiter
	lastSeen    time.Time
}

// RateLimiterMiddleware keeps a soft and a hard token bucket per client and
// route. Exhausting the hard bucket rejects with 429. Exhausting the soft
// bucket asks for a captcha with 418 unless the client is verified human.
type RateLimiterMiddleware struct {
	clients  map[string]*clientLimiter
	mu       sync.Mutex
	defaults models.RouteRateLimit
	routes   map[string]models.RouteRateLimit
}

// NewRateLimiterMiddleware creates a new RateLimiterMiddleware.
func NewRateLimiterMiddleware(cfg *config.Config) *RateLimiterMiddleware {
	rm := &RateLimiterMiddleware{
		clients: make(map[string]*clientLimiter),
		defaults: models.RouteRateLimit{
			RateLimitSoft: &models.RateLimitConfig{BucketSize: cfg.RateLimitSoftBucketSize, TokenRefillRate: cfg.RateLimitSoftRefillRate},
			RateLimitHard: &models.RateLimitConfig{BucketSize: cfg.RateLimitHardBucketSize, TokenRefillRate: cfg.RateLimitHardRefillRate},
		},
		routes: make(map[string]models.RouteRateLimit, len(cfg.RouteRateLimits)),
	}
	for _, r := range cfg.RouteRateLimits {
		rm.routes[r.Route] = r
	}
	go rm.cleanupClients()
	return rm
}

// getClientIdentifier keys clients by IP and SPA session.
func getClientIdentifier(c *gin.Context) string {
	return fmt.Sprintf("%s|%s", c.ClientIP(), c.GetHeader("X-SPA"))
}

// limitsFor returns the buckets for a route, falling back to the defaults
// per bucket.
func (rm *RateLimiterMiddleware) limitsFor(route string) (soft, hard models.RateLimitConfig) {
	soft, hard = *rm.defaults.RateLimitSoft, *rm.defaults.RateLimitHard
	if r, ok := rm.routes[route]; ok {
		if r.RateLimitSoft != nil {
			soft = *r.RateLimitSoft
		}
		if r.RateLimitHard != nil {
			hard = *r.RateLimitHard
		}
	}
	return soft, hard
}

func (rm *RateLimiterMiddleware) getClientLimiter(key string, soft, hard models.RateLimitConfig) *clientLimiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	limiter, exists := rm.clients[key]
	if !exists {
		limiter = &clientLimiter{
			softLimiter: rate.NewLimiter(rate.Limit(soft.TokenRefillRate), soft.BucketSize),
			hardLimiter: rate.NewLimiter(rate.Limit(hard.TokenRefillRate), hard.BucketSize),
		}
		rm.clients[key] = limiter
	}
	limiter.lastSeen = time.Now()
	return limiter
}

func (rm *RateLimiterMiddleware) cleanupClients() {
	for {
		time.Sleep(limiterCleanupInterval)
		rm.evictIdle(time.Now())
	}
}

func (rm *RateLimiterMiddleware) evictIdle(now time.Time) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	count := 0
	for id, client := range rm.clients {
		if now.Sub(client.lastSeen) > limiterIdleTimeout {
			delete(rm.clients, id)
			count++
		}
	}
	if count > 0 {
		slog.Debug("rate limiter cleanup", "removed", count)
	}
	return count
}

// Limit creates the Gin middleware handler.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.Request.Method + " " + c.FullPath()
		clientKey := getClientIdentifier(c)
		soft, hard := rm.limitsFor(route)
		limiter := rm.getClientLimiter(clientKey+"|"+route, soft, hard)

		if !limiter.hardLimiter.Allow() {
			slog.Warn("hard rate limit exceeded", "client", clientKey, "route", route)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		isHuman := c.GetBool(ContextKeyIsHumanVerified)
		if !isHuman && !limiter.softLimiter.Allow() {
			slog.Info("soft rate limit exceeded, captcha required", "client", clientKey, "route", route)
			c.AbortWithStatusJSON(http.StatusTeapot, gin.H{"error": "Captcha validation required"})
			return
		}

		c.Next()
	}
}
