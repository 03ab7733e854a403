package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BrianStatesThat/thepepassport/internal/cache"
)

// ContextKeyDegraded is set by handlers that answered with fallback data.
// Such responses are never cached.
const ContextKeyDegraded = "degraded"

// MarkDegraded flags the response as served from fallback data.
func MarkDegraded(c *gin.Context) {
	c.Set(ContextKeyDegraded, true)
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// ResponseCache serves anonymous GET JSON responses from store for ttl.
// Only 200 responses that are not degraded get stored. X-Cache reports HIT
// or MISS. Store failures fall through to the handler.
func ResponseCache(store cache.Store, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || ttl <= 0 || c.Request.Method != http.MethodGet || !Credentials(c).IsPublic() {
			c.Next()
			return
		}
		key := c.Request.URL.RequestURI()

		cached, err := store.Get(c.Request.Context(), key)
		if err == nil {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "application/json; charset=utf-8", cached)
			c.Abort()
			return
		}
		if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("response cache read failed", "key", key, "err", err)
		}

		c.Header("X-Cache", "MISS")
		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		if rec.Status() != http.StatusOK || c.GetBool(ContextKeyDegraded) || rec.body.Len() == 0 {
			return
		}
		if !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
			return
		}
		if err := store.Set(c.Request.Context(), key, rec.body.Bytes(), ttl); err != nil {
			slog.Warn("response cache write failed", "key", key, "err", err)
		}
	}
}
