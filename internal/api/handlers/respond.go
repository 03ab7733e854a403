package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/BrianStatesThat/thepepassport/internal/api/middleware"
)

const maxLimit = 200

// queryLimit parses a positive limit query param, capped at maxLimit.
// Missing or invalid values yield def.
func queryLimit(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v <= 0 {
		return def
	}
	if v > maxLimit {
		return maxLimit
	}
	return v
}

// respondList writes a list response. A read error still answers 200 with
// whatever data the service returned, flagged as degraded.
func respondList[T any](c *gin.Context, op string, data []T, err error) {
	if data == nil {
		data = []T{}
	}
	if err != nil {
		degrade(c, op, err)
		c.JSON(http.StatusOK, gin.H{"data": data, "degraded": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func degrade(c *gin.Context, op string, err error) {
	_ = c.Error(err)
	middleware.MarkDegraded(c)
	slog.Warn("serving degraded response", "op", op, "path", c.Request.URL.Path, "err", err)
}
