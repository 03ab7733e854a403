package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BrianStatesThat/thepepassport/internal/api/middleware"
	"github.com/BrianStatesThat/thepepassport/internal/models"
	"github.com/BrianStatesThat/thepepassport/internal/services"
)

// RestEventHandler serves the events calendar.
type RestEventHandler struct {
	eventService services.IEventService
	now          func() time.Time
}

func NewRestEventHandler(eventService services.IEventService) *RestEventHandler {
	return &RestEventHandler{eventService: eventService, now: time.Now}
}

// GetEvents handles GET /v1/events?limit&upcoming. upcoming defaults to
// true; upcoming=false returns the whole calendar.
func (h *RestEventHandler) GetEvents(c *gin.Context) {
	upcoming, err := strconv.ParseBool(c.DefaultQuery("upcoming", "true"))
	if err != nil {
		upcoming = true
	}
	limit := queryLimit(c, "limit", 0)

	var events []models.Event
	if upcoming {
		events, err = h.eventService.Upcoming(c.Request.Context(), middleware.Credentials(c), limit, h.now())
	} else {
		events, err = h.eventService.Events(c.Request.Context(), middleware.Credentials(c))
		if limit > 0 && len(events) > limit {
			events = events[:limit]
		}
	}
	respondList(c, "events", events, err)
}

func RegisterRestEventRoutes(r gin.IRoutes, handler *RestEventHandler) {
	r.GET("/events", handler.GetEvents)
}
