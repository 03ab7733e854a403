package services

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BrianStatesThat/thepepassport/internal/db"
	"github.com/BrianStatesThat/thepepassport/internal/models"
)

const eventsTable = "events"

// SAST is the city's local time. "Today" for upcoming events starts at
// local midnight.
var SAST = time.FixedZone("SAST", 2*60*60)

//go:embed demo/events.yaml
var demoEventsYAML []byte

// IEventService reads events, falling back to the bundled programme when
// the events table is missing or empty.
type IEventService interface {
	Events(ctx context.Context, creds db.Credentials) ([]models.Event, error)
	Upcoming(ctx context.Context, creds db.Credentials, limit int, now time.Time) ([]models.Event, error)
}

type eventService struct {
	store db.RowStore
	demo  []models.Event
	log   *slog.Logger
}

func NewEventService(store db.RowStore, logger *slog.Logger) (IEventService, error) {
	demo, err := DemoEvents()
	if err != nil {
		return nil, err
	}
	return &eventService{store: store, demo: demo, log: logger}, nil
}

// DemoEvents parses the bundled events.
func DemoEvents() ([]models.Event, error) {
	var doc struct {
		Events []models.Event `yaml:"events"`
	}
	if err := yaml.Unmarshal(demoEventsYAML, &doc); err != nil {
		return nil, fmt.Errorf("parsing demo events: %w", err)
	}
	return doc.Events, nil
}

func (s *eventService) Events(ctx context.Context, creds db.Credentials) ([]models.Event, error) {
	rows, err := s.store.Select(ctx, creds, db.Query{
		Table: eventsTable,
		Order: []db.Order{{Column: "starts_at"}, {Column: "id"}},
	})
	if errors.Is(err, db.ErrUnknownTable) || (err == nil && len(rows) == 0) {
		return s.demoCopy(), nil
	}
	if err != nil {
		s.log.Warn("event read failed", "err", err)
		return s.demoCopy(), fmt.Errorf("selecting %s: %w", eventsTable, err)
	}
	events := make([]models.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, normalizeEvent(row))
	}
	return events, nil
}

func (s *eventService) Upcoming(ctx context.Context, creds db.Credentials, limit int, now time.Time) ([]models.Event, error) {
	events, err := s.Events(ctx, creds)
	return UpcomingEvents(events, limit, now), err
}

func (s *eventService) demoCopy() []models.Event {
	out := make([]models.Event, len(s.demo))
	copy(out, s.demo)
	return out
}

// UpcomingEvents keeps events starting at or after local midnight of now,
// soonest first. Events with unparseable start times are dropped. limit <= 0
// keeps all of them.
func UpcomingEvents(events []models.Event, limit int, now time.Time) []models.Event {
	local := now.In(SAST)
	startOfToday := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, SAST)

	type dated struct {
		event  models.Event
		starts time.Time
	}
	upcoming := make([]dated, 0, len(events))
	for _, e := range events {
		starts, err := time.Parse(time.RFC3339, e.StartsAt)
		if err != nil || starts.Before(startOfToday) {
			continue
		}
		upcoming = append(upcoming, dated{event: e, starts: starts})
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].starts.Before(upcoming[j].starts)
	})
	if limit > 0 && len(upcoming) > limit {
		upcoming = upcoming[:limit]
	}

	out := make([]models.Event, len(upcoming))
	for i, d := range upcoming {
		out[i] = d.event
	}
	return out
}

func normalizeEvent(row db.Row) models.Event {
	return models.Event{
		ID:            idString(row["id"]),
		Slug:          textOr(row["slug"], ""),
		Title:         textOr(firstText(row, "title", "name"), untitled),
		Description:   textOr(row["description"], ""),
		StartsAt:      timestampOr(row["starts_at"], ""),
		EndsAt:        timestampOr(row["ends_at"], ""),
		Venue:         textOr(row["venue"], ""),
		City:          textOr(row["city"], ""),
		Category:      textOr(row["category"], ""),
		PriceLabel:    textOr(row["price_label"], ""),
		Featured:      asBool(row["featured"]),
		TicketURL:     textOr(row["ticket_url"], ""),
		FeaturedImage: firstText(row, "featured_image", "image"),
	}
}
