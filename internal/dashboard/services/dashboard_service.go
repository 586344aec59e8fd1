package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/c14220110/clinic-queue/internal/common/apperr"
	"github.com/c14220110/clinic-queue/internal/events"
	"github.com/c14220110/clinic-queue/internal/models"
	"github.com/c14220110/clinic-queue/internal/store"
)

type DashboardService struct {
	Store  store.Store
	Events events.Publisher
	Loc    *time.Location
	Now    func() time.Time
	Logger zerolog.Logger
}

func NewDashboardService(st store.Store, pub events.Publisher, loc *time.Location, logger zerolog.Logger) *DashboardService {
	return &DashboardService{Store: st, Events: pub, Loc: loc, Now: time.Now, Logger: logger}
}

// Stats counts a day's tickets per status. roomID 0 covers every room; an
// empty date means today.
func (s *DashboardService) Stats(ctx context.Context, date string, roomID int64) (models.DashboardStats, error) {
	if date == "" {
		date = models.DateIn(s.Now(), s.Loc)
	} else if !models.ValidDate(date) {
		return models.DashboardStats{}, apperr.Validation("date must be formatted as YYYY-MM-DD")
	}
	if roomID < 0 {
		return models.DashboardStats{}, apperr.Validation("room_id must be positive")
	}

	var counts map[models.AppointmentStatus]int
	err := s.Store.View(ctx, func(q store.Queries) error {
		var err error
		counts, err = q.CountQueuesByStatus(ctx, date, roomID)
		return err
	})
	if err != nil {
		return models.DashboardStats{}, apperr.Internal("failed to compute dashboard stats", err)
	}
	return models.StatsFromCounts(date, roomID, counts), nil
}

// OnRecompute listens for recompute requests and publishes fresh stats for the
// room and for the whole clinic.
func (s *DashboardService) OnRecompute(ctx context.Context, e events.Event) {
	req, ok := e.Data.(events.RecomputeRequest)
	if !ok {
		s.Logger.Warn().Str("id", e.ID).Msg("recompute event without a request payload")
		return
	}

	roomStats, err := s.Stats(ctx, req.Date, req.RoomID)
	if err != nil {
		s.Logger.Error().Err(err).Str("date", req.Date).Int64("room_id", req.RoomID).Msg("failed to recompute room stats")
		return
	}
	clinicStats, err := s.Stats(ctx, req.Date, 0)
	if err != nil {
		s.Logger.Error().Err(err).Str("date", req.Date).Msg("failed to recompute clinic stats")
		return
	}
	s.Events.Publish(
		events.New(events.TypeStatsUpdated, events.RoomTopic(req.RoomID), roomStats),
		events.New(events.TypeStatsUpdated, events.TopicDashboard, clinicStats),
	)
}
