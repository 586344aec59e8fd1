package services

import (
	"context"

	"github.com/c14220110/clinic-queue/internal/common/apperr"
	"github.com/c14220110/clinic-queue/internal/events"
	"github.com/c14220110/clinic-queue/internal/models"
	"github.com/c14220110/clinic-queue/internal/store"
)

type AppointmentService struct {
	Store  store.Store
	Events events.Publisher
	Policy TransitionPolicy
}

func NewAppointmentService(st store.Store, pub events.Publisher, policy TransitionPolicy) *AppointmentService {
	if policy == nil {
		policy = Permissive{}
	}
	return &AppointmentService{Store: st, Events: pub, Policy: policy}
}

// SetStatus persists the new status and mirrors it onto every queue ticket of
// the appointment.
func (s *AppointmentService) SetStatus(ctx context.Context, id int64, status string) (*models.Appointment, error) {
	next := models.AppointmentStatus(status)
	if !next.Valid() {
		return nil, apperr.Validation("invalid appointment status: " + status)
	}
	if id <= 0 {
		return nil, apperr.Validation("appointment id must be positive")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	var (
		updated *models.Appointment
		synced  int64
	)
	err := s.Store.WithTx(ctx, func(q store.Queries) error {
		a, err := q.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return apperr.Map(err, store.ErrNotFound, apperr.KindNotFound, "appointment not found")
		}
		if !s.Policy.Allow(a.Status, next) {
			return apperr.BusinessRule("cannot change appointment status from " + string(a.Status) + " to " + status)
		}
		if err := q.UpdateAppointmentStatus(ctx, id, next); err != nil {
			return err
		}
		if synced, err = q.SyncQueueStatus(ctx, id, next); err != nil {
			return err
		}
		updated, err = q.GetAppointment(ctx, id)
		return err
	})
	if err != nil {
		return nil, apperr.Internal("failed to update appointment status", err)
	}

	topic := events.RoomTopic(updated.RoomID)
	evts := []events.Event{events.New(events.TypeAppointmentUpdated, topic, updated)}
	if synced > 0 {
		evts = append(evts, events.New(events.TypeQueueUpdated, topic, map[string]interface{}{
			"action":         "status_synced",
			"room_id":        updated.RoomID,
			"appointment_id": updated.ID,
			"status":         updated.Status,
		}))
	}
	evts = append(evts, events.Recompute(updated.Date, updated.RoomID))
	s.Events.Publish(evts...)
	return updated, nil
}

func (s *AppointmentService) Get(ctx context.Context, id int64) (*models.Appointment, error) {
	var a *models.Appointment
	err := s.Store.View(ctx, func(q store.Queries) error {
		var err error
		a, err = q.GetAppointment(ctx, id)
		return apperr.Map(err, store.ErrNotFound, apperr.KindNotFound, "appointment not found")
	})
	if err != nil {
		return nil, apperr.Internal("failed to load appointment", err)
	}
	return a, nil
}

// ListByDate lists a day's appointments; roomID 0 means every room.
func (s *AppointmentService) ListByDate(ctx context.Context, date string, roomID int64) ([]models.Appointment, error) {
	if !models.ValidDate(date) {
		return nil, apperr.Validation("date must be formatted as YYYY-MM-DD")
	}
	if roomID < 0 {
		return nil, apperr.Validation("room_id must be positive")
	}
	var out []models.Appointment
	err := s.Store.View(ctx, func(q store.Queries) error {
		var err error
		out, err = q.ListAppointments(ctx, date, roomID)
		return err
	})
	if err != nil {
		return nil, apperr.Internal("failed to list appointments", err)
	}
	if out == nil {
		out = []models.Appointment{}
	}
	return out, nil
}
