package services

import (
	"context"
	"errors"
	"time"

	"github.com/c14220110/clinic-queue/internal/common/apperr"
	"github.com/c14220110/clinic-queue/internal/events"
	"github.com/c14220110/clinic-queue/internal/medrecord"
	"github.com/c14220110/clinic-queue/internal/models"
	"github.com/c14220110/clinic-queue/internal/store"
)

type QueueService struct {
	Store  store.Store
	Events events.Publisher
	Loc    *time.Location
	Now    func() time.Time
}

func NewQueueService(st store.Store, pub events.Publisher, loc *time.Location) *QueueService {
	return &QueueService{Store: st, Events: pub, Loc: loc, Now: time.Now}
}

type IssueInput struct {
	AppointmentID int64  `json:"appointment_id"`
	RoomID        int64  `json:"room_id"`
	Date          string `json:"date"`
	CreatedBy     int64  `json:"-"`
}

// NextQueueNumber allocates the next number of the (roomID, date) group. It
// must run inside the transaction that inserts the ticket.
func NextQueueNumber(ctx context.Context, q store.Queries, roomID int64, date string) (int, error) {
	n, err := q.NextQueueNumber(ctx, roomID, date)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("queue counter returned a non-positive number")
	}
	return n, nil
}

// Issue hands out a ticket for an existing appointment. Room and date default
// to the appointment's.
func (s *QueueService) Issue(ctx context.Context, in IssueInput) (*models.Queue, error) {
	if in.AppointmentID <= 0 {
		return nil, apperr.Validation("appointment_id is required")
	}
	if in.RoomID < 0 {
		return nil, apperr.Validation("room_id must be positive")
	}
	if in.Date != "" && !models.ValidDate(in.Date) {
		return nil, apperr.Validation("date must be formatted as YYYY-MM-DD")
	}

	err := s.Store.View(ctx, func(q store.Queries) error {
		_, err := q.GetAppointment(ctx, in.AppointmentID)
		return apperr.Map(err, store.ErrNotFound, apperr.KindNotFound, "appointment not found")
	})
	if err != nil {
		return nil, apperr.Internal("failed to issue queue ticket", err)
	}

	var (
		ticket       *models.Queue
		appointment  *models.Appointment
		statusChange bool
	)
	now := s.Now()
	err = s.Store.WithTx(ctx, func(q store.Queries) error {
		statusChange = false
		// The appointment lock serialises issues for the same appointment, so
		// the ticket check below sees any ticket committed before it.
		a, err := q.GetAppointmentForUpdate(ctx, in.AppointmentID)
		if err != nil {
			return apperr.Map(err, store.ErrNotFound, apperr.KindNotFound, "appointment not found")
		}
		if a.Status.Terminal() {
			return apperr.BusinessRule("appointment is already " + string(a.Status))
		}
		if _, err := q.QueueByAppointment(ctx, a.ID); err == nil {
			return apperr.Conflict("appointment already has a queue ticket")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		var recordID int64
		if a.RecordID != nil {
			recordID = *a.RecordID
		} else {
			rec, _, err := medrecord.ResolveActive(ctx, q, a.PatientID, in.CreatedBy, now, s.Loc)
			if err != nil {
				return err
			}
			if err := q.SetAppointmentRecord(ctx, a.ID, rec.ID); err != nil {
				return err
			}
			recordID = rec.ID
			a.RecordID = &rec.ID
		}

		if a.Status == models.StatusBooked {
			if err := q.UpdateAppointmentStatus(ctx, a.ID, models.StatusWaiting); err != nil {
				return err
			}
			a.Status = models.StatusWaiting
			statusChange = true
		}

		roomID, date := in.RoomID, in.Date
		if roomID == 0 {
			roomID = a.RoomID
		}
		if date == "" {
			date = a.Date
		}
		n, err := NextQueueNumber(ctx, q, roomID, date)
		if err != nil {
			return err
		}
		t := &models.Queue{
			PatientID:     a.PatientID,
			AppointmentID: a.ID,
			RecordID:      recordID,
			QueueNumber:   n,
			RoomID:        roomID,
			Date:          date,
			Time:          models.ClockIn(now, s.Loc),
			Status:        a.Status,
			CreatedBy:     in.CreatedBy,
		}
		if err := q.CreateQueue(ctx, t); err != nil {
			return err
		}
		ticket, appointment = t, a
		return nil
	})
	if err != nil {
		return nil, apperr.Internal("failed to issue queue ticket", err)
	}

	evts := []events.Event{queueEvent("issued", ticket.RoomID, ticket.Date, ticket)}
	if statusChange {
		evts = append(evts, events.New(events.TypeAppointmentUpdated, events.RoomTopic(appointment.RoomID), appointment))
	}
	evts = append(evts, events.Recompute(ticket.Date, ticket.RoomID))
	s.Events.Publish(evts...)
	return ticket, nil
}

// Prioritize moves the ticket to number 1 of its group; the others keep their
// relative order and are renumbered 2..n.
func (s *QueueService) Prioritize(ctx context.Context, queueID int64) ([]models.Queue, error) {
	if queueID <= 0 {
		return nil, apperr.Validation("queue id must be positive")
	}
	if _, err := s.Get(ctx, queueID); err != nil {
		return nil, err
	}

	var group []models.Queue
	var target *models.Queue
	err := s.Store.WithTx(ctx, func(q store.Queries) error {
		t, err := q.GetQueue(ctx, queueID)
		if err != nil {
			return apperr.Map(err, store.ErrNotFound, apperr.KindNotFound, "queue ticket not found")
		}
		if err := q.LockQueueGroup(ctx, t.RoomID, t.Date); err != nil {
			return err
		}
		current, err := q.ListQueueGroup(ctx, t.RoomID, t.Date)
		if err != nil {
			return err
		}
		if len(current) == 0 || current[0].ID == t.ID {
			return apperr.BusinessRule("queue ticket is already first")
		}

		ids := make([]int64, 0, len(current))
		ids = append(ids, t.ID)
		for _, other := range current {
			if other.ID != t.ID {
				ids = append(ids, other.ID)
			}
		}
		if err := q.RenumberQueueGroup(ctx, t.RoomID, t.Date, ids); err != nil {
			return err
		}
		group, err = q.ListQueueGroup(ctx, t.RoomID, t.Date)
		target = t
		return err
	})
	if err != nil {
		return nil, apperr.Internal("failed to prioritize queue ticket", err)
	}

	s.Events.Publish(queueEvent("prioritized", target.RoomID, target.Date, group))
	return group, nil
}

// Delete removes a ticket. Remaining numbers are left as they are.
func (s *QueueService) Delete(ctx context.Context, queueID int64) error {
	if queueID <= 0 {
		return apperr.Validation("queue id must be positive")
	}
	t, err := s.Get(ctx, queueID)
	if err != nil {
		return err
	}

	err = s.Store.WithTx(ctx, func(q store.Queries) error {
		return apperr.Map(q.DeleteQueue(ctx, queueID), store.ErrNotFound, apperr.KindNotFound, "queue ticket not found")
	})
	if err != nil {
		return apperr.Internal("failed to delete queue ticket", err)
	}

	s.Events.Publish(
		queueEvent("deleted", t.RoomID, t.Date, t),
		events.Recompute(t.Date, t.RoomID),
	)
	return nil
}

func (s *QueueService) Get(ctx context.Context, queueID int64) (*models.Queue, error) {
	var t *models.Queue
	err := s.Store.View(ctx, func(q store.Queries) error {
		var err error
		t, err = q.GetQueue(ctx, queueID)
		return apperr.Map(err, store.ErrNotFound, apperr.KindNotFound, "queue ticket not found")
	})
	if err != nil {
		return nil, apperr.Internal("failed to load queue ticket", err)
	}
	return t, nil
}

// ListGroup returns one room's tickets for a day ordered by number. An empty
// date means today.
func (s *QueueService) ListGroup(ctx context.Context, roomID int64, date string) ([]models.Queue, error) {
	date, err := s.group(roomID, date)
	if err != nil {
		return nil, err
	}
	var out []models.Queue
	err = s.Store.View(ctx, func(q store.Queries) error {
		out, err = q.ListQueueGroup(ctx, roomID, date)
		return err
	})
	if err != nil {
		return nil, apperr.Internal("failed to list queue", err)
	}
	if out == nil {
		out = []models.Queue{}
	}
	return out, nil
}

// CallNext moves the lowest-numbered waiting ticket of the room into
// examination. Its appointment follows.
func (s *QueueService) CallNext(ctx context.Context, roomID int64, date string) (*models.Queue, error) {
	date, err := s.group(roomID, date)
	if err != nil {
		return nil, err
	}

	var (
		called      *models.Queue
		appointment *models.Appointment
	)
	err = s.Store.WithTx(ctx, func(q store.Queries) error {
		called = nil
		if err := q.LockQueueGroup(ctx, roomID, date); err != nil {
			return err
		}
		group, err := q.ListQueueGroup(ctx, roomID, date)
		if err != nil {
			return err
		}
		for i := range group {
			if group[i].Status == models.StatusWaiting {
				called = &group[i]
				break
			}
		}
		if called == nil {
			return apperr.NotFound("no waiting patient in this room")
		}

		if err := q.UpdateAppointmentStatus(ctx, called.AppointmentID, models.StatusInProgress); err != nil {
			return err
		}
		if _, err := q.SyncQueueStatus(ctx, called.AppointmentID, models.StatusInProgress); err != nil {
			return err
		}
		called.Status = models.StatusInProgress
		appointment, err = q.GetAppointment(ctx, called.AppointmentID)
		return err
	})
	if err != nil {
		return nil, apperr.Internal("failed to call next patient", err)
	}

	s.Events.Publish(
		queueEvent("called", roomID, date, called),
		events.New(events.TypeAppointmentUpdated, events.RoomTopic(appointment.RoomID), appointment),
		events.Recompute(date, roomID),
	)
	return called, nil
}

func (s *QueueService) group(roomID int64, date string) (string, error) {
	if roomID <= 0 {
		return "", apperr.Validation("room_id is required")
	}
	if date == "" {
		return models.DateIn(s.Now(), s.Loc), nil
	}
	if !models.ValidDate(date) {
		return "", apperr.Validation("date must be formatted as YYYY-MM-DD")
	}
	return date, nil
}

func queueEvent(action string, roomID int64, date string, payload interface{}) events.Event {
	return events.New(events.TypeQueueUpdated, events.RoomTopic(roomID), map[string]interface{}{
		"action":  action,
		"room_id": roomID,
		"date":    date,
		"queue":   payload,
	})
}
