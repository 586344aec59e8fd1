package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/c14220110/clinic-queue/internal/common/apperr"
	"github.com/c14220110/clinic-queue/internal/events"
	"github.com/c14220110/clinic-queue/internal/medrecord"
	"github.com/c14220110/clinic-queue/internal/models"
	queueServices "github.com/c14220110/clinic-queue/internal/queue/services"
	"github.com/c14220110/clinic-queue/internal/store"
)

const (
	ReceptionWalkIn = "walk_in"
	ReceptionOnline = "online"
)

type PatientInput struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
	Address     string `json:"address"`
}

type AppointmentInput struct {
	StaffID    int64  `json:"staff_id"`
	RoomID     int64  `json:"room_id"`
	ScheduleID *int64 `json:"schedule_id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Notes      string `json:"notes"`
}

type CompleteReceptionInput struct {
	Patient               *PatientInput    `json:"patient"`
	PatientID             int64            `json:"patient_id"`
	Appointment           AppointmentInput `json:"appointment"`
	ReceptionType         string           `json:"reception_type"`
	OriginalAppointmentID int64            `json:"original_appointment_id"`
	CreatedBy             int64            `json:"-"`
}

type ReceptionResult struct {
	Patient       *models.Patient       `json:"patient"`
	MedicalRecord *models.MedicalRecord `json:"medical_record"`
	RecordCreated bool                  `json:"record_created"`
	Appointment   *models.Appointment   `json:"appointment"`
	Queue         *models.Queue         `json:"queue"`
}

type ReceptionService struct {
	Store  store.Store
	Events events.Publisher
	Loc    *time.Location
	Now    func() time.Time
}

func NewReceptionService(st store.Store, pub events.Publisher, loc *time.Location) *ReceptionService {
	return &ReceptionService{Store: st, Events: pub, Loc: loc, Now: time.Now}
}

func (in *CompleteReceptionInput) normalize() {
	in.ReceptionType = strings.ToLower(strings.TrimSpace(in.ReceptionType))
	if in.ReceptionType == "" {
		in.ReceptionType = ReceptionWalkIn
	}
	if in.Patient != nil {
		in.Patient.Name = strings.TrimSpace(in.Patient.Name)
		in.Patient.Phone = strings.TrimSpace(in.Patient.Phone)
	}
}

func (in *CompleteReceptionInput) validate() error {
	switch in.ReceptionType {
	case ReceptionWalkIn:
		if in.OriginalAppointmentID != 0 {
			return apperr.Validation("original_appointment_id is only allowed for online receptions")
		}
	case ReceptionOnline:
		if in.OriginalAppointmentID <= 0 {
			return apperr.Validation("original_appointment_id is required for online receptions")
		}
		if in.Patient != nil {
			return apperr.Validation("online receptions use the booking's patient")
		}
	default:
		return apperr.Validation("reception_type must be walk_in or online")
	}

	if in.Patient != nil && in.PatientID != 0 {
		return apperr.Validation("provide either patient or patient_id, not both")
	}
	if in.Patient == nil && in.PatientID <= 0 && in.ReceptionType == ReceptionWalkIn {
		return apperr.Validation("patient or patient_id is required")
	}
	if p := in.Patient; p != nil {
		if p.Name == "" {
			return apperr.Validation("patient name is required")
		}
		if p.Phone == "" {
			return apperr.Validation("patient phone is required")
		}
		if p.DateOfBirth != "" && !models.ValidDate(p.DateOfBirth) {
			return apperr.Validation("date_of_birth must be formatted as YYYY-MM-DD")
		}
	}

	a := in.Appointment
	if a.StaffID <= 0 {
		return apperr.Validation("appointment staff_id is required")
	}
	if a.RoomID < 0 {
		return apperr.Validation("appointment room_id must be positive")
	}
	if !models.ValidDate(a.Date) {
		return apperr.Validation("appointment date must be formatted as YYYY-MM-DD")
	}
	if !models.ValidTime(a.Time) {
		return apperr.Validation("appointment time must be formatted as HH:MM")
	}
	return nil
}

// preflight resolves the references the transaction depends on, so unknown
// ids fail before anything is written.
func (s *ReceptionService) preflight(ctx context.Context, in *CompleteReceptionInput) error {
	return s.Store.View(ctx, func(q store.Queries) error {
		staff, err := q.GetStaff(ctx, in.Appointment.StaffID)
		if err != nil {
			return apperr.Map(err, store.ErrNotFound, apperr.KindNotFound, "medical staff not found")
		}
		if !staff.Active {
			return apperr.BusinessRule("medical staff is not active")
		}
		if in.Appointment.RoomID == 0 {
			in.Appointment.RoomID = staff.RoomID
		}

		if in.ReceptionType == ReceptionOnline {
			orig, err := q.GetAppointment(ctx, in.OriginalAppointmentID)
			if err != nil {
				return apperr.Map(err, store.ErrNotFound, apperr.KindNotFound, "original appointment not found")
			}
			if in.PatientID == 0 {
				in.PatientID = orig.PatientID
			} else if in.PatientID != orig.PatientID {
				return apperr.Validation("original appointment belongs to another patient")
			}
			if orig.Status.Terminal() {
				return apperr.BusinessRule("original appointment is already " + string(orig.Status))
			}
		}

		if in.PatientID != 0 {
			if _, err := q.GetPatient(ctx, in.PatientID); err != nil {
				return apperr.Map(err, store.ErrNotFound, apperr.KindNotFound, "patient not found")
			}
			return nil
		}
		taken, err := q.PhoneTaken(ctx, in.Patient.Phone)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict("phone number is already registered")
		}
		return nil
	})
}

// CompleteReception registers the visit in one transaction: patient, medical
// record, appointment and queue ticket are all written or none is.
func (s *ReceptionService) CompleteReception(ctx context.Context, in CompleteReceptionInput) (*ReceptionResult, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.preflight(ctx, &in); err != nil {
		return nil, apperr.Internal("failed to complete reception", err)
	}

	var (
		res      *ReceptionResult
		original *models.Appointment
	)
	err := s.Store.WithTx(ctx, func(q store.Queries) error {
		now := s.Now()
		r := &ReceptionResult{}

		// Locks are taken appointment first, then patient, then queue counter,
		// the same order Issue uses.
		if in.ReceptionType == ReceptionOnline {
			orig, err := q.GetAppointmentForUpdate(ctx, in.OriginalAppointmentID)
			if err != nil {
				return apperr.Map(err, store.ErrNotFound, apperr.KindNotFound, "original appointment not found")
			}
			if orig.Status.Terminal() {
				return apperr.BusinessRule("original appointment is already " + string(orig.Status))
			}
		}

		patient, err := s.resolvePatient(ctx, q, &in)
		if err != nil {
			return err
		}
		r.Patient = patient

		r.MedicalRecord, r.RecordCreated, err = medrecord.ResolveActive(ctx, q, patient.ID, in.CreatedBy, now, s.Loc)
		if err != nil {
			return err
		}

		r.Appointment = &models.Appointment{
			PatientID:  patient.ID,
			StaffID:    in.Appointment.StaffID,
			ScheduleID: in.Appointment.ScheduleID,
			RecordID:   &r.MedicalRecord.ID,
			RoomID:     in.Appointment.RoomID,
			Date:       in.Appointment.Date,
			Time:       in.Appointment.Time,
			Status:     models.StatusWaiting,
			CreatedBy:  in.CreatedBy,
			Notes:      in.Appointment.Notes,
		}
		if err := q.CreateAppointment(ctx, r.Appointment); err != nil {
			return apperr.Map(err, store.ErrNotFound, apperr.KindNotFound, "appointment references an unknown patient or staff member")
		}

		n, err := queueServices.NextQueueNumber(ctx, q, r.Appointment.RoomID, r.Appointment.Date)
		if err != nil {
			return err
		}
		r.Queue = &models.Queue{
			PatientID:     patient.ID,
			AppointmentID: r.Appointment.ID,
			RecordID:      r.MedicalRecord.ID,
			QueueNumber:   n,
			RoomID:        r.Appointment.RoomID,
			Date:          r.Appointment.Date,
			Time:          models.ClockIn(now, s.Loc),
			Status:        models.StatusWaiting,
			CreatedBy:     in.CreatedBy,
		}
		if err := q.CreateQueue(ctx, r.Queue); err != nil {
			return err
		}

		if in.ReceptionType == ReceptionOnline {
			if err := q.UpdateAppointmentStatus(ctx, in.OriginalAppointmentID, models.StatusWaiting); err != nil {
				return apperr.Map(err, store.ErrNotFound, apperr.KindNotFound, "original appointment not found")
			}
			if _, err := q.SyncQueueStatus(ctx, in.OriginalAppointmentID, models.StatusWaiting); err != nil {
				return err
			}
			if original, err = q.GetAppointment(ctx, in.OriginalAppointmentID); err != nil {
				return err
			}
		}

		res = r
		return nil
	})
	if err != nil {
		return nil, apperr.Internal("failed to complete reception", err)
	}

	topic := events.RoomTopic(res.Queue.RoomID)
	evts := []events.Event{events.New(events.TypeAppointmentUpdated, topic, res.Appointment)}
	if original != nil {
		evts = append(evts, events.New(events.TypeAppointmentUpdated, events.RoomTopic(original.RoomID), original))
	}
	evts = append(evts,
		events.New(events.TypeQueueUpdated, topic, map[string]interface{}{
			"action":  "issued",
			"room_id": res.Queue.RoomID,
			"date":    res.Queue.Date,
			"queue":   res.Queue,
		}),
		events.Recompute(res.Queue.Date, res.Queue.RoomID),
	)
	s.Events.Publish(evts...)
	return res, nil
}

func (s *ReceptionService) resolvePatient(ctx context.Context, q store.Queries, in *CompleteReceptionInput) (*models.Patient, error) {
	if in.PatientID != 0 {
		p, err := q.GetPatient(ctx, in.PatientID)
		return p, apperr.Map(err, store.ErrNotFound, apperr.KindNotFound, "patient not found")
	}

	u := &models.User{
		Name:  in.Patient.Name,
		Phone: in.Patient.Phone,
		Email: in.Patient.Email,
		Role:  models.RolePatient,
	}
	if err := q.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	p := &models.Patient{
		UserID:      u.ID,
		Name:        in.Patient.Name,
		Phone:       in.Patient.Phone,
		DateOfBirth: in.Patient.DateOfBirth,
		Gender:      in.Patient.Gender,
		Address:     in.Patient.Address,
	}
	if err := q.CreatePatient(ctx, p); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Map(err, store.ErrDuplicate, apperr.KindConflict, "phone number is already registered")
		}
		return nil, err
	}
	return p, nil
}
