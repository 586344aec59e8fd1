// Package store defines the persistence boundary used by the services.
// Implementations live in pkg/storage (MariaDB/MySQL and in-memory).
package store

import (
	"context"
	"errors"

	"github.com/c14220110/clinic-queue/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Queries is the set of statements the services issue. The same methods run
// either directly on the database or inside a transaction.
type Queries interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error

	GetPatient(ctx context.Context, id int64) (*models.Patient, error)
	// LockPatient holds the patient's row until the transaction ends. Callers
	// take it before deciding whether to create a medical record.
	LockPatient(ctx context.Context, id int64) error
	PhoneTaken(ctx context.Context, phone string) (bool, error)
	CreatePatient(ctx context.Context, p *models.Patient) error

	GetStaff(ctx context.Context, id int64) (*models.MedicalStaff, error)

	// ActiveMedicalRecord returns ErrNotFound when the patient has no Active
	// record. Inside a transaction it is a locking read.
	ActiveMedicalRecord(ctx context.Context, patientID int64) (*models.MedicalRecord, error)
	CreateMedicalRecord(ctx context.Context, r *models.MedicalRecord) error

	GetAppointment(ctx context.Context, id int64) (*models.Appointment, error)
	// GetAppointmentForUpdate is GetAppointment plus a row lock held until the
	// transaction ends. Status checks that lead to a write use it.
	GetAppointmentForUpdate(ctx context.Context, id int64) (*models.Appointment, error)
	// ListAppointments filters by date; roomID 0 means every room.
	ListAppointments(ctx context.Context, date string, roomID int64) ([]models.Appointment, error)
	CreateAppointment(ctx context.Context, a *models.Appointment) error
	UpdateAppointmentStatus(ctx context.Context, id int64, status models.AppointmentStatus) error
	SetAppointmentRecord(ctx context.Context, id, recordID int64) error

	// NextQueueNumber bumps the (roomID, date) counter and returns the new value.
	// Inside a transaction it holds the group's counter lock until commit.
	NextQueueNumber(ctx context.Context, roomID int64, date string) (int, error)
	// LockQueueGroup takes the same counter lock without allocating a number.
	LockQueueGroup(ctx context.Context, roomID int64, date string) error
	CreateQueue(ctx context.Context, q *models.Queue) error
	GetQueue(ctx context.Context, id int64) (*models.Queue, error)
	// QueueByAppointment returns the appointment's latest ticket. It is a
	// locking read so it sees tickets committed while the caller waited.
	QueueByAppointment(ctx context.Context, appointmentID int64) (*models.Queue, error)
	// ListQueueGroup returns the group's tickets ordered by queue number.
	ListQueueGroup(ctx context.Context, roomID int64, date string) ([]models.Queue, error)
	// RenumberQueueGroup assigns 1..n to orderedIDs and resets the group counter to n.
	RenumberQueueGroup(ctx context.Context, roomID int64, date string, orderedIDs []int64) error
	DeleteQueue(ctx context.Context, id int64) error
	// SyncQueueStatus copies status to every ticket of the appointment.
	SyncQueueStatus(ctx context.Context, appointmentID int64, status models.AppointmentStatus) (int64, error)
	CountQueuesByStatus(ctx context.Context, date string, roomID int64) (map[models.AppointmentStatus]int, error)
}

// Store runs Queries either read-only or inside an all-or-nothing transaction.
type Store interface {
	// View runs fn without a transaction. fn must not write.
	View(ctx context.Context, fn func(q Queries) error) error
	// WithTx commits when fn returns nil and rolls back otherwise. fn may be
	// re-run when the database reports a retryable conflict.
	WithTx(ctx context.Context, fn func(q Queries) error) error
	Ping(ctx context.Context) error
}
