package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"

	appointmentServices "github.com/c14220110/clinic-queue/internal/appointment/services"
	"github.com/c14220110/clinic-queue/internal/common/apperr"
	"github.com/c14220110/clinic-queue/internal/events"
	"github.com/c14220110/clinic-queue/internal/medrecord"
	"github.com/c14220110/clinic-queue/internal/models"
	queueServices "github.com/c14220110/clinic-queue/internal/queue/services"
	"github.com/c14220110/clinic-queue/internal/store"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"deadlock", &mysql.MySQLError{Number: errDeadlock}, true},
		{"lock wait", fmt.Errorf("wrapped: %w", &mysql.MySQLError{Number: errLockWaitTimeout}), true},
		{"queue number collision", &mysql.MySQLError{Number: errDuplicateEntry, Message: "Duplicate entry '3-2025-01-10-1' for key 'uq_queue_number'"}, true},
		{"record number collision", &mysql.MySQLError{Number: errDuplicateEntry, Message: "Duplicate entry 'MR-1736467200-4' for key 'uq_records_number'"}, true},
		{"duplicate phone", &mysql.MySQLError{Number: errDuplicateEntry, Message: "Duplicate entry '0901' for key 'uq_patients_phone'"}, false},
		{"plain error", errors.New("boom"), false},
		{"no rows", sql.ErrNoRows, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestTranslate(t *testing.T) {
	if translate(nil) != nil {
		t.Fatal("nil must stay nil")
	}
	if !errors.Is(translate(sql.ErrNoRows), store.ErrNotFound) {
		t.Error("sql.ErrNoRows should map to ErrNotFound")
	}

	dup := &mysql.MySQLError{Number: errDuplicateEntry, Message: "dup"}
	err := translate(dup)
	if !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != errDuplicateEntry {
		t.Error("driver error should remain in the chain")
	}

	if !errors.Is(translate(&mysql.MySQLError{Number: errNoReferencedRow}), store.ErrNotFound) {
		t.Error("foreign key violation should map to ErrNotFound")
	}

	other := errors.New("other")
	if translate(other) != other {
		t.Error("unknown errors pass through unchanged")
	}
}

// The tests below need a disposable database, e.g.
// MYSQL_TEST_DSN="root:secret@tcp(127.0.0.1:3306)/clinic_test?parseTime=true&multiStatements=true"
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MYSQL_TEST_DSN not set")
	}
	ctx := context.Background()
	db, err := open(ctx, dsn, 10)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	for _, table := range []string{"Queues", "Queue_Counters", "Appointments", "Medical_Records", "Patients", "Medical_Staff", "Users"} {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	return db
}

func TestIntegration_QueueNumbering(t *testing.T) {
	db := testDB(t)
	s := NewStore(db)
	ctx := context.Background()

	var a models.Appointment
	var rec models.MedicalRecord
	err := s.WithTx(ctx, func(q store.Queries) error {
		u := &models.User{Name: "Minh", Role: models.RolePatient}
		if err := q.CreateUser(ctx, u); err != nil {
			return err
		}
		p := &models.Patient{UserID: u.ID, Name: "Minh", Phone: "0901"}
		if err := q.CreatePatient(ctx, p); err != nil {
			return err
		}
		res, err := db.ExecContext(ctx, "INSERT INTO Medical_Staff (name, id_room) VALUES ('Dr. Lan', 3)")
		if err != nil {
			return err
		}
		staffID, _ := res.LastInsertId()
		rec = models.MedicalRecord{PatientID: p.ID, RecordNumber: models.RecordNumber(time.Now(), p.ID), IssuedDate: "2025-01-10", Status: models.RecordActive, CreatedBy: u.ID}
		if err := q.CreateMedicalRecord(ctx, &rec); err != nil {
			return err
		}
		a = models.Appointment{PatientID: p.ID, StaffID: staffID, RecordID: &rec.ID, RoomID: 3, Date: "2025-01-10", Time: "08:30", Status: models.StatusWaiting, CreatedBy: u.ID}
		return q.CreateAppointment(ctx, &a)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.WithTx(ctx, func(q store.Queries) error {
				n, err := q.NextQueueNumber(ctx, 3, "2025-01-10")
				if err != nil {
					return err
				}
				return q.CreateQueue(ctx, &models.Queue{
					PatientID: a.PatientID, AppointmentID: a.ID, RecordID: rec.ID, QueueNumber: n,
					RoomID: 3, Date: "2025-01-10", Time: "08:30", Status: models.StatusWaiting, CreatedBy: 1,
				})
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("issue ticket: %v", err)
		}
	}

	var group []models.Queue
	if err := s.View(ctx, func(q store.Queries) error {
		var err error
		group, err = q.ListQueueGroup(ctx, 3, "2025-01-10")
		return err
	}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(group) != workers {
		t.Fatalf("expected %d tickets, got %d", workers, len(group))
	}
	for i, tk := range group {
		if tk.QueueNumber != i+1 {
			t.Fatalf("expected contiguous numbers, got %d at position %d", tk.QueueNumber, i)
		}
	}

	// Move the last ticket to the front.
	ids := []int64{group[len(group)-1].ID}
	for _, tk := range group[:len(group)-1] {
		ids = append(ids, tk.ID)
	}
	if err := s.WithTx(ctx, func(q store.Queries) error {
		if err := q.LockQueueGroup(ctx, 3, "2025-01-10"); err != nil {
			return err
		}
		return q.RenumberQueueGroup(ctx, 3, "2025-01-10", ids)
	}); err != nil {
		t.Fatalf("renumber: %v", err)
	}
	var first *models.Queue
	var next int
	err = s.WithTx(ctx, func(q store.Queries) error {
		var err error
		if first, err = q.GetQueue(ctx, ids[0]); err != nil {
			return err
		}
		next, err = q.NextQueueNumber(ctx, 3, "2025-01-10")
		return errors.New("rollback")
	})
	if err == nil || err.Error() != "rollback" {
		t.Fatalf("unexpected error %v", err)
	}
	if first.QueueNumber != 1 {
		t.Errorf("expected prioritised ticket at 1, got %d", first.QueueNumber)
	}
	if next != workers+1 {
		t.Errorf("expected next number %d, got %d", workers+1, next)
	}
}

// seedAppointment inserts a patient without a medical record and one
// appointment for them in room 3.
func seedAppointment(t *testing.T, db *sql.DB, s *Store, status models.AppointmentStatus) models.Appointment {
	t.Helper()
	ctx := context.Background()
	var a models.Appointment
	err := s.WithTx(ctx, func(q store.Queries) error {
		u := &models.User{Name: "Hoa", Role: models.RolePatient}
		if err := q.CreateUser(ctx, u); err != nil {
			return err
		}
		p := &models.Patient{UserID: u.ID, Name: "Hoa", Phone: fmt.Sprintf("09%d", time.Now().UnixNano()%1e8)}
		if err := q.CreatePatient(ctx, p); err != nil {
			return err
		}
		res, err := db.ExecContext(ctx, "INSERT INTO Medical_Staff (name, id_room) VALUES ('Dr. Lan', 3)")
		if err != nil {
			return err
		}
		staffID, _ := res.LastInsertId()
		a = models.Appointment{PatientID: p.ID, StaffID: staffID, RoomID: 3, Date: "2025-01-10", Time: "08:30", Status: status, CreatedBy: u.ID}
		return q.CreateAppointment(ctx, &a)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return a
}

func TestIntegration_ConcurrentVisitsShareOneActiveRecord(t *testing.T) {
	db := testDB(t)
	s := NewStore(db)
	a := seedAppointment(t, db, s, models.StatusBooked)
	ctx := context.Background()
	base := time.Unix(1736467200, 0)

	const workers = 6
	ids := make(chan int64, workers)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.WithTx(ctx, func(q store.Queries) error {
				rec, _, err := medrecord.ResolveActive(ctx, q, a.PatientID, 1, base.Add(time.Duration(i)*time.Second), time.UTC)
				if err != nil {
					return err
				}
				ids <- rec.ID
				return nil
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(ids)
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}

	var active int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM Medical_Records WHERE id_patient = ? AND status = ?",
		a.PatientID, models.RecordActive).Scan(&active); err != nil {
		t.Fatal(err)
	}
	if active != 1 {
		t.Fatalf("expected one Active record, got %d", active)
	}
	var first int64
	for id := range ids {
		if first == 0 {
			first = id
		}
		if id != first {
			t.Errorf("visits resolved different records: %d and %d", first, id)
		}
	}
}

func TestIntegration_ConcurrentIssueSameAppointment(t *testing.T) {
	db := testDB(t)
	s := NewStore(db)
	a := seedAppointment(t, db, s, models.StatusBooked)
	svc := queueServices.NewQueueService(s, &events.Recorder{}, time.UTC)
	ctx := context.Background()

	const workers = 6
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Issue(ctx, queueServices.IssueInput{AppointmentID: a.ID, CreatedBy: 1})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var issued, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			issued++
		case apperr.Is(err, apperr.KindConflict):
			conflicts++
		default:
			t.Errorf("unexpected error %v", err)
		}
	}
	if issued != 1 || conflicts != workers-1 {
		t.Errorf("expected 1 ticket and %d conflicts, got %d and %d", workers-1, issued, conflicts)
	}
	var tickets int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM Queues WHERE id_appointment = ?", a.ID).Scan(&tickets); err != nil {
		t.Fatal(err)
	}
	if tickets != 1 {
		t.Errorf("expected 1 ticket row, got %d", tickets)
	}
}

func TestIntegration_StrictTransitionsSerialise(t *testing.T) {
	db := testDB(t)
	s := NewStore(db)
	a := seedAppointment(t, db, s, models.StatusInProgress)
	svc := appointmentServices.NewAppointmentService(s, &events.Recorder{}, appointmentServices.Strict{})
	ctx := context.Background()

	// Done and Cancelled are both reachable from InProgress but not from each other.
	targets := []models.AppointmentStatus{models.StatusDone, models.StatusCancelled}
	errs := make(chan error, len(targets))
	var wg sync.WaitGroup
	for _, status := range targets {
		wg.Add(1)
		go func(status models.AppointmentStatus) {
			defer wg.Done()
			_, err := svc.SetStatus(ctx, a.ID, string(status))
			errs <- err
		}(status)
	}
	wg.Wait()
	close(errs)

	var ok, rejected int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.Is(err, apperr.KindBusinessRule):
			rejected++
		default:
			t.Errorf("unexpected error %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Errorf("expected one transition to win, got %d accepted and %d rejected", ok, rejected)
	}
}
