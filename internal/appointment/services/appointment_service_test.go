package services

import (
	"context"
	"testing"

	"github.com/c14220110/clinic-queue/internal/common/apperr"
	"github.com/c14220110/clinic-queue/internal/events"
	"github.com/c14220110/clinic-queue/internal/models"
	"github.com/c14220110/clinic-queue/internal/store"
	"github.com/c14220110/clinic-queue/pkg/storage/memory"
)

// countingStore records how many transactions were opened.
type countingStore struct {
	*memory.Store
	txs int
}

func (c *countingStore) WithTx(ctx context.Context, fn func(q store.Queries) error) error {
	c.txs++
	return c.Store.WithTx(ctx, fn)
}

// seed creates an appointment in room 3 with two tickets attached.
func seed(t *testing.T, st *memory.Store, status models.AppointmentStatus) models.Appointment {
	t.Helper()
	staff := st.AddStaff(models.MedicalStaff{Name: "Dr. Lan", RoomID: 3, Active: true})
	ctx := context.Background()
	var a models.Appointment
	err := st.WithTx(ctx, func(q store.Queries) error {
		u := &models.User{Name: "Minh", Role: models.RolePatient}
		if err := q.CreateUser(ctx, u); err != nil {
			return err
		}
		p := &models.Patient{UserID: u.ID, Name: "Minh", Phone: "0901"}
		if err := q.CreatePatient(ctx, p); err != nil {
			return err
		}
		rec := &models.MedicalRecord{PatientID: p.ID, RecordNumber: "MR-1-1", Status: models.RecordActive}
		if err := q.CreateMedicalRecord(ctx, rec); err != nil {
			return err
		}
		a = models.Appointment{PatientID: p.ID, StaffID: staff.ID, RecordID: &rec.ID, RoomID: 3, Date: "2025-01-10", Time: "08:00", Status: status}
		if err := q.CreateAppointment(ctx, &a); err != nil {
			return err
		}
		for n := 1; n <= 2; n++ {
			tk := &models.Queue{PatientID: p.ID, AppointmentID: a.ID, RecordID: rec.ID, QueueNumber: n, RoomID: 3, Date: a.Date, Status: status}
			if err := q.CreateQueue(ctx, tk); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return a
}

func TestSetStatus_MirrorsQueue(t *testing.T) {
	st := memory.New()
	rec := &events.Recorder{}
	svc := NewAppointmentService(st, rec, nil)
	a := seed(t, st, models.StatusWaiting)
	ctx := context.Background()

	got, err := svc.SetStatus(ctx, a.ID, string(models.StatusInProgress))
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if got.Status != models.StatusInProgress {
		t.Errorf("expected %s, got %s", models.StatusInProgress, got.Status)
	}

	st.View(ctx, func(q store.Queries) error {
		group, _ := q.ListQueueGroup(ctx, 3, "2025-01-10")
		for _, tk := range group {
			if tk.Status != models.StatusInProgress {
				t.Errorf("ticket %d not synced: %s", tk.ID, tk.Status)
			}
		}
		return nil
	})

	types := rec.Types()
	if len(types) != 3 || types[0] != events.TypeAppointmentUpdated || types[1] != events.TypeQueueUpdated || types[2] != events.TypeDashboardRecompute {
		t.Errorf("unexpected events %v", types)
	}
}

func TestSetStatus_InvalidStatusWritesNothing(t *testing.T) {
	mem := memory.New()
	st := &countingStore{Store: mem}
	rec := &events.Recorder{}
	svc := NewAppointmentService(st, rec, nil)
	a := seed(t, mem, models.StatusWaiting)

	for _, bad := range []string{"", "waiting", "Dang cho", "DONE"} {
		_, err := svc.SetStatus(context.Background(), a.ID, bad)
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("%q: expected validation error, got %v", bad, err)
		}
	}
	if st.txs != 0 {
		t.Errorf("expected no transaction, got %d", st.txs)
	}
	if len(rec.Events()) != 0 {
		t.Error("expected no events")
	}
	got, _ := svc.Get(context.Background(), a.ID)
	if got.Status != models.StatusWaiting {
		t.Errorf("status changed to %s", got.Status)
	}
}

func TestSetStatus_NotFound(t *testing.T) {
	st := &countingStore{Store: memory.New()}
	svc := NewAppointmentService(st, &events.Recorder{}, nil)

	_, err := svc.SetStatus(context.Background(), 42, string(models.StatusDone))
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if st.txs != 0 {
		t.Error("not found must be detected before the transaction")
	}
}

func TestSetStatus_PermissiveAllowsAnyOrder(t *testing.T) {
	st := memory.New()
	svc := NewAppointmentService(st, &events.Recorder{}, Permissive{})
	a := seed(t, st, models.StatusDone)

	if _, err := svc.SetStatus(context.Background(), a.ID, string(models.StatusBooked)); err != nil {
		t.Errorf("permissive policy rejected a move: %v", err)
	}
}

func TestSetStatus_StrictRejectsSkippedSteps(t *testing.T) {
	st := memory.New()
	svc := NewAppointmentService(st, &events.Recorder{}, Strict{})
	a := seed(t, st, models.StatusBooked)
	ctx := context.Background()

	if _, err := svc.SetStatus(ctx, a.ID, string(models.StatusDone)); !apperr.Is(err, apperr.KindBusinessRule) {
		t.Fatalf("expected business rule violation, got %v", err)
	}
	for _, next := range []models.AppointmentStatus{models.StatusWaiting, models.StatusInProgress, models.StatusDone} {
		if _, err := svc.SetStatus(ctx, a.ID, string(next)); err != nil {
			t.Fatalf("move to %s: %v", next, err)
		}
	}
	if _, err := svc.SetStatus(ctx, a.ID, string(models.StatusCancelled)); !apperr.Is(err, apperr.KindBusinessRule) {
		t.Errorf("done is terminal, got %v", err)
	}
}

func TestStrictPolicy(t *testing.T) {
	tests := []struct {
		from, to models.AppointmentStatus
		want     bool
	}{
		{models.StatusBooked, models.StatusWaiting, true},
		{models.StatusBooked, models.StatusCancelled, true},
		{models.StatusBooked, models.StatusInProgress, false},
		{models.StatusWaiting, models.StatusInProgress, true},
		{models.StatusInProgress, models.StatusDone, true},
		{models.StatusInProgress, models.StatusWaiting, false},
		{models.StatusCancelled, models.StatusWaiting, false},
		{models.StatusDone, models.StatusDone, true},
	}
	for _, tt := range tests {
		if got := (Strict{}).Allow(tt.from, tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestPolicyFor(t *testing.T) {
	if p, err := PolicyFor(""); err != nil || p != (Permissive{}) {
		t.Errorf("empty name should be permissive, got %v %v", p, err)
	}
	if p, err := PolicyFor("strict"); err != nil || p != (Strict{}) {
		t.Errorf("expected strict, got %v %v", p, err)
	}
	if _, err := PolicyFor("lenient"); err == nil {
		t.Error("unknown policy accepted")
	}
}

func TestListByDate(t *testing.T) {
	st := memory.New()
	svc := NewAppointmentService(st, &events.Recorder{}, nil)
	seed(t, st, models.StatusBooked)
	ctx := context.Background()

	list, err := svc.ListByDate(ctx, "2025-01-10", 3)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 appointment, got %d (%v)", len(list), err)
	}
	if list, _ := svc.ListByDate(ctx, "2025-01-10", 4); len(list) != 0 {
		t.Errorf("room filter ignored")
	}
	if _, err := svc.ListByDate(ctx, "tomorrow", 0); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

// lockedReads counts locking appointment reads issued inside transactions.
type lockedReads struct {
	store.Queries
	n *int
}

func (l lockedReads) GetAppointmentForUpdate(ctx context.Context, id int64) (*models.Appointment, error) {
	*l.n++
	return l.Queries.GetAppointmentForUpdate(ctx, id)
}

type lockedReadsStore struct {
	*memory.Store
	n int
}

func (s *lockedReadsStore) WithTx(ctx context.Context, fn func(q store.Queries) error) error {
	return s.Store.WithTx(ctx, func(q store.Queries) error {
		return fn(lockedReads{Queries: q, n: &s.n})
	})
}

func TestSetStatus_ChecksPolicyAgainstLockedRow(t *testing.T) {
	mem := memory.New()
	st := &lockedReadsStore{Store: mem}
	svc := NewAppointmentService(st, &events.Recorder{}, Strict{})
	a := seed(t, mem, models.StatusInProgress)
	ctx := context.Background()

	if _, err := svc.SetStatus(ctx, a.ID, string(models.StatusDone)); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if st.n != 1 {
		t.Errorf("expected one locking read, got %d", st.n)
	}
	// The losing side of a race sees the committed status and is rejected.
	if _, err := svc.SetStatus(ctx, a.ID, string(models.StatusCancelled)); !apperr.Is(err, apperr.KindBusinessRule) {
		t.Errorf("expected business rule violation, got %v", err)
	}
}
