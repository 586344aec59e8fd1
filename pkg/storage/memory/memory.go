// Package memory is an in-process implementation of store.Store. Transactions
// run on a copy of the state under one mutex and are swapped in on commit, so
// every transaction is serialisable. Used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/c14220110/clinic-queue/internal/models"
	"github.com/c14220110/clinic-queue/internal/store"
)

type groupKey struct {
	roomID int64
	date   string
}

type state struct {
	seq          map[string]int64
	users        map[int64]models.User
	patients     map[int64]models.Patient
	staff        map[int64]models.MedicalStaff
	records      map[int64]models.MedicalRecord
	appointments map[int64]models.Appointment
	queues       map[int64]models.Queue
	counters     map[groupKey]int
}

func newState() *state {
	return &state{
		seq:          make(map[string]int64),
		users:        make(map[int64]models.User),
		patients:     make(map[int64]models.Patient),
		staff:        make(map[int64]models.MedicalStaff),
		records:      make(map[int64]models.MedicalRecord),
		appointments: make(map[int64]models.Appointment),
		queues:       make(map[int64]models.Queue),
		counters:     make(map[groupKey]int),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.seq {
		c.seq[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.patients {
		c.patients[k] = v
	}
	for k, v := range s.staff {
		c.staff[k] = v
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	for k, v := range s.queues {
		c.queues[k] = v
	}
	for k, v := range s.counters {
		c.counters[k] = v
	}
	return c
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

var _ store.Store = (*Store)(nil)

type Store struct {
	mu  sync.Mutex
	st  *state
	Now func() time.Time
}

func New() *Store {
	return &Store{st: newState(), Now: time.Now}
}

func (s *Store) View(ctx context.Context, fn func(q store.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&queries{st: s.st, now: s.Now})
}

func (s *Store) WithTx(ctx context.Context, fn func(q store.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&queries{st: work, now: s.Now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// AddStaff seeds a staff member. Staff management is outside this service.
func (s *Store) AddStaff(m models.MedicalStaff) models.MedicalStaff {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == 0 {
		m.ID = s.st.next("staff")
	} else if m.ID > s.st.seq["staff"] {
		s.st.seq["staff"] = m.ID
	}
	s.st.staff[m.ID] = m
	return m
}

// Counts reports row counts per table, for assertions about rollbacks.
func (s *Store) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int{
		"users":           len(s.st.users),
		"patients":        len(s.st.patients),
		"medical_records": len(s.st.records),
		"appointments":    len(s.st.appointments),
		"queues":          len(s.st.queues),
	}
}

type queries struct {
	st  *state
	now func() time.Time
}

func (q *queries) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range q.st.users {
		if u.Username != "" && u.Username == username {
			out := u
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (q *queries) CreateUser(_ context.Context, u *models.User) error {
	if u.Username != "" {
		for _, existing := range q.st.users {
			if existing.Username == u.Username {
				return fmt.Errorf("%w: username %s", store.ErrDuplicate, u.Username)
			}
		}
	}
	u.ID = q.st.next("users")
	u.CreatedAt = q.now()
	q.st.users[u.ID] = *u
	return nil
}

func (q *queries) GetPatient(_ context.Context, id int64) (*models.Patient, error) {
	p, ok := q.st.patients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (q *queries) LockPatient(_ context.Context, id int64) error {
	if _, ok := q.st.patients[id]; !ok {
		return store.ErrNotFound
	}
	return nil
}

func (q *queries) PhoneTaken(_ context.Context, phone string) (bool, error) {
	for _, p := range q.st.patients {
		if p.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (q *queries) CreatePatient(ctx context.Context, p *models.Patient) error {
	if taken, _ := q.PhoneTaken(ctx, p.Phone); taken {
		return fmt.Errorf("%w: phone %s", store.ErrDuplicate, p.Phone)
	}
	if _, ok := q.st.users[p.UserID]; !ok {
		return fmt.Errorf("patient user %d: %w", p.UserID, store.ErrNotFound)
	}
	p.ID = q.st.next("patients")
	p.CreatedAt = q.now()
	q.st.patients[p.ID] = *p
	return nil
}

func (q *queries) GetStaff(_ context.Context, id int64) (*models.MedicalStaff, error) {
	m, ok := q.st.staff[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (q *queries) ActiveMedicalRecord(_ context.Context, patientID int64) (*models.MedicalRecord, error) {
	var found *models.MedicalRecord
	for _, r := range q.st.records {
		if r.PatientID == patientID && r.Status == models.RecordActive {
			if found == nil || r.ID > found.ID {
				rec := r
				found = &rec
			}
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (q *queries) CreateMedicalRecord(_ context.Context, r *models.MedicalRecord) error {
	for _, existing := range q.st.records {
		if existing.RecordNumber == r.RecordNumber {
			return fmt.Errorf("%w: record number %s", store.ErrDuplicate, r.RecordNumber)
		}
	}
	if _, ok := q.st.patients[r.PatientID]; !ok {
		return fmt.Errorf("record patient %d: %w", r.PatientID, store.ErrNotFound)
	}
	r.ID = q.st.next("records")
	q.st.records[r.ID] = *r
	return nil
}

func (q *queries) GetAppointment(_ context.Context, id int64) (*models.Appointment, error) {
	a, ok := q.st.appointments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (q *queries) GetAppointmentForUpdate(ctx context.Context, id int64) (*models.Appointment, error) {
	return q.GetAppointment(ctx, id)
}

func (q *queries) ListAppointments(_ context.Context, date string, roomID int64) ([]models.Appointment, error) {
	var out []models.Appointment
	for _, a := range q.st.appointments {
		if a.Date == date && (roomID == 0 || a.RoomID == roomID) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (q *queries) CreateAppointment(_ context.Context, a *models.Appointment) error {
	if _, ok := q.st.patients[a.PatientID]; !ok {
		return fmt.Errorf("appointment patient %d: %w", a.PatientID, store.ErrNotFound)
	}
	if _, ok := q.st.staff[a.StaffID]; !ok {
		return fmt.Errorf("appointment staff %d: %w", a.StaffID, store.ErrNotFound)
	}
	now := q.now()
	a.ID = q.st.next("appointments")
	a.CreatedAt = now
	a.UpdatedAt = now
	q.st.appointments[a.ID] = *a
	return nil
}

func (q *queries) UpdateAppointmentStatus(_ context.Context, id int64, status models.AppointmentStatus) error {
	a, ok := q.st.appointments[id]
	if !ok {
		return store.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = q.now()
	q.st.appointments[id] = a
	return nil
}

func (q *queries) SetAppointmentRecord(_ context.Context, id, recordID int64) error {
	a, ok := q.st.appointments[id]
	if !ok {
		return store.ErrNotFound
	}
	a.RecordID = &recordID
	a.UpdatedAt = q.now()
	q.st.appointments[id] = a
	return nil
}

func (q *queries) NextQueueNumber(_ context.Context, roomID int64, date string) (int, error) {
	k := groupKey{roomID, date}
	q.st.counters[k]++
	return q.st.counters[k], nil
}

func (q *queries) LockQueueGroup(_ context.Context, roomID int64, date string) error {
	// The store mutex already serialises transactions.
	return nil
}

func (q *queries) CreateQueue(_ context.Context, t *models.Queue) error {
	if t.QueueNumber <= 0 {
		return fmt.Errorf("queue number must be positive, got %d", t.QueueNumber)
	}
	if _, ok := q.st.appointments[t.AppointmentID]; !ok {
		return fmt.Errorf("queue appointment %d: %w", t.AppointmentID, store.ErrNotFound)
	}
	if _, ok := q.st.records[t.RecordID]; !ok {
		return fmt.Errorf("queue record %d: %w", t.RecordID, store.ErrNotFound)
	}
	for _, existing := range q.st.queues {
		if existing.RoomID == t.RoomID && existing.Date == t.Date && existing.QueueNumber == t.QueueNumber {
			return fmt.Errorf("%w: queue number %d in room %d on %s", store.ErrDuplicate, t.QueueNumber, t.RoomID, t.Date)
		}
	}
	t.ID = q.st.next("queues")
	t.CreatedAt = q.now()
	q.st.queues[t.ID] = *t
	return nil
}

func (q *queries) GetQueue(_ context.Context, id int64) (*models.Queue, error) {
	t, ok := q.st.queues[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (q *queries) QueueByAppointment(_ context.Context, appointmentID int64) (*models.Queue, error) {
	var found *models.Queue
	for _, t := range q.st.queues {
		if t.AppointmentID == appointmentID && (found == nil || t.ID > found.ID) {
			tt := t
			found = &tt
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (q *queries) ListQueueGroup(_ context.Context, roomID int64, date string) ([]models.Queue, error) {
	var out []models.Queue
	for _, t := range q.st.queues {
		if t.RoomID == roomID && t.Date == date {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueueNumber < out[j].QueueNumber })
	return out, nil
}

func (q *queries) RenumberQueueGroup(_ context.Context, roomID int64, date string, orderedIDs []int64) error {
	for i, id := range orderedIDs {
		t, ok := q.st.queues[id]
		if !ok || t.RoomID != roomID || t.Date != date {
			return fmt.Errorf("queue %d is not in room %d on %s: %w", id, roomID, date, store.ErrNotFound)
		}
		t.QueueNumber = i + 1
		q.st.queues[id] = t
	}
	q.st.counters[groupKey{roomID, date}] = len(orderedIDs)
	return nil
}

func (q *queries) DeleteQueue(_ context.Context, id int64) error {
	if _, ok := q.st.queues[id]; !ok {
		return store.ErrNotFound
	}
	delete(q.st.queues, id)
	return nil
}

func (q *queries) SyncQueueStatus(_ context.Context, appointmentID int64, status models.AppointmentStatus) (int64, error) {
	var n int64
	for id, t := range q.st.queues {
		if t.AppointmentID == appointmentID {
			t.Status = status
			q.st.queues[id] = t
			n++
		}
	}
	return n, nil
}

func (q *queries) CountQueuesByStatus(_ context.Context, date string, roomID int64) (map[models.AppointmentStatus]int, error) {
	counts := make(map[models.AppointmentStatus]int)
	for _, t := range q.st.queues {
		if t.Date == date && (roomID == 0 || t.RoomID == roomID) {
			counts[t.Status]++
		}
	}
	return counts, nil
}
