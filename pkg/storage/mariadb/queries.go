package mariadb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/c14220110/clinic-queue/internal/models"
	"github.com/c14220110/clinic-queue/internal/store"
)

type queries struct {
	db DBTX
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func ptrInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// ---------- Users & patients ----------

func (q *queries) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var (
		u                           models.User
		phone, email, uname, passwd sql.NullString
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id_user, name, phone, email, username, password_hash, role, created_at
		FROM Users
		WHERE username = ?`, username,
	).Scan(&u.ID, &u.Name, &phone, &email, &uname, &passwd, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	u.Phone, u.Email, u.Username, u.PasswordHash = phone.String, email.String, uname.String, passwd.String
	return &u, nil
}

func (q *queries) CreateUser(ctx context.Context, u *models.User) error {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO Users (name, phone, email, username, password_hash, role)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.Name, nullString(u.Phone), nullString(u.Email), nullString(u.Username), nullString(u.PasswordHash), u.Role,
	)
	if err != nil {
		return translate(err)
	}
	u.ID, err = res.LastInsertId()
	return err
}

func (q *queries) GetPatient(ctx context.Context, id int64) (*models.Patient, error) {
	var (
		p                    models.Patient
		dob, gender, address sql.NullString
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id_patient, id_user, name, phone, DATE_FORMAT(date_of_birth, '%Y-%m-%d'), gender, address, created_at
		FROM Patients
		WHERE id_patient = ?`, id,
	).Scan(&p.ID, &p.UserID, &p.Name, &p.Phone, &dob, &gender, &address, &p.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	p.DateOfBirth, p.Gender, p.Address = dob.String, gender.String, address.String
	return &p, nil
}

// LockPatient takes the patient's row lock. Locking reads issued after it see
// the records committed by the previous holder.
func (q *queries) LockPatient(ctx context.Context, id int64) error {
	var got int64
	err := q.db.QueryRowContext(ctx, "SELECT id_patient FROM Patients WHERE id_patient = ? FOR UPDATE", id).Scan(&got)
	return translate(err)
}

func (q *queries) PhoneTaken(ctx context.Context, phone string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM Patients WHERE phone = ?)", phone).Scan(&exists)
	return exists, err
}

func (q *queries) CreatePatient(ctx context.Context, p *models.Patient) error {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO Patients (id_user, name, phone, date_of_birth, gender, address)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Name, p.Phone, nullString(p.DateOfBirth), nullString(p.Gender), nullString(p.Address),
	)
	if err != nil {
		return translate(err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (q *queries) GetStaff(ctx context.Context, id int64) (*models.MedicalStaff, error) {
	var (
		m         models.MedicalStaff
		idUser    sql.NullInt64
		specialty sql.NullString
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id_staff, id_user, name, specialty, id_room, active
		FROM Medical_Staff
		WHERE id_staff = ?`, id,
	).Scan(&m.ID, &idUser, &m.Name, &specialty, &m.RoomID, &m.Active)
	if err != nil {
		return nil, translate(err)
	}
	m.UserID, m.Specialty = idUser.Int64, specialty.String
	return &m, nil
}

// ---------- Medical records ----------

func (q *queries) ActiveMedicalRecord(ctx context.Context, patientID int64) (*models.MedicalRecord, error) {
	var (
		r     models.MedicalRecord
		notes sql.NullString
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id_record, id_patient, record_number, DATE_FORMAT(issued_date, '%Y-%m-%d'), status, notes, created_by
		FROM Medical_Records
		WHERE id_patient = ? AND status = ?
		ORDER BY id_record DESC
		LIMIT 1
		FOR UPDATE`, patientID, models.RecordActive,
	).Scan(&r.ID, &r.PatientID, &r.RecordNumber, &r.IssuedDate, &r.Status, &notes, &r.CreatedBy)
	if err != nil {
		return nil, translate(err)
	}
	r.Notes = notes.String
	return &r, nil
}

func (q *queries) CreateMedicalRecord(ctx context.Context, r *models.MedicalRecord) error {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO Medical_Records (id_patient, record_number, issued_date, status, notes, created_by)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.PatientID, r.RecordNumber, r.IssuedDate, r.Status, nullString(r.Notes), r.CreatedBy,
	)
	if err != nil {
		return translate(err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

// ---------- Appointments ----------

const appointmentColumns = `
	id_appointment, id_patient, id_staff, id_schedule, id_record, id_room,
	DATE_FORMAT(appointment_date, '%Y-%m-%d'), TIME_FORMAT(appointment_time, '%H:%i'),
	status, created_by, notes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var (
		a                  models.Appointment
		schedule, recordID sql.NullInt64
		notes              sql.NullString
		status             string
	)
	err := row.Scan(&a.ID, &a.PatientID, &a.StaffID, &schedule, &recordID, &a.RoomID,
		&a.Date, &a.Time, &status, &a.CreatedBy, &notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.ScheduleID, a.RecordID = ptrInt(schedule), ptrInt(recordID)
	a.Status, a.Notes = models.AppointmentStatus(status), notes.String
	return &a, nil
}

func (q *queries) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+appointmentColumns+" FROM Appointments WHERE id_appointment = ?", id)
	a, err := scanAppointment(row)
	if err != nil {
		return nil, translate(err)
	}
	return a, nil
}

// GetAppointmentForUpdate reads the latest committed row and holds its lock
// until the transaction ends.
func (q *queries) GetAppointmentForUpdate(ctx context.Context, id int64) (*models.Appointment, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+appointmentColumns+" FROM Appointments WHERE id_appointment = ? FOR UPDATE", id)
	a, err := scanAppointment(row)
	if err != nil {
		return nil, translate(err)
	}
	return a, nil
}

func (q *queries) ListAppointments(ctx context.Context, date string, roomID int64) ([]models.Appointment, error) {
	query := "SELECT " + appointmentColumns + " FROM Appointments WHERE appointment_date = ?"
	params := []interface{}{date}
	if roomID != 0 {
		query += " AND id_room = ?"
		params = append(params, roomID)
	}
	query += " ORDER BY appointment_time, id_appointment"

	rows, err := q.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	var out []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (q *queries) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO Appointments
			(id_patient, id_staff, id_schedule, id_record, id_room, appointment_date, appointment_time, status, created_by, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.PatientID, a.StaffID, nullInt(a.ScheduleID), nullInt(a.RecordID), a.RoomID,
		a.Date, a.Time, string(a.Status), a.CreatedBy, nullString(a.Notes),
	)
	if err != nil {
		return translate(err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (q *queries) UpdateAppointmentStatus(ctx context.Context, id int64, status models.AppointmentStatus) error {
	res, err := q.db.ExecContext(ctx, "UPDATE Appointments SET status = ? WHERE id_appointment = ?", string(status), id)
	return affectedOne(res, err)
}

func (q *queries) SetAppointmentRecord(ctx context.Context, id, recordID int64) error {
	res, err := q.db.ExecContext(ctx, "UPDATE Appointments SET id_record = ? WHERE id_appointment = ?", recordID, id)
	return affectedOne(res, err)
}

// affectedOne only surfaces errors: MySQL counts changed rows rather than
// matched rows, so rewriting the same value reports 0. Services load the row
// before updating it.
func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return translate(err)
	}
	_, err = res.RowsAffected()
	return err
}

func requireRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---------- Queue ----------

func (q *queries) NextQueueNumber(ctx context.Context, roomID int64, date string) (int, error) {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO Queue_Counters (id_room, queue_date, last_number)
		VALUES (?, ?, 1)
		ON DUPLICATE KEY UPDATE last_number = last_number + 1`, roomID, date)
	if err != nil {
		return 0, fmt.Errorf("bump queue counter: %w", err)
	}

	var n int
	err = q.db.QueryRowContext(ctx,
		"SELECT last_number FROM Queue_Counters WHERE id_room = ? AND queue_date = ?", roomID, date,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("read queue counter: %w", err)
	}
	return n, nil
}

func (q *queries) LockQueueGroup(ctx context.Context, roomID int64, date string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO Queue_Counters (id_room, queue_date, last_number)
		VALUES (?, ?, 0)
		ON DUPLICATE KEY UPDATE last_number = last_number`, roomID, date)
	if err != nil {
		return fmt.Errorf("lock queue group: %w", err)
	}
	return nil
}

func (q *queries) CreateQueue(ctx context.Context, t *models.Queue) error {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO Queues
			(id_patient, id_appointment, id_record, queue_number, id_room, queue_date, queue_time, status, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.PatientID, t.AppointmentID, t.RecordID, t.QueueNumber, t.RoomID, t.Date, t.Time, string(t.Status), t.CreatedBy,
	)
	if err != nil {
		return translate(err)
	}
	t.ID, err = res.LastInsertId()
	return err
}

const queueColumns = `
	id_queue, id_patient, id_appointment, id_record, queue_number, id_room,
	DATE_FORMAT(queue_date, '%Y-%m-%d'), TIME_FORMAT(queue_time, '%H:%i'), status, created_by, created_at`

func scanQueue(row rowScanner) (*models.Queue, error) {
	var (
		t      models.Queue
		status string
	)
	err := row.Scan(&t.ID, &t.PatientID, &t.AppointmentID, &t.RecordID, &t.QueueNumber, &t.RoomID,
		&t.Date, &t.Time, &status, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = models.AppointmentStatus(status)
	return &t, nil
}

func (q *queries) GetQueue(ctx context.Context, id int64) (*models.Queue, error) {
	t, err := scanQueue(q.db.QueryRowContext(ctx, "SELECT "+queueColumns+" FROM Queues WHERE id_queue = ?", id))
	if err != nil {
		return nil, translate(err)
	}
	return t, nil
}

func (q *queries) QueueByAppointment(ctx context.Context, appointmentID int64) (*models.Queue, error) {
	t, err := scanQueue(q.db.QueryRowContext(ctx,
		"SELECT "+queueColumns+" FROM Queues WHERE id_appointment = ? ORDER BY id_queue DESC LIMIT 1 FOR UPDATE", appointmentID))
	if err != nil {
		return nil, translate(err)
	}
	return t, nil
}

func (q *queries) ListQueueGroup(ctx context.Context, roomID int64, date string) ([]models.Queue, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+queueColumns+" FROM Queues WHERE id_room = ? AND queue_date = ? ORDER BY queue_number", roomID, date)
	if err != nil {
		return nil, fmt.Errorf("query queue group: %w", err)
	}
	defer rows.Close()

	var out []models.Queue
	for rows.Next() {
		t, err := scanQueue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// RenumberQueueGroup first negates the group's numbers so the unique key on
// (id_room, queue_date, queue_number) never sees a transient collision.
func (q *queries) RenumberQueueGroup(ctx context.Context, roomID int64, date string, orderedIDs []int64) error {
	if len(orderedIDs) == 0 {
		return nil
	}
	if _, err := q.db.ExecContext(ctx,
		"UPDATE Queues SET queue_number = -queue_number WHERE id_room = ? AND queue_date = ? AND queue_number > 0",
		roomID, date,
	); err != nil {
		return fmt.Errorf("park queue numbers: %w", err)
	}

	var (
		b      strings.Builder
		params []interface{}
	)
	b.WriteString("UPDATE Queues SET queue_number = CASE id_queue")
	for i, id := range orderedIDs {
		b.WriteString(" WHEN ? THEN ?")
		params = append(params, id, i+1)
	}
	b.WriteString(" END WHERE id_room = ? AND queue_date = ? AND id_queue IN (?" + strings.Repeat(",?", len(orderedIDs)-1) + ")")
	params = append(params, roomID, date)
	for _, id := range orderedIDs {
		params = append(params, id)
	}

	res, err := q.db.ExecContext(ctx, b.String(), params...)
	if err != nil {
		return translate(err)
	}
	if n, err := res.RowsAffected(); err == nil && n != int64(len(orderedIDs)) {
		return fmt.Errorf("renumber queue group: expected %d rows, updated %d", len(orderedIDs), n)
	}

	if _, err := q.db.ExecContext(ctx,
		"UPDATE Queue_Counters SET last_number = ? WHERE id_room = ? AND queue_date = ?",
		len(orderedIDs), roomID, date,
	); err != nil {
		return fmt.Errorf("reset queue counter: %w", err)
	}
	return nil
}

func (q *queries) DeleteQueue(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM Queues WHERE id_queue = ?", id)
	if err != nil {
		return translate(err)
	}
	return requireRows(res)
}

func (q *queries) SyncQueueStatus(ctx context.Context, appointmentID int64, status models.AppointmentStatus) (int64, error) {
	res, err := q.db.ExecContext(ctx, "UPDATE Queues SET status = ? WHERE id_appointment = ?", string(status), appointmentID)
	if err != nil {
		return 0, translate(err)
	}
	return res.RowsAffected()
}

func (q *queries) CountQueuesByStatus(ctx context.Context, date string, roomID int64) (map[models.AppointmentStatus]int, error) {
	query := "SELECT status, COUNT(*) FROM Queues WHERE queue_date = ?"
	params := []interface{}{date}
	if roomID != 0 {
		query += " AND id_room = ?"
		params = append(params, roomID)
	}
	query += " GROUP BY status"

	rows, err := q.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("count queues: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.AppointmentStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan queue count: %w", err)
		}
		counts[models.AppointmentStatus(status)] = n
	}
	return counts, rows.Err()
}
