package models

import "time"

// AppointmentStatus is shared by appointments and their queue tickets.
type AppointmentStatus string

const (
	StatusBooked     AppointmentStatus = "Đã đặt"
	StatusWaiting    AppointmentStatus = "Đang chờ"
	StatusInProgress AppointmentStatus = "Đang khám"
	StatusDone       AppointmentStatus = "Đã khám"
	StatusCancelled  AppointmentStatus = "Hủy"
)

// AppointmentStatuses lists the fixed status enum in workflow order.
var AppointmentStatuses = []AppointmentStatus{
	StatusBooked, StatusWaiting, StatusInProgress, StatusDone, StatusCancelled,
}

func (s AppointmentStatus) Valid() bool {
	for _, v := range AppointmentStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further workflow step follows s.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusDone || s == StatusCancelled
}

type Appointment struct {
	ID         int64             `json:"id"`
	PatientID  int64             `json:"patient_id"`
	StaffID    int64             `json:"staff_id"`
	ScheduleID *int64            `json:"schedule_id,omitempty"`
	RecordID   *int64            `json:"record_id,omitempty"`
	RoomID     int64             `json:"room_id"`
	Date       string            `json:"date"` // YYYY-MM-DD
	Time       string            `json:"time"` // HH:MM
	Status     AppointmentStatus `json:"status"`
	CreatedBy  int64             `json:"created_by"`
	Notes      string            `json:"notes,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
