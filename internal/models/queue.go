package models

import "time"

// Queue is one ticket in a room's daily waiting line.
type Queue struct {
	ID            int64             `json:"id"`
	PatientID     int64             `json:"patient_id"`
	AppointmentID int64             `json:"appointment_id"`
	RecordID      int64             `json:"record_id"`
	QueueNumber   int               `json:"queue_number"`
	RoomID        int64             `json:"room_id"`
	Date          string            `json:"date"`
	Time          string            `json:"time"`
	Status        AppointmentStatus `json:"status"`
	CreatedBy     int64             `json:"created_by"`
	CreatedAt     time.Time         `json:"created_at"`
}
