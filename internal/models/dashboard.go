package models

// DashboardStats summarises one day of tickets, optionally for a single room.
type DashboardStats struct {
	Date       string `json:"date"`
	RoomID     int64  `json:"room_id,omitempty"`
	Booked     int    `json:"booked"`
	Waiting    int    `json:"waiting"`
	InProgress int    `json:"in_progress"`
	Done       int    `json:"done"`
	Cancelled  int    `json:"cancelled"`
	Total      int    `json:"total"`
}

// StatsFromCounts folds per-status counts into a DashboardStats.
func StatsFromCounts(date string, roomID int64, counts map[AppointmentStatus]int) DashboardStats {
	d := DashboardStats{Date: date, RoomID: roomID}
	for status, n := range counts {
		switch status {
		case StatusBooked:
			d.Booked += n
		case StatusWaiting:
			d.Waiting += n
		case StatusInProgress:
			d.InProgress += n
		case StatusDone:
			d.Done += n
		case StatusCancelled:
			d.Cancelled += n
		}
		d.Total += n
	}
	return d
}
