package services

import (
	"fmt"

	"github.com/c14220110/clinic-queue/internal/models"
)

// TransitionPolicy decides whether an appointment may move from one status to another.
type TransitionPolicy interface {
	Allow(from, to models.AppointmentStatus) bool
}

// Permissive accepts any status after any other.
type Permissive struct{}

func (Permissive) Allow(_, _ models.AppointmentStatus) bool { return true }

// Strict follows the clinic workflow: booked, waiting, in examination, done,
// with cancellation possible until the visit is over.
type Strict struct{}

var strictSuccessors = map[models.AppointmentStatus][]models.AppointmentStatus{
	models.StatusBooked:     {models.StatusWaiting, models.StatusCancelled},
	models.StatusWaiting:    {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress: {models.StatusDone, models.StatusCancelled},
}

func (Strict) Allow(from, to models.AppointmentStatus) bool {
	if from == to {
		return true
	}
	for _, next := range strictSuccessors[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PolicyFor maps the APPOINTMENT_TRANSITIONS setting onto a policy.
func PolicyFor(name string) (TransitionPolicy, error) {
	switch name {
	case "", "permissive":
		return Permissive{}, nil
	case "strict":
		return Strict{}, nil
	}
	return nil, fmt.Errorf("unknown appointment transition policy %q", name)
}
