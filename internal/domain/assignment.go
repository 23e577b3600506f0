package domain

import "time"

// Assignment is the read-only projection of a delivery's resource binding.
// It is computed from Delivery and never stored on its own.
type Assignment struct {
	DeliveryID  int64
	Driver      Ref[Driver]
	Vehicle     Ref[Vehicle]
	Status      DeliveryStatus
	AssignedAt  *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// AssignmentOf projects the delivery. ok is false while the delivery is pending
// or carries no resources.
func AssignmentOf(d Delivery) (Assignment, bool) {
	if d.Status == StatusPending || d.Driver.IsZero() || d.Vehicle.IsZero() {
		return Assignment{}, false
	}
	return Assignment{
		DeliveryID:  d.ID,
		Driver:      d.Driver,
		Vehicle:     d.Vehicle,
		Status:      d.Status,
		AssignedAt:  d.AssignedAt,
		StartedAt:   d.StartedAt,
		CompletedAt: d.CompletedAt,
	}, true
}
