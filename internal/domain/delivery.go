package domain

import (
	"fmt"
	"time"

	"service-dispatch/internal/apperr"
)

// Delivery is a delivery job and the single source of truth for its assignment.
type Delivery struct {
	ID              int64
	OrderID         string
	CustomerName    string
	CustomerAddress string
	CustomerPhone   string
	RequestedDate   time.Time
	Driver          Ref[Driver]
	Vehicle         Ref[Vehicle]
	Status          DeliveryStatus
	AssignedAt      *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
}

// DeliveryFilter narrows delivery listings. Nil fields are ignored.
type DeliveryFilter struct {
	Status *DeliveryStatus
	Limit  *int
	Offset *int
}

// HoldsResources reports whether the delivery currently keeps its driver and vehicle reserved.
func (d *Delivery) HoldsResources() bool {
	return d.Status.Active() && !d.Driver.IsZero() && !d.Vehicle.IsZero()
}

// Assign moves a pending delivery to assigned. Resources must already be reserved.
func (d *Delivery) Assign(driverID, vehicleID int64, now time.Time) error {
	if err := d.transition(StatusAssigned); err != nil {
		return err
	}
	d.Driver = RefTo[Driver](driverID)
	d.Vehicle = RefTo[Vehicle](vehicleID)
	d.AssignedAt = stamp(now)
	return nil
}

// Reassign swaps the resources of an active delivery without touching its status.
func (d *Delivery) Reassign(driverID, vehicleID int64) error {
	if !d.Status.Active() {
		return fmt.Errorf("%w: delivery %d is %s", apperr.ErrPreconditionFailed, d.ID, d.Status)
	}
	d.Driver = RefTo[Driver](driverID)
	d.Vehicle = RefTo[Vehicle](vehicleID)
	return nil
}

// Start moves an assigned delivery to ongoing.
func (d *Delivery) Start(now time.Time) error {
	if err := d.transition(StatusOngoing); err != nil {
		return err
	}
	d.StartedAt = stamp(now)
	return nil
}

// Complete moves an ongoing delivery to completed.
// References are kept as history; the caller releases the resources.
func (d *Delivery) Complete(now time.Time) error {
	if err := d.transition(StatusCompleted); err != nil {
		return err
	}
	d.CompletedAt = stamp(now)
	return nil
}

// Unassign returns an assigned or ongoing delivery to pending and clears its binding.
func (d *Delivery) Unassign() error {
	if !d.Status.Active() {
		return fmt.Errorf("%w: delivery %d is %s", apperr.ErrPreconditionFailed, d.ID, d.Status)
	}
	d.Status = StatusPending
	d.Driver = Ref[Driver]{}
	d.Vehicle = Ref[Vehicle]{}
	d.AssignedAt = nil
	d.StartedAt = nil
	d.CompletedAt = nil
	return nil
}

// Cancel moves any non-terminal delivery to cancelled.
func (d *Delivery) Cancel() error {
	return d.transition(StatusCancelled)
}

func (d *Delivery) transition(to DeliveryStatus) error {
	if !CanTransition(d.Status, to) {
		return fmt.Errorf("%w: delivery %d cannot go from %s to %s",
			apperr.ErrPreconditionFailed, d.ID, d.Status, to)
	}
	d.Status = to
	return nil
}

func stamp(now time.Time) *time.Time {
	t := now
	return &t
}
