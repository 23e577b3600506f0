package domain

import (
	"regexp"
	"strings"
)

// DeliveryStatus represents the lifecycle state of a delivery.
type DeliveryStatus string

// List of possible delivery statuses
const (
	StatusPending   DeliveryStatus = "pending"
	StatusAssigned  DeliveryStatus = "assigned"
	StatusOngoing   DeliveryStatus = "ongoing"
	StatusCompleted DeliveryStatus = "completed"
	StatusCancelled DeliveryStatus = "cancelled"
)

var allowedStatuses = [...]DeliveryStatus{
	StatusPending, StatusAssigned, StatusOngoing, StatusCompleted, StatusCancelled,
}

// validTransitions lists every legal edge of the delivery state machine.
// ongoing/assigned -> pending is the unassign edge.
var validTransitions = map[DeliveryStatus][]DeliveryStatus{
	StatusPending:   {StatusAssigned, StatusCancelled},
	StatusAssigned:  {StatusOngoing, StatusPending, StatusCancelled},
	StatusOngoing:   {StatusCompleted, StatusPending, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// Valid checks if the DeliveryStatus is valid
func (s DeliveryStatus) Valid() bool {
	for _, v := range allowedStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves the status.
func (s DeliveryStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active reports whether the delivery holds its driver and vehicle.
func (s DeliveryStatus) Active() bool {
	return s == StatusAssigned || s == StatusOngoing
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to DeliveryStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ParseDeliveryStatus normalizes user input ("Ongoing", " pending ") into a DeliveryStatus.
func ParseDeliveryStatus(raw string) (DeliveryStatus, bool) {
	s := DeliveryStatus(strings.ToLower(strings.TrimSpace(raw)))
	if s == "canceled" {
		s = StatusCancelled
	}
	return s, s.Valid()
}

// rePhone is a regex to validate phone numbers
var rePhone = regexp.MustCompile(`^\+[0-9]{11}$`)

// ValidatePhone validates the phone number format
func ValidatePhone(s string) bool {
	return rePhone.MatchString(s)
}
