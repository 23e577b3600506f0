package domain

import "time"

// EventType names a message pushed to subscribers.
type EventType string

// List of event types
const (
	EventLocationUpdate  EventType = "location_update"
	EventStatusUpdate    EventType = "status_update"
	EventTrackingStopped EventType = "tracking_stopped"
	EventSubscribed      EventType = "subscribed"
	EventUnsubscribed    EventType = "unsubscribed"
	EventNotification    EventType = "newNotification"
	EventError           EventType = "error"
)

// Event is the frame delivered over a subscriber connection.
type Event struct {
	Type       EventType `json:"type"`
	DeliveryID int64     `json:"delivery_id,omitempty"`
	DriverID   int64     `json:"driver_id,omitempty"`
	Data       any       `json:"data,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// LocationUpdate is the payload of location_update.
type LocationUpdate struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Speed     float64   `json:"speed"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusUpdate is the payload of status_update.
type StatusUpdate struct {
	Status DeliveryStatus `json:"status"`
	Notes  string         `json:"notes,omitempty"`
}

// NotificationKind distinguishes driver notifications.
type NotificationKind string

// List of notification kinds
const (
	NotificationAssignment NotificationKind = "assignment"
	NotificationStatus     NotificationKind = "status"
	NotificationUnassigned NotificationKind = "unassigned"
)

// Notification is the payload of newNotification and the body sent to the outbound channel.
type Notification struct {
	Kind       NotificationKind `json:"kind"`
	DriverID   int64            `json:"driver_id"`
	DeliveryID int64            `json:"delivery_id"`
	OrderID    string           `json:"order_id,omitempty"`
	Status     DeliveryStatus   `json:"status,omitempty"`
	Message    string           `json:"message"`
}

// NewLocationEvent builds a location_update event from a sample.
func NewLocationEvent(s LocationSample) Event {
	return Event{
		Type:       EventLocationUpdate,
		DeliveryID: s.DeliveryID,
		DriverID:   s.DriverID,
		Data: LocationUpdate{
			Lat:       s.Location.Lat,
			Lng:       s.Location.Lng,
			Speed:     s.Speed,
			Status:    s.Status,
			Timestamp: s.Timestamp,
		},
		Timestamp: s.Timestamp,
	}
}
