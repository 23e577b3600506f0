package orders

import (
	"time"
)

// Event is a single order event
type Event struct {
	OrderID         string
	Status          string
	CustomerName    string
	CustomerAddress string
	CustomerPhone   string
	RequestedDate   time.Time
	CreatedAt       time.Time
}
