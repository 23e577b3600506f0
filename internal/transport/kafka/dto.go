package kafka

import (
	"strings"
	"time"

	"service-dispatch/internal/service/orders"
)

// EventDTO is the wire form of an order event
type EventDTO struct {
	OrderID         string    `json:"order_id"`
	Status          string    `json:"status"`
	CustomerName    string    `json:"customer_name"`
	CustomerAddress string    `json:"customer_address"`
	CustomerPhone   string    `json:"customer_phone"`
	RequestedDate   time.Time `json:"requested_date"`
	CreatedAt       time.Time `json:"created_at"`
}

// ToDomain converts EventDTO to orders.Event
func ToDomain(dto EventDTO) orders.Event {
	return orders.Event{
		OrderID:         strings.TrimSpace(dto.OrderID),
		Status:          strings.TrimSpace(dto.Status),
		CustomerName:    strings.TrimSpace(dto.CustomerName),
		CustomerAddress: strings.TrimSpace(dto.CustomerAddress),
		CustomerPhone:   strings.TrimSpace(dto.CustomerPhone),
		RequestedDate:   dto.RequestedDate,
		CreatedAt:       dto.CreatedAt,
	}
}
