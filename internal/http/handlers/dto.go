package handlers

import (
	"time"

	"service-dispatch/internal/domain"
)

type driverDTO struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	LicenseNumber string `json:"license_number"`
	IsAvailable   bool   `json:"is_available"`
}

type createDriverRequest struct {
	Name          string `json:"name" validate:"required,max=255"`
	Phone         string `json:"phone" validate:"required,phone"`
	LicenseNumber string `json:"license_number" validate:"required,max=64"`
}

type vehicleDTO struct {
	ID          int64              `json:"id"`
	Number      string             `json:"number"`
	Type        domain.VehicleType `json:"type"`
	Capacity    int                `json:"capacity"`
	IsAvailable bool               `json:"is_available"`
}

type createVehicleRequest struct {
	Number   string `json:"number" validate:"required,max=32"`
	Type     string `json:"type" validate:"required,vehicle_type"`
	Capacity int    `json:"capacity" validate:"gt=0"`
}

type deliveryDTO struct {
	ID              int64                 `json:"id"`
	OrderID         string                `json:"order_id"`
	CustomerName    string                `json:"customer_name"`
	CustomerAddress string                `json:"customer_address"`
	CustomerPhone   string                `json:"customer_phone"`
	RequestedDate   time.Time             `json:"requested_date"`
	DriverID        *int64                `json:"driver_id"`
	VehicleID       *int64                `json:"vehicle_id"`
	Status          domain.DeliveryStatus `json:"status"`
	AssignedAt      *time.Time            `json:"assigned_at,omitempty"`
	StartedAt       *time.Time            `json:"started_at,omitempty"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}

type createDeliveryRequest struct {
	OrderID         string    `json:"order_id" validate:"omitempty,max=64"`
	CustomerName    string    `json:"customer_name" validate:"required,max=255"`
	CustomerAddress string    `json:"customer_address" validate:"required,max=500"`
	CustomerPhone   string    `json:"customer_phone" validate:"required,phone"`
	RequestedDate   time.Time `json:"requested_date" validate:"required"`
}

type assignmentRequest struct {
	DriverID  int64 `json:"driver_id" validate:"gt=0"`
	VehicleID int64 `json:"vehicle_id" validate:"gt=0"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,delivery_status"`
	Notes  string `json:"notes" validate:"max=1000"`
}

type assignmentDTO struct {
	DeliveryID  int64                 `json:"delivery_id"`
	Status      domain.DeliveryStatus `json:"status"`
	DriverID    int64                 `json:"driver_id"`
	VehicleID   int64                 `json:"vehicle_id"`
	Driver      *driverDTO            `json:"driver,omitempty"`
	Vehicle     *vehicleDTO           `json:"vehicle,omitempty"`
	AssignedAt  *time.Time            `json:"assigned_at,omitempty"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
}

type locationRequest struct {
	DriverID  int64      `json:"driver_id" validate:"gte=0"`
	Lat       *float64   `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng       *float64   `json:"lng" validate:"required,gte=-180,lte=180"`
	Speed     float64    `json:"speed" validate:"gte=0"`
	Status    string     `json:"status" validate:"max=64"`
	Timestamp *time.Time `json:"timestamp"`
}

type locationDTO struct {
	DeliveryID int64     `json:"delivery_id"`
	DriverID   int64     `json:"driver_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Speed      float64   `json:"speed"`
	Status     string    `json:"status,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type locationPageDTO struct {
	Items []locationDTO `json:"items"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
	Total int64         `json:"total"`
}

type pointDTO struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

type simulateRequest struct {
	Origin       pointDTO   `json:"origin"`
	Destination  pointDTO   `json:"destination"`
	Waypoints    []pointDTO `json:"waypoints" validate:"max=50,dive"`
	SpeedKmh     float64    `json:"speed_kmh" validate:"gte=0,lte=300"`
	IntervalMs   int64      `json:"interval_ms" validate:"gte=0"`
	JitterMeters float64    `json:"jitter_meters" validate:"gte=0,lte=500"`
	Seed         *int64     `json:"seed"`
}

type feedDTO struct {
	DeliveryID int64     `json:"delivery_id"`
	DriverID   int64     `json:"driver_id"`
	VehicleID  int64     `json:"vehicle_id"`
	Kind       string    `json:"kind"`
	StartedAt  time.Time `json:"started_at"`
}

type subscribersDTO struct {
	DeliveryID  int64 `json:"delivery_id"`
	Subscribers int   `json:"subscribers"`
}
