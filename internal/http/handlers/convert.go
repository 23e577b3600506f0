package handlers

import (
	"time"

	"service-dispatch/internal/domain"
	"service-dispatch/internal/service/tracking"
)

func (req createDriverRequest) toModel() *domain.Driver {
	return &domain.Driver{
		Name:          req.Name,
		Phone:         req.Phone,
		LicenseNumber: req.LicenseNumber,
	}
}

func (req createVehicleRequest) toModel() *domain.Vehicle {
	return &domain.Vehicle{
		Number:   req.Number,
		Type:     domain.VehicleType(req.Type),
		Capacity: req.Capacity,
	}
}

func (req createDeliveryRequest) toModel() *domain.Delivery {
	return &domain.Delivery{
		OrderID:         req.OrderID,
		CustomerName:    req.CustomerName,
		CustomerAddress: req.CustomerAddress,
		CustomerPhone:   req.CustomerPhone,
		RequestedDate:   req.RequestedDate,
	}
}

func (p pointDTO) toModel() domain.Location {
	return domain.Location{Lat: *p.Lat, Lng: *p.Lng}
}

func (req simulateRequest) toOptions() tracking.SimOptions {
	opts := tracking.SimOptions{
		Origin:      req.Origin.toModel(),
		Destination: req.Destination.toModel(),
		SpeedKmh:    req.SpeedKmh,
		Interval:    time.Duration(req.IntervalMs) * time.Millisecond,
		JitterM:     req.JitterMeters,
		Seed:        req.Seed,
	}
	for _, w := range req.Waypoints {
		opts.Waypoints = append(opts.Waypoints, w.toModel())
	}
	return opts
}

func driverToResponse(d domain.Driver) driverDTO {
	return driverDTO{
		ID:            d.ID,
		Name:          d.Name,
		Phone:         d.Phone,
		LicenseNumber: d.LicenseNumber,
		IsAvailable:   d.IsAvailable,
	}
}

func driversToResponse(list []domain.Driver) []driverDTO {
	out := make([]driverDTO, 0, len(list))
	for _, d := range list {
		out = append(out, driverToResponse(d))
	}
	return out
}

func vehicleToResponse(v domain.Vehicle) vehicleDTO {
	return vehicleDTO{
		ID:          v.ID,
		Number:      v.Number,
		Type:        v.Type,
		Capacity:    v.Capacity,
		IsAvailable: v.IsAvailable,
	}
}

func vehiclesToResponse(list []domain.Vehicle) []vehicleDTO {
	out := make([]vehicleDTO, 0, len(list))
	for _, v := range list {
		out = append(out, vehicleToResponse(v))
	}
	return out
}

func deliveryToResponse(d domain.Delivery) deliveryDTO {
	return deliveryDTO{
		ID:              d.ID,
		OrderID:         d.OrderID,
		CustomerName:    d.CustomerName,
		CustomerAddress: d.CustomerAddress,
		CustomerPhone:   d.CustomerPhone,
		RequestedDate:   d.RequestedDate,
		DriverID:        d.Driver.Ptr(),
		VehicleID:       d.Vehicle.Ptr(),
		Status:          d.Status,
		AssignedAt:      d.AssignedAt,
		StartedAt:       d.StartedAt,
		CompletedAt:     d.CompletedAt,
		CreatedAt:       d.CreatedAt,
	}
}

func deliveriesToResponse(list []domain.Delivery) []deliveryDTO {
	out := make([]deliveryDTO, 0, len(list))
	for _, d := range list {
		out = append(out, deliveryToResponse(d))
	}
	return out
}

func assignmentToResponse(a domain.Assignment) assignmentDTO {
	out := assignmentDTO{
		DeliveryID:  a.DeliveryID,
		Status:      a.Status,
		DriverID:    a.Driver.ID(),
		VehicleID:   a.Vehicle.ID(),
		AssignedAt:  a.AssignedAt,
		StartedAt:   a.StartedAt,
		CompletedAt: a.CompletedAt,
	}
	if d, ok := a.Driver.Entity(); ok {
		dto := driverToResponse(*d)
		out.Driver = &dto
	}
	if v, ok := a.Vehicle.Entity(); ok {
		dto := vehicleToResponse(*v)
		out.Vehicle = &dto
	}
	return out
}

func locationToResponse(s domain.LocationSample) locationDTO {
	return locationDTO{
		DeliveryID: s.DeliveryID,
		DriverID:   s.DriverID,
		Lat:        s.Location.Lat,
		Lng:        s.Location.Lng,
		Speed:      s.Speed,
		Status:     s.Status,
		Timestamp:  s.Timestamp,
	}
}

func locationPageToResponse(p domain.LocationPage) locationPageDTO {
	items := make([]locationDTO, 0, len(p.Items))
	for _, s := range p.Items {
		items = append(items, locationToResponse(s))
	}
	return locationPageDTO{Items: items, Page: p.Page, Limit: p.Limit, Total: p.Total}
}

func feedToResponse(f tracking.Feed) feedDTO {
	return feedDTO{
		DeliveryID: f.DeliveryID,
		DriverID:   f.DriverID,
		VehicleID:  f.VehicleID,
		Kind:       string(f.Kind),
		StartedAt:  f.StartedAt,
	}
}
