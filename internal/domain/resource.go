package domain

type (
	// ResourceKind names a reservable resource type.
	ResourceKind string
	// VehicleType represents the body type of a vehicle.
	VehicleType string
)

// List of reservable resources
const (
	ResourceDriver  ResourceKind = "driver"
	ResourceVehicle ResourceKind = "vehicle"
)

// List of possible vehicle types
const (
	VehicleBike  VehicleType = "bike"
	VehicleCar   VehicleType = "car"
	VehicleVan   VehicleType = "van"
	VehicleTruck VehicleType = "truck"
)

// Driver is a person who can be attached to exactly one active delivery.
// IsAvailable is written only through the resource registry reserve/release pair.
type Driver struct {
	ID            int64
	Name          string
	Phone         string
	LicenseNumber string
	IsAvailable   bool
}

// Vehicle is a vehicle that can be attached to exactly one active delivery.
type Vehicle struct {
	ID          int64
	Number      string
	Type        VehicleType
	Capacity    int
	IsAvailable bool
}

var allowedVehicleTypes = [...]VehicleType{
	VehicleBike, VehicleCar, VehicleVan, VehicleTruck,
}

// Valid checks if the VehicleType is valid
func (t VehicleType) Valid() bool {
	for _, v := range allowedVehicleTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Valid checks if the ResourceKind is known
func (k ResourceKind) Valid() bool {
	return k == ResourceDriver || k == ResourceVehicle
}
