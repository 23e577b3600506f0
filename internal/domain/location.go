package domain

import (
	"math"
	"time"
)

// Location is a WGS84 coordinate.
type Location struct {
	Lat float64
	Lng float64
}

// Valid checks the coordinate ranges.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180 &&
		!math.IsNaN(l.Lat) && !math.IsNaN(l.Lng)
}

// LocationSample is one position fix of a tracked delivery.
type LocationSample struct {
	DeliveryID int64
	DriverID   int64
	Location   Location
	Speed      float64 // km/h
	Status     string
	Timestamp  time.Time
}

// LocationPage is a page of the location history, oldest first.
type LocationPage struct {
	Items []LocationSample
	Page  int
	Limit int
	Total int64
}

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between a and b.
func HaversineKm(a, b Location) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	s := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
}

// Lerp interpolates linearly between a and b, t in [0,1].
func Lerp(a, b Location, t float64) Location {
	return Location{Lat: a.Lat + (b.Lat-a.Lat)*t, Lng: a.Lng + (b.Lng-a.Lng)*t}
}
