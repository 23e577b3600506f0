package tracking

import (
	"math"
	"math/rand"

	"service-dispatch/internal/domain"
)

// route is a polyline walked at constant speed.
type route struct {
	points    []domain.Location
	segIndex  int
	segOffset float64 // km travelled on the current segment
	position  domain.Location
}

func newRoute(points []domain.Location) *route {
	return &route{points: points, position: points[0]}
}

func (r *route) arrived() bool {
	return r.segIndex >= len(r.points)-1
}

// step advances the position by km along the polyline.
func (r *route) step(km float64) {
	for km > 0 && !r.arrived() {
		a := r.points[r.segIndex]
		b := r.points[r.segIndex+1]
		segLen := domain.HaversineKm(a, b)
		left := segLen - r.segOffset
		if km >= left {
			r.position = b
			r.segIndex++
			r.segOffset = 0
			km -= left
			continue
		}
		t := (r.segOffset + km) / segLen
		r.position = domain.Lerp(a, b, math.Min(math.Max(t, 0), 1))
		r.segOffset += km
		km = 0
	}
}

// jitter moves loc by up to meters in both axes.
func jitter(rng *rand.Rand, loc domain.Location, meters float64) domain.Location {
	if meters <= 0 {
		return loc
	}
	const metersPerDeg = 111320.0
	lngMetersPerDeg := metersPerDeg * math.Cos(loc.Lat*math.Pi/180)
	dLat := (rng.Float64()*2 - 1) * (meters / metersPerDeg)
	dLng := (rng.Float64()*2 - 1) * (meters / lngMetersPerDeg)
	return domain.Location{Lat: loc.Lat + dLat, Lng: loc.Lng + dLng}
}
