// Package geo holds the spherical math behind the nearest-ninja query.
package geo

import "math"

// EarthRadiusMeters matches the radius MongoDB's 2dsphere index uses.
const EarthRadiusMeters = 6378100.0

// DefaultMaxDistance is the search radius in meters when the caller gives none.
const DefaultMaxDistance = 1e9

// Unit is the distance unit reported by the nearest query.
type Unit string

const (
	Kilometers Unit = "km"
	Meters     Unit = "m"
)

// ParseUnit maps a given unit parameter: km means km, anything else (empty
// included) means meters. Callers default to km when the parameter is absent.
func ParseUnit(raw string) Unit {
	if raw == string(Kilometers) {
		return Kilometers
	}
	return Meters
}

// Multiplier converts meters into the unit.
func (u Unit) Multiplier() float64 {
	if u == Kilometers {
		return 0.001
	}
	return 1
}

// Scale converts a distance in meters to the unit, rounded to 2 decimals.
func (u Unit) Scale(meters float64) float64 {
	return Round2(meters * u.Multiplier())
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ValidLngLat reports whether the pair is a finite GeoJSON position.
func ValidLngLat(lng, lat float64) bool {
	if math.IsNaN(lng) || math.IsNaN(lat) || math.IsInf(lng, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lng >= -180 && lng <= 180 && lat >= -90 && lat <= 90
}

// DistanceMeters is the haversine great-circle distance between two [lng, lat] points.
func DistanceMeters(lng1, lat1, lng2, lat2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lng2 - lng1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)

	// rounding can push a past 1 for antipodal points
	a = math.Min(1, a)

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
