// Package geo computes great-circle distances between locations.
package geo

import (
	"math"

	"github.com/golang/geo/s2"

	"itincal/internal/model"
)

// EarthRadiusKm is the mean radius of Earth in kilometers.
const EarthRadiusKm = 6371.0

// Unreachable is returned for invalid coordinates so ranking can continue.
var Unreachable = math.Inf(1)

// Calculator computes distances, optionally memoizing them in a Cache.
// A nil Cache disables memoization.
type Calculator struct {
	Cache *Cache
	// UseFormula selects the plain haversine path instead of s2.
	UseFormula bool
}

// NewCalculator returns a Calculator backed by cache.
func NewCalculator(cache *Cache) *Calculator {
	return &Calculator{Cache: cache}
}

// Distance returns the great-circle distance between a and b in kilometers,
// or Unreachable if either location lacks valid coordinates.
func (c *Calculator) Distance(a, b model.Location) float64 {
	if !a.Valid() || !b.Valid() {
		return Unreachable
	}
	if c == nil {
		return S2Distance(a, b)
	}

	var k key
	if c.Cache != nil {
		k = makeKey(a, b)
		if d, ok := c.Cache.get(k); ok {
			return d
		}
	}

	var d float64
	if c.UseFormula {
		d = Haversine(a, b)
	} else {
		d = S2Distance(a, b)
	}

	if c.Cache != nil {
		c.Cache.add(k, d)
	}
	return d
}

// S2Distance computes the distance on the s2 sphere model.
func S2Distance(a, b model.Location) float64 {
	pa := s2.LatLngFromDegrees(a.Latitude, a.Longitude)
	pb := s2.LatLngFromDegrees(b.Latitude, b.Longitude)
	return pa.Distance(pb).Radians() * EarthRadiusKm
}

// Haversine returns the great-circle distance between two points in kilometers.
func Haversine(a, b model.Location) float64 {
	dLat := degToRad(b.Latitude - a.Latitude)
	dLon := degToRad(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat +
		math.Cos(degToRad(a.Latitude))*math.Cos(degToRad(b.Latitude))*sinLon*sinLon

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(math.Min(1, h)))
}

func degToRad(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}
