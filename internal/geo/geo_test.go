package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"itincal/internal/model"
)

var (
	nyc      = model.At("City Hall", 40.7128, -74.0060)
	brooklyn = model.At("Williamsburg", 40.7306, -73.9352)
	london   = model.At("London", 51.5074, -0.1278)
)

func TestHaversineKnownDistances(t *testing.T) {
	assert.InDelta(t, 6.3, Haversine(nyc, brooklyn), 0.1)
	assert.InDelta(t, 5570, Haversine(nyc, london), 10)
	assert.Equal(t, 0.0, Haversine(nyc, nyc))
}

func TestS2AgreesWithHaversine(t *testing.T) {
	pairs := [][2]model.Location{
		{nyc, brooklyn},
		{nyc, london},
		{model.At("a", -33.8688, 151.2093), model.At("b", 35.6762, 139.6503)},
		{model.At("a", 0, 179.9), model.At("b", 0, -179.9)},
	}
	for _, p := range pairs {
		assert.InDelta(t, Haversine(p[0], p[1]), S2Distance(p[0], p[1]), 1e-6)
	}
}

func TestDistance_InvalidCoordinatesAreUnreachable(t *testing.T) {
	c := NewCalculator(NewCache(10))

	assert.True(t, math.IsInf(c.Distance(model.At("bad", 95, 0), nyc), 1))
	assert.True(t, math.IsInf(c.Distance(nyc, model.At("bad", 0, 200)), 1))
	assert.True(t, math.IsInf(c.Distance(nyc, model.Location{Name: "no coords"}), 1))
	assert.Equal(t, 0, c.Cache.Len())
}

func TestDistance_CachesSymmetricPairs(t *testing.T) {
	c := NewCalculator(NewCache(10))

	d1 := c.Distance(nyc, brooklyn)
	d2 := c.Distance(brooklyn, nyc)

	assert.Equal(t, d1, d2)
	assert.Equal(t, 1, c.Cache.Len())

	// Differences below the rounding precision hit the same entry.
	c.Distance(model.At("", 40.71280001, -74.0060), brooklyn)
	assert.Equal(t, 1, c.Cache.Len())
}

func TestCache_IsBounded(t *testing.T) {
	c := NewCalculator(NewCache(5))
	for i := 0; i < 50; i++ {
		c.Distance(nyc, model.At("", float64(i)/10, 0))
	}
	assert.Equal(t, 5, c.Cache.Len())

	c.Cache.Purge()
	assert.Equal(t, 0, c.Cache.Len())
}

func TestDistance_FormulaAndNilCalculator(t *testing.T) {
	formula := &Calculator{UseFormula: true}
	var nilCalc *Calculator

	assert.InDelta(t, nilCalc.Distance(nyc, london), formula.Distance(nyc, london), 1e-6)
}

func TestNewCache_DefaultSize(t *testing.T) {
	c := NewCache(0)
	for i := 0; i < DefaultCacheSize+10; i++ {
		c.add(makeKey(nyc, model.At("", float64(i)/1000, 0)), 1)
	}
	assert.Equal(t, DefaultCacheSize, c.Len())
}
