package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	seoul = Position{Lat: 37.5665, Lon: 126.9780}
	busan = Position{Lat: 35.1796, Lon: 129.0756}
	jeju  = Position{Lat: 33.4996, Lon: 126.5312}
)

func TestDistanceKm(t *testing.T) {
	t.Run("Seoul to Busan", func(t *testing.T) {
		d := DistanceKm(seoul, busan)
		assert.InDelta(t, 325, d, 5)
	})

	t.Run("Seoul to Jeju", func(t *testing.T) {
		d := DistanceKm(seoul, jeju)
		assert.InDelta(t, 453, d, 5)
	})

	t.Run("zero distance", func(t *testing.T) {
		assert.Zero(t, DistanceKm(seoul, seoul))
	})

	t.Run("symmetric", func(t *testing.T) {
		assert.InDelta(t, DistanceKm(seoul, busan), DistanceKm(busan, seoul), 1e-9)
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		d := DistanceKm(Position{Lat: 0, Lon: 0}, Position{Lat: 1, Lon: 0})
		assert.InDelta(t, 111.2, d, 0.2)
	})
}

func TestInterpolatePosition(t *testing.T) {
	p0 := Position{Lat: 30, Lon: 125}
	p1 := Position{Lat: 34, Lon: 129}

	t.Run("endpoints", func(t *testing.T) {
		assert.Equal(t, p0, InterpolatePosition(p0, p1, 0))
		assert.Equal(t, p1, InterpolatePosition(p0, p1, 1))
	})

	t.Run("midpoint", func(t *testing.T) {
		mid := InterpolatePosition(p0, p1, 0.5)
		assert.InDelta(t, 32, mid.Lat, 1e-9)
		assert.InDelta(t, 127, mid.Lon, 1e-9)
	})
}

func TestInterpolateRadius(t *testing.T) {
	assert.InDelta(t, 300, InterpolateRadius(300, 100, 0), 1e-9)
	assert.InDelta(t, 100, InterpolateRadius(300, 100, 1), 1e-9)
	assert.InDelta(t, 250, InterpolateRadius(300, 100, 0.25), 1e-9)
}
