package domain

import "math"

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between two positions using
// the haversine formulation. Accurate to well under the kilometre scale of
// published influence radii; no ellipsoid correction is applied.
func DistanceKm(a, b Position) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// InterpolatePosition linearly interpolates between two positions at
// t in [0,1]. Consecutive bulletins are hours apart, so the small-segment
// tangent-plane approximation is adequate; no great-circle slerp is needed.
func InterpolatePosition(p0, p1 Position, t float64) Position {
	return Position{
		Lat: p0.Lat + (p1.Lat-p0.Lat)*t,
		Lon: p0.Lon + (p1.Lon-p0.Lon)*t,
	}
}

// InterpolateRadius linearly interpolates an influence radius at t in [0,1].
func InterpolateRadius(r0, r1, t float64) float64 {
	return r0 + (r1-r0)*t
}
