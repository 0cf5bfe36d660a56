// Package geo implements the geo-temporal distance model used by
// deduplication, plus the small amount of planar geometry the rest of the
// pipeline needs (bounding boxes, quadrants, radius queries).
//
// The model maps (latitude, longitude, day) into a normalized 3-space in
// which one Euclidean unit is the duplicate threshold: latitude and
// longitude degrees convert to meters with a flat-Earth approximation at the
// batch's mean latitude, the day count weighs one threshold-day equal to one
// threshold-meter, and each axis is divided by its threshold and by sqrt(3)
// so that a pair spanning the full threshold on every axis at once sits at
// distance exactly 1.0.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// MetersPerDegreeLat is the flat-Earth conversion for latitude degrees.
const MetersPerDegreeLat = 111000.0

// NeighborRadius is the duplicate threshold in normalized space.
const NeighborRadius = 1.0

// Params fixes the normalization for one taxon batch.
type Params struct {
	// SpatialM is the duplicate threshold in meters, > 0.
	SpatialM float64
	// TemporalDays is the duplicate threshold in days, > 0.
	TemporalDays float64
	// MeanLatDeg is the batch's mean latitude, used to scale longitude.
	MeanLatDeg float64
}

// Vector maps a position and flat day count into normalized space.
func (p Params) Vector(lat, lon, day float64) [3]float64 {
	metersPerLon := MetersPerDegreeLat * math.Cos(p.MeanLatDeg*math.Pi/180)
	norm := math.Sqrt(3)
	return [3]float64{
		lat * MetersPerDegreeLat / (p.SpatialM * norm),
		lon * metersPerLon / (p.SpatialM * norm),
		day / (p.TemporalDays * norm),
	}
}

// Distance is the Euclidean distance between two normalized vectors.
func Distance(a, b [3]float64) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	dz := a[2] - b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// MeanLatitude returns the arithmetic mean latitude of the points, 0 for an
// empty slice.
func MeanLatitude(points []orb.Point) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, pt := range points {
		sum += pt.Lat()
	}
	return sum / float64(len(points))
}

// BoundOf returns the bounding box of the points, the zero bound when the
// slice is empty.
func BoundOf(points []orb.Point) orb.Bound {
	if len(points) == 0 {
		return orb.Bound{}
	}
	return orb.MultiPoint(points).Bound()
}

// Quadrant indexes p against a center point: north doubles, east adds one,
// so the quadrants are 0 southwest, 1 southeast, 2 northwest, 3 northeast.
func Quadrant(p, center orb.Point) int {
	q := 0
	if p.Lat() >= center.Lat() {
		q += 2
	}
	if p.Lon() >= center.Lon() {
		q++
	}
	return q
}

// RadiusBound returns the bounding box that circumscribes a circle of the
// given radius around center, for source APIs that only accept box queries.
func RadiusBound(center orb.Point, radiusKM float64) orb.Bound {
	dLat := radiusKM * 1000 / MetersPerDegreeLat
	metersPerLon := MetersPerDegreeLat * math.Cos(center.Lat()*math.Pi/180)
	// Near the poles a degree of longitude shrinks to nothing; span the
	// whole range rather than divide by zero.
	dLon := 180.0
	if metersPerLon > 1 {
		dLon = radiusKM * 1000 / metersPerLon
	}
	return orb.Bound{
		Min: orb.Point{clampLon(center.Lon() - dLon), clampLat(center.Lat() - dLat)},
		Max: orb.Point{clampLon(center.Lon() + dLon), clampLat(center.Lat() + dLat)},
	}
}

// DistanceMeters is the great-circle distance between two points.
func DistanceMeters(a, b orb.Point) float64 {
	return orbgeo.Distance(a, b)
}

func clampLat(v float64) float64 {
	return math.Max(-90, math.Min(90, v))
}

func clampLon(v float64) float64 {
	return math.Max(-180, math.Min(180, v))
}
