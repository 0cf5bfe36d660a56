package geo

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParams_Vector_FullThresholdPairSitsAtOne(t *testing.T) {
	t.Parallel()

	// A pair exactly one threshold apart on every axis at once must land on
	// the neighbor radius, not outside it.
	p := Params{SpatialM: 100, TemporalDays: 1, MeanLatDeg: 0}
	a := p.Vector(0, 0, 0)
	b := p.Vector(100/MetersPerDegreeLat, 100/MetersPerDegreeLat, 1)

	assert.InDelta(t, NeighborRadius, Distance(a, b), 1e-9)
}

func TestParams_Vector_DuplicateCandidates(t *testing.T) {
	t.Parallel()

	// Three sightings near Iguazu, 100 m / 1 day thresholds. A-B are close in
	// space on the same day, A-C close in space a day apart, B-C only reach
	// each other through A.
	p := Params{SpatialM: 100, TemporalDays: 1, MeanLatDeg: -25.690333333333333}
	a := p.Vector(-25.680, -54.450, 19737)
	b := p.Vector(-25.681, -54.451, 19737)
	c := p.Vector(-25.680, -54.449, 19738)

	dAB := Distance(a, b)
	dAC := Distance(a, c)
	dBC := Distance(b, c)

	assert.InDelta(t, 0.8627, dAB, 0.0005)
	assert.InDelta(t, 0.8166, dAC, 0.0005)
	assert.InDelta(t, 1.4416, dBC, 0.0005)

	assert.LessOrEqual(t, dAB, NeighborRadius)
	assert.LessOrEqual(t, dAC, NeighborRadius)
	assert.Greater(t, dBC, NeighborRadius)
}

func TestParams_Vector_ThresholdScaling(t *testing.T) {
	t.Parallel()

	// Doubling a threshold halves distances along its axis, so looser
	// parameters can only pull pairs closer together.
	tight := Params{SpatialM: 100, TemporalDays: 1, MeanLatDeg: 0}
	loose := Params{SpatialM: 200, TemporalDays: 1, MeanLatDeg: 0}

	lat2, lon2 := 0.001, 0.001
	dTight := Distance(tight.Vector(0, 0, 0), tight.Vector(lat2, lon2, 0))
	dLoose := Distance(loose.Vector(0, 0, 0), loose.Vector(lat2, lon2, 0))

	assert.InDelta(t, dTight/2, dLoose, 1e-9)
}

func TestDistance(t *testing.T) {
	t.Parallel()

	a := [3]float64{1, 2, 3}
	b := [3]float64{4, 6, 3}

	assert.InDelta(t, 5.0, Distance(a, b), 1e-9)
	assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-12)
	assert.InDelta(t, 0.0, Distance(a, a), 1e-12)
}

func TestMeanLatitude(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0, MeanLatitude(nil), 1e-9)

	points := []orb.Point{{24.9, 10.0}, {25.1, 20.0}}
	assert.InDelta(t, 15.0, MeanLatitude(points), 1e-9)
}

func TestBoundOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, orb.Bound{}, BoundOf(nil))

	points := []orb.Point{{1, 2}, {3, 4}, {2, 3}}
	bound := BoundOf(points)
	assert.Equal(t, orb.Point{1, 2}, bound.Min)
	assert.Equal(t, orb.Point{3, 4}, bound.Max)
}

func TestQuadrant(t *testing.T) {
	t.Parallel()

	center := orb.Point{0, 0}

	tests := []struct {
		name  string
		point orb.Point
		want  int
	}{
		{"southwest", orb.Point{-1, -1}, 0},
		{"southeast", orb.Point{1, -1}, 1},
		{"northwest", orb.Point{-1, 1}, 2},
		{"northeast", orb.Point{1, 1}, 3},
		{"on_center_counts_northeast", orb.Point{0, 0}, 3},
		{"on_meridian_south", orb.Point{0, -1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Quadrant(tt.point, center))
		})
	}
}

func TestRadiusBound(t *testing.T) {
	t.Parallel()

	center := orb.Point{24.9384, 60.1699}
	bound := RadiusBound(center, 10)

	dLat := 10000 / MetersPerDegreeLat
	assert.InDelta(t, center.Lat()-dLat, bound.Min.Lat(), 1e-9)
	assert.InDelta(t, center.Lat()+dLat, bound.Max.Lat(), 1e-9)

	// At 60 degrees north a longitude degree is shorter, so the box spans
	// more longitude than latitude.
	lonSpan := bound.Max.Lon() - bound.Min.Lon()
	assert.Greater(t, lonSpan, 2*dLat)
	require.True(t, bound.Contains(center))
}

func TestRadiusBound_PoleClamp(t *testing.T) {
	t.Parallel()

	bound := RadiusBound(orb.Point{0, 90}, 1)

	assert.InDelta(t, -180.0, bound.Min.Lon(), 1e-9)
	assert.InDelta(t, 180.0, bound.Max.Lon(), 1e-9)
	assert.InDelta(t, 90.0, bound.Max.Lat(), 1e-9)
	assert.Less(t, bound.Min.Lat(), 90.0)
}

func TestDistanceMeters(t *testing.T) {
	t.Parallel()

	// One degree of latitude on the meridian.
	a := orb.Point{0, 0}
	b := orb.Point{0, 1}
	assert.InDelta(t, 111195, DistanceMeters(a, b), 1500)
}
