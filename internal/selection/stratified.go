package selection

import (
	"cmp"
	"slices"

	"github.com/paulmach/orb"

	"github.com/averho/wildset/internal/geo"
	"github.com/averho/wildset/internal/obs"
)

// stratumKey places a candidate in one geographic quadrant and one calendar
// month. Month 0 collects candidates without a parseable date.
type stratumKey struct {
	quadrant int
	month    int
}

// selectStratified spreads the selection across geography and season: the
// pool splits into four quadrants around its bounding-box center, each
// subdivided by month, and the target is allocated proportionally to the
// non-empty strata with the remainder going to the largest strata first.
// Within a stratum, candidates are drawn without replacement from the
// selector's generator. Output follows stratum order (quadrant, then month).
func (s *Selector) selectStratified(pool []obs.Observation, n int) []obs.Observation {
	n = min(n, len(pool))

	var located []orb.Point
	for i := range pool {
		if lat, lon, ok := pool[i].Coordinates(); ok {
			located = append(located, orb.Point{lon, lat})
		}
	}
	center := geo.BoundOf(located).Center()

	strata := make(map[stratumKey][]int)
	for i := range pool {
		pt := orb.Point{}
		if lat, lon, ok := pool[i].Coordinates(); ok {
			pt = orb.Point{lon, lat}
		}
		key := stratumKey{
			quadrant: geo.Quadrant(pt, center),
			month:    pool[i].ObservedMonth(),
		}
		strata[key] = append(strata[key], i)
	}

	keys := make([]stratumKey, 0, len(strata))
	for key := range strata {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b stratumKey) int {
		if c := cmp.Compare(a.quadrant, b.quadrant); c != 0 {
			return c
		}
		return cmp.Compare(a.month, b.month)
	})

	// Proportional allocation. The floor never exceeds a stratum's size and
	// leaves a remainder smaller than the stratum count, so handing one
	// extra each to the largest strata always fits.
	alloc := make(map[stratumKey]int, len(keys))
	allocated := 0
	for _, key := range keys {
		share := n * len(strata[key]) / len(pool)
		alloc[key] = share
		allocated += share
	}
	bySize := slices.Clone(keys)
	slices.SortFunc(bySize, func(a, b stratumKey) int {
		if c := cmp.Compare(len(strata[b]), len(strata[a])); c != 0 {
			return c
		}
		if c := cmp.Compare(a.quadrant, b.quadrant); c != 0 {
			return c
		}
		return cmp.Compare(a.month, b.month)
	})
	for i := 0; allocated < n; i++ {
		key := bySize[i%len(bySize)]
		if alloc[key] < len(strata[key]) {
			alloc[key]++
			allocated++
		}
	}

	chosen := make([]obs.Observation, 0, n)
	for _, key := range keys {
		members := strata[key]
		take := alloc[key]
		if take == 0 {
			continue
		}
		for _, p := range s.rng.Perm(len(members))[:take] {
			chosen = append(chosen, pool[members[p]])
		}
	}
	return chosen
}
