package selection

import (
	"cmp"
	"slices"

	"github.com/averho/wildset/internal/obs"
)

// selectByQuality ranks the pool by overall quality score descending and
// takes the top n. Missing scores rank as zero; equal scores order by
// lowest observation ID.
func selectByQuality(pool []obs.Observation, n int) []obs.Observation {
	ranked := slices.Clone(pool)
	slices.SortFunc(ranked, func(a, b obs.Observation) int {
		if c := cmp.Compare(b.OverallQuality(), a.OverallQuality()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	n = min(n, len(ranked))
	return ranked[:n:n]
}

// selectRandom draws n candidates without replacement from the selector's
// private generator, returned in draw order.
func (s *Selector) selectRandom(pool []obs.Observation, n int) []obs.Observation {
	n = min(n, len(pool))
	picks := s.rng.Perm(len(pool))[:n]
	chosen := make([]obs.Observation, 0, n)
	for _, idx := range picks {
		chosen = append(chosen, pool[idx])
	}
	return chosen
}
