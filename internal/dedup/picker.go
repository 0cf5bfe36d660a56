package dedup

import "github.com/averho/wildset/internal/obs"

// Composite weights for representative scoring.
const (
	weightResolution = 0.40
	weightQuality    = 0.30
	weightEngagement = 0.20
	weightRecency    = 0.10
)

// minMaxScale maps values to [0,1] against their own spread. A flat slice
// scales to all ones so a tied sub-metric never zeroes out a member.
func minMaxScale(values []float64) []float64 {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	scaled := make([]float64, len(values))
	if hi == lo {
		for i := range scaled {
			scaled[i] = 1.0
		}
		return scaled
	}
	for i, v := range values {
		scaled[i] = (v - lo) / (hi - lo)
	}
	return scaled
}

// pickRepresentative chooses the member that best represents its cluster,
// weighing photo resolution, quality score, engagement and recency relative
// to the other members. Missing sub-metrics count as zero rather than
// disqualifying a member. Score ties break to the lowest observation ID.
// Pure: reads the members, never writes them.
func pickRepresentative(members []obs.Observation) obs.Observation {
	if len(members) == 1 {
		return members[0]
	}

	n := len(members)
	resolution := make([]float64, n)
	quality := make([]float64, n)
	engagement := make([]float64, n)
	recency := make([]float64, n)
	for i := range members {
		m := &members[i]
		resolution[i] = float64(m.BestResolution())
		quality[i] = m.OverallQuality()
		engagement[i] = float64(m.Engagement())
		if day, ok := m.ObservedDay(); ok {
			recency[i] = day
		}
	}
	resolution = minMaxScale(resolution)
	quality = minMaxScale(quality)
	engagement = minMaxScale(engagement)
	recency = minMaxScale(recency)

	best := 0
	bestScore := -1.0
	for i := range members {
		score := weightResolution*resolution[i] +
			weightQuality*quality[i] +
			weightEngagement*engagement[i] +
			weightRecency*recency[i]
		switch {
		case score > bestScore:
			best, bestScore = i, score
		case score == bestScore && members[i].ID < members[best].ID:
			best = i
		}
	}
	return members[best]
}
