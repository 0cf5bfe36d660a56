package selection

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/averho/wildset/internal/obs"
)

// maxKMeansIterations bounds the refinement loop; assignments almost always
// stabilize far earlier on pools of this size.
const maxKMeansIterations = 100

// featureColumns is the per-candidate feature layout: latitude, longitude,
// day of year, quality score, each min-max scaled over the pool.
const featureColumns = 4

// selectByClustering maximizes diversity: it partitions the pool into
// exactly n groups with k-means over geo-temporal-quality features and keeps
// the candidate nearest each group's centroid. Pools no larger than the
// target skip partitioning and are selected whole.
func (s *Selector) selectByClustering(pool []obs.Observation, n int) []obs.Observation {
	if len(pool) <= n {
		return slices.Clone(pool)
	}

	features := clusterFeatures(pool)
	assign, centroids := s.kmeans(features, n)

	// Nearest member to each centroid; distance ties break to the lowest
	// observation ID.
	nearest := make([]int, n)
	nearestDist := make([]float64, n)
	for c := range nearest {
		nearest[c] = -1
		nearestDist[c] = math.Inf(1)
	}
	for i := range pool {
		c := assign[i]
		d := rowDistSq(features, i, centroids, c)
		if d < nearestDist[c] ||
			(d == nearestDist[c] && nearest[c] >= 0 && pool[i].ID < pool[nearest[c]].ID) {
			nearest[c] = i
			nearestDist[c] = d
		}
	}

	chosen := make([]obs.Observation, 0, n)
	taken := make(map[int]bool, n)
	for c := range nearest {
		if nearest[c] < 0 {
			continue
		}
		chosen = append(chosen, pool[nearest[c]])
		taken[nearest[c]] = true
	}

	// Empty clusters can leave the selection short; top up by quality rank.
	if len(chosen) < n {
		var rest []obs.Observation
		for i := range pool {
			if !taken[i] {
				rest = append(rest, pool[i])
			}
		}
		chosen = append(chosen, selectByQuality(rest, n-len(chosen))...)
	}
	return chosen
}

// clusterFeatures builds the scaled feature matrix for one pool. Candidates
// without coordinates sit at the origin before scaling; a dimension with no
// spread scales to zero.
func clusterFeatures(pool []obs.Observation) *mat.Dense {
	rows := len(pool)
	cols := make([][]float64, featureColumns)
	for c := range cols {
		cols[c] = make([]float64, rows)
	}
	for i := range pool {
		if lat, lon, ok := pool[i].Coordinates(); ok {
			cols[0][i] = lat
			cols[1][i] = lon
		}
		cols[2][i] = float64(pool[i].DayOfYear())
		cols[3][i] = pool[i].OverallQuality()
	}
	data := make([]float64, rows*featureColumns)
	for c := range cols {
		scaleColumn(cols[c])
		for i, v := range cols[c] {
			data[i*featureColumns+c] = v
		}
	}
	return mat.NewDense(rows, featureColumns, data)
}

// scaleColumn min-max scales in place; a flat column becomes all zeros.
func scaleColumn(values []float64) {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		for i := range values {
			values[i] = 0
		}
		return
	}
	for i, v := range values {
		values[i] = (v - lo) / (hi - lo)
	}
}

// kmeans clusters the rows of data into k groups. Seeding follows
// k-means++: the first centroid is a uniform draw from the selector's
// generator, each further centroid a draw weighted by squared distance to
// the nearest centroid so far. Assignment ties go to the lowest cluster
// index, and a cluster that loses all members keeps its previous centroid.
// The loop stops when assignments stabilize.
func (s *Selector) kmeans(data *mat.Dense, k int) (assign []int, centroids *mat.Dense) {
	rows, cols := data.Dims()
	centroids = mat.NewDense(k, cols, nil)

	centroids.SetRow(0, mat.Row(nil, s.rng.Intn(rows), data))
	minDistSq := make([]float64, rows)
	for i := range minDistSq {
		minDistSq[i] = math.Inf(1)
	}
	for c := 1; c < k; c++ {
		var total float64
		for i := range minDistSq {
			if d := rowDistSq(data, i, centroids, c-1); d < minDistSq[i] {
				minDistSq[i] = d
			}
			total += minDistSq[i]
		}
		idx := 0
		if total > 0 {
			r := s.rng.Float64() * total
			var cum float64
			idx = rows - 1
			for i, d := range minDistSq {
				cum += d
				if cum >= r {
					idx = i
					break
				}
			}
		} else {
			// all points coincide with a centroid already
			idx = s.rng.Intn(rows)
		}
		centroids.SetRow(c, mat.Row(nil, idx, data))
	}

	assign = make([]int, rows)
	prev := make([]int, rows)
	for i := range prev {
		prev[i] = -1
	}
	sums := mat.NewDense(k, cols, nil)
	counts := make([]int, k)
	for iter := 0; iter < maxKMeansIterations; iter++ {
		changed := false
		for i := 0; i < rows; i++ {
			best, bestD := 0, math.Inf(1)
			for c := 0; c < k; c++ {
				if d := rowDistSq(data, i, centroids, c); d < bestD {
					best, bestD = c, d
				}
			}
			assign[i] = best
			if best != prev[i] {
				changed = true
			}
		}
		if !changed {
			break
		}
		copy(prev, assign)

		sums.Zero()
		for c := range counts {
			counts[c] = 0
		}
		for i := 0; i < rows; i++ {
			c := assign[i]
			counts[c]++
			for j := 0; j < cols; j++ {
				sums.Set(c, j, sums.At(c, j)+data.At(i, j))
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for j := 0; j < cols; j++ {
				centroids.Set(c, j, sums.At(c, j)/float64(counts[c]))
			}
		}
	}
	return assign, centroids
}

// rowDistSq is the squared Euclidean distance between row i of a and row j
// of b.
func rowDistSq(a *mat.Dense, i int, b *mat.Dense, j int) float64 {
	_, cols := a.Dims()
	var sum float64
	for c := 0; c < cols; c++ {
		d := a.At(i, c) - b.At(j, c)
		sum += d * d
	}
	return sum
}
