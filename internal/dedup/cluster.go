package dedup

import "github.com/averho/wildset/internal/geo"

// buildAdjacency precomputes, for every vector, the indexes of the vectors
// within the neighbor radius. Lists are in input order.
func buildAdjacency(vectors [][3]float64) [][]int {
	adjacency := make([][]int, len(vectors))
	for i := range vectors {
		for j := i + 1; j < len(vectors); j++ {
			if geo.Distance(vectors[i], vectors[j]) <= geo.NeighborRadius {
				adjacency[i] = append(adjacency[i], j)
				adjacency[j] = append(adjacency[j], i)
			}
		}
	}
	return adjacency
}

// clusterDense groups the vectors by density: a point whose neighborhood
// (itself included) reaches minSize seeds or extends a cluster, and clusters
// grow transitively through such points. Points left over afterwards become
// singleton clusters, so every point is assigned. Expansion runs over an
// explicit worklist in input order, which makes the labeling deterministic
// for a fixed input order; returns the per-point cluster index and the
// cluster count.
func clusterDense(vectors [][3]float64, minSize int) (labels []int, clusters int) {
	n := len(vectors)
	labels = make([]int, n)
	for i := range labels {
		labels[i] = -1
	}

	adjacency := buildAdjacency(vectors)
	core := make([]bool, n)
	for i := range vectors {
		core[i] = len(adjacency[i])+1 >= minSize
	}

	next := 0
	queue := make([]int, 0, n)
	for i := range vectors {
		if labels[i] != -1 || !core[i] {
			continue
		}
		labels[i] = next
		queue = append(queue[:0], i)
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			for _, q := range adjacency[p] {
				if labels[q] != -1 {
					continue
				}
				labels[q] = next
				// only core points keep the chain growing
				if core[q] {
					queue = append(queue, q)
				}
			}
		}
		next++
	}

	for i := range labels {
		if labels[i] == -1 {
			labels[i] = next
			next++
		}
	}

	return labels, next
}
