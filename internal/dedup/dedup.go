// Package dedup collapses near-duplicate observations into one
// representative per inferred physical individual. Observations of the same
// taxon cluster by density over a normalized geo-temporal space; each
// cluster elects the member that best represents it.
package dedup

import (
	"log/slog"
	"maps"
	"slices"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/averho/wildset/internal/errors"
	"github.com/averho/wildset/internal/geo"
	"github.com/averho/wildset/internal/logging"
	"github.com/averho/wildset/internal/obs"
)

// Package-level logger for the dedup service
var (
	logger   *slog.Logger
	levelVar = new(slog.LevelVar)
)

func init() {
	var err error
	levelVar.Set(slog.LevelDebug)
	logger, _, err = logging.NewFileLogger("logs/dedup.log", "dedup", levelVar)
	if err != nil {
		logging.Error("Failed to initialize dedup file logger", "error", err)
		logger = logging.DiscardLogger("dedup")
	}
}

// Phase tracks the orchestrator through one run.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePartitionedByTaxon
	PhaseClusteredPerTaxon
	PhaseRepresentativesChosen
	PhaseAggregated
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePartitionedByTaxon:
		return "partitioned-by-taxon"
	case PhaseClusteredPerTaxon:
		return "clustered-per-taxon"
	case PhaseRepresentativesChosen:
		return "representatives-chosen"
	case PhaseAggregated:
		return "aggregated"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Deduplicator drives deduplication over an in-memory batch. It performs no
// I/O and never retries; once constructed, a run can only succeed.
type Deduplicator struct {
	spatialM       float64
	temporalDays   float64
	minClusterSize int
	phase          Phase
	log            *slog.Logger
}

// New validates the thresholds and returns a ready Deduplicator. Two
// observations of the same taxon are duplicate candidates when they are
// within spatialM meters and temporalDays days of each other.
func New(spatialM, temporalDays float64, minClusterSize int) (*Deduplicator, error) {
	switch {
	case spatialM <= 0:
		return nil, errors.Newf("spatial threshold must be positive, got %g", spatialM).
			Component("dedup").
			Category(errors.CategoryValidation).
			Context("parameter", "spatial_threshold_m").
			Build()
	case temporalDays <= 0:
		return nil, errors.Newf("temporal threshold must be positive, got %g", temporalDays).
			Component("dedup").
			Category(errors.CategoryValidation).
			Context("parameter", "temporal_threshold_days").
			Build()
	case minClusterSize < 1:
		return nil, errors.Newf("minimum cluster size must be at least 1, got %d", minClusterSize).
			Component("dedup").
			Category(errors.CategoryValidation).
			Context("parameter", "min_cluster_size").
			Build()
	}
	return &Deduplicator{
		spatialM:       spatialM,
		temporalDays:   temporalDays,
		minClusterSize: minClusterSize,
		phase:          PhaseIdle,
		log:            logger,
	}, nil
}

// Phase reports where the orchestrator currently is.
func (d *Deduplicator) Phase() Phase {
	return d.phase
}

// Run deduplicates the batch and returns every individual plus run
// statistics. The input is read, never written; all outputs are built fresh.
// Reruns over the same input and parameters produce identical results.
// Malformed records degrade (no coordinates, no date) instead of failing.
func (d *Deduplicator) Run(observations []obs.Observation) *Result {
	d.phase = PhaseIdle

	byTaxon := make(map[int64][]obs.Observation)
	for i := range observations {
		id := observations[i].Taxon.ID
		byTaxon[id] = append(byTaxon[id], observations[i])
	}
	taxa := slices.Sorted(maps.Keys(byTaxon))
	d.phase = PhasePartitionedByTaxon

	// Partitions are independent: nothing here is shared between taxa, and
	// the taxon-ascending merge order fixes the global ordering regardless
	// of how the partitions were produced.
	groupsByTaxon := make(map[int64][][]obs.Observation, len(byTaxon))
	withoutCoords := 0
	for _, taxonID := range taxa {
		groups, skipped := d.clusterTaxon(byTaxon[taxonID])
		groupsByTaxon[taxonID] = groups
		withoutCoords += skipped
		d.log.Debug("clustered taxon",
			"taxon_id", taxonID,
			"original", len(byTaxon[taxonID]),
			"clusters", len(groups),
			"without_coordinates", skipped)
	}
	d.phase = PhaseClusteredPerTaxon

	total := 0
	for _, taxonID := range taxa {
		total += len(groupsByTaxon[taxonID])
	}
	individuals := make([]UniqueIndividual, 0, total)
	for _, taxonID := range taxa {
		name := byTaxon[taxonID][0].Taxon.DisplayName()
		for clusterIndex, members := range groupsByTaxon[taxonID] {
			individuals = append(individuals, newIndividual(taxonID, name, clusterIndex, members))
		}
	}
	d.phase = PhaseRepresentativesChosen

	stats := Stats{
		WithoutCoordinates: withoutCoords,
		PerTaxon:           make(map[string]TaxonStats, len(taxa)),
	}
	for _, taxonID := range taxa {
		original := len(byTaxon[taxonID])
		unique := len(groupsByTaxon[taxonID])
		stats.PerTaxon[strconv.FormatInt(taxonID, 10)] = TaxonStats{
			TaxonName:         byTaxon[taxonID][0].Taxon.DisplayName(),
			Original:          original,
			Unique:            unique,
			DuplicatesRemoved: original - unique,
			DedupRate:         rate(original-unique, original),
		}
		stats.TotalOriginal += original
		stats.TotalUnique += unique
	}
	stats.DuplicatesRemoved = stats.TotalOriginal - stats.TotalUnique
	stats.DedupRate = rate(stats.DuplicatesRemoved, stats.TotalOriginal)
	d.phase = PhaseAggregated

	result := &Result{Individuals: individuals, Stats: stats}
	d.phase = PhaseDone
	d.log.Info("deduplication complete",
		"total_original", stats.TotalOriginal,
		"total_unique", stats.TotalUnique,
		"dedup_rate", stats.DedupRate,
		"taxa", len(taxa))
	return result
}

// clusterTaxon clusters one taxon's observations in input order.
// Observations with no usable coordinates cannot participate; they come back
// as trailing singleton groups and are counted for the statistics.
func (d *Deduplicator) clusterTaxon(batch []obs.Observation) (groups [][]obs.Observation, skipped int) {
	eligible := make([]int, 0, len(batch))
	var withheld []int
	points := make([]orb.Point, 0, len(batch))
	days := make([]float64, 0, len(batch))
	for i := range batch {
		lat, lon, ok := batch[i].Coordinates()
		if !ok {
			withheld = append(withheld, i)
			continue
		}
		day, _ := batch[i].ObservedDay() // undated members sit at day zero
		eligible = append(eligible, i)
		points = append(points, orb.Point{lon, lat})
		days = append(days, day)
	}

	params := geo.Params{
		SpatialM:     d.spatialM,
		TemporalDays: d.temporalDays,
		MeanLatDeg:   geo.MeanLatitude(points),
	}
	vectors := make([][3]float64, len(eligible))
	for i, pt := range points {
		vectors[i] = params.Vector(pt.Lat(), pt.Lon(), days[i])
	}

	labels, count := clusterDense(vectors, d.minClusterSize)
	groups = make([][]obs.Observation, count, count+len(withheld))
	for vi, label := range labels {
		groups[label] = append(groups[label], batch[eligible[vi]])
	}
	for _, i := range withheld {
		groups = append(groups, []obs.Observation{batch[i]})
	}
	return groups, len(withheld)
}
