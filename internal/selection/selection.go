// Package selection picks a bounded, reproducible, class-balanced subset of
// deduplicated observations for training datasets. Four interchangeable
// strategies rank or sample each species' candidate pool; a species-level
// policy excludes species with too few candidates and can cap every species
// to the smallest included pool.
package selection

import (
	"log/slog"
	"maps"
	"math/rand"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/averho/wildset/internal/errors"
	"github.com/averho/wildset/internal/logging"
	"github.com/averho/wildset/internal/obs"
)

// Package-level logger for the selection service
var (
	logger   *slog.Logger
	levelVar = new(slog.LevelVar)
)

func init() {
	var err error
	levelVar.Set(slog.LevelDebug)
	logger, _, err = logging.NewFileLogger("logs/selection.log", "selection", levelVar)
	if err != nil {
		logging.Error("Failed to initialize selection file logger", "error", err)
		logger = logging.DiscardLogger("selection")
	}
}

// Strategy names accepted by Config.Method.
const (
	MethodQuality    = "quality"
	MethodClustering = "clustering"
	MethodStratified = "stratified"
	MethodRandom     = "random"
)

// Config is the selection policy. A nil Seed asks for the per-process
// default seed, which keeps a run reproducible within the process without
// pinning it across runs.
type Config struct {
	Method           string
	TargetPerSpecies int
	MinPerSpecies    int
	Balance          bool
	Seed             *int64
}

// The default seed is drawn once per process so that selectors constructed
// without an explicit seed still agree with each other for the whole run.
var (
	defaultSeedOnce sync.Once
	defaultSeed     int64
)

func processDefaultSeed() int64 {
	defaultSeedOnce.Do(func() {
		defaultSeed = time.Now().UnixNano()
	})
	return defaultSeed
}

// Selector applies one selection policy. Each instance owns a private
// seeded generator, so concurrent selectors with equal seeds cannot disturb
// each other's draw sequences.
type Selector struct {
	cfg Config
	rng *rand.Rand
	log *slog.Logger
}

// New validates the policy and returns a ready Selector. Configuration
// problems are rejected here, before any candidate is looked at.
func New(cfg Config) (*Selector, error) {
	switch cfg.Method {
	case MethodQuality, MethodClustering, MethodStratified, MethodRandom:
	default:
		return nil, errors.Newf("unknown selection method %q", cfg.Method).
			Component("selection").
			Category(errors.CategoryConfiguration).
			Context("parameter", "method").
			Build()
	}
	switch {
	case cfg.TargetPerSpecies < 1:
		return nil, errors.Newf("target per species must be at least 1, got %d", cfg.TargetPerSpecies).
			Component("selection").
			Category(errors.CategoryConfiguration).
			Context("parameter", "target_per_species").
			Build()
	case cfg.MinPerSpecies < 0:
		return nil, errors.Newf("minimum per species must not be negative, got %d", cfg.MinPerSpecies).
			Component("selection").
			Category(errors.CategoryConfiguration).
			Context("parameter", "min_per_species").
			Build()
	case cfg.MinPerSpecies > cfg.TargetPerSpecies:
		return nil, errors.Newf("minimum per species %d exceeds target %d", cfg.MinPerSpecies, cfg.TargetPerSpecies).
			Component("selection").
			Category(errors.CategoryConfiguration).
			Context("parameter", "min_per_species").
			Build()
	}

	seed := processDefaultSeed()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	return &Selector{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
		log: logger,
	}, nil
}

// Select runs the configured strategy over the candidates and reports the
// outcome. Candidates are read, never written. Species are processed in
// ascending taxon ID order, which also fixes the generator's draw sequence.
func (s *Selector) Select(candidates []obs.Observation) *Result {
	byTaxon := make(map[int64][]obs.Observation)
	for i := range candidates {
		id := candidates[i].Taxon.ID
		byTaxon[id] = append(byTaxon[id], candidates[i])
	}
	taxa := slices.Sorted(maps.Keys(byTaxon))

	result := &Result{
		Selected: []obs.Observation{},
		Excluded: []obs.Observation{},
		ByTaxon:  make(map[string][]obs.Observation),
	}
	result.Stats = Stats{
		Method:          s.cfg.Method,
		TotalCandidates: len(candidates),
		PerSpecies:      make(map[string]SpeciesStats, len(taxa)),
		ExcludedSpecies: make(map[string]Exclusion),
	}

	// Exclusion is terminal: an excluded species contributes nothing no
	// matter the strategy.
	var included []int64
	for _, taxonID := range taxa {
		pool := byTaxon[taxonID]
		if len(pool) < s.cfg.MinPerSpecies {
			key := strconv.FormatInt(taxonID, 10)
			result.Excluded = append(result.Excluded, pool...)
			result.Stats.ExcludedSpecies[key] = Exclusion{
				TaxonName: pool[0].Taxon.DisplayName(),
				Reason:    ReasonInsufficientSamples,
				Available: len(pool),
				Required:  s.cfg.MinPerSpecies,
			}
			s.log.Debug("species excluded",
				"taxon_id", taxonID,
				"available", len(pool),
				"required", s.cfg.MinPerSpecies)
			continue
		}
		included = append(included, taxonID)
	}

	// Balancing caps every species to the smallest included pool, before
	// any strategy runs.
	target := s.cfg.TargetPerSpecies
	if s.cfg.Balance {
		for _, taxonID := range included {
			if n := len(byTaxon[taxonID]); n < target {
				target = n
			}
		}
	}

	for _, taxonID := range included {
		pool := byTaxon[taxonID]
		var chosen []obs.Observation
		switch s.cfg.Method {
		case MethodQuality:
			chosen = selectByQuality(pool, target)
		case MethodClustering:
			chosen = s.selectByClustering(pool, target)
		case MethodStratified:
			chosen = s.selectStratified(pool, target)
		case MethodRandom:
			chosen = s.selectRandom(pool, target)
		}
		key := strconv.FormatInt(taxonID, 10)
		result.ByTaxon[key] = chosen
		result.Selected = append(result.Selected, chosen...)
	}

	s.fillStats(result, byTaxon, taxa)
	s.log.Info("selection complete",
		"method", s.cfg.Method,
		"candidates", result.Stats.TotalCandidates,
		"selected", result.Stats.TotalSelected,
		"species_included", result.Stats.SpeciesIncluded,
		"species_excluded", result.Stats.SpeciesExcluded)
	return result
}

// fillStats completes the per-species and aggregate statistics after the
// strategies have run.
func (s *Selector) fillStats(result *Result, byTaxon map[int64][]obs.Observation, taxa []int64) {
	for _, taxonID := range taxa {
		key := strconv.FormatInt(taxonID, 10)
		pool := byTaxon[taxonID]
		chosen := result.ByTaxon[key]
		var meanQuality float64
		if len(chosen) > 0 {
			for i := range chosen {
				meanQuality += chosen[i].OverallQuality()
			}
			meanQuality /= float64(len(chosen))
		}
		result.Stats.PerSpecies[key] = SpeciesStats{
			TaxonName:   pool[0].Taxon.DisplayName(),
			Candidates:  len(pool),
			Selected:    len(chosen),
			MeanQuality: meanQuality,
		}
	}
	result.Stats.TotalSelected = len(result.Selected)
	result.Stats.SpeciesExcluded = len(result.Stats.ExcludedSpecies)
	result.Stats.SpeciesIncluded = len(taxa) - result.Stats.SpeciesExcluded
}
