package selection

import "github.com/averho/wildset/internal/obs"

// ReasonInsufficientSamples is the only exclusion reason currently produced.
const ReasonInsufficientSamples = "insufficient samples"

// SpeciesStats reports one taxon's outcome. MeanQuality is averaged over the
// selected observations, with missing scores counted as zero.
type SpeciesStats struct {
	TaxonName   string  `json:"taxon_name"`
	Candidates  int     `json:"candidates"`
	Selected    int     `json:"selected"`
	MeanQuality float64 `json:"mean_quality"`
}

// Exclusion explains why a taxon contributed nothing to the selection.
type Exclusion struct {
	TaxonName string `json:"taxon_name"`
	Reason    string `json:"reason"`
	Available int    `json:"available"`
	Required  int    `json:"required"`
}

// Stats summarizes a selection run.
type Stats struct {
	Method          string                  `json:"method"`
	TotalCandidates int                     `json:"total_candidates"`
	TotalSelected   int                     `json:"total_selected"`
	SpeciesIncluded int                     `json:"species_included"`
	SpeciesExcluded int                     `json:"species_excluded"`
	PerSpecies      map[string]SpeciesStats `json:"per_species"`
	ExcludedSpecies map[string]Exclusion    `json:"excluded_species"`
}

// Result is the outcome of one selection run. Selected holds the surviving
// observations ordered by taxon ID then strategy order; Excluded holds every
// observation of the excluded species. Maps are keyed by decimal taxon ID,
// so JSON encoding is deterministic.
type Result struct {
	Selected []obs.Observation            `json:"selected"`
	Excluded []obs.Observation            `json:"excluded"`
	ByTaxon  map[string][]obs.Observation `json:"by_taxon"`
	Stats    Stats                        `json:"stats"`
}
