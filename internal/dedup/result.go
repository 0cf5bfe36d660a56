package dedup

// TaxonStats mirrors the run totals for one taxon partition.
type TaxonStats struct {
	TaxonName         string  `json:"taxon_name"`
	Original          int     `json:"original"`
	Unique            int     `json:"unique"`
	DuplicatesRemoved int     `json:"duplicates_removed"`
	DedupRate         float64 `json:"dedup_rate"`
}

// Stats summarizes a deduplication run.
type Stats struct {
	TotalOriginal      int                   `json:"total_original"`
	TotalUnique        int                   `json:"total_unique"`
	DuplicatesRemoved  int                   `json:"duplicates_removed"`
	DedupRate          float64               `json:"dedup_rate"`
	WithoutCoordinates int                   `json:"without_coordinates"`
	PerTaxon           map[string]TaxonStats `json:"per_taxon"`
}

// Result is the full outcome of one deduplication run. Individuals are
// ordered by taxon ID then cluster index, and the per-taxon map is keyed by
// decimal taxon ID, so JSON encoding is deterministic.
type Result struct {
	Individuals []UniqueIndividual `json:"individuals"`
	Stats       Stats              `json:"stats"`
}

// rate guards the removed/original ratio against an empty input.
func rate(removed, original int) float64 {
	if original == 0 {
		return 0
	}
	return float64(removed) / float64(original)
}
