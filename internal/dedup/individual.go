package dedup

import (
	"fmt"

	"github.com/averho/wildset/internal/obs"
)

// DateRange spans the member observations' dates, empty when no member
// carries a parseable date.
type DateRange struct {
	First string `json:"first,omitempty"`
	Last  string `json:"last,omitempty"`
}

// Centroid is the arithmetic mean of the members' valid coordinates.
type Centroid struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// UniqueIndividual is one inferred physical animal: the cluster of
// observations that probably sighted it and the single observation chosen to
// represent it.
type UniqueIndividual struct {
	ID                string            `json:"id"`
	TaxonID           int64             `json:"taxon_id"`
	TaxonName         string            `json:"taxon_name"`
	Members           []obs.Observation `json:"members"`
	Best              obs.Observation   `json:"best_observation"`
	DuplicatesRemoved int               `json:"duplicates_removed"`
	DateRange         DateRange         `json:"date_range"`
	Centroid          *Centroid         `json:"centroid,omitempty"`
}

// newIndividual assembles an individual from one cluster. The identifier is
// derived from the taxon and the cluster index so reruns over the same input
// name the same individuals.
func newIndividual(taxonID int64, taxonName string, clusterIndex int, members []obs.Observation) UniqueIndividual {
	ind := UniqueIndividual{
		ID:                fmt.Sprintf("%d_%d", taxonID, clusterIndex),
		TaxonID:           taxonID,
		TaxonName:         taxonName,
		Members:           members,
		Best:              pickRepresentative(members),
		DuplicatesRemoved: len(members) - 1,
	}

	for i := range members {
		// ISO dates order lexicographically
		if d := members[i].ObservedOn; d != "" {
			if ind.DateRange.First == "" || d < ind.DateRange.First {
				ind.DateRange.First = d
			}
			if d > ind.DateRange.Last {
				ind.DateRange.Last = d
			}
		}
	}

	var sumLat, sumLon float64
	located := 0
	for i := range members {
		if lat, lon, ok := members[i].Coordinates(); ok {
			sumLat += lat
			sumLon += lon
			located++
		}
	}
	if located > 0 {
		ind.Centroid = &Centroid{
			Lat: sumLat / float64(located),
			Lon: sumLon / float64(located),
		}
	}

	return ind
}
