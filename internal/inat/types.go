package inat

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/averho/wildset/internal/geo"
	"github.com/averho/wildset/internal/obs"
)

// SearchParams narrow an observation search. The zero value asks for
// everything the source will return within the pagination window.
type SearchParams struct {
	// TaxonIDs restricts results to these taxa.
	TaxonIDs []int64
	// PlaceID restricts results to a source-defined place.
	PlaceID int64
	// Center and RadiusKM restrict results to a circle, sent to the API as
	// its circumscribing box.
	Center   *orb.Point
	RadiusKM float64
	// QualityGrade filters by the source's vetting grade, e.g. "research".
	QualityGrade string
	// ObservedAfter and ObservedBefore bound the observation date,
	// inclusive, as YYYY-MM-DD.
	ObservedAfter  string
	ObservedBefore string
	// PerPage is the page size, clamped to 1..200.
	PerPage int
	// MaxResults stops pagination early; 0 fetches everything available.
	MaxResults int
}

// page is the search response envelope.
type page struct {
	TotalResults int               `json:"total_results"`
	Page         int               `json:"page"`
	PerPage      int               `json:"per_page"`
	Results      []obs.Observation `json:"results"`
}

// query renders the parameters for one page request. Results are ordered by
// ascending ID so pagination stays stable while new observations arrive.
func (p SearchParams) query(pageNum, perPage int) url.Values {
	v := url.Values{}
	if len(p.TaxonIDs) > 0 {
		ids := make([]string, len(p.TaxonIDs))
		for i, id := range p.TaxonIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		v.Set("taxon_id", strings.Join(ids, ","))
	}
	if p.PlaceID > 0 {
		v.Set("place_id", strconv.FormatInt(p.PlaceID, 10))
	}
	if p.Center != nil && p.RadiusKM > 0 {
		bound := geo.RadiusBound(*p.Center, p.RadiusKM)
		v.Set("swlat", formatCoord(bound.Min.Lat()))
		v.Set("swlng", formatCoord(bound.Min.Lon()))
		v.Set("nelat", formatCoord(bound.Max.Lat()))
		v.Set("nelng", formatCoord(bound.Max.Lon()))
	}
	if p.QualityGrade != "" {
		v.Set("quality_grade", p.QualityGrade)
	}
	if p.ObservedAfter != "" {
		v.Set("d1", p.ObservedAfter)
	}
	if p.ObservedBefore != "" {
		v.Set("d2", p.ObservedBefore)
	}
	v.Set("photos", "true")
	v.Set("order", "asc")
	v.Set("order_by", "id")
	v.Set("per_page", strconv.Itoa(perPage))
	v.Set("page", strconv.Itoa(pageNum))
	return v
}

// fingerprint identifies the search independent of pagination, for caching.
func (p SearchParams) fingerprint(perPage int) string {
	v := p.query(1, perPage)
	v.Del("page")
	return v.Encode()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Error is the error payload the source API returns.
type Error struct {
	Status int    `json:"status"`
	Detail string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("source API error (status %d): %s", e.Status, e.Detail)
}
