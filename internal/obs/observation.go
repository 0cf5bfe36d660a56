// Package obs defines the observation records consumed and produced by the
// curation pipeline. Observations are immutable inputs: every stage that
// derives data from them builds new values and never writes back.
package obs

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Taxon identifies the species an observation was recorded under.
type Taxon struct {
	ID                  int64  `json:"id"`
	Name                string `json:"name"`
	PreferredCommonName string `json:"preferred_common_name,omitempty"`
}

// DisplayName returns the common name when present, the scientific name
// otherwise, and "unknown" when the record carries no taxon at all.
func (t Taxon) DisplayName() string {
	switch {
	case t.PreferredCommonName != "":
		return t.PreferredCommonName
	case t.Name != "":
		return t.Name
	default:
		return "unknown"
	}
}

// Dimensions holds the pixel size of a photo as reported by the source.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Photo is one image attached to an observation.
type Photo struct {
	ID                 int64       `json:"id"`
	URL                string      `json:"url"`
	OriginalDimensions *Dimensions `json:"original_dimensions,omitempty"`
}

// Resolution returns width*height in pixels, 0 when dimensions are unknown.
func (p Photo) Resolution() int64 {
	if p.OriginalDimensions == nil {
		return 0
	}
	return int64(p.OriginalDimensions.Width) * int64(p.OriginalDimensions.Height)
}

// Geometry is the GeoJSON-style position some records carry. Coordinates are
// ordered [longitude, latitude].
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// QualityScores are the per-image metrics attached by the quality scorer.
// Each sub-metric is on a 0-100 scale; Blur is inverted when combined.
type QualityScores struct {
	Sharpness    float64 `json:"sharpness"`
	Exposure     float64 `json:"exposure"`
	Contrast     float64 `json:"contrast"`
	Composition  float64 `json:"composition"`
	Blur         float64 `json:"blur"`
	OverallScore float64 `json:"overall_score"`
}

// Coord is a latitude or longitude field that tolerates the shapes the
// source API emits: a JSON number, a quoted number, or null. Content that
// parses to no finite number decodes as unset instead of failing the record.
type Coord struct {
	Value float64
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Coord) UnmarshalJSON(data []byte) error {
	c.Value, c.Set = 0, false
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	c.Value, c.Set = v, true
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c Coord) MarshalJSON() ([]byte, error) {
	if !c.Set {
		return []byte("null"), nil
	}
	return json.Marshal(c.Value)
}

// Observation is one recorded sighting: location, date, photos, engagement
// and, once the scorer has run, quality metrics.
type Observation struct {
	ID            int64          `json:"id"`
	Taxon         Taxon          `json:"taxon"`
	ObservedOn    string         `json:"observed_on,omitempty"`
	Latitude      Coord          `json:"latitude,omitempty"`
	Longitude     Coord          `json:"longitude,omitempty"`
	Geojson       *Geometry      `json:"geojson,omitempty"`
	Location      string         `json:"location,omitempty"`
	Photos        []Photo        `json:"photos,omitempty"`
	FavesCount    int            `json:"faves_count"`
	CommentsCount int            `json:"comments_count"`
	Quality       *QualityScores `json:"quality_metrics,omitempty"`
}

// epoch is the reference day for flat day counts.
var epoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

func validPosition(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Coordinates resolves the observation's position, trying the supported
// shapes in order: direct latitude/longitude fields, the GeoJSON
// [longitude, latitude] pair, then a free-text "lat,lon" string. Each
// candidate must be in valid coordinate range; when all three fail the
// observation has no usable position and is not eligible for clustering.
func (o *Observation) Coordinates() (lat, lon float64, ok bool) {
	if o.Latitude.Set && o.Longitude.Set && validPosition(o.Latitude.Value, o.Longitude.Value) {
		return o.Latitude.Value, o.Longitude.Value, true
	}
	if g := o.Geojson; g != nil && len(g.Coordinates) >= 2 {
		if validPosition(g.Coordinates[1], g.Coordinates[0]) {
			return g.Coordinates[1], g.Coordinates[0], true
		}
	}
	if parts := strings.SplitN(o.Location, ",", 2); len(parts) == 2 {
		plat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		plon, errLon := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if errLat == nil && errLon == nil && validPosition(plat, plon) {
			return plat, plon, true
		}
	}
	return 0, 0, false
}

// observedTime parses ObservedOn as a bare date first, then as RFC 3339.
func (o *Observation) observedTime() (time.Time, bool) {
	s := strings.TrimSpace(o.ObservedOn)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// ObservedDay returns the observation date as a flat day count since
// 1970-01-01 UTC. A flat count deliberately does not wrap at year
// boundaries, so sightings a year apart never look temporally close.
func (o *Observation) ObservedDay() (float64, bool) {
	t, ok := o.observedTime()
	if !ok {
		return 0, false
	}
	day := t.Truncate(24 * time.Hour)
	return math.Floor(day.Sub(epoch).Hours() / 24), true
}

// DayOfYear returns the 1-based day within the observation's year, 0 when
// the date is missing or unparseable.
func (o *Observation) DayOfYear() int {
	t, ok := o.observedTime()
	if !ok {
		return 0
	}
	return t.YearDay()
}

// ObservedMonth returns the 1-12 calendar month, 0 when unparseable.
func (o *Observation) ObservedMonth() int {
	t, ok := o.observedTime()
	if !ok {
		return 0
	}
	return int(t.Month())
}

// BestResolution is the pixel count of the observation's primary photo,
// 0 when it has no photos or the source reported no dimensions.
func (o *Observation) BestResolution() int64 {
	if len(o.Photos) == 0 {
		return 0
	}
	return o.Photos[0].Resolution()
}

// Engagement is the combined favorite and comment count.
func (o *Observation) Engagement() int {
	return o.FavesCount + o.CommentsCount
}

// OverallQuality returns the scorer's composite, 0 until scores are attached.
func (o *Observation) OverallQuality() float64 {
	if o.Quality == nil {
		return 0
	}
	return o.Quality.OverallScore
}
