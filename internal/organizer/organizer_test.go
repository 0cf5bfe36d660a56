package organizer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averho/wildset/internal/dedup"
	"github.com/averho/wildset/internal/errors"
	"github.com/averho/wildset/internal/obs"
	"github.com/averho/wildset/internal/selection"
)

// writeImage drops a fake image file and returns its path.
func writeImage(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("image bytes for "+name), 0o644))
	return path
}

func selectedObservation(id, taxonID int64, commonName, observedOn string, quality float64) obs.Observation {
	return obs.Observation{
		ID:         id,
		Taxon:      obs.Taxon{ID: taxonID, Name: "Scientific name", PreferredCommonName: commonName},
		ObservedOn: observedOn,
		Quality:    &obs.QualityScores{OverallScore: quality},
	}
}

func TestNew_RequiresDir(t *testing.T) {
	o, err := New(Config{})

	require.Error(t, err)
	assert.Nil(t, o)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestOrganizer_Build(t *testing.T) {
	srcDir := t.TempDir()
	datasetDir := filepath.Join(t.TempDir(), "dataset")

	kiskadeeA := selectedObservation(101, 1, "Great Kiskadee", "2024-01-15", 88)
	kiskadeeB := selectedObservation(102, 1, "Great Kiskadee", "2024-01-16", 75)
	jaguar := selectedObservation(201, 2, "Jaguar", "2024-02-01", 91)

	result := &selection.Result{
		ByTaxon: map[string][]obs.Observation{
			"1": {kiskadeeA, kiskadeeB},
			"2": {jaguar},
		},
		Stats: selection.Stats{Method: "quality"},
	}
	images := map[int64]string{
		101: writeImage(t, srcDir, "101.jpg"),
		102: writeImage(t, srcDir, "102.jpg"),
		201: writeImage(t, srcDir, "201.jpg"),
	}

	o, err := New(Config{Dir: datasetDir})
	require.NoError(t, err)

	manifest, err := o.Build(context.Background(), result, nil, images)
	require.NoError(t, err)
	require.NotNil(t, manifest)

	require.NoError(t, uuid.Validate(manifest.RunID))
	assert.Equal(t, "quality", manifest.Method)
	assert.Equal(t, 2, manifest.Species)
	assert.Equal(t, 3, manifest.Images)
	assert.Equal(t, 0, manifest.MissingImages)

	// Entries follow taxon order, then selection order within a species.
	require.Len(t, manifest.Entries, 3)
	assert.Equal(t, int64(101), manifest.Entries[0].ObservationID)
	assert.Equal(t, int64(102), manifest.Entries[1].ObservationID)
	assert.Equal(t, int64(201), manifest.Entries[2].ObservationID)
	assert.Equal(t, "great_kiskadee_1/101.jpg", manifest.Entries[0].File)
	assert.Equal(t, "Great Kiskadee", manifest.Entries[0].TaxonName)
	assert.InDelta(t, 88.0, manifest.Entries[0].Quality, 1e-9)

	// The tree holds one directory per species with the copied images.
	for _, entry := range manifest.Entries {
		content, err := os.ReadFile(filepath.Join(datasetDir, filepath.FromSlash(entry.File)))
		require.NoError(t, err)
		assert.NotEmpty(t, content)
	}

	// Both JSON artifacts are written beside the tree.
	var onDisk Manifest
	data, err := os.ReadFile(filepath.Join(datasetDir, "manifest.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, manifest.RunID, onDisk.RunID)
	assert.Len(t, onDisk.Entries, 3)
}

func TestOrganizer_Build_WritesDatasetStats(t *testing.T) {
	srcDir := t.TempDir()
	datasetDir := t.TempDir()

	result := &selection.Result{
		ByTaxon: map[string][]obs.Observation{
			"1": {selectedObservation(101, 1, "Great Kiskadee", "2024-01-15", 88)},
		},
		Stats: selection.Stats{Method: "stratified", TotalSelected: 1},
	}
	images := map[int64]string{101: writeImage(t, srcDir, "101.jpg")}
	dedupStats := &dedup.Stats{TotalOriginal: 4, TotalUnique: 1, DuplicatesRemoved: 3, DedupRate: 0.75}

	o, err := New(Config{Dir: datasetDir})
	require.NoError(t, err)
	_, err = o.Build(context.Background(), result, dedupStats, images)
	require.NoError(t, err)

	var stats DatasetStats
	data, err := os.ReadFile(filepath.Join(datasetDir, "dataset_stats.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &stats))

	assert.Equal(t, "stratified", stats.Selection.Method)
	require.NotNil(t, stats.Deduplication)
	assert.Equal(t, 3, stats.Deduplication.DuplicatesRemoved)
}

func TestOrganizer_Build_OmitsDedupStatsWhenAbsent(t *testing.T) {
	srcDir := t.TempDir()
	datasetDir := t.TempDir()

	result := &selection.Result{
		ByTaxon: map[string][]obs.Observation{
			"1": {selectedObservation(101, 1, "Great Kiskadee", "2024-01-15", 88)},
		},
		Stats: selection.Stats{Method: "quality"},
	}
	images := map[int64]string{101: writeImage(t, srcDir, "101.jpg")}

	o, err := New(Config{Dir: datasetDir})
	require.NoError(t, err)
	_, err = o.Build(context.Background(), result, nil, images)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	data, err := os.ReadFile(filepath.Join(datasetDir, "dataset_stats.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Contains(t, raw, "selection")
	assert.NotContains(t, raw, "deduplication")
}

func TestOrganizer_Build_MissingImages(t *testing.T) {
	srcDir := t.TempDir()
	datasetDir := t.TempDir()

	result := &selection.Result{
		ByTaxon: map[string][]obs.Observation{
			"1": {
				selectedObservation(101, 1, "Great Kiskadee", "2024-01-15", 88),
				selectedObservation(102, 1, "Great Kiskadee", "2024-01-16", 75),
				selectedObservation(103, 1, "Great Kiskadee", "2024-01-17", 60),
			},
		},
		Stats: selection.Stats{Method: "quality"},
	}
	images := map[int64]string{
		101: writeImage(t, srcDir, "101.jpg"),
		// 102 has no image at all; 103 points at a file that is gone.
		103: filepath.Join(srcDir, "vanished.jpg"),
	}

	o, err := New(Config{Dir: datasetDir})
	require.NoError(t, err)

	manifest, err := o.Build(context.Background(), result, nil, images)
	require.NoError(t, err)

	assert.Equal(t, 1, manifest.Images)
	assert.Equal(t, 2, manifest.MissingImages)
	require.Len(t, manifest.Entries, 1)
	assert.Equal(t, int64(101), manifest.Entries[0].ObservationID)
}

func TestOrganizer_Build_NumericTaxonOrder(t *testing.T) {
	srcDir := t.TempDir()
	datasetDir := t.TempDir()

	// Key "10" sorts after "2" numerically even though it precedes it
	// lexicographically.
	result := &selection.Result{
		ByTaxon: map[string][]obs.Observation{
			"10": {selectedObservation(110, 10, "Jaguar", "2024-01-15", 80)},
			"2":  {selectedObservation(102, 2, "Ocelot", "2024-01-15", 70)},
		},
		Stats: selection.Stats{Method: "quality"},
	}
	images := map[int64]string{
		110: writeImage(t, srcDir, "110.jpg"),
		102: writeImage(t, srcDir, "102.jpg"),
	}

	o, err := New(Config{Dir: datasetDir})
	require.NoError(t, err)

	manifest, err := o.Build(context.Background(), result, nil, images)
	require.NoError(t, err)

	require.Len(t, manifest.Entries, 2)
	assert.Equal(t, int64(2), manifest.Entries[0].TaxonID)
	assert.Equal(t, int64(10), manifest.Entries[1].TaxonID)
}

func TestOrganizer_Build_MalformedTaxonKey(t *testing.T) {
	result := &selection.Result{
		ByTaxon: map[string][]obs.Observation{
			"not-a-number": {selectedObservation(101, 1, "Great Kiskadee", "2024-01-15", 88)},
		},
		Stats: selection.Stats{Method: "quality"},
	}

	o, err := New(Config{Dir: t.TempDir()})
	require.NoError(t, err)

	manifest, err := o.Build(context.Background(), result, nil, nil)
	require.Error(t, err)
	assert.Nil(t, manifest)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestOrganizer_Build_EmptySpeciesSkipped(t *testing.T) {
	result := &selection.Result{
		ByTaxon: map[string][]obs.Observation{"1": {}},
		Stats:   selection.Stats{Method: "quality"},
	}

	o, err := New(Config{Dir: t.TempDir()})
	require.NoError(t, err)

	manifest, err := o.Build(context.Background(), result, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, manifest.Species)
	assert.Empty(t, manifest.Entries)
}

func TestOrganizer_Build_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := &selection.Result{
		ByTaxon: map[string][]obs.Observation{
			"1": {selectedObservation(101, 1, "Great Kiskadee", "2024-01-15", 88)},
		},
		Stats: selection.Stats{Method: "quality"},
	}

	o, err := New(Config{Dir: t.TempDir()})
	require.NoError(t, err)

	_, err = o.Build(ctx, result, nil, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSpeciesDir(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		taxon   string
		taxonID int64
		want    string
	}{
		{"spaces_to_underscores", "Great Kiskadee", 1, "great_kiskadee_1"},
		{"hyphens_to_underscores", "Pin-tailed Whydah", 5, "pin_tailed_whydah_5"},
		{"apostrophe", "'Apapane", 7, "apapane_7"},
		{"punctuation_dropped", "St. John's Wort?", 9, "st_john_s_wort_9"},
		{"digits_kept", "Taxon 42", 3, "taxon_42_3"},
		{"nothing_usable", "漢字", 11, "taxon_11"},
		{"empty", "", 13, "taxon_13"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, speciesDir(tt.taxon, tt.taxonID))
		})
	}
}
