// Package organizer materializes a curated dataset on disk, one directory
// per species, with a manifest describing every image.
package organizer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/averho/wildset/internal/dedup"
	"github.com/averho/wildset/internal/errors"
	"github.com/averho/wildset/internal/logging"
	"github.com/averho/wildset/internal/selection"
)

// Package-level logger specific to dataset assembly
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := "logs/organizer.log"
	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "organizer", serviceLevelVar)
	if err != nil || logger == nil {
		logger = logging.DiscardLogger("organizer")
		closeLogger = func() error { return nil }
	}
}

// Config bundles organizer settings.
type Config struct {
	// Dir is the dataset root directory.
	Dir string
}

// ManifestEntry describes one image placed in the dataset.
type ManifestEntry struct {
	ObservationID int64   `json:"observation_id"`
	TaxonID       int64   `json:"taxon_id"`
	TaxonName     string  `json:"taxon_name"`
	ObservedOn    string  `json:"observed_on,omitempty"`
	File          string  `json:"file"`
	Quality       float64 `json:"quality"`
}

// Manifest records what one organizer run produced.
type Manifest struct {
	RunID         string          `json:"run_id"`
	CreatedAt     time.Time       `json:"created_at"`
	Method        string          `json:"method"`
	Species       int             `json:"species"`
	Images        int             `json:"images"`
	MissingImages int             `json:"missing_images"`
	Entries       []ManifestEntry `json:"entries"`
}

// DatasetStats is the statistics payload written beside the manifest.
type DatasetStats struct {
	Selection     selection.Stats `json:"selection"`
	Deduplication *dedup.Stats    `json:"deduplication,omitempty"`
}

// Organizer copies selected images into per-species directories.
type Organizer struct {
	cfg Config
}

// New creates a dataset organizer.
func New(cfg Config) (*Organizer, error) {
	if cfg.Dir == "" {
		return nil, errors.Newf("dataset directory is required").
			Component("organizer").
			Category(errors.CategoryValidation).
			Context("parameter", "dir").
			Build()
	}
	return &Organizer{cfg: cfg}, nil
}

// Build copies the selected observations' images into the dataset tree and
// writes manifest.json and dataset_stats.json. images maps observation IDs
// to local files; observations whose image is missing are counted and
// skipped, not fatal. dedupStats may be nil.
func (o *Organizer) Build(ctx context.Context, result *selection.Result, dedupStats *dedup.Stats, images map[int64]string) (*Manifest, error) {
	if err := os.MkdirAll(o.cfg.Dir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("organizer").
			Category(errors.CategoryFileIO).
			Context("operation", "create_dataset_directory").
			Context("dir", o.cfg.Dir).
			Build()
	}

	manifest := &Manifest{
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Method:    result.Stats.Method,
		Entries:   []ManifestEntry{},
	}

	taxonIDs := make([]int64, 0, len(result.ByTaxon))
	for key := range result.ByTaxon {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, errors.Newf("malformed taxon key %q in selection result", key).
				Component("organizer").
				Category(errors.CategoryValidation).
				Build()
		}
		taxonIDs = append(taxonIDs, id)
	}
	sort.Slice(taxonIDs, func(i, j int) bool { return taxonIDs[i] < taxonIDs[j] })

	for _, taxonID := range taxonIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		selected := result.ByTaxon[strconv.FormatInt(taxonID, 10)]
		if len(selected) == 0 {
			continue
		}

		dirName := speciesDir(selected[0].Taxon.DisplayName(), taxonID)
		speciesPath := filepath.Join(o.cfg.Dir, dirName)
		if err := os.MkdirAll(speciesPath, 0o755); err != nil {
			return nil, errors.New(err).
				Component("organizer").
				Category(errors.CategoryFileIO).
				Context("operation", "create_species_directory").
				Context("dir", speciesPath).
				Build()
		}
		manifest.Species++

		for i := range selected {
			observation := &selected[i]
			src, ok := images[observation.ID]
			if !ok {
				manifest.MissingImages++
				logger.Warn("no image for selected observation",
					"observation_id", observation.ID,
					"taxon", dirName)
				continue
			}

			dst := filepath.Join(speciesPath, filepath.Base(src))
			if err := copyFile(src, dst); err != nil {
				if errors.IsCategory(err, errors.CategoryNotFound) {
					manifest.MissingImages++
					logger.Warn("image file missing on disk",
						"observation_id", observation.ID,
						"path", src)
					continue
				}
				return nil, err
			}

			manifest.Images++
			manifest.Entries = append(manifest.Entries, ManifestEntry{
				ObservationID: observation.ID,
				TaxonID:       taxonID,
				TaxonName:     observation.Taxon.DisplayName(),
				ObservedOn:    observation.ObservedOn,
				File:          filepath.ToSlash(filepath.Join(dirName, filepath.Base(src))),
				Quality:       observation.OverallQuality(),
			})
		}
	}

	if err := writeJSON(filepath.Join(o.cfg.Dir, "manifest.json"), manifest); err != nil {
		return nil, err
	}
	stats := DatasetStats{Selection: result.Stats, Deduplication: dedupStats}
	if err := writeJSON(filepath.Join(o.cfg.Dir, "dataset_stats.json"), stats); err != nil {
		return nil, err
	}

	logger.Info("dataset assembled",
		"run_id", manifest.RunID,
		"dir", o.cfg.Dir,
		"species", manifest.Species,
		"images", manifest.Images,
		"missing_images", manifest.MissingImages)
	return manifest, nil
}

// speciesDir renders a filesystem-safe directory name for a taxon.
func speciesDir(name string, taxonID int64) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '\'':
			b.WriteByte('_')
		}
	}
	safe := strings.Trim(b.String(), "_")
	if safe == "" {
		safe = "taxon"
	}
	return safe + "_" + strconv.FormatInt(taxonID, 10)
}

// copyFile copies src to dst via a temp file so partial copies never land
// under the final name. A missing source maps to a not-found error.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		category := errors.CategoryFileIO
		if os.IsNotExist(err) {
			category = errors.CategoryNotFound
		}
		return errors.New(err).
			Component("organizer").
			Category(category).
			FileContext(src, 0).
			Context("operation", "open_image").
			Build()
	}
	defer func() {
		if err := in.Close(); err != nil {
			logger.Warn("failed to close source image", "path", src, "error", err)
		}
	}()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return errors.New(err).
			Component("organizer").
			Category(errors.CategoryFileIO).
			Context("operation", "create_temp_file").
			Build()
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.New(err).
			Component("organizer").
			Category(errors.CategoryFileIO).
			FileContext(dst, 0).
			Context("operation", "copy_image").
			Build()
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.New(err).
			Component("organizer").
			Category(errors.CategoryFileIO).
			Context("operation", "close_temp_file").
			Build()
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return errors.New(err).
			Component("organizer").
			Category(errors.CategoryFileIO).
			FileContext(dst, 0).
			Context("operation", "finalize_image").
			Build()
	}
	return nil
}

// writeJSON writes v as indented JSON atomically.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.New(err).
			Component("organizer").
			Category(errors.CategoryParsing).
			FileContext(path, 0).
			Context("operation", "encode_json").
			Build()
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".json-*")
	if err != nil {
		return errors.New(err).
			Component("organizer").
			Category(errors.CategoryFileIO).
			Context("operation", "create_temp_file").
			Build()
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.New(err).
			Component("organizer").
			Category(errors.CategoryFileIO).
			FileContext(path, int64(len(data))).
			Context("operation", "write_json").
			Build()
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.New(err).
			Component("organizer").
			Category(errors.CategoryFileIO).
			Context("operation", "close_temp_file").
			Build()
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.New(err).
			Component("organizer").
			Category(errors.CategoryFileIO).
			FileContext(path, int64(len(data))).
			Context("operation", "finalize_json").
			Build()
	}
	return nil
}
