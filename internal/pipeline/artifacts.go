package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/averho/wildset/internal/conf"
	"github.com/averho/wildset/internal/errors"
)

// Artifact file names inside the data directory.
const (
	ObservationsFile   = "observations.json"
	IndividualsFile    = "individuals.json"
	DedupStatsFile     = "dedup_stats.json"
	ImagePathsFile     = "image_paths.json"
	CandidatesFile     = "candidates.json"
	SelectionFile      = "selection.json"
	SelectionStatsFile = "selection_stats.json"
)

// ArtifactPath resolves an artifact file inside the data directory.
func ArtifactPath(settings *conf.Settings, name string) string {
	return filepath.Join(settings.Main.DataDir, name)
}

// WriteArtifact writes v as indented JSON into the data directory, creating
// it if needed. The write is atomic.
func WriteArtifact(settings *conf.Settings, name string, v any) error {
	if err := os.MkdirAll(settings.Main.DataDir, 0o755); err != nil {
		return errors.New(err).
			Component("pipeline").
			Category(errors.CategoryFileIO).
			Context("operation", "create_data_directory").
			Context("dir", settings.Main.DataDir).
			Build()
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.New(err).
			Component("pipeline").
			Category(errors.CategoryParsing).
			Context("operation", "encode_artifact").
			Context("artifact", name).
			Build()
	}
	data = append(data, '\n')

	path := ArtifactPath(settings, name)
	tmp, err := os.CreateTemp(settings.Main.DataDir, "."+name+"-*")
	if err != nil {
		return errors.New(err).
			Component("pipeline").
			Category(errors.CategoryFileIO).
			Context("operation", "create_temp_file").
			Context("artifact", name).
			Build()
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.New(err).
			Component("pipeline").
			Category(errors.CategoryFileIO).
			FileContext(path, int64(len(data))).
			Context("operation", "write_artifact").
			Build()
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.New(err).
			Component("pipeline").
			Category(errors.CategoryFileIO).
			Context("operation", "close_temp_file").
			Context("artifact", name).
			Build()
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.New(err).
			Component("pipeline").
			Category(errors.CategoryFileIO).
			FileContext(path, int64(len(data))).
			Context("operation", "finalize_artifact").
			Build()
	}

	logger.Info("artifact written", "artifact", name, "bytes", len(data))
	return nil
}

// ReadArtifact loads a JSON artifact produced by an earlier stage into v.
func ReadArtifact(settings *conf.Settings, name string, v any) error {
	path := ArtifactPath(settings, name)
	data, err := os.ReadFile(path)
	if err != nil {
		category := errors.CategoryFileIO
		if os.IsNotExist(err) {
			category = errors.CategoryNotFound
		}
		return errors.New(err).
			Component("pipeline").
			Category(category).
			FileContext(path, 0).
			Context("operation", "read_artifact").
			Context("artifact", name).
			Build()
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.New(err).
			Component("pipeline").
			Category(errors.CategoryParsing).
			FileContext(path, int64(len(data))).
			Context("operation", "decode_artifact").
			Context("artifact", name).
			Build()
	}
	return nil
}
