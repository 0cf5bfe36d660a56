// Package pipeline wires the dataset curation stages together and owns the
// JSON artifacts the CLI verbs exchange.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/paulmach/orb"

	"github.com/averho/wildset/internal/conf"
	"github.com/averho/wildset/internal/dedup"
	"github.com/averho/wildset/internal/imgfetch"
	"github.com/averho/wildset/internal/inat"
	"github.com/averho/wildset/internal/logging"
	"github.com/averho/wildset/internal/obs"
	"github.com/averho/wildset/internal/organizer"
	"github.com/averho/wildset/internal/quality"
	"github.com/averho/wildset/internal/selection"
	"github.com/averho/wildset/internal/store"
)

// Package-level logger specific to pipeline orchestration
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := "logs/pipeline.log"
	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "pipeline", serviceLevelVar)
	if err != nil || logger == nil {
		logger = logging.DiscardLogger("pipeline")
		closeLogger = func() error { return nil }
	}
}

// Fetch retrieves observations from the configured source, using the
// persistent page cache when enabled. A broken page cache degrades to
// network-only fetching.
func Fetch(ctx context.Context, settings *conf.Settings) ([]obs.Observation, error) {
	var pages inat.PageStore
	if settings.Store.Enabled {
		s, err := store.Open(settings.StorePath())
		if err != nil {
			logger.Warn("page cache unavailable, fetching without it",
				"path", settings.StorePath(), "error", err)
		} else {
			pages = s
			defer func() {
				if _, err := s.Prune(settings.Store.MaxAge); err != nil {
					logger.Warn("page cache prune failed", "error", err)
				}
				if err := s.Close(); err != nil {
					logger.Warn("page cache close failed", "error", err)
				}
			}()
		}
	}

	client, err := inat.NewClient(inat.Config{
		BaseURL:           settings.Source.BaseURL,
		Timeout:           settings.Source.Timeout,
		RequestsPerMinute: settings.Source.RateLimitPerMinute,
		CacheTTL:          settings.Source.CacheTTL,
		PageMaxAge:        settings.Store.MaxAge,
	}, pages)
	if err != nil {
		return nil, err
	}
	client.SetDebug(settings.Debug)

	params := inat.SearchParams{
		TaxonIDs:       settings.Fetch.TaxonIDs,
		PlaceID:        settings.Fetch.PlaceID,
		RadiusKM:       settings.Fetch.RadiusKM,
		QualityGrade:   settings.Fetch.QualityGrade,
		ObservedAfter:  settings.Fetch.ObservedAfter,
		ObservedBefore: settings.Fetch.ObservedBefore,
		PerPage:        settings.Source.PerPage,
		MaxResults:     settings.Source.MaxResults,
	}
	if settings.Fetch.RadiusKM > 0 {
		center := orb.Point{settings.Fetch.CenterLon, settings.Fetch.CenterLat}
		params.Center = &center
	}

	return client.FetchObservations(ctx, params)
}

// Dedup groups observations into unique individuals.
func Dedup(settings *conf.Settings, observations []obs.Observation) (*dedup.Result, error) {
	d, err := dedup.New(settings.Dedup.SpatialThresholdM,
		settings.Dedup.TemporalThresholdDays,
		settings.Dedup.MinClusterSize)
	if err != nil {
		return nil, err
	}
	return d.Run(observations), nil
}

// Representatives extracts the best observation of every unique individual,
// in individual order.
func Representatives(individuals []dedup.UniqueIndividual) []obs.Observation {
	reps := make([]obs.Observation, 0, len(individuals))
	for i := range individuals {
		reps = append(reps, individuals[i].Best)
	}
	return reps
}

// Download fetches one photo per observation into the configured image
// directory, reusing files already on disk.
func Download(ctx context.Context, settings *conf.Settings, observations []obs.Observation) (map[int64]string, int, error) {
	d, err := imgfetch.New(imgfetch.Config{
		Dir:          settings.ImageDir(),
		Size:         settings.Download.Size,
		Workers:      settings.Download.Workers,
		Timeout:      settings.Download.Timeout,
		SkipExisting: true,
	})
	if err != nil {
		return nil, 0, err
	}
	return d.Download(ctx, observations)
}

// Score attaches sidecar quality scores to the observations whose images
// were downloaded.
func Score(ctx context.Context, settings *conf.Settings, observations []obs.Observation, images map[int64]string) ([]obs.Observation, int, error) {
	analyzer := &quality.FileAnalyzer{Suffix: settings.Quality.SidecarSuffix}
	return quality.AttachScores(ctx, analyzer, observations, images, settings.Quality.Workers)
}

// Pick selects representative samples per species.
func Pick(settings *conf.Settings, candidates []obs.Observation) (*selection.Result, error) {
	cfg := selection.Config{
		Method:           settings.Selection.Method,
		TargetPerSpecies: settings.Selection.TargetPerSpecies,
		MinPerSpecies:    settings.Selection.MinPerSpecies,
		Balance:          settings.Selection.Balance,
	}
	if settings.Selection.Seed != 0 {
		seed := settings.Selection.Seed
		cfg.Seed = &seed
	}
	sel, err := selection.New(cfg)
	if err != nil {
		return nil, err
	}
	return sel.Select(candidates), nil
}

// Organize copies the selected images into the dataset tree and writes the
// manifest and statistics files. dedupStats may be nil when deduplication
// statistics are not available.
func Organize(ctx context.Context, settings *conf.Settings, result *selection.Result, dedupStats *dedup.Stats, images map[int64]string) (*organizer.Manifest, error) {
	org, err := organizer.New(organizer.Config{Dir: settings.DatasetDir()})
	if err != nil {
		return nil, err
	}
	return org.Build(ctx, result, dedupStats, images)
}
