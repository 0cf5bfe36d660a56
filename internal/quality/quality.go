// Package quality integrates the external per-image quality scorer: it
// combines sub-metrics into the composite score and attaches score objects
// to observation records. The pixel analysis itself lives outside this
// repository; implementations of Analyzer only deliver its results.
package quality

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/averho/wildset/internal/errors"
	"github.com/averho/wildset/internal/logging"
	"github.com/averho/wildset/internal/obs"
)

// Package-level logger for the quality service
var (
	logger   *slog.Logger
	levelVar = new(slog.LevelVar)
)

func init() {
	var err error
	levelVar.Set(slog.LevelDebug)
	logger, _, err = logging.NewFileLogger("logs/quality.log", "quality", levelVar)
	if err != nil {
		logging.Error("Failed to initialize quality file logger", "error", err)
		logger = logging.DiscardLogger("quality")
	}
}

// Combination weights for the composite score.
const (
	weightSharpness   = 0.30
	weightExposure    = 0.20
	weightContrast    = 0.20
	weightComposition = 0.15
	weightBlur        = 0.15
)

// DefaultSidecarSuffix is appended to an image path to locate its scores.
const DefaultSidecarSuffix = ".quality.json"

// Combine folds the sub-metrics into the 0-100 composite score. Blur
// measures a defect, so it enters inverted.
func Combine(s obs.QualityScores) float64 {
	score := weightSharpness*s.Sharpness +
		weightExposure*s.Exposure +
		weightContrast*s.Contrast +
		weightComposition*s.Composition +
		weightBlur*(100-s.Blur)
	return math.Max(0, math.Min(100, score))
}

// Analyzer scores one image.
type Analyzer interface {
	Analyze(ctx context.Context, imagePath string) (*obs.QualityScores, error)
}

// FileAnalyzer reads the sidecar JSON an external scorer wrote next to each
// image.
type FileAnalyzer struct {
	// Suffix is appended to the image path to form the sidecar path;
	// empty means DefaultSidecarSuffix.
	Suffix string
}

// Analyze loads and validates the sidecar for imagePath. When the sidecar
// carries no composite score, one is combined from the sub-metrics.
func (f *FileAnalyzer) Analyze(ctx context.Context, imagePath string) (*obs.QualityScores, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	suffix := f.Suffix
	if suffix == "" {
		suffix = DefaultSidecarSuffix
	}
	sidecar := imagePath + suffix

	data, err := os.ReadFile(sidecar)
	if err != nil {
		return nil, errors.New(err).
			Component("quality").
			Category(errors.CategoryDataQuality).
			FileContext(sidecar, 0).
			Context("operation", "read_sidecar").
			Build()
	}
	var scores obs.QualityScores
	if err := json.Unmarshal(data, &scores); err != nil {
		return nil, errors.New(err).
			Component("quality").
			Category(errors.CategoryParsing).
			FileContext(sidecar, int64(len(data))).
			Context("operation", "parse_sidecar").
			Build()
	}
	if scores.OverallScore == 0 {
		scores.OverallScore = Combine(scores)
	}
	return &scores, nil
}

// Static serves fixed scores keyed by image path, for tests and dry runs.
type Static struct {
	Scores map[string]obs.QualityScores
}

// Analyze implements Analyzer.
func (s *Static) Analyze(ctx context.Context, imagePath string) (*obs.QualityScores, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores, ok := s.Scores[imagePath]
	if !ok {
		return nil, errors.Newf("no scores for %s", imagePath).
			Component("quality").
			Category(errors.CategoryNotFound).
			Build()
	}
	return &scores, nil
}

// AttachScores scores every observation that has a local image and returns
// new records with the metrics set; the input slice is never modified and
// keeps its order. Scoring failures degrade: the copy keeps nil quality and
// the failure count reports how many. The only error returned is context
// cancellation.
func AttachScores(ctx context.Context, a Analyzer, observations []obs.Observation, paths map[int64]string, workers int) ([]obs.Observation, int, error) {
	scored := make([]obs.Observation, len(observations))
	copy(scored, observations)

	if workers < 1 {
		workers = 1
	}
	var failures atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range scored {
		path, ok := paths[scored[i].ID]
		if !ok {
			failures.Add(1)
			logger.Debug("no image for observation", "observation_id", scored[i].ID)
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := a.Analyze(gctx, path)
			if err != nil {
				failures.Add(1)
				logger.Warn("scoring failed",
					"observation_id", scored[i].ID,
					"image", path,
					"error", err)
				return nil
			}
			scored[i].Quality = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return scored, int(failures.Load()), nil
}
