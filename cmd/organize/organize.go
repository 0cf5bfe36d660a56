// Package organize implements the organize subcommand, assembling the final
// dataset directory from the selection.
package organize

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/averho/wildset/internal/conf"
	"github.com/averho/wildset/internal/dedup"
	"github.com/averho/wildset/internal/errors"
	"github.com/averho/wildset/internal/pipeline"
	"github.com/averho/wildset/internal/selection"
)

// Command creates the organize command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "organize",
		Short: "Assemble the dataset directory from the selection",
		Long: `Read selection.json and image_paths.json and copy the selected images
into one directory per species under the dataset directory, together with
manifest.json and dataset_stats.json.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var result selection.Result
			if err := pipeline.ReadArtifact(settings, pipeline.SelectionFile, &result); err != nil {
				return err
			}
			images := map[int64]string{}
			if err := pipeline.ReadArtifact(settings, pipeline.ImagePathsFile, &images); err != nil {
				return err
			}

			// Dedup statistics enrich the stats file when the dedup stage ran
			var dedupStats *dedup.Stats
			var stats dedup.Stats
			if err := pipeline.ReadArtifact(settings, pipeline.DedupStatsFile, &stats); err == nil {
				dedupStats = &stats
			} else if !errors.IsCategory(err, errors.CategoryNotFound) {
				return err
			}

			manifest, err := pipeline.Organize(cmd.Context(), settings, &result, dedupStats, images)
			if err != nil {
				return err
			}

			fmt.Printf("Assembled dataset %s: %d species, %d images (%d missing) in %s\n",
				manifest.RunID, manifest.Species, manifest.Images,
				manifest.MissingImages, settings.DatasetDir())
			return nil
		},
	}

	setupFlags(cmd, settings)
	return cmd
}

// setupFlags configures flags specific to the organize command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().StringVar(&settings.Output.Dir, "dir", settings.Output.Dir, "Dataset directory, empty = <data-dir>/dataset")
}
