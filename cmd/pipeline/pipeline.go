// Package pipeline implements the pipeline subcommand, running every stage
// in order within one process.
package pipeline

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/averho/wildset/internal/conf"
	"github.com/averho/wildset/internal/pipeline"
)

// Command creates the pipeline command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run fetch, dedup, download, score, pick and organize in order",
		Long: `Run the whole curation pipeline in one process. Every stage still
writes its JSON artifact to the data directory, so individual stages can be
rerun or inspected afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			observations, err := pipeline.Fetch(ctx, settings)
			if err != nil {
				return err
			}
			if err := pipeline.WriteArtifact(settings, pipeline.ObservationsFile, observations); err != nil {
				return err
			}
			fmt.Printf("Fetched %d observations\n", len(observations))

			result, err := pipeline.Dedup(settings, observations)
			if err != nil {
				return err
			}
			if err := pipeline.WriteArtifact(settings, pipeline.IndividualsFile, result.Individuals); err != nil {
				return err
			}
			if err := pipeline.WriteArtifact(settings, pipeline.DedupStatsFile, result.Stats); err != nil {
				return err
			}
			fmt.Printf("Deduplicated to %d unique individuals (%.1f%% duplicates)\n",
				result.Stats.TotalUnique, result.Stats.DedupRate*100)

			reps := pipeline.Representatives(result.Individuals)
			images, failed, err := pipeline.Download(ctx, settings, reps)
			if err != nil {
				return err
			}
			if err := pipeline.WriteArtifact(settings, pipeline.ImagePathsFile, images); err != nil {
				return err
			}
			fmt.Printf("Downloaded %d photos (%d failed)\n", len(images), failed)

			candidates, missing, err := pipeline.Score(ctx, settings, reps, images)
			if err != nil {
				return err
			}
			if err := pipeline.WriteArtifact(settings, pipeline.CandidatesFile, candidates); err != nil {
				return err
			}
			fmt.Printf("Scored candidates (%d without scores)\n", missing)

			selected, err := pipeline.Pick(settings, candidates)
			if err != nil {
				return err
			}
			if err := pipeline.WriteArtifact(settings, pipeline.SelectionFile, selected); err != nil {
				return err
			}
			if err := pipeline.WriteArtifact(settings, pipeline.SelectionStatsFile, selected.Stats); err != nil {
				return err
			}
			fmt.Printf("Selected %d samples across %d species (%d excluded)\n",
				selected.Stats.TotalSelected, selected.Stats.SpeciesIncluded,
				selected.Stats.SpeciesExcluded)

			manifest, err := pipeline.Organize(ctx, settings, selected, &result.Stats, images)
			if err != nil {
				return err
			}
			fmt.Printf("Assembled dataset %s: %d species, %d images in %s\n",
				manifest.RunID, manifest.Species, manifest.Images, settings.DatasetDir())
			return nil
		},
	}

	return cmd
}
