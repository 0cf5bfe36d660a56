// Package score implements the score subcommand, attaching image quality
// scores to the representative observations.
package score

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/averho/wildset/internal/conf"
	"github.com/averho/wildset/internal/dedup"
	"github.com/averho/wildset/internal/pipeline"
)

// Command creates the score command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Attach quality scores to downloaded photos",
		Long: `Read individuals.json and image_paths.json, load the quality sidecar
file next to each downloaded photo, and write the scored candidates to
candidates.json. Representatives without a photo or sidecar keep no score
and are counted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var individuals []dedup.UniqueIndividual
			if err := pipeline.ReadArtifact(settings, pipeline.IndividualsFile, &individuals); err != nil {
				return err
			}
			images := map[int64]string{}
			if err := pipeline.ReadArtifact(settings, pipeline.ImagePathsFile, &images); err != nil {
				return err
			}

			reps := pipeline.Representatives(individuals)
			candidates, missing, err := pipeline.Score(cmd.Context(), settings, reps, images)
			if err != nil {
				return err
			}

			if err := pipeline.WriteArtifact(settings, pipeline.CandidatesFile, candidates); err != nil {
				return err
			}

			fmt.Printf("Scored %d of %d candidates (%d without scores)\n",
				len(candidates)-missing, len(candidates), missing)
			return nil
		},
	}

	setupFlags(cmd, settings)
	return cmd
}

// setupFlags configures flags specific to the score command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().StringVar(&settings.Quality.SidecarSuffix, "sidecar-suffix", settings.Quality.SidecarSuffix, "Quality sidecar filename suffix")
	cmd.Flags().IntVar(&settings.Quality.Workers, "workers", settings.Quality.Workers, "Concurrent sidecar readers")
}
