// Package download implements the download subcommand, fetching the photos
// of the deduplicated representatives.
package download

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/averho/wildset/internal/conf"
	"github.com/averho/wildset/internal/dedup"
	"github.com/averho/wildset/internal/pipeline"
)

// Command creates the download command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download photos for the unique individuals",
		Long: `Read individuals.json and download one photo per representative
observation into the image directory, writing the local paths to
image_paths.json. Files already on disk are reused.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var individuals []dedup.UniqueIndividual
			if err := pipeline.ReadArtifact(settings, pipeline.IndividualsFile, &individuals); err != nil {
				return err
			}

			reps := pipeline.Representatives(individuals)
			images, failed, err := pipeline.Download(cmd.Context(), settings, reps)
			if err != nil {
				return err
			}

			if err := pipeline.WriteArtifact(settings, pipeline.ImagePathsFile, images); err != nil {
				return err
			}

			fmt.Printf("Downloaded %d of %d photos to %s (%d failed)\n",
				len(images), len(reps), settings.ImageDir(), failed)
			return nil
		},
	}

	setupFlags(cmd, settings)
	return cmd
}

// setupFlags configures flags specific to the download command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().StringVar(&settings.Download.Dir, "dir", settings.Download.Dir, "Photo directory, empty = <data-dir>/images")
	cmd.Flags().StringVar(&settings.Download.Size, "size", settings.Download.Size, "Photo size: square, small, medium, large, original")
	cmd.Flags().IntVar(&settings.Download.Workers, "workers", settings.Download.Workers, "Concurrent downloads")
}
