// Package dedup implements the dedup subcommand, collapsing repeated
// sightings of the same individual into unique individuals.
package dedup

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/averho/wildset/internal/conf"
	"github.com/averho/wildset/internal/obs"
	"github.com/averho/wildset/internal/pipeline"
)

// Command creates the dedup command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Group observations into unique individuals",
		Long: `Read observations.json, cluster observations of each species that are
close in space and time, and write the unique individuals with their best
representative to individuals.json plus statistics to dedup_stats.json.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var observations []obs.Observation
			if err := pipeline.ReadArtifact(settings, pipeline.ObservationsFile, &observations); err != nil {
				return err
			}

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

			fmt.Printf("Deduplicated %d observations into %d unique individuals (%.1f%% duplicates)\n",
				result.Stats.TotalOriginal, result.Stats.TotalUnique, result.Stats.DedupRate*100)
			return nil
		},
	}

	setupFlags(cmd, settings)
	return cmd
}

// setupFlags configures flags specific to the dedup command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().Float64Var(&settings.Dedup.SpatialThresholdM, "spatial", settings.Dedup.SpatialThresholdM, "Spatial threshold in meters")
	cmd.Flags().Float64Var(&settings.Dedup.TemporalThresholdDays, "temporal", settings.Dedup.TemporalThresholdDays, "Temporal threshold in days")
	cmd.Flags().IntVar(&settings.Dedup.MinClusterSize, "min-cluster-size", settings.Dedup.MinClusterSize, "Minimum neighborhood size for a core point")
}
