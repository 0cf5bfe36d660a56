// Package pick implements the pick subcommand, selecting representative
// samples per species from the scored candidates.
package pick

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/averho/wildset/internal/conf"
	"github.com/averho/wildset/internal/obs"
	"github.com/averho/wildset/internal/pipeline"
)

// Command creates the pick command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pick",
		Short: "Select representative samples per species",
		Long: `Read candidates.json, exclude species with too few candidates, and
select up to the target number of samples per species with the configured
strategy. Writes the full selection to selection.json and its statistics
to selection_stats.json.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var candidates []obs.Observation
			if err := pipeline.ReadArtifact(settings, pipeline.CandidatesFile, &candidates); err != nil {
				return err
			}

			result, err := pipeline.Pick(settings, candidates)
			if err != nil {
				return err
			}

			if err := pipeline.WriteArtifact(settings, pipeline.SelectionFile, result); err != nil {
				return err
			}
			if err := pipeline.WriteArtifact(settings, pipeline.SelectionStatsFile, result.Stats); err != nil {
				return err
			}

			fmt.Printf("Selected %d of %d candidates across %d species (%d species excluded)\n",
				result.Stats.TotalSelected, result.Stats.TotalCandidates,
				result.Stats.SpeciesIncluded, result.Stats.SpeciesExcluded)
			return nil
		},
	}

	setupFlags(cmd, settings)
	return cmd
}

// setupFlags configures flags specific to the pick command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().StringVar(&settings.Selection.Method, "method", settings.Selection.Method, "Strategy: quality, clustering, stratified, random")
	cmd.Flags().IntVar(&settings.Selection.TargetPerSpecies, "target", settings.Selection.TargetPerSpecies, "Samples to select per species")
	cmd.Flags().IntVar(&settings.Selection.MinPerSpecies, "min", settings.Selection.MinPerSpecies, "Exclude species with fewer candidates")
	cmd.Flags().BoolVar(&settings.Selection.Balance, "balance", settings.Selection.Balance, "Cap every species at the smallest included pool")
	cmd.Flags().Int64Var(&settings.Selection.Seed, "seed", settings.Selection.Seed, "Random seed, 0 picks one per process")
}
