// Package fetch implements the fetch subcommand, retrieving observations
// from the configured source into the data directory.
package fetch

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/averho/wildset/internal/conf"
	"github.com/averho/wildset/internal/pipeline"
)

// Command creates the fetch command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch observations from the configured source",
		Long: `Fetch geotagged observations matching the configured taxa, place and
date range, and write them to observations.json in the data directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			observations, err := pipeline.Fetch(cmd.Context(), settings)
			if err != nil {
				return err
			}
			if err := pipeline.WriteArtifact(settings, pipeline.ObservationsFile, observations); err != nil {
				return err
			}
			fmt.Printf("Fetched %d observations to %s\n",
				len(observations), pipeline.ArtifactPath(settings, pipeline.ObservationsFile))
			return nil
		},
	}

	setupFlags(cmd, settings)
	return cmd
}

// setupFlags configures flags specific to the fetch command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().Int64SliceVar(&settings.Fetch.TaxonIDs, "taxon-id", settings.Fetch.TaxonIDs, "Taxon IDs to search, repeatable")
	cmd.Flags().Int64Var(&settings.Fetch.PlaceID, "place-id", settings.Fetch.PlaceID, "Restrict results to a place ID")
	cmd.Flags().Float64Var(&settings.Fetch.CenterLat, "lat", settings.Fetch.CenterLat, "Circle search center latitude")
	cmd.Flags().Float64Var(&settings.Fetch.CenterLon, "lon", settings.Fetch.CenterLon, "Circle search center longitude")
	cmd.Flags().Float64Var(&settings.Fetch.RadiusKM, "radius", settings.Fetch.RadiusKM, "Circle search radius in km, 0 disables")
	cmd.Flags().StringVar(&settings.Fetch.QualityGrade, "quality-grade", settings.Fetch.QualityGrade, "Source vetting grade filter")
	cmd.Flags().StringVar(&settings.Fetch.ObservedAfter, "after", settings.Fetch.ObservedAfter, "Earliest observation date, YYYY-MM-DD")
	cmd.Flags().StringVar(&settings.Fetch.ObservedBefore, "before", settings.Fetch.ObservedBefore, "Latest observation date, YYYY-MM-DD")
	cmd.Flags().IntVar(&settings.Source.MaxResults, "max-results", settings.Source.MaxResults, "Stop after this many results, 0 = no cap")
}
