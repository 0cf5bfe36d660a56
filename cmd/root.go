package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	dedupcmd "github.com/averho/wildset/cmd/dedup"
	downloadcmd "github.com/averho/wildset/cmd/download"
	fetchcmd "github.com/averho/wildset/cmd/fetch"
	organizecmd "github.com/averho/wildset/cmd/organize"
	pickcmd "github.com/averho/wildset/cmd/pick"
	pipelinecmd "github.com/averho/wildset/cmd/pipeline"
	scorecmd "github.com/averho/wildset/cmd/score"
	"github.com/averho/wildset/internal/conf"
	"github.com/averho/wildset/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, levelVar *slog.LevelVar, version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wildset",
		Short: "Curate labeled wildlife image datasets from geotagged observations",
		Long: `wildset fetches geotagged wildlife observations, collapses duplicate
sightings of the same individual, and selects a balanced set of
representative images per species. Stages exchange JSON artifacts in the
data directory and can be run one at a time or as a single pipeline.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		fetchcmd.Command(settings),
		dedupcmd.Command(settings),
		downloadcmd.Command(settings),
		scorecmd.Command(settings),
		pickcmd.Command(settings),
		organizecmd.Command(settings),
		pipelinecmd.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Flags may have changed the level after main initialized logging
		level, err := logging.ParseLevel(settings.Main.LogLevel)
		if err != nil {
			return err
		}
		if settings.Debug {
			level = slog.LevelDebug
		}
		levelVar.Set(level)
		return nil
	}

	return rootCmd
}

// setupFlags defines flags shared by every subcommand
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Main.DataDir, "data-dir", settings.Main.DataDir, "Working directory for pipeline artifacts")
	rootCmd.PersistentFlags().StringVar(&settings.Main.LogLevel, "log-level", settings.Main.LogLevel, "Logging level: trace, debug, info, warn, error")
}
