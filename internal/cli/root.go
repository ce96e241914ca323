package cli

import (
	"context"

	"go-cog-pipeline/internal/config"
	"go-cog-pipeline/pkg/logger"
	"go-cog-pipeline/pkg/metric"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	// cfg is loaded before any subcommand runs
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cog-pipeline",
	Short: "COG Pipeline - bounded fetch-aggregate runs over a TiTiler crop endpoint",
	Long: `COG Pipeline crops a fixed window out of many Cloud-Optimized GeoTIFFs through a
TiTiler crop endpoint, reduces each crop to its masked maximum and returns the values as a
label-sorted time series.

Commands:
- run: execute a run file and print the series
- metadata: print band statistics of one raster
- serve: start the HTTP API`,
	// Don't show usage when there's an error
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file path (API_* environment variables apply either way)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override: DEBUG, INFO, WARN, ERROR")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
	}
	if err := logger.Init(loaded.LogLevel, loaded.Name); err != nil {
		return err
	}
	metric.Init(loaded.StatsdAddr, loaded.Name)
	cfg = loaded
	return nil
}

// Execute adds all child commands to the root command and runs it
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
