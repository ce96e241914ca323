package cli

import (
	"context"
	"fmt"

	"go-cog-pipeline/internal/api"
	"go-cog-pipeline/internal/api/handler"
	"go-cog-pipeline/internal/config"
	"go-cog-pipeline/internal/pipeline"
	"go-cog-pipeline/internal/store"
	"go-cog-pipeline/internal/tiler"
	"go-cog-pipeline/pkg/router"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if servePort > 0 {
			cfg.Port = servePort
		}
		return Serve(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// Serve runs the HTTP API until ctx is done. In-progress runs are cancelled and awaited on shutdown.
func Serve(ctx context.Context, cfg *config.Config) error {
	if err := store.InitDB(cfg.DBPath); err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer store.Close()

	runner := pipeline.NewRunner(cfg, pipeline.NewRegistry())
	defer runner.Close()
	if err := runner.Output().EnsureOutputDirExists(); err != nil {
		return err
	}

	client, err := tiler.NewClient(cfg.TitilerEndpoint, tiler.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return err
	}
	runs := handler.NewRunHandler(runner, client)

	r := router.New(router.WithCORS(cfg.CORSOrigins), router.WithCacheControl(cfg.CacheControl))
	api.RegisterRoutes(r, runs)

	err = r.Start(ctx, fmt.Sprintf(":%d", cfg.Port))

	log.Info().Msg("Cancelling in-progress runs")
	runner.Registry().CancelAll()
	runs.Wait()
	return err
}
