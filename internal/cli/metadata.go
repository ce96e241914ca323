package cli

import (
	"encoding/json"
	"fmt"

	"go-cog-pipeline/internal/tiler"

	"github.com/spf13/cobra"
)

var (
	metadataURL      string
	metadataEndpoint string
	metadataPmin     float64
	metadataPmax     float64
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Print band statistics of one raster from the tiling service",
	RunE:  runMetadata,
}

func init() {
	metadataCmd.Flags().StringVar(&metadataURL, "url", "", "Raster URL")
	metadataCmd.Flags().StringVar(&metadataEndpoint, "endpoint", "", "Tiling service URL (default titiler_endpoint)")
	metadataCmd.Flags().Float64Var(&metadataPmin, "pmin", 2, "Lower percentile")
	metadataCmd.Flags().Float64Var(&metadataPmax, "pmax", 98, "Upper percentile")
	_ = metadataCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(metadataCmd)
}

func runMetadata(cmd *cobra.Command, _ []string) error {
	if metadataURL == "" {
		return fmt.Errorf("--url is required")
	}
	endpoint := metadataEndpoint
	if endpoint == "" {
		endpoint = cfg.TitilerEndpoint
	}
	client, err := tiler.NewClient(endpoint, tiler.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return err
	}

	md, err := client.Metadata(cmd.Context(), metadataURL, metadataPmin, metadataPmax)
	if err != nil {
		return fmt.Errorf("metadata request failed: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(md)
}
