package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go-cog-pipeline/internal/model"

	"github.com/rs/zerolog/log"
)

// ExportResult represents the result of an export operation
type ExportResult struct {
	Type        string    `json:"type"` // "csv", "json"
	Path        string    `json:"path"`
	RecordCount int       `json:"record_count"`
	ExportedAt  time.Time `json:"exported_at"`
}

// jsonExport is the document written for .json targets
type jsonExport struct {
	ExportInfo exportInfo          `json:"export_info"`
	Summary    SeriesSummary       `json:"summary"`
	Series     []model.StatSample  `json:"series"`
	Failures   []model.ItemFailure `json:"failures"`
}

type exportInfo struct {
	RunID      string    `json:"run_id"`
	ExportedAt time.Time `json:"exported_at"`
	Submitted  int       `json:"submitted"`
	Succeeded  int       `json:"succeeded"`
	Dropped    int       `json:"dropped"`
}

// ExportSeries writes the label-sorted series of result to path. The format follows the
// extension: .json gets series, failures and a summary, anything else a CSV of the series.
func ExportSeries(path, runID string, result *model.Result) (ExportResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return ExportResult{}, fmt.Errorf("failed to create directory: %w", err)
	}

	series := result.Series()
	exportType := "csv"
	var err error
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		exportType = "json"
		err = exportJSON(path, runID, result, series)
	} else {
		err = exportCSV(path, series)
	}
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Str("path", path).Msg("Export failed")
		return ExportResult{}, err
	}

	log.Info().Str("run_id", runID).Str("path", path).Int("records", len(series)).Msg("Series exported")
	return ExportResult{
		Type:        exportType,
		Path:        path,
		RecordCount: len(series),
		ExportedAt:  time.Now(),
	}, nil
}

func exportCSV(path string, series []model.StatSample) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"label", "item_id", "value"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, s := range series {
		row := []string{s.Label, s.ItemID, strconv.FormatFloat(s.Value, 'g', -1, 64)}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func exportJSON(path, runID string, result *model.Result, series []model.StatSample) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	failures := result.Failures
	if failures == nil {
		failures = []model.ItemFailure{}
	}
	doc := jsonExport{
		ExportInfo: exportInfo{
			RunID:      runID,
			ExportedAt: time.Now().UTC(),
			Submitted:  result.Submitted,
			Succeeded:  len(result.Samples),
			Dropped:    result.Dropped(),
		},
		Summary:  Summarize(series),
		Series:   series,
		Failures: failures,
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
