package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go-cog-pipeline/internal/model"

	"github.com/rs/zerolog/log"
)

// ------------------- Item enumeration -------------------

// ErrLocalSourceDenied is returned for a local item source the caller may not read
var ErrLocalSourceDenied = errors.New("local item source not allowed")

// SourceAccess decides which local files an item source may name. http(s) sources are always allowed.
type SourceAccess struct {
	AnyPath bool   // the caller owns the filesystem, e.g. the CLI
	Root    string // otherwise local sources must resolve under Root; empty denies them
}

// Resolve returns the local file to open for pathOrURL, or pathOrURL itself for http(s) sources
func (a SourceAccess) Resolve(pathOrURL string) (string, error) {
	if isHTTPSource(pathOrURL) || a.AnyPath {
		return pathOrURL, nil
	}
	if a.Root == "" {
		return "", fmt.Errorf("%w: %s", ErrLocalSourceDenied, pathOrURL)
	}
	root, err := filepath.Abs(a.Root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve source dir: %w", err)
	}
	path := pathOrURL
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside %s", ErrLocalSourceDenied, pathOrURL, a.Root)
	}
	return path, nil
}

func isHTTPSource(pathOrURL string) bool {
	return strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://")
}

// LoadItems reads the work item list described by src (CSV or JSON, local path or http URL).
// Items without a label get one from src.LabelPattern; an item left without a label is an error.
func LoadItems(ctx context.Context, src model.ItemSource, access SourceAccess) ([]model.WorkItem, error) {
	log.Info().Str("source", src.URL).Str("type", src.Type).Msg("Loading items")

	location, err := access.Resolve(src.URL)
	if err != nil {
		return nil, err
	}
	body, err := openSource(ctx, location)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var items []model.WorkItem
	switch strings.ToLower(src.Type) {
	case "csv":
		items, err = readCSVItems(body)
	case "json":
		items, err = readJSONItems(body)
	default:
		return nil, fmt.Errorf("unknown item source type: %s", src.Type)
	}
	if err != nil {
		return nil, err
	}

	var unlabeled []int
	var ids []string
	for i, item := range items {
		if item.Label == "" {
			unlabeled = append(unlabeled, i)
			ids = append(ids, item.ID)
		}
	}
	if len(unlabeled) > 0 {
		if src.LabelPattern == "" {
			return nil, fmt.Errorf("item %s has no label and no label_pattern is set", ids[0])
		}
		labelFn, err := LabelsFromRegexp(src.LabelPattern)
		if err != nil {
			return nil, err
		}
		labeled, err := Items(ids, labelFn)
		if err != nil {
			return nil, err
		}
		for j, i := range unlabeled {
			items[i] = labeled[j]
		}
	}

	log.Info().Str("source", src.URL).Int("items", len(items)).Msg("Items loaded")
	return items, nil
}

func openSource(ctx context.Context, pathOrURL string) (io.ReadCloser, error) {
	if isHTTPSource(pathOrURL) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pathOrURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to GET item source: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, fmt.Errorf("item source returned status %d", resp.StatusCode)
		}
		return resp.Body, nil
	}

	file, err := os.Open(pathOrURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open item source: %w", err)
	}
	return file, nil
}

// readCSVItems reads "id[,label]" rows. A header row naming an "id" column is honoured,
// otherwise the first column is the id and the second, if any, the label.
func readCSVItems(r io.Reader) ([]model.WorkItem, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV items: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	idCol, labelCol := 0, 1
	headerID, headerLabel := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.Trim(strings.TrimSpace(h), `"`)) {
		case "id", "url", "path":
			headerID = i
		case "label", "date":
			headerLabel = i
		}
	}
	if headerID >= 0 {
		idCol, labelCol = headerID, headerLabel
		rows = rows[1:]
	}

	items := make([]model.WorkItem, 0, len(rows))
	for _, row := range rows {
		if idCol >= len(row) || strings.TrimSpace(row[idCol]) == "" {
			continue
		}
		item := model.WorkItem{ID: strings.TrimSpace(row[idCol])}
		if labelCol >= 0 && labelCol < len(row) && labelCol != idCol {
			item.Label = strings.TrimSpace(row[labelCol])
		}
		items = append(items, item)
	}
	return items, nil
}

// readJSONItems accepts ["id", ...] or [{"id": "...", "label": "..."}, ...]
func readJSONItems(r io.Reader) ([]model.WorkItem, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode JSON items: %w", err)
	}

	items := make([]model.WorkItem, 0, len(raw))
	for _, entry := range raw {
		var id string
		if err := json.Unmarshal(entry, &id); err == nil {
			items = append(items, model.WorkItem{ID: id})
			continue
		}
		var item model.WorkItem
		if err := json.Unmarshal(entry, &item); err != nil {
			return nil, fmt.Errorf("unexpected JSON item %s", string(entry))
		}
		items = append(items, item)
	}
	return items, nil
}
