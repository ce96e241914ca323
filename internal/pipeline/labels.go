package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"go-cog-pipeline/internal/model"
)

// LabelFunc derives the series label for an item identifier
type LabelFunc func(id string) (string, error)

// LabelsFromRegexp builds a LabelFunc from a pattern matched against each identifier.
//
// The label is, in order of preference:
//   - the "year", "month" and "day" named groups joined as YYYY-MM-DD
//   - the "label" named group
//   - the first capture group
//   - the whole match
func LabelsFromRegexp(pattern string) (LabelFunc, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid label pattern: %w", err)
	}

	names := re.SubexpNames()
	index := func(name string) int {
		for i, n := range names {
			if n == name {
				return i
			}
		}
		return -1
	}
	year, month, day, label := index("year"), index("month"), index("day"), index("label")

	return func(id string) (string, error) {
		m := re.FindStringSubmatch(id)
		if m == nil {
			return "", fmt.Errorf("label pattern %q does not match %s", pattern, id)
		}
		switch {
		case year > 0 && month > 0 && day > 0:
			return strings.Join([]string{m[year], m[month], m[day]}, "-"), nil
		case label > 0:
			return m[label], nil
		case len(m) > 1:
			return m[1], nil
		default:
			return m[0], nil
		}
	}, nil
}

// Items enumerates work items from identifiers, deriving each label with fn
func Items(ids []string, fn LabelFunc) ([]model.WorkItem, error) {
	items := make([]model.WorkItem, 0, len(ids))
	for _, id := range ids {
		label, err := fn(id)
		if err != nil {
			return nil, err
		}
		items = append(items, model.WorkItem{ID: id, Label: label})
	}
	return items, nil
}
