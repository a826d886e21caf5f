// Package picker offers interactive fuzzy selection of recent searches and
// live results.
package picker

import (
	"errors"
	"fmt"
	"strings"

	fuzzyfinder "github.com/ktr0731/go-fuzzyfinder"

	"github.com/spideyz0r/searchbar/pkg/provider"
)

// ErrAborted is returned when the user closes the picker without choosing.
var ErrAborted = errors.New("selection aborted")

// find shows items in the finder and returns the chosen index. Swapped out
// in tests.
var find = func(items []string, opts ...fuzzyfinder.Option) (int, error) {
	return fuzzyfinder.Find(items, func(i int) string { return items[i] }, opts...)
}

// PickRecent lets the user choose one of terms, most recent first.
func PickRecent(terms []string, preFilter string) (string, error) {
	if len(terms) == 0 {
		return "", fmt.Errorf("no recent searches found")
	}

	filtered := terms
	if preFilter != "" {
		filtered = filter(terms, preFilter, func(s string) string { return s })
		if len(filtered) == 0 {
			return "", fmt.Errorf("no recent searches match filter: %s", preFilter)
		}
	}

	idx, err := find(
		filtered,
		fuzzyfinder.WithPromptString("recent> "),
		fuzzyfinder.WithPreviewWindow(func(i, w, h int) string {
			if i == -1 {
				return ""
			}
			return fmt.Sprintf("Search:   %s\nPosition: %d of %d\n", filtered[i], i+1, len(filtered))
		}),
	)
	if err != nil {
		return "", wrap(err)
	}

	return filtered[idx], nil
}

// PickResult lets the user choose one of results.
func PickResult(results []provider.Result, preFilter string) (provider.Result, error) {
	if len(results) == 0 {
		return provider.Result{}, fmt.Errorf("no results found")
	}

	filtered := results
	if preFilter != "" {
		filtered = filter(results, preFilter, func(r provider.Result) string { return r.Title })
		if len(filtered) == 0 {
			return provider.Result{}, fmt.Errorf("no results match filter: %s", preFilter)
		}
	}

	lines := make([]string, len(filtered))
	for i, r := range filtered {
		lines[i] = FormatResult(r)
	}

	idx, err := find(
		lines,
		fuzzyfinder.WithPromptString("result> "),
		fuzzyfinder.WithPreviewWindow(func(i, w, h int) string {
			if i == -1 {
				return ""
			}
			return fmt.Sprintf("Title: %s\nID:    %s\n", filtered[i].Title, filtered[i].ID)
		}),
	)
	if err != nil {
		return provider.Result{}, wrap(err)
	}

	return filtered[idx], nil
}

// FormatResult formats a result for display: title │ id.
func FormatResult(r provider.Result) string {
	return r.Title + " │ " + r.ID
}

// filter keeps the items whose key contains query, ignoring case.
func filter[T any](items []T, query string, key func(T) string) []T {
	query = strings.ToLower(query)
	var out []T
	for _, item := range items {
		if strings.Contains(strings.ToLower(key(item)), query) {
			out = append(out, item)
		}
	}
	return out
}

func wrap(err error) error {
	if errors.Is(err, fuzzyfinder.ErrAbort) {
		return ErrAborted
	}
	return fmt.Errorf("picker failed: %w", err)
}
