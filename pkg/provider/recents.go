package provider

import (
	"context"
	"strings"

	"github.com/spideyz0r/searchbar/pkg/recent"
)

// Recents searches the recent-searches list itself. It works offline and
// answers instantly.
type Recents struct {
	store *recent.Store
}

// NewRecents creates a provider over store.
func NewRecents(store *recent.Store) *Recents {
	return &Recents{store: store}
}

func (r *Recents) Search(ctx context.Context, query string) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.Load(ctx)

	lower := strings.ToLower(query)
	results := []Result{}
	for _, term := range r.store.List() {
		if strings.Contains(strings.ToLower(term), lower) {
			results = append(results, Result{ID: resultID(len(results), term), Title: term})
		}
	}
	return results, nil
}
