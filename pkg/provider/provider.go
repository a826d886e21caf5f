// Package provider holds the search backends the query controller fetches
// results from.
package provider

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Result is one search hit.
type Result struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
}

// Provider answers search queries. Implementations must honor ctx
// cancellation and may take arbitrarily long.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Func adapts a function to Provider.
type Func func(ctx context.Context, query string) ([]Result, error)

func (f Func) Search(ctx context.Context, query string) ([]Result, error) {
	return f(ctx, query)
}

// WithTimeout bounds every search of p by d. A non-positive d returns p.
func WithTimeout(p Provider, d time.Duration) Provider {
	if d <= 0 {
		return p
	}
	return Func(func(ctx context.Context, query string) ([]Result, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return p.Search(ctx, query)
	})
}

// whitespaceRun matches Unicode spaces such as NBSP as well as ASCII ones.
var whitespaceRun = regexp.MustCompile(`[\s\v\p{Z}\x{FEFF}]+`)

// resultID builds "<index>-<title with whitespace runs replaced by '-'>".
func resultID(index int, title string) string {
	return fmt.Sprintf("%d-%s", index, whitespaceRun.ReplaceAllString(title, "-"))
}
