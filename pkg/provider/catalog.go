package provider

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultLatency is the simulated network delay of the demo catalog.
const DefaultLatency = 500 * time.Millisecond

// DefaultTitles is the demo data source.
var DefaultTitles = []string{
	"React Native Guide", "JavaScript Basics", "Expo Configuration",
	"Animated Components in React", "Styling in Expo", "State Management with Zustand",
	"Networking with Fetch API", "Redux Toolkit Examples", "TypeScript for Beginners",
	"Native Modules Explained", "UI Design Principles", "Component Libraries",
	"Firebase Integration", "GraphQL Queries", "REST API Best Practices",
	"App Deployment Steps", "Performance Optimization", "Debugging Techniques",
	"Data Structures", "Algorithms in JS", "Software Architecture",
	"Project Management Tools", "Agile Development", "Scrum Master Guide",
	"Version Control with Git", "GitHub Collaboration", "CI/CD Pipelines",
	"Docker for Developers", "Kubernetes Overview", "Cloud Computing AWS",
	"Google Cloud Platform", "Microsoft Azure Services",
}

// Catalog searches a fixed list of titles by case-insensitive substring,
// after a simulated delay.
type Catalog struct {
	titles  []string
	latency time.Duration
}

// NewCatalog creates a catalog over titles. A nil titles uses DefaultTitles.
func NewCatalog(titles []string, latency time.Duration) *Catalog {
	if titles == nil {
		titles = DefaultTitles
	}
	return &Catalog{titles: titles, latency: latency}
}

// Search returns the matching titles in catalog order. IDs are numbered by
// position within the result list.
func (c *Catalog) Search(ctx context.Context, query string) ([]Result, error) {
	if query == "" {
		return []Result{}, nil
	}

	if c.latency > 0 {
		timer := time.NewTimer(c.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	lower := strings.ToLower(query)
	results := []Result{}
	for _, title := range c.titles {
		if strings.Contains(strings.ToLower(title), lower) {
			results = append(results, Result{ID: resultID(len(results), title), Title: title})
		}
	}
	return results, nil
}

// LoadCatalog reads titles from a YAML list, or from a plain file with one
// title per line.
func LoadCatalog(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var titles []string
	if err := yaml.Unmarshal(data, &titles); err == nil && len(titles) > 0 {
		return cleanTitles(titles), nil
	}

	return cleanTitles(strings.Split(string(data), "\n")), nil
}

func cleanTitles(lines []string) []string {
	titles := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			titles = append(titles, line)
		}
	}
	return titles
}
