package stats

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Stats summarizes the recent-searches list
type Stats struct {
	TotalSearches int
	Capacity      int
	AvgLength     float64
	Longest       string
	Shortest      string
	TopWords      []WordCount
	// LengthDistribution maps a term length in runes to how many terms
	// have it.
	LengthDistribution map[int]int
}

// WordCount represents a word and how many searches contain it
type WordCount struct {
	Word  string
	Count int
}

// Collect gathers statistics over terms, most recent first. capacity is the
// list bound the terms were kept under.
func Collect(terms []string, capacity int) *Stats {
	stats := &Stats{
		Capacity:           capacity,
		LengthDistribution: make(map[int]int),
	}
	if len(terms) == 0 {
		return stats
	}

	stats.TotalSearches = len(terms)
	words := make(map[string]int)
	totalLen := 0

	for i, term := range terms {
		n := utf8.RuneCountInString(term)
		totalLen += n
		stats.LengthDistribution[n]++

		if i == 0 || n > utf8.RuneCountInString(stats.Longest) {
			stats.Longest = term
		}
		if i == 0 || n < utf8.RuneCountInString(stats.Shortest) {
			stats.Shortest = term
		}

		// A word counts once per search.
		seen := make(map[string]bool)
		for _, w := range strings.Fields(strings.ToLower(term)) {
			if !seen[w] {
				seen[w] = true
				words[w]++
			}
		}
	}

	stats.AvgLength = float64(totalLen) / float64(len(terms))

	for w, count := range words {
		stats.TopWords = append(stats.TopWords, WordCount{Word: w, Count: count})
	}
	sort.Slice(stats.TopWords, func(i, j int) bool {
		if stats.TopWords[i].Count != stats.TopWords[j].Count {
			return stats.TopWords[i].Count > stats.TopWords[j].Count
		}
		return stats.TopWords[i].Word < stats.TopWords[j].Word
	})

	return stats
}

// Format formats statistics for display
func (s *Stats) Format(topN int) string {
	if s.TotalSearches == 0 {
		return "No recent searches yet."
	}

	var b strings.Builder
	b.WriteString("searchbar - Recent Search Statistics\n")
	b.WriteString("====================================\n\n")

	fmt.Fprintf(&b, "Recent Searches:  %d of %d\n", s.TotalSearches, s.Capacity)
	fmt.Fprintf(&b, "Avg Length:       %.1f\n", s.AvgLength)
	fmt.Fprintf(&b, "Longest:          %s\n", truncate(s.Longest, 60))
	fmt.Fprintf(&b, "Shortest:         %s\n\n", truncate(s.Shortest, 60))

	if len(s.TopWords) > 0 {
		n := min(topN, len(s.TopWords))
		fmt.Fprintf(&b, "Top %d Words:\n", n)
		b.WriteString("-------------\n")
		for i := 0; i < n; i++ {
			w := s.TopWords[i]
			percentage := float64(w.Count) / float64(s.TotalSearches) * 100
			fmt.Fprintf(&b, "%3d. (%3d | %5.1f%%) %s\n", i+1, w.Count, percentage, truncate(w.Word, 60))
		}
		b.WriteString("\n")
	}

	if len(s.LengthDistribution) > 0 {
		b.WriteString("Searches by Length:\n")
		b.WriteString("-------------------\n")
		b.WriteString(formatLengthDistribution(s.LengthDistribution, s.TotalSearches))
	}

	return b.String()
}

// formatLengthDistribution creates a histogram of term lengths
func formatLengthDistribution(dist map[int]int, total int) string {
	lengths := make([]int, 0, len(dist))
	maxCount := 0
	for length, count := range dist {
		lengths = append(lengths, length)
		if count > maxCount {
			maxCount = count
		}
	}
	sort.Ints(lengths)

	var b strings.Builder
	for _, length := range lengths {
		count := dist[length]

		// Scale to 40 characters max
		barLength := (count * 40) / maxCount

		percentage := float64(count) / float64(total) * 100
		fmt.Fprintf(&b, "%3d (%3d | %5.1f%%) %s\n", length, count, percentage, strings.Repeat("█", barLength))
	}

	return b.String()
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-3]) + "..."
}
