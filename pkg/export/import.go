package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spideyz0r/searchbar/pkg/recent"
)

// sniffSize is how much input DetectFormat looks at.
const sniffSize = 512

// DetectFormat guesses the format of r from its first bytes. It returns a
// reader that still yields the whole input.
func DetectFormat(r io.Reader) (Format, io.Reader, error) {
	br := bufio.NewReaderSize(r, sniffSize)
	head, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", nil, fmt.Errorf("failed to read input: %w", err)
	}

	// JSON starts with an array or an object
	trimmed := bytes.TrimSpace(head)
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		return FormatJSON, br, nil
	}

	// CSV needs a header naming the term column
	firstLine, _, _ := strings.Cut(string(trimmed), "\n")
	firstLine = strings.TrimSpace(firstLine)
	if strings.Contains(firstLine, ",") {
		for _, col := range strings.Split(firstLine, ",") {
			if strings.EqualFold(strings.TrimSpace(col), "term") {
				return FormatCSV, br, nil
			}
		}
	}

	return FormatText, br, nil
}

// Parse reads terms in the given format, most recent first.
func Parse(r io.Reader, format Format) ([]string, error) {
	switch format {
	case FormatText:
		return parseText(r)
	case FormatJSON:
		return parseJSON(r)
	case FormatCSV:
		return parseCSV(r)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// Import adds the terms read from r to store, oldest first, so the store
// ends up in the exported order. It returns the number of terms added.
func Import(ctx context.Context, store *recent.Store, r io.Reader, format Format) (int, error) {
	terms, err := Parse(r, format)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := len(terms) - 1; i >= 0; i-- {
		// Skip empty lines
		if strings.TrimSpace(terms[i]) == "" {
			continue
		}
		store.Add(ctx, terms[i])
		count++
	}
	return count, nil
}

func parseText(r io.Reader) ([]string, error) {
	var terms []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			terms = append(terms, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read text: %w", err)
	}
	return terms, nil
}

// parseJSON accepts the ranked export format, a single entry, or a plain
// array of strings as stored by the recent-searches store.
func parseJSON(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON: %w", err)
	}
	data = bytes.TrimSpace(data)

	// Plain array of strings
	var plain []string
	if err := json.Unmarshal(data, &plain); err == nil {
		return plain, nil
	}

	var entries []Entry
	if len(data) > 0 && data[0] == '{' {
		var single Entry
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
		entries = []Entry{single}
	} else if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return ranked(entries), nil
}

func parseCSV(r io.Reader) ([]string, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	// Locate columns from the header
	termCol, rankCol := -1, -1
	for i, col := range records[0] {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "term":
			termCol = i
		case "rank":
			rankCol = i
		}
	}
	if termCol == -1 {
		return nil, fmt.Errorf("CSV missing required column: term")
	}

	entries := make([]Entry, 0, len(records)-1)
	for i, record := range records[1:] {
		if termCol >= len(record) {
			continue
		}
		// Rows without a usable rank keep file order
		rank := i + 1
		if rankCol != -1 && rankCol < len(record) {
			if n, err := strconv.Atoi(strings.TrimSpace(record[rankCol])); err == nil {
				rank = n
			}
		}
		entries = append(entries, Entry{Rank: rank, Term: record[termCol]})
	}

	return ranked(entries), nil
}

// ranked orders entries by rank, keeping input order for ties.
func ranked(entries []Entry) []string {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Rank < entries[j].Rank
	})
	terms := make([]string, len(entries))
	for i, e := range entries {
		terms[i] = e.Term
	}
	return terms
}
