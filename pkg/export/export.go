package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Format represents an export format
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Entry is one exported recent search. Rank 1 is the most recent.
type Entry struct {
	Rank int    `json:"rank"`
	Term string `json:"term"`
}

// Export writes terms, most recent first, to the writer in the specified
// format
func Export(writer io.Writer, terms []string, format Format) error {
	switch format {
	case FormatText:
		return exportText(terms, writer)
	case FormatJSON:
		return exportJSON(terms, writer)
	case FormatCSV:
		return exportCSV(terms, writer)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// exportText exports terms as plain text (one term per line)
func exportText(terms []string, writer io.Writer) error {
	for _, term := range terms {
		if _, err := fmt.Fprintln(writer, term); err != nil {
			return fmt.Errorf("failed to write entry: %w", err)
		}
	}
	return nil
}

// exportJSON exports terms as a JSON array of ranked entries
func exportJSON(terms []string, writer io.Writer) error {
	// Convert terms to ranked entries
	entries := make([]Entry, len(terms))
	for i, term := range terms {
		entries[i] = Entry{Rank: i + 1, Term: term}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(entries); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

// exportCSV exports terms as CSV with a rank,term header
func exportCSV(terms []string, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)

	// Write header
	if err := csvWriter.Write([]string{"rank", "term"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	// Write entries
	for i, term := range terms {
		if err := csvWriter.Write([]string{strconv.Itoa(i + 1), term}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	// Flush and surface buffered write errors
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// ParseFormat parses a format string
func ParseFormat(s string) (Format, error) {
	switch s {
	case "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown format: %s (supported: text, json, csv)", s)
	}
}
