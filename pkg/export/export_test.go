package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleTerms = []string{"kubernetes", "docker, compose", "git"}

func TestExportText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, sampleTerms, FormatText))

	assert.Equal(t, "kubernetes\ndocker, compose\ngit\n", buf.String())
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, sampleTerms, FormatJSON))

	var entries []Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entries))
	assert.Equal(t, []Entry{
		{Rank: 1, Term: "kubernetes"},
		{Rank: 2, Term: "docker, compose"},
		{Rank: 3, Term: "git"},
	}, entries)
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, sampleTerms, FormatCSV))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"rank", "term"},
		{"1", "kubernetes"},
		{"2", "docker, compose"},
		{"3", "git"},
	}, records)
}

func TestExportEmpty(t *testing.T) {
	for _, format := range []Format{FormatText, FormatJSON, FormatCSV} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Export(&buf, nil, format))

			terms, err := Parse(&buf, format)
			require.NoError(t, err)
			assert.Empty(t, terms)
		})
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	err := Export(&bytes.Buffer{}, sampleTerms, Format("xml"))
	assert.EqualError(t, err, "unsupported format: xml")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestExportWriteFailure(t *testing.T) {
	for _, format := range []Format{FormatText, FormatJSON, FormatCSV} {
		t.Run(string(format), func(t *testing.T) {
			err := Export(failingWriter{}, sampleTerms, format)
			assert.ErrorContains(t, err, "disk full")
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"text", FormatText, false},
		{"txt", FormatText, false},
		{"json", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"xml", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
