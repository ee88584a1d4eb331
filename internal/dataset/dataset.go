// Package dataset reads labeled image records from tab-separated tag files.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
)

// ImageRecord is one row of a tag file: an image path, relative to the
// images folder, and its label. Label is empty for unlabeled images.
type ImageRecord struct {
	Path  string `csv:"path"`
	Label string `csv:"label"`
}

// LoadFile reads the tag file at path.
func LoadFile(path string) ([]ImageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tag file: %w", err)
	}
	defer f.Close()

	records, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// Read decodes headerless `<path>\t<label>` rows. Blank lines are skipped;
// any other row must have exactly two non-empty fields. Quotes are taken
// literally and a leading byte order mark is ignored.
func Read(r io.Reader) ([]ImageRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tag rows: %w", err)
	}

	text, lines := quoteFields(strings.TrimPrefix(string(data), "\ufeff"))
	if len(lines) == 0 {
		return nil, ErrEmpty
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = '\t'
	reader.FieldsPerRecord = 2

	var records []ImageRecord
	if err := gocsv.UnmarshalCSVWithoutHeaders(reader, &records); err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedRow, perr.Line, perr.Err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}

	for i := range records {
		records[i].Path = strings.TrimSpace(records[i].Path)
		records[i].Label = strings.TrimSpace(records[i].Label)
		if records[i].Path == "" || records[i].Label == "" {
			return nil, fmt.Errorf("%w: line %d: path and label are required", ErrMalformedRow, lines[i])
		}
	}
	return records, nil
}

// Labels returns the label of every record, in file order.
func Labels(records []ImageRecord) []string {
	labels := make([]string, len(records))
	for i, rec := range records {
		labels[i] = rec.Label
	}
	return labels
}

// quoteFields wraps every tab-separated field in quotes so encoding/csv
// keeps quote characters as data. Line breaks are preserved, so parse errors
// keep their line numbers. It also returns the line number of each non-blank
// line, which is one record each.
func quoteFields(text string) (string, []int) {
	var b strings.Builder
	var lines []int
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			fields := strings.Split(line, "\t")
			for j, f := range fields {
				fields[j] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
			}
			b.WriteString(strings.Join(fields, "\t"))
			lines = append(lines, i+1)
		}
		b.WriteByte('\n')
	}
	return b.String(), lines
}
