package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	input := "broccoli.jpg\tfood\n" +
		"pizza.jpg\tfood\n" +
		"\n" +
		"teddy2.jpg\ttoy\n" +
		"toaster.jpg\tappliance\n"

	records, err := Read(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []ImageRecord{
		{Path: "broccoli.jpg", Label: "food"},
		{Path: "pizza.jpg", Label: "food"},
		{Path: "teddy2.jpg", Label: "toy"},
		{Path: "toaster.jpg", Label: "appliance"},
	}, records)
	assert.Equal(t, []string{"food", "food", "toy", "appliance"}, Labels(records))
}

func TestRead_SpacesInPath(t *testing.T) {
	records, err := Read(strings.NewReader("my photos/hot dog.jpg\thotdog\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "my photos/hot dog.jpg", records[0].Path)
	assert.Equal(t, "hotdog", records[0].Label)
}

func TestRead_Malformed(t *testing.T) {
	tests := map[string]string{
		"missing label":   "toaster.jpg\n",
		"extra column":    "toaster.jpg\ttoaster\textra\n",
		"empty label":     "toaster.jpg\t\n",
		"empty path":      "\ttoaster\n",
		"blank path":      "   \ttoaster\n",
		"second row only": "a.jpg\ttoaster\nb.jpg\n",
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Read(strings.NewReader(input))
			assert.ErrorIs(t, err, ErrMalformedRow)
		})
	}
}

func TestRead_ByteOrderMark(t *testing.T) {
	records, err := Read(strings.NewReader("\ufefftoaster.jpg\ttoaster\nhotdog.jpg\thotdog\n"))
	require.NoError(t, err)
	assert.Equal(t, "toaster.jpg", records[0].Path)
	assert.Equal(t, "hotdog.jpg", records[1].Path)
}

func TestRead_QuotesAreLiteral(t *testing.T) {
	input := "\"quoted\".jpg\ttoaster\n" +
		"it's \"hot\" dog.jpg\thotdog\n"

	records, err := Read(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []ImageRecord{
		{Path: `"quoted".jpg`, Label: "toaster"},
		{Path: `it's "hot" dog.jpg`, Label: "hotdog"},
	}, records)
}

func TestRead_ErrorsReportSourceLine(t *testing.T) {
	tests := map[string]struct {
		input string
		line  string
	}{
		"empty label after blank lines": {"a.jpg\ttoaster\n\n\nb.jpg\t\n", "line 4:"},
		"field count after blank lines":  {"a.jpg\ttoaster\n\n\nb.jpg\n", "line 4:"},
		"empty path on first line":       {"\ttoaster\n", "line 1:"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input))
			require.ErrorIs(t, err, ErrMalformedRow)
			assert.Contains(t, err.Error(), tt.line)
		})
	}
}

func TestRead_Empty(t *testing.T) {
	_, err := Read(strings.NewReader("\n\n"))
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tags.tsv")
	require.NoError(t, os.WriteFile(path, []byte("toaster.jpg\ttoaster\nhotdog.jpg\thotdog\n"), 0o644))

	records, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = LoadFile(filepath.Join(dir, "missing.tsv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
