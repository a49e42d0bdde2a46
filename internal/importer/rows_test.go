package importer_test

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/reelmatch/reelmatch/internal/importer"
)

func readAll(t *testing.T, r *importer.RowReader) [][]string {
	t.Helper()
	var rows [][]string
	for {
		row, err := r.Next()
		if err == io.EOF {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
}

func TestRowReaderComma(t *testing.T) {
	r, err := importer.NewRowReader(strings.NewReader("id,title\ntt1,Alien\ntt2,\"Blade, Runner\"\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"id", "title"}, r.Header())
	require.Equal(t, [][]string{
		{"tt1", "Alien"},
		{"tt2", "Blade, Runner"},
	}, readAll(t, r))
}

func TestRowReaderTab(t *testing.T) {
	r, err := importer.NewRowReader(strings.NewReader("id\ttitle\ntt1\tAlien, Director's Cut\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"id", "title"}, r.Header())
	require.Equal(t, [][]string{{"tt1", "Alien, Director's Cut"}}, readAll(t, r),
		"commas are data when the file is tab-separated")
}

func TestRowReaderPadsAndTruncates(t *testing.T) {
	r, err := importer.NewRowReader(strings.NewReader("a,b,c\n1,2\n1,2,3,4\n"))
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"1", "2", ""},
		{"1", "2", "3"},
	}, readAll(t, r))
}

func TestRowReaderUTF8BOM(t *testing.T) {
	r, err := importer.NewRowReader(strings.NewReader("\xEF\xBB\xBFid,title\ntt1,Amélie\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"id", "title"}, r.Header(), "BOM must not leak into the first column name")
	require.Equal(t, [][]string{{"tt1", "Amélie"}}, readAll(t, r))
}

func TestRowReaderUTF16LE(t *testing.T) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	encoded, _, err := transform.String(encoder, "id,title\ntt1,Amélie\n")
	require.NoError(t, err)

	r, err := importer.NewRowReader(strings.NewReader(encoded))
	require.NoError(t, err)
	require.Equal(t, []string{"id", "title"}, r.Header())
	require.Equal(t, [][]string{{"tt1", "Amélie"}}, readAll(t, r))
}

func TestRowReaderLatin1Fallback(t *testing.T) {
	// 0xE9 is é in ISO 8859-1 and invalid as UTF-8.
	r, err := importer.NewRowReader(strings.NewReader("id,title\ntt1,Am\xE9lie\n"))
	require.NoError(t, err)
	require.Equal(t, [][]string{{"tt1", "Amélie"}}, readAll(t, r))
}

func TestRowReaderEmptyInput(t *testing.T) {
	_, err := importer.NewRowReader(strings.NewReader(""))
	require.ErrorContains(t, err, "empty import file")
}
