package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// RowReader streams the data rows of an import file. The first row is the
// header; delimiter (tab vs comma) and encoding (UTF-8, UTF-16 with BOM,
// Latin-1 fallback) are detected from the leading bytes.
type RowReader struct {
	csv    *csv.Reader
	header []string
}

const sniffLen = 4096

func NewRowReader(r io.Reader) (*RowReader, error) {
	buffered := bufio.NewReaderSize(r, sniffLen)
	head, err := buffered.Peek(sniffLen)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read file head: %w", err)
	}
	if len(head) == 0 {
		return nil, fmt.Errorf("empty import file")
	}

	decoded := decodeReader(buffered, head)

	// the delimiter is sniffed from the decoded header line
	sniffer := bufio.NewReaderSize(decoded, sniffLen)
	line, err := sniffer.Peek(sniffLen)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read header: %w", err)
	}
	delimiter := detectDelimiter(line)

	reader := csv.NewReader(sniffer)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header row: %w", err)
	}
	return &RowReader{csv: reader, header: header}, nil
}

// Header returns the column names of the first row.
func (r *RowReader) Header() []string {
	return r.header
}

// Next returns the following data row, padded or truncated to the header
// width. io.EOF signals the end of the file.
func (r *RowReader) Next() ([]string, error) {
	record, err := r.csv.Read()
	if err != nil {
		return nil, err
	}
	if len(record) > len(r.header) {
		record = record[:len(r.header)]
	}
	for len(record) < len(r.header) {
		record = append(record, "")
	}
	return record, nil
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

func decodeReader(r io.Reader, head []byte) io.Reader {
	switch {
	case bytes.HasPrefix(head, bomUTF8):
		return transform.NewReader(r, unicode.UTF8BOM.NewDecoder())
	case bytes.HasPrefix(head, bomUTF16LE):
		return transform.NewReader(r, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	case bytes.HasPrefix(head, bomUTF16BE):
		return transform.NewReader(r, unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder())
	case utf8.Valid(trimPartialRune(head)):
		return r
	default:
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder())
	}
}

// trimPartialRune drops the trailing bytes of a rune the sniff window may
// have cut in half, so a valid UTF-8 file is not misdetected as Latin-1.
func trimPartialRune(head []byte) []byte {
	for end := len(head); end > 0 && end > len(head)-utf8.UTFMax; end-- {
		if utf8.Valid(head[:end]) {
			return head[:end]
		}
	}
	return head
}

// detectDelimiter prefers tab when the header line carries any, matching
// the exporters that feed this pipeline; otherwise comma.
func detectDelimiter(line []byte) rune {
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if bytes.IndexByte(line, '\t') >= 0 {
		return '\t'
	}
	return ','
}
