// Package spreadsheet turns uploaded CSV and Excel payloads into header-keyed rows.
package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// Accepted upload media types.
const (
	MIMETypeCSV   = "text/csv"
	MIMETypeExcel = "application/vnd.ms-excel"
	MIMETypeXLSX  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	// ErrInvalidFileType is returned before any decoding when the media type is not accepted.
	ErrInvalidFileType = errors.New("spreadsheet: unsupported file type")
	// ErrEmptyFile is returned when the payload holds no data rows below the header.
	ErrEmptyFile = errors.New("spreadsheet: no data rows")
	// ErrUnreadable is returned when the payload cannot be parsed in any supported format.
	ErrUnreadable = errors.New("spreadsheet: unreadable content")
)

var acceptedTypes = map[string]struct{}{
	MIMETypeCSV:   {},
	MIMETypeExcel: {},
	MIMETypeXLSX:  {},
}

var (
	zipSignature  = []byte("PK\x03\x04")
	ole2Signature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	utf8BOM       = []byte{0xEF, 0xBB, 0xBF}
)

// Row maps header names to the raw cell text of one data row. Every header is
// present; empty cells map to "".
type Row map[string]string

// Sheet is the decoded first worksheet of an upload.
type Sheet struct {
	Headers []string
	Rows    []Row
}

// Accepts reports whether mimeType is one of the accepted upload types.
// Media type parameters such as charset are ignored.
func Accepts(mimeType string) bool {
	_, ok := acceptedTypes[mediaType(mimeType)]
	return ok
}

// Decode parses data according to its content. The declared mimeType only gates
// which uploads are attempted: browsers label CSV files as application/vnd.ms-excel
// on Windows, so the payload signature decides between the XLSX and CSV readers.
func Decode(data []byte, mimeType string) (*Sheet, error) {
	if !Accepts(mimeType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFileType, mimeType)
	}

	var (
		records [][]string
		err     error
	)
	switch {
	case bytes.HasPrefix(data, zipSignature):
		records, err = readXLSX(data)
	case bytes.HasPrefix(data, ole2Signature):
		return nil, fmt.Errorf("%w: legacy binary .xls workbooks are not supported, save the file as .xlsx or .csv", ErrUnreadable)
	default:
		records, err = readCSV(data)
	}
	if err != nil {
		return nil, err
	}

	sheet := buildSheet(records)
	if len(sheet.Rows) == 0 {
		return nil, ErrEmptyFile
	}
	return sheet, nil
}

func mediaType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	return parsed
}

func readXLSX(data []byte) ([][]string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrUnreadable, err)
	}
	defer file.Close() //nolint:errcheck

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrUnreadable, sheets[0], err)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		// Spreadsheet tools on Windows export CSV in the ANSI codepage; accents would
		// otherwise turn into replacement characters.
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("%w: decode text: %v", ErrUnreadable, err)
		}
		data = decoded
	}

	var delimiter rune
	if sep, rest, ok := separatorDirective(data); ok {
		delimiter, data = sep, rest
	} else {
		delimiter = guessDelimiter(data)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parse csv: %v", ErrUnreadable, err)
	}
	return records, nil
}

// separatorDirective handles the "sep=;" first line Excel writes and honours.
func separatorDirective(data []byte) (rune, []byte, bool) {
	line, rest, _ := bytes.Cut(data, []byte("\n"))
	line = bytes.TrimRight(line, "\r")
	if !bytes.HasPrefix(bytes.ToLower(line), []byte("sep=")) {
		return 0, nil, false
	}
	sep, size := utf8.DecodeRune(line[len("sep="):])
	if size == 0 || sep == utf8.RuneError || len(line) != len("sep=")+size {
		return 0, nil, false
	}
	return sep, rest, true
}

// guessDelimiter picks the most frequent candidate separator in the first line,
// ignoring quoted sections. Locales with a decimal comma export with ";".
func guessDelimiter(data []byte) rune {
	candidates := []rune{',', ';', '\t'}
	counts := make(map[rune]int, len(candidates))
	inQuotes := false
	for _, r := range string(data) {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		if r == '\n' {
			break
		}
		counts[r]++
	}
	best := ','
	for _, c := range candidates {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

func buildSheet(records [][]string) *Sheet {
	sheet := &Sheet{}

	start := -1
	for i, record := range records {
		if !isBlank(record) {
			start = i
			break
		}
	}
	if start < 0 {
		return sheet
	}

	header := records[start]
	columns := make([]int, 0, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, cell := range header {
		name := strings.TrimSpace(strings.TrimPrefix(cell, "\ufeff"))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		sheet.Headers = append(sheet.Headers, name)
		columns = append(columns, i)
	}

	for _, record := range records[start+1:] {
		if isBlank(record) {
			continue
		}
		row := make(Row, len(sheet.Headers))
		for j, name := range sheet.Headers {
			idx := columns[j]
			if idx < len(record) {
				row[name] = record[idx]
			} else {
				row[name] = ""
			}
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
