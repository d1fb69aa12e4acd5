// Package ingest parses uploaded documents into datasets.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/tablechat/tablechat/internal/dataset"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrNoHeader          = errors.New("document has no header row")
)

const (
	FormatSpreadsheet = "xlsx"
	FormatCSV         = "csv"
	FormatParquet     = "parquet"
)

// Format returns the document format implied by the file extension.
func Format(filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return FormatSpreadsheet, nil
	case ".csv":
		return FormatCSV, nil
	case ".parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// Parse decodes body according to the extension of filename. The first row of
// text formats is the header; cell text is typed as int64, finite float64,
// bool or string, and empty cells become nil.
func Parse(filename string, body []byte) (dataset.Dataset, error) {
	format, err := Format(filename)
	if err != nil {
		return dataset.Dataset{}, err
	}
	switch format {
	case FormatSpreadsheet:
		return parseSpreadsheet(body)
	case FormatCSV:
		return parseCSV(body)
	default:
		return parseParquet(body)
	}
}

func parseSpreadsheet(body []byte) (dataset.Dataset, error) {
	book, err := excelize.OpenReader(bytes.NewReader(body))
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer func() { _ = book.Close() }()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return dataset.Dataset{}, ErrNoHeader
	}
	records, err := book.GetRows(sheets[0])
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return fromRecords(records)
}

func parseCSV(body []byte) (dataset.Dataset, error) {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	records, err := reader.ReadAll()
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("read csv: %w", err)
	}
	return fromRecords(records)
}

func fromRecords(records [][]string) (dataset.Dataset, error) {
	headerIndex := -1
	for i, record := range records {
		if !blank(record) {
			headerIndex = i
			break
		}
	}
	if headerIndex < 0 {
		return dataset.Dataset{}, ErrNoHeader
	}

	header := records[headerIndex]
	width := len(header)
	body := records[headerIndex+1:]
	for _, record := range body {
		if len(record) > width {
			width = len(record)
		}
	}
	raw := make([]string, width)
	copy(raw, header)

	rows := make([][]any, 0, len(body))
	for _, record := range body {
		if blank(record) {
			continue
		}
		row := make([]any, width)
		for i, cell := range record {
			row[i] = inferCell(cell)
		}
		rows = append(rows, row)
	}
	return dataset.Dataset{Columns: UniqueHeaders(raw), Rows: rows}, nil
}

// UniqueHeaders names empty headers "Unnamed: <index>" and suffixes repeated
// headers with ".1", ".2" in order of appearance.
func UniqueHeaders(raw []string) []string {
	out := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	counts := make(map[string]int, len(raw))
	for i, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		candidate := name
		for used[candidate] {
			counts[name]++
			candidate = fmt.Sprintf("%s.%d", name, counts[name])
		}
		used[candidate] = true
		out[i] = candidate
	}
	return out
}

func inferCell(cell string) any {
	value := strings.TrimSpace(cell)
	if value == "" {
		return nil
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	return value
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
