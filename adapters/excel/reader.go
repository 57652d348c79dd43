package excel

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"vbcaudit/domain/tabular"
)

// DataReader reads a performance extract from an Excel or CSV file into a
// Table. Values are parsed opportunistically: parseable numbers become
// numeric cells, blanks become nulls, everything else stays text for the
// schema checker to flag.
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewDataReader creates a reader that handles both Excel and CSV files.
func NewDataReader(filePath string) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType}
}

// ReadTable reads the file into a named table.
func (r *DataReader) ReadTable(name string) (*tabular.Table, error) {
	log.Printf("[DataReader] Reading %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	switch r.fileType {
	case "csv":
		return r.readCSV(name)
	case "xlsx":
		return r.readExcel(name)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
}

func (r *DataReader) readCSV(name string) (*tabular.Table, error) {
	f, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	return buildTable(name, records)
}

func (r *DataReader) readExcel(name string) (*tabular.Table, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	if err != nil {
		return nil, fmt.Errorf("failed to read Sheet1: %w", err)
	}
	return buildTable(name, rows)
}

func buildTable(name string, records [][]string) (*tabular.Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("file is empty: no header row")
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}

	t := tabular.New(name, header)
	for _, record := range records[1:] {
		cells := make([]tabular.Cell, len(header))
		for i := range header {
			raw := ""
			if i < len(record) {
				raw = strings.TrimSpace(record[i])
			}
			cells[i] = parseCell(raw)
		}
		if err := t.Append(cells); err != nil {
			return nil, fmt.Errorf("row append failed in %s: %w", name, err)
		}
	}

	log.Printf("[DataReader] Loaded %s: %d rows, %d columns", name, len(t.Rows), len(t.Columns))
	return t, nil
}

func parseCell(raw string) tabular.Cell {
	if raw == "" || strings.EqualFold(raw, "na") || strings.EqualFold(raw, "n/a") || strings.EqualFold(raw, "null") {
		return tabular.NullCell()
	}
	cleaned := strings.ReplaceAll(strings.TrimPrefix(raw, "$"), ",", "")
	if v, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return tabular.NumCell(v)
	}
	return tabular.TextCell(raw)
}
