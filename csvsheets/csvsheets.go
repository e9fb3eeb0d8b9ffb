// Package csvsheets turns a directory of CSV exports into the generic row
// sources the analyzer consumes. Each file becomes one named sheet; the
// sheet name is the file name without its extension, so the exporter's
// sheet-per-file naming ("Voltages 0x9A.csv") carries through to the
// locator's alias matching.
package csvsheets

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ericfowler-dev/bms-log-analyzer/rowset"
)

// LoadDir reads every .csv file in dir into a sheet map. Files that are
// empty contribute an empty sheet, not an error.
func LoadDir(dir string) (map[string][]rowset.Row, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading sheet directory: %w", err)
	}

	sheets := make(map[string][]rowset.Row)
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		rows, err := loadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading sheet %s: %w", entry.Name(), err)
		}
		sheets[name] = rows
	}
	return sheets, nil
}

func loadFile(path string) ([]rowset.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readSheet(f)
}

// readSheet parses one CSV stream: first record is the header row, every
// later record becomes a Row. Ragged records are tolerated, short rows
// simply leave trailing columns absent.
func readSheet(r io.Reader) ([]rowset.Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return []rowset.Row{}, nil
	}
	if err != nil {
		return nil, err
	}

	var rows []rowset.Row
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		var row rowset.Row
		for i, field := range record {
			if i >= len(header) {
				break
			}
			row.Set(header[i], fieldValue(field))
		}
		rows = append(rows, row)
	}
	if rows == nil {
		rows = []rowset.Row{}
	}
	return rows, nil
}

// fieldValue types a raw CSV field: numeric text becomes a number, empty
// text becomes absent, anything else stays text.
func fieldValue(field string) rowset.Value {
	trimmed := strings.TrimSpace(field)
	if trimmed == "" {
		return rowset.None()
	}
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return rowset.Num(n)
	}
	return rowset.Str(trimmed)
}
