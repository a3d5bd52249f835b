// Package export writes flattened catalog rows to a CSV artifact and
// re-reads the artifact to verify that every row landed.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Sternrassler/catalog-ingest/pkg/record"
)

// Columns returns the sorted union of the keys of all rows.
func Columns(rows []record.Flat) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}

	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns
}

// WriteCSV writes a header of columns followed by one line per row. A key
// absent from a row is written as an empty cell.
func WriteCSV(path string, columns []string, rows []record.Flat) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(columns); err != nil {
		f.Close()
		return fmt.Errorf("write csv header: %w", err)
	}

	line := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			line[i] = record.FormatScalar(row[col])
		}
		if err := writer.Write(line); err != nil {
			f.Close()
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush csv records: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close csv file: %w", err)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
