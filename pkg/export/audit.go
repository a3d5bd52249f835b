package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/Sternrassler/catalog-ingest/pkg/record"
)

// ColumnAudit counts placeholder cells in one column.
type ColumnAudit struct {
	Name         string
	Empty        int
	None         int
	EmptyList    int
	NotAvailable int
}

// Missing is the number of cells holding any placeholder.
func (c ColumnAudit) Missing() int {
	return c.Empty + c.None + c.EmptyList + c.NotAvailable
}

// Audit is a per-column completeness summary of an artifact.
type Audit struct {
	Path    string
	Rows    int
	Columns []ColumnAudit
}

// AuditFile counts, per column, the cells that are empty, "None", "[]" or
// "N/A". Flattened rows never hold nulls, so "N/A" is where a missing upstream
// string ends up; it is counted in its own field and included in Missing.
func AuditFile(path string) (*Audit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return &Audit{Path: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make([]ColumnAudit, len(header))
	for i, name := range header {
		columns[i].Name = name
	}

	audit := &Audit{Path: path}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read artifact: %w", err)
		}
		audit.Rows++

		for i := range columns {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			switch value {
			case "":
				columns[i].Empty++
			case "None":
				columns[i].None++
			case "[]":
				columns[i].EmptyList++
			case record.NotAvailable:
				columns[i].NotAvailable++
			}
		}
	}

	audit.Columns = columns
	return audit, nil
}

// Incomplete returns the columns with at least one placeholder, most
// incomplete first.
func (a *Audit) Incomplete() []ColumnAudit {
	var out []ColumnAudit
	for _, c := range a.Columns {
		if c.Missing() > 0 {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Missing() > out[j].Missing()
	})
	return out
}

// Complete returns the names of columns without placeholders.
func (a *Audit) Complete() []string {
	var out []string
	for _, c := range a.Columns {
		if c.Missing() == 0 {
			out = append(out, c.Name)
		}
	}
	return out
}

// WriteTable renders the audit as a fixed-width table.
func (a *Audit) WriteTable(w io.Writer) {
	separator := "--------------------------------------------------------------------------------"
	fmt.Fprintf(w, "Column audit: %s (%d rows)\n", a.Path, a.Rows)
	fmt.Fprintf(w, "%-35s %12s %12s\n", "Field Name", "Missing", "Percentage")
	fmt.Fprintln(w, separator)

	for _, c := range a.Incomplete() {
		pct := 0.0
		if a.Rows > 0 {
			pct = float64(c.Missing()) / float64(a.Rows) * 100
		}
		fmt.Fprintf(w, "%-35s %12d %11.1f%%\n", c.Name, c.Missing(), pct)
	}

	fmt.Fprintf(w, "Complete columns: %d of %d\n", len(a.Complete()), len(a.Columns))
}
