package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Sternrassler/catalog-ingest/pkg/record"
	"github.com/rs/zerolog/log"
)

// ErrIntegrityMismatch is returned when the artifact's row count differs from
// the number of rows written. The artifact is kept.
var ErrIntegrityMismatch = errors.New("integrity mismatch")

// Report describes a written and re-read artifact.
type Report struct {
	Path         string
	Columns      []string
	ExpectedRows int
	Rows         int
	Verified     bool
}

// Export writes rows to path and verifies the result. A verification
// mismatch returns the report together with an error wrapping
// ErrIntegrityMismatch.
func Export(path string, rows []record.Flat) (*Report, error) {
	columns := Columns(rows)
	if err := WriteCSV(path, columns, rows); err != nil {
		return nil, err
	}

	log.Info().
		Str("path", path).
		Int("rows", len(rows)).
		Int("columns", len(columns)).
		Msg("Artifact written")

	report, err := Verify(path, len(rows))
	if report != nil {
		report.Columns = columns
	}
	return report, err
}

// Verify re-reads the artifact at path and compares its data row count,
// excluding the header, with expected.
func Verify(path string, expected int) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	// A parse error counts as a mismatch with the rows read before it.
	var readErr error
	lines := 0
	for {
		_, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			readErr = err
			break
		}
		lines++
	}

	rows := 0
	if lines > 0 {
		rows = lines - 1
	}

	report := &Report{
		Path:         path,
		ExpectedRows: expected,
		Rows:         rows,
		Verified:     readErr == nil && rows == expected,
	}

	if !report.Verified {
		event := log.Error().
			Str("path", path).
			Int("expected_rows", expected).
			Int("rows", rows)
		if readErr != nil {
			event.Err(readErr).Msg("Artifact is malformed")
			return report, fmt.Errorf("%w: %s unreadable after %d rows: %w", ErrIntegrityMismatch, path, rows, readErr)
		}
		event.Msg("Artifact row count does not match")
		return report, fmt.Errorf("%w: %s has %d rows, expected %d", ErrIntegrityMismatch, path, rows, expected)
	}

	log.Info().
		Str("path", path).
		Int("rows", rows).
		Msg("Artifact verified")
	return report, nil
}
