// Package ingest runs one end-to-end catalog ingestion: plan, fetch, flatten,
// export and verify.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/catalog-ingest/pkg/client"
	"github.com/Sternrassler/catalog-ingest/pkg/export"
	"github.com/Sternrassler/catalog-ingest/pkg/logging"
	"github.com/Sternrassler/catalog-ingest/pkg/metrics"
	"github.com/Sternrassler/catalog-ingest/pkg/pagination"
	"github.com/Sternrassler/catalog-ingest/pkg/record"
	"github.com/rs/zerolog"
)

// DefaultOutputPath is the artifact written when none is configured.
const DefaultOutputPath = "umico_products.csv"

// RunResult summarizes a run. When Verified is true, ExportRows equals
// RecordsFlattened.
type RunResult struct {
	Total            int
	TotalPages       int
	PagesFetched     int
	PagesFailed      int
	FailedPages      []int
	RecordsFetched   int
	RecordsFlattened int
	ExportRows       int
	Columns          int
	Verified         bool
	ArtifactPath     string
	Duration         time.Duration
}

// Runner wires the planner, coordinator and exporter together.
type Runner struct {
	fetcher     pagination.PageFetcher
	perPage     int
	concurrency pagination.Config
	outputPath  string
	logger      zerolog.Logger
}

// NewRunner creates a runner fetching perPage items at a time through fetcher
// and writing the artifact to outputPath.
func NewRunner(fetcher pagination.PageFetcher, perPage int, concurrency pagination.Config, outputPath string) *Runner {
	if outputPath == "" {
		outputPath = DefaultOutputPath
	}
	return &Runner{
		fetcher:     fetcher,
		perPage:     perPage,
		concurrency: concurrency,
		outputPath:  outputPath,
		logger:      logging.NewLogger("ingest"),
	}
}

// NewClientRunner is a convenience constructor for a catalog client.
func NewClientRunner(c *client.Client, concurrency pagination.Config, outputPath string) *Runner {
	return NewRunner(c, c.PerPage(), concurrency, outputPath)
}

// Run executes one ingestion. Only planning failures and artifact I/O errors
// are returned; failed pages and an integrity mismatch are reported in the
// result.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()

	plan, err := pagination.NewPlanner(r.fetcher, r.perPage).Plan(ctx)
	if err != nil {
		return nil, fmt.Errorf("plan run: %w", err)
	}

	result := &RunResult{
		Total:      plan.Total,
		TotalPages: plan.TotalPages,
	}

	if plan.TotalPages == 0 {
		r.logger.Warn().Msg("Catalog is empty, no artifact written")
		result.Verified = true
		result.Duration = time.Since(start)
		metrics.RecordRun(0, 0, true, result.Duration)
		return result, nil
	}

	rest := pagination.NewCoordinator(r.fetcher, r.concurrency).FetchRemaining(ctx, plan.TotalPages)
	agg := pagination.Collect(plan.First, rest)

	result.PagesFetched = agg.PagesOK
	result.PagesFailed = len(agg.FailedPages)
	result.FailedPages = agg.FailedPages
	result.RecordsFetched = len(agg.Records)

	if result.PagesFailed > 0 {
		r.logger.Warn().
			Ints("failed_pages", agg.FailedPages).
			Msg("Some pages could not be fetched")
	}

	rows := record.FlattenAll(agg.Records)
	result.RecordsFlattened = len(rows)

	report, err := export.Export(r.outputPath, rows)
	if err != nil && !errors.Is(err, export.ErrIntegrityMismatch) {
		return nil, fmt.Errorf("export artifact: %w", err)
	}

	result.ArtifactPath = report.Path
	result.ExportRows = report.Rows
	result.Columns = len(report.Columns)
	result.Verified = report.Verified
	result.Duration = time.Since(start)
	metrics.RecordRun(result.PagesFailed, result.ExportRows, result.Verified, result.Duration)

	r.logger.Info().
		Int("pages", result.PagesFetched).
		Int("failed_pages", result.PagesFailed).
		Int("records", result.RecordsFlattened).
		Int("rows", result.ExportRows).
		Bool("verified", result.Verified).
		Dur("duration", result.Duration).
		Msg("Run complete")

	return result, nil
}
