package pagination

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/catalog-ingest/pkg/client"
	"github.com/Sternrassler/catalog-ingest/pkg/logging"
	"github.com/rs/zerolog"
)

var (
	// ErrPlanningFailed is returned when page 1 cannot be retrieved.
	ErrPlanningFailed = errors.New("planning request failed")

	// ErrTotalUnreadable is returned when page 1 carries no usable meta.total.
	ErrTotalUnreadable = errors.New("total item count unreadable")
)

// PageFetcher is the interface the catalog client implements for single-page fetching.
type PageFetcher interface {
	// FetchPage fetches one page; the outcome is reported in the response Status
	FetchPage(ctx context.Context, page int) *client.PageResponse
}

// Plan is the outcome of the planning request.
type Plan struct {
	Total      int
	PerPage    int
	TotalPages int

	// First is the page 1 response; its records seed the aggregate.
	First *client.PageResponse
}

// Planner determines how many pages a run needs.
type Planner struct {
	fetcher PageFetcher
	perPage int
	logger  zerolog.Logger
}

// NewPlanner creates a planner for a listing served perPage items at a time.
func NewPlanner(fetcher PageFetcher, perPage int) *Planner {
	if perPage <= 0 {
		perPage = client.DefaultPerPage
	}
	return &Planner{
		fetcher: fetcher,
		perPage: perPage,
		logger:  logging.NewLogger("planner"),
	}
}

// Plan fetches page 1 and derives the page count from meta.total.
func (p *Planner) Plan(ctx context.Context) (*Plan, error) {
	first := p.fetcher.FetchPage(ctx, 1)
	if first == nil || !first.OK() {
		cause := errors.New("no response")
		if first != nil && first.Err != nil {
			cause = first.Err
		}
		p.logger.Error().Err(cause).Msg("Failed to fetch first page")
		return nil, fmt.Errorf("%w: %w", ErrPlanningFailed, cause)
	}

	if !first.HasTotal || first.Total < 0 {
		p.logger.Error().Int("page", 1).Msg("First page has no usable meta.total")
		return nil, ErrTotalUnreadable
	}

	plan := &Plan{
		Total:      first.Total,
		PerPage:    p.perPage,
		TotalPages: TotalPages(first.Total, p.perPage),
		First:      first,
	}

	p.logger.Info().
		Int("total_products", plan.Total).
		Int("per_page", plan.PerPage).
		Int("total_pages", plan.TotalPages).
		Msg("Pagination planned")

	return plan, nil
}

// TotalPages returns ceil(total / perPage).
func TotalPages(total, perPage int) int {
	if total <= 0 || perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
