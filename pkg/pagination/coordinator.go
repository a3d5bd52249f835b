package pagination

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/catalog-ingest/pkg/client"
	"github.com/Sternrassler/catalog-ingest/pkg/logging"
	"github.com/Sternrassler/catalog-ingest/pkg/record"
	"github.com/rs/zerolog"
)

// Config holds coordinator configuration.
type Config struct {
	// MaxConcurrency is the maximum number of in-flight page fetches
	MaxConcurrency int

	// PacingDelay is slept by a worker after each of its fetches
	PacingDelay time.Duration

	// Sleep performs the pacing wait. Nil means client.SleepContext.
	Sleep client.Sleeper
}

// DefaultConfig returns the production concurrency settings.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
		PacingDelay:    100 * time.Millisecond,
		Sleep:          client.SleepContext,
	}
}

// Coordinator fetches pages 2..N in parallel using a worker pool.
type Coordinator struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewCoordinator creates a new coordinator.
func NewCoordinator(fetcher PageFetcher, config Config) *Coordinator {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 10
	}
	if config.PacingDelay < 0 {
		config.PacingDelay = 0
	}
	if config.Sleep == nil {
		config.Sleep = client.SleepContext
	}

	return &Coordinator{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger("coordinator"),
	}
}

// FetchRemaining fetches pages 2..totalPages and returns every response in
// completion order, terminal failures included. It returns once all pages
// have finished.
func (c *Coordinator) FetchRemaining(ctx context.Context, totalPages int) []*client.PageResponse {
	if totalPages < 2 {
		return nil
	}
	start := time.Now()
	remaining := totalPages - 1

	c.logger.Info().
		Int("total_pages", totalPages).
		Int("workers", c.config.MaxConcurrency).
		Msg("Starting parallel page fetch")

	// Every page is queued before any worker starts
	pageQueue := make(chan int, remaining)
	for page := 2; page <= totalPages; page++ {
		pageQueue <- page
	}
	close(pageQueue)

	workers := c.config.MaxConcurrency
	if workers > remaining {
		workers = remaining
	}

	var (
		mu        sync.Mutex
		responses = make([]*client.PageResponse, 0, remaining)
		failed    int
		wg        sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			pagesProcessed := 0

			for page := range pageQueue {
				resp := c.fetcher.FetchPage(ctx, page)
				if resp == nil {
					resp = &client.PageResponse{Page: page, Status: client.StatusTerminalFailure}
				}

				mu.Lock()
				responses = append(responses, resp)
				if !resp.OK() {
					failed++
				}
				done := len(responses)
				mu.Unlock()
				pagesProcessed++

				// Progress logging every 50 pages
				if done%50 == 0 {
					c.logger.Info().
						Int("fetched", done).
						Int("total", remaining).
						Float64("progress_pct", float64(done)/float64(remaining)*100).
						Msg("Fetch progress")
				}

				// Pacing holds this worker's slot
				_ = c.config.Sleep(ctx, c.config.PacingDelay)
			}

			c.logger.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker completed")
		}(i)
	}

	wg.Wait()

	c.logger.Info().
		Int("pages", len(responses)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return responses
}

// Aggregate is the merged outcome of a run's page fetches.
type Aggregate struct {
	Records     []record.Value
	PagesOK     int
	FailedPages []int
}

// Collect merges the planning response and the remaining responses. Records
// from terminally failed pages are excluded; nothing is deduplicated.
func Collect(first *client.PageResponse, rest []*client.PageResponse) *Aggregate {
	agg := &Aggregate{}
	add := func(resp *client.PageResponse) {
		if resp == nil {
			return
		}
		if !resp.OK() {
			agg.FailedPages = append(agg.FailedPages, resp.Page)
			return
		}
		agg.PagesOK++
		agg.Records = append(agg.Records, resp.Records...)
	}

	add(first)
	for _, resp := range rest {
		add(resp)
	}
	sort.Ints(agg.FailedPages)
	return agg
}
