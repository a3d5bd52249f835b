// Package pagination plans and drives the retrieval of a paginated catalog.
//
// The upstream reports the number of matching items in meta.total on every
// page, so page 1 doubles as the planning request. The remaining pages are
// fetched by a fixed-size worker pool that bounds the number of in-flight
// requests and paces each worker after every fetch.
//
// Example usage:
//
//	planner := pagination.NewPlanner(catalogClient, catalogClient.PerPage())
//	plan, err := planner.Plan(ctx)
//	if err != nil {
//		return err
//	}
//	coordinator := pagination.NewCoordinator(catalogClient, pagination.DefaultConfig())
//	rest := coordinator.FetchRemaining(ctx, plan.TotalPages)
//	agg := pagination.Collect(plan.First, rest)
//
// The coordinator:
//   - Schedules every page 2..N up front
//   - Runs MaxConcurrency workers (default 10)
//   - Sleeps PacingDelay (default 100ms) after each fetch, per worker
//   - Waits for every page; a failed page never cancels the others
//   - Returns all responses, terminal failures included
package pagination
