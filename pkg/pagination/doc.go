// Package pagination walks cursor-paginated Graph API listings.
//
// The Graph API returns each page as {data: [...], paging: {cursors: {after}}}.
// The walker requests one page at a time, follows the opaque "after" cursor
// until it is absent, and concatenates items in arrival order.
//
// Example usage:
//
//	opts := pagination.DefaultOptions()
//	items, err := pagination.Collect(ctx, graphClient, "/act_123/campaigns", params, opts)
//
// The walker:
//   - Issues at most one request at a time (no parallel page fetching)
//   - Stops at the first page without a next cursor
//   - Stops silently after MaxPages pages (truncated result, not an error)
//   - Never reorders or deduplicates items
//   - Returns no items when any page fails (all-or-nothing)
//
// Retrying within a page is left to the PageFetcher, which receives the
// per-page retry budget from Options.
package pagination
