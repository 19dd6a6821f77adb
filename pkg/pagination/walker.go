package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/meta-ads-proxy/pkg/query"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for paginated listings.
var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graph_pages_fetched_total",
		Help: "Total number of listing pages fetched",
	})

	itemsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graph_items_fetched_total",
		Help: "Total number of listing items fetched",
	})

	truncatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graph_pagination_truncated_total",
		Help: "Total number of listings stopped by the page ceiling",
	})
)

// Parameter names used for cursor pagination.
const (
	ParamLimit = "limit"
	ParamAfter = "after"
)

// Options controls a paginated listing.
type Options struct {
	// PageSize is sent as the "limit" parameter on every page request.
	PageSize int

	// MaxPages bounds the number of pages fetched. Reaching it is not an error.
	MaxPages int

	// MaxRetries is the retry budget per page for rate-limited requests
	// (MaxRetries+1 attempts in total). Zero uses the default budget and a
	// negative value disables retries; see WithMaxRetries.
	MaxRetries int
}

// DefaultOptions returns the options for generic listings.
func DefaultOptions() Options {
	return Options{
		PageSize:   100,
		MaxPages:   50,
		MaxRetries: 3,
	}
}

// InsightsOptions returns the options for insights reports, which
// typically span many more pages than object listings.
func InsightsOptions() Options {
	opts := DefaultOptions()
	opts.MaxPages = 200
	return opts
}

// WithMaxRetries returns o with a retry budget of exactly n. n <= 0 disables
// retries.
func (o Options) WithMaxRetries(n int) Options {
	if n <= 0 {
		n = -1
	}
	o.MaxRetries = n
	return o
}

// withDefaults fills unset fields from DefaultOptions. A negative MaxRetries
// disables retries.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PageSize <= 0 {
		o.PageSize = d.PageSize
	}
	if o.MaxPages <= 0 {
		o.MaxPages = d.MaxPages
	}
	switch {
	case o.MaxRetries == 0:
		o.MaxRetries = d.MaxRetries
	case o.MaxRetries < 0:
		o.MaxRetries = 0
	}
	return o
}

// Page is a single decoded listing page.
type Page struct {
	// Items are the page's result items, undecoded and in upstream order.
	Items []json.RawMessage

	// Next is the cursor for the following page, or "" at end of stream.
	Next string
}

// PageFetcher fetches one page, retrying within its budget as it sees fit.
type PageFetcher interface {
	FetchPage(ctx context.Context, path string, params *query.Params, maxRetries int) (*Page, error)
}

// Collect walks every page of path and returns all items in order.
// params is not modified.
func Collect(ctx context.Context, fetcher PageFetcher, path string, params *query.Params, opts Options) ([]json.RawMessage, error) {
	opts = opts.withDefaults()
	start := time.Now()

	base := params.With(ParamLimit, query.Int(int64(opts.PageSize)))
	// "after" is owned by the walker; a caller-supplied cursor is ignored.
	base.Del(ParamAfter)

	var (
		all    []json.RawMessage
		cursor string
	)

	for page := 0; page < opts.MaxPages; page++ {
		pageParams := base
		if cursor != "" {
			pageParams = base.With(ParamAfter, query.String(cursor))
		}

		result, err := fetcher.FetchPage(ctx, path, pageParams, opts.MaxRetries)
		if err != nil {
			log.Warn().
				Err(err).
				Str("path", path).
				Int("page", page).
				Int("discarded_items", len(all)).
				Msg("Listing failed")
			return nil, fmt.Errorf("fetch page %d of %s: %w", page, path, err)
		}

		all = append(all, result.Items...)
		pagesFetchedTotal.Inc()
		itemsFetchedTotal.Add(float64(len(result.Items)))

		log.Debug().
			Str("path", path).
			Int("page", page).
			Int("items_on_page", len(result.Items)).
			Int("total_items", len(all)).
			Bool("has_next", result.Next != "").
			Msg("Fetched page")

		if result.Next == "" {
			log.Info().
				Str("path", path).
				Int("pages", page+1).
				Int("items", len(all)).
				Dur("duration", time.Since(start)).
				Msg("Listing complete")
			return nonNil(all), nil
		}
		cursor = result.Next
	}

	truncatedTotal.Inc()
	log.Warn().
		Str("path", path).
		Int("max_pages", opts.MaxPages).
		Int("items", len(all)).
		Dur("duration", time.Since(start)).
		Msg("Reached max pages limit, returning truncated listing")

	return nonNil(all), nil
}

func nonNil(items []json.RawMessage) []json.RawMessage {
	if items == nil {
		return []json.RawMessage{}
	}
	return items
}
