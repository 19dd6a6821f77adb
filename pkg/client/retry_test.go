package client

import (
	"context"
	"errors"
	"math"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/meta-ads-proxy/internal/testutil"
	"github.com/Sternrassler/meta-ads-proxy/pkg/pagination"
	"github.com/Sternrassler/meta-ads-proxy/pkg/query"
)

// sleepRecorder records requested backoff durations without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, 400 * time.Millisecond},
		{0, 400 * time.Millisecond},
		{1, 800 * time.Millisecond},
		{2, 1600 * time.Millisecond},
		{3, 3200 * time.Millisecond},
		{10, 409600 * time.Millisecond},
		{40, time.Duration(math.MaxInt64)},
		{80, time.Duration(math.MaxInt64)},
	}

	for _, tt := range tests {
		if got := Backoff(DefaultBaseDelay, tt.attempt); got != tt.want {
			t.Errorf("Backoff(400ms, %d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_NeverNegative(t *testing.T) {
	for attempt := 0; attempt < 100; attempt++ {
		if got := Backoff(DefaultBaseDelay, attempt); got < DefaultBaseDelay {
			t.Fatalf("Backoff(400ms, %d) = %v, want >= 400ms", attempt, got)
		}
	}
}

func TestGetWithRetry_RecoversFromRateLimit(t *testing.T) {
	recorder := &sleepRecorder{}
	c, mock := newTestClient(t, func(cfg *Config) { cfg.Sleep = recorder.Sleep })
	mock.Script("/act_1/insights",
		testutil.NewRateLimitResponse(),
		testutil.NewAdAccountLimitResponse(),
		testutil.PageResponse([]map[string]any{{"spend": "12.34"}}, ""),
	)

	env, err := c.GetWithRetry(context.Background(), "/act_1/insights", query.New(), 3)
	if err != nil {
		t.Fatalf("GetWithRetry() error = %v", err)
	}
	if len(env.Data) != 1 {
		t.Errorf("len(Data) = %d, want 1", len(env.Data))
	}
	if mock.RequestCount() != 3 {
		t.Errorf("requests = %d, want 3", mock.RequestCount())
	}

	want := []time.Duration{400 * time.Millisecond, 800 * time.Millisecond}
	if got := recorder.Delays(); !reflect.DeepEqual(got, want) {
		t.Errorf("delays = %v, want %v", got, want)
	}
}

func TestGetWithRetry_Exhausted(t *testing.T) {
	recorder := &sleepRecorder{}
	c, mock := newTestClient(t, func(cfg *Config) { cfg.Sleep = recorder.Sleep })
	mock.Script("/act_1/ads", testutil.NewRateLimitResponse())

	_, err := c.GetWithRetry(context.Background(), "/act_1/ads", query.New(), 3)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}

	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("exhausted error should wrap the last *UpstreamError, got %v", err)
	}
	if upstream.Code != CodeUserRequestLimit {
		t.Errorf("Code = %d, want %d", upstream.Code, CodeUserRequestLimit)
	}

	if mock.RequestCount() != 4 {
		t.Errorf("requests = %d, want 4", mock.RequestCount())
	}
	want := []time.Duration{400 * time.Millisecond, 800 * time.Millisecond, 1600 * time.Millisecond}
	if got := recorder.Delays(); !reflect.DeepEqual(got, want) {
		t.Errorf("delays = %v, want %v (no sleep after the final attempt)", got, want)
	}
}

func TestGetWithRetry_ZeroRetries(t *testing.T) {
	recorder := &sleepRecorder{}
	c, mock := newTestClient(t, func(cfg *Config) { cfg.Sleep = recorder.Sleep })
	mock.Script("/act_1/ads", testutil.NewRateLimitResponse())

	_, err := c.GetWithRetry(context.Background(), "/act_1/ads", query.New(), 0)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("requests = %d, want 1", mock.RequestCount())
	}
	if len(recorder.Delays()) != 0 {
		t.Errorf("delays = %v, want none", recorder.Delays())
	}
}

func TestGetWithRetry_NoRetryOnOtherErrors(t *testing.T) {
	tests := []struct {
		name     string
		response testutil.MockResponse
	}{
		{"invalid parameter", testutil.ErrorResponse(http.StatusBadRequest, 100, "OAuthException", "Invalid parameter")},
		{"expired token", testutil.ErrorResponse(http.StatusUnauthorized, 190, "OAuthException", "Session has expired")},
		{"server error", testutil.MockResponse{StatusCode: http.StatusInternalServerError, Body: "oops"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &sleepRecorder{}
			c, mock := newTestClient(t, func(cfg *Config) { cfg.Sleep = recorder.Sleep })
			mock.Script("/act_1/ads", tt.response)

			_, err := c.GetWithRetry(context.Background(), "/act_1/ads", query.New(), 3)
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, ErrRetryExhausted) {
				t.Errorf("non-throttling error must not be reported as exhausted: %v", err)
			}
			if mock.RequestCount() != 1 {
				t.Errorf("requests = %d, want 1", mock.RequestCount())
			}
			if len(recorder.Delays()) != 0 {
				t.Errorf("delays = %v, want none", recorder.Delays())
			}
		})
	}
}

func TestGetWithRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c, mock := newTestClient(t, func(cfg *Config) {
		cfg.Sleep = func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}
	})
	mock.Script("/act_1/ads", testutil.NewRateLimitResponse())

	_, err := c.GetWithRetry(ctx, "/act_1/ads", query.New(), 3)
	if !errors.Is(err, ErrContextCancelled) {
		t.Fatalf("error = %v, want ErrContextCancelled", err)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("requests = %d, want 1", mock.RequestCount())
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("sleepContext should return as soon as ctx is done")
	}
}

func TestListPaginated_FollowsCursors(t *testing.T) {
	c, mock := newTestClient(t, nil)
	mock.SetPages("/act_1/campaigns",
		[]map[string]any{{"id": "1"}, {"id": "2"}},
		[]map[string]any{{"id": "3"}, {"id": "4"}},
		[]map[string]any{{"id": "5"}, {"id": "6"}},
	)

	items, err := c.ListPaginated(context.Background(), "/act_1/campaigns", query.New("fields", query.String("id")), nil)
	if err != nil {
		t.Fatalf("ListPaginated() error = %v", err)
	}
	if len(items) != 6 {
		t.Fatalf("len(items) = %d, want 6", len(items))
	}
	if string(items[0]) != `{"id":"1"}` || string(items[5]) != `{"id":"6"}` {
		t.Errorf("items out of order: first=%s last=%s", items[0], items[5])
	}

	reqs := mock.Requests()
	if len(reqs) != 3 {
		t.Fatalf("requests = %d, want 3", len(reqs))
	}
	wantCursors := []string{"", "page-1", "page-2"}
	for i, req := range reqs {
		q := req.URL.Query()
		if got := q.Get("after"); got != wantCursors[i] {
			t.Errorf("request %d after = %q, want %q", i, got, wantCursors[i])
		}
		if got := q.Get("limit"); got != "100" {
			t.Errorf("request %d limit = %q, want 100", i, got)
		}
		if got := q.Get("fields"); got != "id" {
			t.Errorf("request %d fields = %q, want id", i, got)
		}
	}
}

func TestListPaginated_Ceiling(t *testing.T) {
	c, mock := newTestClient(t, nil)
	pages := make([][]map[string]any, 10)
	for i := range pages {
		pages[i] = []map[string]any{{"n": i}}
	}
	mock.SetPages("/act_1/ads", pages...)

	opts := pagination.DefaultOptions()
	opts.MaxPages = 4

	items, err := c.ListPaginated(context.Background(), "/act_1/ads", nil, &opts)
	if err != nil {
		t.Fatalf("ListPaginated() error = %v", err)
	}
	if len(items) != 4 {
		t.Errorf("len(items) = %d, want 4 (truncated at the page ceiling)", len(items))
	}
	if mock.RequestCount() != 4 {
		t.Errorf("requests = %d, want 4", mock.RequestCount())
	}
}

func TestListPaginated_RetriesMidListing(t *testing.T) {
	recorder := &sleepRecorder{}
	c, mock := newTestClient(t, func(cfg *Config) { cfg.Sleep = recorder.Sleep })
	mock.Script("/act_1/adsets",
		testutil.PageResponse([]map[string]any{{"id": "a"}}, "c1"),
		testutil.NewRateLimitResponse(),
		testutil.PageResponse([]map[string]any{{"id": "b"}}, ""),
	)

	items, err := c.ListPaginated(context.Background(), "/act_1/adsets", nil, nil)
	if err != nil {
		t.Fatalf("ListPaginated() error = %v", err)
	}
	if len(items) != 2 {
		t.Errorf("len(items) = %d, want 2", len(items))
	}
	if got := recorder.Delays(); len(got) != 1 || got[0] != 400*time.Millisecond {
		t.Errorf("delays = %v, want [400ms]", got)
	}
	if got := mock.Requests()[2].URL.Query().Get("after"); got != "c1" {
		t.Errorf("retried request after = %q, want c1", got)
	}
}

func TestListPaginated_PartialOptionsUseClientBudget(t *testing.T) {
	tests := []struct {
		name         string
		maxRetries   int
		wantRequests int
	}{
		{"client budget", 2, 3},
		{"client disables retries", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mock := newTestClient(t, func(cfg *Config) { cfg.MaxRetries = tt.maxRetries })
			mock.Script("/act_1/ads", testutil.NewRateLimitResponse())

			_, err := c.ListPaginated(context.Background(), "/act_1/ads", nil, &pagination.Options{MaxPages: 2})
			if !errors.Is(err, ErrRetryExhausted) {
				t.Errorf("error = %v, want ErrRetryExhausted", err)
			}
			if mock.RequestCount() != tt.wantRequests {
				t.Errorf("requests = %d, want %d", mock.RequestCount(), tt.wantRequests)
			}
		})
	}
}

func TestListPaginated_FailureDiscardsPartialResults(t *testing.T) {
	c, mock := newTestClient(t, nil)
	mock.Script("/act_1/ads",
		testutil.PageResponse([]map[string]any{{"id": "1"}}, "c1"),
		testutil.ErrorResponse(http.StatusBadRequest, 100, "OAuthException", "Invalid cursor"),
	)

	items, err := c.ListPaginated(context.Background(), "/act_1/ads", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if items != nil {
		t.Errorf("items = %v, want nil on failure", items)
	}
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || upstream.Code != 100 {
		t.Errorf("error = %v, want wrapped *UpstreamError code 100", err)
	}
}
