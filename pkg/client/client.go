// Package client provides the Graph API client used by the ads proxy:
// single authenticated GET requests, error envelope classification,
// rate-limit retries with exponential backoff and cursor pagination.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/meta-ads-proxy/pkg/credentials"
	"github.com/Sternrassler/meta-ads-proxy/pkg/logging"
	"github.com/Sternrassler/meta-ads-proxy/pkg/pagination"
	"github.com/Sternrassler/meta-ads-proxy/pkg/query"
	"github.com/Sternrassler/meta-ads-proxy/pkg/ratelimit"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the Graph API root.
	DefaultBaseURL = "https://graph.facebook.com"

	// DefaultAPIVersion is the Graph API version segment.
	DefaultAPIVersion = "v24.0"

	// DefaultBaseDelay is the backoff before the first rate-limit retry.
	DefaultBaseDelay = 400 * time.Millisecond

	// MaxRetryLimit bounds Config.MaxRetries.
	MaxRetryLimit = 10

	// ParamAccessToken carries the credential on every request.
	ParamAccessToken = "access_token"
)

// Client is the Graph API client. It is safe for concurrent use; each
// listing call issues its requests sequentially.
type Client struct {
	httpClient  *http.Client
	credentials credentials.Source
	baseURL     string
	config      Config
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[*Envelope]
	usage       *ratelimit.Tracker
	sleep       Sleeper
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Credentials provides the access token (REQUIRED).
	Credentials credentials.Source

	// BaseURL is the API root without version, e.g. "https://graph.facebook.com".
	BaseURL string

	// APIVersion is the version segment, e.g. "v24.0".
	APIVersion string

	// Timeout bounds every single HTTP request. Ignored when HTTPClient is set.
	Timeout time.Duration

	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client

	// Retry
	MaxRetries int           // Rate-limit retries per request beyond the first attempt
	BaseDelay  time.Duration // Backoff before retry n is BaseDelay * 2^n

	// RequestsPerSecond paces attempts client-side (0 = unthrottled).
	RequestsPerSecond float64

	// CircuitBreaker stops calling the API after repeated transport failures.
	CircuitBreaker bool

	// Usage receives the usage headers of every response (optional).
	Usage *ratelimit.Tracker

	// Sleep waits between retries (default: timer honouring ctx).
	Sleep Sleeper
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(source credentials.Source) Config {
	return Config{
		Credentials: source,
		BaseURL:     DefaultBaseURL,
		APIVersion:  DefaultAPIVersion,
		Timeout:     30 * time.Second,
		MaxRetries:  3,
		BaseDelay:   DefaultBaseDelay,
	}
}

// New creates a new Graph API client.
func New(cfg Config) (*Client, error) {
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("credential source is required")
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	if cfg.APIVersion == "" {
		return nil, fmt.Errorf("api version is required")
	}

	if cfg.MaxRetries < 0 || cfg.MaxRetries > MaxRetryLimit {
		return nil, fmt.Errorf("max_retries must be between 0 and %d (got %d)", MaxRetryLimit, cfg.MaxRetries)
	}
	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests_per_second must be >= 0 (got %v)", cfg.RequestsPerSecond)
	}

	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := logging.NewLogger(logging.ComponentGraphClient)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	c := &Client{
		httpClient:  httpClient,
		credentials: cfg.Credentials,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.Trim(cfg.APIVersion, "/"),
		config:      cfg,
		usage:       cfg.Usage,
		sleep:       sleep,
		logger:      logger,
	}

	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	if cfg.CircuitBreaker {
		c.breaker = newBreaker(logger)
	}

	return c, nil
}

// Envelope is a decoded success response.
type Envelope struct {
	// Data holds the result items of listing endpoints, in upstream order.
	Data []json.RawMessage `json:"data"`

	// Paging is present on paginated responses.
	Paging *Paging `json:"paging,omitempty"`

	// Body is the raw response body, for non-listing endpoints.
	Body json.RawMessage `json:"-"`
}

// NextCursor returns the "after" cursor, or "" when there is no next page.
func (e *Envelope) NextCursor() string {
	if e == nil || e.Paging == nil {
		return ""
	}
	return e.Paging.Cursors.After
}

// Paging is the pagination block of a listing response.
type Paging struct {
	Cursors struct {
		Before string `json:"before,omitempty"`
		After  string `json:"after,omitempty"`
	} `json:"cursors"`
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
}

// errorEnvelope holds the "error" key of a response, undecoded.
type errorEnvelope struct {
	Error json.RawMessage `json:"error"`
}

// parseUpstreamError returns the error envelope of body, or nil when body has
// no error. An error value that is present but not an object yields an
// UpstreamError with only the generic message.
func parseUpstreamError(body []byte) *UpstreamError {
	var payload errorEnvelope
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	switch strings.TrimSpace(string(payload.Error)) {
	case "", "null", "false", "0", `""`:
		return nil
	}

	upstream := &UpstreamError{}
	if err := json.Unmarshal(payload.Error, upstream); err != nil {
		return &UpstreamError{}
	}
	return upstream
}

// Get performs exactly one authenticated GET request and classifies the
// result: an error envelope yields *UpstreamError regardless of status, a
// non-2xx status without one yields *TransportError.
func (c *Client) Get(ctx context.Context, path string, params *query.Params) (*Envelope, error) {
	endpoint := endpointLabel(path)
	env, err := c.get(ctx, path, params)
	if err != nil {
		if class := classify(err); class != "" {
			graphErrorsTotal.WithLabelValues(string(class)).Inc()
		}
		return nil, err
	}
	graphRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	return env, nil
}

func (c *Client) get(ctx context.Context, path string, params *query.Params) (*Envelope, error) {
	if strings.Contains(path, "?") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	token, err := c.credentials.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("read access token: %w", err)
	}
	if token == "" {
		return nil, ErrMissingCredential
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter wait: %w", ErrContextCancelled, err)
		}
	}

	target := c.buildURL(path, params.With(ParamAccessToken, query.String(token)))

	if c.breaker == nil {
		return c.do(ctx, path, target)
	}

	env, err := c.breaker.Execute(func() (*Envelope, error) {
		return c.do(ctx, path, target)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn().Err(err).Str("path", path).Msg("Request rejected by circuit breaker")
		return nil, fmt.Errorf("circuit breaker: %w", err)
	}
	return env, err
}

// buildURL joins the versioned root, path and encoded parameters.
func (c *Client) buildURL(path string, params *query.Params) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := c.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		target += "?" + encoded
	}
	return target
}

// do executes the request and classifies the response.
func (c *Client) do(ctx context.Context, path, target string) (*Envelope, error) {
	endpoint := endpointLabel(path)
	logger := logging.FromContext(ctx, c.logger)

	startTime := time.Now()
	defer func() {
		graphRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	logger.Debug().Str("endpoint", endpoint).Msg("Executing Graph API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		graphRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}
		logger.Error().Err(redact(err)).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, fmt.Errorf("%w: %w", ErrNetwork, redact(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		graphRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, fmt.Errorf("%w: read body: %w", ErrNetwork, err)
	}

	if c.usage != nil {
		if err := c.usage.UpdateFromHeaders(resp.Header); err != nil {
			logger.Warn().Err(err).Msg("Failed to parse usage headers")
		}
	}

	status := strconv.Itoa(resp.StatusCode)

	if upstream := parseUpstreamError(body); upstream != nil {
		upstream.HTTPStatus = resp.StatusCode
		graphRequestsTotal.WithLabelValues(endpoint, status).Inc()
		logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Int("code", upstream.Code).
			Int("subcode", upstream.Subcode).
			Str("fbtrace_id", upstream.TraceID).
			Bool("rate_limited", upstream.IsRateLimited()).
			Msg("Graph API error envelope")
		return nil, upstream
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		graphRequestsTotal.WithLabelValues(endpoint, status).Inc()
		logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("Graph API HTTP error")
		return nil, &TransportError{HTTPStatus: resp.StatusCode, Body: string(body)}
	}

	// An undecodable body is treated as an empty object.
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		env = Envelope{}
	}
	env.Body = body
	return &env, nil
}

// FetchPage implements pagination.PageFetcher with rate-limit retries.
func (c *Client) FetchPage(ctx context.Context, path string, params *query.Params, maxRetries int) (*pagination.Page, error) {
	env, err := c.GetWithRetry(ctx, path, params, maxRetries)
	if err != nil {
		return nil, err
	}
	return &pagination.Page{Items: env.Data, Next: env.NextCursor()}, nil
}

// ListPaginated returns every item of a cursor-paginated listing.
// A nil opts uses pagination.DefaultOptions. An unset MaxRetries takes the
// client's retry budget.
func (c *Client) ListPaginated(ctx context.Context, path string, params *query.Params, opts *pagination.Options) ([]json.RawMessage, error) {
	o := pagination.DefaultOptions()
	if opts != nil {
		o = *opts
	}
	if opts == nil || o.MaxRetries == 0 {
		o = o.WithMaxRetries(c.config.MaxRetries)
	}
	return pagination.Collect(ctx, c, path, params, o)
}

// MaxRetries returns the configured per-request retry budget.
func (c *Client) MaxRetries() int {
	return c.config.MaxRetries
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// redact strips the query string (which carries the access token) from
// *url.Error messages.
func redact(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	if u, perr := url.Parse(urlErr.URL); perr == nil {
		u.RawQuery = ""
		return &url.Error{Op: urlErr.Op, URL: u.String(), Err: urlErr.Err}
	}
	return &url.Error{Op: urlErr.Op, URL: "", Err: urlErr.Err}
}
