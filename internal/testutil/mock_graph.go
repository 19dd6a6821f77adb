// Package testutil provides a scripted Graph API server for tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// MockResponse defines one scripted response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockGraph is a configurable mock Graph API server. Paths are matched
// after the version segment, e.g. "/act_1/campaigns".
type MockGraph struct {
	server  *httptest.Server
	version string

	mu       sync.Mutex
	scripts  map[string][]MockResponse
	handlers map[string]http.HandlerFunc
	requests []*http.Request
}

// NewMockGraph creates a mock server serving the given version prefix.
func NewMockGraph(version string) *MockGraph {
	mock := &MockGraph{
		version:  "/" + strings.Trim(version, "/"),
		scripts:  make(map[string][]MockResponse),
		handlers: make(map[string]http.HandlerFunc),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

func (m *MockGraph) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, m.version)

	m.mu.Lock()
	m.requests = append(m.requests, r.Clone(r.Context()))
	handler, hasHandler := m.handlers[path]
	var resp *MockResponse
	if queue := m.scripts[path]; len(queue) > 0 {
		resp = &queue[0]
		// The last scripted response repeats forever.
		if len(queue) > 1 {
			m.scripts[path] = queue[1:]
		}
	}
	m.mu.Unlock()

	switch {
	case resp != nil:
		writeResponse(w, *resp)
	case hasHandler:
		handler(w, r)
	default:
		writeResponse(w, ErrorResponse(http.StatusNotFound, 803, "OAuthException", "Unknown path components: "+path))
	}
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// URL returns the mock server root (without version).
func (m *MockGraph) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGraph) Close() {
	m.server.Close()
}

// Script queues responses for path, served in order. The last one
// repeats once the queue is drained.
func (m *MockGraph) Script(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[path] = append(m.scripts[path], responses...)
}

// SetHandler sets a custom handler for path, used when no script is queued.
func (m *MockGraph) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetPages serves pages of items on path, following the "after" cursor.
// Page n carries cursor "page-<n+1>" unless it is the last page.
func (m *MockGraph) SetPages(path string, pages ...[]map[string]any) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		index := 0
		if after := r.URL.Query().Get("after"); after != "" {
			if _, err := fmt.Sscanf(after, "page-%d", &index); err != nil || index >= len(pages) {
				writeResponse(w, ErrorResponse(http.StatusBadRequest, 100, "OAuthException", "Invalid cursor"))
				return
			}
		}
		next := ""
		if index+1 < len(pages) {
			next = fmt.Sprintf("page-%d", index+1)
		}
		writeResponse(w, PageResponse(pages[index], next))
	})
}

// RequestCount returns the number of requests received.
func (m *MockGraph) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns copies of all requests received, in order.
func (m *MockGraph) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*http.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastQuery returns the query of the most recent request.
func (m *MockGraph) LastQuery() url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1].URL.Query()
}

// Reset clears recorded requests.
func (m *MockGraph) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// PageResponse builds a 200 listing page. An empty next omits the cursor.
func PageResponse(items []map[string]any, next string) MockResponse {
	if items == nil {
		items = []map[string]any{}
	}
	body := map[string]any{"data": items}
	if next != "" {
		body["paging"] = map[string]any{
			"cursors": map[string]string{"before": "b", "after": next},
			"next":    "https://graph.facebook.com/next",
		}
	}
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       mustJSON(body),
		Headers: map[string]string{
			"X-App-Usage": `{"call_count":1,"total_cputime":1,"total_time":1}`,
		},
	}
}

// ErrorResponse builds a Graph API error envelope response.
func ErrorResponse(status, code int, errType, message string) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body: mustJSON(map[string]any{"error": map[string]any{
			"message":       message,
			"type":          errType,
			"code":          code,
			"error_subcode": 0,
			"fbtrace_id":    "AbCdEfTrace",
		}}),
	}
}

// NewRateLimitResponse builds the "User request limit reached" envelope (code 17).
func NewRateLimitResponse() MockResponse {
	return ErrorResponse(http.StatusForbidden, 17, "OAuthException", "(#17) User request limit reached")
}

// NewAdAccountLimitResponse builds the ad-account throttling envelope (code 80004).
func NewAdAccountLimitResponse() MockResponse {
	return ErrorResponse(http.StatusBadRequest, 80004, "OAuthException", "(#80004) There have been too many calls to this ad-account.")
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
