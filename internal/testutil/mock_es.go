// Package testutil provides testing utilities for the scroll client.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"
)

// MockPage defines one scripted response of the mock server.
type MockPage struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request received by the mock server.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   string
}

// MockES is a mock Elasticsearch server that answers search and scroll
// requests with scripted pages in order, one page per request.
type MockES struct {
	server   *httptest.Server
	mu       sync.RWMutex
	pages    []MockPage
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	requests []RecordedRequest
}

// NewMockES creates a new mock Elasticsearch server.
func NewMockES() *MockES {
	mock := &MockES{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   string(body),
		})
		handler, exists := mock.handlers[r.Method+" "+r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		if r.Method == http.MethodDelete {
			writeJSON(w, http.StatusOK, `{"succeeded":true,"num_freed":1}`)
			return
		}
		mock.serveNext(w)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockES) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockES) Close() {
	m.server.Close()
}

// AddPage appends a scripted response.
func (m *MockES) AddPage(page MockPage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = append(m.pages, page)
}

// AddScrollPage appends a 200 response carrying token and one hit per source.
// Each source must be a JSON value.
func (m *MockES) AddScrollPage(token string, sources ...string) {
	m.AddPage(MockPage{StatusCode: http.StatusOK, Body: ScrollBody(token, sources...)})
}

// SetHandler overrides the scripted pages for a method and path,
// for example "DELETE /_search/scroll".
func (m *MockES) SetHandler(route string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[route] = handler
}

// Requests returns a copy of all received requests in order.
func (m *MockES) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockES) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Remaining returns the number of scripted pages not yet served.
func (m *MockES) Remaining() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pages)
}

// serveNext writes the next scripted page. Without one it answers like an
// exhausted scroll.
func (m *MockES) serveNext(w http.ResponseWriter) {
	m.mu.Lock()
	if len(m.pages) == 0 {
		m.mu.Unlock()
		writeJSON(w, http.StatusOK, ScrollBody("exhausted"))
		return
	}
	page := m.pages[0]
	m.pages = m.pages[1:]
	m.mu.Unlock()

	if page.Delay > 0 {
		time.Sleep(page.Delay)
	}
	for key, value := range page.Headers {
		w.Header().Set(key, value)
	}
	writeJSON(w, page.StatusCode, page.Body)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	}
	w.WriteHeader(status)
	if body != "" {
		w.Write([]byte(body))
	}
}

// ScrollBody renders a scroll response. An empty token omits _scroll_id.
func ScrollBody(token string, sources ...string) string {
	var b strings.Builder
	b.WriteString(`{"took":1,"timed_out":false,`)
	if token != "" {
		fmt.Fprintf(&b, `"_scroll_id":%q,`, token)
	}
	fmt.Fprintf(&b, `"hits":{"total":{"value":%d,"relation":"eq"},"hits":[`, len(sources))
	for i, src := range sources {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"_index":"test","_id":"%d","_score":null,"_source":%s,"sort":[%d]}`, i, src, i)
	}
	b.WriteString("]}}")
	return b.String()
}

// NewServerErrorPage creates a 500 Internal Server Error response.
func NewServerErrorPage() MockPage {
	return MockPage{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error":{"type":"search_phase_execution_exception"},"status":500}`,
	}
}

// NewRateLimitPage creates a 429 Too Many Requests response.
func NewRateLimitPage() MockPage {
	return MockPage{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error":{"type":"es_rejected_execution_exception"},"status":429}`,
	}
}

// NewMissingContextPage creates the 404 returned for an expired scroll id.
func NewMissingContextPage() MockPage {
	return MockPage{
		StatusCode: http.StatusNotFound,
		Body:       `{"error":{"type":"search_context_missing_exception"},"status":404}`,
	}
}
