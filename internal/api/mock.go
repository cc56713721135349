package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
)

// Handler answers one simulated request.
type Handler func(method string, params map[string]string, body interface{}) (map[string]interface{}, error)

// InMemoryTransport is a lightweight simulation of the SpaceTraders API for
// unit tests. GET requests are served from seeded listings and objects;
// anything else goes through registered handlers.
type InMemoryTransport struct {
	mu sync.Mutex

	listings map[string][]map[string]interface{}
	objects  map[string]map[string]interface{}
	handlers map[string]Handler
	failures map[string]error

	RequestLog []RequestLogEntry
}

// NewInMemoryTransport creates a new in-memory transport for testing.
func NewInMemoryTransport() *InMemoryTransport {
	return &InMemoryTransport{
		listings:   make(map[string][]map[string]interface{}),
		objects:    make(map[string]map[string]interface{}),
		handlers:   make(map[string]Handler),
		failures:   make(map[string]error),
		RequestLog: make([]RequestLogEntry, 0),
	}
}

// SeedListing appends items to a paginated listing endpoint.
func (t *InMemoryTransport) SeedListing(endpoint string, items ...map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listings[endpoint] = append(t.listings[endpoint], items...)
}

// SeedObject sets the data returned by GET endpoint.
func (t *InMemoryTransport) SeedObject(endpoint string, data map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.objects[endpoint] = data
}

// Handle registers a handler for endpoint, for any method.
func (t *InMemoryTransport) Handle(endpoint string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[endpoint] = h
}

// FailOn makes every request to endpoint return err until cleared with a nil err.
func (t *InMemoryTransport) FailOn(endpoint string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		delete(t.failures, endpoint)
		return
	}
	t.failures[endpoint] = err
}

// RequestsMade returns the number of requests made to this transport.
func (t *InMemoryTransport) RequestsMade() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.RequestLog)
}

// RequestsTo returns the number of requests made to endpoint.
func (t *InMemoryTransport) RequestsTo(endpoint string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.RequestLog {
		if r.Endpoint == endpoint {
			n++
		}
	}
	return n
}

// Reset clears all seeded data and recorded requests.
func (t *InMemoryTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listings = make(map[string][]map[string]interface{})
	t.objects = make(map[string]map[string]interface{})
	t.handlers = make(map[string]Handler)
	t.failures = make(map[string]error)
	t.RequestLog = make([]RequestLogEntry, 0)
}

// Request simulates a low-level SpaceTraders API request.
func (t *InMemoryTransport) Request(ctx context.Context, method, endpoint string, params map[string]string, body interface{}) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	// Track the call for assertions in unit tests
	t.RequestLog = append(t.RequestLog, RequestLogEntry{
		Method:   method,
		Endpoint: endpoint,
		Params:   copyParams(params),
		Body:     body,
	})
	failure := t.failures[endpoint]
	handler := t.handlers[endpoint]
	listing, isListing := t.listings[endpoint]
	object, isObject := t.objects[endpoint]
	t.mu.Unlock()

	if failure != nil {
		return nil, failure
	}
	if handler != nil {
		return handler(method, params, body)
	}
	if method == http.MethodGet && isListing {
		return paginate(listing, params), nil
	}
	if method == http.MethodGet && isObject {
		if object == nil {
			return nil, nil
		}
		return map[string]interface{}{"data": object}, nil
	}
	return nil, &APIError{StatusCode: http.StatusNotFound, Message: "Resource not found: " + endpoint}
}

// paginate serves one page of items using limit and page parameters.
func paginate(items []map[string]interface{}, params map[string]string) map[string]interface{} {
	limit := 10
	if l, err := strconv.Atoi(params["limit"]); err == nil && l > 0 {
		limit = l
	}
	page := 1
	if p, err := strconv.Atoi(params["page"]); err == nil && p > 0 {
		page = p
	}

	start := (page - 1) * limit
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}

	data := make([]interface{}, 0, end-start)
	for _, item := range items[start:end] {
		data = append(data, item)
	}
	return map[string]interface{}{
		"data": data,
		"meta": map[string]interface{}{
			"total": len(items),
			"page":  page,
			"limit": limit,
		},
	}
}

// copyParams creates a copy of the params map.
func copyParams(params map[string]string) map[string]string {
	result := make(map[string]string)
	for k, v := range params {
		result[k] = v
	}
	return result
}
