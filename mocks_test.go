package authclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	authclient "github.com/goliatone/go-authclient"
)

// countingHandler wraps an http.HandlerFunc and counts invocations per path.
type countingHandler struct {
	mu      sync.Mutex
	counts  map[string]int
	handler http.HandlerFunc
}

func newCountingHandler(handler http.HandlerFunc) *countingHandler {
	return &countingHandler{
		counts:  map[string]int{},
		handler: handler,
	}
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.counts[r.URL.Path]++
	h.mu.Unlock()
	h.handler(w, r)
}

func (h *countingHandler) count(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[path]
}

// memorySink collects activity events for assertions.
type memorySink struct {
	mu     sync.Mutex
	events []authclient.ActivityEvent
}

func (s *memorySink) Record(_ context.Context, event authclient.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memorySink) byType(t authclient.ActivityEventType) []authclient.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []authclient.ActivityEvent
	for _, e := range s.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

// countingRefresher tracks refresh attempts and their outcome.
type countingRefresher struct {
	calls atomic.Int64
	err   error
	onOK  func()
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.calls.Add(1)
	if r.err != nil {
		return r.err
	}
	if r.onOK != nil {
		r.onOK()
	}
	return nil
}

// newCountingServer starts a server for handler and returns its base URL.
func newCountingServer(t *testing.T, handler http.Handler) string {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server.URL
}

func newTestClient(t *testing.T, handler http.Handler, opts ...authclient.ClientOption) (*authclient.Client, *authclient.ClientConfig) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := authclient.DefaultConfig(server.URL)
	cfg.CacheTTL = 2 * time.Second
	cfg.MaxRetries = 2
	cfg.DeviceID = "test-device"

	client := authclient.NewClient(cfg, opts...)
	return client, cfg
}
