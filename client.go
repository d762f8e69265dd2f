package authclient

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/singleflight"
)

// Request describes one call through the Client.
type Request struct {
	Method string
	Path   string
	Body   []byte
	Header http.Header

	// ContextKey partitions the dedupe/cache key by logical context, for
	// example a device id. Empty means the config device id.
	ContextKey string

	// SkipAuth disables credential attachment and the 401 recovery path.
	SkipAuth bool

	// identityCheck marks requests originating from the Orchestrator. Only
	// marked requests may reach the identity-check endpoint.
	identityCheck bool
}

// Response is the settled result of a Request. Instances are shared between
// coalesced callers and must be treated as read-only.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	FromCache  bool
}

// OK reports whether the status code is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ClientOption customizes Client construction.
type ClientOption func(*Client)

// WithTransport overrides the underlying HTTP transport.
func WithTransport(d Doer) ClientOption {
	return func(c *Client) {
		if d != nil {
			c.transport = d
		}
	}
}

// WithTokenStore sets the credential store used in header mode.
func WithTokenStore(store TokenStore) ClientOption {
	return func(c *Client) {
		if store != nil {
			c.tokens = store
		}
	}
}

// WithRefresher sets the refresher invoked on the 401 recovery path.
func WithRefresher(r Refresher) ClientOption {
	return func(c *Client) {
		c.refresher = r
	}
}

// WithClientLogger overrides the logger.
func WithClientLogger(logger Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClientActivitySink sets the sink receiving client events.
func WithClientActivitySink(sink ActivitySink) ClientOption {
	return func(c *Client) {
		c.sink = normalizeActivitySink(sink)
	}
}

// WithClientClock injects a custom clock (useful for tests).
func WithClientClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithEpoch shares an externally owned epoch, typically seeded with
// EpochSeedFromToken when the deployment wants cache namespaces to survive
// a restart.
func WithEpoch(e *Epoch) ClientOption {
	return func(c *Client) {
		if e != nil {
			c.epoch = e
		}
	}
}

// WithAuthLostHandler registers the redirect-to-login side effect fired when
// the single refresh attempt after a 401 fails.
func WithAuthLostHandler(fn func()) ClientOption {
	return func(c *Client) {
		c.onAuthLost = fn
	}
}

// WithBackoffFactory overrides how per-request backoff policies are built.
func WithBackoffFactory(fn func() backoff.BackOff) ClientOption {
	return func(c *Client) {
		if fn != nil {
			c.newBackoff = fn
		}
	}
}

// Client wraps the platform HTTP transport with credential attachment,
// single-flight request coalescing, epoch-scoped response caching, one-shot
// refresh recovery on 401, and bounded backoff on transient failures.
type Client struct {
	cfg        Config
	transport  Doer
	tokens     TokenStore
	refresher  Refresher
	logger     Logger
	sink       ActivitySink
	epoch      *Epoch
	cache      *responseCache
	flight     singleflight.Group
	now        func() time.Time
	newBackoff func() backoff.BackOff
	onAuthLost func()
}

// NewClient returns a Client for the given configuration.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	c := &Client{
		cfg:       cfg,
		transport: http.DefaultClient,
		tokens:    NewMemoryTokenStore(),
		logger:    defLogger{},
		sink:      noopActivitySink{},
		epoch:     NewEpoch(0),
		now:       time.Now,
	}

	c.newBackoff = func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 250 * time.Millisecond
		bo.MaxInterval = 5 * time.Second
		return bo
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.cache = newResponseCache(cfg.GetCacheTTL(), c.now)

	return c
}

// Epoch exposes the cache-partition epoch. The Orchestrator bumps it; other
// callers should treat it as read-only.
func (c *Client) Epoch() *Epoch {
	return c.epoch
}

// TokenStore exposes the credential store so the Orchestrator and the
// Client always read the same pair.
func (c *Client) TokenStore() TokenStore {
	return c.tokens
}

// SetRefresher wires the 401 recovery path after construction; the
// canonical Refresher is the Orchestrator, which is built after the Client.
func (c *Client) SetRefresher(r Refresher) {
	c.refresher = r
}

// BumpEpoch advances the authentication generation and reclaims cache
// entries from superseded generations.
func (c *Client) BumpEpoch() int64 {
	next := c.epoch.Bump()
	c.cache.dropEpochsBefore(next)
	return next
}

// Do executes a request. Concurrent calls with an identical
// (method, path, epoch, context, body) key share one network call and
// receive the same Response; this applies to all methods so concurrent UI
// triggers cannot double-fire a mutation. Only GET responses are served
// from, or stored into, the TTL cache.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.Path == "" {
		return nil, goerrors.New("request path is required", goerrors.CategoryValidation)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	if c.isIdentityPath(req.Path) && !req.identityCheck {
		c.logger.Error("identity check attempted outside the orchestrator: %s %s", method, req.Path)
		c.record(ctx, ActivityEvent{
			EventType: ActivityEventGuardViolation,
			Metadata:  map[string]any{"method": method, "path": req.Path},
		})
		return nil, withMetadata(ErrGuardViolation, map[string]any{
			"method": method,
			"path":   req.Path,
		})
	}

	contextKey := req.ContextKey
	if contextKey == "" {
		contextKey = c.cfg.GetDeviceID()
	}

	key := cacheKey{
		Method:     method,
		Path:       req.Path,
		Epoch:      c.epoch.Current(),
		ContextKey: contextKey,
	}

	// Identity checks are never served from cache: CheckAuth promises a
	// fresh answer. They still coalesce with concurrent identical calls.
	if method == http.MethodGet && !req.identityCheck {
		if entry, ok := c.cache.get(key); ok {
			return &Response{
				StatusCode: entry.status,
				Header:     entry.header,
				Body:       entry.body,
				FromCache:  true,
			}, nil
		}
	}

	flightKey := key.String()
	if len(req.Body) > 0 {
		flightKey += " body=" + bodyDigest(req.Body)
	}

	result, err, _ := c.flight.Do(flightKey, func() (any, error) {
		return c.execute(ctx, method, req, contextKey)
	})
	if err != nil {
		return nil, err
	}

	return result.(*Response), nil
}

// Get is shorthand for a GET Do.
func (c *Client) Get(ctx context.Context, path string, opts ...func(*Request)) (*Response, error) {
	req := &Request{Method: http.MethodGet, Path: path}
	for _, opt := range opts {
		if opt != nil {
			opt(req)
		}
	}
	return c.Do(ctx, req)
}

// Post is shorthand for a POST Do with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body []byte, opts ...func(*Request)) (*Response, error) {
	req := &Request{Method: http.MethodPost, Path: path, Body: body}
	for _, opt := range opts {
		if opt != nil {
			opt(req)
		}
	}
	return c.Do(ctx, req)
}

// WithContextKey sets the logical dedupe partition on a shorthand request.
func WithContextKey(key string) func(*Request) {
	return func(r *Request) {
		r.ContextKey = key
	}
}

func (c *Client) execute(ctx context.Context, method string, req *Request, contextKey string) (*Response, error) {
	resp, err := c.executeWithRetry(ctx, method, req)
	if err != nil {
		return nil, err
	}

	// A 401 from the identity check is a valid "unauthenticated" answer,
	// not a recoverable failure; the Orchestrator decides whether a
	// bootstrap refresh is warranted.
	if resp.StatusCode == http.StatusUnauthorized && !req.SkipAuth && !req.identityCheck && c.refresher != nil {
		recovered, rerr := c.recoverAuth(ctx, method, req)
		if rerr != nil {
			return nil, rerr
		}
		resp = recovered
	}

	if method == http.MethodGet && resp.OK() && !req.identityCheck {
		c.cache.put(cacheKey{
			Method:     method,
			Path:       req.Path,
			Epoch:      c.epoch.Current(),
			ContextKey: contextKey,
		}, resp.StatusCode, resp.Header, resp.Body)
	}

	return resp, nil
}

// recoverAuth runs the single refresh attempt allowed per 401 and replays
// the original request once. Never loops.
func (c *Client) recoverAuth(ctx context.Context, method string, req *Request) (*Response, error) {
	if _, ok := c.tokens.RefreshToken(); !ok && c.cfg.GetCredentialMode() == ModeHeader {
		return nil, withMetadata(ErrNoCredentials, map[string]any{"path": req.Path})
	}

	if err := c.refresher.Refresh(ctx); err != nil {
		c.logger.Warn("refresh after 401 failed, clearing credentials: %v", err)
		if cerr := c.tokens.Clear(); cerr != nil {
			c.logger.Error("token store clear failed: %v", cerr)
		}
		if c.onAuthLost != nil {
			c.onAuthLost()
		}
		return nil, goerrors.Wrap(err, ErrRefreshFailed.Category, ErrRefreshFailed.Message).
			WithTextCode(ErrRefreshFailed.TextCode)
	}

	c.record(ctx, ActivityEvent{
		EventType: ActivityEventTokenRefresh,
		Metadata:  map[string]any{"path": req.Path},
	})

	return c.executeWithRetry(ctx, method, req)
}

// executeWithRetry performs the network call, applying bounded exponential
// backoff with jitter on transport errors and retryable statuses. 4xx
// responses other than 401 are returned on the first attempt untouched.
func (c *Client) executeWithRetry(ctx context.Context, method string, req *Request) (*Response, error) {
	bo := c.newBackoff()
	maxRetries := c.cfg.GetMaxRetries()

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := c.executeOnce(ctx, method, req)
		if err == nil && !isRetryableStatus(resp.StatusCode) {
			return resp, nil
		}

		if err != nil {
			lastErr = err
		}

		if attempt >= maxRetries {
			if err != nil {
				return nil, goerrors.Wrap(lastErr, ErrRetryExhausted.Category, ErrRetryExhausted.Message).
					WithTextCode(ErrRetryExhausted.TextCode)
			}
			// Retry budget spent on an HTTP-level failure: surface the
			// final response as-is.
			return resp, nil
		}

		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			delay = time.Second
		}
		if err == nil {
			if after, ok := retryAfter(resp.Header, c.now()); ok {
				delay = after
			}
		}

		c.logger.Debug("retrying %s %s in %s (attempt %d)", method, req.Path, delay, attempt+1)
		if serr := sleepCtx(ctx, delay); serr != nil {
			return nil, goerrors.Wrap(serr, goerrors.CategoryOperation, "request cancelled during backoff")
		}
	}
}

func (c *Client) executeOnce(ctx context.Context, method string, req *Request) (*Response, error) {
	url := strings.TrimRight(c.cfg.GetBaseURL(), "/") + req.Path

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "could not build request")
	}

	for name, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if !req.SkipAuth && c.cfg.GetCredentialMode() == ModeHeader {
		if token, ok := c.tokens.AccessToken(); ok {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	// Cookie mode rides on the transport's cookie jar; nothing to attach.

	httpResp, err := c.transport.Do(httpReq)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "transport error")
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "could not read response body")
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		Body:       payload,
	}, nil
}

func (c *Client) isIdentityPath(path string) bool {
	return path == c.cfg.GetIdentityPath()
}

func (c *Client) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = c.now()
	}
	if err := normalizeActivitySink(c.sink).Record(ctx, event); err != nil {
		c.logger.Warn("client activity sink error: %v", err)
	}
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryAfter honors the Retry-After header in both delta-seconds and
// HTTP-date forms.
func retryAfter(header http.Header, now time.Time) (time.Duration, bool) {
	raw := header.Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func bodyDigest(body []byte) string {
	h := fnv.New64a()
	h.Write(body)
	return fmt.Sprintf("%x", h.Sum64())
}
