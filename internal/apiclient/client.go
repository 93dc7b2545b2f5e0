// Package apiclient talks to the remote POS API. Reads go through the response
// cache, writes fall back to the offline queue when the server cannot be reached,
// and queued writes are replayed through Replay.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/cache"
	"github.com/jrjohn/arcana-pos-go/internal/offline"
	"github.com/jrjohn/arcana-pos-go/internal/resilience"
	apperrors "github.com/jrjohn/arcana-pos-go/pkg/errors"
)

var (
	// ErrQueued is matched by errors.Is when a write was stored for later replay
	ErrQueued = errors.New("apiclient: request queued for sync")
	// ErrInvalidRequest marks a request that could not be built. It is never queued or retried.
	ErrInvalidRequest = errors.New("apiclient: invalid request")
)

// maxResponseSize bounds how much of a response body is read
const maxResponseSize = 8 << 20

// QueuedError reports a write that was queued instead of sent
type QueuedError struct {
	Request offline.QueuedRequest
	// Cause is the transport error that triggered queueing, nil when the device was offline
	Cause error
}

func (e *QueuedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s queued as %s: %v", e.Request.Method, e.Request.Endpoint, e.Request.ID, e.Cause)
	}
	return fmt.Sprintf("%s %s queued as %s while offline", e.Request.Method, e.Request.Endpoint, e.Request.ID)
}

func (e *QueuedError) Is(target error) bool { return target == ErrQueued }

func (e *QueuedError) Unwrap() error { return e.Cause }

// TokenSource supplies the bearer token; *session.Manager satisfies it
type TokenSource interface {
	Token() string
}

// Connectivity reports whether writes should be attempted
type Connectivity interface {
	IsOnline() bool
}

// Enqueuer stores writes for later replay; *offline.Service satisfies it
type Enqueuer interface {
	EnqueueRequest(ctx context.Context, req offline.Request) (*offline.QueuedRequest, error)
}

// Client is the REST client for the POS API
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	tokens  TokenSource
	conn    Connectivity
	queue   Enqueuer
	cache   *cache.ResponseCache
	retry   *resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource sends a bearer token with every request
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithConnectivity skips live writes while offline
func WithConnectivity(conn Connectivity) Option {
	return func(c *Client) { c.conn = conn }
}

// WithQueue enables offline fallback for writes
func WithQueue(q Enqueuer) Option {
	return func(c *Client) { c.queue = q }
}

// WithCache caches reads and invalidates them after writes
func WithCache(rc *cache.ResponseCache) Option {
	return func(c *Client) { c.cache = rc }
}

// WithRetry overrides the read retry policy
func WithRetry(cfg *resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithRetryAttempts sets how many times a failed read is retried after the first attempt
func WithRetryAttempts(n int) Option {
	return func(c *Client) {
		if n < 0 {
			n = 0
		}
		retry := *c.retry
		retry.MaxAttempts = n + 1
		c.retry = &retry
	}
}

// WithCircuitBreaker guards replays
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// New creates a client for baseURL
func New(baseURL string, timeout time.Duration, logger *zap.Logger, opts ...Option) *Client {
	logger = logger.With(zap.String("component", "api_client"))

	retry := resilience.DefaultRetryConfig()
	retry.IsRetryable = isRetryable

	breakerCfg := resilience.DefaultCircuitBreakerConfig("api-replay")
	breakerCfg.IsFailure = isRetryable

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(breakerCfg, logger),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Breaker exposes the replay circuit breaker
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

// Get reads endpoint into out. Identical concurrent reads share one request and
// results are cached for cache.DefaultTTL.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values, out any) error {
	target := endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	fetch := func(ctx context.Context) ([]byte, error) {
		return resilience.RetryWithResult(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
			return c.do(ctx, offline.MethodGet, target, nil, nil)
		})
	}

	var (
		data []byte
		err  error
	)
	if c.cache != nil {
		data, err = c.cache.Do(ctx, cache.Key(http.MethodGet, endpoint, params), fetch)
	} else {
		data, err = fetch(ctx)
	}
	if err != nil {
		return err
	}
	return decode(data, out)
}

// Post creates a resource
func (c *Client) Post(ctx context.Context, endpoint string, payload, out any, opts ...offline.RequestOption) error {
	return c.mutate(ctx, offline.MethodPost, endpoint, payload, out, opts)
}

// Put replaces a resource
func (c *Client) Put(ctx context.Context, endpoint string, payload, out any, opts ...offline.RequestOption) error {
	return c.mutate(ctx, offline.MethodPut, endpoint, payload, out, opts)
}

// Delete removes a resource
func (c *Client) Delete(ctx context.Context, endpoint string, out any, opts ...offline.RequestOption) error {
	return c.mutate(ctx, offline.MethodDelete, endpoint, nil, out, opts)
}

// mutate sends a write, or queues it when offline or when the server cannot be reached.
// HTTP error responses are returned as *errors.AppError and never queued.
func (c *Client) mutate(ctx context.Context, method offline.Method, endpoint string, payload, out any, opts []offline.RequestOption) error {
	opts = append([]offline.RequestOption{offline.WithIdempotencyKey(uuid.New().String())}, opts...)
	req, err := offline.NewRequest(method, endpoint, payload, opts...)
	if err != nil {
		return err
	}

	if c.queue != nil && c.conn != nil && !c.conn.IsOnline() {
		return c.enqueue(ctx, req, nil)
	}

	headers := make(map[string]string, len(req.Headers)+1)
	for k, v := range req.Headers {
		headers[k] = v
	}
	headers[offline.IdempotencyHeader] = req.IdempotencyKey

	data, err := c.do(ctx, method, endpoint, req.Payload, headers)
	if err != nil {
		if c.queue != nil && isTransportError(err) {
			return c.enqueue(ctx, req, err)
		}
		return err
	}

	c.invalidate(method, endpoint)
	return decode(data, out)
}

func (c *Client) enqueue(ctx context.Context, req offline.Request, cause error) error {
	entry, err := c.queue.EnqueueRequest(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to queue %s %s: %w", req.Method, req.Endpoint, err)
	}

	c.logger.Info("Write queued for sync",
		zap.String("id", entry.ID),
		zap.String("method", string(entry.Method)),
		zap.String("endpoint", entry.Endpoint),
		zap.NamedError("cause", cause),
	)
	return &QueuedError{Request: *entry, Cause: cause}
}

// Replay sends a queued request with its stored headers and idempotency key.
// It implements syncer.Transport.
func (c *Client) Replay(ctx context.Context, req offline.QueuedRequest) error {
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		_, err := c.do(ctx, req.Method, req.Endpoint, req.Payload, req.ReplayHeaders())
		return err
	})
	if err != nil {
		return err
	}

	c.invalidate(req.Method, req.Endpoint)
	return nil
}

// invalidate drops cached reads affected by a successful write
func (c *Client) invalidate(method offline.Method, endpoint string) {
	if c.cache == nil {
		return
	}
	resource := strings.SplitN(endpoint, "?", 2)[0]
	c.cache.Invalidate(resource)
	if method != offline.MethodPost {
		if parent := path.Dir(resource); parent != "/" && parent != "." {
			c.cache.Invalidate(parent)
		}
	}
}

func (c *Client) do(ctx context.Context, method offline.Method, endpoint string, body []byte, headers map[string]string) ([]byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, string(method), c.baseURL+"/"+strings.TrimPrefix(endpoint, "/"), reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, apperrors.FromStatus(resp.StatusCode, errorMessage(data))
	}
	return data, nil
}

// errorMessage extracts "message" from a JSON error body
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.Error != nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return body.Message
}

func decode(data []byte, out any) error {
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// isTransportError reports failures where the server never produced a response
func isTransportError(err error) bool {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) || errors.Is(err, ErrInvalidRequest) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// isRetryable covers transport errors and server-side statuses
func isRetryable(err error) bool {
	return isTransportError(err) || apperrors.IsServerSide(err)
}
