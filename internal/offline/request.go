// Package offline holds the persisted queue of mutating API requests that
// could not reach the server, and the facade the rest of the client uses to
// enqueue, inspect, and replay them.
package offline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxRetries is the number of failed replays after which an entry is dropped
const MaxRetries = 3

// Storage keys for the persisted queue and the failed-permanently list
const (
	QueueStorageKey  = "offline:request_queue"
	FailedStorageKey = "offline:failed_requests"
)

// IdempotencyHeader carries the per-entry key so the server can drop duplicate replays
const IdempotencyHeader = "Idempotency-Key"

// Common errors
var (
	ErrInvalidMethod   = errors.New("offline: unsupported request method")
	ErrMissingEndpoint = errors.New("offline: endpoint is required")
	ErrPersistFailed   = errors.New("offline: failed to persist queue")
)

// Method is an HTTP method a queued request may use
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
)

// ParseMethod normalises s into a Method
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMethod, s)
	}
	return m, nil
}

// Valid reports whether m is one of the supported methods
func (m Method) Valid() bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodDelete:
		return true
	default:
		return false
	}
}

// IsMutation reports whether m changes server state
func (m Method) IsMutation() bool {
	return m == MethodPost || m == MethodPut || m == MethodDelete
}

// Request describes a call to queue. Enqueue turns it into a QueuedRequest.
type Request struct {
	Endpoint string            `json:"endpoint"`
	Method   Method            `json:"method"`
	Payload  json.RawMessage   `json:"payload,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	// IdempotencyKey is kept when a live call already used it; Enqueue generates one otherwise
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// RequestOption configures a Request built by NewRequest
type RequestOption func(*Request)

// WithHeader sets a single header override
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Headers == nil {
			r.Headers = make(map[string]string)
		}
		r.Headers[key] = value
	}
}

// WithIdempotencyKey fixes the key sent with the request and its replays
func WithIdempotencyKey(key string) RequestOption {
	return func(r *Request) {
		r.IdempotencyKey = key
	}
}

// WithHeaders merges header overrides
func WithHeaders(headers map[string]string) RequestOption {
	return func(r *Request) {
		for k, v := range headers {
			WithHeader(k, v)(r)
		}
	}
}

// NewRequest builds a Request, serialising payload to JSON when it is not nil
func NewRequest(method Method, endpoint string, payload any, opts ...RequestOption) (Request, error) {
	req := Request{Endpoint: endpoint, Method: method}

	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		req.Payload = p
	case []byte:
		req.Payload = json.RawMessage(p)
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return Request{}, fmt.Errorf("failed to serialize payload: %w", err)
		}
		req.Payload = data
	}

	for _, opt := range opts {
		opt(&req)
	}

	return req, req.Validate()
}

// Validate checks the request can be queued
func (r Request) Validate() error {
	if !r.Method.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, r.Method)
	}
	if strings.TrimSpace(r.Endpoint) == "" {
		return ErrMissingEndpoint
	}
	return nil
}

// QueuedRequest is one pending request awaiting network replay
type QueuedRequest struct {
	ID             string            `json:"id"`
	Endpoint       string            `json:"endpoint"`
	Method         Method            `json:"method"`
	Payload        json.RawMessage   `json:"payload,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Timestamp      int64             `json:"timestamp"`
	RetryCount     int               `json:"retryCount"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
	LastError      string            `json:"lastError,omitempty"`
}

// EnqueuedAt returns Timestamp as a time.Time
func (q QueuedRequest) EnqueuedAt() time.Time {
	return time.UnixMilli(q.Timestamp)
}

// Clone returns a deep copy
func (q QueuedRequest) Clone() QueuedRequest {
	out := q
	if q.Payload != nil {
		out.Payload = append(json.RawMessage(nil), q.Payload...)
	}
	if q.Headers != nil {
		out.Headers = make(map[string]string, len(q.Headers))
		for k, v := range q.Headers {
			out.Headers[k] = v
		}
	}
	return out
}

// ReplayHeaders returns the stored header overrides plus the idempotency key
func (q QueuedRequest) ReplayHeaders() map[string]string {
	headers := make(map[string]string, len(q.Headers)+1)
	for k, v := range q.Headers {
		headers[k] = v
	}
	if q.IdempotencyKey != "" {
		headers[IdempotencyHeader] = q.IdempotencyKey
	}
	return headers
}

// newRequestID returns "<epoch-ms>-<random suffix>"
func newRequestID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:9]
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}

// SyncResult summarises one drain cycle
type SyncResult struct {
	Attempted   int  `json:"attempted"`
	Succeeded   int  `json:"succeeded"`
	Failed      int  `json:"failed"`
	Dropped     int  `json:"dropped"`
	Remaining   int  `json:"remaining"`
	Interrupted bool `json:"interrupted"`
}
