// Package directory is the client of the external user directory service.
//
// The directory is someone else's HTTP service and is allowed to be slow,
// down, or to answer in a shape we did not expect. The client absorbs all of
// that: every call ends in an Outcome (Found, Absent or Unavailable) and
// never in a transport error. Callers treat Absent and Unavailable the same
// way (fall back to local data); the difference only shows up in logs and
// metrics.
//
// RESILIENCE POLICY:
//
//   - every attempt is bounded by Remote.Timeout
//   - transport errors, timeouts, 429 and 5xx are retried with exponential
//     backoff, up to Remote.MaxAttempts attempts in total
//   - 404 is a definitive "absent" and is never retried
//   - any other 4xx, and bodies we cannot decode, are not retried
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/aanand-mishra/students-api/internal/config"
	"github.com/aanand-mishra/students-api/internal/types"
)

const (
	// MaxResponseSize caps how much of a response body is read (10MB).
	MaxResponseSize = 10 * 1024 * 1024

	// UserAgent is sent with every request.
	UserAgent = "students-api/1.0"
)

// Outcome is the result of a single logical call to the directory.
type Outcome int

const (
	// Found means the call succeeded (and, for reads, returned a record).
	Found Outcome = iota
	// Absent means the directory answered that the record does not exist.
	Absent
	// Unavailable means the call failed: transport error, timeout, retries
	// exhausted, unexpected status or an undecodable body.
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case Absent:
		return "absent"
	default:
		return "unavailable"
	}
}

// StatusError is a non-2xx answer from the directory.
type StatusError struct {
	StatusCode int
	Method     string
	URL        string

	retryAfter string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s %s", e.StatusCode, e.Method, e.URL)
}

// Client talks to the directory's /listar, /encontrar/{id}, /crear,
// /actualizar/{id} and /delete/{id} endpoints.
type Client struct {
	endpoint       string
	http           *http.Client
	timeout        time.Duration
	probeTimeout   time.Duration
	maxAttempts    uint
	initialBackoff time.Duration
	maxBackoff     time.Duration
	log            *slog.Logger
	metrics        *Metrics
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client. Per-attempt
// timeouts are enforced through the request context, so the given client
// does not need its own Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics records every call in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New builds a Client from the remote section of the configuration.
func New(cfg config.Remote, opts ...Option) *Client {
	c := &Client{
		endpoint:       strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.Trim(cfg.ResourcePath, "/"),
		http:           &http.Client{},
		timeout:        cfg.Timeout,
		probeTimeout:   cfg.ProbeTimeout,
		maxAttempts:    max(cfg.MaxAttempts, 1),
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(slog.String("component", "directory"))
	return c
}

// ─────────────────────────────────────────────────────────────────────────────
// Operations
// ─────────────────────────────────────────────────────────────────────────────

// ListAll returns every user in the directory, in the directory's order.
// Any failure yields an empty (non-nil) slice.
func (c *Client) ListAll(ctx context.Context) []types.RemoteUser {
	data, outcome := c.call(ctx, "list", http.MethodGet, "/listar", nil)
	if outcome != Found {
		return []types.RemoteUser{}
	}

	users, err := decodeUserList(data)
	if err != nil {
		c.log.WarnContext(ctx, "cannot decode user listing", slog.String("error", err.Error()))
		return []types.RemoteUser{}
	}

	c.log.DebugContext(ctx, "listed directory users", slog.Int("count", len(users)))
	return users
}

// GetByID fetches one user.
func (c *Client) GetByID(ctx context.Context, id int64) (types.RemoteUser, Outcome) {
	data, outcome := c.call(ctx, "get_by_id", http.MethodGet, "/encontrar/"+strconv.FormatInt(id, 10), nil)
	if outcome != Found {
		return types.RemoteUser{}, outcome
	}
	return c.decodeOne(ctx, "get_by_id", data)
}

// GetByEmail has no endpoint of its own: it lists every user and returns
// the first whose email matches case-insensitively.
func (c *Client) GetByEmail(ctx context.Context, email string) (types.RemoteUser, Outcome) {
	for _, u := range c.ListAll(ctx) {
		if strings.EqualFold(u.Email, email) {
			return u, Found
		}
	}
	return types.RemoteUser{}, Absent
}

// Create registers a new user in the directory.
func (c *Client) Create(ctx context.Context, user types.RemoteUser) (types.RemoteUser, Outcome) {
	data, outcome := c.call(ctx, "create", http.MethodPost, "/crear", user)
	if outcome != Found {
		return types.RemoteUser{}, outcome
	}
	return c.decodeWritten(ctx, "create", data, user)
}

// Update replaces the user stored under id. A 404 yields Absent.
func (c *Client) Update(ctx context.Context, id int64, user types.RemoteUser) (types.RemoteUser, Outcome) {
	data, outcome := c.call(ctx, "update", http.MethodPut, "/actualizar/"+strconv.FormatInt(id, 10), user)
	if outcome != Found {
		return types.RemoteUser{}, outcome
	}
	return c.decodeWritten(ctx, "update", data, user)
}

// Delete removes the user stored under id. Found means it was deleted.
func (c *Client) Delete(ctx context.Context, id int64) Outcome {
	_, outcome := c.call(ctx, "delete", http.MethodDelete, "/delete/"+strconv.FormatInt(id, 10), nil)
	return outcome
}

// IsAvailable issues one listing request bounded by the probe timeout and
// without retries. Only a 2xx answer counts as available.
func (c *Client) IsAvailable(ctx context.Context) bool {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	_, err := c.roundTrip(ctx, http.MethodGet, "/listar", nil)
	if err != nil {
		c.metrics.observe("probe", Unavailable, time.Since(start))
		c.log.WarnContext(ctx, "directory is not available", slog.String("error", err.Error()))
		return false
	}

	c.metrics.observe("probe", Found, time.Since(start))
	return true
}

// decodeWritten decodes the answer to an accepted write. A 2xx without a
// body (204, or 200 with nothing in it) still means the write was applied,
// so the user that was sent stands in for the answer.
func (c *Client) decodeWritten(ctx context.Context, op string, data []byte, sent types.RemoteUser) (types.RemoteUser, Outcome) {
	if len(bytes.TrimSpace(data)) == 0 {
		c.log.DebugContext(ctx, "directory accepted write without a body", slog.String("operation", op))
		return sent, Found
	}
	return c.decodeOne(ctx, op, data)
}

func (c *Client) decodeOne(ctx context.Context, op string, data []byte) (types.RemoteUser, Outcome) {
	user, err := decodeUser(data)
	switch {
	case errors.Is(err, errNoRecord):
		return types.RemoteUser{}, Absent
	case err != nil:
		c.log.WarnContext(ctx, "cannot decode directory user",
			slog.String("operation", op), slog.String("error", err.Error()))
		return types.RemoteUser{}, Unavailable
	}
	return user, Found
}

// ─────────────────────────────────────────────────────────────────────────────
// Transport
// ─────────────────────────────────────────────────────────────────────────────

// call runs one logical operation under the retry policy and folds every
// failure into an Outcome.
func (c *Client) call(ctx context.Context, op, method, path string, payload any) ([]byte, Outcome) {
	start := time.Now()

	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			c.log.ErrorContext(ctx, "cannot encode request body",
				slog.String("operation", op), slog.String("error", err.Error()))
			return nil, Unavailable
		}
	}

	attempts := 0
	data, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempts++
		return c.attempt(ctx, method, path, body)
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.log.DebugContext(ctx, "retrying directory call",
				slog.String("operation", op),
				slog.Int("attempt", attempts),
				slog.Duration("wait", wait),
				slog.String("error", err.Error()))
		}),
	)

	outcome := classify(err)
	c.metrics.observe(op, outcome, time.Since(start))

	switch outcome {
	case Absent:
		c.log.DebugContext(ctx, "directory record not found",
			slog.String("operation", op), slog.String("path", path))
	case Unavailable:
		c.log.WarnContext(ctx, "directory call failed",
			slog.String("operation", op),
			slog.String("path", path),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()))
	}

	return data, outcome
}

func classify(err error) Outcome {
	if err == nil {
		return Found
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return Absent
	}
	return Unavailable
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxBackoff
	b.Multiplier = 2
	return b
}

// attempt performs one request bounded by the per-attempt timeout and
// decides whether a failure is worth retrying.
func (c *Client) attempt(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.roundTrip(ctx, method, path, body)
	if err == nil {
		return data, nil
	}

	// transport errors and timeouts are retried as they are; errors
	// already marked permanent pass through untouched
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return nil, err
	}

	switch {
	case statusErr.StatusCode == http.StatusTooManyRequests:
		if secs, convErr := strconv.Atoi(statusErr.retryAfter); convErr == nil && secs > 0 {
			return nil, backoff.RetryAfter(secs)
		}
		return nil, err
	case statusErr.StatusCode >= http.StatusInternalServerError:
		return nil, err
	default:
		return nil, backoff.Permanent(err)
	}
}

// roundTrip sends a single request and returns the body of a 2xx answer.
func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	url := c.endpoint + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseSize))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Method:     method,
			URL:        url,
			retryAfter: resp.Header.Get("Retry-After"),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) > MaxResponseSize {
		return nil, backoff.Permanent(fmt.Errorf("response exceeds %d bytes", MaxResponseSize))
	}

	return data, nil
}
