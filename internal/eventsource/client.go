// Package eventsource queries the upstream indexer that serves on-chain
// events for nodes and users.
package eventsource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/willwe-dev/activity"
)

const (
	defaultUserAgent = "WillWe Activity"
	defaultTimeout   = 30 * time.Second
	defaultAttempts  = 3
	maxRetryAfter    = 30 * time.Second
)

// ErrUnavailable is returned when the indexer cannot answer.
var ErrUnavailable = errors.New("event source unavailable")

type Client struct {
	baseURL   string
	http      *http.Client
	userAgent string
	attempts  int
	sleep     func(context.Context, time.Duration) error
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAttempts bounds how many times a rate-limited request is sent.
func WithAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: defaultTimeout},
		userAgent: defaultUserAgent,
		attempts:  defaultAttempts,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Activities fetches raw events for the subject. Events are returned as
// decoded JSON objects; numbers are kept as json.Number.
func (c *Client) Activities(ctx context.Context, subject activity.Subject, limit int) ([]map[string]any, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}

	q := url.Values{}
	if subject.NodeID != "" {
		q.Set("nodeId", subject.NodeID)
	} else {
		q.Set("userAddress", subject.UserAddress)
	}
	q.Set("limit", strconv.Itoa(activity.ClampLimit(limit)))

	body, err := c.get(ctx, "/activities?"+q.Encode())
	if err != nil {
		return nil, err
	}
	events, err := decodeEvents(body)
	if err != nil {
		return nil, fmt.Errorf("decode activities for %s: %w", subject.Key(), err)
	}
	return events, nil
}

// Health checks that the indexer answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.get(ctx, "/health")
	return err
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		res, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		if res.StatusCode == http.StatusTooManyRequests && attempt < c.attempts {
			wait := retryAfter(res.Header.Get("Retry-After"))
			_ = res.Body.Close()
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		body, err := io.ReadAll(res.Body)
		_ = res.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
		}
		if res.StatusCode < 200 || res.StatusCode > 299 {
			return nil, fmt.Errorf("%w: HTTP %d: %s", ErrUnavailable, res.StatusCode, truncate(body, 200))
		}
		return body, nil
	}
}

// retryAfter reads a Retry-After value given as delta-seconds or as an
// HTTP date. Missing or unparseable values wait one second.
func retryAfter(v string) time.Duration {
	return retryAfterAt(v, time.Now())
}

func retryAfterAt(v string, now time.Time) time.Duration {
	wait := time.Second
	v = strings.TrimSpace(v)
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		if n >= 0 {
			wait = time.Duration(n * float64(time.Second))
		}
	} else if t, err := http.ParseTime(v); err == nil {
		wait = max(t.Sub(now), 0)
	}
	return min(wait, maxRetryAfter)
}

func decodeEvents(body []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	var items []any
	switch x := v.(type) {
	case []any:
		items = x
	case map[string]any:
		for _, key := range []string{"activities", "data", "items"} {
			if list, ok := x[key].([]any); ok {
				items = list
				break
			}
		}
		if items == nil {
			return nil, errors.New("object without an activity list")
		}
	default:
		return nil, fmt.Errorf("unexpected body of type %T", v)
	}

	events := make([]map[string]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			// keep the slot so the caller can log and skip it
			m = nil
		}
		events = append(events, m)
	}
	return events, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
