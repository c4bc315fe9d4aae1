package poller

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

var errNotArray = errors.New("response is not an array")

// Client reads activity feeds from the gateway's HTTP surface.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Activities fetches the subject's feed. Any non-2xx status or a body other
// than a JSON array is an error.
func (c *Client) Activities(ctx context.Context, subject activity.Subject, limit int) ([]activity.Record, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}

	q := url.Values{}
	if subject.NodeID != "" {
		q.Set("nodeId", subject.NodeID)
	} else {
		q.Set("userAddress", subject.UserAddress)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/activities?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read activities: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("fetch activities for %s: HTTP %d", subject.Key(), res.StatusCode)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("fetch activities for %s: %w", subject.Key(), errNotArray)
	}
	var recs []activity.Record
	if err := json.Unmarshal(trimmed, &recs); err != nil {
		return nil, fmt.Errorf("decode activities for %s: %w", subject.Key(), err)
	}
	return recs, nil
}

// Fetcher binds the client to one subject.
func (c *Client) Fetcher(subject activity.Subject, limit int) FetchFunc {
	return func(ctx context.Context) ([]activity.Record, error) {
		return c.Activities(ctx, subject, limit)
	}
}
