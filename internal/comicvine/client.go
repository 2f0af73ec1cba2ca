// Copyright 2024 The Pulldb Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package comicvine implements a rate-limit friendly client for the
// Comicvine metadata API.
//
// The client issues plain HTTP GET requests, retries transport-level
// failures with exponential backoff and jitter, classifies application-level
// failures reported in the response envelope, paginates multi-page list
// responses and deduplicates concurrent fetches of the same resource.
package comicvine

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry"
	"go.chromium.org/luci/common/retry/transient"
	"go.chromium.org/luci/common/sync/promise"
)

const (
	// DefaultBaseURL is the production API endpoint.
	DefaultBaseURL = "https://www.comicvine.com/api"

	// DefaultDeadline bounds a single HTTP request.
	DefaultDeadline = 5 * time.Second

	// DefaultRetries is how many times a transport failure is retried.
	DefaultRetries = 3

	// DefaultPageWorkers bounds concurrent page fetches within one batch.
	DefaultPageWorkers = 4
)

// Options configures a Client.
type Options struct {
	// APIKey is the Comicvine credential appended to every request. Required.
	APIKey string

	// BaseURL overrides DefaultBaseURL.
	BaseURL string

	// HTTP is the HTTP client to fetch through. Defaults to
	// http.DefaultClient.
	HTTP *http.Client

	// Deadline overrides DefaultDeadline.
	Deadline time.Duration

	// Retries overrides DefaultRetries.
	Retries int

	// PageWorkers overrides DefaultPageWorkers.
	PageWorkers int

	// Jitter is the upper bound of the random delay added to each retry
	// backoff interval. Defaults to 1s.
	Jitter time.Duration
}

// Client talks to the Comicvine API.
//
// Construct it with New and pass it by reference to whoever needs it. The
// client is safe for concurrent use.
type Client struct {
	opts  Options
	calls atomic.Int64

	mu       sync.Mutex
	inflight map[fetchKey]*promise.Promise
	types    map[string]resourceType
}

type fetchKey struct {
	resource string
	id       int64
	fields   string
}

// response is the JSON envelope wrapping every Comicvine reply.
type response struct {
	Error        string          `json:"error"`
	StatusCode   int             `json:"status_code"`
	Limit        int             `json:"limit"`
	Offset       int             `json:"offset"`
	TotalResults int             `json:"number_of_total_results"`
	Results      json.RawMessage `json:"results"`

	httpStatus int
	bodySize   int
}

// New returns a client using the given options.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("comicvine: API key is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTP == nil {
		opts.HTTP = http.DefaultClient
	}
	if opts.Deadline <= 0 {
		opts.Deadline = DefaultDeadline
	}
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	if opts.PageWorkers <= 0 {
		opts.PageWorkers = DefaultPageWorkers
	}
	if opts.Jitter <= 0 {
		opts.Jitter = time.Second
	}
	return &Client{
		opts:     opts,
		inflight: map[fetchKey]*promise.Promise{},
	}, nil
}

// Calls returns the total number of HTTP requests issued so far.
//
// Retries count individually. Used for operational accounting against the
// API quota.
func (c *Client) Calls() int64 {
	return c.calls.Load()
}

// resourceURL builds the full request URL for a path and extra query
// parameters, attaching the credential and response format.
func (c *Client) resourceURL(path string, q url.Values) string {
	query := url.Values{}
	for k, vs := range q {
		query[k] = vs
	}
	query.Set("api_key", c.opts.APIKey)
	query.Set("format", "json")
	return c.opts.BaseURL + "/" + path + "?" + query.Encode()
}

// redact strips the credential out of a URL destined for logs.
func (c *Client) redact(u string) string {
	return strings.ReplaceAll(u, c.opts.APIKey, "XXXX")
}

// backoff returns the retry iterator for one fetch: exponential backoff with
// random jitter, transport failures only.
func (c *Client) backoff() retry.Iterator {
	return &jitterIterator{
		Iterator: &retry.ExponentialBackoff{
			Limited: retry.Limited{
				Delay:   100 * time.Millisecond,
				Retries: c.opts.Retries,
			},
			Multiplier: 2,
			MaxDelay:   10 * time.Second,
		},
		Jitter: c.opts.Jitter,
	}
}

// jitterIterator wraps an Iterator, adding up to Jitter of random delay to
// every non-terminal interval.
type jitterIterator struct {
	retry.Iterator
	Jitter time.Duration
}

func (it *jitterIterator) Next(ctx context.Context, err error) time.Duration {
	d := it.Iterator.Next(ctx, err)
	if d == retry.Stop {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(it.Jitter)))
}

// fetchURL fetches one URL, retrying transport failures, and returns the
// decoded response envelope.
//
// API-level errors (an error status_code in the envelope) are returned as
// *APIError and are never retried. On retry exhaustion the last transport
// error is returned. Every call emits a structured accounting record and
// updates the call metrics.
func (c *Client) fetchURL(ctx context.Context, path string, q url.Values) (*response, error) {
	u := c.resourceURL(path, q)
	redacted := c.redact(u)
	logging.Debugf(ctx, "fetching comicvine resource: %s", redacted)

	start := clock.Now(ctx)
	attempts := 0
	var resp *response
	err := retry.Retry(ctx, transient.Only(c.backoff), func() error {
		attempts++
		c.calls.Add(1)
		r, err := c.fetchOnce(ctx, u)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, func(err error, d time.Duration) {
		logging.WithError(err).Warningf(ctx,
			"transient error fetching %s, retrying in %s", redacted, d)
	})

	recordCall(ctx, callRecord{
		url:     redacted,
		latency: clock.Since(ctx, start),
		retries: attempts - 1,
		resp:    resp,
		err:     err,
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" && resp.Error != "OK" {
		logging.Errorf(ctx, "comicvine reported %q for %s", resp.Error, redacted)
	}
	return resp, nil
}

// fetchOnce performs a single HTTP attempt.
//
// Errors that may heal on a retry (connection failures, timeouts, 429 and
// 5xx replies, truncated bodies) come back transient-tagged. Everything else
// is permanent.
func (c *Client) fetchOnce(ctx context.Context, u string) (*response, error) {
	rctx, cancel := context.WithTimeout(ctx, c.opts.Deadline)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Fmt("building request: %w", err)
	}
	res, err := c.opts.HTTP.Do(req)
	if err != nil {
		return nil, transient.Tag.Apply(errors.Fmt("fetching resource: %w", err))
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, transient.Tag.Apply(errors.Fmt("reading response: %w", err))
	}

	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
		err := HTTPStatusTag.ApplyValue(
			errors.Fmt("comicvine replied with HTTP %d", res.StatusCode), res.StatusCode)
		return nil, transient.Tag.Apply(err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, HTTPStatusTag.ApplyValue(
			errors.Fmt("comicvine replied with HTTP %d", res.StatusCode), res.StatusCode)
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, transient.Tag.Apply(errors.Fmt("no JSON found in response: %w", err))
	}
	r.httpStatus = res.StatusCode
	r.bodySize = len(body)
	// Envelope codes below 100 (1 is "OK") are success.
	if r.StatusCode >= 100 {
		return nil, &APIError{Status: r.StatusCode, Message: r.Error}
	}
	return &r, nil
}

// Fetch retrieves the full payload of a single resource by identifier.
//
// Concurrent fetches of the same resource share one underlying request. An
// optional field list narrows the returned payload.
func (c *Client) Fetch(ctx context.Context, resource string, id int64, fields ...string) (Payload, error) {
	key := fetchKey{resource: resource, id: id, fields: strings.Join(fields, ",")}

	c.mu.Lock()
	p, ok := c.inflight[key]
	if !ok {
		p = promise.New(ctx, func(ctx context.Context) (any, error) {
			defer func() {
				c.mu.Lock()
				delete(c.inflight, key)
				c.mu.Unlock()
			}()
			return c.fetchSingle(ctx, resource, id, key.fields)
		})
		c.inflight[key] = p
	}
	c.mu.Unlock()

	v, err := p.Get(ctx)
	if err != nil {
		return nil, err
	}
	return v.(Payload), nil
}

func (c *Client) fetchSingle(ctx context.Context, resource string, id int64, fields string) (Payload, error) {
	typ, err := c.resourceType(ctx, resource)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	if fields != "" {
		q.Set("field_list", fields)
	}
	resp, err := c.fetchURL(ctx, typ.detailPath(id), q)
	if err != nil {
		return nil, errors.Fmt("fetching %s %d: %w", resource, id, err)
	}
	return decodeObject(resp.Results)
}

// Search runs a full-text search over one resource kind. It returns the
// total number of matches known to the API and the first page of results.
func (c *Client) Search(ctx context.Context, resource, query string) (int, []Payload, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("resources", resource)
	resp, err := c.fetchURL(ctx, "search", q)
	if err != nil {
		return 0, nil, errors.Fmt("searching %s for %q: %w", resource, query, err)
	}
	results, err := decodeList(resp.Results)
	if err != nil {
		return 0, nil, err
	}
	logging.Debugf(ctx, "found %d results for %q", resp.TotalResults, query)
	return resp.TotalResults, results, nil
}
