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

package comicvine

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/parallel"
)

// FetchBatch retrieves the full payloads of many resources in one filtered
// list call, following pagination.
//
// The filter matches filterAttr (usually "id") against any of the given
// values. Results come back in page order. If any page fails the whole batch
// fails: callers must not persist a partially fetched batch.
func (c *Client) FetchBatch(ctx context.Context, resource string, ids []int64, filterAttr string) ([]Payload, error) {
	if filterAttr == "" {
		filterAttr = "id"
	}
	logging.Infof(ctx, "fetching %s resources where %q is one of %v", resource, filterAttr, ids)

	typ, err := c.resourceType(ctx, resource)
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	q := url.Values{}
	q.Set("filter", filterAttr+":"+strings.Join(parts, "|"))
	return c.fetchAll(ctx, typ.listPath(), q)
}

// fetchAll fetches every page of a list endpoint and concatenates the
// results preserving page order.
//
// The first page determines the page count. Remaining pages are fetched
// concurrently through a bounded worker pool and slotted into place by page
// index, so completion order doesn't matter.
func (c *Client) fetchAll(ctx context.Context, path string, q url.Values) ([]Payload, error) {
	first, err := c.fetchURL(ctx, path, q)
	if err != nil {
		return nil, err
	}
	firstPage, err := decodeList(first.Results)
	if err != nil {
		return nil, err
	}

	pages := responsePages(ctx, first)
	byPage := make([][]Payload, pages)
	byPage[0] = firstPage

	err = parallel.WorkPool(c.opts.PageWorkers, func(work chan<- func() error) {
		for page := 2; page <= pages; page++ {
			work <- func() error {
				expectedOffset := (page - 1) * first.Limit
				pq := url.Values{}
				for k, vs := range q {
					pq[k] = vs
				}
				pq.Set("page", strconv.Itoa(page))
				pq.Set("offset", strconv.Itoa(expectedOffset))

				resp, err := c.fetchURL(ctx, path, pq)
				if err != nil {
					return errors.Fmt("page %d: %w", page, err)
				}
				if resp.Offset != expectedOffset {
					// Trust the returned data over the echoed offset.
					logging.Warningf(ctx,
						"possible API error: page=%d, offset=%d, expected_offset=%d",
						page, resp.Offset, expectedOffset)
				}
				rows, err := decodeList(resp.Results)
				if err != nil {
					return errors.Fmt("page %d: %w", page, err)
				}
				byPage[page-1] = rows
				return nil
			}
		}
	})
	if err != nil {
		return nil, errors.Fmt("fetching %s: %w", path, firstError(err))
	}

	out := firstPage[:len(firstPage):len(firstPage)]
	for _, rows := range byPage[1:] {
		out = append(out, rows...)
	}
	return out, nil
}

// responsePages computes how many pages a list response spans. A zero limit
// means the server returned everything in one page.
func responsePages(ctx context.Context, resp *response) int {
	pages := 1
	if resp.Limit > 0 {
		pages = (resp.TotalResults + resp.Limit - 1) / resp.Limit
		if pages < 1 {
			pages = 1
		}
	}
	logging.Debugf(ctx, "%d results with %d per page, fetching %d pages",
		resp.TotalResults, resp.Limit, pages)
	return pages
}

// firstError unwraps a MultiError down to its first failure.
func firstError(err error) error {
	var merr errors.MultiError
	if errors.As(err, &merr) {
		if first := merr.First(); first != nil {
			return first
		}
	}
	return err
}
