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

	"go.chromium.org/luci/common/errors"
)

// Kind enumerates the operations the client supports.
type Kind int

const (
	// KindFetch retrieves one resource by identifier.
	KindFetch Kind = iota
	// KindFetchBatch retrieves many resources through a filtered,
	// paginated list call.
	KindFetchBatch
	// KindSearch runs a full-text search over one resource kind.
	KindSearch
)

// Request is a tagged operation descriptor.
//
// Callers that decide the operation at runtime (sweep jobs, request
// handlers) build a Request and dispatch it through Do; callers with a
// statically known operation use Fetch, FetchBatch or Search directly.
type Request struct {
	Kind     Kind
	Resource string

	// ID is the resource identifier for KindFetch.
	ID int64
	// Fields optionally narrows the payload for KindFetch.
	Fields []string

	// IDs are the filter values for KindFetchBatch.
	IDs []int64
	// FilterAttr is the filter attribute for KindFetchBatch, "id" if empty.
	FilterAttr string

	// Query is the search string for KindSearch.
	Query string
}

var dispatch = map[Kind]func(*Client, context.Context, Request) ([]Payload, error){
	KindFetch: func(c *Client, ctx context.Context, r Request) ([]Payload, error) {
		p, err := c.Fetch(ctx, r.Resource, r.ID, r.Fields...)
		if err != nil {
			return nil, err
		}
		return []Payload{p}, nil
	},
	KindFetchBatch: func(c *Client, ctx context.Context, r Request) ([]Payload, error) {
		return c.FetchBatch(ctx, r.Resource, r.IDs, r.FilterAttr)
	},
	KindSearch: func(c *Client, ctx context.Context, r Request) ([]Payload, error) {
		_, results, err := c.Search(ctx, r.Resource, r.Query)
		return results, err
	},
}

// Do executes a request descriptor.
func (c *Client) Do(ctx context.Context, r Request) ([]Payload, error) {
	op, ok := dispatch[r.Kind]
	if !ok {
		return nil, errors.Fmt("unknown request kind %d", r.Kind)
	}
	return op(c, ctx, r)
}
