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
	"encoding/json"
	"fmt"
	"time"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/gae/service/memcache"
)

// typesCacheKey is the memcache key for the resource type map.
const typesCacheKey = "comicvine:types"

// typesCacheTTL is how long the resource type map stays cached. Types don't
// change often.
const typesCacheTTL = 7 * 24 * time.Hour

// resourceType describes how one resource kind maps onto API paths.
type resourceType struct {
	ID         int    `json:"id"`
	DetailName string `json:"detail_resource_name"`
	ListName   string `json:"list_resource_name"`
}

// detailPath is the request path for a single resource of this type.
func (t resourceType) detailPath(id int64) string {
	return fmt.Sprintf("%s/%d-%d", t.DetailName, t.ID, id)
}

// listPath is the request path for a filtered list of this type.
func (t resourceType) listPath() string {
	return t.ListName
}

// WarmTypes primes the resource type cache so the first real fetch doesn't
// pay for the types round trip.
func (c *Client) WarmTypes(ctx context.Context) error {
	_, err := c.resourceTypes(ctx)
	return err
}

// resourceType resolves one resource name to its type metadata, fetching and
// caching the type map as needed.
func (c *Client) resourceType(ctx context.Context, resource string) (resourceType, error) {
	types, err := c.resourceTypes(ctx)
	if err != nil {
		return resourceType{}, err
	}
	typ, ok := types[resource]
	if !ok {
		return resourceType{}, errors.Fmt("unknown comicvine resource type %q", resource)
	}
	return typ, nil
}

// resourceTypes returns the resource name to type metadata map.
//
// The map is fetched from the types endpoint at most once per process and
// shared across processes through memcache with a long TTL. It is read-only
// after population.
func (c *Client) resourceTypes(ctx context.Context) (map[string]resourceType, error) {
	c.mu.Lock()
	types := c.types
	c.mu.Unlock()
	if types != nil {
		return types, nil
	}

	types = map[string]resourceType{}
	if itm, err := memcache.GetKey(ctx, typesCacheKey); err == nil {
		if err := json.Unmarshal(itm.Value(), &types); err == nil {
			c.mu.Lock()
			c.types = types
			c.mu.Unlock()
			return types, nil
		}
		logging.Warningf(ctx, "discarding undecodable cached type map")
	} else if err != memcache.ErrCacheMiss {
		logging.WithError(err).Warningf(ctx, "failed to read type map from memcache")
	}

	resp, err := c.fetchURL(ctx, "types", nil)
	if err != nil {
		return nil, errors.Fmt("fetching resource types: %w", err)
	}
	var list []resourceType
	if err := json.Unmarshal(resp.Results, &list); err != nil {
		return nil, errors.Fmt("decoding resource types: %w", err)
	}
	for _, typ := range list {
		types[typ.DetailName] = typ
	}

	if blob, err := json.Marshal(types); err == nil {
		itm := memcache.NewItem(ctx, typesCacheKey)
		itm.SetValue(blob)
		itm.SetExpiration(typesCacheTTL)
		if err := memcache.Set(ctx, itm); err != nil {
			// The cache is an optimization. Next process fetches again.
			logging.WithError(err).Warningf(ctx, "failed to cache type map")
		}
	}

	c.mu.Lock()
	c.types = types
	c.mu.Unlock()
	return types, nil
}
