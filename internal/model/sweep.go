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

package model

import (
	"context"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/gae/service/datastore"
)

// RefreshStats summarizes one shard refresh pass.
type RefreshStats struct {
	// Volumes is the number of distinct subscribed volumes in the shard.
	Volumes int
	// Updated is the number of volumes whose merge wrote changes.
	Updated int
	// Skipped is the number of fetched payloads that failed to resolve.
	Skipped int
	// Subscriptions is the number of subscription caches rewritten.
	Subscriptions int
}

// RefreshShard refreshes every subscribed volume in one shard with a single
// batched list call, then rewrites the denormalized caches of the shard's
// subscriptions. Individual bad payloads are skipped, not fatal.
func (r *Resolver) RefreshShard(ctx context.Context, shard int64) (*RefreshStats, error) {
	stats := &RefreshStats{}

	var subs []*Subscription
	q := datastore.NewQuery("Subscription").Eq("shard", shard)
	if err := datastore.GetAll(ctx, q, &subs); err != nil {
		return nil, errors.Fmt("listing shard %d subscriptions: %w", shard, err)
	}
	logging.Infof(ctx, "refreshing %d subscriptions in shard %d", len(subs), shard)

	ids := subscribedVolumes(subs)
	stats.Volumes = len(ids)
	if len(ids) > 0 {
		results, err := r.CV.FetchBatch(ctx, "volume", ids, "id")
		if err != nil {
			return nil, errors.Fmt("fetching shard %d volumes: %w", shard, err)
		}
		batch := &Batch{}
		for _, result := range results {
			if _, err := r.VolumeKey(ctx, Raw(result), ResolveOptions{Create: true, Batch: batch}); err != nil {
				id, _ := result.ID()
				logging.WithError(err).Errorf(ctx, "skipping volume %d", id)
				stats.Skipped++
			}
		}
		stats.Updated = batch.Len()
		if err := batch.Put(ctx); err != nil {
			return nil, errors.Fmt("saving shard %d updates: %w", shard, err)
		}
	}

	for _, sub := range subs {
		changed, err := RefreshSubscription(ctx, sub)
		if err != nil {
			logging.WithError(err).Errorf(ctx, "refreshing subscription %s", sub.ID)
			continue
		}
		if changed {
			stats.Subscriptions++
		}
	}
	logging.Infof(ctx, "shard %d: %d volumes, %d updated, %d skipped, %d subscriptions",
		shard, stats.Volumes, stats.Updated, stats.Skipped, stats.Subscriptions)
	return stats, nil
}

// subscribedVolumes collects the distinct volume identifiers referenced by a
// set of subscriptions, dropping any it cannot parse.
func subscribedVolumes(subs []*Subscription) []int64 {
	seen := make(map[int64]struct{}, len(subs))
	ids := make([]int64, 0, len(subs))
	for _, sub := range subs {
		_, num, err := ID(sub.ID).normalize()
		if err != nil {
			continue
		}
		if _, dup := seen[num]; dup {
			continue
		}
		seen[num] = struct{}{}
		ids = append(ids, num)
	}
	return ids
}

// Unindexed returns the keys of up to limit entities of one kind awaiting a
// search index update.
func Unindexed(ctx context.Context, kind string, limit int32) ([]*datastore.Key, error) {
	var keys []*datastore.Key
	q := datastore.NewQuery(kind).Eq("indexed", false).Limit(limit).KeysOnly(true)
	if err := datastore.GetAll(ctx, q, &keys); err != nil {
		return nil, errors.Fmt("listing unindexed %s entities: %w", kind, err)
	}
	return keys, nil
}
