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

// Package model holds the mirrored datastore entities and the resolvers
// that keep them in sync with the remote metadata API.
//
// A resolver turns loosely typed input (a bare identifier, a datastore key,
// or a full fetched payload) into the canonical key of a stored entity,
// fetching and merging remote data as needed. Merges are monotonic on the
// remote timestamp, so concurrent resolutions of the same key converge.
package model

import (
	"context"
	"sync"

	"go.chromium.org/luci/gae/service/datastore"

	"github.com/pulldb/pulldb/internal/comicvine"
)

// DefaultShardCount is the number of partitions scheduled refresh work is
// spread over.
const DefaultShardCount = 24

// Fetcher retrieves remote resource payloads. *comicvine.Client implements
// it; tests substitute a fake.
type Fetcher interface {
	// Fetch retrieves a single resource by identifier.
	Fetch(ctx context.Context, resource string, id int64, fields ...string) (comicvine.Payload, error)
	// FetchBatch retrieves many resources through a filtered list call.
	FetchBatch(ctx context.Context, resource string, ids []int64, filterAttr string) ([]comicvine.Payload, error)
}

// Resolver resolves entity keys, creating and merging mirrored entities
// on the way. Safe for concurrent use.
type Resolver struct {
	// CV fetches remote payloads when an entity has to be materialized.
	CV Fetcher

	// ShardCount partitions entities for scheduled refresh work.
	// DefaultShardCount if zero.
	ShardCount int
}

func (r *Resolver) shards() int {
	if r.ShardCount > 0 {
		return r.ShardCount
	}
	return DefaultShardCount
}

// Shard deterministically assigns an identifier to a refresh partition.
func Shard(identifier int64, count int) int64 {
	if count <= 0 {
		count = DefaultShardCount
	}
	s := identifier % int64(count)
	if s < 0 {
		s += int64(count)
	}
	return s
}

// ResolveOptions tunes a single resolution.
type ResolveOptions struct {
	// Create allows materializing an entity that is not stored yet.
	Create bool

	// Reindex forces the entity back into the next reindex sweep even when
	// the merge is a no-op.
	Reindex bool

	// Batch, when set, collects changed entities for one caller-side write
	// instead of persisting them individually.
	Batch *Batch
}

// Batch accumulates changed entities so a sweep can write them in one
// datastore call.
//
// Batched resolutions skip the per-entity transaction: the merge stays
// correct under races because it is idempotent and monotonic on the remote
// timestamp, matching the weaker guarantee sweeps need.
type Batch struct {
	mu      sync.Mutex
	pending []any
}

func (b *Batch) add(ent any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, ent)
}

// Len returns the number of pending entities.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Put writes all pending entities and resets the batch.
func (b *Batch) Put(ctx context.Context) error {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}
	return datastore.Put(ctx, pending...)
}

// runMerge runs a load-merge-persist step. Interactive resolutions run it in
// a transaction so concurrent refreshes of the same key can't clobber each
// other; batched resolutions run it directly (see Batch).
func runMerge(ctx context.Context, batch *Batch, fn func(ctx context.Context) error) error {
	if batch != nil {
		return fn(ctx)
	}
	return datastore.RunInTransaction(ctx, fn, nil)
}

// putOrBatch persists an entity now, or parks it on the batch.
func putOrBatch(ctx context.Context, batch *Batch, ent any) error {
	if batch != nil {
		batch.add(ent)
		return nil
	}
	return datastore.Put(ctx, ent)
}
