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
	"testing"

	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"
	"go.chromium.org/luci/gae/service/datastore"
)

func TestRefreshShard(t *testing.T) {
	t.Parallel()

	ftt.Run("RefreshShard", t, func(t *ftt.Test) {
		ctx, _ := testContext()
		cv := &fakeFetcher{payloads: map[string]string{}}
		r := &Resolver{CV: cv}

		user, err := r.UserKey(ctx, "auth:alice", "alice", true)
		assert.Loosely(t, err, should.BeNil)
		_, err = r.VolumeKey(ctx, Raw(payload(t, spawnPayload)), ResolveOptions{Create: true})
		assert.Loosely(t, err, should.BeNil)
		_, err = r.SubscriptionKey(ctx, IDNum(42), user, ResolveOptions{Create: true})
		assert.Loosely(t, err, should.BeNil)

		t.Run("refreshes subscribed volumes and caches", func(t *ftt.Test) {
			cv.payloads["volume/42"] = `{
				"id": 42,
				"name": "Spawn Universe",
				"date_last_updated": "2024-05-01 00:00:00"
			}`

			stats, err := r.RefreshShard(ctx, 18)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, stats.Volumes, should.Equal(1))
			assert.Loosely(t, stats.Updated, should.Equal(1))
			assert.Loosely(t, stats.Skipped, should.BeZero)
			assert.Loosely(t, stats.Subscriptions, should.Equal(1))

			vol := &Volume{ID: "42"}
			assert.Loosely(t, datastore.Get(ctx, vol), should.BeNil)
			assert.Loosely(t, vol.Name, should.Equal("Spawn Universe"))

			sub := &Subscription{ID: "42", Parent: user}
			assert.Loosely(t, datastore.Get(ctx, sub), should.BeNil)
			assert.Loosely(t, sub.FirstIssue.StringID(), should.Equal("100"))
		})

		t.Run("a quiet shard is a no-op", func(t *ftt.Test) {
			stats, err := r.RefreshShard(ctx, 3)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, stats.Volumes, should.BeZero)
			assert.Loosely(t, stats.Updated, should.BeZero)
		})

		t.Run("a bad payload is skipped, not fatal", func(t *ftt.Test) {
			// A payload without an identity cannot be resolved.
			cv.payloads["volume/42"] = `{"name": "who am I"}`

			stats, err := r.RefreshShard(ctx, 18)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, stats.Skipped, should.Equal(1))
			assert.Loosely(t, stats.Updated, should.BeZero)
		})
	})
}

func TestUnindexed(t *testing.T) {
	t.Parallel()

	ftt.Run("Unindexed", t, func(t *ftt.Test) {
		ctx, _ := testContext()
		cv := &fakeFetcher{payloads: map[string]string{}}
		r := &Resolver{CV: cv}

		_, err := r.VolumeKey(ctx, Raw(payload(t, spawnPayload)), ResolveOptions{Create: true})
		assert.Loosely(t, err, should.BeNil)

		keys, err := Unindexed(ctx, "Volume", 10)
		assert.Loosely(t, err, should.BeNil)
		assert.Loosely(t, keys, should.HaveLength(1))
		assert.Loosely(t, keys[0].StringID(), should.Equal("42"))

		vol := &Volume{ID: "42"}
		assert.Loosely(t, datastore.Get(ctx, vol), should.BeNil)
		vol.Indexed = true
		assert.Loosely(t, datastore.Put(ctx, vol), should.BeNil)

		keys, err = Unindexed(ctx, "Volume", 10)
		assert.Loosely(t, err, should.BeNil)
		assert.Loosely(t, keys, should.BeEmpty)
	})
}
