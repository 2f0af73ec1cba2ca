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
	"encoding/json"
	"fmt"
	"testing"

	"go.chromium.org/luci/common/clock/testclock"
	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"
	"go.chromium.org/luci/gae/impl/memory"
	"go.chromium.org/luci/gae/service/datastore"

	"github.com/pulldb/pulldb/internal/comicvine"
)

// testContext builds a context with a consistent in-memory datastore and a
// test clock.
func testContext() (context.Context, testclock.TestClock) {
	ctx := memory.Use(context.Background())
	datastore.GetTestable(ctx).AutoIndex(true)
	datastore.GetTestable(ctx).Consistent(true)
	return testclock.UseTime(ctx, testclock.TestRecentTimeUTC)
}

// payload decodes a JSON literal, matching the shapes the real client
// produces.
func payload(t *ftt.Test, blob string) comicvine.Payload {
	var p comicvine.Payload
	assert.Loosely(t, json.Unmarshal([]byte(blob), &p), should.BeNil)
	return p
}

// fakeFetcher serves canned payloads keyed by "resource/id" and records
// every single-resource fetch.
type fakeFetcher struct {
	payloads map[string]string
	fetches  []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, resource string, id int64, fields ...string) (comicvine.Payload, error) {
	key := fmt.Sprintf("%s/%d", resource, id)
	f.fetches = append(f.fetches, key)
	blob, ok := f.payloads[key]
	if !ok {
		return nil, &comicvine.APIError{Status: 101, Message: "Object Not Found"}
	}
	var p comicvine.Payload
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		return nil, err
	}
	return p, nil
}

func (f *fakeFetcher) FetchBatch(ctx context.Context, resource string, ids []int64, filterAttr string) ([]comicvine.Payload, error) {
	var out []comicvine.Payload
	for _, id := range ids {
		blob, ok := f.payloads[fmt.Sprintf("%s/%d", resource, id)]
		if !ok {
			continue
		}
		var p comicvine.Payload
		if err := json.Unmarshal([]byte(blob), &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func TestShard(t *testing.T) {
	t.Parallel()

	ftt.Run("Shard", t, func(t *ftt.Test) {
		assert.Loosely(t, Shard(42, 24), should.Equal(18))
		assert.Loosely(t, Shard(24, 24), should.BeZero)
		assert.Loosely(t, Shard(7, 0), should.Equal(int64(7%DefaultShardCount)))
		// Shards are never negative.
		assert.Loosely(t, Shard(-1, 24), should.Equal(23))
	})
}

func TestIdentifier(t *testing.T) {
	t.Parallel()

	ftt.Run("Identifier", t, func(t *ftt.Test) {
		ctx, _ := testContext()

		t.Run("from a bare id", func(t *ftt.Test) {
			id, num, err := ID("42").normalize()
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, id, should.Equal("42"))
			assert.Loosely(t, num, should.Equal(42))
		})
		t.Run("from a key", func(t *ftt.Test) {
			key := datastore.MakeKey(ctx, "Volume", "42")
			id, num, err := Ref(key).normalize()
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, id, should.Equal("42"))
			assert.Loosely(t, num, should.Equal(42))
		})
		t.Run("from a payload", func(t *ftt.Test) {
			id, num, err := Raw(payload(t, `{"id": 42}`)).normalize()
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, id, should.Equal("42"))
			assert.Loosely(t, num, should.Equal(42))
		})
		t.Run("rejects inputs without an identity", func(t *ftt.Test) {
			_, _, err := Identifier{}.normalize()
			assert.Loosely(t, err, should.Equal(ErrNoIdentity))
			_, _, err = ID("not-a-number").normalize()
			assert.Loosely(t, err, should.Equal(ErrNoIdentity))
			_, _, err = Raw(payload(t, `{"name": "anonymous"}`)).normalize()
			assert.Loosely(t, err, should.Equal(ErrNoIdentity))
		})
	})
}

func TestBatch(t *testing.T) {
	t.Parallel()

	ftt.Run("Batch", t, func(t *ftt.Test) {
		ctx, _ := testContext()

		batch := &Batch{}
		assert.Loosely(t, batch.Len(), should.BeZero)
		batch.add(&Publisher{ID: "1", Name: "one"})
		batch.add(&Publisher{ID: "2", Name: "two"})
		assert.Loosely(t, batch.Len(), should.Equal(2))

		assert.Loosely(t, batch.Put(ctx), should.BeNil)
		assert.Loosely(t, batch.Len(), should.BeZero)

		pub := &Publisher{ID: "2"}
		assert.Loosely(t, datastore.Get(ctx, pub), should.BeNil)
		assert.Loosely(t, pub.Name, should.Equal("two"))
	})
}
