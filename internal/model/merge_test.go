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
	"time"

	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"
)

func TestHasUpdates(t *testing.T) {
	t.Parallel()

	ftt.Run("HasUpdates", t, func(t *ftt.Test) {
		stored := payload(t, `{"id": 42, "name": "old"}`)
		storedAt := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

		t.Run("newer timestamp wins", func(t *ftt.Test) {
			incoming := payload(t, `{"id": 42, "name": "new", "date_last_updated": "2024-03-02 00:00:00"}`)
			updates, lastUpdate := HasUpdates(stored, storedAt, incoming)
			assert.Loosely(t, updates, should.BeTrue)
			assert.Loosely(t, lastUpdate, should.Match(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)))
		})

		t.Run("older timestamp with known keys is a no-op", func(t *ftt.Test) {
			incoming := payload(t, `{"id": 42, "name": "stale"}`)
			updates, lastUpdate := HasUpdates(stored, storedAt, incoming)
			assert.Loosely(t, updates, should.BeFalse)
			assert.Loosely(t, lastUpdate.IsZero(), should.BeTrue)
		})

		t.Run("new keys win regardless of timestamp", func(t *ftt.Test) {
			incoming := payload(t, `{"id": 42, "description": "grew a field"}`)
			updates, _ := HasUpdates(stored, storedAt, incoming)
			assert.Loosely(t, updates, should.BeTrue)
		})

		t.Run("unparseable timestamp never wins on recency", func(t *ftt.Test) {
			incoming := payload(t, `{"id": 42, "date_last_updated": "not a date"}`)
			updates, lastUpdate := HasUpdates(stored, storedAt, incoming)
			assert.Loosely(t, lastUpdate.IsZero(), should.BeTrue)
			// date_last_updated itself is a new key here.
			assert.Loosely(t, updates, should.BeTrue)

			stored := payload(t, `{"id": 42, "date_last_updated": "x"}`)
			updates, _ = HasUpdates(stored, storedAt, incoming)
			assert.Loosely(t, updates, should.BeFalse)
		})

		t.Run("repeated syncs converge", func(t *ftt.Test) {
			incoming := payload(t, `{"id": 42, "name": "new", "date_last_updated": "2024-03-02 00:00:00"}`)
			_, lastUpdate := HasUpdates(stored, storedAt, incoming)

			merged, _ := overlay(stored, incoming)
			updates, _ := HasUpdates(merged, lastUpdate, incoming)
			assert.Loosely(t, updates, should.BeFalse)
		})
	})
}

func TestOverlay(t *testing.T) {
	t.Parallel()

	ftt.Run("overlay", t, func(t *ftt.Test) {
		t.Run("narrow fetches don't erase stored fields", func(t *ftt.Test) {
			stored := payload(t, `{"id": 42, "name": "old", "description": "kept"}`)
			incoming := payload(t, `{"id": 42, "name": "new"}`)
			merged, blob := overlay(stored, incoming)
			assert.Loosely(t, merged.Str("name"), should.Equal("new"))
			assert.Loosely(t, merged.Str("description"), should.Equal("kept"))
			assert.Loosely(t, decodeRaw(blob).Str("description"), should.Equal("kept"))
		})

		t.Run("decodeRaw tolerates garbage", func(t *ftt.Test) {
			assert.Loosely(t, decodeRaw(nil), should.HaveLength(0))
			assert.Loosely(t, decodeRaw([]byte("{not json")), should.HaveLength(0))
		})
	})
}

func TestImageURL(t *testing.T) {
	t.Parallel()

	ftt.Run("imageURL", t, func(t *ftt.Test) {
		t.Run("prefixes scheme-less paths", func(t *ftt.Test) {
			p := payload(t, `{"image": {"small_url": "/spawn.png"}}`)
			assert.Loosely(t, imageURL(p, "small_url"),
				should.Equal("http://static.comicvine.com/spawn.png"))
		})
		t.Run("keeps absolute URLs", func(t *ftt.Test) {
			p := payload(t, `{"image": {"small_url": "http://cdn/spawn.png"}}`)
			assert.Loosely(t, imageURL(p, "small_url"), should.Equal("http://cdn/spawn.png"))
		})
		t.Run("missing image section", func(t *ftt.Test) {
			assert.Loosely(t, imageURL(payload(t, `{}`), "small_url"), should.BeEmpty)
		})
	})
}
