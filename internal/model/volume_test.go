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
	"go.chromium.org/luci/gae/service/datastore"
)

const spawnPayload = `{
	"id": 42,
	"name": "Spawn",
	"date_last_updated": "2024-03-01 12:00:00",
	"count_of_issues": 250,
	"start_year": "1992",
	"site_detail_url": "https://comicvine.com/spawn",
	"publisher": {"id": 7, "name": "Image Comics", "image": {"tiny_url": "/image.png"}},
	"image": {"small_url": "/spawn.png"},
	"first_issue": {"id": 100},
	"last_issue": {"id": 350}
}`

func TestVolumeKey(t *testing.T) {
	t.Parallel()

	ftt.Run("VolumeKey", t, func(t *ftt.Test) {
		ctx, tc := testContext()
		cv := &fakeFetcher{payloads: map[string]string{}}
		r := &Resolver{CV: cv}

		t.Run("creates volume and publisher from one payload", func(t *ftt.Test) {
			key, err := r.VolumeKey(ctx, Raw(payload(t, spawnPayload)), ResolveOptions{Create: true})
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, key.StringID(), should.Equal("42"))
			// The payload carried everything; no remote fetch happened.
			assert.Loosely(t, cv.fetches, should.BeEmpty)

			vol := &Volume{ID: "42"}
			assert.Loosely(t, datastore.Get(ctx, vol), should.BeNil)
			assert.Loosely(t, vol.Identifier, should.Equal(42))
			assert.Loosely(t, vol.Name, should.Equal("Spawn"))
			assert.Loosely(t, vol.IssueCount, should.Equal(250))
			assert.Loosely(t, vol.StartYear, should.Equal(1992))
			assert.Loosely(t, vol.Image, should.Equal("http://static.comicvine.com/spawn.png"))
			assert.Loosely(t, vol.Shard, should.Equal(18))
			assert.Loosely(t, vol.Indexed, should.BeFalse)
			assert.Loosely(t, vol.Complete, should.BeFalse)
			assert.Loosely(t, vol.FirstIssue.StringID(), should.Equal("100"))
			assert.Loosely(t, vol.LastIssue.StringID(), should.Equal("350"))
			assert.Loosely(t, vol.LastUpdated,
				should.Match(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))

			pub := &Publisher{ID: "7"}
			assert.Loosely(t, datastore.Get(ctx, pub), should.BeNil)
			assert.Loosely(t, pub.Name, should.Equal("Image Comics"))
			assert.Loosely(t, pub.Image, should.Equal("http://static.comicvine.com/image.png"))
			assert.Loosely(t, vol.Publisher.Equal(datastore.KeyForObj(ctx, pub)), should.BeTrue)
		})

		t.Run("resolving the same payload twice writes nothing", func(t *ftt.Test) {
			_, err := r.VolumeKey(ctx, Raw(payload(t, spawnPayload)), ResolveOptions{Create: true})
			assert.Loosely(t, err, should.BeNil)
			first := &Volume{ID: "42"}
			assert.Loosely(t, datastore.Get(ctx, first), should.BeNil)

			tc.Add(time.Hour)
			_, err = r.VolumeKey(ctx, Raw(payload(t, spawnPayload)), ResolveOptions{Create: true})
			assert.Loosely(t, err, should.BeNil)

			second := &Volume{ID: "42"}
			assert.Loosely(t, datastore.Get(ctx, second), should.BeNil)
			assert.Loosely(t, second.Changed, should.Match(first.Changed))
			assert.Loosely(t, cv.fetches, should.BeEmpty)
		})

		t.Run("newer payload merges over stored data", func(t *ftt.Test) {
			_, err := r.VolumeKey(ctx, Raw(payload(t, spawnPayload)), ResolveOptions{Create: true})
			assert.Loosely(t, err, should.BeNil)

			update := payload(t, `{
				"id": 42,
				"name": "Spawn (renamed)",
				"date_last_updated": "2024-04-01 12:00:00"
			}`)
			_, err = r.VolumeKey(ctx, Raw(update), ResolveOptions{})
			assert.Loosely(t, err, should.BeNil)

			vol := &Volume{ID: "42"}
			assert.Loosely(t, datastore.Get(ctx, vol), should.BeNil)
			assert.Loosely(t, vol.Name, should.Equal("Spawn (renamed)"))
			// Fields absent from the narrow update survive.
			assert.Loosely(t, vol.IssueCount, should.Equal(250))
			assert.Loosely(t, vol.LastUpdated,
				should.Match(time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)))
		})

		t.Run("identity-only create materializes from the API", func(t *ftt.Test) {
			cv.payloads["volume/99"] = `{
				"id": 99,
				"name": "Invincible",
				"date_last_updated": "2024-01-01 00:00:00",
				"publisher": {"id": 7, "name": "Image Comics", "image": {"tiny_url": "/i.png"}}
			}`
			key, err := r.VolumeKey(ctx, IDNum(99), ResolveOptions{Create: true})
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, cv.fetches, should.Match([]string{"volume/99"}))

			vol := &Volume{ID: key.StringID()}
			assert.Loosely(t, datastore.Get(ctx, vol), should.BeNil)
			assert.Loosely(t, vol.Name, should.Equal("Invincible"))
		})

		t.Run("lookup without create is a plain key derivation", func(t *ftt.Test) {
			key, err := r.VolumeKey(ctx, IDNum(5), ResolveOptions{})
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, key.StringID(), should.Equal("5"))
			assert.Loosely(t, cv.fetches, should.BeEmpty)
			assert.Loosely(t, datastore.Get(ctx, &Volume{ID: "5"}),
				should.Equal(datastore.ErrNoSuchEntity))
		})

		t.Run("reindex forces the entity back into the sweep", func(t *ftt.Test) {
			_, err := r.VolumeKey(ctx, Raw(payload(t, spawnPayload)), ResolveOptions{Create: true})
			assert.Loosely(t, err, should.BeNil)
			vol := &Volume{ID: "42"}
			assert.Loosely(t, datastore.Get(ctx, vol), should.BeNil)
			vol.Indexed = true
			assert.Loosely(t, datastore.Put(ctx, vol), should.BeNil)

			_, err = r.VolumeKey(ctx, Raw(payload(t, spawnPayload)), ResolveOptions{Reindex: true})
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, datastore.Get(ctx, vol), should.BeNil)
			assert.Loosely(t, vol.Indexed, should.BeFalse)
		})
	})
}
