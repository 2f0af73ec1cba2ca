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
	"encoding/json"
	"testing"
	"time"

	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"
)

func decode(t *ftt.Test, blob string) Payload {
	var p Payload
	assert.Loosely(t, json.Unmarshal([]byte(blob), &p), should.BeNil)
	return p
}

func TestPayload(t *testing.T) {
	t.Parallel()

	ftt.Run("Payload", t, func(t *ftt.Test) {
		t.Run("coerces numeric representations", func(t *ftt.Test) {
			p := decode(t, `{"a": 42, "b": "17", "c": 3.9, "d": "x"}`)

			n, ok := p.Int("a")
			assert.Loosely(t, ok, should.BeTrue)
			assert.Loosely(t, n, should.Equal(42))

			n, ok = p.Int("b")
			assert.Loosely(t, ok, should.BeTrue)
			assert.Loosely(t, n, should.Equal(17))

			n, ok = p.Int("c")
			assert.Loosely(t, ok, should.BeTrue)
			assert.Loosely(t, n, should.Equal(3))

			_, ok = p.Int("d")
			assert.Loosely(t, ok, should.BeFalse)
			_, ok = p.Int("missing")
			assert.Loosely(t, ok, should.BeFalse)
		})

		t.Run("identifier", func(t *ftt.Test) {
			id, ok := decode(t, `{"id": 4050}`).ID()
			assert.Loosely(t, ok, should.BeTrue)
			assert.Loosely(t, id, should.Equal(4050))

			_, ok = decode(t, `{"name": "no id"}`).ID()
			assert.Loosely(t, ok, should.BeFalse)
		})

		t.Run("parses known timestamp shapes", func(t *ftt.Test) {
			p := decode(t, `{
				"full": "2024-03-01 12:30:00",
				"date": "2024-03-01",
				"bad": "last tuesday"
			}`)
			assert.Loosely(t, p.Time("full"),
				should.Match(time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)))
			assert.Loosely(t, p.Time("date"),
				should.Match(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
			assert.Loosely(t, p.Time("bad").IsZero(), should.BeTrue)
			assert.Loosely(t, p.Time("missing").IsZero(), should.BeTrue)
		})

		t.Run("skips malformed list elements", func(t *ftt.Test) {
			p := decode(t, `{"credits": [{"name": "a"}, 42, {"name": "b"}]}`)
			credits := p.List("credits")
			assert.Loosely(t, credits, should.HaveLength(2))
			assert.Loosely(t, credits[0].Str("name"), should.Equal("a"))
			assert.Loosely(t, credits[1].Str("name"), should.Equal("b"))
		})

		t.Run("nested objects", func(t *ftt.Test) {
			p := decode(t, `{"image": {"small_url": "http://x/y.png"}}`)
			assert.Loosely(t, p.Sub("image").Str("small_url"), should.Equal("http://x/y.png"))
			assert.Loosely(t, p.Sub("missing"), should.BeNil)
			// Accessors on a nil sub-object are safe.
			assert.Loosely(t, p.Sub("missing").Str("small_url"), should.BeEmpty)
		})
	})
}
