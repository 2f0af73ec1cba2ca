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
	"strconv"
	"time"

	"go.chromium.org/luci/common/errors"
)

// Payload is a decoded Comicvine resource as returned in the `results`
// section of an API response.
//
// Comicvine resources are loosely structured and grow fields over time, so
// they are kept as generic JSON objects all the way into storage. Accessors
// below tolerate the shapes the API is known to emit (numbers arrive as JSON
// floats, identifiers occasionally as strings).
type Payload map[string]any

// Int returns an integer field, coercing the JSON representations the API
// uses for numbers.
func (p Payload) Int(key string) (int64, bool) {
	switch v := p[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// ID returns the resource identifier, if present.
func (p Payload) ID() (int64, bool) {
	return p.Int("id")
}

// Str returns a string field or "".
func (p Payload) Str(key string) string {
	s, _ := p[key].(string)
	return s
}

// Sub returns a nested object field or nil.
func (p Payload) Sub(key string) Payload {
	m, _ := p[key].(map[string]any)
	return Payload(m)
}

// List returns a list-of-objects field, skipping malformed elements.
func (p Payload) List(key string) []Payload {
	raw, _ := p[key].([]any)
	if raw == nil {
		return nil
	}
	out := make([]Payload, 0, len(raw))
	for _, el := range raw {
		if m, ok := el.(map[string]any); ok {
			out = append(out, Payload(m))
		}
	}
	return out
}

// timeLayouts are the timestamp shapes Comicvine is known to emit.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// Time parses a timestamp field.
//
// An absent or unparseable timestamp yields the zero time, which by
// convention is the minimum timestamp: it never wins a recency comparison.
func (p Payload) Time(key string) time.Time {
	s := p.Str(key)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// decodeObject decodes a `results` section holding a single resource.
func decodeObject(raw json.RawMessage) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Fmt("decoding resource object: %w", err)
	}
	return p, nil
}

// decodeList decodes a `results` section holding a page of resources.
func decodeList(raw json.RawMessage) ([]Payload, error) {
	var out []Payload
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Fmt("decoding resource list: %w", err)
	}
	return out, nil
}
