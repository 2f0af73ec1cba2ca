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
	"encoding/json"
	"strings"
	"time"

	"github.com/pulldb/pulldb/internal/comicvine"
)

// staticImageHost prefixes scheme-less image paths the API sometimes emits.
const staticImageHost = "http://static.comicvine.com"

// HasUpdates reports whether an incoming payload carries information not yet
// reflected in storage, and the effective remote timestamp of the payload.
//
// A payload wins when its date_last_updated is strictly newer than the
// stored timestamp, or when it exposes keys the stored raw payload has never
// seen (the remote schema grew). An absent or unparseable timestamp is the
// minimum timestamp and never wins on recency alone.
//
// Pure function: all resolvers share this rule so repeated syncs converge.
func HasUpdates(storedRaw comicvine.Payload, storedUpdated time.Time, incoming comicvine.Payload) (bool, time.Time) {
	lastUpdate := incoming.Time("date_last_updated")
	updates := lastUpdate.After(storedUpdated) || hasNewKeys(storedRaw, incoming)
	return updates, lastUpdate
}

// hasNewKeys reports whether incoming exposes keys absent from the stored
// raw payload.
func hasNewKeys(storedRaw comicvine.Payload, incoming comicvine.Payload) bool {
	for key := range incoming {
		if _, ok := storedRaw[key]; !ok {
			return true
		}
	}
	return false
}

// overlay merges an incoming payload over a stored one, so a narrow fetch
// (field_list) never erases fields a wider fetch stored earlier. Returns the
// merged payload and its serialized form.
func overlay(storedRaw comicvine.Payload, incoming comicvine.Payload) (comicvine.Payload, []byte) {
	merged := make(comicvine.Payload, len(storedRaw)+len(incoming))
	for k, v := range storedRaw {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	blob, err := json.Marshal(merged)
	if err != nil {
		// Payloads come out of json.Unmarshal, so this cannot happen.
		blob = nil
	}
	return merged, blob
}

// decodeRaw decodes a stored raw payload blob. A missing or undecodable
// blob is an empty payload.
func decodeRaw(blob []byte) comicvine.Payload {
	if len(blob) == 0 {
		return comicvine.Payload{}
	}
	var p comicvine.Payload
	if err := json.Unmarshal(blob, &p); err != nil {
		return comicvine.Payload{}
	}
	return p
}

// imageURL extracts an image URL of the given size from a payload's image
// substructure, normalizing scheme-less paths.
func imageURL(p comicvine.Payload, sizeKey string) string {
	img := p.Sub("image")
	if img == nil {
		return ""
	}
	u := img.Str(sizeKey)
	if strings.HasPrefix(u, "/") {
		u = staticImageHost + u
	}
	return u
}

// maxTime returns the later of two timestamps. Used to keep last_updated
// monotonic: a merge never regresses it.
func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
