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
	"strconv"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/gae/service/datastore"

	"github.com/pulldb/pulldb/internal/comicvine"
)

// Volume is a mirrored comic volume. Issues hold the back-reference to
// their volume; the first/last issue links here are refreshed lazily by the
// batch sweep rather than on merge.
type Volume struct {
	ID             string         `gae:"$id"`
	Identifier     int64          `gae:"identifier"`
	Name           string         `gae:"name"`
	IssueCount     int64          `gae:"issue_count"`
	FirstIssue     *datastore.Key `gae:"first_issue"`
	FirstIssueDate time.Time      `gae:"first_issue_date"`
	LastIssue      *datastore.Key `gae:"last_issue"`
	LastIssueDate  time.Time      `gae:"last_issue_date"`
	LastUpdated    time.Time      `gae:"last_updated"`
	Publisher      *datastore.Key `gae:"publisher"`
	SiteDetailURL  string         `gae:"site_detail_url,noindex"`
	StartYear      int64          `gae:"start_year"`
	Image          string         `gae:"image,noindex"`
	Changed        time.Time      `gae:"changed"`
	Complete       bool           `gae:"complete"`
	Indexed        bool           `gae:"indexed"`
	Shard          int64          `gae:"shard"`
	RawJSON        []byte         `gae:"json,noindex"`
}

// Raw returns the stored raw payload.
func (v *Volume) Raw() comicvine.Payload {
	return decodeRaw(v.RawJSON)
}

// VolumeKey resolves the canonical key of a volume, implementing the
// identify / load / materialize / staleness check / merge / persist
// sequence. It is idempotent: resolving the same input twice performs no
// second write.
func (r *Resolver) VolumeKey(ctx context.Context, in Identifier, opts ResolveOptions) (*datastore.Key, error) {
	id, num, err := in.normalize()
	if err != nil {
		return nil, errors.Fmt("resolving volume: %w", err)
	}
	key := datastore.MakeKey(ctx, "Volume", id)
	data := in.Payload()

	vol := &Volume{ID: id}
	exists := true
	switch err := datastore.Get(ctx, vol); {
	case err == datastore.ErrNoSuchEntity:
		exists = false
	case err != nil:
		return nil, errors.Fmt("loading volume %s: %w", id, err)
	}

	// A new volume needs the full payload; identity-only or partial input
	// (no publisher section) is materialized from the API.
	if !exists && opts.Create && data.Sub("publisher") == nil {
		data, err = r.CV.Fetch(ctx, "volume", num)
		if err != nil {
			return nil, errors.Fmt("materializing volume %s: %w", id, err)
		}
	}
	if data == nil || (!exists && !opts.Create) {
		return key, nil
	}

	var pubKey *datastore.Key
	if pub := data.Sub("publisher"); pub != nil {
		pubKey, err = r.PublisherKey(ctx, Raw(pub), ResolveOptions{Create: true, Batch: opts.Batch})
		if err != nil {
			return nil, errors.Fmt("volume %s: %w", id, err)
		}
	} else if !exists {
		logging.Warningf(ctx, "volume %s has no publisher", id)
	}

	err = runMerge(ctx, opts.Batch, func(ctx context.Context) error {
		vol := &Volume{ID: id}
		exists := true
		switch err := datastore.Get(ctx, vol); {
		case err == datastore.ErrNoSuchEntity:
			exists = false
		case err != nil:
			return err
		}
		if !exists {
			if !opts.Create {
				return nil
			}
			logging.Infof(ctx, "creating volume %s", id)
			vol = &Volume{
				ID:         id,
				Identifier: num,
				Shard:      Shard(num, r.shards()),
			}
		}
		stored := decodeRaw(vol.RawJSON)
		updates, lastUpdate := HasUpdates(stored, vol.LastUpdated, data)
		if exists && !updates {
			if opts.Reindex && vol.Indexed {
				vol.Indexed = false
				return putOrBatch(ctx, opts.Batch, vol)
			}
			return nil
		}
		applyVolume(ctx, vol, stored, data, pubKey, lastUpdate)
		logging.Infof(ctx, "saving volume updates: %d[%s]", vol.Identifier, vol.LastUpdated)
		return putOrBatch(ctx, opts.Batch, vol)
	})
	if err != nil {
		return nil, errors.Fmt("volume %s: %w", id, err)
	}
	return key, nil
}

// applyVolume copies remote fields onto the record. The publisher key is
// resolved by the caller outside the enclosing transaction.
func applyVolume(ctx context.Context, vol *Volume, stored, data comicvine.Payload, pubKey *datastore.Key, lastUpdate time.Time) {
	merged, blob := overlay(stored, data)
	vol.RawJSON = blob

	if name := merged.Str("name"); name != "" {
		vol.Name = name
	}
	if n, ok := merged.Int("count_of_issues"); ok {
		vol.IssueCount = n
	}
	if u := merged.Str("site_detail_url"); u != "" {
		vol.SiteDetailURL = u
	}
	if _, present := merged["start_year"]; present {
		if y, ok := merged.Int("start_year"); ok {
			vol.StartYear = y
		} else {
			logging.Errorf(ctx, "error converting start_year: %v", merged["start_year"])
		}
	}
	if img := imageURL(merged, "small_url"); img != "" {
		vol.Image = img
	}
	if pubKey != nil {
		vol.Publisher = pubKey
	}

	if fi := issueRef(ctx, merged.Sub("first_issue")); fi != nil {
		if vol.FirstIssue == nil || !vol.FirstIssue.Equal(fi) {
			vol.FirstIssue = fi
			// Issue data is picked up by the batch refresh, not fetched here.
			vol.Complete = false
		}
	}
	if li := issueRef(ctx, merged.Sub("last_issue")); li != nil {
		if vol.LastIssue == nil || !vol.LastIssue.Equal(li) {
			vol.LastIssue = li
			vol.Complete = false
		}
	}

	vol.LastUpdated = maxTime(vol.LastUpdated, lastUpdate)
	vol.Indexed = false
	vol.Changed = clock.Now(ctx).UTC()
}

// issueRef derives an Issue key from an embedded issue stub, or nil.
func issueRef(ctx context.Context, stub comicvine.Payload) *datastore.Key {
	if stub == nil {
		return nil
	}
	id, ok := stub.ID()
	if !ok {
		return nil
	}
	return datastore.MakeKey(ctx, "Issue", strconv.FormatInt(id, 10))
}
