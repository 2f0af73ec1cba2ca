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
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/gae/service/datastore"

	"github.com/pulldb/pulldb/internal/comicvine"
)

// StoryArc is a mirrored story arc spanning issues, possibly across
// volumes.
type StoryArc struct {
	ID             string         `gae:"$id"`
	Identifier     int64          `gae:"identifier"`
	Name           string         `gae:"name"`
	IssueCount     int64          `gae:"issue_count"`
	FirstIssue     *datastore.Key `gae:"first_issue"`
	FirstIssueDate time.Time      `gae:"first_issue_date"`
	LastUpdated    time.Time      `gae:"last_updated"`
	Publisher      *datastore.Key `gae:"publisher"`
	SiteDetailURL  string         `gae:"site_detail_url,noindex"`
	Image          string         `gae:"image,noindex"`
	Changed        time.Time      `gae:"changed"`
	Complete       bool           `gae:"complete"`
	Indexed        bool           `gae:"indexed"`
	Shard          int64          `gae:"shard"`
	RawJSON        []byte         `gae:"json,noindex"`
}

// Raw returns the stored raw payload.
func (a *StoryArc) Raw() comicvine.Payload {
	return decodeRaw(a.RawJSON)
}

// ArcKey resolves the canonical key of a story arc, creating it on demand
// when referenced from an issue's credits.
func (r *Resolver) ArcKey(ctx context.Context, in Identifier, opts ResolveOptions) (*datastore.Key, error) {
	id, num, err := in.normalize()
	if err != nil {
		return nil, errors.Fmt("resolving story arc: %w", err)
	}
	key := datastore.MakeKey(ctx, "StoryArc", id)
	data := in.Payload()

	arc := &StoryArc{ID: id}
	exists := true
	switch err := datastore.Get(ctx, arc); {
	case err == datastore.ErrNoSuchEntity:
		exists = false
	case err != nil:
		return nil, errors.Fmt("loading story arc %s: %w", id, err)
	}

	if !exists && opts.Create && data.Sub("publisher") == nil {
		data, err = r.CV.Fetch(ctx, "story_arc", num)
		if err != nil {
			return nil, errors.Fmt("materializing story arc %s: %w", id, err)
		}
	}
	if data == nil || (!exists && !opts.Create) {
		return key, nil
	}

	var pubKey *datastore.Key
	if pub := data.Sub("publisher"); pub != nil {
		pubKey, err = r.PublisherKey(ctx, Raw(pub), ResolveOptions{Create: true, Batch: opts.Batch})
		if err != nil {
			return nil, errors.Fmt("story arc %s: %w", id, err)
		}
	} else if !exists {
		logging.Warningf(ctx, "story arc %s has no publisher", id)
	}

	err = runMerge(ctx, opts.Batch, func(ctx context.Context) error {
		arc := &StoryArc{ID: id}
		exists := true
		switch err := datastore.Get(ctx, arc); {
		case err == datastore.ErrNoSuchEntity:
			exists = false
		case err != nil:
			return err
		}
		if !exists {
			if !opts.Create {
				return nil
			}
			logging.Infof(ctx, "creating story arc %s", id)
			arc = &StoryArc{
				ID:         id,
				Identifier: num,
				Shard:      Shard(num, r.shards()),
			}
		}
		stored := decodeRaw(arc.RawJSON)
		updates, lastUpdate := HasUpdates(stored, arc.LastUpdated, data)
		if exists && !updates {
			if opts.Reindex && arc.Indexed {
				arc.Indexed = false
				return putOrBatch(ctx, opts.Batch, arc)
			}
			return nil
		}
		applyArc(ctx, arc, stored, data, pubKey, lastUpdate)
		logging.Infof(ctx, "saving story arc updates: %d[%s]", arc.Identifier, arc.LastUpdated)
		return putOrBatch(ctx, opts.Batch, arc)
	})
	if err != nil {
		return nil, errors.Fmt("story arc %s: %w", id, err)
	}
	return key, nil
}

// applyArc copies remote fields onto the record.
func applyArc(ctx context.Context, arc *StoryArc, stored, data comicvine.Payload, pubKey *datastore.Key, lastUpdate time.Time) {
	merged, blob := overlay(stored, data)
	arc.RawJSON = blob

	if name := merged.Str("name"); name != "" {
		arc.Name = name
	}
	if n, ok := merged.Int("count_of_issue_appearances"); ok {
		arc.IssueCount = n
	}
	if u := merged.Str("site_detail_url"); u != "" {
		arc.SiteDetailURL = u
	}
	if img := imageURL(merged, "small_url"); img != "" {
		arc.Image = img
	}
	if pubKey != nil {
		arc.Publisher = pubKey
	}

	if fi := issueRef(ctx, merged.Sub("first_appeared_in_issue")); fi != nil {
		if arc.FirstIssue == nil || !arc.FirstIssue.Equal(fi) {
			arc.FirstIssue = fi
			// Issue data is picked up by the batch refresh, not fetched here.
			arc.Complete = false
		}
	}

	arc.LastUpdated = maxTime(arc.LastUpdated, lastUpdate)
	arc.Indexed = false
	arc.Changed = clock.Now(ctx).UTC()
}
