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

// Issue is a mirrored comic issue. Collection holds the keys of every
// volume and story arc the issue belongs to.
type Issue struct {
	ID            string           `gae:"$id"`
	Identifier    int64            `gae:"identifier"`
	Title         string           `gae:"title"`
	Name          string           `gae:"name"`
	IssueNumber   string           `gae:"issue_number"`
	Volume        *datastore.Key   `gae:"volume"`
	Collection    []*datastore.Key `gae:"collection"`
	Pubdate       time.Time        `gae:"pubdate"`
	Image         string           `gae:"image,noindex"`
	SiteDetailURL string           `gae:"site_detail_url,noindex"`
	LastUpdated   time.Time        `gae:"last_updated"`
	Changed       time.Time        `gae:"changed"`
	Complete      bool             `gae:"complete"`
	Indexed       bool             `gae:"indexed"`
	Shard         int64            `gae:"shard"`
	RawJSON       []byte           `gae:"json,noindex"`
}

// Raw returns the stored raw payload.
func (i *Issue) Raw() comicvine.Payload {
	return decodeRaw(i.RawJSON)
}

// inCollection reports whether key is already linked on the issue.
func (i *Issue) inCollection(key *datastore.Key) bool {
	for _, k := range i.Collection {
		if k.Equal(key) {
			return true
		}
	}
	return false
}

// IssueKey resolves the canonical key of an issue.
//
// Story arc credits on the payload each resolve through the arc resolver,
// creating arcs on demand; the embedded volume stub merges into the stored
// volume (without creating one). A partial failure while resolving these
// references aborts the whole resolution before anything is persisted.
func (r *Resolver) IssueKey(ctx context.Context, in Identifier, opts ResolveOptions) (*datastore.Key, error) {
	id, num, err := in.normalize()
	if err != nil {
		return nil, errors.Fmt("resolving issue: %w", err)
	}
	key := datastore.MakeKey(ctx, "Issue", id)
	data := in.Payload()

	issue := &Issue{ID: id}
	exists := true
	switch err := datastore.Get(ctx, issue); {
	case err == datastore.ErrNoSuchEntity:
		exists = false
	case err != nil:
		return nil, errors.Fmt("loading issue %s: %w", id, err)
	}

	if !exists && opts.Create && data == nil {
		data, err = r.CV.Fetch(ctx, "issue", num)
		if err != nil {
			return nil, errors.Fmt("materializing issue %s: %w", id, err)
		}
	}
	if data == nil || (!exists && !opts.Create) {
		return key, nil
	}

	// Resolve cross-entity references up front, outside the transaction.
	volStub := data.Sub("volume")
	if volStub == nil && !exists {
		return nil, errors.Fmt("issue %s has no volume: %w", id, ErrNoSuchVolume)
	}
	var volKey *datastore.Key
	if volStub != nil {
		volKey, err = r.VolumeKey(ctx, Raw(volStub), ResolveOptions{Create: false, Batch: opts.Batch})
		if err != nil {
			return nil, errors.Fmt("issue %s: %w", id, err)
		}
	}
	var arcKeys []*datastore.Key
	for _, arc := range data.List("story_arc_credits") {
		arcKey, err := r.ArcKey(ctx, Raw(arc), ResolveOptions{Create: true, Batch: opts.Batch})
		if err != nil {
			return nil, errors.Fmt("issue %s: %w", id, err)
		}
		arcKeys = append(arcKeys, arcKey)
	}

	err = runMerge(ctx, opts.Batch, func(ctx context.Context) error {
		issue := &Issue{ID: id}
		exists := true
		switch err := datastore.Get(ctx, issue); {
		case err == datastore.ErrNoSuchEntity:
			exists = false
		case err != nil:
			return err
		}
		if !exists {
			if !opts.Create {
				return nil
			}
			logging.Infof(ctx, "creating issue %s", id)
			issue = &Issue{
				ID:         id,
				Identifier: num,
				Volume:     volKey,
				Shard:      Shard(num, r.shards()),
			}
		}

		stored := decodeRaw(issue.RawJSON)
		updates, lastUpdate := HasUpdates(stored, issue.LastUpdated, data)
		if exists && !updates && !collectionChanged(issue, volKey, arcKeys) {
			if opts.Reindex && issue.Indexed {
				issue.Indexed = false
				return putOrBatch(ctx, opts.Batch, issue)
			}
			return nil
		}
		applyIssue(ctx, issue, stored, data, volKey, arcKeys, lastUpdate)
		logging.Infof(ctx, "saving issue updates for %s (last update at: %s)", id, issue.LastUpdated)
		return putOrBatch(ctx, opts.Batch, issue)
	})
	if err != nil {
		return nil, errors.Fmt("issue %s: %w", id, err)
	}
	return key, nil
}

// collectionChanged reports whether the issue's collection is missing any of
// the references the payload names.
func collectionChanged(issue *Issue, volKey *datastore.Key, arcKeys []*datastore.Key) bool {
	if volKey != nil && !issue.inCollection(volKey) {
		return true
	}
	for _, arcKey := range arcKeys {
		if !issue.inCollection(arcKey) {
			return true
		}
	}
	return false
}

// applyIssue copies remote fields onto the record. Reference keys are
// resolved by the caller outside the enclosing transaction.
func applyIssue(ctx context.Context, issue *Issue, stored, data comicvine.Payload, volKey *datastore.Key, arcKeys []*datastore.Key, lastUpdate time.Time) {
	merged, blob := overlay(stored, data)
	issue.RawJSON = blob

	issue.Title = merged.Str("name")
	issue.IssueNumber = merged.Str("issue_number")
	if u := merged.Str("site_detail_url"); u != "" {
		issue.SiteDetailURL = u
	}
	if volName := merged.Sub("volume").Str("name"); volName != "" {
		issue.Name = volName + " " + issue.IssueNumber
	}

	if volKey != nil {
		issue.Volume = volKey
		if !issue.inCollection(volKey) {
			issue.Collection = append(issue.Collection, volKey)
		}
	}
	for _, arcKey := range arcKeys {
		if !issue.inCollection(arcKey) {
			issue.Collection = append(issue.Collection, arcKey)
		}
	}

	// The store date is when the issue actually shipped; the cover date is
	// a coarse fallback.
	if pubdate := merged.Time("store_date"); !pubdate.IsZero() {
		issue.Pubdate = pubdate
	} else if pubdate := merged.Time("cover_date"); !pubdate.IsZero() {
		issue.Pubdate = pubdate
	}

	issue.Image = imageURL(merged, "small_url")
	issue.LastUpdated = maxTime(issue.LastUpdated, lastUpdate)
	issue.Indexed = false
	issue.Changed = clock.Now(ctx).UTC()
}
