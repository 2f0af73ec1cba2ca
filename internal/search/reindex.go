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

package search

import (
	"context"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/gae/service/datastore"

	"github.com/pulldb/pulldb/internal/model"
)

// DefaultSweepLimit bounds how many entities of one kind a single sweep
// reindexes.
const DefaultSweepLimit = 200

// Indexer pushes entities awaiting indexing into a Sink. It is the only
// writer of the indexed flag.
type Indexer struct {
	Sink Sink

	// Limit bounds one sweep per kind. DefaultSweepLimit if zero.
	Limit int32
}

func (ix *Indexer) limit() int32 {
	if ix.Limit > 0 {
		return ix.Limit
	}
	return DefaultSweepLimit
}

// Sweep indexes pending volumes, issues and story arcs. An indexing failure
// leaves the entity pending for the next sweep; the sweep itself keeps
// going. Returns the number of documents indexed.
func (ix *Indexer) Sweep(ctx context.Context) (int, error) {
	total := 0
	for _, kind := range []string{"Volume", "Issue", "StoryArc"} {
		n, err := ix.sweepKind(ctx, kind)
		total += n
		if err != nil {
			return total, errors.Fmt("reindexing %s entities: %w", kind, err)
		}
	}
	return total, nil
}

func (ix *Indexer) sweepKind(ctx context.Context, kind string) (int, error) {
	keys, err := model.Unindexed(ctx, kind, ix.limit())
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	logging.Infof(ctx, "reindexing %d %s entities", len(keys), kind)

	indexed := 0
	for _, key := range keys {
		if err := ix.indexOne(ctx, kind, key.StringID()); err != nil {
			logging.WithError(err).Errorf(ctx, "indexing %s %s", kind, key.StringID())
			continue
		}
		indexed++
	}
	return indexed, nil
}

// indexOne builds and submits one document, then marks the entity indexed.
// The flag flips only after the sink accepts the document.
func (ix *Indexer) indexOne(ctx context.Context, kind, id string) error {
	var doc Document
	var ent any
	switch kind {
	case "Volume":
		vol := &model.Volume{ID: id}
		if err := datastore.Get(ctx, vol); err != nil {
			return err
		}
		doc, ent = VolumeDocument(vol), vol
		vol.Indexed = true
	case "Issue":
		issue := &model.Issue{ID: id}
		if err := datastore.Get(ctx, issue); err != nil {
			return err
		}
		doc, ent = IssueDocument(issue), issue
		issue.Indexed = true
	case "StoryArc":
		arc := &model.StoryArc{ID: id}
		if err := datastore.Get(ctx, arc); err != nil {
			return err
		}
		doc, ent = ArcDocument(arc), arc
		arc.Indexed = true
	default:
		return errors.Fmt("unknown kind %q", kind)
	}
	if err := ix.Sink.Put(ctx, doc); err != nil {
		return err
	}
	return datastore.Put(ctx, ent)
}
