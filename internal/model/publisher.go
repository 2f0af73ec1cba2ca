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

// Publisher is a leaf entity, created on first reference from a volume or
// story arc.
type Publisher struct {
	ID         string    `gae:"$id"`
	Identifier int64     `gae:"identifier"`
	Name       string    `gae:"name"`
	Image      string    `gae:"image,noindex"`
	Changed    time.Time `gae:"changed"`
	RawJSON    []byte    `gae:"json,noindex"`
}

// Raw returns the stored raw payload.
func (p *Publisher) Raw() comicvine.Payload {
	return decodeRaw(p.RawJSON)
}

// PublisherKey resolves the canonical key of a publisher.
//
// Publishers carry no remote timestamp; an existing record is only touched
// when the incoming payload exposes fields never stored before.
func (r *Resolver) PublisherKey(ctx context.Context, in Identifier, opts ResolveOptions) (*datastore.Key, error) {
	id, num, err := in.normalize()
	if err != nil {
		return nil, errors.Fmt("resolving publisher: %w", err)
	}
	key := datastore.MakeKey(ctx, "Publisher", id)
	data := in.Payload()

	pub := &Publisher{ID: id}
	exists := true
	switch err := datastore.Get(ctx, pub); {
	case err == datastore.ErrNoSuchEntity:
		exists = false
	case err != nil:
		return nil, errors.Fmt("loading publisher %s: %w", id, err)
	}

	if !exists {
		if !opts.Create {
			return nil, errors.Fmt("publisher %s: %w", id, ErrNoSuchPublisher)
		}
		if data.Sub("image") == nil {
			data, err = r.CV.Fetch(ctx, "publisher", num, "id", "name", "image")
			if err != nil {
				return nil, errors.Fmt("materializing publisher %s: %w", id, err)
			}
		}
	}
	if data == nil {
		return key, nil
	}

	err = runMerge(ctx, opts.Batch, func(ctx context.Context) error {
		pub := &Publisher{ID: id}
		exists := true
		switch err := datastore.Get(ctx, pub); {
		case err == datastore.ErrNoSuchEntity:
			exists = false
			pub = &Publisher{ID: id, Identifier: num}
		case err != nil:
			return err
		}
		stored := decodeRaw(pub.RawJSON)
		if exists && !hasNewKeys(stored, data) {
			return nil
		}
		if !exists {
			logging.Infof(ctx, "creating publisher %s", id)
		}
		merged, blob := overlay(stored, data)
		pub.RawJSON = blob
		if name := merged.Str("name"); name != "" {
			pub.Name = name
		}
		if img := imageURL(merged, "tiny_url"); img != "" {
			pub.Image = img
		}
		pub.Changed = clock.Now(ctx).UTC()
		return putOrBatch(ctx, opts.Batch, pub)
	})
	if err != nil {
		return nil, errors.Fmt("publisher %s: %w", id, err)
	}
	return key, nil
}
