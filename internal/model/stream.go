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

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/gae/service/datastore"
)

// Stream is a named aggregation of publishers and volumes a user follows.
type Stream struct {
	ID         string           `gae:"$id"` // stream name
	Parent     *datastore.Key   `gae:"$parent"`
	Publishers []*datastore.Key `gae:"publishers"`
	Volumes    []*datastore.Key `gae:"volumes"`
	Length     int64            `gae:"length"`
}

// StreamKey resolves a user's named stream, creating an empty one on demand.
func (r *Resolver) StreamKey(ctx context.Context, name string, user *datastore.Key, create bool) (*datastore.Key, error) {
	if name == "" {
		return nil, errors.Fmt("resolving stream: %w", ErrNoIdentity)
	}
	if user == nil {
		return nil, errors.Fmt("resolving stream: %w", ErrNoSuchUser)
	}
	key := datastore.NewKey(ctx, "Stream", name, 0, user)

	stream := &Stream{ID: name, Parent: user}
	switch err := datastore.Get(ctx, stream); {
	case err == nil:
		return key, nil
	case err != datastore.ErrNoSuchEntity:
		return nil, errors.Fmt("loading stream %q: %w", name, err)
	}
	if !create {
		return nil, errors.Fmt("stream %q: %w", name, ErrNoSuchCollection)
	}
	if err := datastore.Put(ctx, &Stream{ID: name, Parent: user}); err != nil {
		return nil, errors.Fmt("creating stream %q: %w", name, err)
	}
	return key, nil
}
