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
)

// Subscription is a per-user watch of a volume. The first/last issue cache
// is denormalized from the volume and refreshed by the shard sweep.
type Subscription struct {
	ID             string         `gae:"$id"` // volume identifier
	Parent         *datastore.Key `gae:"$parent"`
	Volume         *datastore.Key `gae:"volume"`
	Changed        time.Time      `gae:"changed"`
	Fresh          bool           `gae:"fresh"`
	Shard          int64          `gae:"shard"`
	StartDate      time.Time      `gae:"start_date"`
	FirstIssue     *datastore.Key `gae:"volume_first_issue"`
	FirstIssueDate time.Time      `gae:"volume_first_issue_date"`
	LastIssue      *datastore.Key `gae:"volume_last_issue"`
	LastIssueDate  time.Time      `gae:"volume_last_issue_date"`
}

// WatchList is a per-user watch of an arbitrary collection (a volume or a
// story arc).
type WatchList struct {
	ID         int64          `gae:"$id"`
	User       *datastore.Key `gae:"user"`
	Collection *datastore.Key `gae:"collection"`
	Changed    time.Time      `gae:"changed"`
	Fresh      bool           `gae:"fresh"`
	Shard      int64          `gae:"shard"`
	StartDate  time.Time      `gae:"start_date"`
}

// SubscriptionKey resolves the subscription of a user to a volume.
//
// Creation is eager for the referenced volume (it is resolved, and created
// if needed); the first/last issue cache fills in lazily on the next shard
// refresh.
func (r *Resolver) SubscriptionKey(ctx context.Context, volumeIn Identifier, user *datastore.Key, opts ResolveOptions) (*datastore.Key, error) {
	if user == nil {
		return nil, errors.Fmt("resolving subscription: %w", ErrNoSuchUser)
	}
	volKey, err := r.VolumeKey(ctx, volumeIn, ResolveOptions{Create: opts.Create, Batch: opts.Batch})
	if err != nil {
		return nil, errors.Fmt("resolving subscription: %w", err)
	}
	key := datastore.NewKey(ctx, "Subscription", volKey.StringID(), 0, user)

	sub := &Subscription{ID: volKey.StringID(), Parent: user}
	switch err := datastore.Get(ctx, sub); {
	case err == nil:
		return key, nil
	case err != datastore.ErrNoSuchEntity:
		return nil, errors.Fmt("loading subscription %s: %w", volKey.StringID(), err)
	}
	if !opts.Create {
		return key, nil
	}

	vol := &Volume{ID: volKey.StringID()}
	switch err := datastore.Get(ctx, vol); {
	case err == datastore.ErrNoSuchEntity:
		return nil, errors.Fmt("cannot subscribe to volume %s: %w", volKey.StringID(), ErrNoSuchVolume)
	case err != nil:
		return nil, errors.Fmt("loading volume %s: %w", volKey.StringID(), err)
	}

	sub = &Subscription{
		ID:        volKey.StringID(),
		Parent:    user,
		Volume:    volKey,
		Shard:     Shard(vol.Identifier, r.shards()),
		StartDate: clock.Now(ctx).UTC(),
		Changed:   clock.Now(ctx).UTC(),
	}
	if err := putOrBatch(ctx, opts.Batch, sub); err != nil {
		return nil, errors.Fmt("creating subscription %s: %w", volKey.StringID(), err)
	}
	return key, nil
}

// RefreshSubscription copies the volume's first/last issue cache onto the
// subscription. Reports whether anything changed.
func RefreshSubscription(ctx context.Context, sub *Subscription) (bool, error) {
	if sub.Volume == nil {
		return false, nil
	}
	vol := &Volume{ID: sub.Volume.StringID()}
	if err := datastore.Get(ctx, vol); err != nil {
		return false, errors.Fmt("loading volume %s: %w", sub.Volume.StringID(), err)
	}

	changed := false
	if vol.FirstIssue != nil {
		if sub.FirstIssue == nil || !sub.FirstIssue.Equal(vol.FirstIssue) {
			sub.FirstIssue = vol.FirstIssue
			changed = true
		}
		if !sub.FirstIssueDate.Equal(vol.FirstIssueDate) {
			sub.FirstIssueDate = vol.FirstIssueDate
			changed = true
		}
	}
	if vol.LastIssue != nil {
		if sub.LastIssue == nil || !sub.LastIssue.Equal(vol.LastIssue) {
			sub.LastIssue = vol.LastIssue
			changed = true
		}
		if !sub.LastIssueDate.Equal(vol.LastIssueDate) {
			sub.LastIssueDate = vol.LastIssueDate
			changed = true
		}
	}
	if !changed {
		return false, nil
	}
	sub.Changed = clock.Now(ctx).UTC()
	if err := datastore.Put(ctx, sub); err != nil {
		return false, errors.Fmt("saving subscription %s: %w", sub.ID, err)
	}
	return true, nil
}

// WatchKey resolves a user's watch of a collection, creating it on demand.
// The watched collection must already exist.
func (r *Resolver) WatchKey(ctx context.Context, collection *datastore.Key, user *datastore.Key, create bool) (*datastore.Key, error) {
	if collection == nil {
		return nil, errors.Fmt("resolving watch: %w", ErrNoIdentity)
	}
	if user == nil {
		return nil, errors.Fmt("resolving watch: %w", ErrNoSuchUser)
	}

	var watches []*WatchList
	q := datastore.NewQuery("WatchList").Eq("user", user).Eq("collection", collection)
	if err := datastore.GetAll(ctx, q, &watches); err != nil {
		return nil, errors.Fmt("looking up watches: %w", err)
	}
	if len(watches) > 1 {
		logging.Errorf(ctx, "too many watches for %s: %d", collection, len(watches))
	}
	if len(watches) > 0 {
		return datastore.KeyForObj(ctx, watches[0]), nil
	}
	if !create {
		return nil, errors.Fmt("watch of %s: %w", collection, ErrNoSuchCollection)
	}

	switch exists, err := datastore.Exists(ctx, collection); {
	case err != nil:
		return nil, errors.Fmt("checking collection %s: %w", collection, err)
	case !exists.All():
		return nil, errors.Fmt("cannot watch invalid collection %s: %w", collection, ErrNoSuchCollection)
	}

	watch := &WatchList{
		User:       user,
		Collection: collection,
		StartDate:  clock.Now(ctx).UTC(),
		Changed:    clock.Now(ctx).UTC(),
	}
	if err := datastore.Put(ctx, watch); err != nil {
		return nil, errors.Fmt("creating watch: %w", err)
	}
	return datastore.KeyForObj(ctx, watch), nil
}

// VolumeWatchKey resolves a watch of a volume from any volume input shape.
func (r *Resolver) VolumeWatchKey(ctx context.Context, volumeIn Identifier, user *datastore.Key, create bool) (*datastore.Key, error) {
	volKey, err := r.VolumeKey(ctx, volumeIn, ResolveOptions{Create: create})
	if err != nil {
		return nil, err
	}
	return r.WatchKey(ctx, volKey, user, create)
}

// ArcWatchKey resolves a watch of a story arc from any arc input shape.
func (r *Resolver) ArcWatchKey(ctx context.Context, arcIn Identifier, user *datastore.Key, create bool) (*datastore.Key, error) {
	arcKey, err := r.ArcKey(ctx, arcIn, ResolveOptions{Create: create})
	if err != nil {
		return nil, err
	}
	return r.WatchKey(ctx, arcKey, user, create)
}
