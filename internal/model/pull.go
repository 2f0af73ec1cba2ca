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

// Pull is a per-user, per-issue pull/read record. Issue, volume and
// publisher names are denormalized onto it so pull lists render without
// chasing references.
type Pull struct {
	ID     string         `gae:"$id"` // issue identifier
	Parent *datastore.Key `gae:"$parent"`
	Issue  *datastore.Key `gae:"issue"`
	Pulled bool           `gae:"pulled"`
	Read   bool           `gae:"read"`

	IssueName     string    `gae:"name,noindex"`
	VolumeName    string    `gae:"volume_name,noindex"`
	PublisherName string    `gae:"publisher_name,noindex"`
	Pubdate       time.Time `gae:"pubdate"`
	Changed       time.Time `gae:"changed"`
}

// PullKey resolves the pull of an issue under a subscription, creating the
// record (and, if needed, the issue) on demand.
func (r *Resolver) PullKey(ctx context.Context, issueIn Identifier, subscription *datastore.Key, opts ResolveOptions) (*datastore.Key, error) {
	if subscription == nil {
		return nil, errors.Fmt("resolving pull: %w", ErrNoSuchCollection)
	}
	issueKey, err := r.IssueKey(ctx, issueIn, ResolveOptions{Create: opts.Create})
	if err != nil {
		return nil, errors.Fmt("resolving pull: %w", err)
	}
	key := datastore.NewKey(ctx, "Pull", issueKey.StringID(), 0, subscription)

	pull := &Pull{ID: issueKey.StringID(), Parent: subscription}
	switch err := datastore.Get(ctx, pull); {
	case err == nil:
		return key, nil
	case err != datastore.ErrNoSuchEntity:
		return nil, errors.Fmt("loading pull %s: %w", issueKey.StringID(), err)
	}
	if !opts.Create {
		return key, nil
	}

	issue := &Issue{ID: issueKey.StringID()}
	switch err := datastore.Get(ctx, issue); {
	case err == datastore.ErrNoSuchEntity:
		return nil, errors.Fmt("cannot pull issue %s: %w", issueKey.StringID(), ErrNoSuchIssue)
	case err != nil:
		return nil, errors.Fmt("loading issue %s: %w", issueKey.StringID(), err)
	}

	pull = &Pull{
		ID:        issueKey.StringID(),
		Parent:    subscription,
		Issue:     issueKey,
		IssueName: issue.Name,
		Pubdate:   issue.Pubdate,
		Changed:   clock.Now(ctx).UTC(),
	}
	if issue.Volume != nil {
		vol := &Volume{ID: issue.Volume.StringID()}
		if err := datastore.Get(ctx, vol); err == nil {
			pull.VolumeName = vol.Name
			if vol.Publisher != nil {
				pub := &Publisher{ID: vol.Publisher.StringID()}
				if err := datastore.Get(ctx, pub); err == nil {
					pull.PublisherName = pub.Name
				}
			}
		} else {
			// Denormalized names are cosmetic; the pull is still valid.
			logging.WithError(err).Warningf(ctx, "pull %s: volume lookup failed", pull.ID)
		}
	}
	if err := putOrBatch(ctx, opts.Batch, pull); err != nil {
		return nil, errors.Fmt("creating pull %s: %w", pull.ID, err)
	}
	return key, nil
}
