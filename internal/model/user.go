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
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/gae/service/datastore"
)

// User maps an external identity onto an internal key. Per-user entities
// (subscriptions, pulls, streams) hang off this key.
type User struct {
	ID         int64  `gae:"$id"`
	UserID     string `gae:"userid"`
	Nickname   string `gae:"nickname"`
	Image      string `gae:"image,noindex"`
	OauthToken string `gae:"oauth_token,noindex"`
	Trusted    bool   `gae:"trusted"`
}

// UserKey resolves the internal key for an external user identity, creating
// the mapping on first sight when create is allowed.
func (r *Resolver) UserKey(ctx context.Context, userID, nickname string, create bool) (*datastore.Key, error) {
	if userID == "" {
		return nil, errors.Fmt("resolving user: %w", ErrNoIdentity)
	}
	var users []*User
	q := datastore.NewQuery("User").Eq("userid", userID).Limit(1)
	if err := datastore.GetAll(ctx, q, &users); err != nil {
		return nil, errors.Fmt("looking up user: %w", err)
	}
	if len(users) > 0 {
		return datastore.KeyForObj(ctx, users[0]), nil
	}
	if !create {
		return nil, errors.Fmt("user %q: %w", userID, ErrNoSuchUser)
	}
	logging.Infof(ctx, "adding user to datastore: %s", nickname)
	user := &User{UserID: userID, Nickname: nickname}
	if err := datastore.Put(ctx, user); err != nil {
		return nil, errors.Fmt("creating user: %w", err)
	}
	return datastore.KeyForObj(ctx, user), nil
}
