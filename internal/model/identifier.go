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
	"strconv"

	"go.chromium.org/luci/gae/service/datastore"

	"github.com/pulldb/pulldb/internal/comicvine"
)

// Identifier is one of the input shapes a resolver accepts: a bare
// identifier, an existing datastore key, or a full fetched payload.
//
// The zero Identifier is empty and normalizes to ErrNoIdentity.
type Identifier struct {
	id  string
	key *datastore.Key
	raw comicvine.Payload
}

// ID makes an Identifier from a bare string identifier.
func ID(id string) Identifier {
	return Identifier{id: id}
}

// IDNum makes an Identifier from a bare numeric identifier.
func IDNum(id int64) Identifier {
	return Identifier{id: strconv.FormatInt(id, 10)}
}

// Ref makes an Identifier from an existing datastore key.
func Ref(key *datastore.Key) Identifier {
	return Identifier{key: key}
}

// Raw makes an Identifier from a full fetched payload.
func Raw(p comicvine.Payload) Identifier {
	return Identifier{raw: p}
}

// Payload returns the payload carried by a Raw identifier, or nil.
func (in Identifier) Payload() comicvine.Payload {
	return in.raw
}

// normalize derives the canonical string id and numeric id from whichever
// shape was given.
func (in Identifier) normalize() (id string, num int64, err error) {
	switch {
	case in.raw != nil:
		n, ok := in.raw.ID()
		if !ok {
			return "", 0, ErrNoIdentity
		}
		return strconv.FormatInt(n, 10), n, nil
	case in.key != nil:
		id = in.key.StringID()
	default:
		id = in.id
	}
	if id == "" {
		return "", 0, ErrNoIdentity
	}
	num, convErr := strconv.ParseInt(id, 10, 64)
	if convErr != nil {
		return "", 0, ErrNoIdentity
	}
	return id, num, nil
}
