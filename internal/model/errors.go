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
	"go.chromium.org/luci/common/errors"
)

// ErrNoIdentity means a stable identity could not be derived from the given
// input (empty input, payload without an id field).
var ErrNoIdentity = errors.New("unable to derive an identity")

// Not-found errors, returned when a referenced entity is absent and creating
// it was not allowed.
var (
	ErrNoSuchPublisher  = errors.New("no such publisher")
	ErrNoSuchVolume     = errors.New("no such volume")
	ErrNoSuchIssue      = errors.New("no such issue")
	ErrNoSuchArc        = errors.New("no such story arc")
	ErrNoSuchCollection = errors.New("no such collection")
	ErrNoSuchUser       = errors.New("no such user")
)
