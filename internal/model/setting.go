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

// APIKeySetting is the name of the setting holding the Comicvine credential.
const APIKeySetting = "comicvine_api_key"

// Setting is a named application setting. The engine only reads settings,
// once at construction; they are administered out of band.
type Setting struct {
	ID    int64  `gae:"$id"`
	Name  string `gae:"name"`
	Value string `gae:"value,noindex"`
}

// SettingValue looks up a setting by name.
func SettingValue(ctx context.Context, name string) (string, error) {
	var settings []*Setting
	q := datastore.NewQuery("Setting").Eq("name", name).Limit(1)
	if err := datastore.GetAll(ctx, q, &settings); err != nil {
		return "", errors.Fmt("loading setting %q: %w", name, err)
	}
	if len(settings) == 0 {
		return "", errors.Fmt("setting %q is not configured", name)
	}
	return settings[0].Value, nil
}

// APIKey returns the Comicvine credential.
func APIKey(ctx context.Context) (string, error) {
	return SettingValue(ctx, APIKeySetting)
}
