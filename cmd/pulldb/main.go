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

// Package main implements the pulldb server: cron-driven synchronization of
// comic metadata from the Comicvine API plus a thin lookup surface over the
// mirrored entities.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/gae/service/datastore"
	"go.chromium.org/luci/server"
	"go.chromium.org/luci/server/cron"
	"go.chromium.org/luci/server/gaeemulation"
	"go.chromium.org/luci/server/module"
	"go.chromium.org/luci/server/router"

	"github.com/pulldb/pulldb/internal/comicvine"
	"github.com/pulldb/pulldb/internal/model"
	"github.com/pulldb/pulldb/internal/search"
)

func main() {
	mods := []module.Module{
		cron.NewModuleFromFlags(),
		gaeemulation.NewModuleFromFlags(),
	}

	server.Main(nil, mods, func(srv *server.Server) error {
		apiKey, err := model.APIKey(srv.Context)
		if err != nil {
			return errors.Fmt("loading API credential: %w", err)
		}
		cv, err := comicvine.New(comicvine.Options{APIKey: apiKey})
		if err != nil {
			return err
		}
		resolver := &model.Resolver{CV: cv}
		indexer := &search.Indexer{Sink: search.LogSink{}}

		// Scheduled hourly; with 24 shards every subscribed volume is
		// refreshed once a day.
		cron.RegisterHandler("refresh-shard", func(ctx context.Context) error {
			shard := int64(clock.Now(ctx).UTC().Hour()) % int64(model.DefaultShardCount)
			_, err := resolver.RefreshShard(ctx, shard)
			return err
		})
		cron.RegisterHandler("reindex-sweep", func(ctx context.Context) error {
			_, err := indexer.Sweep(ctx)
			return err
		})
		cron.RegisterHandler("refresh-types", cv.WarmTypes)

		srv.Routes.GET("/volume/:id", nil, entityHandler(resolver, getVolume))
		srv.Routes.GET("/issue/:id", nil, entityHandler(resolver, getIssue))
		srv.Routes.GET("/arc/:id", nil, entityHandler(resolver, getArc))
		srv.Routes.GET("/search/:resource", nil, func(c *router.Context) {
			searchHandler(c, cv)
		})
		return nil
	})
}

// getter resolves one entity kind by identifier and loads it for rendering.
type getter func(ctx context.Context, r *model.Resolver, id int64) (any, error)

func getVolume(ctx context.Context, r *model.Resolver, id int64) (any, error) {
	key, err := r.VolumeKey(ctx, model.IDNum(id), model.ResolveOptions{Create: true})
	if err != nil {
		return nil, err
	}
	vol := &model.Volume{ID: key.StringID()}
	return vol, datastore.Get(ctx, vol)
}

func getIssue(ctx context.Context, r *model.Resolver, id int64) (any, error) {
	key, err := r.IssueKey(ctx, model.IDNum(id), model.ResolveOptions{Create: true})
	if err != nil {
		return nil, err
	}
	issue := &model.Issue{ID: key.StringID()}
	return issue, datastore.Get(ctx, issue)
}

func getArc(ctx context.Context, r *model.Resolver, id int64) (any, error) {
	key, err := r.ArcKey(ctx, model.IDNum(id), model.ResolveOptions{Create: true})
	if err != nil {
		return nil, err
	}
	arc := &model.StoryArc{ID: key.StringID()}
	return arc, datastore.Get(ctx, arc)
}

// entityHandler adapts a getter into a JSON endpoint.
func entityHandler(r *model.Resolver, get getter) router.Handler {
	return func(c *router.Context) {
		ctx := c.Request.Context()
		id, err := strconv.ParseInt(c.Params.ByName("id"), 10, 64)
		if err != nil {
			http.Error(c.Writer, "invalid identifier", http.StatusBadRequest)
			return
		}
		ent, err := get(ctx, r, id)
		switch {
		case err == datastore.ErrNoSuchEntity:
			http.Error(c.Writer, "not found", http.StatusNotFound)
			return
		case err != nil:
			logging.WithError(err).Errorf(ctx, "resolving entity %d", id)
			http.Error(c.Writer, "lookup failed", http.StatusInternalServerError)
			return
		}
		writeJSON(c, ent)
	}
}

// searchHandler proxies a full-text query to the remote API.
func searchHandler(c *router.Context, cv *comicvine.Client) {
	ctx := c.Request.Context()
	query := c.Request.URL.Query().Get("q")
	if query == "" {
		http.Error(c.Writer, "missing query", http.StatusBadRequest)
		return
	}
	resource := c.Params.ByName("resource")
	results, err := cv.Do(ctx, comicvine.Request{
		Kind:     comicvine.KindSearch,
		Resource: resource,
		Query:    query,
	})
	if err != nil {
		logging.WithError(err).Errorf(ctx, "searching %s", resource)
		http.Error(c.Writer, "search failed", http.StatusInternalServerError)
		return
	}
	writeJSON(c, map[string]any{"results": results})
}

func writeJSON(c *router.Context, v any) {
	c.Writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(c.Writer).Encode(v); err != nil {
		logging.WithError(err).Warningf(c.Request.Context(), "writing response")
	}
}
