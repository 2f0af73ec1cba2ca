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

package comicvine

import (
	"context"
	"time"

	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/tsmon/distribution"
	"go.chromium.org/luci/common/tsmon/field"
	"go.chromium.org/luci/common/tsmon/metric"
	"go.chromium.org/luci/common/tsmon/types"
)

var callCount = metric.NewCounter(
	"pulldb/comicvine/call_count",
	"Number of logical Comicvine API calls. One call may retry internally.",
	&types.MetricMetadata{},
	// True iff the call eventually succeeded.
	field.Bool("success"),
	// Number of retries performed within the call.
	field.Int("retries"),
	// status_code reported by the API, 0 when none was decoded.
	field.Int("api_status"),
)

var callLatency = metric.NewCumulativeDistribution(
	"pulldb/comicvine/call_latency",
	"Distribution of Comicvine call latencies, including retries.",
	&types.MetricMetadata{Units: types.Milliseconds},
	distribution.DefaultBucketer,
	field.Bool("success"),
)

var responseSize = metric.NewCumulativeDistribution(
	"pulldb/comicvine/response_size",
	"Distribution of Comicvine response body sizes.",
	&types.MetricMetadata{Units: types.Bytes},
	distribution.DefaultBucketer,
	field.Bool("success"),
)

// callRecord is the accounting record of one logical call.
type callRecord struct {
	url     string // credential already redacted
	latency time.Duration
	retries int
	resp    *response
	err     error
}

// recordCall updates the call metrics and emits one structured log line per
// logical call.
func recordCall(ctx context.Context, rec callRecord) {
	httpStatus := 0
	apiStatus := 0
	size := 0
	if rec.resp != nil {
		httpStatus = rec.resp.httpStatus
		apiStatus = rec.resp.StatusCode
		size = rec.resp.bodySize
	}
	if apiErr, ok := IsAPIError(rec.err); ok {
		apiStatus = apiErr.Status
	}
	if rec.err != nil && httpStatus == 0 {
		httpStatus = HTTPStatusTag.ValueOrDefault(rec.err)
	}

	ok := rec.err == nil
	callCount.Add(ctx, 1, ok, rec.retries, apiStatus)
	callLatency.Add(ctx, float64(rec.latency.Milliseconds()), ok)
	if size > 0 {
		responseSize.Add(ctx, float64(size), ok)
	}

	logging.Fields{
		"url":         rec.url,
		"latency":     rec.latency,
		"retries":     rec.retries,
		"size":        size,
		"http_status": httpStatus,
		"api_status":  apiStatus,
		"success":     ok,
	}.Infof(ctx, "comicvine call finished")
}
