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
	"fmt"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/errors/errtag"
)

// HTTPStatusTag carries the HTTP status code of a failed request.
var HTTPStatusTag = errtag.Make("Comicvine HTTP status code", 0)

// APIError is an application-level failure reported by the Comicvine API in
// an otherwise well-formed response envelope.
//
// These indicate a problem with the request itself (bad resource, bad
// filter, expired credential) and are never retried.
type APIError struct {
	// Status is the status_code field of the envelope.
	Status int
	// Message is the error field of the envelope.
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("comicvine API error %d: %s", e.Status, e.Message)
}

// IsAPIError returns the *APIError wrapped in err, if any.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
