// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package chttp

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	internal "github.com/go-chill/chill/int/errors"
)

// maxErrorBody caps how much of an error response body is retained for
// diagnostics.
const maxErrorBody = 4096

// serverError is the JSON shape of a CouchDB error body.
type serverError struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// ResponseError returns an error from an *http.Response if the status code
// indicates an error. The CouchDB-supplied reason, when present, becomes the
// error message; otherwise the raw body is retained for diagnostics. The
// response body is consumed and closed.
func ResponseError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	var message string
	if resp.Body != nil {
		defer CloseBody(resp.Body)
		if resp.Request == nil || resp.Request.Method != http.MethodHead {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			message = strings.TrimSpace(string(body))
			if ct, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); ct == typeJSON {
				var srvErr serverError
				if err := json.Unmarshal(body, &srvErr); err == nil && srvErr.Reason != "" {
					message = srvErr.Reason
				}
			}
		}
	}
	return &internal.Error{
		Status:  resp.StatusCode,
		Message: message,
	}
}
