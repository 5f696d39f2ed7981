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

package chill

import (
	"errors"
	"fmt"
	"net/http"

	internal "github.com/go-chill/chill/int/errors"
)

// HTTPStatus returns the HTTP status code embedded in the error, or 500
// (internal server error), if there was no specified status code. If err is
// nil, HTTPStatus returns 0.
func HTTPStatus(err error) int {
	return internal.HTTPStatus(err)
}

// IsNotFound returns true if the error is the result of an HTTP 404/Not
// Found response: the database, document, revision, attachment, or view does
// not exist.
func IsNotFound(err error) bool {
	return HTTPStatus(err) == http.StatusNotFound
}

// IsConflict returns true if the error is the result of an HTTP 409/Conflict
// response: the supplied revision token does not match the server's current
// token, or a document with the requested ID already exists.
func IsConflict(err error) bool {
	return HTTPStatus(err) == http.StatusConflict
}

// IsUnauthorized returns true if the error is the result of an HTTP 401 or
// 403 response.
func IsUnauthorized(err error) bool {
	status := HTTPStatus(err)
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// IsBadRequest returns true if the error is the result of an HTTP 400/Bad
// Request response, or of request validation that failed before anything was
// sent.
func IsBadRequest(err error) bool {
	return HTTPStatus(err) == http.StatusBadRequest
}

// IsDatabaseExists returns true if the error is the result of an HTTP
// 412/Precondition Failed response to database creation.
func IsDatabaseExists(err error) bool {
	return HTTPStatus(err) == http.StatusPreconditionFailed
}

// IsTransportError returns true if the error originated in the HTTP
// transport: the exchange never completed, due to a network or IO failure,
// or cancellation. Whether to retry is the caller's decision.
func IsTransportError(err error) bool {
	var te *internal.TransportError
	return errors.As(err, &te)
}

// IsDecodeError returns true if a response body did not match the shape the
// client expected. This indicates a contract mismatch between client and
// server and should be treated as non-retriable.
func IsDecodeError(err error) bool {
	var de *internal.DecodeError
	return errors.As(err, &de)
}

// IsServerError returns true for any other non-success response from the
// server: a status outside 2xx that is not one of the expected, recoverable
// outcomes above, and not a transport or decode failure.
func IsServerError(err error) bool {
	if err == nil || IsTransportError(err) || IsDecodeError(err) {
		return false
	}
	switch status := HTTPStatus(err); {
	case status >= 500:
		return true
	case status >= 400:
		return status != http.StatusNotFound &&
			status != http.StatusConflict &&
			status != http.StatusUnauthorized &&
			status != http.StatusForbidden &&
			status != http.StatusBadRequest &&
			status != http.StatusPreconditionFailed
	}
	return false
}

// missingArg returns an error for a missing required argument, before any
// request is sent.
func missingArg(arg string) error {
	return &internal.Error{Status: http.StatusBadRequest, Err: fmt.Errorf("chill: %s required", arg)}
}
