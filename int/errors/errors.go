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

// Package internal provides the error type shared by all chill packages.
package internal

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents an error returned by chill.
//
// This type definition is not guaranteed to remain stable, or even exported.
// When examining errors programmatically, you should rely instead on the
// HTTPStatus() function in this package, rather than on directly observing
// the fields of this type.
type Error struct {
	// Status is the HTTP status code associated with this error. Normally
	// this is the actual HTTP status returned by the server, but in some
	// cases it may be generated by chill directly.
	Status int

	// Message is the error message.
	Message string

	// Err is the originating error, if any.
	Err error
}

var (
	_ error       = &Error{}
	_ statusCoder = &Error{}
)

func (e *Error) Error() string {
	if e.Err == nil {
		return e.msg()
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

// HTTPStatus returns the HTTP status code associated with the error, or 500
// (internal server error), if none.
func (e *Error) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// Unwrap satisfies the errors wrapper interface.
func (e *Error) Unwrap() error {
	return e.Err
}

// Format implements fmt.Formatter. The %+v verb appends the HTTP status to
// the error message.
func (e *Error) Format(f fmt.State, c rune) {
	parts := make([]string, 0, 3)
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if c == 'v' && f.Flag('+') {
		parts = append(parts, fmt.Sprintf("%d / %s", e.HTTPStatus(), http.StatusText(e.HTTPStatus())))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	_, _ = fmt.Fprint(f, strJoin(parts))
}

func strJoin(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	result := parts[0]
	for _, part := range parts[1:] {
		result += ": " + part
	}
	return result
}

func (e *Error) msg() string {
	if e.Message == "" {
		return http.StatusText(e.HTTPStatus())
	}
	return e.Message
}

type statusCoder interface {
	HTTPStatus() int
}

// HTTPStatus returns the HTTP status code embedded in the error, or 500
// (internal server error), if there was no specified status code. If err is
// nil, HTTPStatus returns 0. This provides a convenient way to determine the
// precise nature of a chill-returned error.
func HTTPStatus(err error) int {
	if err == nil {
		return 0
	}
	var coder statusCoder
	if errors.As(err, &coder) {
		return coder.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// TransportError wraps a network- or IO-level failure reported by the HTTP
// transport, including context cancellation. It is distinct from a server
// error: the exchange never completed, so no server status is available.
type TransportError struct {
	Err error
}

var (
	_ error       = &TransportError{}
	_ statusCoder = &TransportError{}
)

func (e *TransportError) Error() string {
	return e.Err.Error()
}

// HTTPStatus returns 502 (bad gateway). No response was received, so no
// server-assigned status exists.
func (e *TransportError) HTTPStatus() int {
	return http.StatusBadGateway
}

// Unwrap satisfies the errors wrapper interface.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError wraps a failure to decode a response body into the shape the
// client expected. The server behaved, the exchange completed, but the
// payload did not match the contract, such as when talking to an
// incompatible server version.
type DecodeError struct {
	Err error
}

var (
	_ error       = &DecodeError{}
	_ statusCoder = &DecodeError{}
)

func (e *DecodeError) Error() string {
	return "decode: " + e.Err.Error()
}

// HTTPStatus returns 502 (bad gateway).
func (e *DecodeError) HTTPStatus() int {
	return http.StatusBadGateway
}

// Unwrap satisfies the errors wrapper interface.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
