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
	"io"
	"net/http"
	"strings"
	"testing"
)

type customTransport func(*http.Request) (*http.Response, error)

var _ http.RoundTripper = customTransport(nil)

func (c customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return c(req)
}

func newCustomClient(t *testing.T, fn func(*http.Request) (*http.Response, error)) *Client {
	t.Helper()
	client, err := New("http://example.com/", WithHTTPClient(&http.Client{
		Transport: customTransport(fn),
	}))
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func newTestDB(t *testing.T, fn func(*http.Request) (*http.Response, error)) *Database {
	t.Helper()
	db, err := newCustomClient(t, fn).DB("testdb")
	if err != nil {
		t.Fatal(err)
	}
	return db
}

func newTestResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header: http.Header{
			"Content-Type": {"application/json"},
		},
		Body: Body(body),
	}
}

func Body(str string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(str))
}
