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
	"context"
	"net/http"

	"github.com/go-chill/chill/chttp"
)

// Version is the version of this library.
const Version = "0.3.0"

// Client is a connection to a CouchDB server.
type Client struct {
	conn *chttp.Client
}

// Option configures a Client at construction time.
type Option func(*config)

type config struct {
	httpClient *http.Client
	userAgents []string
}

// WithHTTPClient sets the underlying *http.Client used for all requests. By
// default a zero-value client is used. Connection pooling, TLS, and timeouts
// belong to this client; chill never inspects them.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *config) {
		c.httpClient = httpClient
	}
}

// WithUserAgent appends ua to the User-Agent header sent on all requests.
func WithUserAgent(ua string) Option {
	return func(c *config) {
		c.userAgents = append(c.userAgents, ua)
	}
}

// New returns a client connected to the server at dsn. If the DSN contains
// credentials, requests are authenticated with HTTP Basic Auth.
func New(dsn string, options ...Option) (*Client, error) {
	cfg := &config{}
	for _, opt := range options {
		opt(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{}
	}
	conn, err := chttp.New(cfg.httpClient, dsn)
	if err != nil {
		return nil, err
	}
	conn.UserAgents = append(conn.UserAgents, cfg.userAgents...)
	return &Client{conn: conn}, nil
}

// DSN returns the unparsed DSN used to connect.
func (c *Client) DSN() string {
	return c.conn.DSN()
}

// DB returns a handle for the named database. The database is not verified
// to exist; a missing database surfaces as a not-found error on first use.
func (c *Client) DB(name string) (*Database, error) {
	path, err := NewDatabasePath(name)
	if err != nil {
		return nil, err
	}
	return c.DBAt(path), nil
}

// DBAt returns a handle for the database at the given path.
func (c *Client) DBAt(path DatabasePath) *Database {
	return &Database{
		client: c,
		path:   path,
	}
}

// CreateDB creates the named database and returns a handle to it. If the
// database already exists, the returned error carries status 412
// (precondition failed), detectable with [IsDatabaseExists].
func (c *Client) CreateDB(ctx context.Context, name string) (*Database, error) {
	path, err := NewDatabasePath(name)
	if err != nil {
		return nil, err
	}
	if _, err := c.conn.DoError(ctx, http.MethodPut, path.String(), nil); err != nil {
		return nil, err
	}
	return c.DBAt(path), nil
}

// DestroyDB deletes the named database and all of its documents.
func (c *Client) DestroyDB(ctx context.Context, name string) error {
	path, err := NewDatabasePath(name)
	if err != nil {
		return err
	}
	opts := &chttp.Options{
		Header: http.Header{
			chttp.HeaderIdempotencyKey: []string{},
		},
	}
	_, err = c.conn.DoError(ctx, http.MethodDelete, path.String(), opts)
	return err
}

// Ping reports whether the server is up.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	resp, err := c.conn.DoReq(ctx, http.MethodHead, "/_up", nil)
	if err != nil {
		return false, err
	}
	chttp.CloseBody(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		// /_up predates CouchDB 2.x; fall back to the server root.
		resp, err = c.conn.DoReq(ctx, http.MethodHead, "/", nil)
		if err != nil {
			return false, err
		}
		chttp.CloseBody(resp.Body)
	}
	return resp.StatusCode < 400, nil
}

// ServerVersion represents the version information returned by the server
// root.
type ServerVersion struct {
	// Version is the version number reported by the server.
	Version string `json:"version"`

	// Vendor is the vendor name reported by the server.
	Vendor struct {
		Name string `json:"name"`
	} `json:"vendor"`
}

// Version returns the server's version information.
func (c *Client) Version(ctx context.Context) (*ServerVersion, error) {
	ver := new(ServerVersion)
	if err := c.conn.DoJSON(ctx, http.MethodGet, "/", nil, ver); err != nil {
		return nil, err
	}
	return ver, nil
}
