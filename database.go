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
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chill/chill/chttp"
	internal "github.com/go-chill/chill/int/errors"
)

// Database is a handle to a database on the server. It holds no state beyond
// its path and may be used concurrently; every method performs exactly one
// HTTP exchange.
type Database struct {
	client *Client
	path   DatabasePath
}

// Name returns the database name.
func (d *Database) Name() string {
	return d.path.Name()
}

// Path returns the database path.
func (d *Database) Path() DatabasePath {
	return d.path
}

// writeResponse is the body of a successful document write.
type writeResponse struct {
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

// CreateDoc creates a new document with a server-assigned ID. It returns the
// assigned ID and the new revision token.
func (d *Database) CreateDoc(ctx context.Context, content interface{}) (id, rev string, err error) {
	opts := &chttp.Options{
		GetBody: chttp.BodyEncoder(content),
		Header: http.Header{
			chttp.HeaderIdempotencyKey: []string{},
		},
	}
	var resp writeResponse
	if err := d.client.conn.DoJSON(ctx, http.MethodPost, d.path.String(), opts, &resp); err != nil {
		return "", "", err
	}
	return resp.ID, resp.Rev, nil
}

// CreateDocWithID creates a new document with the given ID. It returns the
// new revision token. If a document with this ID already exists, the error
// is a conflict.
func (d *Database) CreateDocWithID(ctx context.Context, docID string, content interface{}) (rev string, err error) {
	path, err := d.path.Document(docID)
	if err != nil {
		return "", err
	}
	opts := &chttp.Options{
		GetBody: chttp.BodyEncoder(content),
	}
	var resp writeResponse
	if err := d.client.conn.DoJSON(ctx, http.MethodPut, path.String(), opts, &resp); err != nil {
		return "", err
	}
	return resp.Rev, nil
}

// GetOption modifies a read action.
type GetOption func(*getOpts)

type getOpts struct {
	rev         string
	attachments bool
}

// Rev requests a specific historical revision of the resource, rather than
// the current one.
func Rev(rev string) GetOption {
	return func(o *getOpts) {
		o.rev = rev
	}
}

// WithAttachments requests inline attachment content. By default the server
// sends content-free stubs for all attachments.
func WithAttachments() GetOption {
	return func(o *getOpts) {
		o.attachments = true
	}
}

// Get reads a document. The returned document includes attachment stubs, or
// inline attachment content when [WithAttachments] is given.
func (d *Database) Get(ctx context.Context, docID string, options ...GetOption) (*Document, error) {
	path, err := d.path.Document(docID)
	if err != nil {
		return nil, err
	}
	var o getOpts
	for _, opt := range options {
		opt(&o)
	}
	query := url.Values{}
	if o.rev != "" {
		query.Set("rev", o.rev)
	}
	if o.attachments {
		query.Set("attachments", "true")
	}
	doc := new(Document)
	if err := d.client.conn.DoJSON(ctx, http.MethodGet, path.String(), &chttp.Options{Query: query}, doc); err != nil {
		return nil, err
	}
	if doc.ID == "" {
		doc.ID = docID
	}
	return doc, nil
}

// Put updates a document. rev must be the document's current revision token;
// a stale token yields a conflict (optimistic concurrency), and a missing
// document yields not-found. The new revision token is returned.
func (d *Database) Put(ctx context.Context, docID, rev string, content interface{}) (newRev string, err error) {
	path, err := d.path.Document(docID)
	if err != nil {
		return "", err
	}
	if rev == "" {
		return "", missingArg("rev")
	}
	opts := &chttp.Options{
		GetBody: chttp.BodyEncoder(content),
		Query:   url.Values{"rev": []string{rev}},
	}
	var resp writeResponse
	if err := d.client.conn.DoJSON(ctx, http.MethodPut, path.String(), opts, &resp); err != nil {
		return "", err
	}
	return resp.Rev, nil
}

// Delete deletes a document. The concurrency semantics match [Database.Put].
// The revision token of the tombstone is returned.
func (d *Database) Delete(ctx context.Context, docID, rev string) (newRev string, err error) {
	path, err := d.path.Document(docID)
	if err != nil {
		return "", err
	}
	if rev == "" {
		return "", missingArg("rev")
	}
	opts := &chttp.Options{
		Query: url.Values{"rev": []string{rev}},
	}
	var resp writeResponse
	if err := d.client.conn.DoJSON(ctx, http.MethodDelete, path.String(), opts, &resp); err != nil {
		return "", err
	}
	return resp.Rev, nil
}

// GetAttachment reads an attachment's content and metadata.
func (d *Database) GetAttachment(ctx context.Context, docID, filename string, options ...GetOption) (*Attachment, error) {
	path, err := d.attachmentPath(docID, filename)
	if err != nil {
		return nil, err
	}
	var o getOpts
	for _, opt := range options {
		opt(&o)
	}
	query := url.Values{}
	if o.rev != "" {
		query.Set("rev", o.rev)
	}
	opts := &chttp.Options{
		Accept: "*/*",
		Query:  query,
	}
	resp, err := d.client.conn.DoReq(ctx, http.MethodGet, path.String(), opts)
	if err != nil {
		return nil, err
	}
	defer chttp.CloseBody(resp.Body)
	if err := chttp.ResponseError(resp); err != nil {
		return nil, err
	}
	return decodeAttachment(resp)
}

func decodeAttachment(resp *http.Response) (*Attachment, error) {
	cType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, &internal.DecodeError{Err: err}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &internal.TransportError{Err: err}
	}
	att := &Attachment{
		ContentType: cType,
		Length:      int64(len(data)),
		Data:        data,
	}
	if etag, ok := chttp.ETag(resp); ok {
		att.Digest = etag
	}
	return att, nil
}

// PutAttachment uploads an attachment to a document. rev must be the
// document's current revision token. The document's new revision token is
// returned.
func (d *Database) PutAttachment(ctx context.Context, docID, rev, filename string, att *Attachment) (newRev string, err error) {
	path, err := d.attachmentPath(docID, filename)
	if err != nil {
		return "", err
	}
	if rev == "" {
		return "", missingArg("rev")
	}
	if att == nil {
		return "", missingArg("att")
	}
	opts := &chttp.Options{
		Body:        io.NopCloser(bytes.NewReader(att.Data)),
		ContentType: att.ContentType,
		Query:       url.Values{"rev": []string{rev}},
	}
	if opts.ContentType == "" {
		opts.ContentType = "application/octet-stream"
	}
	var resp writeResponse
	if err := d.client.conn.DoJSON(ctx, http.MethodPut, path.String(), opts, &resp); err != nil {
		return "", err
	}
	return resp.Rev, nil
}

// DeleteAttachment removes an attachment from a document. rev must be the
// document's current revision token. The document's new revision token is
// returned.
func (d *Database) DeleteAttachment(ctx context.Context, docID, rev, filename string) (newRev string, err error) {
	path, err := d.attachmentPath(docID, filename)
	if err != nil {
		return "", err
	}
	if rev == "" {
		return "", missingArg("rev")
	}
	opts := &chttp.Options{
		Query: url.Values{"rev": []string{rev}},
	}
	var resp writeResponse
	if err := d.client.conn.DoJSON(ctx, http.MethodDelete, path.String(), opts, &resp); err != nil {
		return "", err
	}
	return resp.Rev, nil
}

func (d *Database) attachmentPath(docID, filename string) (AttachmentPath, error) {
	docPath, err := d.path.Document(docID)
	if err != nil {
		return AttachmentPath{}, err
	}
	return docPath.Attachment(filename)
}

// designPath renders the view execution path for a design document view.
func (d *Database) designPath(ddoc, view string) (string, error) {
	path, err := d.path.View(strings.TrimPrefix(ddoc, "_design/"), view)
	if err != nil {
		return "", err
	}
	return path.String(), nil
}
