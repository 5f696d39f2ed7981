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
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chill/chill/chttp"
	internal "github.com/go-chill/chill/int/errors"
)

// Paths are immutable value types identifying server resources. Each segment
// is percent-encoded exactly once, at render time, so names may contain any
// character, including '/'. Two paths are equal if and only if their rendered
// forms are equal.

// DatabasePath identifies a database on the server.
type DatabasePath struct {
	db string
}

// DocumentPath identifies a document within a database.
type DocumentPath struct {
	db    string
	docID string
}

// AttachmentPath identifies a named attachment on a document.
type AttachmentPath struct {
	db    string
	docID string
	name  string
}

// ViewPath identifies a view within a design document.
type ViewPath struct {
	db   string
	ddoc string
	view string
}

// NewDatabasePath returns a path for the named database.
func NewDatabasePath(name string) (DatabasePath, error) {
	if name == "" {
		return DatabasePath{}, missingArg("database name")
	}
	return DatabasePath{db: name}, nil
}

// Name returns the database name.
func (p DatabasePath) Name() string {
	return p.db
}

// String renders the path in wire form.
func (p DatabasePath) String() string {
	return "/" + escapeSegment(p.db)
}

// Document derives a document path within this database.
func (p DatabasePath) Document(docID string) (DocumentPath, error) {
	if docID == "" {
		return DocumentPath{}, missingArg("docID")
	}
	for _, prefix := range []string{"_design/", "_local/"} {
		if strings.TrimPrefix(docID, prefix) == "" && strings.HasPrefix(docID, prefix) {
			return DocumentPath{}, &internal.Error{
				Status: http.StatusBadRequest,
				Err:    fmt.Errorf("chill: %q is not a valid document ID", docID),
			}
		}
	}
	return DocumentPath{db: p.db, docID: docID}, nil
}

// View derives a view path within this database. The design document name is
// given without its "_design/" prefix; a prefixed name is accepted and
// normalized.
func (p DatabasePath) View(ddoc, view string) (ViewPath, error) {
	ddoc = strings.TrimPrefix(ddoc, "_design/")
	if ddoc == "" {
		return ViewPath{}, missingArg("ddoc")
	}
	if view == "" {
		return ViewPath{}, missingArg("view")
	}
	return ViewPath{db: p.db, ddoc: ddoc, view: view}, nil
}

// Database returns the path of the containing database.
func (p DocumentPath) Database() DatabasePath {
	return DatabasePath{db: p.db}
}

// DocID returns the document ID.
func (p DocumentPath) DocID() string {
	return p.docID
}

// String renders the path in wire form. Design and local document IDs keep
// their "_design/" or "_local/" segment prefix.
func (p DocumentPath) String() string {
	return "/" + escapeSegment(p.db) + "/" + chttp.EncodeDocID(p.docID)
}

// Attachment derives an attachment path on this document.
func (p DocumentPath) Attachment(name string) (AttachmentPath, error) {
	if name == "" {
		return AttachmentPath{}, missingArg("attachment name")
	}
	return AttachmentPath{db: p.db, docID: p.docID, name: name}, nil
}

// Document returns the path of the containing document.
func (p AttachmentPath) Document() DocumentPath {
	return DocumentPath{db: p.db, docID: p.docID}
}

// Name returns the attachment name.
func (p AttachmentPath) Name() string {
	return p.name
}

// String renders the path in wire form.
func (p AttachmentPath) String() string {
	return p.Document().String() + "/" + escapeSegment(p.name)
}

// Database returns the path of the containing database.
func (p ViewPath) Database() DatabasePath {
	return DatabasePath{db: p.db}
}

// DesignDocument returns the path of the design document defining the view.
func (p ViewPath) DesignDocument() DocumentPath {
	return DocumentPath{db: p.db, docID: "_design/" + p.ddoc}
}

// ViewName returns the view name.
func (p ViewPath) ViewName() string {
	return p.view
}

// String renders the path in wire form.
func (p ViewPath) String() string {
	return "/" + escapeSegment(p.db) +
		"/_design/" + escapeSegment(p.ddoc) +
		"/_view/" + escapeSegment(p.view)
}

// escapeSegment percent-encodes a single path segment, using the same rules
// as document IDs: query escaping, with spaces as %20.
func escapeSegment(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// splitPath splits a rendered path into decoded segments.
func splitPath(path string) ([]string, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, pathParseError(path, "no leading slash")
	}
	raw := strings.Split(strings.TrimPrefix(path, "/"), "/")
	segments := make([]string, 0, len(raw))
	for _, seg := range raw {
		if seg == "" {
			return nil, pathParseError(path, "empty path segment")
		}
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return nil, pathParseError(path, err.Error())
		}
		segments = append(segments, decoded)
	}
	return segments, nil
}

func pathParseError(path, reason string) error {
	return &internal.Error{
		Status: http.StatusBadRequest,
		Err:    fmt.Errorf("chill: invalid path %q: %s", path, reason),
	}
}

// ParseDatabasePath parses a rendered database path of the form "/db".
func ParseDatabasePath(path string) (DatabasePath, error) {
	segments, err := splitPath(path)
	if err != nil {
		return DatabasePath{}, err
	}
	if len(segments) != 1 {
		return DatabasePath{}, pathParseError(path, "expected 1 segment")
	}
	return DatabasePath{db: segments[0]}, nil
}

// ParseDocumentPath parses a rendered document path of the form "/db/docid",
// "/db/_design/name", or "/db/_local/name".
func ParseDocumentPath(path string) (DocumentPath, error) {
	segments, err := splitPath(path)
	if err != nil {
		return DocumentPath{}, err
	}
	db, docID, rest, err := parseDocSegments(path, segments)
	if err != nil {
		return DocumentPath{}, err
	}
	if len(rest) != 0 {
		return DocumentPath{}, pathParseError(path, "too many segments")
	}
	return DocumentPath{db: db, docID: docID}, nil
}

// ParseAttachmentPath parses a rendered attachment path of the form
// "/db/docid/name".
func ParseAttachmentPath(path string) (AttachmentPath, error) {
	segments, err := splitPath(path)
	if err != nil {
		return AttachmentPath{}, err
	}
	db, docID, rest, err := parseDocSegments(path, segments)
	if err != nil {
		return AttachmentPath{}, err
	}
	if len(rest) != 1 {
		return AttachmentPath{}, pathParseError(path, "expected attachment name")
	}
	return AttachmentPath{db: db, docID: docID, name: rest[0]}, nil
}

// ParseViewPath parses a rendered view path of the form
// "/db/_design/ddoc/_view/view".
func ParseViewPath(path string) (ViewPath, error) {
	segments, err := splitPath(path)
	if err != nil {
		return ViewPath{}, err
	}
	if len(segments) != 5 || segments[1] != "_design" || segments[3] != "_view" {
		return ViewPath{}, pathParseError(path, "expected /db/_design/ddoc/_view/view")
	}
	return ViewPath{db: segments[0], ddoc: segments[2], view: segments[4]}, nil
}

// parseDocSegments consumes the database and document-ID segments, honoring
// the "_design" and "_local" segment prefixes, and returns any remainder.
func parseDocSegments(path string, segments []string) (db, docID string, rest []string, err error) {
	if len(segments) < 2 {
		return "", "", nil, pathParseError(path, "too few segments")
	}
	db = segments[0]
	switch segments[1] {
	case "_design", "_local":
		if len(segments) < 3 {
			return "", "", nil, pathParseError(path, "missing document name")
		}
		docID = segments[1] + "/" + segments[2]
		rest = segments[3:]
	default:
		docID = segments[1]
		rest = segments[2:]
	}
	return db, docID, rest, nil
}
