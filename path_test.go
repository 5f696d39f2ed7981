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
	"net/http"
	"testing"

	"gitlab.com/flimzy/testy"
)

func mustDBPath(t *testing.T, name string) DatabasePath {
	t.Helper()
	path, err := NewDatabasePath(name)
	if err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDatabasePathString(t *testing.T) {
	type tt struct {
		name     string
		expected string
		status   int
		err      string
	}

	tests := testy.NewTable()
	tests.Add("simple", tt{
		name:     "mydb",
		expected: "/mydb",
	})
	tests.Add("slash in name", tt{
		name:     "my/db",
		expected: "/my%2Fdb",
	})
	tests.Add("space in name", tt{
		name:     "my db",
		expected: "/my%20db",
	})
	tests.Add("empty name", tt{
		name:   "",
		status: http.StatusBadRequest,
		err:    "chill: database name required",
	})

	tests.Run(t, func(t *testing.T, tt tt) {
		path, err := NewDatabasePath(tt.name)
		testy.StatusError(t, tt.err, tt.status, err)
		if result := path.String(); result != tt.expected {
			t.Errorf("Unexpected path: %s", result)
		}
	})
}

func TestDocumentPathString(t *testing.T) {
	type tt struct {
		db       string
		docID    string
		expected string
		status   int
		err      string
	}

	tests := testy.NewTable()
	tests.Add("simple", tt{
		db:       "mydb",
		docID:    "mydoc",
		expected: "/mydb/mydoc",
	})
	tests.Add("slash in docID", tt{
		db:       "mydb",
		docID:    "foo/bar",
		expected: "/mydb/foo%2Fbar",
	})
	tests.Add("design doc", tt{
		db:       "mydb",
		docID:    "_design/users",
		expected: "/mydb/_design/users",
	})
	tests.Add("local doc", tt{
		db:       "mydb",
		docID:    "_local/state",
		expected: "/mydb/_local/state",
	})
	tests.Add("design doc with slash in name", tt{
		db:       "mydb",
		docID:    "_design/a/b",
		expected: "/mydb/_design/a%2Fb",
	})
	tests.Add("space in docID", tt{
		db:       "mydb",
		docID:    "my doc",
		expected: "/mydb/my%20doc",
	})
	tests.Add("empty docID", tt{
		db:     "mydb",
		docID:  "",
		status: http.StatusBadRequest,
		err:    "chill: docID required",
	})
	tests.Add("bare design prefix", tt{
		db:     "mydb",
		docID:  "_design/",
		status: http.StatusBadRequest,
		err:    `chill: "_design/" is not a valid document ID`,
	})
	tests.Add("bare local prefix", tt{
		db:     "mydb",
		docID:  "_local/",
		status: http.StatusBadRequest,
		err:    `chill: "_local/" is not a valid document ID`,
	})

	tests.Run(t, func(t *testing.T, tt tt) {
		path, err := mustDBPath(t, tt.db).Document(tt.docID)
		testy.StatusError(t, tt.err, tt.status, err)
		if result := path.String(); result != tt.expected {
			t.Errorf("Unexpected path: %s", result)
		}
	})
}

func TestAttachmentPathString(t *testing.T) {
	type tt struct {
		docID    string
		filename string
		expected string
		status   int
		err      string
	}

	tests := testy.NewTable()
	tests.Add("simple", tt{
		docID:    "mydoc",
		filename: "photo.jpg",
		expected: "/mydb/mydoc/photo.jpg",
	})
	tests.Add("slash in filename", tt{
		docID:    "mydoc",
		filename: "img/photo.jpg",
		expected: "/mydb/mydoc/img%2Fphoto.jpg",
	})
	tests.Add("design doc attachment", tt{
		docID:    "_design/users",
		filename: "logo.png",
		expected: "/mydb/_design/users/logo.png",
	})
	tests.Add("empty filename", tt{
		docID:    "mydoc",
		filename: "",
		status:   http.StatusBadRequest,
		err:      "chill: attachment name required",
	})

	tests.Run(t, func(t *testing.T, tt tt) {
		docPath, err := mustDBPath(t, "mydb").Document(tt.docID)
		if err != nil {
			t.Fatal(err)
		}
		path, err := docPath.Attachment(tt.filename)
		testy.StatusError(t, tt.err, tt.status, err)
		if result := path.String(); result != tt.expected {
			t.Errorf("Unexpected path: %s", result)
		}
	})
}

func TestViewPathString(t *testing.T) {
	type tt struct {
		ddoc     string
		view     string
		expected string
		status   int
		err      string
	}

	tests := testy.NewTable()
	tests.Add("simple", tt{
		ddoc:     "users",
		view:     "by_email",
		expected: "/mydb/_design/users/_view/by_email",
	})
	tests.Add("prefixed ddoc normalized", tt{
		ddoc:     "_design/users",
		view:     "by_email",
		expected: "/mydb/_design/users/_view/by_email",
	})
	tests.Add("space in view name", tt{
		ddoc:     "users",
		view:     "by email",
		expected: "/mydb/_design/users/_view/by%20email",
	})
	tests.Add("empty ddoc", tt{
		ddoc:   "",
		view:   "by_email",
		status: http.StatusBadRequest,
		err:    "chill: ddoc required",
	})
	tests.Add("empty view", tt{
		ddoc:   "users",
		view:   "",
		status: http.StatusBadRequest,
		err:    "chill: view required",
	})

	tests.Run(t, func(t *testing.T, tt tt) {
		path, err := mustDBPath(t, "mydb").View(tt.ddoc, tt.view)
		testy.StatusError(t, tt.err, tt.status, err)
		if result := path.String(); result != tt.expected {
			t.Errorf("Unexpected path: %s", result)
		}
	})
}

// Rendering a path and parsing it back must yield the original, for names
// containing characters that require escaping.
func TestPathRoundTrip(t *testing.T) {
	awkward := []string{"plain", "with space", "with/slash", "pct%20literal", "ünïcode", "a+b&c?d"}

	for _, db := range awkward {
		for _, docID := range awkward {
			dbPath := mustDBPath(t, db)
			docPath, err := dbPath.Document(docID)
			if err != nil {
				t.Fatal(err)
			}

			parsedDB, err := ParseDatabasePath(dbPath.String())
			if err != nil {
				t.Fatalf("ParseDatabasePath(%q): %s", dbPath.String(), err)
			}
			if parsedDB != dbPath {
				t.Errorf("Database path did not round-trip: %q", dbPath.String())
			}

			parsedDoc, err := ParseDocumentPath(docPath.String())
			if err != nil {
				t.Fatalf("ParseDocumentPath(%q): %s", docPath.String(), err)
			}
			if parsedDoc != docPath {
				t.Errorf("Document path did not round-trip: %q", docPath.String())
			}

			attPath, err := docPath.Attachment("att name/x")
			if err != nil {
				t.Fatal(err)
			}
			parsedAtt, err := ParseAttachmentPath(attPath.String())
			if err != nil {
				t.Fatalf("ParseAttachmentPath(%q): %s", attPath.String(), err)
			}
			if parsedAtt != attPath {
				t.Errorf("Attachment path did not round-trip: %q", attPath.String())
			}
		}
	}
}

func TestViewPathRoundTrip(t *testing.T) {
	path, err := mustDBPath(t, "my db").View("usérs", "by email")
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseViewPath(path.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != path {
		t.Errorf("View path did not round-trip: %q", path.String())
	}
}

func TestDesignDocRoundTrip(t *testing.T) {
	for _, docID := range []string{"_design/users", "_local/state", "_design/a/b"} {
		path, err := mustDBPath(t, "mydb").Document(docID)
		if err != nil {
			t.Fatal(err)
		}
		parsed, err := ParseDocumentPath(path.String())
		if err != nil {
			t.Fatalf("ParseDocumentPath(%q): %s", path.String(), err)
		}
		if parsed.DocID() != docID {
			t.Errorf("DocID did not round-trip: %q became %q", docID, parsed.DocID())
		}
	}
}

// Two paths are equal exactly when their rendered forms are equal.
func TestPathEquality(t *testing.T) {
	a, _ := mustDBPath(t, "mydb").Document("foo")
	b, _ := mustDBPath(t, "mydb").Document("foo")
	c, _ := mustDBPath(t, "mydb").Document("bar")

	if a != b {
		t.Error("Identical paths not equal")
	}
	if a.String() != b.String() {
		t.Error("Identical paths render differently")
	}
	if a == c {
		t.Error("Distinct paths compare equal")
	}
	if a.String() == c.String() {
		t.Error("Distinct paths render identically")
	}
}

func TestParseErrors(t *testing.T) {
	type tt struct {
		parse  func(string) error
		path   string
		status int
		err    string
	}

	parseDB := func(p string) error { _, err := ParseDatabasePath(p); return err }
	parseDoc := func(p string) error { _, err := ParseDocumentPath(p); return err }
	parseAtt := func(p string) error { _, err := ParseAttachmentPath(p); return err }
	parseView := func(p string) error { _, err := ParseViewPath(p); return err }

	tests := testy.NewTable()
	tests.Add("no leading slash", tt{
		parse:  parseDB,
		path:   "mydb",
		status: http.StatusBadRequest,
		err:    `chill: invalid path "mydb": no leading slash`,
	})
	tests.Add("empty segment", tt{
		parse:  parseDoc,
		path:   "/mydb//foo",
		status: http.StatusBadRequest,
		err:    `chill: invalid path "/mydb//foo": empty path segment`,
	})
	tests.Add("db path with extra segment", tt{
		parse:  parseDB,
		path:   "/mydb/doc",
		status: http.StatusBadRequest,
		err:    `chill: invalid path "/mydb/doc": expected 1 segment`,
	})
	tests.Add("doc path too long", tt{
		parse:  parseDoc,
		path:   "/mydb/doc/att",
		status: http.StatusBadRequest,
		err:    `chill: invalid path "/mydb/doc/att": too many segments`,
	})
	tests.Add("doc path too short", tt{
		parse:  parseDoc,
		path:   "/mydb",
		status: http.StatusBadRequest,
		err:    `chill: invalid path "/mydb": too few segments`,
	})
	tests.Add("truncated design doc", tt{
		parse:  parseDoc,
		path:   "/mydb/_design",
		status: http.StatusBadRequest,
		err:    `chill: invalid path "/mydb/_design": missing document name`,
	})
	tests.Add("attachment path without name", tt{
		parse:  parseAtt,
		path:   "/mydb/doc",
		status: http.StatusBadRequest,
		err:    `chill: invalid path "/mydb/doc": expected attachment name`,
	})
	tests.Add("view path malformed", tt{
		parse:  parseView,
		path:   "/mydb/users/_view/by_email",
		status: http.StatusBadRequest,
		err:    `chill: invalid path "/mydb/users/_view/by_email": expected /db/_design/ddoc/_view/view`,
	})
	tests.Add("invalid percent escape", tt{
		parse:  parseDB,
		path:   "/my%zzdb",
		status: http.StatusBadRequest,
		err:    `chill: invalid path "/my%zzdb": invalid URL escape "%zz"`,
	})

	tests.Run(t, func(t *testing.T, tt tt) {
		err := tt.parse(tt.path)
		testy.StatusError(t, tt.err, tt.status, err)
	})
}
