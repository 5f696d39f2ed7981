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
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gitlab.com/flimzy/testy"
)

func TestDocumentUnmarshalJSON(t *testing.T) {
	type tt struct {
		input    string
		expected *Document
		err      string
	}

	tests := testy.NewTable()
	tests.Add("metadata split from content", tt{
		input: `{"_id":"cow","_rev":"1-abc","feet":4,"greeting":"moo"}`,
		expected: &Document{
			ID:      "cow",
			Rev:     "1-abc",
			Content: json.RawMessage(`{"feet":4,"greeting":"moo"}`),
		},
	})
	tests.Add("no metadata", tt{
		input: `{"feet":4}`,
		expected: &Document{
			Content: json.RawMessage(`{"feet":4}`),
		},
	})
	tests.Add("deleted", tt{
		input: `{"_id":"cow","_rev":"2-def","_deleted":true}`,
		expected: &Document{
			ID:      "cow",
			Rev:     "2-def",
			Deleted: true,
			Content: json.RawMessage(`{}`),
		},
	})
	tests.Add("attachment stub", tt{
		input: `{"_id":"cow","_rev":"1-abc","_attachments":{"photo.jpg":{"content_type":"image/jpeg","length":12,"digest":"md5-xyz","revpos":1,"stub":true}}}`,
		expected: &Document{
			ID:  "cow",
			Rev: "1-abc",
			Attachments: map[string]*Attachment{
				"photo.jpg": {
					ContentType: "image/jpeg",
					Length:      12,
					Digest:      "md5-xyz",
					RevPos:      1,
					Stub:        true,
				},
			},
			Content: json.RawMessage(`{}`),
		},
	})
	tests.Add("inline attachment", tt{
		input: `{"_attachments":{"note.txt":{"content_type":"text/plain","data":"bW9v"}}}`,
		expected: &Document{
			Attachments: map[string]*Attachment{
				"note.txt": {
					ContentType: "text/plain",
					Length:      3,
					Data:        []byte("moo"),
				},
			},
			Content: json.RawMessage(`{}`),
		},
	})
	tests.Add("not an object", tt{
		input: `[1,2,3]`,
		err:   "json: cannot unmarshal array into Go value of type map[string]json.RawMessage",
	})

	tests.Run(t, func(t *testing.T, tt tt) {
		doc := new(Document)
		err := json.Unmarshal([]byte(tt.input), doc)
		testy.Error(t, tt.err, err)
		if d := cmp.Diff(tt.expected, doc); d != "" {
			t.Error(d)
		}
	})
}

func TestDocumentMarshalJSON(t *testing.T) {
	type tt struct {
		doc      *Document
		expected string
	}

	tests := testy.NewTable()
	tests.Add("new document omits rev", tt{
		doc: &Document{
			ID:      "cow",
			Content: json.RawMessage(`{"feet":4}`),
		},
		expected: `{"_id":"cow","feet":4}`,
	})
	tests.Add("full metadata", tt{
		doc: &Document{
			ID:      "cow",
			Rev:     "1-abc",
			Content: json.RawMessage(`{"feet":4}`),
		},
		expected: `{"_id":"cow","_rev":"1-abc","feet":4}`,
	})
	tests.Add("no content", tt{
		doc: &Document{
			ID: "cow",
		},
		expected: `{"_id":"cow"}`,
	})
	tests.Add("deleted", tt{
		doc: &Document{
			ID:      "cow",
			Rev:     "2-def",
			Deleted: true,
		},
		expected: `{"_deleted":true,"_id":"cow","_rev":"2-def"}`,
	})
	tests.Add("inline attachment", tt{
		doc: &Document{
			Attachments: map[string]*Attachment{
				"note.txt": {
					ContentType: "text/plain",
					Data:        []byte("moo"),
				},
			},
		},
		expected: `{"_attachments":{"note.txt":{"content_type":"text/plain","data":"bW9v"}}}`,
	})
	tests.Add("attachment stub", tt{
		doc: &Document{
			Attachments: map[string]*Attachment{
				"photo.jpg": {
					ContentType: "image/jpeg",
					Length:      12,
					Stub:        true,
				},
			},
		},
		expected: `{"_attachments":{"photo.jpg":{"content_type":"image/jpeg","length":12,"stub":true}}}`,
	})

	tests.Run(t, func(t *testing.T, tt tt) {
		result, err := json.Marshal(tt.doc)
		if err != nil {
			t.Fatal(err)
		}
		if string(result) != tt.expected {
			t.Errorf("Unexpected result: %s", string(result))
		}
	})
}

func TestDocumentRoundTrip(t *testing.T) {
	input := `{"_id":"cow","_rev":"3-xyz","feet":4,"greeting":"moo"}`
	doc := new(Document)
	if err := json.Unmarshal([]byte(input), doc); err != nil {
		t.Fatal(err)
	}
	output, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if string(output) != input {
		t.Errorf("Document did not round-trip:\nExpected: %s\n  Actual: %s", input, string(output))
	}
}

func TestScanContent(t *testing.T) {
	type animal struct {
		Feet     int    `json:"feet"`
		Greeting string `json:"greeting"`
	}

	t.Run("success", func(t *testing.T) {
		doc := &Document{Content: json.RawMessage(`{"feet":4,"greeting":"moo"}`)}
		var a animal
		if err := doc.ScanContent(&a); err != nil {
			t.Fatal(err)
		}
		if a.Feet != 4 || a.Greeting != "moo" {
			t.Errorf("Unexpected result: %+v", a)
		}
	})
	t.Run("no content", func(t *testing.T) {
		doc := &Document{}
		var a animal
		err := doc.ScanContent(&a)
		if !IsDecodeError(err) {
			t.Errorf("Expected a decode error, got %v", err)
		}
	})
	t.Run("type mismatch", func(t *testing.T) {
		doc := &Document{Content: json.RawMessage(`{"feet":"four"}`)}
		var a animal
		err := doc.ScanContent(&a)
		if !IsDecodeError(err) {
			t.Errorf("Expected a decode error, got %v", err)
		}
	})
}
