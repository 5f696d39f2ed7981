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
	"sort"

	internal "github.com/go-chill/chill/int/errors"
)

// Document represents a single database document: its identity, an opaque
// revision token, arbitrary JSON content, and attachment metadata.
//
// The revision token is server-assigned and has no client-visible structure;
// chill never parses it, and compares tokens only for equality. A document
// destined for creation carries an empty Rev.
type Document struct {
	// ID is the document ID.
	ID string

	// Rev is the opaque revision token. Required for update and delete,
	// empty for create.
	Rev string

	// Content is the document body, without the underscore-prefixed
	// metadata fields.
	Content json.RawMessage

	// Attachments holds attachment metadata by name: stubs after a plain
	// read, inline data when requested.
	Attachments map[string]*Attachment

	// Deleted is true when this revision is a tombstone.
	Deleted bool
}

// ScanContent unmarshals the document content into dest.
func (d *Document) ScanContent(dest interface{}) error {
	if len(d.Content) == 0 {
		return &internal.DecodeError{Err: errNoContent}
	}
	if err := json.Unmarshal(d.Content, dest); err != nil {
		return &internal.DecodeError{Err: err}
	}
	return nil
}

var errNoContent = jsonError("document has no content")

type jsonError string

func (e jsonError) Error() string { return string(e) }

// document metadata fields handled outside Content
const (
	fieldID          = "_id"
	fieldRev         = "_rev"
	fieldAttachments = "_attachments"
	fieldDeleted     = "_deleted"
)

// UnmarshalJSON populates the document from a CouchDB document body,
// splitting the metadata fields from the content.
func (d *Document) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields[fieldID]; ok {
		if err := json.Unmarshal(raw, &d.ID); err != nil {
			return err
		}
		delete(fields, fieldID)
	}
	if raw, ok := fields[fieldRev]; ok {
		if err := json.Unmarshal(raw, &d.Rev); err != nil {
			return err
		}
		delete(fields, fieldRev)
	}
	if raw, ok := fields[fieldAttachments]; ok {
		if err := json.Unmarshal(raw, &d.Attachments); err != nil {
			return err
		}
		delete(fields, fieldAttachments)
	}
	if raw, ok := fields[fieldDeleted]; ok {
		if err := json.Unmarshal(raw, &d.Deleted); err != nil {
			return err
		}
		delete(fields, fieldDeleted)
	}
	content, err := marshalOrdered(fields)
	if err != nil {
		return err
	}
	d.Content = content
	return nil
}

// MarshalJSON renders the document as a CouchDB document body, merging the
// metadata fields into the content object. Empty metadata is omitted, so a
// new document (no Rev) marshals without a "_rev" key.
func (d *Document) MarshalJSON() ([]byte, error) {
	var fields map[string]json.RawMessage
	if len(d.Content) > 0 {
		if err := json.Unmarshal(d.Content, &fields); err != nil {
			return nil, err
		}
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}
	if d.ID != "" {
		raw, _ := json.Marshal(d.ID)
		fields[fieldID] = raw
	}
	if d.Rev != "" {
		raw, _ := json.Marshal(d.Rev)
		fields[fieldRev] = raw
	}
	if len(d.Attachments) > 0 {
		raw, err := json.Marshal(d.Attachments)
		if err != nil {
			return nil, err
		}
		fields[fieldAttachments] = raw
	}
	if d.Deleted {
		fields[fieldDeleted] = json.RawMessage("true")
	}
	return marshalOrdered(fields)
}

// marshalOrdered marshals a field map with deterministic key order.
func marshalOrdered(fields map[string]json.RawMessage) (json.RawMessage, error) {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	buf := []byte{'{'}
	for i, key := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		name, _ := json.Marshal(key)
		buf = append(buf, name...)
		buf = append(buf, ':')
		buf = append(buf, fields[key]...)
	}
	return append(buf, '}'), nil
}

// Attachment holds the metadata and, optionally, the content of a document
// attachment. A Stub attachment describes server-held data without carrying
// it; an inline attachment carries the data itself.
type Attachment struct {
	// ContentType is the attachment's MIME type.
	ContentType string

	// Length is the attachment size in bytes.
	Length int64

	// Digest is the server-computed content digest, when known.
	Digest string

	// RevPos is the revision sequence at which the attachment was added,
	// when known.
	RevPos int64

	// Stub is true when Data is not populated and the content remains on
	// the server.
	Stub bool

	// Data is the inline attachment content. Transmitted base64-encoded.
	Data []byte
}

type attachmentJSON struct {
	ContentType string `json:"content_type"`
	Length      int64  `json:"length,omitempty"`
	Digest      string `json:"digest,omitempty"`
	RevPos      int64  `json:"revpos,omitempty"`
	Stub        bool   `json:"stub,omitempty"`
	Data        []byte `json:"data,omitempty"`
}

// MarshalJSON renders the attachment in CouchDB wire form: a stub reference,
// or inline base64 data.
func (a *Attachment) MarshalJSON() ([]byte, error) {
	att := attachmentJSON{
		ContentType: a.ContentType,
		Digest:      a.Digest,
		RevPos:      a.RevPos,
	}
	if a.Stub {
		att.Stub = true
		att.Length = a.Length
	} else {
		att.Data = a.Data
	}
	return json.Marshal(att)
}

// UnmarshalJSON populates the attachment from CouchDB wire form.
func (a *Attachment) UnmarshalJSON(data []byte) error {
	var att attachmentJSON
	if err := json.Unmarshal(data, &att); err != nil {
		return err
	}
	*a = Attachment{
		ContentType: att.ContentType,
		Length:      att.Length,
		Digest:      att.Digest,
		RevPos:      att.RevPos,
		Stub:        att.Stub,
		Data:        att.Data,
	}
	if !a.Stub && a.Length == 0 {
		a.Length = int64(len(a.Data))
	}
	return nil
}
