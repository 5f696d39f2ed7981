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
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chill/chill/chttp"
	internal "github.com/go-chill/chill/int/errors"
)

// ViewShape identifies the structural form of a view response. The shape is
// determined entirely by the request options, never by inspecting the
// response payload.
type ViewShape int

const (
	// ShapeUnreduced is a flat list of emitted rows in view order, with row
	// IDs and optional embedded documents.
	ShapeUnreduced ViewShape = iota
	// ShapeGrouped is one reduced row per distinct (prefix of a) key.
	ShapeGrouped
	// ShapeReduced is a single aggregate value over the entire selected
	// range.
	ShapeReduced
)

func (s ViewShape) String() string {
	switch s {
	case ShapeUnreduced:
		return "unreduced"
	case ShapeGrouped:
		return "grouped"
	case ShapeReduced:
		return "reduced"
	}
	return fmt.Sprintf("ViewShape(%d)", int(s))
}

// Bool returns a pointer to v, for use with [ViewOptions.Reduce].
func Bool(v bool) *bool {
	return &v
}

// ViewOptions control view execution. The zero value requests the full
// unreduced view in ascending key order.
type ViewOptions struct {
	// Key restricts the result to rows with exactly this key.
	Key interface{}
	// StartKey and EndKey restrict the result to the given key range,
	// inclusive on both ends unless EndKeyExclusive is set.
	StartKey interface{}
	EndKey   interface{}
	// EndKeyExclusive excludes rows whose key equals EndKey.
	EndKeyExclusive bool
	// Descending reverses the traversal order. The key range is interpreted
	// in traversal order, so StartKey must collate after EndKey when set.
	Descending bool
	// Limit caps the number of returned rows. Zero means no limit.
	Limit int64
	// Skip discards this many rows from the start of the range.
	Skip int64
	// Reduce explicitly enables or disables the view's reduce function.
	// When nil the result is treated as unreduced.
	Reduce *bool
	// Group requests one reduced row per distinct key.
	Group bool
	// GroupLevel requests one reduced row per distinct key prefix of the
	// given length, for array keys. Implies Group.
	GroupLevel uint
	// IncludeDocs embeds the full document in each unreduced row. Not
	// compatible with reduction or grouping.
	IncludeDocs bool
	// UpdateSeq asks the server to report the index's update sequence.
	UpdateSeq bool
}

// grouped reports whether the options request per-key reduction.
func (o *ViewOptions) grouped() bool {
	return o != nil && (o.Group || o.GroupLevel > 0)
}

// shape returns the response shape the options select.
func (o *ViewOptions) shape() ViewShape {
	switch {
	case o.grouped():
		return ShapeGrouped
	case o != nil && o.Reduce != nil && *o.Reduce:
		return ShapeReduced
	}
	return ShapeUnreduced
}

// validate rejects meaningless option combinations before any request is
// sent.
func (o *ViewOptions) validate() error {
	if o == nil {
		return nil
	}
	if o.Limit < 0 {
		return &internal.Error{Status: http.StatusBadRequest, Message: "chill: limit must be non-negative"}
	}
	if o.Skip < 0 {
		return &internal.Error{Status: http.StatusBadRequest, Message: "chill: skip must be non-negative"}
	}
	if o.grouped() && o.Reduce != nil && !*o.Reduce {
		return &internal.Error{Status: http.StatusBadRequest, Message: "chill: group requires reduce"}
	}
	if o.IncludeDocs && o.shape() != ShapeUnreduced {
		return &internal.Error{Status: http.StatusBadRequest, Message: "chill: include_docs cannot be combined with reduction"}
	}
	if o.Key != nil && (o.StartKey != nil || o.EndKey != nil) {
		return &internal.Error{Status: http.StatusBadRequest, Message: "chill: key cannot be combined with startkey or endkey"}
	}
	if o.EndKeyExclusive && o.EndKey == nil {
		return &internal.Error{Status: http.StatusBadRequest, Message: "chill: exclusive end requires endkey"}
	}
	return nil
}

// encodeKey renders a key option value as the JSON the server expects.
func encodeKey(i interface{}) (string, error) {
	raw, err := json.Marshal(i)
	if err != nil {
		return "", &internal.Error{Status: http.StatusBadRequest, Message: "chill: invalid key", Err: err}
	}
	return string(raw), nil
}

// query renders the options as URL query parameters. Keys are JSON-encoded.
func (o *ViewOptions) query() (url.Values, error) {
	query := url.Values{}
	if o == nil {
		return query, nil
	}
	for _, k := range []struct {
		param string
		value interface{}
	}{
		{"key", o.Key},
		{"startkey", o.StartKey},
		{"endkey", o.EndKey},
	} {
		if k.value == nil {
			continue
		}
		enc, err := encodeKey(k.value)
		if err != nil {
			return nil, err
		}
		query.Set(k.param, enc)
	}
	if o.EndKeyExclusive {
		query.Set("inclusive_end", "false")
	}
	if o.Descending {
		query.Set("descending", "true")
	}
	if o.Limit > 0 {
		query.Set("limit", strconv.FormatInt(o.Limit, 10))
	}
	if o.Skip > 0 {
		query.Set("skip", strconv.FormatInt(o.Skip, 10))
	}
	if o.Reduce != nil {
		query.Set("reduce", strconv.FormatBool(*o.Reduce))
	}
	if o.Group {
		query.Set("group", "true")
	}
	if o.GroupLevel > 0 {
		query.Set("group_level", strconv.FormatUint(uint64(o.GroupLevel), 10))
	}
	if o.IncludeDocs {
		query.Set("include_docs", "true")
	}
	if o.UpdateSeq {
		query.Set("update_seq", "true")
	}
	return query, nil
}

// ViewRow is a single row of a view result. For unreduced rows ID names the
// emitting document; grouped rows carry a key and an aggregate value only.
type ViewRow struct {
	// ID is the emitting document's ID. Empty for grouped rows.
	ID string
	// Key is the row's emitted (or grouped) key, as raw JSON.
	Key json.RawMessage
	// Value is the row's emitted or reduced value, as raw JSON.
	Value json.RawMessage
	// Doc is the embedded document, when include_docs was requested.
	Doc *Document
}

// ScanKey unmarshals the row's key into dest.
func (r *ViewRow) ScanKey(dest interface{}) error {
	return scanRaw(r.Key, dest)
}

// ScanValue unmarshals the row's value into dest.
func (r *ViewRow) ScanValue(dest interface{}) error {
	return scanRaw(r.Value, dest)
}

func scanRaw(raw json.RawMessage, dest interface{}) error {
	if raw == nil {
		raw = json.RawMessage("null")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return &internal.DecodeError{Err: err}
	}
	return nil
}

// ViewResult is a fully materialized view response, normalized according to
// the shape the request options selected.
type ViewResult struct {
	// Shape is the structural form of the result.
	Shape ViewShape
	// TotalRows is the total number of rows in the unreduced view, before
	// range and limit restrictions. -1 when the server did not report it.
	TotalRows int64
	// Offset is the index of the first returned row within the full view.
	// -1 when the server did not report it.
	Offset int64
	// Rows holds the result rows in server order. Empty for reduced
	// results.
	Rows []ViewRow
	// Value is the single aggregate value of a reduced result, as raw
	// JSON. Nil for other shapes.
	Value json.RawMessage

	updateSeq string
}

// UpdateSeq returns the index's update sequence, when requested with
// [ViewOptions.UpdateSeq], and whether the server reported one.
func (r *ViewResult) UpdateSeq() (string, bool) {
	return r.updateSeq, r.updateSeq != ""
}

// ScanValue unmarshals a reduced result's aggregate value into dest.
func (r *ViewResult) ScanValue(dest interface{}) error {
	if r.Shape != ShapeReduced {
		return &internal.Error{Status: http.StatusBadRequest, Message: "chill: result is not reduced"}
	}
	return scanRaw(r.Value, dest)
}

// viewResponse is the wire form of a view response.
type viewResponse struct {
	TotalRows *int64          `json:"total_rows"`
	Offset    *int64          `json:"offset"`
	UpdateSeq jsonSeq         `json:"update_seq"`
	Rows      *[]viewRow      `json:"rows"`
	Error     string          `json:"error"`
	Reason    json.RawMessage `json:"reason"`
}

type viewRow struct {
	ID    string          `json:"id"`
	Key   json.RawMessage `json:"key"`
	Value json.RawMessage `json:"value"`
	Doc   *Document       `json:"doc"`
	Error string          `json:"error"`
}

// jsonSeq tolerates both string and numeric update sequences.
type jsonSeq string

func (s *jsonSeq) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = jsonSeq(str)
		return nil
	}
	*s = jsonSeq(data)
	return nil
}

// newViewResult normalizes a wire response into the shape the request
// selected. A payload that does not agree with the selected shape is a
// decoding failure, not a different shape.
func newViewResult(shape ViewShape, resp *viewResponse) (*ViewResult, error) {
	if resp.Rows == nil {
		return nil, &internal.DecodeError{Err: fmt.Errorf("view response missing rows")}
	}
	result := &ViewResult{
		Shape:     shape,
		TotalRows: -1,
		Offset:    -1,
		updateSeq: string(resp.UpdateSeq),
	}
	if resp.TotalRows != nil {
		result.TotalRows = *resp.TotalRows
	}
	if resp.Offset != nil {
		result.Offset = *resp.Offset
	}
	switch shape {
	case ShapeUnreduced:
		if resp.TotalRows == nil {
			return nil, &internal.DecodeError{Err: fmt.Errorf("unreduced view response missing total_rows")}
		}
		result.Rows = make([]ViewRow, 0, len(*resp.Rows))
		for _, row := range *resp.Rows {
			if row.Error != "" {
				return nil, &internal.DecodeError{Err: fmt.Errorf("view row error: %s", row.Error)}
			}
			result.Rows = append(result.Rows, ViewRow{
				ID:    row.ID,
				Key:   row.Key,
				Value: row.Value,
				Doc:   row.Doc,
			})
		}
	case ShapeGrouped:
		if resp.TotalRows != nil {
			return nil, &internal.DecodeError{Err: fmt.Errorf("grouped view response carries total_rows")}
		}
		result.Rows = make([]ViewRow, 0, len(*resp.Rows))
		for _, row := range *resp.Rows {
			if row.ID != "" {
				return nil, &internal.DecodeError{Err: fmt.Errorf("grouped view row carries a document ID")}
			}
			result.Rows = append(result.Rows, ViewRow{
				Key:   row.Key,
				Value: row.Value,
			})
		}
	case ShapeReduced:
		if resp.TotalRows != nil {
			return nil, &internal.DecodeError{Err: fmt.Errorf("reduced view response carries total_rows")}
		}
		switch len(*resp.Rows) {
		case 0:
			// An empty selected range reduces to no value at all.
			result.Value = nil
		case 1:
			row := (*resp.Rows)[0]
			if row.ID != "" {
				return nil, &internal.DecodeError{Err: fmt.Errorf("reduced view row carries a document ID")}
			}
			result.Value = row.Value
		default:
			return nil, &internal.DecodeError{Err: fmt.Errorf("reduced view response has %d rows", len(*resp.Rows))}
		}
	}
	return result, nil
}

// View executes a view in the named design document and returns the fully
// materialized result. ddoc may be given with or without the "_design/"
// prefix.
func (d *Database) View(ctx context.Context, ddoc, view string, options *ViewOptions) (*ViewResult, error) {
	path, err := d.designPath(ddoc, view)
	if err != nil {
		return nil, err
	}
	return d.executeView(ctx, path, options)
}

// AllDocs queries the built-in index of all documents in the database. Rows
// are keyed by document ID and reduction options do not apply.
func (d *Database) AllDocs(ctx context.Context, options *ViewOptions) (*ViewResult, error) {
	if options.grouped() || (options != nil && options.Reduce != nil) {
		return nil, &internal.Error{Status: http.StatusBadRequest, Message: "chill: _all_docs cannot be reduced"}
	}
	return d.executeView(ctx, d.path.String()+"/_all_docs", options)
}

func (d *Database) executeView(ctx context.Context, path string, options *ViewOptions) (*ViewResult, error) {
	if err := options.validate(); err != nil {
		return nil, err
	}
	query, err := options.query()
	if err != nil {
		return nil, err
	}
	var resp viewResponse
	if err := d.client.conn.DoJSON(ctx, http.MethodGet, path, &chttp.Options{Query: query}, &resp); err != nil {
		return nil, err
	}
	return newViewResult(options.shape(), &resp)
}
