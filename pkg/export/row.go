// Package export turns listing items into downloadable CSV and JSON files.
//
// Items are kept as ordered rows so that columns appear in the order the
// upstream API returned the fields.
package export

import (
	"bytes"
	stdjson "encoding/json"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// ErrNotObject is returned when an item is not a JSON object.
var ErrNotObject = errors.New("item is not a JSON object")

// Field is a single key/value pair of a row.
type Field struct {
	Key   string
	Value json.RawMessage
}

// Row is a JSON object with its key order preserved.
type Row struct {
	fields []Field
	index  map[string]int
}

// NewRow returns an empty row.
func NewRow() *Row {
	return &Row{index: make(map[string]int)}
}

// ParseRow decodes a JSON object into a row.
func ParseRow(data []byte) (*Row, error) {
	dec := stdjson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse row: %w", err)
	}
	if delim, ok := tok.(stdjson.Delim); !ok || delim != '{' {
		return nil, ErrNotObject
	}

	row := NewRow()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse row: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("parse row: unexpected token %v", tok)
		}
		var value stdjson.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("parse row field %q: %w", key, err)
		}
		row.Set(key, json.RawMessage(value))
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("parse row: %w", err)
	}
	return row, nil
}

// ParseRows decodes every item into a row, in order.
func ParseRows(items []json.RawMessage) ([]*Row, error) {
	rows := make([]*Row, 0, len(items))
	for i, item := range items {
		row, err := ParseRow(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Set assigns value to key. An existing key keeps its position.
func (r *Row) Set(key string, value json.RawMessage) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[key]; ok {
		r.fields[i].Value = value
		return
	}
	r.index[key] = len(r.fields)
	r.fields = append(r.fields, Field{Key: key, Value: value})
}

// Get returns the raw value of key.
func (r *Row) Get(key string) (json.RawMessage, bool) {
	i, ok := r.index[key]
	if !ok {
		return nil, false
	}
	return r.fields[i].Value, true
}

// Keys returns the keys in order.
func (r *Row) Keys() []string {
	keys := make([]string, len(r.fields))
	for i, f := range r.fields {
		keys[i] = f.Key
	}
	return keys
}

// Fields returns the key/value pairs in order.
func (r *Row) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Len returns the number of fields.
func (r *Row) Len() int {
	return len(r.fields)
}

// MarshalJSON encodes the row with its key order preserved.
func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(f.Value) == 0 {
			buf.WriteString("null")
			continue
		}
		buf.Write(f.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Flatten returns the cell text of a JSON value: strings unquoted, numbers
// and booleans verbatim, objects and arrays as compact JSON, null as "".
func Flatten(value json.RawMessage) string {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 {
		return ""
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return string(trimmed)
		}
		return s
	case '{', '[':
		var buf bytes.Buffer
		if err := stdjson.Compact(&buf, trimmed); err != nil {
			return string(trimmed)
		}
		return buf.String()
	case 'n':
		if string(trimmed) == "null" {
			return ""
		}
	}
	return string(trimmed)
}
