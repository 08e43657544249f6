// Package mapscript models MapServer mapfiles as an ordered object tree and
// converts that tree to and from mapfile text and mappyfile-style JSON.
package mapscript

import (
	"strings"
)

// Keyword is a value written without quotes (enums, expressions, attribute bindings).
type Keyword string

// Number keeps a numeric literal exactly as it was read.
type Number string

// Lines is a block of quoted lines, as used by PROJECTION.
type Lines []string

// NumberBlock is a block of bare numbers, as used by POINTS and PATTERN.
type NumberBlock []float64

// Field is one keyword/value pair of an Object.
type Field struct {
	Key   string
	Value interface{}
}

// Object is a mapfile block (MAP, LAYER, CLASS, ...). Field order is kept.
type Object struct {
	Type   string
	fields []Field
}

// NewObject returns an empty block of the given type.
func NewObject(typ string) *Object {
	return &Object{Type: strings.ToUpper(typ)}
}

func normalizeKey(key string) string {
	return strings.ToLower(key)
}

func (o *Object) index(key string) int {
	key = normalizeKey(key)
	for i, f := range o.fields {
		if f.Key == key {
			return i
		}
	}
	return -1
}

// Set replaces the value of key in place, or appends it.
func (o *Object) Set(key string, value interface{}) *Object {
	if i := o.index(key); i >= 0 {
		o.fields[i].Value = value
		return o
	}
	o.fields = append(o.fields, Field{Key: normalizeKey(key), Value: value})
	return o
}

// Get returns the value of key.
func (o *Object) Get(key string) (interface{}, bool) {
	if i := o.index(key); i >= 0 {
		return o.fields[i].Value, true
	}
	return nil, false
}

// Has reports whether key is set.
func (o *Object) Has(key string) bool {
	return o.index(key) >= 0
}

// Delete removes key if present.
func (o *Object) Delete(key string) {
	if i := o.index(key); i >= 0 {
		o.fields = append(o.fields[:i], o.fields[i+1:]...)
	}
}

// Fields returns the fields in order. The slice must not be modified.
func (o *Object) Fields() []Field {
	return o.fields
}

// Keys returns field names in order.
func (o *Object) Keys() []string {
	keys := make([]string, len(o.fields))
	for i, f := range o.fields {
		keys[i] = f.Key
	}
	return keys
}

// String returns a textual scalar value, or "".
func (o *Object) String(key string) string {
	v, ok := o.Get(key)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case Keyword:
		return string(s)
	case Number:
		return string(s)
	}
	return ""
}

// Objects returns the nested blocks stored under key.
func (o *Object) Objects(key string) []*Object {
	v, ok := o.Get(key)
	if !ok {
		return nil
	}
	switch objs := v.(type) {
	case []*Object:
		return objs
	case *Object:
		return []*Object{objs}
	}
	return nil
}

// Child returns the single nested block stored under key.
func (o *Object) Child(key string) *Object {
	v, _ := o.Get(key)
	obj, _ := v.(*Object)
	return obj
}

// Table returns the key/value table stored under key.
func (o *Object) Table(key string) *Table {
	v, _ := o.Get(key)
	t, _ := v.(*Table)
	return t
}

// Clone returns a deep copy.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	c := &Object{Type: o.Type, fields: make([]Field, len(o.fields))}
	for i, f := range o.fields {
		c.fields[i] = Field{Key: f.Key, Value: cloneValue(f.Value)}
	}
	return c
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case *Object:
		return val.Clone()
	case []*Object:
		out := make([]*Object, len(val))
		for i, o := range val {
			out[i] = o.Clone()
		}
		return out
	case *Table:
		return val.Clone()
	case []string:
		return append([]string(nil), val...)
	case []float64:
		return append([]float64(nil), val...)
	case Lines:
		return append(Lines(nil), val...)
	case NumberBlock:
		return append(NumberBlock(nil), val...)
	}
	return v
}

// Table is an ordered string map with unique keys, used for METADATA,
// VALIDATION and CONFIG. Setting an existing key keeps its position.
type Table struct {
	keys   []string
	values map[string]string
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{values: make(map[string]string)}
}

// TableOf builds a table from alternating key/value arguments.
func TableOf(kv ...string) *Table {
	t := NewTable()
	for i := 0; i+1 < len(kv); i += 2 {
		t.Set(kv[i], kv[i+1])
	}
	return t
}

func (t *Table) Set(key, value string) {
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
}

func (t *Table) Get(key string) (string, bool) {
	v, ok := t.values[key]
	return v, ok
}

func (t *Table) Delete(key string) {
	if _, ok := t.values[key]; !ok {
		return
	}
	delete(t.values, key)
	for i, k := range t.keys {
		if k == key {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
}

func (t *Table) Keys() []string {
	return append([]string(nil), t.keys...)
}

func (t *Table) Len() int {
	return len(t.keys)
}

// Merge copies every entry of other into t, later values winning.
func (t *Table) Merge(other *Table) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		t.Set(k, other.values[k])
	}
}

// Map returns an unordered copy of the entries.
func (t *Table) Map() map[string]string {
	out := make(map[string]string, len(t.values))
	for k, v := range t.values {
		out[k] = v
	}
	return out
}

func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	c := NewTable()
	c.Merge(t)
	return c
}
