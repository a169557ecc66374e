// Copyright 2021 DocPipe Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package types

import (
	"fmt"
	"unicode/utf8"
)

// Document represents an ordered field-keyed document.
//
// Duplicate field names are not supported.
type Document struct {
	m    map[string]any
	keys []string
}

// NewDocument creates a document with the given key/value pairs.
func NewDocument(pairs ...any) (*Document, error) {
	l := len(pairs)
	if l%2 != 0 {
		return nil, fmt.Errorf("types.NewDocument: invalid number of arguments: %d", l)
	}

	if l == 0 {
		return new(Document), nil
	}

	doc := &Document{
		m:    make(map[string]any, l/2),
		keys: make([]string, 0, l/2),
	}

	for i := 0; i < l; i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("types.NewDocument: invalid key type: %T", pairs[i])
		}

		value := pairs[i+1]
		if err := doc.add(key, value); err != nil {
			return nil, fmt.Errorf("types.NewDocument: %w", err)
		}
	}

	return doc, nil
}

// isValidKey returns false if key is not a valid document field key.
func isValidKey(key string) bool {
	return key != "" && utf8.ValidString(key)
}

// validate checks if the document is valid.
func (d *Document) validate() error {
	if d == nil {
		panic("types.Document.validate: d is nil")
	}

	if len(d.m) != len(d.keys) {
		return fmt.Errorf("types.Document.validate: keys and values count mismatch: %d != %d", len(d.m), len(d.keys))
	}

	prevKeys := make(map[string]struct{}, len(d.keys))

	for _, key := range d.keys {
		if !isValidKey(key) {
			return fmt.Errorf("types.Document.validate: invalid key: %q", key)
		}

		value, ok := d.m[key]
		if !ok {
			return fmt.Errorf("types.Document.validate: key not found: %q", key)
		}

		if _, ok := prevKeys[key]; ok {
			return fmt.Errorf("types.Document.validate: duplicate key: %q", key)
		}
		prevKeys[key] = struct{}{}

		if err := validateValue(value); err != nil {
			return fmt.Errorf("types.Document.validate: %w", err)
		}
	}

	return nil
}

// Len returns the number of elements in the document.
//
// It returns 0 for nil Document.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}

	return len(d.keys)
}

// Keys returns document's keys. Do not modify it.
//
// It returns nil for nil Document.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}

	return d.keys
}

// Values returns a slice of document's values in the document's key order.
//
// It returns nil for nil Document.
func (d *Document) Values() []any {
	if d == nil {
		return nil
	}

	values := make([]any, len(d.keys))
	for i, key := range d.keys {
		values[i] = d.m[key]
	}

	return values
}

// Command returns the first document's key. This is often used as a stage name.
// It returns an empty string if the document is nil or empty.
func (d *Document) Command() string {
	keys := d.Keys()
	if len(keys) == 0 {
		return ""
	}

	return keys[0]
}

// add adds a new key/value pair, failing if the key is already present.
func (d *Document) add(key string, value any) error {
	if _, ok := d.m[key]; ok {
		return fmt.Errorf("types.Document.add: key already present: %q", key)
	}

	if !isValidKey(key) {
		return fmt.Errorf("types.Document.add: invalid key: %q", key)
	}

	if err := validateValue(value); err != nil {
		return fmt.Errorf("types.Document.add: %w", err)
	}

	if d.m == nil {
		d.m = map[string]any{}
	}

	d.keys = append(d.keys, key)
	d.m[key] = value

	return nil
}

// Has reports whether the document has the given key.
func (d *Document) Has(key string) bool {
	_, ok := d.m[key]
	return ok
}

// Get returns a value at the given key.
func (d *Document) Get(key string) (any, error) {
	if value, ok := d.m[key]; ok {
		return value, nil
	}

	return nil, fmt.Errorf("types.Document.Get: key not found: %q", key)
}

// Set sets the value of the given key, replacing any existing value.
// New keys are appended at the end, preserving insertion order.
func (d *Document) Set(key string, value any) error {
	if !isValidKey(key) {
		return fmt.Errorf("types.Document.Set: invalid key: %q", key)
	}

	if err := validateValue(value); err != nil {
		return fmt.Errorf("types.Document.Set: %w", err)
	}

	if _, ok := d.m[key]; !ok {
		d.keys = append(d.keys, key)
	}

	if d.m == nil {
		d.m = map[string]any{
			key: value,
		}

		return nil
	}

	d.m[key] = value

	return nil
}

// Remove removes the given key, doing nothing if the key does not exist.
func (d *Document) Remove(key string) {
	if _, ok := d.m[key]; !ok {
		return
	}

	delete(d.m, key)

	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			return
		}
	}

	// should not be reached
	panic(fmt.Sprintf("types.Document.Remove: key not found: %q", key))
}

// GetByPath returns a value by path.
func (d *Document) GetByPath(path Path) (any, error) {
	return getByPath(d, path)
}

// HasByPath reports whether the document has a value at the given path.
func (d *Document) HasByPath(path Path) bool {
	_, err := getByPath(d, path)
	return err == nil
}

// SetByPath sets a value by path, creating intermediate documents as needed.
func (d *Document) SetByPath(path Path, value any) error {
	return setByPath(d, path, value)
}

// RemoveByPath removes a value by path, doing nothing if the path does not exist.
func (d *Document) RemoveByPath(path Path) {
	removeByPath(d, path)
}

// DeepCopy returns a deep copy of this Document.
func (d *Document) DeepCopy() *Document {
	if d == nil {
		panic("types.Document.DeepCopy: nil document")
	}

	return deepCopy(d).(*Document)
}

// CloneAlongPath returns a copy of this document in which only the documents
// along the given path are cloned; all sibling values are shared with the receiver.
//
// The value at the path itself (if any) is shared too; callers replace it
// with SetByPath on the returned copy.
func (d *Document) CloneAlongPath(path Path) *Document {
	clone := &Document{
		m:    make(map[string]any, len(d.m)),
		keys: make([]string, len(d.keys)),
	}

	copy(clone.keys, d.keys)
	for k, v := range d.m {
		clone.m[k] = v
	}

	key := path.Prefix()

	if path.Len() == 1 {
		return clone
	}

	if sub, ok := d.m[key].(*Document); ok {
		clone.m[key] = sub.CloneAlongPath(path.TrimPrefix())
	}

	return clone
}
