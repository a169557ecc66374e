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
	"strings"

	"github.com/docpipe/docpipe/internal/util/must"
)

// Path represents a dotted field path - a non-empty sequence of field names
// for navigation into nested documents.
type Path struct {
	s []string
}

// NewPath returns a Path from a slice of field names. It panics for empty paths and empty elements.
func NewPath(path ...string) Path {
	if len(path) == 0 {
		panic("types.NewPath: empty path")
	}

	for _, s := range path {
		if s == "" {
			panic("types.NewPath: path element must not be empty")
		}
	}

	p := Path{s: make([]string, len(path))}
	copy(p.s, path)

	return p
}

// NewPathFromString returns a Path from a dotted string.
// It returns an error if the string is empty or contains empty elements.
func NewPathFromString(s string) (Path, error) {
	var res Path

	path := strings.Split(s, ".")
	for _, e := range path {
		if e == "" {
			return res, newPathError(ErrPathElementEmpty, "path element must not be empty")
		}
	}

	res = Path{s: make([]string, len(path))}
	copy(res.s, path)

	return res, nil
}

// String returns a dotted path value.
func (p Path) String() string {
	return strings.Join(p.s, ".")
}

// Len returns the number of path elements.
func (p Path) Len() int {
	return len(p.s)
}

// Slice returns a copy of the path elements.
func (p Path) Slice() []string {
	path := make([]string, len(p.s))
	copy(path, p.s)

	return path
}

// Prefix returns the first path element.
func (p Path) Prefix() string {
	if p.Len() == 0 {
		panic("types.Path.Prefix: path is empty")
	}

	return p.s[0]
}

// Suffix returns the last path element.
func (p Path) Suffix() string {
	if p.Len() == 0 {
		panic("types.Path.Suffix: path is empty")
	}

	return p.s[len(p.s)-1]
}

// TrimPrefix returns a copy of the path without the first element.
// It panics for paths shorter than two elements.
func (p Path) TrimPrefix() Path {
	if p.Len() <= 1 {
		panic("types.Path.TrimPrefix: path should have more than 1 element")
	}

	return NewPath(p.s[1:]...)
}

// TrimSuffix returns a copy of the path without the last element.
// It panics for paths shorter than two elements.
func (p Path) TrimSuffix() Path {
	if p.Len() <= 1 {
		panic("types.Path.TrimSuffix: path should have more than 1 element")
	}

	return NewPath(p.s[:len(p.s)-1]...)
}

// Append returns a new Path with the given element appended.
func (p Path) Append(elem string) Path {
	elems := p.Slice()
	elems = append(elems, elem)

	return NewPath(elems...)
}

// StartsWith reports whether prefix is a prefix of the path.
func (p Path) StartsWith(prefix Path) bool {
	if prefix.Len() > p.Len() {
		return false
	}

	for i, e := range prefix.s {
		if p.s[i] != e {
			return false
		}
	}

	return true
}

// PathErrorCode represents a path traversal error code.
type PathErrorCode int

const (
	_ PathErrorCode = iota

	// ErrPathElementEmpty indicates that a path element is empty.
	ErrPathElementEmpty

	// ErrPathKeyNotFound indicates that a key was not found in a document.
	ErrPathKeyNotFound

	// ErrPathCannotAccess indicates that a scalar value cannot be accessed by the remaining path.
	ErrPathCannotAccess
)

// PathError describes a path traversal error.
type PathError struct {
	code PathErrorCode
	msg  string
}

// newPathError creates a new PathError.
func newPathError(code PathErrorCode, msg string) error {
	return &PathError{code: code, msg: msg}
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return e.msg
}

// Code returns the PathError code.
func (e *PathError) Code() PathErrorCode {
	return e.code
}

// getByPath returns a value by path from a document.
// Traversal descends into nested documents only; any other value on the way
// results in ErrPathCannotAccess, a missing key in ErrPathKeyNotFound.
func getByPath(doc *Document, path Path) (any, error) {
	var next any = doc

	for _, key := range path.Slice() {
		d, ok := next.(*Document)
		if !ok {
			return nil, newPathError(ErrPathCannotAccess, "cannot access "+key+" of a non-document value")
		}

		v, err := d.Get(key)
		if err != nil {
			return nil, newPathError(ErrPathKeyNotFound, "key not found: "+key)
		}

		next = v
	}

	return next, nil
}

// removeByPath removes a value by path from a document, doing nothing if the path does not exist.
func removeByPath(doc *Document, path Path) {
	d := doc

	for i, key := range path.Slice() {
		if i == path.Len()-1 {
			d.Remove(key)
			return
		}

		v, err := d.Get(key)
		if err != nil {
			return
		}

		var ok bool
		if d, ok = v.(*Document); !ok {
			return
		}
	}
}

// setByPath sets a value by path in a document, creating nested documents as needed.
func setByPath(doc *Document, path Path, value any) error {
	d := doc

	for i, key := range path.Slice() {
		if i == path.Len()-1 {
			return d.Set(key, value)
		}

		v, err := d.Get(key)
		if err != nil {
			next := must.NotFail(NewDocument())
			if err = d.Set(key, next); err != nil {
				return err
			}

			d = next

			continue
		}

		var ok bool
		if d, ok = v.(*Document); !ok {
			return newPathError(ErrPathCannotAccess, "cannot set "+path.String()+" through a non-document value")
		}
	}

	return nil
}
