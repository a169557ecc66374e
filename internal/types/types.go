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

// Package types provides Go types for the document data model of the aggregation engine.
//
// Values are immutable by convention: the engine shares them by reference between documents,
// and the only mutation pattern is the copy-on-write clone used by the unwind stage.
//
// Mapping of value kinds to Go types:
//
//	Composite types (passed by pointers)
//	 *types.Document  ordered field-keyed document
//	 *types.Array     ordered array of values
//
//	Scalar types (passed by values)
//	 float64          64-bit binary floating point
//	 string           UTF-8 string
//	 types.Binary     binary blob
//	 bool             boolean
//	 time.Time        UTC datetime (milliseconds since epoch precision)
//	 types.NullType   null
//	 int32            32-bit integer
//	 types.Timestamp  timestamp
//	 int64            64-bit integer
package types

import (
	"fmt"
	"time"
)

// ScalarType represents a scalar value type.
type ScalarType interface {
	float64 | string | Binary | bool | time.Time | NullType | int32 | Timestamp | int64
}

// CompositeType represents a composite type - *Document or *Array.
type CompositeType interface {
	*Document | *Array
}

// Type represents any value type (scalar or composite).
type Type interface {
	ScalarType | CompositeType
}

type (
	// Timestamp represents an opaque monotonic timestamp value.
	Timestamp uint64

	// NullType represents the null value.
	//
	// Most callers should use types.Null value instead.
	NullType struct{}
)

// Null represents the null value.
var Null = NullType{}

// validateValue validates a value.
func validateValue(value any) error {
	switch value := value.(type) {
	case *Document:
		return value.validate()
	case *Array:
		// It is impossible to construct an invalid Array using exported functions,
		// methods, or type conversions, so no need to revalidate it.
		return nil
	case float64, string, Binary, bool, time.Time, NullType, int32, Timestamp, int64:
		return nil
	default:
		return fmt.Errorf("types.validateValue: unsupported type: %[1]T (%[1]v)", value)
	}
}

// isScalar checks if v is a scalar value.
func isScalar(v any) bool {
	if v == nil {
		panic("v is nil")
	}

	switch v.(type) {
	case float64, string, Binary, bool, time.Time, NullType, int32, Timestamp, int64:
		return true
	}

	return false
}

// deepCopy returns a deep copy of the given value.
func deepCopy(value any) any {
	if value == nil {
		panic("types.deepCopy: nil value")
	}

	switch value := value.(type) {
	case *Document:
		keys := make([]string, len(value.keys))
		copy(keys, value.keys)

		m := make(map[string]any, len(value.m))
		for k, v := range value.m {
			m[k] = deepCopy(v)
		}

		return &Document{
			keys: keys,
			m:    m,
		}

	case *Array:
		s := make([]any, len(value.s))
		for i, v := range value.s {
			s[i] = deepCopy(v)
		}

		return &Array{
			s: s,
		}

	case Binary:
		b := make([]byte, len(value.B))
		copy(b, value.B)

		return Binary{
			Subtype: value.Subtype,
			B:       b,
		}

	case float64, string, bool, time.Time, NullType, int32, Timestamp, int64:
		return value

	default:
		panic(fmt.Sprintf("types.deepCopy: unsupported type: %[1]T (%[1]v)", value))
	}
}
