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
	"bytes"
	"math"
	"math/big"
	"time"

	"golang.org/x/exp/constraints"

	"github.com/docpipe/docpipe/internal/util/must"
)

// CompareResult represents the result of a comparison.
type CompareResult int8

// Values match results of comparison functions such as bytes.Compare.
const (
	Equal   CompareResult = 0  // ==
	Less    CompareResult = -1 // <
	Greater CompareResult = 1  // >
)

// Compare compares any two values of the data model.
//
// It converts numeric types as needed; that may result in different types being equal.
func Compare(a, b any) CompareResult {
	if a == nil {
		panic("types.Compare: a is nil")
	}
	if b == nil {
		panic("types.Compare: b is nil")
	}

	switch a := a.(type) {
	case *Document:
		if bDoc, ok := b.(*Document); ok {
			return compareDocuments(a, bDoc)
		}

		return compareTypeOrder(a, b)
	case *Array:
		if bArr, ok := b.(*Array); ok {
			return compareArrays(a, bArr)
		}

		return compareTypeOrder(a, b)
	default:
		return compareScalars(a, b)
	}
}

// compareScalars compares scalar values.
func compareScalars(v1, v2 any) CompareResult {
	if !isScalar(v1) || !isScalar(v2) {
		return compareTypeOrder(v1, v2)
	}

	switch v1 := v1.(type) {
	case float64:
		switch v2 := v2.(type) {
		case float64:
			if math.IsNaN(v1) && math.IsNaN(v2) {
				return Equal
			}
			return compareOrdered(v1, v2)
		case int32:
			return compareNumbers(v1, int64(v2))
		case int64:
			return compareNumbers(v1, v2)
		default:
			return compareTypeOrder(v1, v2)
		}

	case string:
		v, ok := v2.(string)
		if ok {
			return compareOrdered(v1, v)
		}

		return compareTypeOrder(v1, v2)

	case Binary:
		v, ok := v2.(Binary)
		if !ok {
			return compareTypeOrder(v1, v2)
		}

		v1l, v2l := len(v1.B), len(v.B)
		if v1l != v2l {
			return compareOrdered(v1l, v2l)
		}

		if v1.Subtype != v.Subtype {
			return compareOrdered(byte(v1.Subtype), byte(v.Subtype))
		}

		return CompareResult(bytes.Compare(v1.B, v.B))

	case bool:
		v, ok := v2.(bool)
		if !ok {
			return compareTypeOrder(v1, v2)
		}

		if v1 == v {
			return Equal
		}

		if v {
			return Less
		}

		return Greater

	case time.Time:
		v, ok := v2.(time.Time)
		if !ok {
			return compareTypeOrder(v1, v2)
		}

		return compareOrdered(v1.UnixMilli(), v.UnixMilli())

	case NullType:
		_, ok := v2.(NullType)
		if ok {
			return Equal
		}

		return compareTypeOrder(v1, v2)

	case int32:
		switch v := v2.(type) {
		case float64:
			return compareInvert(compareNumbers(v, int64(v1)))
		case int32:
			return compareOrdered(v1, v)
		case int64:
			return compareOrdered(int64(v1), v)
		default:
			return compareTypeOrder(v1, v2)
		}

	case Timestamp:
		v, ok := v2.(Timestamp)
		if ok {
			return compareOrdered(v1, v)
		}

		return compareTypeOrder(v1, v2)

	case int64:
		switch v := v2.(type) {
		case float64:
			return compareInvert(compareNumbers(v, v1))
		case int32:
			return compareOrdered(v1, int64(v))
		case int64:
			return compareOrdered(v1, v)
		default:
			return compareTypeOrder(v1, v2)
		}
	}

	panic("not reached")
}

// compareInvert swaps Less and Greater, keeping Equal.
func compareInvert(res CompareResult) CompareResult {
	switch res {
	case Equal:
		return Equal
	case Less:
		return Greater
	case Greater:
		return Less
	}

	panic("not reached")
}

// compareOrdered compares values of the same type using ==, <, > operators.
func compareOrdered[T constraints.Ordered](a, b T) CompareResult {
	switch {
	case a == b:
		return Equal
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		panic("unsupported order")
	}
}

// compareNumbers compares a float64 and an int64 without precision loss.
func compareNumbers(a float64, b int64) CompareResult {
	if math.IsNaN(a) {
		return Less
	}

	bigA := new(big.Float).SetFloat64(a)
	bigB := new(big.Float).SetInt64(b)

	return CompareResult(bigA.Cmp(bigB))
}

// compareArrays compares arrays element-wise; a shorter array that is a
// prefix of the longer one is less.
func compareArrays(a, b *Array) CompareResult {
	for i := 0; i < a.Len(); i++ {
		if i >= b.Len() {
			return Greater
		}

		aValue := must.NotFail(a.Get(i))
		bValue := must.NotFail(b.Get(i))

		if result := compareTypeOrder(aValue, bValue); result != Equal {
			return result
		}

		if result := Compare(aValue, bValue); result != Equal {
			return result
		}
	}

	if a.Len() < b.Len() {
		return Less
	}

	return Equal
}

// compareDocuments compares documents recursively in the order of types,
// field names, and field values.
func compareDocuments(a, b *Document) CompareResult {
	if a.Len() == 0 && b.Len() == 0 {
		return Equal
	}

	if a.Len() == 0 {
		return Less
	}

	if b.Len() == 0 {
		return Greater
	}

	aKeys := a.Keys()
	bKeys := b.Keys()
	aValues := a.Values()
	bValues := b.Values()

	for i, aKey := range aKeys {
		if b.Len() == i {
			return Greater
		}

		// compare type
		if result := compareTypeOrder(aValues[i], bValues[i]); result != Equal {
			return result
		}

		// compare keys
		if result := compareScalars(aKey, bKeys[i]); result != Equal {
			return result
		}

		// compare values
		if result := Compare(aValues[i], bValues[i]); result != Equal {
			return result
		}
	}

	if a.Len() < b.Len() {
		return Less
	}

	return Equal
}
