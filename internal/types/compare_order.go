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
	"math"
	"time"
)

// DataTypeOrder represents the fixed cross-type comparison order of data types.
//
// Values of a lower order always compare less than values of a higher one,
// regardless of their contents.
type DataTypeOrder uint8

const (
	_ DataTypeOrder = iota

	// NullDataType is the order of null values.
	NullDataType

	// NaNDataType is the order of NaN doubles.
	NaNDataType

	// NumbersDataType is the order of doubles and integers.
	NumbersDataType

	// StringDataType is the order of strings.
	StringDataType

	// DocumentDataType is the order of documents.
	DocumentDataType

	// ArrayDataType is the order of arrays.
	ArrayDataType

	// BinDataType is the order of binary values.
	BinDataType

	// BooleanDataType is the order of booleans.
	BooleanDataType

	// DateDataType is the order of dates.
	DateDataType

	// TimestampDataType is the order of timestamps.
	TimestampDataType
)

// DetectDataType returns the comparison order for the given value.
func DetectDataType(value any) DataTypeOrder {
	switch value := value.(type) {
	case *Document:
		return DocumentDataType
	case *Array:
		return ArrayDataType
	case float64:
		if math.IsNaN(value) {
			return NaNDataType
		}
		return NumbersDataType
	case string:
		return StringDataType
	case Binary:
		return BinDataType
	case bool:
		return BooleanDataType
	case time.Time:
		return DateDataType
	case NullType:
		return NullDataType
	case int32:
		return NumbersDataType
	case Timestamp:
		return TimestampDataType
	case int64:
		return NumbersDataType
	default:
		panic(fmt.Sprintf("value cannot be defined, value is %[1]v, data type of value is %[1]T", value))
	}
}

// SortType represents the sort direction.
type SortType int8

const (
	// Ascending is used for sort in ascending order.
	Ascending SortType = 1

	// Descending is used for sort in descending order.
	Descending SortType = -1
)

// CompareOrder detects the data type for two values and compares them.
// When the types are equal, it compares their values using Compare.
func CompareOrder(a, b any, order SortType) CompareResult {
	if a == nil {
		panic("types.CompareOrder: a is nil")
	}
	if b == nil {
		panic("types.CompareOrder: b is nil")
	}
	if order != Ascending && order != Descending {
		panic(fmt.Sprintf("types.CompareOrder: order is %v", order))
	}

	result := compareTypeOrder(a, b)
	if result != Equal {
		return result
	}

	return Compare(a, b)
}

// CompareOrderForSort detects the data type for two values and compares them
// the way the sort stage needs: if a or b is an array, the minimum element of
// the array is used for Ascending sort and the maximum element for Descending
// sort. An empty array is smaller than null.
func CompareOrderForSort(a, b any, order SortType) CompareResult {
	if a == nil {
		panic("types.CompareOrderForSort: a is nil")
	}
	if b == nil {
		panic("types.CompareOrderForSort: b is nil")
	}
	if order != Ascending && order != Descending {
		panic(fmt.Sprintf("types.CompareOrderForSort: order is %v", order))
	}

	arrA, isAArray := a.(*Array)
	arrB, isBArray := b.(*Array)

	// empty array is the lowest on the sort order.
	switch {
	case isAArray && arrA.Len() == 0 && isBArray && arrB.Len() == 0:
		return Equal
	case isAArray && arrA.Len() == 0:
		if order == Ascending {
			return Less
		}

		return Greater
	case isBArray && arrB.Len() == 0:
		if order == Ascending {
			return Greater
		}

		return Less
	}

	// sort does not compare the array itself, it compares the minimum element
	// for ascending sort and the maximum element for descending sort.
	if isAArray {
		a = getComparisonElementFromArray(arrA, order)
	}

	if isBArray {
		b = getComparisonElementFromArray(arrB, order)
	}

	if result := compareTypeOrder(a, b); result != Equal {
		if order == Ascending {
			return result
		}

		return compareInvert(result)
	}

	result := Compare(a, b)
	if order == Ascending {
		return result
	}

	return compareInvert(result)
}

// compareTypeOrder detects the data type for two values and compares them.
func compareTypeOrder(a, b any) CompareResult {
	aType := DetectDataType(a)
	bType := DetectDataType(b)

	switch {
	case aType < bType:
		return Less
	case aType > bType:
		return Greater
	default:
		return Equal
	}
}

// getComparisonElementFromArray gets an element used for comparison according
// to the sort order: minimum for ascending, maximum for descending.
func getComparisonElementFromArray(arr *Array, order SortType) any {
	if arr.Len() == 0 {
		return arr
	}

	if order == Ascending {
		return arr.Min()
	}

	return arr.Max()
}
