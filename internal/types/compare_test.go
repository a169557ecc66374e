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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/docpipe/docpipe/internal/util/must"
)

func TestCompareScalars(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		a, b     any
		expected CompareResult
	}{
		{"Int32Equal", int32(42), int32(42), Equal},
		{"Int32Less", int32(1), int32(2), Less},
		{"Int32Int64", int32(42), int64(42), Equal},
		{"Int64DoubleEqual", int64(2), 2.0, Equal},
		{"DoubleInt32", 1.5, int32(2), Less},
		{"Strings", "abc", "abd", Less},
		{"BoolFalseTrue", false, true, Less},
		{"Timestamps", Timestamp(1), Timestamp(2), Less},
		{"Dates", time.UnixMilli(1000).UTC(), time.UnixMilli(2000).UTC(), Less},
		{"Nulls", Null, Null, Equal},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, Compare(tc.a, tc.b))
		})
	}
}

func TestCompareTypeOrder(t *testing.T) {
	t.Parallel()

	// the fixed cross-type order, lowest first
	ordered := []any{
		Null,
		int32(1),
		"a",
		must.NotFail(NewDocument("a", int32(1))),
		must.NotFail(NewArray(int32(1))),
		Binary{B: []byte{0x01}},
		true,
		time.UnixMilli(0).UTC(),
		Timestamp(1),
	}

	for i := 0; i < len(ordered)-1; i++ {
		assert.Equal(
			t, Less, CompareOrder(ordered[i], ordered[i+1], Ascending),
			"expected %v < %v", ordered[i], ordered[i+1],
		)
	}
}

func TestCompareOrderForSort(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		a, b     any
		order    SortType
		expected CompareResult
	}{
		{"AscArrayUsesMin", must.NotFail(NewArray(int32(5), int32(1))), int32(2), Ascending, Less},
		{"DescArrayUsesMax", must.NotFail(NewArray(int32(5), int32(1))), int32(2), Descending, Less},
		{"EmptyArrayBelowNull", must.NotFail(NewArray()), Null, Ascending, Less},
		{"DescInverts", int32(1), int32(2), Descending, Greater},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, CompareOrderForSort(tc.a, tc.b, tc.order))
		})
	}
}

func TestCompareDocuments(t *testing.T) {
	t.Parallel()

	a := must.NotFail(NewDocument("x", int32(1), "y", int32(2)))
	b := must.NotFail(NewDocument("x", int32(1), "y", int32(2)))
	c := must.NotFail(NewDocument("y", int32(2), "x", int32(1)))

	assert.Equal(t, Equal, Compare(a, b))
	assert.NotEqual(t, Equal, Compare(a, c), "field order is observable")
}
