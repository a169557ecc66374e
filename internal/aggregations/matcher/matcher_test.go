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

package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe/internal/aggregations"
	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/must"
)

func TestMatch(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument(
		"a", int32(2),
		"s", "x",
		"nested", must.NotFail(types.NewDocument("b", int32(5))),
		"tags", must.NotFail(types.NewArray("red", "blue")),
	))

	testCases := []struct {
		name     string
		filter   *types.Document
		expected bool
	}{
		{"ImplicitEq", must.NotFail(types.NewDocument("a", int32(2))), true},
		{"ImplicitEqOtherNumberType", must.NotFail(types.NewDocument("a", 2.0)), true},
		{"ImplicitEqNoMatch", must.NotFail(types.NewDocument("a", int32(3))), false},
		{"Gt", must.NotFail(types.NewDocument("a", must.NotFail(types.NewDocument("$gt", int32(1))))), true},
		{"GtNoMatch", must.NotFail(types.NewDocument("a", must.NotFail(types.NewDocument("$gt", int32(2))))), false},
		{"GtDifferentType", must.NotFail(types.NewDocument("a", must.NotFail(types.NewDocument("$gt", "x")))), false},
		{"Gte", must.NotFail(types.NewDocument("a", must.NotFail(types.NewDocument("$gte", int32(2))))), true},
		{"Lt", must.NotFail(types.NewDocument("a", must.NotFail(types.NewDocument("$lt", int32(3))))), true},
		{"Ne", must.NotFail(types.NewDocument("a", must.NotFail(types.NewDocument("$ne", int32(3))))), true},
		{"DottedPath", must.NotFail(types.NewDocument("nested.b", int32(5))), true},
		{"MissingPathEqNull", must.NotFail(types.NewDocument("missing", types.Null)), true},
		{"ArrayContains", must.NotFail(types.NewDocument("tags", "blue")), true},
		{"ArrayContainsNoMatch", must.NotFail(types.NewDocument("tags", "green")), false},
		{
			"In",
			must.NotFail(types.NewDocument("a", must.NotFail(types.NewDocument(
				"$in", must.NotFail(types.NewArray(int32(1), int32(2))),
			)))),
			true,
		},
		{
			"Not",
			must.NotFail(types.NewDocument("a", must.NotFail(types.NewDocument(
				"$not", must.NotFail(types.NewDocument("$gt", int32(5))),
			)))),
			true,
		},
		{
			"And",
			must.NotFail(types.NewDocument("$and", must.NotFail(types.NewArray(
				must.NotFail(types.NewDocument("a", int32(2))),
				must.NotFail(types.NewDocument("s", "x")),
			)))),
			true,
		},
		{
			"Or",
			must.NotFail(types.NewDocument("$or", must.NotFail(types.NewArray(
				must.NotFail(types.NewDocument("a", int32(99))),
				must.NotFail(types.NewDocument("s", "x")),
			)))),
			true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m, err := New(tc.filter)
			require.NoError(t, err)

			matches, err := m.Match(doc)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, matches)
		})
	}
}

func TestNewRejectsUnknownOperators(t *testing.T) {
	t.Parallel()

	filter := must.NotFail(types.NewDocument(
		"a", must.NotFail(types.NewDocument("$regex", "x")),
	))

	_, err := New(filter)
	require.Error(t, err)
	assert.Equal(t, aggregations.ErrInvalidSpec, aggregations.ErrorCodeOf(err))
}
