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

package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe/internal/aggregations"
	"github.com/docpipe/docpipe/internal/aggregations/matcher"
	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/must"
)

func TestMatcherFilter(t *testing.T) {
	t.Parallel()

	m := must.NotFail(matcher.New(must.NotFail(types.NewDocument(
		"a", must.NotFail(types.NewDocument("$gt", int32(1))),
	))))

	src := newSource(
		must.NotFail(types.NewDocument("a", int32(1))),
		must.NotFail(types.NewDocument("a", int32(2))),
		must.NotFail(types.NewDocument("a", int32(3))),
	)

	docs := drive(t, chain(src, NewMatcherFilter(m)))

	assertDocsEqual(t, []*types.Document{
		must.NotFail(types.NewDocument("a", int32(2))),
		must.NotFail(types.NewDocument("a", int32(3))),
	}, docs)
}

func TestExpressionFilter(t *testing.T) {
	t.Parallel()

	expr := aggregations.NewComparison(types.NewPath("a"), aggregations.OpGt, int32(1))

	src := newSource(
		must.NotFail(types.NewDocument("a", int32(1))),
		must.NotFail(types.NewDocument("a", int32(2))),
	)

	docs := drive(t, chain(src, NewExpressionFilter(expr)))

	assertDocsEqual(t, []*types.Document{
		must.NotFail(types.NewDocument("a", int32(2))),
	}, docs)
}

func TestExpressionFilterCoalesce(t *testing.T) {
	t.Parallel()

	f1 := NewExpressionFilter(aggregations.NewComparison(types.NewPath("a"), aggregations.OpGt, int32(1)))
	f2 := NewExpressionFilter(aggregations.NewComparison(types.NewPath("a"), aggregations.OpLt, int32(4)))

	require.True(t, f1.Coalesce(f2), "adjacent expression filters must coalesce")
	assert.False(t, f1.Coalesce(newSource()), "filters must not coalesce with other stages")

	src := newSource(
		must.NotFail(types.NewDocument("a", int32(1))),
		must.NotFail(types.NewDocument("a", int32(2))),
		must.NotFail(types.NewDocument("a", int32(4))),
	)

	docs := drive(t, chain(src, f1))

	assertDocsEqual(t, []*types.Document{
		must.NotFail(types.NewDocument("a", int32(2))),
	}, docs)
}

func TestMatcherFiltersDoNotCoalesce(t *testing.T) {
	t.Parallel()

	m1 := NewMatcherFilter(must.NotFail(matcher.New(must.NotFail(types.NewDocument("a", int32(1))))))
	m2 := NewMatcherFilter(must.NotFail(matcher.New(must.NotFail(types.NewDocument("b", int32(2))))))

	assert.False(t, m1.Coalesce(m2))
}

func TestMatcherRepresentation(t *testing.T) {
	t.Parallel()

	// the matcher variant is always representable
	pred := must.NotFail(types.NewDocument("a", int32(1)))
	m := NewMatcherFilter(must.NotFail(matcher.New(pred))).(aggregations.MatcherRepresenter)
	assert.Same(t, pred, m.MatcherRepresentation())

	// a comparison expression is representable
	e := NewExpressionFilter(
		aggregations.NewComparison(types.NewPath("a"), aggregations.OpGt, int32(1)),
	).(aggregations.MatcherRepresenter)
	repr := e.MatcherRepresentation()
	require.NotNil(t, repr)
	assert.Equal(t, types.Equal, types.Compare(
		must.NotFail(types.NewDocument("a", must.NotFail(types.NewDocument("$gt", int32(1))))),
		repr,
	))

	// an opaque expression is not
	opaque := NewExpressionFilter(aggregations.NewConstant(true)).(aggregations.MatcherRepresenter)
	assert.Nil(t, opaque.MatcherRepresentation())
}

func TestMatchManageDependencies(t *testing.T) {
	t.Parallel()

	s := NewExpressionFilter(aggregations.NewComparison(types.NewPath("a", "b"), aggregations.OpEq, int32(1)))

	tracker := aggregations.NewDependencyTracker()
	tracker.SetNeedWholeDocument(false)

	require.NoError(t, s.ManageDependencies(tracker))
	assert.True(t, tracker.IsRequired(types.NewPath("a", "b")))
	assert.True(t, tracker.AnyRequiredBelow(types.NewPath("a")))
	assert.False(t, tracker.IsRequired(types.NewPath("c")))
}
