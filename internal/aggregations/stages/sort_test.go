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
	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/must"
)

func TestSortStability(t *testing.T) {
	t.Parallel()

	s := NewSort([]SortKey{{Path: types.NewPath("a"), Order: types.Ascending}})

	src := newSource(
		must.NotFail(types.NewDocument("a", int32(1), "t", "p")),
		must.NotFail(types.NewDocument("a", int32(1), "t", "q")),
		must.NotFail(types.NewDocument("a", int32(0), "t", "r")),
	)

	docs := drive(t, chain(src, s))

	assertDocsEqual(t, []*types.Document{
		must.NotFail(types.NewDocument("a", int32(0), "t", "r")),
		must.NotFail(types.NewDocument("a", int32(1), "t", "p")),
		must.NotFail(types.NewDocument("a", int32(1), "t", "q")),
	}, docs)
}

func TestSortMultiKey(t *testing.T) {
	t.Parallel()

	s := NewSort([]SortKey{
		{Path: types.NewPath("a"), Order: types.Ascending},
		{Path: types.NewPath("b"), Order: types.Descending},
	})

	src := newSource(
		must.NotFail(types.NewDocument("a", int32(1), "b", int32(1))),
		must.NotFail(types.NewDocument("a", int32(1), "b", int32(2))),
		must.NotFail(types.NewDocument("a", int32(0), "b", int32(9))),
	)

	docs := drive(t, chain(src, s))

	assertDocsEqual(t, []*types.Document{
		must.NotFail(types.NewDocument("a", int32(0), "b", int32(9))),
		must.NotFail(types.NewDocument("a", int32(1), "b", int32(2))),
		must.NotFail(types.NewDocument("a", int32(1), "b", int32(1))),
	}, docs)
}

func TestSortMissingSortsFirst(t *testing.T) {
	t.Parallel()

	s := NewSort([]SortKey{{Path: types.NewPath("a"), Order: types.Ascending}})

	src := newSource(
		must.NotFail(types.NewDocument("a", int32(1))),
		must.NotFail(types.NewDocument("b", int32(1))),
	)

	docs := drive(t, chain(src, s))

	assertDocsEqual(t, []*types.Document{
		must.NotFail(types.NewDocument("b", int32(1))),
		must.NotFail(types.NewDocument("a", int32(1))),
	}, docs)
}

func TestSortArrayKeys(t *testing.T) {
	t.Parallel()

	// ascending sorts by the minimum element
	s := NewSort([]SortKey{{Path: types.NewPath("a"), Order: types.Ascending}})

	src := newSource(
		must.NotFail(types.NewDocument("t", "big", "a", must.NotFail(types.NewArray(int32(9), int32(5))))),
		must.NotFail(types.NewDocument("t", "small", "a", must.NotFail(types.NewArray(int32(7), int32(1))))),
	)

	docs := drive(t, chain(src, s))
	assert.Equal(t, "small", must.NotFail(docs[0].Get("t")))
	assert.Equal(t, "big", must.NotFail(docs[1].Get("t")))
}

func TestSortCoalesceSort(t *testing.T) {
	t.Parallel()

	s1 := NewSort([]SortKey{{Path: types.NewPath("a"), Order: types.Ascending}})
	s2 := NewSort([]SortKey{{Path: types.NewPath("b"), Order: types.Ascending}})

	// the last sort wins
	require.True(t, s1.Coalesce(s2))

	src := newSource(
		must.NotFail(types.NewDocument("a", int32(0), "b", int32(2))),
		must.NotFail(types.NewDocument("a", int32(1), "b", int32(1))),
	)

	docs := drive(t, chain(src, s1))
	assert.Equal(t, int32(1), must.NotFail(docs[0].Get("b")))
}

func TestSortLimitBound(t *testing.T) {
	t.Parallel()

	s := NewSort([]SortKey{{Path: types.NewPath("a"), Order: types.Ascending}})
	l := must.NotFail(NewLimit(2))

	// the limit is not absorbed, but it bounds the sort's memory
	require.False(t, s.Coalesce(l))
	assert.Equal(t, int64(2), s.(*sortStage).bound)

	src := newSource(
		must.NotFail(types.NewDocument("a", int32(3))),
		must.NotFail(types.NewDocument("a", int32(1))),
		must.NotFail(types.NewDocument("a", int32(2))),
	)

	docs := drive(t, chain(src, s, l))

	assertDocsEqual(t, []*types.Document{
		must.NotFail(types.NewDocument("a", int32(1))),
		must.NotFail(types.NewDocument("a", int32(2))),
	}, docs)
}

func TestSortSplit(t *testing.T) {
	t.Parallel()

	s := NewSort([]SortKey{{Path: types.NewPath("a"), Order: types.Ascending}}).(aggregations.SplittableStage)

	assert.Nil(t, s.ShardSource(), "the shard half of a sort is empty")
	require.NotNil(t, s.RouterSource(), "the router performs the full sort")
}
