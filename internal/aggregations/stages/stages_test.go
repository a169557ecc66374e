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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe/internal/aggregations"
	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/must"
)

// newSource returns an array source over the given documents.
func newSource(docs ...*types.Document) aggregations.Stage {
	arr := types.MakeArray(len(docs))
	for _, doc := range docs {
		must.NoError(arr.Append(doc))
	}

	return NewDocumentsSource(arr)
}

// chain links the given stages left to right and returns the last one.
func chain(stageList ...aggregations.Stage) aggregations.Stage {
	for i := 1; i < len(stageList); i++ {
		stageList[i].SetUpstream(stageList[i-1])
	}

	return stageList[len(stageList)-1]
}

// drive primes the stage with Advance and iterates it to exhaustion.
func drive(t testing.TB, s aggregations.Stage) []*types.Document {
	t.Helper()

	ctx := context.Background()

	var res []*types.Document

	for {
		ok, err := s.Advance(ctx)
		require.NoError(t, err)

		if !ok {
			break
		}

		doc, err := s.Current()
		require.NoError(t, err)

		res = append(res, doc)
	}

	assert.True(t, s.EOF())

	return res
}

// assertDocsEqual compares document slices by value and field order.
func assertDocsEqual(t testing.TB, expected, actual []*types.Document) {
	t.Helper()

	require.Len(t, actual, len(expected))

	for i, doc := range expected {
		assert.Equal(t, types.Equal, types.Compare(doc, actual[i]),
			"document %d: expected %v, got %v", i, doc, actual[i])
		assert.Equal(t, doc.Keys(), actual[i].Keys(), "document %d field order", i)
	}
}

func TestUnstartedPositioning(t *testing.T) {
	t.Parallel()

	s := newSource(must.NotFail(types.NewDocument("a", int32(1))))

	assert.False(t, s.EOF(), "EOF must be false before the first Advance")

	_, err := s.Current()
	require.Error(t, err, "Current is invalid before the first Advance")

	docs := drive(t, s)
	assert.Len(t, docs, 1)

	_, err = s.Current()
	require.Error(t, err)
	assert.Equal(t, aggregations.ErrExhaustedSource, aggregations.ErrorCodeOf(err))
}

func TestSetUpstreamTwicePanics(t *testing.T) {
	t.Parallel()

	src := newSource()
	s, err := NewLimit(1)
	require.NoError(t, err)

	s.SetUpstream(src)

	assert.Panics(t, func() { s.SetUpstream(src) })
}

func TestDisposedStageReportsEOF(t *testing.T) {
	t.Parallel()

	s := newSource(must.NotFail(types.NewDocument("a", int32(1))))
	s.Dispose()

	ok, err := s.Advance(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, s.EOF())

	// Dispose is idempotent
	s.Dispose()
}

func TestDocumentsSourceTypeMismatch(t *testing.T) {
	t.Parallel()

	arr := must.NotFail(types.NewArray(must.NotFail(types.NewDocument("a", int32(1))), "oops"))
	s := NewDocumentsSource(arr)

	ok, err := s.Advance(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.Advance(context.Background())
	require.Error(t, err)
	assert.Equal(t, aggregations.ErrTypeMismatch, aggregations.ErrorCodeOf(err))
}

func TestNewStageRoundTrip(t *testing.T) {
	t.Parallel()

	specs := []*types.Document{
		must.NotFail(types.NewDocument("$match", must.NotFail(types.NewDocument("a", int32(1))))),
		must.NotFail(types.NewDocument("$project", must.NotFail(types.NewDocument("a", int32(1))))),
		must.NotFail(types.NewDocument("$group", must.NotFail(types.NewDocument(
			"_id", "$k",
			"s", must.NotFail(types.NewDocument("$sum", "$v")),
		)))),
		must.NotFail(types.NewDocument("$sort", must.NotFail(types.NewDocument("a", int32(1))))),
		must.NotFail(types.NewDocument("$limit", int32(5))),
		must.NotFail(types.NewDocument("$skip", int32(2))),
		must.NotFail(types.NewDocument("$unwind", "$a")),
		must.NotFail(types.NewDocument("$out", "target")),
	}

	for _, spec := range specs {
		spec := spec
		t.Run(spec.Command(), func(t *testing.T) {
			t.Parallel()

			s, err := NewStage(spec)
			require.NoError(t, err)

			serialized := s.Serialize(false)
			assert.Equal(t, spec.Command(), serialized.Command())

			reparsed, err := NewStage(serialized)
			require.NoError(t, err)
			assert.Equal(
				t, types.Equal,
				types.Compare(serialized, reparsed.Serialize(false)),
				"parse(serialize(stage)) must serialize identically",
			)
		})
	}
}

func TestNewStageErrors(t *testing.T) {
	t.Parallel()

	for name, spec := range map[string]*types.Document{
		"TwoFields": must.NotFail(types.NewDocument("$limit", int32(1), "$skip", int32(1))),
		"Unknown":   must.NotFail(types.NewDocument("$frobnicate", int32(1))),
	} {
		name, spec := name, spec
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := NewStage(spec)
			require.Error(t, err)
			assert.Equal(t, aggregations.ErrInvalidSpec, aggregations.ErrorCodeOf(err))
		})
	}
}
