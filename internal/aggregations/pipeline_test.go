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

package aggregations_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/docpipe/docpipe/internal/aggregations"
	"github.com/docpipe/docpipe/internal/aggregations/matcher"
	"github.com/docpipe/docpipe/internal/aggregations/stages"
	"github.com/docpipe/docpipe/internal/fjson"
	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/must"
)

// fakeCursor is an in-memory stages.Cursor over marshaled records.
type fakeCursor struct {
	records [][]byte
	n       int
	closed  bool
}

func newFakeCursor(docs ...*types.Document) *fakeCursor {
	c := new(fakeCursor)
	for _, doc := range docs {
		c.records = append(c.records, must.NotFail(fjson.Marshal(doc)))
	}

	return c
}

func (c *fakeCursor) Next(context.Context) ([]byte, error) {
	if c.closed || c.n >= len(c.records) {
		return nil, nil
	}

	record := c.records[c.n]
	c.n++

	return record, nil
}

func (c *fakeCursor) Invalidated() bool { return false }
func (c *fakeCursor) Yield() error      { return nil }
func (c *fakeCursor) Close()            { c.closed = true }

// newArraySource returns a documents source over the given documents.
func newArraySource(docs ...*types.Document) aggregations.Stage {
	arr := types.MakeArray(len(docs))
	for _, doc := range docs {
		must.NoError(arr.Append(doc))
	}

	return stages.NewDocumentsSource(arr)
}

// runPipeline optimizes, runs, and disposes a pipeline over the given stages.
func runPipeline(t *testing.T, stageList []aggregations.Stage, opts *aggregations.Options) []*types.Document {
	t.Helper()

	p, err := aggregations.NewPipeline(stageList, opts)
	require.NoError(t, err)

	defer p.Dispose()

	require.NoError(t, p.Optimize())

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	return res
}

// assertDocsEqual compares document slices by value and field order.
func assertDocsEqual(t testing.TB, expected, actual []*types.Document) {
	t.Helper()

	require.Len(t, actual, len(expected))

	for i, doc := range expected {
		assert.Equal(t, types.Equal, types.Compare(doc, actual[i]),
			"document %d: expected %v, got %v", i, doc, actual[i])
	}
}

func TestPipelinePushdown(t *testing.T) {
	t.Parallel()

	cursor := newFakeCursor(
		must.NotFail(types.NewDocument("a", int32(1), "b", int32(2))),
		must.NotFail(types.NewDocument("a", int32(2), "b", int32(3))),
		must.NotFail(types.NewDocument("a", int32(3), "b", int32(4))),
	)

	m := must.NotFail(matcher.New(must.NotFail(types.NewDocument(
		"a", must.NotFail(types.NewDocument("$gt", int32(1))),
	))))

	project, err := stages.NewProject(must.NotFail(types.NewDocument("b", int32(1), "_id", int32(0))))
	require.NoError(t, err)

	p, err := aggregations.NewPipeline([]aggregations.Stage{
		stages.NewCursorSource(cursor, zaptest.NewLogger(t)),
		stages.NewMatcherFilter(m),
		project,
	}, nil)
	require.NoError(t, err)

	defer p.Dispose()

	require.NoError(t, p.Optimize())

	// both stages were pushed into the source
	assert.Len(t, p.Stages(), 1)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assertDocsEqual(t, []*types.Document{
		must.NotFail(types.NewDocument("b", int32(3))),
		must.NotFail(types.NewDocument("b", int32(4))),
	}, res)
}

func TestPipelineLimitSkipCoalesce(t *testing.T) {
	t.Parallel()

	docs := make([]*types.Document, 20)
	for i := range docs {
		docs[i] = must.NotFail(types.NewDocument("n", int32(i)))
	}

	stageList := []aggregations.Stage{
		newArraySource(docs...),
		must.NotFail(stages.NewSkip(2)),
		must.NotFail(stages.NewSkip(3)),
		must.NotFail(stages.NewLimit(4)),
		must.NotFail(stages.NewLimit(10)),
	}

	p, err := aggregations.NewPipeline(stageList, nil)
	require.NoError(t, err)

	defer p.Dispose()

	require.NoError(t, p.Optimize())

	// skip(2), skip(3), limit(4), limit(10) becomes skip(5), limit(4)
	require.Len(t, p.Stages(), 3)

	serialized := p.Serialize(false)
	skipDoc := must.NotFail(serialized.Get(1)).(*types.Document)
	limitDoc := must.NotFail(serialized.Get(2)).(*types.Document)
	assert.Equal(t, int64(5), must.NotFail(skipDoc.Get("$skip")))
	assert.Equal(t, int64(4), must.NotFail(limitDoc.Get("$limit")))

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assertDocsEqual(t, docs[5:9], res)
}

func TestPipelineGroupSplit(t *testing.T) {
	t.Parallel()

	group := func(t *testing.T) aggregations.Stage {
		t.Helper()

		s, err := stages.NewStage(must.NotFail(types.NewDocument(
			"$group", must.NotFail(types.NewDocument(
				"_id", "$k",
				"s", must.NotFail(types.NewDocument("$sum", "$v")),
			)),
		)))
		require.NoError(t, err)

		return s
	}

	shardDocs := map[string][]*types.Document{
		"a": {must.NotFail(types.NewDocument("k", "x", "v", int32(1)))},
		"b": {
			must.NotFail(types.NewDocument("k", "y", "v", int32(2))),
			must.NotFail(types.NewDocument("k", "x", "v", int32(3))),
		},
	}

	// run the shard half of the pipeline on each shard
	shardResults := map[string]*types.Array{}

	for shard, docs := range shardDocs {
		p, err := aggregations.NewPipeline(
			[]aggregations.Stage{newArraySource(docs...), group(t)}, nil,
		)
		require.NoError(t, err)

		shardHalf, _, ok := p.Split()
		require.True(t, ok)

		require.NoError(t, shardHalf.Optimize())
		res, err := shardHalf.Run(context.Background())
		require.NoError(t, err)

		shardHalf.Dispose()

		arr := types.MakeArray(len(res))
		for _, doc := range res {
			must.NoError(arr.Append(doc))
		}

		shardResults[shard] = arr
	}

	// run the router half over the merged shard results
	p, err := aggregations.NewPipeline(
		[]aggregations.Stage{newArraySource(), group(t)}, nil,
	)
	require.NoError(t, err)

	_, routerHalf, ok := p.Split()
	require.True(t, ok)

	routerHalf.Prepend(stages.NewShardMergeSource(shardResults))

	require.NoError(t, routerHalf.Optimize())
	merged, err := routerHalf.Run(context.Background())
	require.NoError(t, err)

	routerHalf.Dispose()

	require.Len(t, merged, 2)

	bySum := map[string]int32{}
	for _, doc := range merged {
		bySum[must.NotFail(doc.Get("_id")).(string)] = must.NotFail(doc.Get("s")).(int32)
	}

	assert.Equal(t, map[string]int32{"x": 4, "y": 2}, bySum)
}

func TestPipelineSplitUnsplittable(t *testing.T) {
	t.Parallel()

	p, err := aggregations.NewPipeline([]aggregations.Stage{
		newArraySource(),
		stages.NewOut("target", nil, nil),
	}, nil)
	require.NoError(t, err)

	_, _, ok := p.Split()
	assert.False(t, ok, "a pipeline with a sink must not split")
}

func TestPipelineSplitNoSplittableStage(t *testing.T) {
	t.Parallel()

	docs := []*types.Document{
		must.NotFail(types.NewDocument("n", int32(1))),
		must.NotFail(types.NewDocument("n", int32(2))),
	}

	p, err := aggregations.NewPipeline([]aggregations.Stage{
		newArraySource(docs...),
		must.NotFail(stages.NewLimit(1)),
	}, nil)
	require.NoError(t, err)

	shardHalf, routerHalf, ok := p.Split()
	require.True(t, ok)

	// the whole pipeline runs on the shards
	require.NoError(t, shardHalf.Optimize())
	res, err := shardHalf.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res, 1)

	// the router merely merges
	arr := types.MakeArray(len(res))
	for _, doc := range res {
		must.NoError(arr.Append(doc))
	}

	routerHalf.Prepend(stages.NewShardMergeSource(map[string]*types.Array{"a": arr}))
	require.NoError(t, routerHalf.Optimize())
	merged, err := routerHalf.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, merged, 1)
}

func TestPipelineMissingDependency(t *testing.T) {
	t.Parallel()

	project, err := stages.NewProject(must.NotFail(types.NewDocument("b", int32(1), "_id", int32(0))))
	require.NoError(t, err)

	group, err := stages.NewStage(must.NotFail(types.NewDocument(
		"$group", must.NotFail(types.NewDocument(
			"_id", "$x",
		)),
	)))
	require.NoError(t, err)

	p, err := aggregations.NewPipeline([]aggregations.Stage{
		newArraySource(),
		project,
		group,
	}, nil)
	require.NoError(t, err)

	defer p.Dispose()

	err = p.Optimize()
	require.Error(t, err)
	assert.Equal(t, aggregations.ErrMissingDependency, aggregations.ErrorCodeOf(err))
}

func TestPipelineExplain(t *testing.T) {
	t.Parallel()

	docs := []*types.Document{
		must.NotFail(types.NewDocument("n", int32(1))),
		must.NotFail(types.NewDocument("n", int32(2))),
	}

	res := runPipeline(t, []aggregations.Stage{
		newArraySource(docs...),
		must.NotFail(stages.NewLimit(1)),
	}, &aggregations.Options{Explain: true})

	require.Len(t, res, 2, "explain surfaces one document per stage")
	assert.Equal(t, "$documents", res[0].Command())
	assert.Equal(t, "$limit", res[1].Command())
	assert.Equal(t, int64(1), must.NotFail(res[1].Get("nOut")))
}

func TestPipelineInterrupted(t *testing.T) {
	t.Parallel()

	p, err := aggregations.NewPipeline([]aggregations.Stage{
		newArraySource(must.NotFail(types.NewDocument("n", int32(1)))),
	}, nil)
	require.NoError(t, err)

	defer p.Dispose()

	require.NoError(t, p.Optimize())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, aggregations.ErrInterrupted, aggregations.ErrorCodeOf(err))
}

func TestPipelineMetrics(t *testing.T) {
	t.Parallel()

	metrics := aggregations.NewMetrics()

	registry := prometheus.NewPedanticRegistry()
	require.NoError(t, registry.Register(metrics))

	runPipeline(t, []aggregations.Stage{
		newArraySource(must.NotFail(types.NewDocument("n", int32(1)))),
	}, &aggregations.Options{Metrics: metrics})

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestPipelineSortCoalesce(t *testing.T) {
	t.Parallel()

	docs := []*types.Document{
		must.NotFail(types.NewDocument("a", int32(1), "b", int32(2))),
		must.NotFail(types.NewDocument("a", int32(2), "b", int32(1))),
	}

	// adjacent sorts coalesce to the last one
	res := runPipeline(t, []aggregations.Stage{
		newArraySource(docs...),
		stages.NewSort([]stages.SortKey{{Path: types.NewPath("a"), Order: types.Ascending}}),
		stages.NewSort([]stages.SortKey{{Path: types.NewPath("b"), Order: types.Ascending}}),
	}, nil)

	assert.Equal(t, int32(1), must.NotFail(res[0].Get("b")))
	assert.Equal(t, int32(2), must.NotFail(res[1].Get("b")))
}

func TestPipelineUnwindEndToEnd(t *testing.T) {
	t.Parallel()

	res := runPipeline(t, []aggregations.Stage{
		newArraySource(
			must.NotFail(types.NewDocument("a", must.NotFail(types.NewArray(int32(1), int32(2))))),
			must.NotFail(types.NewDocument("a", must.NotFail(types.NewArray()))),
			must.NotFail(types.NewDocument("b", int32(1))),
			must.NotFail(types.NewDocument("a", "x")),
		),
		stages.NewUnwind(types.NewPath("a")),
	}, nil)

	assertDocsEqual(t, []*types.Document{
		must.NotFail(types.NewDocument("a", int32(1))),
		must.NotFail(types.NewDocument("a", int32(2))),
		must.NotFail(types.NewDocument("a", "x")),
	}, res)
}

func TestPipelineRejectsEmpty(t *testing.T) {
	t.Parallel()

	_, err := aggregations.NewPipeline(nil, nil)
	require.Error(t, err)
	assert.Equal(t, aggregations.ErrInvalidSpec, aggregations.ErrorCodeOf(err))
}

func TestPipelineLinkTwicePanics(t *testing.T) {
	t.Parallel()

	p, err := aggregations.NewPipeline([]aggregations.Stage{
		newArraySource(),
		must.NotFail(stages.NewLimit(1)),
	}, nil)
	require.NoError(t, err)

	p.Link()
	assert.Panics(t, func() { p.Link() })
}
