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
	"errors"
	"fmt"
	"sort"

	"github.com/docpipe/docpipe/internal/aggregations"
	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/iterator"
	"github.com/docpipe/docpipe/internal/util/lazyerrors"
	"github.com/docpipe/docpipe/internal/util/must"
)

// SortKey is one component of the sort order.
type SortKey struct {
	Path  types.Path
	Order types.SortType
}

// sortStage represents the $sort stage.
//
// On first pull it drains its upstream into memory and sorts it stably;
// memory is proportional to the input size.
type sortStage struct {
	base

	keys []SortKey

	// top-k bound signalled by a following limit, 0 means none
	bound int64

	populated bool
	docs      []*types.Document
	iter      iterator.Interface[struct{}, *types.Document]
}

// newSort creates a new $sort stage.
func newSort(stage *types.Document) (aggregations.Stage, error) {
	fields, ok := must.NotFail(stage.Get("$sort")).(*types.Document)
	if !ok || fields.Len() == 0 {
		return nil, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrInvalidSpec,
			"the $sort key specification must be a non-empty object",
			"$sort (stage)",
		)
	}

	var keys []SortKey

	iter := fields.Iterator()
	defer iter.Close()

	for {
		key, v, err := iter.Next()
		if errors.Is(err, iterator.ErrIteratorDone) {
			break
		}

		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		path, err := types.NewPathFromString(key)
		if err != nil {
			return nil, aggregations.NewCommandError(aggregations.ErrInvalidSpec, lazyerrors.Error(err))
		}

		var order types.SortType

		switch v := v.(type) {
		case int32:
			order = types.SortType(v)
		case int64:
			order = types.SortType(v)
		case float64:
			order = types.SortType(v)
		default:
			order = 0
		}

		if order != types.Ascending && order != types.Descending {
			return nil, aggregations.NewCommandErrorMsgWithArgument(
				aggregations.ErrInvalidSpec,
				fmt.Sprintf("$sort key ordering must be 1 (for ascending) or -1 (for descending), got %v", v),
				"$sort (stage)",
			)
		}

		keys = append(keys, SortKey{Path: path, Order: order})
	}

	return &sortStage{keys: keys}, nil
}

// NewSort creates a sort stage over the given key components.
func NewSort(keys []SortKey) aggregations.Stage {
	return &sortStage{keys: keys}
}

// Advance implements aggregations.Stage interface.
func (s *sortStage) Advance(ctx context.Context) (bool, error) {
	if ok, err := s.checkAdvance(ctx); !ok {
		return false, err
	}

	if !s.populated {
		if err := s.populate(ctx); err != nil {
			return false, err
		}

		s.populated = true
	}

	_, doc, err := s.iter.Next()
	if err != nil {
		if errors.Is(err, iterator.ErrIteratorDone) {
			s.setEOF()
			return false, nil
		}

		return false, lazyerrors.Error(err)
	}

	s.setCurrent(doc)

	return true, nil
}

// populate drains the upstream and sorts the documents in place.
func (s *sortStage) populate(ctx context.Context) error {
	for {
		doc, err := s.pullUpstream(ctx)
		if err != nil {
			return err
		}

		if doc == nil {
			break
		}

		s.docs = append(s.docs, doc)
	}

	sort.SliceStable(s.docs, func(i, j int) bool {
		return s.less(s.docs[i], s.docs[j])
	})

	if s.bound > 0 && int64(len(s.docs)) > s.bound {
		s.docs = s.docs[:s.bound]
	}

	s.iter = iterator.Values(iterator.ForSlice(s.docs))

	return nil
}

// less compares two documents by the sort keys in order.
// A missing value sorts before all present values; the result is inverted for
// descending keys. Fully tied documents retain their input order.
func (s *sortStage) less(a, b *types.Document) bool {
	for _, key := range s.keys {
		va, errA := a.GetByPath(key.Path)
		vb, errB := b.GetByPath(key.Path)

		var result types.CompareResult

		switch {
		case errA != nil && errB != nil:
			result = types.Equal
		case errA != nil:
			result = types.Less
			if key.Order == types.Descending {
				result = types.Greater
			}
		case errB != nil:
			result = types.Greater
			if key.Order == types.Descending {
				result = types.Less
			}
		default:
			result = types.CompareOrderForSort(va, vb, key.Order)
		}

		if result != types.Equal {
			return result == types.Less
		}
	}

	return false
}

// Dispose implements aggregations.Stage interface.
func (s *sortStage) Dispose() {
	if s.iter != nil {
		s.iter.Close()
	}

	s.base.Dispose()
}

// Coalesce implements aggregations.Stage interface.
//
// An adjacent sort supersedes the receiver (the earlier order is
// unobservable). A following limit stays in the pipeline but signals a top-k
// bound the sort uses to cut memory.
func (s *sortStage) Coalesce(next aggregations.Stage) bool {
	switch next := next.(type) {
	case *sortStage:
		s.keys = next.keys
		s.bound = 0

		return true

	case *limit:
		if s.bound == 0 || next.limit < s.bound {
			s.bound = next.limit
		}

		return false

	default:
		return false
	}
}

// ManageDependencies implements aggregations.Stage interface.
func (s *sortStage) ManageDependencies(tracker *aggregations.DependencyTracker) error {
	for _, key := range s.keys {
		tracker.Add(key.Path)
	}

	return nil
}

// ShardSource implements aggregations.SplittableStage interface.
// The shard half is empty: the router performs the full sort.
// TODO push a partial shard sort with a router-side merge.
func (s *sortStage) ShardSource() aggregations.Stage {
	return nil
}

// RouterSource implements aggregations.SplittableStage interface.
func (s *sortStage) RouterSource() aggregations.Stage {
	return &sortStage{
		keys:  s.keys,
		bound: s.bound,
	}
}

// Serialize implements aggregations.Stage interface.
func (s *sortStage) Serialize(explain bool) *types.Document {
	spec := must.NotFail(types.NewDocument())

	for _, key := range s.keys {
		must.NoError(spec.Set(key.Path.String(), int32(key.Order)))
	}

	return s.serializeStage("$sort", spec, explain)
}

// check interfaces
var (
	_ aggregations.Stage           = (*sortStage)(nil)
	_ aggregations.SplittableStage = (*sortStage)(nil)
)
