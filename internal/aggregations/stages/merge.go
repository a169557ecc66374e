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
	"fmt"
	"sort"

	"github.com/docpipe/docpipe/internal/aggregations"
	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/must"
)

// shardMerge is the router-side source over per-shard result arrays.
//
// It yields every document of every shard's array in shard-identifier order,
// preserving each shard's own order, and tags each document with the shard it
// came from.
type shardMerge struct {
	base

	shards  []string
	results map[string]*types.Array

	shard int
	n     int
}

// NewShardMergeSource creates a source stage over the given per-shard results.
func NewShardMergeSource(results map[string]*types.Array) aggregations.Stage {
	shards := make([]string, 0, len(results))
	for shard := range results {
		shards = append(shards, shard)
	}

	sort.Strings(shards)

	return &shardMerge{
		shards:  shards,
		results: results,
	}
}

// Advance implements aggregations.Stage interface.
func (s *shardMerge) Advance(ctx context.Context) (bool, error) {
	if ok, err := s.checkAdvance(ctx); !ok {
		return false, err
	}

	for {
		if s.shard >= len(s.shards) {
			s.setEOF()
			return false, nil
		}

		arr := s.results[s.shards[s.shard]]
		if s.n >= arr.Len() {
			s.shard++
			s.n = 0

			continue
		}

		v := must.NotFail(arr.Get(s.n))
		s.n++

		doc, ok := v.(*types.Document)
		if !ok {
			return false, aggregations.NewCommandErrorMsgWithArgument(
				aggregations.ErrTypeMismatch,
				fmt.Sprintf("shard results must be documents, got %T", v),
				"$mergeCursors (stage)",
			)
		}

		tagged := doc.DeepCopy()
		must.NoError(tagged.Set("fromShard", s.shards[s.shard]))

		s.setCurrent(tagged)

		return true, nil
	}
}

// Serialize implements aggregations.Stage interface.
func (s *shardMerge) Serialize(explain bool) *types.Document {
	shards := types.MakeArray(len(s.shards))
	for _, shard := range s.shards {
		must.NoError(shards.Append(shard))
	}

	return s.serializeStage("$mergeCursors", shards, explain)
}

// check interfaces
var (
	_ aggregations.Stage = (*shardMerge)(nil)
)
