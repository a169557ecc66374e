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

	"github.com/docpipe/docpipe/internal/aggregations"
	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/must"
)

// skip represents the $skip stage.
type skip struct {
	base

	value   int64
	skipped bool
}

// newSkip creates a new $skip stage.
func newSkip(stage *types.Document) (aggregations.Stage, error) {
	v, err := getWholeNumberParam(must.NotFail(stage.Get("$skip")))
	if err != nil {
		return nil, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrInvalidSpec,
			"the skip must be specified as a number",
			"$skip (stage)",
		)
	}

	return NewSkip(v)
}

// NewSkip creates a skip stage dropping the first n upstream documents.
// skip(0) is the identity.
func NewSkip(n int64) (aggregations.Stage, error) {
	if n < 0 {
		return nil, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrInvalidSpec,
			fmt.Sprintf("the skip must not be negative, got %d", n),
			"$skip (stage)",
		)
	}

	return &skip{value: n}, nil
}

// Advance implements aggregations.Stage interface.
func (s *skip) Advance(ctx context.Context) (bool, error) {
	if ok, err := s.checkAdvance(ctx); !ok {
		return false, err
	}

	if !s.skipped {
		s.skipped = true

		for i := int64(0); i < s.value; i++ {
			doc, err := s.pullUpstream(ctx)
			if err != nil {
				return false, err
			}

			if doc == nil {
				s.setEOF()
				return false, nil
			}
		}
	}

	doc, err := s.pullUpstream(ctx)
	if err != nil {
		return false, err
	}

	if doc == nil {
		s.setEOF()
		return false, nil
	}

	s.setCurrent(doc)

	return true, nil
}

// Coalesce implements aggregations.Stage interface.
// Adjacent skips combine to their sum.
func (s *skip) Coalesce(next aggregations.Stage) bool {
	other, ok := next.(*skip)
	if !ok {
		return false
	}

	s.value += other.value

	return true
}

// Serialize implements aggregations.Stage interface.
func (s *skip) Serialize(explain bool) *types.Document {
	return s.serializeStage("$skip", s.value, explain)
}

// check interfaces
var (
	_ aggregations.Stage = (*skip)(nil)
)
