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

// limit represents the $limit stage.
type limit struct {
	base

	limit int64
	n     int64
}

// newLimit creates a new $limit stage.
func newLimit(stage *types.Document) (aggregations.Stage, error) {
	l, err := getWholeNumberParam(must.NotFail(stage.Get("$limit")))
	if err != nil {
		return nil, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrInvalidSpec,
			"the limit must be specified as a number",
			"$limit (stage)",
		)
	}

	return NewLimit(l)
}

// NewLimit creates a limit stage emitting at most n documents.
func NewLimit(n int64) (aggregations.Stage, error) {
	if n <= 0 {
		return nil, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrInvalidSpec,
			fmt.Sprintf("the limit must be positive, got %d", n),
			"$limit (stage)",
		)
	}

	return &limit{limit: n}, nil
}

// Advance implements aggregations.Stage interface.
func (l *limit) Advance(ctx context.Context) (bool, error) {
	if ok, err := l.checkAdvance(ctx); !ok {
		return false, err
	}

	if l.n >= l.limit {
		l.setEOF()
		return false, nil
	}

	doc, err := l.pullUpstream(ctx)
	if err != nil {
		return false, err
	}

	if doc == nil {
		l.setEOF()
		return false, nil
	}

	l.n++
	l.setCurrent(doc)

	return true, nil
}

// Coalesce implements aggregations.Stage interface.
// Adjacent limits combine to the smaller one.
func (l *limit) Coalesce(next aggregations.Stage) bool {
	other, ok := next.(*limit)
	if !ok {
		return false
	}

	if other.limit < l.limit {
		l.limit = other.limit
	}

	return true
}

// Serialize implements aggregations.Stage interface.
func (l *limit) Serialize(explain bool) *types.Document {
	return l.serializeStage("$limit", l.limit, explain)
}

// getWholeNumberParam extracts an int64 from a numeric specification value.
func getWholeNumberParam(v any) (int64, error) {
	switch v := v.(type) {
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("%v is not a whole number", v)
		}

		return int64(v), nil
	default:
		return 0, fmt.Errorf("%v is not a number", v)
	}
}

// check interfaces
var (
	_ aggregations.Stage = (*limit)(nil)
)
