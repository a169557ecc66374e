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
	"strings"

	"github.com/docpipe/docpipe/internal/aggregations"
	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/lazyerrors"
	"github.com/docpipe/docpipe/internal/util/must"
)

// unwind represents the $unwind stage: it flattens the array at the
// configured path, emitting one document per element.
//
// Each emitted document is a partial deep clone: only the documents along the
// unwind path are copied, sibling values are shared with the input.
type unwind struct {
	base

	path types.Path

	inDoc *types.Document
	arr   *types.Array
	idx   int
}

// newUnwind creates a new $unwind stage.
func newUnwind(stage *types.Document) (aggregations.Stage, error) {
	field, ok := must.NotFail(stage.Get("$unwind")).(string)
	if !ok {
		return nil, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrInvalidSpec,
			"expected a string as specification for $unwind stage",
			"$unwind (stage)",
		)
	}

	if field == "" {
		return nil, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrInvalidSpec,
			"no path specified to $unwind stage",
			"$unwind (stage)",
		)
	}

	if !strings.HasPrefix(field, "$") {
		return nil, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrInvalidSpec,
			fmt.Sprintf("path option to $unwind stage should be prefixed with a '$': %v", field),
			"$unwind (stage)",
		)
	}

	path, err := types.NewPathFromString(strings.TrimPrefix(field, "$"))
	if err != nil {
		return nil, aggregations.NewCommandError(aggregations.ErrInvalidSpec, lazyerrors.Error(err))
	}

	return NewUnwind(path), nil
}

// NewUnwind creates an unwind stage over the given field path.
func NewUnwind(path types.Path) aggregations.Stage {
	return &unwind{path: path}
}

// Advance implements aggregations.Stage interface.
// It steps the element index and lazily pulls the next input document when
// the current array is exhausted.
func (u *unwind) Advance(ctx context.Context) (bool, error) {
	if ok, err := u.checkAdvance(ctx); !ok {
		return false, err
	}

	for {
		if u.arr != nil && u.idx < u.arr.Len() {
			elem := must.NotFail(u.arr.Get(u.idx))
			u.idx++

			out := u.inDoc.CloneAlongPath(u.path)
			if err := out.SetByPath(u.path, elem); err != nil {
				return false, lazyerrors.Error(err)
			}

			u.setCurrent(out)

			return true, nil
		}

		u.arr = nil

		doc, err := u.pullUpstream(ctx)
		if err != nil {
			return false, err
		}

		if doc == nil {
			u.setEOF()
			return false, nil
		}

		v, err := doc.GetByPath(u.path)
		if err != nil {
			var pathErr *types.PathError
			if errors.As(err, &pathErr) && pathErr.Code() != types.ErrPathElementEmpty {
				// missing path drops the document
				continue
			}

			return false, lazyerrors.Error(err)
		}

		switch v := v.(type) {
		case *types.Array:
			if v.Len() == 0 {
				continue
			}

			u.inDoc = doc
			u.arr = v
			u.idx = 0

		case types.NullType:
			// nulls are dropped

		default:
			// non-array values pass through unchanged
			u.setCurrent(doc)

			return true, nil
		}
	}
}

// ManageDependencies implements aggregations.Stage interface.
func (u *unwind) ManageDependencies(tracker *aggregations.DependencyTracker) error {
	tracker.Add(u.path)

	return nil
}

// Serialize implements aggregations.Stage interface.
func (u *unwind) Serialize(explain bool) *types.Document {
	return u.serializeStage("$unwind", "$"+u.path.String(), explain)
}

// check interfaces
var (
	_ aggregations.Stage = (*unwind)(nil)
)
