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

// documents represents the $documents source stage: it yields each element of
// a literal array as a document in order.
type documents struct {
	base

	arr *types.Array
	n   int
}

// newDocuments creates a new $documents stage.
func newDocuments(stage *types.Document) (aggregations.Stage, error) {
	arr, ok := must.NotFail(stage.Get("$documents")).(*types.Array)
	if !ok {
		return nil, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrInvalidSpec,
			"the $documents stage must be an array",
			"$documents (stage)",
		)
	}

	return &documents{arr: arr}, nil
}

// NewDocumentsSource creates a source stage over the given literal array.
func NewDocumentsSource(arr *types.Array) aggregations.Stage {
	return &documents{arr: arr}
}

// Advance implements aggregations.Stage interface.
func (d *documents) Advance(ctx context.Context) (bool, error) {
	if ok, err := d.checkAdvance(ctx); !ok {
		return false, err
	}

	if d.n >= d.arr.Len() {
		d.setEOF()
		return false, nil
	}

	v := must.NotFail(d.arr.Get(d.n))
	d.n++

	doc, ok := v.(*types.Document)
	if !ok {
		return false, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrTypeMismatch,
			fmt.Sprintf("$documents elements must be documents, got %T", v),
			"$documents (stage)",
		)
	}

	d.setCurrent(doc)

	return true, nil
}

// Serialize implements aggregations.Stage interface.
func (d *documents) Serialize(explain bool) *types.Document {
	return d.serializeStage("$documents", d.arr, explain)
}

// check interfaces
var (
	_ aggregations.Stage = (*documents)(nil)
)
