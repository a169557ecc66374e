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

package accumulators

import (
	"github.com/docpipe/docpipe/internal/aggregations"
	"github.com/docpipe/docpipe/internal/types"
)

// push represents the $push and $addToSet accumulators.
type push struct {
	values *types.Array
	set    bool
}

// newPush creates a new $push accumulator.
func newPush() Accumulator {
	return &push{values: types.MakeArray(0)}
}

// newAddToSet creates a new $addToSet accumulator.
func newAddToSet() Accumulator {
	return &push{values: types.MakeArray(0), set: true}
}

// Feed implements Accumulator interface.
func (p *push) Feed(v any) error {
	if p.set && p.values.Contains(v) {
		return nil
	}

	return p.values.Append(v)
}

// Result implements Accumulator interface.
func (p *push) Result() any {
	return p.values
}

// Partial implements Combinable interface.
func (p *push) Partial() any {
	return p.values
}

// Combine implements Combinable interface.
// Partials are arrays; their elements are appended (or united for $addToSet).
func (p *push) Combine(partial any) error {
	arr, ok := partial.(*types.Array)
	if !ok {
		return aggregations.NewCommandErrorMsg(
			aggregations.ErrTypeMismatch,
			"array accumulator partial state must be an array",
		)
	}

	for i := 0; i < arr.Len(); i++ {
		v, err := arr.Get(i)
		if err != nil {
			return err
		}

		if err = p.Feed(v); err != nil {
			return err
		}
	}

	return nil
}

// check interfaces
var (
	_ Combinable = (*push)(nil)
)
