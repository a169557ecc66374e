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

import "github.com/docpipe/docpipe/internal/types"

// minmax represents the $min and $max accumulators.
type minmax struct {
	best any
	want types.CompareResult
}

// newMin creates a new $min accumulator.
func newMin() Accumulator {
	return &minmax{want: types.Less}
}

// newMax creates a new $max accumulator.
func newMax() Accumulator {
	return &minmax{want: types.Greater}
}

// Feed implements Accumulator interface.
// Null values are ignored, matching the group accumulator semantics.
func (m *minmax) Feed(v any) error {
	if _, ok := v.(types.NullType); ok {
		return nil
	}

	if m.best == nil {
		m.best = v
		return nil
	}

	if types.CompareOrder(v, m.best, types.Ascending) == m.want {
		m.best = v
	}

	return nil
}

// Result implements Accumulator interface.
func (m *minmax) Result() any {
	if m.best == nil {
		return types.Null
	}

	return m.best
}

// Partial implements Combinable interface.
func (m *minmax) Partial() any {
	return m.Result()
}

// Combine implements Combinable interface.
func (m *minmax) Combine(partial any) error {
	return m.Feed(partial)
}

// firstlast represents the $first and $last accumulators.
type firstlast struct {
	value any
	last  bool
}

// newFirst creates a new $first accumulator.
func newFirst() Accumulator {
	return &firstlast{}
}

// newLast creates a new $last accumulator.
func newLast() Accumulator {
	return &firstlast{last: true}
}

// Feed implements Accumulator interface.
func (f *firstlast) Feed(v any) error {
	if f.last || f.value == nil {
		f.value = v
	}

	return nil
}

// Result implements Accumulator interface.
func (f *firstlast) Result() any {
	if f.value == nil {
		return types.Null
	}

	return f.value
}

// Partial implements Combinable interface.
func (f *firstlast) Partial() any {
	return f.Result()
}

// Combine implements Combinable interface.
// Partials arrive in deterministic shard order, so first keeps the first
// partial and last the latest one.
func (f *firstlast) Combine(partial any) error {
	return f.Feed(partial)
}

// check interfaces
var (
	_ Combinable = (*minmax)(nil)
	_ Combinable = (*firstlast)(nil)
)
