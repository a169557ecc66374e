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

// Package accumulators provides group aggregation accumulators.
// Accumulators are different from other operators as they perform operations
// on a group of documents rather than a single document.
package accumulators

import (
	"fmt"

	"github.com/docpipe/docpipe/internal/aggregations"
)

// Accumulator is a common interface for group accumulation operators.
//
// A fresh instance is constructed per group; argument values are fed one by
// one, and Result returns the accumulated value.
type Accumulator interface {
	// Feed accumulates one argument value.
	Feed(v any) error

	// Result returns the accumulated value.
	Result() any
}

// Combinable is an Accumulator with an associative combine function, allowing
// the group stage to split between shard-local partial aggregation and a
// router-side merge.
type Combinable interface {
	Accumulator

	// Partial returns the shard-side partial state.
	Partial() any

	// Combine merges a shard-side partial state into the accumulator.
	Combine(partial any) error
}

// NewAccumulatorFunc is a factory creating a fresh accumulator instance.
type NewAccumulatorFunc func() Accumulator

// Accumulators maps all supported accumulator operators.
var Accumulators = map[string]NewAccumulatorFunc{
	// sorted alphabetically
	"$addToSet": newAddToSet,
	"$avg":      newAvg,
	"$first":    newFirst,
	"$last":     newLast,
	"$max":      newMax,
	"$min":      newMin,
	"$push":     newPush,
	"$sum":      newSum,
	// please keep sorted alphabetically
}

// New returns a factory for the given accumulator operator.
func New(operator string) (NewAccumulatorFunc, error) {
	f, ok := Accumulators[operator]
	if !ok {
		return nil, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrInvalidSpec,
			fmt.Sprintf("unknown group accumulator %q", operator),
			operator+" (accumulator)",
		)
	}

	return f, nil
}
