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
	"math"
	"math/big"

	"github.com/docpipe/docpipe/internal/aggregations"
	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/must"
)

// sum represents the $sum accumulator.
type sum struct {
	numbers []any
}

// newSum creates a new $sum accumulator.
func newSum() Accumulator {
	return new(sum)
}

// Feed implements Accumulator interface.
// Non-number values are ignored.
func (s *sum) Feed(v any) error {
	switch v.(type) {
	case float64, int32, int64:
		s.numbers = append(s.numbers, v)
	}

	return nil
}

// Result implements Accumulator interface.
func (s *sum) Result() any {
	return sumNumbers(s.numbers...)
}

// Partial implements Combinable interface.
func (s *sum) Partial() any {
	return s.Result()
}

// Combine implements Combinable interface.
func (s *sum) Combine(partial any) error {
	return s.Feed(partial)
}

// avg represents the $avg accumulator.
//
// Its shard-side partial state is a {s, c} document so the router can merge
// sums and counts instead of averaging averages.
type avg struct {
	sum
	count int64
}

// newAvg creates a new $avg accumulator.
func newAvg() Accumulator {
	return new(avg)
}

// Feed implements Accumulator interface.
func (a *avg) Feed(v any) error {
	switch v.(type) {
	case float64, int32, int64:
		a.count++
	}

	return a.sum.Feed(v)
}

// Result implements Accumulator interface.
// The average of no numbers is null.
func (a *avg) Result() any {
	if a.count == 0 {
		return types.Null
	}

	var total float64

	switch s := sumNumbers(a.numbers...).(type) {
	case float64:
		total = s
	case int32:
		total = float64(s)
	case int64:
		total = float64(s)
	}

	return total / float64(a.count)
}

// Partial implements Combinable interface.
func (a *avg) Partial() any {
	return must.NotFail(types.NewDocument(
		"s", sumNumbers(a.numbers...),
		"c", a.count,
	))
}

// Combine implements Combinable interface.
func (a *avg) Combine(partial any) error {
	doc, ok := partial.(*types.Document)
	if !ok {
		return aggregations.NewCommandErrorMsg(
			aggregations.ErrTypeMismatch,
			"$avg partial state must be a document",
		)
	}

	s, err := doc.Get("s")
	if err != nil {
		return aggregations.NewCommandError(aggregations.ErrTypeMismatch, err)
	}

	c, err := doc.Get("c")
	if err != nil {
		return aggregations.NewCommandError(aggregations.ErrTypeMismatch, err)
	}

	count, ok := c.(int64)
	if !ok {
		return aggregations.NewCommandErrorMsg(
			aggregations.ErrTypeMismatch,
			"$avg partial count must be a long",
		)
	}

	a.count += count

	return a.sum.Feed(s)
}

// sumNumbers accumulates numbers and returns the result of summation.
// The result has the same type as the input, except when the result cannot be
// represented accurately: then int32 is promoted to int64, and int64 to float64.
func sumNumbers(vs ...any) any {
	// use big.Int to accumulate values larger than math.MaxInt64.
	intSum := big.NewInt(0)
	floatSum := new(big.Float)

	var hasFloat64, hasInt64 bool

	for _, v := range vs {
		switch v := v.(type) {
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return v
			}

			hasFloat64 = true

			floatSum = floatSum.Add(floatSum, big.NewFloat(v))
		case int32:
			intSum.Add(intSum, big.NewInt(int64(v)))
		case int64:
			hasInt64 = true

			intSum.Add(intSum, big.NewInt(v))
		default:
			// ignore non-number
		}
	}

	if hasFloat64 || !intSum.IsInt64() {
		// ignore accuracy because big.Float keeps full precision until here.
		float, _ := floatSum.Add(floatSum, new(big.Float).SetInt(intSum)).Float64()

		return float
	}

	integer := intSum.Int64()

	if !hasInt64 && integer <= math.MaxInt32 && integer >= math.MinInt32 {
		// convert to int32 if input has no int64 and can be represented in int32.
		return int32(integer)
	}

	return integer
}

// check interfaces
var (
	_ Combinable = (*sum)(nil)
	_ Combinable = (*avg)(nil)
)
