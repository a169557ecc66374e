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

	"github.com/docpipe/docpipe/internal/aggregations"
	"github.com/docpipe/docpipe/internal/aggregations/matcher"
	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/must"
)

// match represents the $match stage: it drives the upstream until it finds an
// accepted document or hits EOF.
//
// It has two variants behind one accept function: the expression variant
// evaluates a compiled boolean expression, the matcher variant the legacy
// predicate. Both export a best-effort pushdown representation.
type match struct {
	base

	// exactly one of expr and m is set
	expr aggregations.Expression
	m    *matcher.Matcher
}

// newMatch creates a new matcher-variant $match stage from a specification document.
func newMatch(stage *types.Document) (aggregations.Stage, error) {
	filter, ok := must.NotFail(stage.Get("$match")).(*types.Document)
	if !ok {
		return nil, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrInvalidSpec,
			"the match filter must be an expression in an object",
			"$match (stage)",
		)
	}

	m, err := matcher.New(filter)
	if err != nil {
		return nil, err
	}

	return &match{m: m}, nil
}

// NewMatcherFilter creates a filter stage over a legacy matcher predicate.
func NewMatcherFilter(m *matcher.Matcher) aggregations.Stage {
	return &match{m: m}
}

// NewExpressionFilter creates a filter stage over a compiled boolean expression.
func NewExpressionFilter(expr aggregations.Expression) aggregations.Stage {
	return &match{expr: expr}
}

// accept evaluates the filter for the given document.
func (m *match) accept(doc *types.Document) (bool, error) {
	if m.m != nil {
		return m.m.Match(doc)
	}

	v, err := m.expr.Evaluate(doc)
	if err != nil {
		return false, err
	}

	return aggregations.Truthy(v), nil
}

// Advance implements aggregations.Stage interface.
func (m *match) Advance(ctx context.Context) (bool, error) {
	if ok, err := m.checkAdvance(ctx); !ok {
		return false, err
	}

	for {
		doc, err := m.pullUpstream(ctx)
		if err != nil {
			return false, err
		}

		if doc == nil {
			m.setEOF()
			return false, nil
		}

		matches, err := m.accept(doc)
		if err != nil {
			return false, err
		}

		if matches {
			m.setCurrent(doc)
			return true, nil
		}
	}
}

// Optimize implements aggregations.Stage interface.
func (m *match) Optimize() {
	if m.expr != nil {
		m.expr = m.expr.Optimize()
	}
}

// Coalesce implements aggregations.Stage interface.
// Two adjacent expression filters combine via logical AND into a single filter.
func (m *match) Coalesce(next aggregations.Stage) bool {
	other, ok := next.(*match)
	if !ok || m.expr == nil || other.expr == nil {
		return false
	}

	m.expr = aggregations.NewAnd(m.expr, other.expr)

	return true
}

// ManageDependencies implements aggregations.Stage interface.
// The filter adds every field path its predicate reads to the tracker.
func (m *match) ManageDependencies(tracker *aggregations.DependencyTracker) error {
	if m.expr != nil {
		for _, path := range m.expr.ReferencedPaths() {
			tracker.Add(path)
		}

		return nil
	}

	for _, key := range m.m.Filter().Keys() {
		if key[0] == '$' {
			// connectives make the referenced set unknown; require everything
			tracker.SetNeedWholeDocument(true)
			return nil
		}

		path, err := types.NewPathFromString(key)
		if err != nil {
			return aggregations.NewCommandError(aggregations.ErrInvalidSpec, err)
		}

		tracker.Add(path)
	}

	return nil
}

// MatcherRepresentation implements aggregations.MatcherRepresenter interface.
// It returns the pushdown-compatible predicate object, or nil if the filter
// cannot be represented as one.
func (m *match) MatcherRepresentation() *types.Document {
	if m.m != nil {
		return m.m.Filter()
	}

	if r, ok := m.expr.(aggregations.MatcherRepresenter); ok {
		return r.MatcherRepresentation()
	}

	return nil
}

// Serialize implements aggregations.Stage interface.
func (m *match) Serialize(explain bool) *types.Document {
	var spec any

	switch {
	case m.m != nil:
		spec = m.m.Filter()
	default:
		if pred := m.MatcherRepresentation(); pred != nil {
			spec = must.NotFail(types.NewDocument("$expr", pred))
		} else {
			spec = must.NotFail(types.NewDocument("$expr", "<opaque>"))
		}
	}

	return m.serializeStage("$match", spec, explain)
}

// check interfaces
var (
	_ aggregations.Stage              = (*match)(nil)
	_ aggregations.MatcherRepresenter = (*match)(nil)
)
