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

	"github.com/docpipe/docpipe/internal/aggregations"
	"github.com/docpipe/docpipe/internal/aggregations/stages/accumulators"
	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/iterator"
	"github.com/docpipe/docpipe/internal/util/lazyerrors"
	"github.com/docpipe/docpipe/internal/util/must"
)

// groupMode selects how the stage feeds its accumulators.
type groupMode int

const (
	// groupModeNormal runs the full aggregation and emits final results.
	groupModeNormal groupMode = iota

	// groupModeShard runs the shard half and emits partial states.
	groupModeShard

	// groupModeMerge runs the router half, combining partial states.
	groupModeMerge
)

// accumulatorSpec is one output field of the group stage.
type accumulatorSpec struct {
	outputField string
	operator    string
	factory     accumulators.NewAccumulatorFunc
	arg         aggregations.Expression
	argSpec     any
}

// groupStage represents the $group stage.
//
//	{ $group: {
//		_id: <groupExpression>,
//		<outputField>: {<accumulator>: <argumentExpression>},
//		...
//	}}
//
// On first pull the stage drains its upstream into a table of groups keyed by
// value equality, then emits one document per group in key insertion order.
type groupStage struct {
	base

	keyExpr aggregations.Expression
	keySpec any
	specs   []accumulatorSpec
	mode    groupMode

	populated bool
	groups    []groupEntry
	n         int
}

// groupEntry holds one group's key and its accumulator instances.
type groupEntry struct {
	key  any
	accs []accumulators.Accumulator
}

// newGroup creates a new $group stage.
func newGroup(stage *types.Document) (aggregations.Stage, error) {
	fields, ok := must.NotFail(stage.Get("$group")).(*types.Document)
	if !ok {
		return nil, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrInvalidSpec,
			"a group's fields must be specified in an object",
			"$group (stage)",
		)
	}

	g := new(groupStage)

	iter := fields.Iterator()
	defer iter.Close()

	for {
		field, v, err := iter.Next()
		if errors.Is(err, iterator.ErrIteratorDone) {
			break
		}

		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		if field == "_id" {
			g.keySpec = v

			if g.keyExpr, err = newGroupKeyExpression(v); err != nil {
				return nil, err
			}

			continue
		}

		accumulation, ok := v.(*types.Document)
		if !ok || accumulation.Len() == 0 {
			return nil, aggregations.NewCommandErrorMsgWithArgument(
				aggregations.ErrInvalidSpec,
				fmt.Sprintf("The field '%s' must be an accumulator object", field),
				"$group (stage)",
			)
		}

		if accumulation.Len() > 1 {
			return nil, aggregations.NewCommandErrorMsgWithArgument(
				aggregations.ErrInvalidSpec,
				fmt.Sprintf("The field '%s' must specify one accumulator", field),
				"$group (stage)",
			)
		}

		operator := accumulation.Command()

		factory, err := accumulators.New(operator)
		if err != nil {
			return nil, err
		}

		argSpec := must.NotFail(accumulation.Get(operator))

		arg, err := newGroupKeyExpression(argSpec)
		if err != nil {
			return nil, err
		}

		g.specs = append(g.specs, accumulatorSpec{
			outputField: field,
			operator:    operator,
			factory:     factory,
			arg:         arg,
			argSpec:     argSpec,
		})
	}

	if g.keyExpr == nil {
		return nil, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrInvalidSpec,
			"a group specification must include an _id",
			"$group (stage)",
		)
	}

	return g, nil
}

// newGroupKeyExpression builds an expression from a group specification value:
// "$"-prefixed strings resolve paths, documents form composite keys, and
// everything else is a constant.
func newGroupKeyExpression(v any) (aggregations.Expression, error) {
	switch v := v.(type) {
	case string:
		return aggregations.ParseExpression(v)

	case *types.Document:
		fields := map[string]aggregations.Expression{}

		for _, key := range v.Keys() {
			sub, err := newGroupKeyExpression(must.NotFail(v.Get(key)))
			if err != nil {
				return nil, err
			}

			fields[key] = sub
		}

		keys := v.Keys()

		return &compositeKeyExpression{keys: keys, fields: fields}, nil

	default:
		return aggregations.NewConstant(v), nil
	}
}

// compositeKeyExpression evaluates a document of sub-expressions into an
// ordered document used as a composite group key.
type compositeKeyExpression struct {
	keys   []string
	fields map[string]aggregations.Expression
}

// Evaluate implements aggregations.Expression interface.
func (e *compositeKeyExpression) Evaluate(doc *types.Document) (any, error) {
	res := must.NotFail(types.NewDocument())

	for _, key := range e.keys {
		v, err := e.fields[key].Evaluate(doc)
		if err != nil {
			return nil, err
		}

		if err = res.Set(key, v); err != nil {
			return nil, lazyerrors.Error(err)
		}
	}

	return res, nil
}

// Optimize implements aggregations.Expression interface.
func (e *compositeKeyExpression) Optimize() aggregations.Expression {
	for key, sub := range e.fields {
		e.fields[key] = sub.Optimize()
	}

	return e
}

// ReferencedPaths implements aggregations.Expression interface.
func (e *compositeKeyExpression) ReferencedPaths() []types.Path {
	var res []types.Path
	for _, sub := range e.fields {
		res = append(res, sub.ReferencedPaths()...)
	}

	return res
}

// NewGroup creates a group stage from a key expression and accumulator
// specifications given as (outputField, operator, argumentExpression) triples.
func NewGroup(keyExpr aggregations.Expression, fields []GroupField) (aggregations.Stage, error) {
	g := &groupStage{
		keyExpr: keyExpr,
		keySpec: "<expression>",
	}

	for _, f := range fields {
		factory, err := accumulators.New(f.Operator)
		if err != nil {
			return nil, err
		}

		g.specs = append(g.specs, accumulatorSpec{
			outputField: f.OutputField,
			operator:    f.Operator,
			factory:     factory,
			arg:         f.Argument,
			argSpec:     "<expression>",
		})
	}

	return g, nil
}

// GroupField describes one accumulated output field for NewGroup.
type GroupField struct {
	OutputField string
	Operator    string
	Argument    aggregations.Expression
}

// Advance implements aggregations.Stage interface.
func (g *groupStage) Advance(ctx context.Context) (bool, error) {
	if ok, err := g.checkAdvance(ctx); !ok {
		return false, err
	}

	if !g.populated {
		if err := g.populate(ctx); err != nil {
			return false, err
		}

		g.populated = true
	}

	if g.n >= len(g.groups) {
		g.setEOF()
		return false, nil
	}

	entry := g.groups[g.n]
	g.n++

	doc := must.NotFail(types.NewDocument("_id", entry.key))

	for i, spec := range g.specs {
		var v any
		if g.mode == groupModeShard {
			v = entry.accs[i].(accumulators.Combinable).Partial()
		} else {
			v = entry.accs[i].Result()
		}

		if err := doc.Set(spec.outputField, v); err != nil {
			return false, lazyerrors.Error(err)
		}
	}

	g.setCurrent(doc)

	return true, nil
}

// populate drains the upstream and feeds every document into its group.
func (g *groupStage) populate(ctx context.Context) error {
	for {
		doc, err := g.pullUpstream(ctx)
		if err != nil {
			return err
		}

		if doc == nil {
			return nil
		}

		if err = g.feed(doc); err != nil {
			return err
		}
	}
}

// feed accumulates one input document.
func (g *groupStage) feed(doc *types.Document) error {
	var key any
	var err error

	if g.mode == groupModeMerge {
		if key, err = doc.Get("_id"); err != nil {
			key = types.Null
		}
	} else {
		if key, err = g.keyExpr.Evaluate(doc); err != nil {
			return err
		}
	}

	entry := g.lookup(key)

	for i, spec := range g.specs {
		if g.mode == groupModeMerge {
			partial, err := doc.Get(spec.outputField)
			if err != nil {
				continue
			}

			if err = entry.accs[i].(accumulators.Combinable).Combine(partial); err != nil {
				return err
			}

			continue
		}

		v, err := spec.arg.Evaluate(doc)
		if err != nil {
			return err
		}

		if err = entry.accs[i].Feed(v); err != nil {
			return err
		}
	}

	return nil
}

// lookup finds the group for the given key, creating it on miss.
//
// The group key is a distinct value of any type including arrays and
// documents, so a comparison-based lookup is used instead of a map:
// numbers group to the same key regardless of their number type.
func (g *groupStage) lookup(key any) *groupEntry {
	for i := range g.groups {
		if types.CompareOrder(key, g.groups[i].key, types.Ascending) == types.Equal {
			return &g.groups[i]
		}
	}

	accs := make([]accumulators.Accumulator, len(g.specs))
	for i, spec := range g.specs {
		accs[i] = spec.factory()
	}

	g.groups = append(g.groups, groupEntry{
		key:  key,
		accs: accs,
	})

	return &g.groups[len(g.groups)-1]
}

// combinable reports whether every accumulator supports the associative combine.
func (g *groupStage) combinable() bool {
	for _, spec := range g.specs {
		if _, ok := spec.factory().(accumulators.Combinable); !ok {
			return false
		}
	}

	return true
}

// ShardSource implements aggregations.SplittableStage interface.
// Accumulators lacking a combine function force a no-op shard half.
func (g *groupStage) ShardSource() aggregations.Stage {
	if !g.combinable() {
		return nil
	}

	return &groupStage{
		keyExpr: g.keyExpr,
		keySpec: g.keySpec,
		specs:   g.specs,
		mode:    groupModeShard,
	}
}

// RouterSource implements aggregations.SplittableStage interface.
func (g *groupStage) RouterSource() aggregations.Stage {
	if !g.combinable() {
		// the whole group runs on the router
		return &groupStage{
			keyExpr: g.keyExpr,
			keySpec: g.keySpec,
			specs:   g.specs,
		}
	}

	return &groupStage{
		keyExpr: g.keyExpr,
		keySpec: g.keySpec,
		specs:   g.specs,
		mode:    groupModeMerge,
	}
}

// Optimize implements aggregations.Stage interface.
func (g *groupStage) Optimize() {
	g.keyExpr = g.keyExpr.Optimize()

	for i, spec := range g.specs {
		g.specs[i].arg = spec.arg.Optimize()
	}
}

// ManageDependencies implements aggregations.Stage interface.
// The group replaces documents entirely: its input requirement is exactly
// what the key and argument expressions read.
func (g *groupStage) ManageDependencies(tracker *aggregations.DependencyTracker) error {
	tracker.Clear()
	tracker.SetNeedWholeDocument(false)

	for _, path := range g.keyExpr.ReferencedPaths() {
		tracker.Add(path)
	}

	for _, spec := range g.specs {
		for _, path := range spec.arg.ReferencedPaths() {
			tracker.Add(path)
		}
	}

	return nil
}

// Serialize implements aggregations.Stage interface.
func (g *groupStage) Serialize(explain bool) *types.Document {
	spec := must.NotFail(types.NewDocument("_id", g.keySpec))

	for _, s := range g.specs {
		must.NoError(spec.Set(s.outputField, must.NotFail(types.NewDocument(s.operator, s.argSpec))))
	}

	return g.serializeStage("$group", spec, explain)
}

// check interfaces
var (
	_ aggregations.Stage           = (*groupStage)(nil)
	_ aggregations.SplittableStage = (*groupStage)(nil)
	_ aggregations.Expression      = (*compositeKeyExpression)(nil)
)
