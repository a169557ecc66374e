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

package aggregations

import (
	"errors"
	"strings"

	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/lazyerrors"
	"github.com/docpipe/docpipe/internal/util/must"
)

// Expression evaluates against a document and yields a value.
//
// The engine treats expressions as opaque beyond these operations;
// stages only evaluate them, simplify them, and ask which paths they read.
type Expression interface {
	// Evaluate returns the expression value for the given document.
	Evaluate(doc *types.Document) (any, error)

	// Optimize returns a simplified equivalent expression.
	Optimize() Expression

	// ReferencedPaths returns the set of field paths the expression reads.
	ReferencedPaths() []types.Path
}

// MatcherRepresenter is an optional Expression extension for expressions that
// can be converted to a pushdown-compatible predicate document.
// A nil result means "not representable".
type MatcherRepresenter interface {
	MatcherRepresentation() *types.Document
}

// pathExpression is a field path reference like "$a.b".
type pathExpression struct {
	path types.Path
}

// NewPathExpression creates an expression that resolves the given path,
// yielding null for missing paths.
func NewPathExpression(path types.Path) Expression {
	return &pathExpression{path: path}
}

// ParseExpression parses a "$"-prefixed field path reference.
func ParseExpression(s string) (Expression, error) {
	if !strings.HasPrefix(s, "$") {
		return NewConstant(s), nil
	}

	path, err := types.NewPathFromString(strings.TrimPrefix(s, "$"))
	if err != nil {
		return nil, NewCommandError(ErrInvalidSpec, lazyerrors.Error(err))
	}

	return NewPathExpression(path), nil
}

// Evaluate implements Expression interface.
func (e *pathExpression) Evaluate(doc *types.Document) (any, error) {
	v, err := doc.GetByPath(e.path)
	if err != nil {
		var pathErr *types.PathError
		if errors.As(err, &pathErr) && pathErr.Code() != types.ErrPathElementEmpty {
			// missing or non-document on the way
			return types.Null, nil
		}

		return nil, NewCommandError(ErrEvaluationError, lazyerrors.Error(err))
	}

	return v, nil
}

// Optimize implements Expression interface.
func (e *pathExpression) Optimize() Expression {
	return e
}

// ReferencedPaths implements Expression interface.
func (e *pathExpression) ReferencedPaths() []types.Path {
	return []types.Path{e.path}
}

// Path returns the referenced path.
func (e *pathExpression) Path() types.Path {
	return e.path
}

// constant is a literal value expression.
type constant struct {
	value any
}

// NewConstant creates an expression that yields the given value for any document.
func NewConstant(value any) Expression {
	return &constant{value: value}
}

// Evaluate implements Expression interface.
func (e *constant) Evaluate(*types.Document) (any, error) {
	return e.value, nil
}

// Optimize implements Expression interface.
func (e *constant) Optimize() Expression {
	return e
}

// ReferencedPaths implements Expression interface.
func (e *constant) ReferencedPaths() []types.Path {
	return nil
}

// ComparisonOp is an operator of a comparison expression.
type ComparisonOp string

// Comparison operators.
const (
	OpEq  = ComparisonOp("$eq")
	OpNe  = ComparisonOp("$ne")
	OpGt  = ComparisonOp("$gt")
	OpGte = ComparisonOp("$gte")
	OpLt  = ComparisonOp("$lt")
	OpLte = ComparisonOp("$lte")
)

// comparison compares a field path value against a constant.
type comparison struct {
	path  types.Path
	op    ComparisonOp
	value any
}

// NewComparison creates a boolean expression comparing the path value against
// the given constant.
func NewComparison(path types.Path, op ComparisonOp, value any) Expression {
	return &comparison{
		path:  path,
		op:    op,
		value: value,
	}
}

// Evaluate implements Expression interface.
func (e *comparison) Evaluate(doc *types.Document) (any, error) {
	v, err := doc.GetByPath(e.path)
	if err != nil {
		v = types.Null
	}

	result := types.Compare(v, e.value)

	switch e.op {
	case OpEq:
		return result == types.Equal, nil
	case OpNe:
		return result != types.Equal, nil
	case OpGt:
		return result == types.Greater, nil
	case OpGte:
		return result != types.Less, nil
	case OpLt:
		return result == types.Less, nil
	case OpLte:
		return result != types.Greater, nil
	default:
		return nil, NewCommandErrorMsg(ErrEvaluationError, "unknown comparison operator "+string(e.op))
	}
}

// Optimize implements Expression interface.
func (e *comparison) Optimize() Expression {
	return e
}

// ReferencedPaths implements Expression interface.
func (e *comparison) ReferencedPaths() []types.Path {
	return []types.Path{e.path}
}

// MatcherRepresentation implements MatcherRepresenter interface.
func (e *comparison) MatcherRepresentation() *types.Document {
	return must.NotFail(types.NewDocument(
		e.path.String(), must.NotFail(types.NewDocument(string(e.op), e.value)),
	))
}

// and is a logical conjunction of expressions, the product of filter coalescing.
type and struct {
	exprs []Expression
}

// NewAnd creates a boolean expression that is true iff all the given
// expressions are truthy.
func NewAnd(exprs ...Expression) Expression {
	return &and{exprs: exprs}
}

// Evaluate implements Expression interface.
func (e *and) Evaluate(doc *types.Document) (any, error) {
	for _, sub := range e.exprs {
		v, err := sub.Evaluate(doc)
		if err != nil {
			return nil, err
		}

		if !Truthy(v) {
			return false, nil
		}
	}

	return true, nil
}

// Optimize implements Expression interface.
func (e *and) Optimize() Expression {
	if len(e.exprs) == 1 {
		return e.exprs[0].Optimize()
	}

	exprs := make([]Expression, len(e.exprs))
	for i, sub := range e.exprs {
		exprs[i] = sub.Optimize()
	}

	return &and{exprs: exprs}
}

// ReferencedPaths implements Expression interface.
func (e *and) ReferencedPaths() []types.Path {
	var res []types.Path
	for _, sub := range e.exprs {
		res = append(res, sub.ReferencedPaths()...)
	}

	return res
}

// MatcherRepresentation implements MatcherRepresenter interface.
// The conjunction is representable iff every member is.
func (e *and) MatcherRepresentation() *types.Document {
	preds := types.MakeArray(len(e.exprs))

	for _, sub := range e.exprs {
		r, ok := sub.(MatcherRepresenter)
		if !ok {
			return nil
		}

		pred := r.MatcherRepresentation()
		if pred == nil {
			return nil
		}

		must.NoError(preds.Append(pred))
	}

	return must.NotFail(types.NewDocument("$and", preds))
}

// Truthy returns the boolean value of an expression result:
// null, false, and numeric zero are false, everything else is true.
func Truthy(v any) bool {
	switch v := v.(type) {
	case types.NullType:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case int32:
		return v != 0
	case int64:
		return v != 0
	default:
		return true
	}
}

// check interfaces
var (
	_ Expression         = (*pathExpression)(nil)
	_ Expression         = (*constant)(nil)
	_ Expression         = (*comparison)(nil)
	_ Expression         = (*and)(nil)
	_ MatcherRepresenter = (*comparison)(nil)
	_ MatcherRepresenter = (*and)(nil)
)
