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

// Package matcher provides the low-level document predicate used by the match
// stage and as the pushdown target of the rewrite pass.
//
// A predicate is itself a document: field paths mapped to values (implicit
// equality) or operator documents, plus the $and and $or connectives.
package matcher

import (
	"errors"
	"fmt"

	"github.com/docpipe/docpipe/internal/aggregations"
	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/iterator"
	"github.com/docpipe/docpipe/internal/util/lazyerrors"
	"github.com/docpipe/docpipe/internal/util/must"
)

// Matcher matches documents against a predicate document.
type Matcher struct {
	filter *types.Document
}

// New validates the predicate document and returns a Matcher for it.
func New(filter *types.Document) (*Matcher, error) {
	if filter == nil {
		filter = must.NotFail(types.NewDocument())
	}

	if err := validate(filter); err != nil {
		return nil, err
	}

	return &Matcher{filter: filter}, nil
}

// Filter returns the predicate document the matcher was built from.
func (m *Matcher) Filter() *types.Document {
	return m.filter
}

// Match reports whether the given document satisfies the predicate.
func (m *Matcher) Match(doc *types.Document) (bool, error) {
	return matchDocument(doc, m.filter)
}

// operators maps the supported comparison operators to their match functions.
var operators = map[string]func(docValue, filterValue any) (bool, error){
	"$eq":  matchEq,
	"$ne":  matchNe,
	"$gt":  matchOrder(types.Greater, false),
	"$gte": matchOrder(types.Greater, true),
	"$lt":  matchOrder(types.Less, false),
	"$lte": matchOrder(types.Less, true),
	"$in":  matchIn,
}

// validate rejects predicates with unknown operators before any document is seen.
func validate(filter *types.Document) error {
	iter := filter.Iterator()
	defer iter.Close()

	for {
		key, v, err := iter.Next()
		if errors.Is(err, iterator.ErrIteratorDone) {
			return nil
		}

		if err != nil {
			return lazyerrors.Error(err)
		}

		switch key {
		case "$and", "$or":
			arr, ok := v.(*types.Array)
			if !ok {
				return aggregations.NewCommandErrorMsgWithArgument(
					aggregations.ErrInvalidSpec,
					fmt.Sprintf("%s must be an array", key),
					key,
				)
			}

			for i := 0; i < arr.Len(); i++ {
				sub, ok := must.NotFail(arr.Get(i)).(*types.Document)
				if !ok {
					return aggregations.NewCommandErrorMsgWithArgument(
						aggregations.ErrInvalidSpec,
						fmt.Sprintf("%s elements must be documents", key),
						key,
					)
				}

				if err := validate(sub); err != nil {
					return err
				}
			}

		default:
			opDoc, ok := v.(*types.Document)
			if !ok || !isOperatorDocument(opDoc) {
				continue
			}

			for _, op := range opDoc.Keys() {
				if op == "$not" {
					sub, ok := must.NotFail(opDoc.Get(op)).(*types.Document)
					if !ok {
						return aggregations.NewCommandErrorMsgWithArgument(
							aggregations.ErrInvalidSpec, "$not needs a document", key,
						)
					}

					if !isOperatorDocument(sub) {
						return aggregations.NewCommandErrorMsgWithArgument(
							aggregations.ErrInvalidSpec, "$not needs an operator document", key,
						)
					}

					continue
				}

				if _, ok := operators[op]; !ok {
					return aggregations.NewCommandErrorMsgWithArgument(
						aggregations.ErrInvalidSpec,
						fmt.Sprintf("unknown operator: %s", op),
						key,
					)
				}
			}
		}
	}
}

// isOperatorDocument reports whether all of the document's keys are operators.
func isOperatorDocument(doc *types.Document) bool {
	keys := doc.Keys()
	if len(keys) == 0 {
		return false
	}

	for _, key := range keys {
		if len(key) == 0 || key[0] != '$' {
			return false
		}
	}

	return true
}

// matchDocument checks all predicate entries against the document.
func matchDocument(doc, filter *types.Document) (bool, error) {
	iter := filter.Iterator()
	defer iter.Close()

	for {
		key, filterValue, err := iter.Next()
		if errors.Is(err, iterator.ErrIteratorDone) {
			return true, nil
		}

		if err != nil {
			return false, lazyerrors.Error(err)
		}

		var matches bool

		switch key {
		case "$and":
			matches, err = matchConnective(doc, filterValue.(*types.Array), true)
		case "$or":
			matches, err = matchConnective(doc, filterValue.(*types.Array), false)
		default:
			matches, err = matchPath(doc, key, filterValue)
		}

		if err != nil {
			return false, err
		}

		if !matches {
			return false, nil
		}
	}
}

// matchConnective evaluates $and (all=true) or $or (all=false).
func matchConnective(doc *types.Document, preds *types.Array, all bool) (bool, error) {
	for i := 0; i < preds.Len(); i++ {
		sub := must.NotFail(preds.Get(i)).(*types.Document)

		matches, err := matchDocument(doc, sub)
		if err != nil {
			return false, err
		}

		if matches != all {
			return !all, nil
		}
	}

	return all, nil
}

// matchPath evaluates one path entry of the predicate.
func matchPath(doc *types.Document, key string, filterValue any) (bool, error) {
	path, err := types.NewPathFromString(key)
	if err != nil {
		return false, aggregations.NewCommandError(aggregations.ErrInvalidSpec, lazyerrors.Error(err))
	}

	docValue, err := doc.GetByPath(path)
	if err != nil {
		docValue = types.Null
	}

	if opDoc, ok := filterValue.(*types.Document); ok && isOperatorDocument(opDoc) {
		return matchOperators(docValue, opDoc)
	}

	return matchEq(docValue, filterValue)
}

// matchOperators evaluates an operator document against the resolved value.
func matchOperators(docValue any, opDoc *types.Document) (bool, error) {
	for _, op := range opDoc.Keys() {
		filterValue := must.NotFail(opDoc.Get(op))

		if op == "$not" {
			matches, err := matchOperators(docValue, filterValue.(*types.Document))
			if err != nil {
				return false, err
			}

			if matches {
				return false, nil
			}

			continue
		}

		f := operators[op]

		matches, err := f(docValue, filterValue)
		if err != nil {
			return false, err
		}

		if !matches {
			return false, nil
		}
	}

	return true, nil
}

// matchScalarOrElements applies the given match function to the value itself,
// or to each element when the value is an array and the filter value is not.
func matchScalarOrElements(docValue, filterValue any, f func(docValue, filterValue any) (bool, error)) (bool, error) {
	arr, ok := docValue.(*types.Array)
	if !ok {
		return f(docValue, filterValue)
	}

	if _, ok = filterValue.(*types.Array); ok {
		return f(docValue, filterValue)
	}

	for i := 0; i < arr.Len(); i++ {
		matches, err := f(must.NotFail(arr.Get(i)), filterValue)
		if err != nil {
			return false, err
		}

		if matches {
			return true, nil
		}
	}

	return false, nil
}

// matchEq implements $eq and implicit equality.
func matchEq(docValue, filterValue any) (bool, error) {
	return matchScalarOrElements(docValue, filterValue, func(docValue, filterValue any) (bool, error) {
		return types.CompareOrder(docValue, filterValue, types.Ascending) == types.Equal, nil
	})
}

// matchNe implements $ne.
func matchNe(docValue, filterValue any) (bool, error) {
	matches, err := matchEq(docValue, filterValue)
	return !matches, err
}

// matchOrder returns a match function for $gt/$gte/$lt/$lte.
// Values of different type classes never match an ordering operator.
func matchOrder(want types.CompareResult, orEqual bool) func(docValue, filterValue any) (bool, error) {
	return func(docValue, filterValue any) (bool, error) {
		return matchScalarOrElements(docValue, filterValue, func(docValue, filterValue any) (bool, error) {
			if types.DetectDataType(docValue) != types.DetectDataType(filterValue) {
				return false, nil
			}

			result := types.Compare(docValue, filterValue)
			if result == want {
				return true, nil
			}

			return orEqual && result == types.Equal, nil
		})
	}
}

// matchIn implements $in.
func matchIn(docValue, filterValue any) (bool, error) {
	arr, ok := filterValue.(*types.Array)
	if !ok {
		return false, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrInvalidSpec, "$in needs an array", "$in",
		)
	}

	for i := 0; i < arr.Len(); i++ {
		matches, err := matchEq(docValue, must.NotFail(arr.Get(i)))
		if err != nil {
			return false, err
		}

		if matches {
			return true, nil
		}
	}

	return false, nil
}
