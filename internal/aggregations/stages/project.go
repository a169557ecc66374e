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
	"github.com/docpipe/docpipe/internal/util/iterator"
	"github.com/docpipe/docpipe/internal/util/lazyerrors"
	"github.com/docpipe/docpipe/internal/util/must"
)

// projectField is one entry of the projection specification.
type projectField struct {
	path types.Path

	// expr is set for computed fields only
	expr aggregations.Expression
}

// project represents the $project stage.
//
//	{ $project: {
//		<path>: <1|true to include, 0|false to exclude, "$path" to compute>,
//		...
//	}}
type project struct {
	base

	spec      *types.Document
	includes  []projectField
	excludes  []projectField
	computed  []projectField
	inclusion bool
	excludeID bool
}

// newProject creates a new $project stage.
func newProject(stage *types.Document) (aggregations.Stage, error) {
	spec, ok := must.NotFail(stage.Get("$project")).(*types.Document)
	if !ok {
		return nil, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrInvalidSpec,
			"$project specification must be an object",
			"$project (stage)",
		)
	}

	return NewProject(spec)
}

// NewProject creates a projection stage from its specification document.
func NewProject(spec *types.Document) (aggregations.Stage, error) {
	if spec.Len() == 0 {
		return nil, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrInvalidSpec,
			"Invalid $project :: caused by :: projection specification must have at least one field",
			"$project (stage)",
		)
	}

	p := &project{spec: spec}

	iter := spec.Iterator()
	defer iter.Close()

	for {
		key, v, err := iter.Next()
		if errors.Is(err, iterator.ErrIteratorDone) {
			break
		}

		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		path, err := types.NewPathFromString(key)
		if err != nil {
			return nil, aggregations.NewCommandError(aggregations.ErrInvalidSpec, lazyerrors.Error(err))
		}

		field := projectField{path: path}

		switch v := v.(type) {
		case bool:
			p.addFlag(field, v, key)
		case int32:
			p.addFlag(field, v != 0, key)
		case int64:
			p.addFlag(field, v != 0, key)
		case float64:
			p.addFlag(field, v != 0, key)
		case string:
			if !strings.HasPrefix(v, "$") {
				return nil, aggregations.NewCommandErrorMsgWithArgument(
					aggregations.ErrInvalidSpec,
					fmt.Sprintf("computed field %q must be a $-prefixed path", key),
					"$project (stage)",
				)
			}

			field.expr, err = aggregations.ParseExpression(v)
			if err != nil {
				return nil, err
			}

			p.computed = append(p.computed, field)
		default:
			return nil, aggregations.NewCommandErrorMsgWithArgument(
				aggregations.ErrInvalidSpec,
				fmt.Sprintf("unsupported projection value %v for %q", v, key),
				"$project (stage)",
			)
		}
	}

	// computed fields imply an inclusion projection
	if len(p.computed) > 0 && len(p.excludes) > 0 {
		return nil, newMixedProjectionError()
	}

	if len(p.includes) > 0 && len(p.excludes) > 0 {
		return nil, newMixedProjectionError()
	}

	p.inclusion = len(p.includes) > 0 || len(p.computed) > 0

	return p, nil
}

// addFlag records an include or exclude entry, treating _id specially.
func (p *project) addFlag(field projectField, include bool, key string) {
	if key == "_id" {
		if !include {
			p.excludeID = true
		} else {
			p.includes = append(p.includes, field)
		}

		return
	}

	if include {
		p.includes = append(p.includes, field)
	} else {
		p.excludes = append(p.excludes, field)
	}
}

// newMixedProjectionError returns the error for projections mixing inclusion and exclusion.
func newMixedProjectionError() error {
	return aggregations.NewCommandErrorMsgWithArgument(
		aggregations.ErrInvalidSpec,
		"Invalid $project :: caused by :: Cannot do exclusion on field in inclusion projection",
		"$project (stage)",
	)
}

// Advance implements aggregations.Stage interface.
func (p *project) Advance(ctx context.Context) (bool, error) {
	if ok, err := p.checkAdvance(ctx); !ok {
		return false, err
	}

	doc, err := p.pullUpstream(ctx)
	if err != nil {
		return false, err
	}

	if doc == nil {
		p.setEOF()
		return false, nil
	}

	res, err := p.projectDocument(doc)
	if err != nil {
		return false, err
	}

	p.setCurrent(res)

	return true, nil
}

// projectDocument applies the projection to a single document.
func (p *project) projectDocument(doc *types.Document) (*types.Document, error) {
	if !p.inclusion {
		res := doc.DeepCopy()

		for _, field := range p.excludes {
			res.RemoveByPath(field.path)
		}

		if p.excludeID {
			res.Remove("_id")
		}

		return res, nil
	}

	res := must.NotFail(types.NewDocument())

	if !p.excludeID && doc.Has("_id") {
		must.NoError(res.Set("_id", must.NotFail(doc.Get("_id"))))
	}

	if err := p.copyIncluded(doc, res, nil); err != nil {
		return nil, err
	}

	// computed fields are appended in specification order after included fields
	for _, field := range p.computed {
		v, err := field.expr.Evaluate(doc)
		if err != nil {
			return nil, err
		}

		if err = res.SetByPath(field.path, v); err != nil {
			return nil, lazyerrors.Error(err)
		}
	}

	return res, nil
}

// copyIncluded walks the source document's fields in order and copies included
// paths into res, creating nested documents along the way.
// A path through an array maps over the array's document elements.
func (p *project) copyIncluded(doc, res *types.Document, prefix []string) error {
	for _, key := range doc.Keys() {
		elems := append(append([]string{}, prefix...), key)
		path := types.NewPath(elems...)

		if path.String() == "_id" {
			// handled by the caller
			continue
		}

		switch {
		case p.isIncluded(path):
			if err := res.SetByPath(path, must.NotFail(doc.Get(key))); err != nil {
				return lazyerrors.Error(err)
			}

		case p.anyIncludedBelow(path):
			switch v := must.NotFail(doc.Get(key)).(type) {
			case *types.Document:
				if err := p.copyIncluded(v, res, elems); err != nil {
					return err
				}

			case *types.Array:
				arr, err := p.mapArray(v, elems)
				if err != nil {
					return err
				}

				if err = res.SetByPath(path, arr); err != nil {
					return lazyerrors.Error(err)
				}
			}
		}
	}

	return nil
}

// mapArray applies the nested inclusion to each document element of an array.
func (p *project) mapArray(arr *types.Array, prefix []string) (*types.Array, error) {
	res := types.MakeArray(arr.Len())

	for i := 0; i < arr.Len(); i++ {
		elem, ok := must.NotFail(arr.Get(i)).(*types.Document)
		if !ok {
			continue
		}

		sub := must.NotFail(types.NewDocument())
		if err := p.copyIncluded(elem, sub, prefix); err != nil {
			return nil, err
		}

		// re-root the nested result at the array element
		v, err := sub.GetByPath(types.NewPath(prefix...))
		if err == nil {
			must.NoError(res.Append(v))
		}
	}

	return res, nil
}

// isIncluded reports whether the exact path is an include entry.
func (p *project) isIncluded(path types.Path) bool {
	for _, field := range p.includes {
		if field.path.String() == path.String() {
			return true
		}
	}

	return false
}

// anyIncludedBelow reports whether any include entry is nested below the given path.
func (p *project) anyIncludedBelow(path types.Path) bool {
	for _, field := range p.includes {
		if field.path.StartsWith(path) && field.path.Len() > path.Len() {
			return true
		}
	}

	return false
}

// produces reports whether the projection's output contains the given path.
func (p *project) produces(path types.Path) bool {
	if path.String() == "_id" {
		return !p.excludeID
	}

	if !p.inclusion {
		for _, field := range p.excludes {
			if path.StartsWith(field.path) {
				return false
			}
		}

		return true
	}

	for _, field := range p.includes {
		if path.StartsWith(field.path) || field.path.StartsWith(path) {
			return true
		}
	}

	for _, field := range p.computed {
		if path.StartsWith(field.path) || field.path.StartsWith(path) {
			return true
		}
	}

	return false
}

// ManageDependencies implements aggregations.Stage interface.
//
// Downstream-required paths the projection does not produce fail the build;
// the tracker is then rewritten to what the projection itself reads.
func (p *project) ManageDependencies(tracker *aggregations.DependencyTracker) error {
	if !tracker.NeedWholeDocument() {
		for _, path := range tracker.Paths() {
			if !p.produces(path) {
				return aggregations.NewCommandErrorMsgWithArgument(
					aggregations.ErrMissingDependency,
					fmt.Sprintf("projection does not produce required field %q", path.String()),
					"$project (stage)",
				)
			}
		}
	}

	required := func(path types.Path) bool {
		return tracker.IsRequired(path)
	}

	if !p.inclusion {
		// exclusion projections pass through everything else; the input
		// requirement stays as-is minus nothing we can prove unneeded
		return nil
	}

	requiredIncludes := make([]types.Path, 0, len(p.includes))
	for _, field := range p.includes {
		if required(field.path) {
			requiredIncludes = append(requiredIncludes, field.path)
		}
	}

	tracker.Clear()
	tracker.SetNeedWholeDocument(false)

	for _, path := range requiredIncludes {
		tracker.Add(path)
	}

	for _, field := range p.computed {
		for _, path := range field.expr.ReferencedPaths() {
			tracker.Add(path)
		}
	}

	if !p.excludeID {
		tracker.Add(types.NewPath("_id"))
	}

	return nil
}

// Optimize implements aggregations.Stage interface.
func (p *project) Optimize() {
	for i, field := range p.computed {
		p.computed[i].expr = field.expr.Optimize()
	}
}

// SimpleProjection implements aggregations.SimpleProjectionProvider interface.
//
// A projection is simple iff it has no computed fields; only inclusion
// projections are representable as a covered projection for the cursor.
func (p *project) SimpleProjection() *types.Document {
	if len(p.computed) > 0 || !p.inclusion {
		return nil
	}

	res := must.NotFail(types.NewDocument())

	if !p.excludeID {
		must.NoError(res.Set("_id", int32(1)))
	}

	for _, field := range p.includes {
		must.NoError(res.Set(field.path.String(), int32(1)))
	}

	return res
}

// Serialize implements aggregations.Stage interface.
func (p *project) Serialize(explain bool) *types.Document {
	return p.serializeStage("$project", p.spec, explain)
}

// check interfaces
var (
	_ aggregations.Stage                    = (*project)(nil)
	_ aggregations.SimpleProjectionProvider = (*project)(nil)
)
