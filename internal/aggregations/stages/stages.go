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

// Package stages provides aggregation pipeline stages.
package stages

import (
	"context"
	"fmt"

	"github.com/docpipe/docpipe/internal/aggregations"
	"github.com/docpipe/docpipe/internal/types"
)

// newStageFunc is a type for a function that creates a new aggregation stage.
type newStageFunc func(stage *types.Document) (aggregations.Stage, error)

// stagesMap maps all stages constructible from a specification document.
var stagesMap = map[string]newStageFunc{
	// sorted alphabetically
	"$documents": newDocuments,
	"$group":     newGroup,
	"$limit":     newLimit,
	"$match":     newMatch,
	"$out":       newOut,
	"$project":   newProject,
	"$skip":      newSkip,
	"$sort":      newSort,
	"$unwind":    newUnwind,
	// please keep sorted alphabetically
}

// NewStage creates a new aggregation stage from its specification document.
func NewStage(stage *types.Document) (aggregations.Stage, error) {
	if stage.Len() != 1 {
		return nil, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrInvalidSpec,
			"A pipeline stage specification object must contain exactly one field.",
			"aggregate",
		)
	}

	name := stage.Command()

	f, ok := stagesMap[name]
	if !ok {
		return nil, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrInvalidSpec,
			fmt.Sprintf("Unrecognized pipeline stage name: %q", name),
			name+" (stage)",
		)
	}

	return f(stage)
}

// base holds the iteration state shared by all stages.
//
// Stages start unstarted: EOF reports false and Current is invalid until the
// first Advance. Concrete stages call setCurrent/setEOF from their Advance.
type base struct {
	upstream aggregations.Stage
	current  *types.Document
	eof      bool
	disposed bool
	linked   bool
	nOut     int64
}

// EOF implements aggregations.Stage interface.
func (b *base) EOF() bool {
	return b.eof
}

// Current implements aggregations.Stage interface.
func (b *base) Current() (*types.Document, error) {
	if b.eof || b.current == nil {
		return nil, aggregations.NewCommandErrorMsg(
			aggregations.ErrExhaustedSource,
			"Current called on an exhausted stage",
		)
	}

	return b.current, nil
}

// SetUpstream implements aggregations.Stage interface.
// A second call is a programming error and panics.
func (b *base) SetUpstream(s aggregations.Stage) {
	if b.linked {
		panic(aggregations.NewCommandErrorMsg(
			aggregations.ErrAlreadyLinked,
			"SetUpstream called twice",
		))
	}

	b.upstream = s
	b.linked = true
}

// Dispose implements aggregations.Stage interface.
func (b *base) Dispose() {
	b.disposed = true
	b.setEOF()
}

// Optimize implements aggregations.Stage interface.
func (*base) Optimize() {}

// Coalesce implements aggregations.Stage interface.
func (*base) Coalesce(aggregations.Stage) bool {
	return false
}

// ManageDependencies implements aggregations.Stage interface.
func (*base) ManageDependencies(*aggregations.DependencyTracker) error {
	return nil
}

// setCurrent positions the stage on the given document.
func (b *base) setCurrent(doc *types.Document) {
	b.current = doc
	b.nOut++
}

// setEOF marks the stage as exhausted.
func (b *base) setEOF() {
	b.eof = true
	b.current = nil
}

// checkAdvance handles the disposed state and cooperative cancellation.
// It returns (false, nil) with EOF set for disposed stages,
// and an ErrInterrupted command error for a done context.
// The bool result is true iff the caller should proceed with its own advance.
func (b *base) checkAdvance(ctx context.Context) (bool, error) {
	if b.disposed {
		b.setEOF()
		return false, nil
	}

	if err := ctx.Err(); err != nil {
		return false, aggregations.NewCommandError(aggregations.ErrInterrupted, err)
	}

	return true, nil
}

// pullUpstream advances the upstream stage and returns its next document,
// or (nil, nil) at upstream EOF.
func (b *base) pullUpstream(ctx context.Context) (*types.Document, error) {
	ok, err := b.upstream.Advance(ctx)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, nil
	}

	return b.upstream.Current()
}

// serializeStage builds the single-field stage document, appending nOut for explain.
func (b *base) serializeStage(name string, spec any, explain bool) *types.Document {
	doc, err := types.NewDocument(name, spec)
	if err != nil {
		panic(err)
	}

	if explain {
		_ = doc.Set("nOut", b.nOut)
	}

	return doc
}
