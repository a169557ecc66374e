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

// Package aggregations provides the aggregation pipeline engine:
// the stage contract, the pipeline driver with its rewrite passes,
// the expression and dependency-tracking interfaces stages consume.
package aggregations

import (
	"context"

	"github.com/docpipe/docpipe/internal/types"
)

// Stage is the common pull-iterator contract of all pipeline stages.
//
// Stages use an unstarted initial state: EOF returns false until iteration
// reaches the end, and Current is invalid before the first successful Advance.
// The canonical driver loop calls Advance once to prime, then alternates
// Current and Advance until Advance returns false.
type Stage interface {
	// EOF returns true iff no further document is available.
	// It is idempotent and does not advance the stage.
	EOF() bool

	// Advance moves to the next document. It returns false at EOF.
	// It fails with an ErrInterrupted command error when the context is done.
	Advance(ctx context.Context) (bool, error)

	// Current returns the document the stage is currently positioned on.
	// It fails with an ErrExhaustedSource command error at EOF.
	Current() (*types.Document, error)

	// SetUpstream installs the non-owning upstream pointer.
	// It is called once; a second call panics with an ErrAlreadyLinked command error.
	SetUpstream(s Stage)

	// Dispose releases external resources. Subsequent iteration is safe and
	// reports EOF. Dispose is idempotent and best-effort.
	Dispose()

	// Optimize locally simplifies internally-held expressions.
	// It has no cross-stage effects.
	Optimize()

	// Coalesce attempts to merge the immediate successor into the receiver.
	// On success the caller removes the successor from the pipeline.
	// Coalesce is repeatable.
	Coalesce(next Stage) bool

	// ManageDependencies updates the tracker to reflect what this stage
	// requires from its input given what downstream requires from its output.
	ManageDependencies(tracker *DependencyTracker) error

	// Serialize emits a single-field document describing the stage.
	// With explain set, execution statistics are included.
	Serialize(explain bool) *types.Document
}

// SplittableStage is a Stage that can partition itself between a shard-local
// executor and a router-side merger.
//
// The capability is discovered with a type assertion rather than a parallel
// stage hierarchy.
type SplittableStage interface {
	Stage

	// ShardSource returns the stage to run on each shard, or nil to omit.
	ShardSource() Stage

	// RouterSource returns the stage to run on the router, or nil to omit.
	RouterSource() Stage
}

// SinkStage marks stages with an external side effect.
// A pipeline containing one cannot be split between shards and a router.
type SinkStage interface {
	Stage

	// Sink is a marker method.
	Sink()
}

// PushdownSource is a source stage that can absorb a rewritten predicate or
// projection during the pushdown pass.
type PushdownSource interface {
	Stage

	// PushdownPredicate transfers the given predicate document into the
	// source. It returns false if the source cannot honor it.
	PushdownPredicate(pred *types.Document) bool

	// PushdownProjection transfers the given simple projection into the
	// source. It returns false if the source cannot honor it.
	PushdownProjection(proj *types.Document) bool
}

// SimpleProjectionProvider is a projection stage extension: SimpleProjection
// returns a covered-projection document iff the stage has no computed fields
// and no renames, nil otherwise.
type SimpleProjectionProvider interface {
	SimpleProjection() *types.Document
}
