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
	"context"
	"time"

	"github.com/AlekSi/pointer"
	"go.uber.org/zap"

	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/must"
)

// Options represents the configuration options recognized by the pipeline driver.
type Options struct {
	// Logger is used by the driver; nil disables logging.
	Logger *zap.Logger

	// Metrics collects run statistics; nil disables collection.
	Metrics *Metrics

	// MaxTime is the execution deadline; nil or zero means none.
	MaxTime *time.Duration

	// AllowDiskUse is accepted for compatibility; the in-memory group and
	// sort stages do not use it.
	AllowDiskUse bool

	// Explain makes Run surface the serialized pipeline instead of documents.
	Explain bool
}

// Pipeline owns an ordered list of stages sharing the pull contract.
//
// The stage list is mutated only by the rewrite pass; stages are linked once
// and never relinked. Each stage's upstream pointer is non-owning: the list
// owns the stages.
type Pipeline struct {
	stages []Stage
	opts   Options
	l      *zap.Logger
	linked bool
}

// NewPipeline creates a pipeline over the given non-empty stage list.
// The first stage must be a source; stages are not linked yet.
func NewPipeline(stages []Stage, opts *Options) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, NewCommandErrorMsgWithArgument(
			ErrInvalidSpec,
			"a pipeline must have at least one stage",
			"aggregate",
		)
	}

	if opts == nil {
		opts = new(Options)
	}

	l := opts.Logger
	if l == nil {
		l = zap.NewNop()
	}

	return &Pipeline{
		stages: stages,
		opts:   *opts,
		l:      l,
	}, nil
}

// Stages returns the pipeline's current stage list. Do not modify it.
func (p *Pipeline) Stages() []Stage {
	return p.stages
}

// Optimize runs the rewrite pass:
// per-stage optimization, pairwise coalescing to a fixpoint, pushdown of
// leading filters and simple projections into the source, and the
// tail-to-head dependency walk.
//
// It must be called before Link.
func (p *Pipeline) Optimize() error {
	if p.linked {
		panic("pipeline is already linked")
	}

	for _, s := range p.stages {
		s.Optimize()
	}

	p.coalesce()
	p.pushdown()

	return p.manageDependencies()
}

// coalesce merges adjacent stages left to right until no pair coalesces.
func (p *Pipeline) coalesce() {
	i := 0
	for i < len(p.stages)-1 {
		if p.stages[i].Coalesce(p.stages[i+1]) {
			p.stages = append(p.stages[:i+1], p.stages[i+2:]...)
			continue
		}

		i++
	}
}

// pushdown transfers leading representable filters and simple projections
// into the source stage.
func (p *Pipeline) pushdown() {
	if len(p.stages) < 2 {
		return
	}

	src, ok := p.stages[0].(PushdownSource)
	if !ok {
		return
	}

	for len(p.stages) > 1 {
		next := p.stages[1]

		if mr, ok := next.(MatcherRepresenter); ok {
			if pred := mr.MatcherRepresentation(); pred != nil && src.PushdownPredicate(pred) {
				p.l.Debug("filter pushed down into the source")
				p.stages = append(p.stages[:1], p.stages[2:]...)

				continue
			}
		}

		if sp, ok := next.(SimpleProjectionProvider); ok {
			if proj := sp.SimpleProjection(); proj != nil && src.PushdownProjection(proj) {
				p.l.Debug("projection pushed down into the source", zap.Bool("wouldBeRemoved", true))
				p.stages = append(p.stages[:1], p.stages[2:]...)

				continue
			}
		}

		return
	}
}

// manageDependencies walks the stages from tail to head, producing the
// minimal required field set for the source.
func (p *Pipeline) manageDependencies() error {
	tracker := NewDependencyTracker()

	for i := len(p.stages) - 1; i >= 0; i-- {
		if err := p.stages[i].ManageDependencies(tracker); err != nil {
			return err
		}
	}

	return nil
}

// Link installs each stage's upstream pointer to its left neighbor.
// Linking twice is a programming error.
func (p *Pipeline) Link() {
	if p.linked {
		panic(NewCommandErrorMsg(ErrAlreadyLinked, "pipeline is already linked"))
	}

	for i := 1; i < len(p.stages); i++ {
		p.stages[i].SetUpstream(p.stages[i-1])
	}

	p.linked = true
}

// Prepend inserts a source stage at the head of the pipeline.
// It is used to install the shard-merge source into a router half.
func (p *Pipeline) Prepend(s Stage) {
	if p.linked {
		panic("pipeline is already linked")
	}

	p.stages = append([]Stage{s}, p.stages...)
}

// Run drives the last stage to exhaustion and returns the emitted documents.
//
// With the Explain option set, the documents are discarded and the serialized
// pipeline is surfaced instead. The caller must Dispose the pipeline
// afterwards, also on errors.
func (p *Pipeline) Run(ctx context.Context) ([]*types.Document, error) {
	if !p.linked {
		p.Link()
	}

	if len(p.stages) == 0 {
		return nil, NewCommandErrorMsg(ErrInvalidSpec, "cannot run an empty pipeline")
	}

	if maxTime := pointer.Get(p.opts.MaxTime); maxTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxTime)

		defer cancel()
	}

	var res []*types.Document

	last := p.stages[len(p.stages)-1]

	for {
		ok, err := last.Advance(ctx)
		if err != nil {
			p.opts.Metrics.observeRun(len(res), err)
			return nil, err
		}

		if !ok {
			break
		}

		doc, err := last.Current()
		if err != nil {
			p.opts.Metrics.observeRun(len(res), err)
			return nil, err
		}

		res = append(res, doc)
	}

	p.opts.Metrics.observeRun(len(res), nil)

	if p.opts.Explain {
		stages, err := consumeDocuments(p.Serialize(true))
		if err != nil {
			return nil, err
		}

		return stages, nil
	}

	return res, nil
}

// consumeDocuments converts an array of stage documents to a slice.
func consumeDocuments(arr *types.Array) ([]*types.Document, error) {
	res := make([]*types.Document, 0, arr.Len())

	for i := 0; i < arr.Len(); i++ {
		doc, ok := must.NotFail(arr.Get(i)).(*types.Document)
		if !ok {
			return nil, NewCommandErrorMsg(ErrTypeMismatch, "stage serialization must be a document")
		}

		res = append(res, doc)
	}

	return res, nil
}

// Serialize returns the sequence of stage documents, the engine's only
// externalized representation of the pipeline.
func (p *Pipeline) Serialize(explain bool) *types.Array {
	res := types.MakeArray(len(p.stages))

	for _, s := range p.stages {
		must.NoError(res.Append(s.Serialize(explain)))
	}

	return res
}

// Dispose disposes every stage in order. It is idempotent.
func (p *Pipeline) Dispose() {
	for _, s := range p.stages {
		s.Dispose()
	}
}

// Split partitions the pipeline between a shard-local executor and a
// router-side merger.
//
// A pipeline is splittable if it has no sink stage. The shard half contains
// the prefix up to and including the first splittable stage's shard source;
// the router half contains that stage's router source followed by the
// remaining suffix. The caller prepends a shard-merge source to the router
// half before running it.
func (p *Pipeline) Split() (shard, router *Pipeline, ok bool) {
	if p.linked {
		panic("cannot split a linked pipeline")
	}

	for _, s := range p.stages {
		if _, isSink := s.(SinkStage); isSink {
			return nil, nil, false
		}
	}

	splitAt := -1

	var splittable SplittableStage

	for i, s := range p.stages {
		if ss, isSplittable := s.(SplittableStage); isSplittable {
			splitAt, splittable = i, ss
			break
		}
	}

	var shardStages, routerStages []Stage

	if splitAt == -1 {
		shardStages = append(shardStages, p.stages...)
	} else {
		shardStages = append(shardStages, p.stages[:splitAt]...)

		if s := splittable.ShardSource(); s != nil {
			shardStages = append(shardStages, s)
		}

		if s := splittable.RouterSource(); s != nil {
			routerStages = append(routerStages, s)
		}

		routerStages = append(routerStages, p.stages[splitAt+1:]...)
	}

	shard = &Pipeline{stages: shardStages, opts: p.opts, l: p.l}
	router = &Pipeline{stages: routerStages, opts: p.opts, l: p.l}

	return shard, router, true
}
