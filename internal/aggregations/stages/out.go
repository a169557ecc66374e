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

	"go.uber.org/zap"

	"github.com/docpipe/docpipe/internal/aggregations"
	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/must"
)

// Collector receives every document the out stage forwards.
//
// Each document is offered exactly once; persistence semantics are entirely
// the collector's.
type Collector interface {
	Write(ctx context.Context, doc *types.Document) error
}

// out represents the $out sink stage: a pass-through that hands every
// document to a side-effecting collector.
type out struct {
	base

	target    string
	collector Collector
	l         *zap.Logger
}

// newOut creates a new $out stage with a discarding collector.
func newOut(stage *types.Document) (aggregations.Stage, error) {
	target, ok := must.NotFail(stage.Get("$out")).(string)
	if !ok || target == "" {
		return nil, aggregations.NewCommandErrorMsgWithArgument(
			aggregations.ErrInvalidSpec,
			"the $out target must be a non-empty string",
			"$out (stage)",
		)
	}

	return NewOut(target, nil, nil), nil
}

// NewOut creates a sink stage writing to the given collector.
// A nil collector discards the documents.
func NewOut(target string, collector Collector, l *zap.Logger) aggregations.Stage {
	if collector == nil {
		collector = discardCollector{}
	}

	if l == nil {
		l = zap.NewNop()
	}

	return &out{
		target:    target,
		collector: collector,
		l:         l,
	}
}

// discardCollector drops every document.
type discardCollector struct{}

// Write implements Collector interface.
func (discardCollector) Write(context.Context, *types.Document) error {
	return nil
}

// Advance implements aggregations.Stage interface.
func (o *out) Advance(ctx context.Context) (bool, error) {
	if ok, err := o.checkAdvance(ctx); !ok {
		return false, err
	}

	doc, err := o.pullUpstream(ctx)
	if err != nil {
		return false, err
	}

	if doc == nil {
		o.l.Debug("out stage reached EOF", zap.String("target", o.target), zap.Int64("written", o.nOut))
		o.setEOF()

		return false, nil
	}

	if err = o.collector.Write(ctx, doc); err != nil {
		return false, err
	}

	o.setCurrent(doc)

	return true, nil
}

// Sink implements aggregations.SinkStage interface.
func (o *out) Sink() {}

// Serialize implements aggregations.Stage interface.
func (o *out) Serialize(explain bool) *types.Document {
	return o.serializeStage("$out", o.target, explain)
}

// check interfaces
var (
	_ aggregations.Stage     = (*out)(nil)
	_ aggregations.SinkStage = (*out)(nil)
)
