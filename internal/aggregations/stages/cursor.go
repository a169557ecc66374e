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

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docpipe/docpipe/internal/aggregations"
	"github.com/docpipe/docpipe/internal/aggregations/matcher"
	"github.com/docpipe/docpipe/internal/fjson"
	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/iterator"
	"github.com/docpipe/docpipe/internal/util/lazyerrors"
	"github.com/docpipe/docpipe/internal/util/must"
)

// Cursor is the storage cursor contract the cursor source consumes.
//
// The cursor is single-owner: the stage that holds it releases it on Dispose.
type Cursor interface {
	// Next returns the next record bytes, or nil at the end.
	Next(ctx context.Context) ([]byte, error)

	// Invalidated reports whether the cursor is no longer usable.
	Invalidated() bool

	// Yield cooperatively relinquishes the read acquisition.
	Yield() error

	// Close releases the cursor.
	Close()
}

// yieldInterval is the number of records materialized between cooperative yields.
const yieldInterval = 128

// cursorSource adapts an external storage cursor into a source stage.
//
// It materializes a document from each record's bytes, optionally applying a
// covered projection, and yields the read acquisition at intervals.
type cursorSource struct {
	base

	cursor Cursor
	closer *iterator.MultiCloser
	l      *zap.Logger
	id     uuid.UUID

	// post-rewrite snapshots, for explain output
	pushedPredicate  *types.Document
	pushedMatcher    *matcher.Matcher
	pushedProjection *types.Document
	pushedSort       *types.Document

	requiredPaths []types.Path
	wholeDocument bool

	sinceYield int
}

// NewCursorSource creates a source stage over the given cursor.
func NewCursorSource(cursor Cursor, l *zap.Logger) aggregations.Stage {
	if l == nil {
		l = zap.NewNop()
	}

	return &cursorSource{
		cursor:        cursor,
		closer:        iterator.NewMultiCloser(cursor),
		l:             l,
		id:            uuid.New(),
		wholeDocument: true,
	}
}

// Advance implements aggregations.Stage interface.
func (c *cursorSource) Advance(ctx context.Context) (bool, error) {
	if ok, err := c.checkAdvance(ctx); !ok {
		return false, err
	}

	for {
		record, err := c.cursor.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false, aggregations.NewCommandError(aggregations.ErrInterrupted, err)
			}

			return false, lazyerrors.Error(err)
		}

		if record == nil {
			c.setEOF()
			return false, nil
		}

		doc, err := fjson.UnmarshalDocument(record)
		if err != nil {
			return false, aggregations.NewCommandError(aggregations.ErrTypeMismatch, err)
		}

		c.sinceYield++
		if c.sinceYield >= yieldInterval {
			c.sinceYield = 0

			if err = c.yield(); err != nil {
				return false, err
			}
		}

		// the predicate runs against the full record; the covered projection
		// trims the materialized document afterwards
		if c.pushedMatcher != nil {
			matches, err := c.pushedMatcher.Match(doc)
			if err != nil {
				return false, err
			}

			if !matches {
				continue
			}
		}

		doc, err = c.cover(doc)
		if err != nil {
			return false, err
		}

		c.setCurrent(doc)

		return true, nil
	}
}

// cover applies the covered projection or the required field set to the
// materialized document.
func (c *cursorSource) cover(doc *types.Document) (*types.Document, error) {
	if c.pushedProjection == nil && c.wholeDocument {
		return doc, nil
	}

	res := must.NotFail(types.NewDocument())

	switch {
	case c.pushedProjection != nil:
		for _, key := range c.pushedProjection.Keys() {
			path, err := types.NewPathFromString(key)
			if err != nil {
				return nil, lazyerrors.Error(err)
			}

			if v, err := doc.GetByPath(path); err == nil {
				must.NoError(res.SetByPath(path, v))
			}
		}

	default:
		for _, path := range c.requiredPaths {
			if v, err := doc.GetByPath(path); err == nil {
				must.NoError(res.SetByPath(path, v))
			}
		}
	}

	return res, nil
}

// yield releases the read acquisition and checks cursor validity afterwards.
func (c *cursorSource) yield() error {
	c.l.Debug("cursor source yielding", zap.String("cursor", c.id.String()))

	if err := c.cursor.Yield(); err != nil {
		return lazyerrors.Error(err)
	}

	if c.cursor.Invalidated() {
		c.l.Warn("cursor invalidated across yield", zap.String("cursor", c.id.String()))
		c.closer.Close()
		c.disposed = true

		return aggregations.NewCommandErrorMsg(
			aggregations.ErrCursorInvalidated,
			"storage cursor is no longer valid after yield",
		)
	}

	return nil
}

// Dispose implements aggregations.Stage interface.
func (c *cursorSource) Dispose() {
	if !c.disposed {
		c.closer.Close()
	}

	c.base.Dispose()
}

// PushdownPredicate implements aggregations.PushdownSource interface.
func (c *cursorSource) PushdownPredicate(pred *types.Document) bool {
	combined := pred

	if c.pushedPredicate != nil {
		combined = must.NotFail(types.NewDocument(
			"$and", must.NotFail(types.NewArray(c.pushedPredicate, pred)),
		))
	}

	m, err := matcher.New(combined)
	if err != nil {
		return false
	}

	c.pushedPredicate = combined
	c.pushedMatcher = m

	return true
}

// PushdownProjection implements aggregations.PushdownSource interface.
func (c *cursorSource) PushdownProjection(proj *types.Document) bool {
	if c.pushedProjection != nil {
		return false
	}

	c.pushedProjection = proj

	return true
}

// PushdownSort records the sort order the cursor is known to return records in.
func (c *cursorSource) PushdownSort(sort *types.Document) {
	c.pushedSort = sort
}

// ManageDependencies implements aggregations.Stage interface.
// Being the head of the pipeline, the cursor source snapshots the final
// required field set and materializes only those fields when possible.
func (c *cursorSource) ManageDependencies(tracker *aggregations.DependencyTracker) error {
	c.wholeDocument = tracker.NeedWholeDocument()
	c.requiredPaths = tracker.Paths()

	return nil
}

// Serialize implements aggregations.Stage interface.
func (c *cursorSource) Serialize(explain bool) *types.Document {
	spec := must.NotFail(types.NewDocument("id", c.id.String()))

	if explain {
		if c.pushedPredicate != nil {
			must.NoError(spec.Set("filter", c.pushedPredicate))
		}

		if c.pushedProjection != nil {
			must.NoError(spec.Set("projection", c.pushedProjection))
		}

		if c.pushedSort != nil {
			must.NoError(spec.Set("sort", c.pushedSort))
		}
	}

	return c.serializeStage("$cursor", spec, explain)
}

// check interfaces
var (
	_ aggregations.Stage          = (*cursorSource)(nil)
	_ aggregations.PushdownSource = (*cursorSource)(nil)
)
