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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/must"
)

func TestUnwind(t *testing.T) {
	t.Parallel()

	u := NewUnwind(types.NewPath("a"))

	src := newSource(
		must.NotFail(types.NewDocument("a", must.NotFail(types.NewArray(int32(1), int32(2))))),
		must.NotFail(types.NewDocument("a", must.NotFail(types.NewArray()))),
		must.NotFail(types.NewDocument("b", int32(1))),
		must.NotFail(types.NewDocument("a", "x")),
	)

	docs := drive(t, chain(src, u))

	assertDocsEqual(t, []*types.Document{
		must.NotFail(types.NewDocument("a", int32(1))),
		must.NotFail(types.NewDocument("a", int32(2))),
		must.NotFail(types.NewDocument("a", "x")),
	}, docs)
}

func TestUnwindNullDropped(t *testing.T) {
	t.Parallel()

	u := NewUnwind(types.NewPath("a"))

	src := newSource(must.NotFail(types.NewDocument("a", types.Null)))
	docs := drive(t, chain(src, u))
	assert.Empty(t, docs)
}

func TestUnwindSiblingsPreserved(t *testing.T) {
	t.Parallel()

	u := NewUnwind(types.NewPath("nested", "arr"))

	sibling := must.NotFail(types.NewDocument("deep", int32(1)))
	src := newSource(must.NotFail(types.NewDocument(
		"_id", int32(7),
		"nested", must.NotFail(types.NewDocument(
			"arr", must.NotFail(types.NewArray(int32(1), int32(2))),
			"sib", sibling,
		)),
	)))

	docs := drive(t, chain(src, u))
	require.Len(t, docs, 2)

	for i, doc := range docs {
		assert.Equal(t, int32(7), must.NotFail(doc.Get("_id")))

		nested := must.NotFail(doc.Get("nested")).(*types.Document)
		assert.Equal(t, int32(i+1), must.NotFail(nested.Get("arr")))

		// siblings are shared, not copied
		assert.Same(t, sibling, must.NotFail(nested.Get("sib")))
	}
}

func TestUnwindEmitsOnePerElement(t *testing.T) {
	t.Parallel()

	u := NewUnwind(types.NewPath("a"))

	elems := must.NotFail(types.NewArray(int32(0), int32(1), int32(2), int32(3)))
	src := newSource(must.NotFail(types.NewDocument("a", elems, "k", "v")))

	docs := drive(t, chain(src, u))
	require.Len(t, docs, elems.Len())

	for i, doc := range docs {
		assert.Equal(t, int32(i), must.NotFail(doc.Get("a")))
		assert.Equal(t, "v", must.NotFail(doc.Get("k")))
	}
}

func TestNewUnwindSpec(t *testing.T) {
	t.Parallel()

	for name, spec := range map[string]any{
		"NoPrefix": "a",
		"Empty":    "",
		"NotAString": must.NotFail(types.NewDocument(
			"path", "$a",
		)),
	} {
		name, spec := name, spec
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := NewStage(must.NotFail(types.NewDocument("$unwind", spec)))
			assert.Error(t, err)
		})
	}
}
