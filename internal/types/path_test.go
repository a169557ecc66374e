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

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPathFromString(t *testing.T) {
	t.Parallel()

	p, err := NewPathFromString("a.b.c")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, "a", p.Prefix())
	assert.Equal(t, "c", p.Suffix())
	assert.Equal(t, "a.b.c", p.String())
	assert.Equal(t, "b.c", p.TrimPrefix().String())
	assert.Equal(t, "a.b", p.TrimSuffix().String())

	for _, s := range []string{"", ".", "a..b", "a."} {
		_, err = NewPathFromString(s)
		assert.Error(t, err, "path %q must be rejected", s)
	}
}

func TestPathStartsWith(t *testing.T) {
	t.Parallel()

	p := NewPath("a", "b", "c")

	assert.True(t, p.StartsWith(NewPath("a")))
	assert.True(t, p.StartsWith(NewPath("a", "b")))
	assert.True(t, p.StartsWith(p))
	assert.False(t, p.StartsWith(NewPath("b")))
	assert.False(t, p.StartsWith(NewPath("a", "b", "c", "d")))
}
