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
	"sort"

	"github.com/docpipe/docpipe/internal/types"
)

// DependencyTracker tracks the set of field paths required downstream of a
// stage and a flag for "needs whole document".
//
// Its lifetime spans a single rewrite pass; stages update it from tail to head.
type DependencyTracker struct {
	paths     map[string]types.Path
	needWhole bool
}

// NewDependencyTracker returns a tracker that initially needs the whole document.
func NewDependencyTracker() *DependencyTracker {
	return &DependencyTracker{
		paths:     map[string]types.Path{},
		needWhole: true,
	}
}

// NeedWholeDocument reports whether the whole document is required.
func (t *DependencyTracker) NeedWholeDocument() bool {
	return t.needWhole
}

// SetNeedWholeDocument sets the "needs whole document" flag.
// Clearing the flag keeps the already recorded paths.
func (t *DependencyTracker) SetNeedWholeDocument(need bool) {
	t.needWhole = need
}

// Clear removes all recorded paths, keeping the "needs whole document" flag.
func (t *DependencyTracker) Clear() {
	t.paths = map[string]types.Path{}
}

// Add records a required path.
func (t *DependencyTracker) Add(path types.Path) {
	t.paths[path.String()] = path
}

// Remove removes a required path.
func (t *DependencyTracker) Remove(path types.Path) {
	delete(t.paths, path.String())
}

// IsRequired reports whether the exact path is required,
// or anything is required below it, or the whole document is.
func (t *DependencyTracker) IsRequired(path types.Path) bool {
	if t.needWhole {
		return true
	}

	if _, ok := t.paths[path.String()]; ok {
		return true
	}

	return t.AnyRequiredBelow(path)
}

// AnyRequiredBelow reports whether any required path has the given prefix.
func (t *DependencyTracker) AnyRequiredBelow(prefix types.Path) bool {
	if t.needWhole {
		return true
	}

	for _, p := range t.paths {
		if p.StartsWith(prefix) {
			return true
		}
	}

	return false
}

// Paths returns the recorded required paths in a deterministic order.
func (t *DependencyTracker) Paths() []types.Path {
	keys := make([]string, 0, len(t.paths))
	for k := range t.paths {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	res := make([]types.Path, len(keys))
	for i, k := range keys {
		res[i] = t.paths[k]
	}

	return res
}
