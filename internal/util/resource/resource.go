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

// Package resource provides utilities for tracking resource lifetimes.
package resource

import (
	"fmt"
	"reflect"
	"runtime"
	"runtime/pprof"
	"sync"

	"github.com/docpipe/docpipe/internal/util/debugbuild"
)

// Token is a field of a tracked object.
// It is used to track the lifetime of that object with a finalizer.
type Token struct {
	stack []byte
}

// NewToken returns a new Token.
func NewToken() *Token {
	return &Token{
		stack: debugbuild.Stack(),
	}
}

// profilesM protects access to profiles.
var profilesM sync.Mutex

// profileName returns pprof profile name for the given object.
func profileName(obj any) string {
	return "docpipe/" + reflect.TypeOf(obj).Elem().String()
}

// Track tracks the lifetime of an object until Untrack is called on it.
//
// Obj should be a pointer to a struct with a field of type *Token.
// Untracked objects cause panics when garbage collected in debug builds.
func Track[T any](obj *T, token *Token) {
	if token == nil {
		panic("token must not be nil")
	}

	name := profileName(obj)

	profilesM.Lock()
	p := pprof.Lookup(name)
	if p == nil {
		p = pprof.NewProfile(name)
	}
	profilesM.Unlock()

	p.Add(obj, 2)

	if debugbuild.Enabled() {
		runtime.SetFinalizer(obj, func(obj *T) {
			msg := fmt.Sprintf("%s has not been finalized", name)
			if token.stack != nil {
				msg += "\nObject created by " + string(token.stack)
			}

			panic(msg)
		})
	}
}

// Untrack stops tracking the lifetime of an object.
func Untrack[T any](obj *T, token *Token) {
	if token == nil {
		panic("token must not be nil")
	}

	p := pprof.Lookup(profileName(obj))
	p.Remove(obj)

	if debugbuild.Enabled() {
		runtime.SetFinalizer(obj, nil)
	}
}
