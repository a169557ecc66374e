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

// BinarySubtype represents a binary value subtype.
type BinarySubtype byte

const (
	// BinaryGeneric represents a generic binary subtype.
	BinaryGeneric = BinarySubtype(0x00) // generic

	// BinaryUser represents a user-defined binary subtype.
	BinaryUser = BinarySubtype(0x80) // user
)

// Binary represents a binary value.
type Binary struct {
	B       []byte
	Subtype BinarySubtype
}
