// Copyright 2026 The gVisor Authors.
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

// Package frames provides physical frame allocators for page tables.
//
// Allocation is infallible: an allocator with no free frames panics with
// ErrExhausted. None of the allocators zero frames.
package frames

import (
	"errors"

	"pagecore.dev/pagecore/pkg/hostarch"
)

// ErrExhausted is the panic value of an allocator with no free frames.
var ErrExhausted = errors.New("out of physical frames")

// Allocator allocates and frees 4K frames.
type Allocator interface {
	Allocate() hostarch.Frame[hostarch.Size4KiB]
	Deallocate(f hostarch.Frame[hostarch.Size4KiB])
}
