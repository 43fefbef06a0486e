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

package frames

import (
	"sync/atomic"

	"pagecore.dev/pagecore/pkg/hostarch"
)

// Counting wraps an Allocator and counts calls to it.
type Counting struct {
	Allocator

	allocations   atomic.Uint64
	deallocations atomic.Uint64
}

// NewCounting returns a counting wrapper of a.
func NewCounting(a Allocator) *Counting {
	return &Counting{Allocator: a}
}

// Allocate implements Allocator.Allocate.
func (c *Counting) Allocate() hostarch.Frame[hostarch.Size4KiB] {
	f := c.Allocator.Allocate()
	c.allocations.Add(1)
	return f
}

// Deallocate implements Allocator.Deallocate.
func (c *Counting) Deallocate(f hostarch.Frame[hostarch.Size4KiB]) {
	c.Allocator.Deallocate(f)
	c.deallocations.Add(1)
}

// Allocations returns the number of frames allocated.
func (c *Counting) Allocations() uint64 {
	return c.allocations.Load()
}

// Deallocations returns the number of frames freed.
func (c *Counting) Deallocations() uint64 {
	return c.deallocations.Load()
}

// Outstanding returns the number of frames allocated but not freed.
func (c *Counting) Outstanding() uint64 {
	return c.Allocations() - c.Deallocations()
}
