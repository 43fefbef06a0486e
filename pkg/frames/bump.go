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
	"fmt"
	"sync"

	"pagecore.dev/pagecore/pkg/hostarch"
)

// BumpAllocator hands out the frames of a range in ascending order and
// never reuses them. It is meant for boot, before a RegionAllocator can be
// set up.
type BumpAllocator struct {
	mu   sync.Mutex
	next hostarch.PhysicalAddress
	end  hostarch.PhysicalAddress
}

// NewBumpAllocator returns an allocator over the frames in [start, end).
//
// Precondition: start and end are page aligned.
func NewBumpAllocator(start, end hostarch.PhysicalAddress) *BumpAllocator {
	if !start.IsAligned(hostarch.PageSize) || !end.IsAligned(hostarch.PageSize) {
		panic(fmt.Sprintf("unaligned bump range [%v, %v)", start, end))
	}
	return &BumpAllocator{next: start, end: end}
}

// Allocate returns the next frame.
func (b *BumpAllocator) Allocate() hostarch.Frame[hostarch.Size4KiB] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.next >= b.end {
		panic(ErrExhausted)
	}
	f := hostarch.MustFrameStartingAt[hostarch.Size4KiB](b.next)
	b.next += hostarch.PageSize
	return f
}

// Deallocate does nothing; frames are never reused.
func (b *BumpAllocator) Deallocate(hostarch.Frame[hostarch.Size4KiB]) {}

// Next returns the address of the next frame Allocate returns. Everything
// below it has been handed out.
func (b *BumpAllocator) Next() hostarch.PhysicalAddress {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next
}

// Remaining returns the number of frames left.
func (b *BumpAllocator) Remaining() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.next >= b.end {
		return 0
	}
	return uint64(b.end-b.next) / hostarch.PageSize
}
