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

	"github.com/google/btree"

	"pagecore.dev/pagecore/pkg/hostarch"
)

// region is a free range [start, end).
type region struct {
	start hostarch.PhysicalAddress
	end   hostarch.PhysicalAddress
}

func (r region) frames() uint64 {
	return uint64(r.end-r.start) / hostarch.PageSize
}

func regionLess(a, b region) bool {
	return a.start < b.start
}

// RegionAllocator allocates frames from a set of free regions kept ordered
// by address. Freed frames are merged with adjacent free regions.
type RegionAllocator struct {
	mu   sync.Mutex
	free *btree.BTreeG[region]

	// frames is the number of free frames.
	frames uint64
}

// NewRegionAllocator returns an allocator with no free memory.
func NewRegionAllocator() *RegionAllocator {
	return &RegionAllocator{free: btree.NewG(8, regionLess)}
}

// AddRegion makes the frames in [start, end) available.
//
// Preconditions: start and end are page aligned, and the range does not
// overlap free memory.
func (a *RegionAllocator) AddRegion(start, end hostarch.PhysicalAddress) {
	if !start.IsAligned(hostarch.PageSize) || !end.IsAligned(hostarch.PageSize) {
		panic(fmt.Sprintf("unaligned region [%v, %v)", start, end))
	}
	if start >= end {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.insert(region{start: start, end: end})
}

// insert adds r to the free set, merging it with its neighbours.
func (a *RegionAllocator) insert(r region) {
	var prev, next region
	var hasPrev, hasNext bool
	a.free.DescendLessOrEqual(r, func(p region) bool {
		prev, hasPrev = p, true
		return false
	})
	a.free.AscendGreaterOrEqual(r, func(n region) bool {
		next, hasNext = n, true
		return false
	})
	if (hasPrev && prev.end > r.start) || (hasNext && next.start < r.end) {
		panic(fmt.Sprintf("region [%v, %v) overlaps free memory", r.start, r.end))
	}

	merged := r
	if hasPrev && prev.end == r.start {
		a.free.Delete(prev)
		merged.start = prev.start
	}
	if hasNext && next.start == r.end {
		a.free.Delete(next)
		merged.end = next.end
	}
	a.free.ReplaceOrInsert(merged)
	a.frames += r.frames()
}

// Allocate returns the lowest free frame.
func (a *RegionAllocator) Allocate() hostarch.Frame[hostarch.Size4KiB] {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.free.DeleteMin()
	if !ok {
		panic(ErrExhausted)
	}
	f := hostarch.MustFrameStartingAt[hostarch.Size4KiB](r.start)
	if r.start += hostarch.PageSize; r.start < r.end {
		a.free.ReplaceOrInsert(r)
	}
	a.frames--
	return f
}

// Deallocate returns f to the free set.
//
// Precondition: f is not free.
func (a *RegionAllocator) Deallocate(f hostarch.Frame[hostarch.Size4KiB]) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.insert(region{start: f.Start(), end: f.Next().Start()})
}

// Free returns the number of free frames.
func (a *RegionAllocator) Free() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames
}

// Regions returns the number of disjoint free regions.
func (a *RegionAllocator) Regions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.free.Len()
}
