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
	"testing"

	"pagecore.dev/pagecore/pkg/hostarch"
)

func frame(addr hostarch.PhysicalAddress) hostarch.Frame[hostarch.Size4KiB] {
	return hostarch.MustFrameStartingAt[hostarch.Size4KiB](addr)
}

func TestRegionAllocatorLowestFirst(t *testing.T) {
	a := NewRegionAllocator()
	a.AddRegion(0x10000, 0x12000)
	a.AddRegion(0x2000, 0x3000)
	if got := a.Free(); got != 3 {
		t.Errorf("Free: got %d, wanted 3", got)
	}
	for _, want := range []hostarch.PhysicalAddress{0x2000, 0x10000, 0x11000} {
		if got := a.Allocate().Start(); got != want {
			t.Errorf("Allocate: got %v, wanted %v", got, want)
		}
	}
	if got := a.Regions(); got != 0 {
		t.Errorf("Regions: got %d, wanted 0", got)
	}
}

func TestRegionAllocatorCoalesce(t *testing.T) {
	a := NewRegionAllocator()
	a.AddRegion(0x1000, 0x5000)
	var got []hostarch.Frame[hostarch.Size4KiB]
	for i := 0; i < 4; i++ {
		got = append(got, a.Allocate())
	}

	// Free out of order; the middle frame joins both neighbours.
	a.Deallocate(got[0])
	a.Deallocate(got[2])
	if n := a.Regions(); n != 2 {
		t.Errorf("Regions after two disjoint frees: got %d, wanted 2", n)
	}
	a.Deallocate(got[1])
	if n := a.Regions(); n != 1 {
		t.Errorf("Regions after bridging free: got %d, wanted 1", n)
	}
	a.Deallocate(got[3])
	if n, free := a.Regions(), a.Free(); n != 1 || free != 4 {
		t.Errorf("got %d regions with %d frames, wanted 1 with 4", n, free)
	}
	if f := a.Allocate().Start(); f != 0x1000 {
		t.Errorf("Allocate after coalescing: got %v, wanted 0x1000", f)
	}
}

func TestRegionAllocatorDoubleFree(t *testing.T) {
	a := NewRegionAllocator()
	a.AddRegion(0x1000, 0x3000)
	f := a.Allocate()
	a.Deallocate(f)
	defer func() {
		if recover() == nil {
			t.Errorf("double free did not panic")
		}
	}()
	a.Deallocate(f)
}

func TestRegionAllocatorExhausted(t *testing.T) {
	a := NewRegionAllocator()
	defer func() {
		if r := recover(); r != ErrExhausted {
			t.Errorf("got panic %v, wanted %v", r, ErrExhausted)
		}
	}()
	a.Allocate()
}

func TestCounting(t *testing.T) {
	inner := NewRegionAllocator()
	inner.AddRegion(0x1000, 0x4000)
	c := NewCounting(inner)
	f := c.Allocate()
	c.Allocate()
	c.Deallocate(f)
	if got := c.Allocations(); got != 2 {
		t.Errorf("Allocations: got %d, wanted 2", got)
	}
	if got := c.Deallocations(); got != 1 {
		t.Errorf("Deallocations: got %d, wanted 1", got)
	}
	if got := c.Outstanding(); got != 1 {
		t.Errorf("Outstanding: got %d, wanted 1", got)
	}
	if got := inner.Free(); got != 2 {
		t.Errorf("inner Free: got %d, wanted 2", got)
	}
}
