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

package pagetables

import (
	"testing"

	"pagecore.dev/pagecore/pkg/frames"
	"pagecore.dev/pagecore/pkg/hostarch"
	"pagecore.dev/pagecore/pkg/sim"
)

const memSize = 8 << 20

// testEnv is a simulated machine with a counting allocator over all of its
// memory except the first page.
type testEnv struct {
	m     *sim.Machine
	cpu   *sim.CPU
	alloc *frames.Counting
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	m, err := sim.NewMachine(memSize, 1)
	if err != nil {
		t.Fatalf("NewMachine failed: %v", err)
	}
	t.Cleanup(func() {
		if err := m.Release(); err != nil {
			t.Errorf("Release failed: %v", err)
		}
	})
	free := frames.NewRegionAllocator()
	free.AddRegion(hostarch.PageSize, memSize)
	return &testEnv{m: m, cpu: m.CPU(0), alloc: frames.NewCounting(free)}
}

// identity returns empty tables accessed at their physical addresses. Paging
// stays off.
func (e *testEnv) identity() *PageTables {
	return New(e.cpu, e.alloc.Allocate(), Identity{})
}

// boot builds kernel tables with all of memory at PhysicalMappingBase and a
// recursive entry at RecursiveEntry, installs them and turns paging on. The
// tables are returned as seen through the physical mapping.
func (e *testEnv) boot(t *testing.T) *PageTables {
	t.Helper()
	p := NewWithRecursiveMapping(e.cpu, e.alloc.Allocate(), RecursiveEntry).Through(Identity{})
	if err := p.MapArea(PhysicalMappingBase, 0, memSize, KernelMapOpts(), e.alloc); err != nil {
		t.Fatalf("MapArea failed: %v", err)
	}
	e.cpu.SetRoot(p.Root().Start())
	e.cpu.EnablePaging()
	return p.Through(PhysicalBase{Base: PhysicalMappingBase})
}

func (e *testEnv) core(t *testing.T) (*Core, *PageTables) {
	t.Helper()
	kernel := e.boot(t)
	return NewCore(e.cpu, RecursiveEntry, PhysicalBase{Base: PhysicalMappingBase}), kernel
}

func page4K(addr hostarch.VirtualAddress) hostarch.Page[hostarch.Size4KiB] {
	return hostarch.MustPageStartingAt[hostarch.Size4KiB](addr)
}

func frame4K(addr hostarch.PhysicalAddress) hostarch.Frame[hostarch.Size4KiB] {
	return hostarch.MustFrameStartingAt[hostarch.Size4KiB](addr)
}

func expectPanic(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", what)
		}
	}()
	fn()
}
