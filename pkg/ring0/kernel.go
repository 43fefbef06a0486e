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

// Package ring0 sets up and runs the kernel address space.
//
// A Kernel is built once, while physical memory is still identity
// accessible, and then installed on every CPU. The CPUs share the kernel
// tables; each one gets its own pagetables.Core.
package ring0

import (
	"fmt"

	"pagecore.dev/pagecore/pkg/hostarch"
	"pagecore.dev/pagecore/pkg/log"
	"pagecore.dev/pagecore/pkg/ring0/pagetables"
)

// KernelOpts are the options for NewKernel.
type KernelOpts struct {
	// MemorySize is the amount of physical memory, starting at 0, mapped
	// at pagetables.PhysicalMappingBase.
	MemorySize uint64

	// Allocator supplies table frames, now and for every address space
	// created later.
	Allocator pagetables.FrameAllocator
}

// Kernel is the kernel address space.
type Kernel struct {
	KernelOpts

	// root is the frame holding the kernel's top-level table.
	root hostarch.Frame[hostarch.Size4KiB]
}

// NewKernel builds the kernel tables through cpu, which must still access
// physical memory directly.
//
// The tables map opts.MemorySize bytes of physical memory at
// pagetables.PhysicalMappingBase and refer to themselves at
// pagetables.RecursiveEntry.
func NewKernel(cpu pagetables.CPU, opts KernelOpts) (*Kernel, error) {
	if opts.MemorySize == 0 || opts.MemorySize > pagetables.PhysicalMappingSize {
		return nil, fmt.Errorf("memory size %#x not in (0, %#x]", opts.MemorySize, uint64(pagetables.PhysicalMappingSize))
	}
	if !hostarch.PhysicalAddress(opts.MemorySize).IsAligned(hostarch.PageSize) {
		return nil, fmt.Errorf("memory size %#x is not page aligned", opts.MemorySize)
	}
	root := opts.Allocator.Allocate()
	p := pagetables.NewWithRecursiveMapping(cpu, root, pagetables.RecursiveEntry).Through(pagetables.Identity{})
	if err := p.MapArea(pagetables.PhysicalMappingBase, 0, opts.MemorySize, pagetables.KernelMapOpts(), opts.Allocator); err != nil {
		return nil, fmt.Errorf("mapping physical memory: %w", err)
	}
	log.Infof("Kernel tables at %v: %#x bytes of physical memory at %v, recursive entry %d",
		root.Start(), opts.MemorySize, pagetables.PhysicalMappingBase, pagetables.RecursiveEntry)
	return &Kernel{KernelOpts: opts, root: root}, nil
}

// Root returns the frame holding the kernel's top-level table.
func (k *Kernel) Root() hostarch.Frame[hostarch.Size4KiB] {
	return k.root
}

// Install makes the kernel tables current on cpu.
func (k *Kernel) Install(cpu pagetables.MMU) {
	cpu.SetRoot(k.root.Start())
}

// Tables returns the kernel tables as seen from cpu, reached through the
// physical memory mapping.
//
// Precondition: paging is on for cpu with a root that maps physical memory
// at pagetables.PhysicalMappingBase.
func (k *Kernel) Tables(cpu pagetables.CPU) *pagetables.PageTables {
	return pagetables.FromFrame(cpu, k.root, physicalMapping())
}

// Core returns the paging state of cpu.
//
// Precondition: k is installed on cpu and paging is on.
func (k *Kernel) Core(cpu pagetables.CPU) *pagetables.Core {
	if got := cpu.Root(); got != k.root.Start() {
		panic(fmt.Sprintf("CPU root is %v, kernel tables are at %v", got, k.root.Start()))
	}
	return pagetables.NewCore(cpu, pagetables.RecursiveEntry, physicalMapping())
}

// NewAddressSpace returns fresh tables for a new address space on cpu,
// sharing the kernel half with k.
func (k *Kernel) NewAddressSpace(cpu pagetables.CPU) *pagetables.PageTables {
	return pagetables.NewWithKernelMapped(k.Tables(cpu), k.Allocator)
}

func physicalMapping() pagetables.Mapping {
	return pagetables.PhysicalBase{Base: pagetables.PhysicalMappingBase}
}
