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

// Package pagetables creates, mutates and switches x86-64 four-level page
// tables.
//
// A PageTables reaches its own tables through a Mapping, which turns the
// physical location of a table into a virtual address, and a Memory, which
// turns that virtual address into a pointer. The mapping algorithms are
// written once against the level types in table.go and work for every
// Mapping.
//
// Nothing in this package takes locks. Callers must guarantee exclusive
// access to a set of tables, and a Core serializes the per-CPU operations
// that switch or borrow the active tables.
package pagetables

import (
	"unsafe"

	"pagecore.dev/pagecore/pkg/hostarch"
	"pagecore.dev/pagecore/pkg/log"
)

// MMU is the paging hardware of a single CPU.
type MMU interface {
	// Root returns the physical address of the installed top-level table.
	Root() hostarch.PhysicalAddress

	// SetRoot installs a new top-level table. This flushes all non-global
	// translations.
	SetRoot(root hostarch.PhysicalAddress)

	// InvalidatePage flushes the translation for the page containing addr.
	InvalidatePage(addr hostarch.VirtualAddress)

	// Flush flushes all non-global translations.
	Flush()
}

// Memory makes page tables addressable.
type Memory interface {
	// Pointer returns a pointer through which the 4K table at addr may be
	// read and written. addr must be page aligned and mapped writable.
	Pointer(addr hostarch.VirtualAddress) unsafe.Pointer
}

// CPU is the hardware a set of page tables is manipulated on.
type CPU interface {
	MMU
	Memory
}

// FrameAllocator supplies the frames that back new tables.
//
// Both operations are infallible; an allocator that runs out of memory
// panics. Frames need not be zeroed.
type FrameAllocator interface {
	// Allocate returns a free frame.
	Allocate() hostarch.Frame[hostarch.Size4KiB]

	// Deallocate returns a frame to the pool.
	Deallocate(f hostarch.Frame[hostarch.Size4KiB])
}

// PageTables is a page table hierarchy identified by its top-level frame.
type PageTables struct {
	// root is the frame holding the top-level table.
	root hostarch.Frame[hostarch.Size4KiB]

	// mapping resolves table addresses. It describes the environment the
	// tables are accessed from, not the tables themselves.
	mapping Mapping

	// cpu is where table accesses and TLB maintenance happen.
	cpu CPU
}

// New returns page tables rooted at root, zeroing the root table.
func New(cpu CPU, root hostarch.Frame[hostarch.Size4KiB], mapping Mapping) *PageTables {
	p := FromFrame(cpu, root, mapping)
	p.L4().zero()
	return p
}

// FromFrame returns page tables for an existing hierarchy rooted at root.
// The root table is not modified.
func FromFrame(cpu CPU, root hostarch.Frame[hostarch.Size4KiB], mapping Mapping) *PageTables {
	return &PageTables{
		root:    root,
		mapping: mapping,
		cpu:     cpu,
	}
}

// NewWithKernelMapped returns a fresh address space sharing the kernel's
// mapping. The new root is allocated from alloc, zeroed through the
// physical memory mapping, and gets a copy of kernel's top-level entry at
// KernelP4Entry.
//
// Precondition: kernel has its KernelP4Entry populated.
func NewWithKernelMapped(kernel *PageTables, alloc FrameAllocator) *PageTables {
	kernelP3, ok := kernel.L4().Entry(KernelP4Entry).Address()
	if !ok {
		panic("kernel address space has no kernel mapping")
	}
	p := New(kernel.cpu, alloc.Allocate(), PhysicalBase{Base: PhysicalMappingBase})
	p.L4().Entry(KernelP4Entry).Set(kernelP3, Writable)
	if log.IsLogging(log.Debug) {
		log.Debugf("New address space %v sharing kernel tables at %v", p.root.Start(), kernelP3)
	}
	return p
}

// NewWithRecursiveMapping returns page tables rooted at root whose top-level
// entry at index refers back to root. The root is zeroed through the
// identity mapping, so this is only usable while physical memory is
// identity accessible.
func NewWithRecursiveMapping(cpu CPU, root hostarch.Frame[hostarch.Size4KiB], index uint16) *PageTables {
	New(cpu, root, Identity{}).installRecursiveEntry(index)
	return FromFrame(cpu, root, Recursive{Index: index})
}

// installRecursiveEntry points the top-level entry at index back at the
// root.
func (p *PageTables) installRecursiveEntry(index uint16) {
	p.L4().Entry(index).Set(p.root.Start(), Present|Writable)
}

// Root returns the frame holding the top-level table.
func (p *PageTables) Root() hostarch.Frame[hostarch.Size4KiB] {
	return p.root
}

// Mapping returns the mapping used to reach the tables.
func (p *PageTables) Mapping() Mapping {
	return p.mapping
}

// IsActive returns true if these tables are installed on their CPU.
func (p *PageTables) IsActive() bool {
	return p.cpu.Root() == p.root.Start()
}

// SwitchTo installs these tables on their CPU. This implicitly flushes the
// non-global translations of the previous tables.
func (p *PageTables) SwitchTo() {
	if log.IsLogging(log.Debug) {
		log.Debugf("Switching address space from %v to %v", p.cpu.Root(), p.root.Start())
	}
	p.cpu.SetRoot(p.root.Start())
}

// Through returns a copy of p that reaches its tables through mapping.
func (p *PageTables) Through(mapping Mapping) *PageTables {
	return FromFrame(p.cpu, p.root, mapping)
}
