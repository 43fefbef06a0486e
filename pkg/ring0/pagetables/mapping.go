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
	"fmt"

	"pagecore.dev/pagecore/pkg/hostarch"
)

// Mapping is a strategy for reaching page tables through virtual memory.
type Mapping interface {
	// Root returns the virtual address of the top-level table held in
	// frame root.
	Root(root hostarch.PhysicalAddress) hostarch.VirtualAddress

	// Child returns the virtual address of the table referenced by entry
	// index of the table at parent. child is the physical address held in
	// that entry.
	Child(parent hostarch.VirtualAddress, index uint16, child hostarch.PhysicalAddress) hostarch.VirtualAddress
}

// PhysicalBase reaches tables through a mapping of all physical memory
// starting at Base.
type PhysicalBase struct {
	Base hostarch.VirtualAddress
}

// Root implements Mapping.Root.
func (m PhysicalBase) Root(root hostarch.PhysicalAddress) hostarch.VirtualAddress {
	return m.translate(root)
}

// Child implements Mapping.Child.
func (m PhysicalBase) Child(_ hostarch.VirtualAddress, _ uint16, child hostarch.PhysicalAddress) hostarch.VirtualAddress {
	return m.translate(child)
}

func (m PhysicalBase) translate(addr hostarch.PhysicalAddress) hostarch.VirtualAddress {
	v, ok := m.Base.Add(uint64(addr))
	if !ok {
		panic(fmt.Sprintf("physical address %v is outside the mapping at %v", addr, m.Base))
	}
	return v
}

// String implements fmt.Stringer.String.
func (m PhysicalBase) String() string {
	return fmt.Sprintf("physical-base(%v)", m.Base)
}

// Identity reaches tables at their physical addresses, as during boot
// before paging or under a firmware identity map.
type Identity = PhysicalBase

// Recursive reaches tables through a top-level entry that refers back to
// the top-level table itself. It is only valid for the tables that are active
// on the CPU, or for those borrowed through Core.With.
type Recursive struct {
	Index uint16
}

// Root implements Mapping.Root.
func (m Recursive) Root(hostarch.PhysicalAddress) hostarch.VirtualAddress {
	return hostarch.FromTableIndices(m.Index, m.Index, m.Index, m.Index, 0)
}

// Child implements Mapping.Child.
//
// Following the recursive entry once more shifts every index of parent one
// level up, leaving room for index at the bottom.
func (m Recursive) Child(parent hostarch.VirtualAddress, index uint16, _ hostarch.PhysicalAddress) hostarch.VirtualAddress {
	return hostarch.CanonicalVirtualAddress(uint64(parent)<<hostarch.TableIndexBits | uint64(index)<<hostarch.PageShift)
}

// String implements fmt.Stringer.String.
func (m Recursive) String() string {
	return fmt.Sprintf("recursive(%d)", m.Index)
}
