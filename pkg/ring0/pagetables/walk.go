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

// Leaf is a single leaf mapping found by Walk.
type Leaf struct {
	// Start is the first virtual address mapped.
	Start hostarch.VirtualAddress

	// Size is the page size of the leaf.
	Size uint64

	// Physical is the address Start maps to.
	Physical hostarch.PhysicalAddress

	// Opts are the leaf's options.
	Opts MapOpts
}

// String implements fmt.Stringer.String.
func (l Leaf) String() string {
	return fmt.Sprintf("%v-%v -> %v (%s) %v", l.Start, l.Start+hostarch.VirtualAddress(l.Size), l.Physical, sizeName(l.Size), l.Opts)
}

func sizeName(size uint64) string {
	switch size {
	case hostarch.PageSize:
		return hostarch.Size4KiB{}.String()
	case hostarch.HugePageSize:
		return hostarch.Size2MiB{}.String()
	case hostarch.SuperPageSize:
		return hostarch.Size1GiB{}.String()
	default:
		return fmt.Sprintf("%#x", size)
	}
}

// Walk calls visit for every leaf mapping in ascending address order until
// visit returns false. Top-level entries that refer back to the root are
// skipped.
func (p *PageTables) Walk(visit func(Leaf) bool) {
	l4 := p.L4()
	for i4 := uint16(0); i4 < entriesPerPage; i4++ {
		if addr, ok := l4.Entry(i4).Address(); !ok || addr == p.root.Start() {
			continue
		}
		l3, _ := l4.Next(i4)
		if !p.walkL3(l3, i4, visit) {
			return
		}
	}
}

func (p *PageTables) walkL3(l3 Level3Table, i4 uint16, visit func(Leaf) bool) bool {
	for i3 := uint16(0); i3 < entriesPerPage; i3++ {
		e := l3.Entry(i3)
		if !e.Valid() {
			continue
		}
		if e.IsHuge() {
			if !visitLeaf(visit, hostarch.FromTableIndices(i4, i3, 0, 0, 0), hostarch.SuperPageSize, e) {
				return false
			}
			continue
		}
		l2, _ := l3.Next(i3)
		if !p.walkL2(l2, i4, i3, visit) {
			return false
		}
	}
	return true
}

func (p *PageTables) walkL2(l2 Level2Table, i4, i3 uint16, visit func(Leaf) bool) bool {
	for i2 := uint16(0); i2 < entriesPerPage; i2++ {
		e := l2.Entry(i2)
		if !e.Valid() {
			continue
		}
		if e.IsHuge() {
			if !visitLeaf(visit, hostarch.FromTableIndices(i4, i3, i2, 0, 0), hostarch.HugePageSize, e) {
				return false
			}
			continue
		}
		l1, _ := l2.Next(i2)
		for i1 := uint16(0); i1 < entriesPerPage; i1++ {
			if e := l1.Entry(i1); e.Valid() {
				if !visitLeaf(visit, hostarch.FromTableIndices(i4, i3, i2, i1, 0), hostarch.PageSize, e) {
					return false
				}
			}
		}
	}
	return true
}

func visitLeaf(visit func(Leaf) bool, start hostarch.VirtualAddress, size uint64, e *PTE) bool {
	addr, _ := e.Address()
	return visit(Leaf{
		Start:    start,
		Size:     size,
		Physical: addr.AlignDown(size),
		Opts:     e.Opts(),
	})
}

// Mappings returns every leaf mapping in ascending address order.
func (p *PageTables) Mappings() []Leaf {
	var leaves []Leaf
	p.Walk(func(l Leaf) bool {
		leaves = append(leaves, l)
		return true
	})
	return leaves
}
