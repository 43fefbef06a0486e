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
	"pagecore.dev/pagecore/pkg/log"
)

// table is one table of a hierarchy, seen at a virtual address.
type table struct {
	pt      *PageTables
	addr    hostarch.VirtualAddress
	entries *PTEs
}

func (p *PageTables) tableAt(addr hostarch.VirtualAddress) table {
	return table{pt: p, addr: addr, entries: p.view(addr)}
}

// Entry returns the entry at index i.
//
// Precondition: i < 512.
func (t table) Entry(i uint16) *PTE {
	if i >= entriesPerPage {
		panic(fmt.Sprintf("table index %d out of range", i))
	}
	return &t.entries[i]
}

// Address returns the virtual address the table is seen at.
func (t table) Address() hostarch.VirtualAddress {
	return t.addr
}

func (t table) zero() {
	for i := range t.entries {
		t.entries[i].Clear()
	}
}

// next returns the child table at index i. ok is false if the entry is
// absent or is a huge page leaf.
func (t table) next(i uint16) (table, bool) {
	e := t.Entry(i)
	addr, ok := e.Address()
	if !ok || e.IsHuge() {
		return table{}, false
	}
	return t.pt.tableAt(t.pt.mapping.Child(t.addr, i, addr)), true
}

// nextCreate returns the child table at index i, allocating and installing
// a zeroed table if the entry is unused.
//
// This is the only place table frames are allocated.
func (t table) nextCreate(i uint16, alloc FrameAllocator) (table, error) {
	e := t.Entry(i)
	if e.IsUnused() {
		frame := alloc.Allocate()
		e.Set(frame.Start(), nonTerminalFlags)
		child, _ := t.next(i)
		child.zero()
		if log.IsLogging(log.Debug) {
			log.Debugf("Created table %v at index %d of %v", frame.Start(), i, t.addr)
		}
		return child, nil
	}
	if e.IsHuge() {
		return table{}, fmt.Errorf("table index %d of %v: %w", i, t.addr, ErrAlreadyMapped)
	}
	child, _ := t.next(i)
	return child, nil
}

// Level4Table is a top-level table. Its entries refer to Level3Tables.
type Level4Table struct{ table }

// Level3Table is an upper table. Its entries refer to Level2Tables or are 1G
// leaves.
type Level3Table struct{ table }

// Level2Table is a middle table. Its entries refer to Level1Tables or are 2M
// leaves.
type Level2Table struct{ table }

// Level1Table is a bottom table. Its entries are 4K leaves. It has no Next.
type Level1Table struct{ table }

// L4 returns the top-level table.
func (p *PageTables) L4() Level4Table {
	return Level4Table{p.tableAt(p.mapping.Root(p.root.Start()))}
}

// Next returns the level 3 table at index i, if present.
func (t Level4Table) Next(i uint16) (Level3Table, bool) {
	c, ok := t.next(i)
	return Level3Table{c}, ok
}

// NextCreate returns the level 3 table at index i, creating it if needed.
func (t Level4Table) NextCreate(i uint16, alloc FrameAllocator) (Level3Table, error) {
	c, err := t.nextCreate(i, alloc)
	return Level3Table{c}, err
}

// Next returns the level 2 table at index i, if present and not a 1G leaf.
func (t Level3Table) Next(i uint16) (Level2Table, bool) {
	c, ok := t.next(i)
	return Level2Table{c}, ok
}

// NextCreate returns the level 2 table at index i, creating it if needed.
// It returns ErrAlreadyMapped if the entry is a 1G leaf.
func (t Level3Table) NextCreate(i uint16, alloc FrameAllocator) (Level2Table, error) {
	c, err := t.nextCreate(i, alloc)
	return Level2Table{c}, err
}

// Next returns the level 1 table at index i, if present and not a 2M leaf.
func (t Level2Table) Next(i uint16) (Level1Table, bool) {
	c, ok := t.next(i)
	return Level1Table{c}, ok
}

// NextCreate returns the level 1 table at index i, creating it if needed.
// It returns ErrAlreadyMapped if the entry is a 2M leaf.
func (t Level2Table) NextCreate(i uint16, alloc FrameAllocator) (Level1Table, error) {
	c, err := t.nextCreate(i, alloc)
	return Level1Table{c}, err
}
