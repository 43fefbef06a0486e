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
	"errors"
	"testing"

	"pagecore.dev/pagecore/pkg/hostarch"
)

func TestEntryOutOfRange(t *testing.T) {
	e := newTestEnv(t)
	p := e.identity()
	expectPanic(t, "Entry(512)", func() { p.L4().Entry(entriesPerPage) })
}

func TestNewZeroesRoot(t *testing.T) {
	e := newTestEnv(t)
	root := e.alloc.Allocate()
	e.m.Memory().Store64(root.Start()+8*17, 0xdead_b000|uint64(Present))
	p := New(e.cpu, root, Identity{})
	if !p.L4().Entry(17).IsUnused() {
		t.Errorf("New left entry 17 as %v", p.L4().Entry(17))
	}

	e.m.Memory().Store64(root.Start()+8*17, 0xdead_b000|uint64(Present))
	if got, _ := FromFrame(e.cpu, root, Identity{}).L4().Entry(17).Address(); got != 0xdead_b000 {
		t.Errorf("FromFrame changed entry 17: got %v", got)
	}
}

func TestNextCreate(t *testing.T) {
	e := newTestEnv(t)
	p := e.identity()
	before := e.alloc.Allocations()

	l3, err := p.L4().NextCreate(5, e.alloc)
	if err != nil {
		t.Fatalf("NextCreate failed: %v", err)
	}
	if got := e.alloc.Allocations() - before; got != 1 {
		t.Errorf("NextCreate allocated %d frames, wanted 1", got)
	}
	entry := p.L4().Entry(5)
	if got := entry.Flags(); got != nonTerminalFlags {
		t.Errorf("intermediate entry flags: got %v, wanted %v", got, nonTerminalFlags)
	}
	if addr, _ := entry.Address(); hostarch.VirtualAddress(addr) != l3.Address() {
		t.Errorf("child at %v, entry holds %v", l3.Address(), addr)
	}

	again, err := p.L4().NextCreate(5, e.alloc)
	if err != nil {
		t.Fatalf("second NextCreate failed: %v", err)
	}
	if again.Address() != l3.Address() || e.alloc.Allocations()-before != 1 {
		t.Errorf("second NextCreate returned %v after %d allocations", again.Address(), e.alloc.Allocations()-before)
	}
	if _, ok := p.L4().Next(6); ok {
		t.Errorf("Next(6) found a table")
	}
	if got, ok := p.L4().Next(5); !ok || got.Address() != l3.Address() {
		t.Errorf("Next(5): got (%v, %v), wanted %v", got.Address(), ok, l3.Address())
	}
}

func TestNextCreateThroughHugePage(t *testing.T) {
	e := newTestEnv(t)
	p := e.identity()
	huge := hostarch.MustPageStartingAt[hostarch.Size2MiB](0x20_0000)
	if err := Map(p, huge, hostarch.MustFrameStartingAt[hostarch.Size2MiB](0x40_0000), MapOpts{AccessType: hostarch.ReadWrite}, e.alloc); err != nil {
		t.Fatalf("Map 2M failed: %v", err)
	}
	before := e.alloc.Allocations()

	l3, _ := p.L4().Next(0)
	l2, _ := l3.Next(0)
	if _, ok := l2.Next(1); ok {
		t.Errorf("Next descended into a 2M leaf")
	}
	if _, err := l2.NextCreate(1, e.alloc); !errors.Is(err, ErrAlreadyMapped) {
		t.Errorf("NextCreate over a 2M leaf: got %v, wanted %v", err, ErrAlreadyMapped)
	}
	err := Map(p, page4K(0x20_1000), frame4K(0x9000), MapOpts{AccessType: hostarch.Read}, e.alloc)
	if !errors.Is(err, ErrAlreadyMapped) {
		t.Errorf("Map 4K inside a 2M page: got %v, wanted %v", err, ErrAlreadyMapped)
	}
	if got := e.alloc.Allocations() - before; got != 0 {
		t.Errorf("allocated %d frames while failing", got)
	}
	if got, ok := p.Translate(0x20_1234); !ok || got != 0x40_1234 {
		t.Errorf("huge mapping changed: Translate got (%v, %v)", got, ok)
	}
}
