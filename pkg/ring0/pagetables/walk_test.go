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

	"github.com/google/go-cmp/cmp"
	"pagecore.dev/pagecore/pkg/hostarch"
)

func TestMappingsSkipsRecursiveEntry(t *testing.T) {
	e := newTestEnv(t)
	p := NewWithRecursiveMapping(e.cpu, e.alloc.Allocate(), RecursiveEntry).Through(Identity{})
	opts := MapOpts{AccessType: hostarch.ReadExecute, User: true}
	if err := Map(p, page4K(0x40_0000), frame4K(0x9000), opts, e.alloc); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	if addr, ok := p.L4().Entry(RecursiveEntry).Address(); !ok || addr != p.Root().Start() {
		t.Fatalf("recursive entry holds (%v, %v), wanted %v", addr, ok, p.Root().Start())
	}
	want := []Leaf{leaf4K(0x40_0000, 0x9000, opts)}
	if diff := cmp.Diff(want, p.Mappings()); diff != "" {
		t.Errorf("mappings mismatch (-want +got):\n%s", diff)
	}
}

func TestWalkOrderAndStop(t *testing.T) {
	e := newTestEnv(t)
	p := e.identity()
	opts := MapOpts{AccessType: hostarch.Read}
	for _, addr := range []hostarch.VirtualAddress{0xffff_8000_0000_0000, 0x7000_0000_0000, 0x1000} {
		if err := Map(p, page4K(addr), frame4K(0x9000), opts, e.alloc); err != nil {
			t.Fatalf("Map(%v) failed: %v", addr, err)
		}
	}
	if err := Map(p, hostarch.MustPageStartingAt[hostarch.Size2MiB](0x20_0000), hostarch.MustFrameStartingAt[hostarch.Size2MiB](0x20_0000), opts, e.alloc); err != nil {
		t.Fatalf("Map 2M failed: %v", err)
	}

	var starts []hostarch.VirtualAddress
	for _, l := range p.Mappings() {
		starts = append(starts, l.Start)
	}
	want := []hostarch.VirtualAddress{0x1000, 0x20_0000, 0x7000_0000_0000, 0xffff_8000_0000_0000}
	if diff := cmp.Diff(want, starts); diff != "" {
		t.Errorf("walk order mismatch (-want +got):\n%s", diff)
	}

	var visited int
	p.Walk(func(Leaf) bool {
		visited++
		return visited < 2
	})
	if visited != 2 {
		t.Errorf("Walk visited %d leaves after stopping at 2", visited)
	}
}

func TestLeafString(t *testing.T) {
	l := leaf2M(0x20_0000, 0x40_0000, MapOpts{AccessType: hostarch.ReadWrite})
	want := "0x200000-0x400000 -> 0x400000 (2MiB) " + l.Opts.String()
	if got := l.String(); got != want {
		t.Errorf("String: got %q, wanted %q", got, want)
	}
}
