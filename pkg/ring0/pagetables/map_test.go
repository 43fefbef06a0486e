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

	"github.com/google/go-cmp/cmp"
	"pagecore.dev/pagecore/pkg/frames"
	"pagecore.dev/pagecore/pkg/hostarch"
)

func TestMapCreatesTables(t *testing.T) {
	e := newTestEnv(t)
	alloc := frames.NewRegionAllocator()
	alloc.AddRegion(0x1000, 0x4000)
	p := New(e.cpu, frame4K(0x10_0000), Identity{})

	const virt = hostarch.VirtualAddress(0x4000_0000_0000)
	if err := Map(p, page4K(virt), frame4K(0x5000), MapOpts{AccessType: hostarch.ReadWrite}, alloc); err != nil {
		t.Fatalf("Map failed: %v", err)
	}

	l4 := p.L4()
	l3, _ := l4.Next(128)
	l2, _ := l3.Next(0)
	var got []hostarch.PhysicalAddress
	for _, entry := range []*PTE{l4.Entry(128), l3.Entry(0), l2.Entry(0)} {
		addr, _ := entry.Address()
		got = append(got, addr)
	}
	if diff := cmp.Diff([]hostarch.PhysicalAddress{0x1000, 0x2000, 0x3000}, got); diff != "" {
		t.Errorf("intermediate tables mismatch (-want +got):\n%s", diff)
	}

	l1, _ := l2.Next(0)
	leaf := l1.Entry(0)
	if addr, _ := leaf.Address(); addr != 0x5000 {
		t.Errorf("leaf address: got %v, wanted 0x5000", addr)
	}
	if got, want := leaf.Flags(), Present|Writable|NoExecute; got != want {
		t.Errorf("leaf flags: got %v, wanted %v", got, want)
	}
	if got, ok := p.Translate(virt + 0x123); !ok || got != 0x5123 {
		t.Errorf("Translate: got (%v, %v), wanted 0x5123", got, ok)
	}
}

func TestTranslateUnmapped(t *testing.T) {
	e := newTestEnv(t)
	p := e.identity()
	if err := Map(p, page4K(0x40_0000), frame4K(0x9000), MapOpts{AccessType: hostarch.Read}, e.alloc); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	for _, addr := range []hostarch.VirtualAddress{0x40_1000, 0x60_0000, 0x4000_0000, 0xffff_8000_0000_0000} {
		if got, ok := p.Translate(addr); ok {
			t.Errorf("Translate(%v): got %v, wanted not mapped", addr, got)
		}
	}
}

func TestMapAlreadyMapped(t *testing.T) {
	e := newTestEnv(t)
	p := e.identity()
	page := page4K(0x7f00_0000_0000)
	if err := Map(p, page, frame4K(0x9000), MapOpts{AccessType: hostarch.ReadWrite}, e.alloc); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	err := Map(p, page, frame4K(0xa000), MapOpts{AccessType: hostarch.Read}, e.alloc)
	if !errors.Is(err, ErrAlreadyMapped) {
		t.Errorf("second Map: got %v, wanted %v", err, ErrAlreadyMapped)
	}
	if got, _ := p.Translate(page.Start()); got != 0x9000 {
		t.Errorf("Translate after failed remap: got %v, wanted 0x9000", got)
	}
}

func TestMapUnsupportedPageSize(t *testing.T) {
	e := newTestEnv(t)
	p := e.identity()
	before := e.alloc.Allocations()
	err := Map(p, hostarch.MustPageStartingAt[hostarch.Size1GiB](0x4000_0000), hostarch.MustFrameStartingAt[hostarch.Size1GiB](0), MapOpts{AccessType: hostarch.Read}, e.alloc)
	if !errors.Is(err, ErrUnsupportedPageSize) {
		t.Errorf("Map 1G: got %v, wanted %v", err, ErrUnsupportedPageSize)
	}
	if e.alloc.Allocations() != before {
		t.Errorf("Map 1G allocated tables")
	}
	if _, _, err := Unmap(p, hostarch.MustPageStartingAt[hostarch.Size2MiB](0x20_0000)); !errors.Is(err, ErrUnsupportedPageSize) {
		t.Errorf("Unmap 2M: got %v, wanted %v", err, ErrUnsupportedPageSize)
	}
	if _, _, err := Unmap(p, hostarch.MustPageStartingAt[hostarch.Size1GiB](0x4000_0000)); !errors.Is(err, ErrUnsupportedPageSize) {
		t.Errorf("Unmap 1G: got %v, wanted %v", err, ErrUnsupportedPageSize)
	}
}

func TestUnmap(t *testing.T) {
	e := newTestEnv(t)
	p := e.identity()
	page := page4K(0x1234_5000)
	if err := Map(p, page, frame4K(0x9000), MapOpts{AccessType: hostarch.ReadWrite}, e.alloc); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	frame, ok, err := Unmap(p, page)
	if err != nil || !ok || frame.Start() != 0x9000 {
		t.Fatalf("Unmap: got (%v, %v, %v), wanted (0x9000, true, nil)", frame, ok, err)
	}
	if _, ok := p.Translate(page.Start()); ok {
		t.Errorf("page still mapped after Unmap")
	}
	if _, ok, err := Unmap(p, page); ok || err != nil {
		t.Errorf("second Unmap: got (%v, %v), wanted (false, nil)", ok, err)
	}
	if _, ok, err := Unmap(p, page4K(0x7000_0000_0000)); ok || err != nil {
		t.Errorf("Unmap of a page with no tables: got (%v, %v), wanted (false, nil)", ok, err)
	}

	// The page can be mapped again, and the tables were kept.
	before := e.alloc.Allocations()
	if err := Map(p, page, frame4K(0xb000), MapOpts{AccessType: hostarch.Read}, e.alloc); err != nil {
		t.Fatalf("remap failed: %v", err)
	}
	if e.alloc.Allocations() != before {
		t.Errorf("remap allocated tables")
	}
	if got, _ := p.Translate(page.Start()); got != 0xb000 {
		t.Errorf("Translate after remap: got %v, wanted 0xb000", got)
	}
}

func TestUnmapInsideHugePage(t *testing.T) {
	e := newTestEnv(t)
	p := e.identity()
	if err := Map(p, hostarch.MustPageStartingAt[hostarch.Size2MiB](0x20_0000), hostarch.MustFrameStartingAt[hostarch.Size2MiB](0x40_0000), MapOpts{AccessType: hostarch.ReadWrite}, e.alloc); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	if _, ok, err := Unmap(p, page4K(0x20_3000)); ok || err != nil {
		t.Errorf("Unmap inside a 2M page: got (%v, %v), wanted (false, nil)", ok, err)
	}
	if got, ok := p.Translate(0x20_3000); !ok || got != 0x40_3000 {
		t.Errorf("2M page changed: Translate got (%v, %v)", got, ok)
	}
}

func TestMapInvalidatesTranslation(t *testing.T) {
	e := newTestEnv(t)
	p := e.boot(t)
	page := page4K(0x40_0000)
	opts := MapOpts{AccessType: hostarch.ReadWrite}
	if err := Map(p, page, frame4K(0x60_0000), opts, e.alloc); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	e.cpu.WriteUint64(page.Start(), 42)
	if got := e.m.Memory().Load64(0x60_0000); got != 42 {
		t.Errorf("write through the new mapping: got %d in memory, wanted 42", got)
	}
	if !e.cpu.Cached(page.Start()) {
		t.Fatalf("translation was not cached")
	}

	if _, ok, err := Unmap(p, page); !ok || err != nil {
		t.Fatalf("Unmap: got (%v, %v)", ok, err)
	}
	if e.cpu.Cached(page.Start()) {
		t.Errorf("Unmap left the translation cached")
	}
	if _, fault := e.cpu.Lookup(page.Start(), hostarch.Read); fault == nil {
		t.Errorf("Lookup after Unmap succeeded")
	}

	if err := Map(p, page, frame4K(0x61_0000), opts, e.alloc); err != nil {
		t.Fatalf("remap failed: %v", err)
	}
	e.m.Memory().Store64(0x61_0000, 7)
	if got := e.cpu.ReadUint64(page.Start()); got != 7 {
		t.Errorf("read after remap: got %d, wanted 7", got)
	}
}

func leaf4K(virt hostarch.VirtualAddress, phys hostarch.PhysicalAddress, opts MapOpts) Leaf {
	return Leaf{Start: virt, Size: hostarch.PageSize, Physical: phys, Opts: opts}
}

func leaf2M(virt hostarch.VirtualAddress, phys hostarch.PhysicalAddress, opts MapOpts) Leaf {
	return Leaf{Start: virt, Size: hostarch.HugePageSize, Physical: phys, Opts: opts}
}

func TestMapAreaSplitsRegion(t *testing.T) {
	e := newTestEnv(t)
	p := e.identity()
	opts := MapOpts{AccessType: hostarch.ReadWrite}

	const (
		virt   = hostarch.VirtualAddress(0x40_001f_e000)
		phys   = hostarch.PhysicalAddress(0x1f_e000)
		length = 0x2000 + 2*hostarch.HugePageSize + 0x3000
	)
	if err := p.MapArea(virt, phys, length, opts, e.alloc); err != nil {
		t.Fatalf("MapArea failed: %v", err)
	}
	want := []Leaf{
		leaf4K(0x40_001f_e000, 0x1f_e000, opts),
		leaf4K(0x40_001f_f000, 0x1f_f000, opts),
		leaf2M(0x40_0020_0000, 0x20_0000, opts),
		leaf2M(0x40_0040_0000, 0x40_0000, opts),
		leaf4K(0x40_0060_0000, 0x60_0000, opts),
		leaf4K(0x40_0060_1000, 0x60_1000, opts),
		leaf4K(0x40_0060_2000, 0x60_2000, opts),
	}
	if diff := cmp.Diff(want, p.Mappings()); diff != "" {
		t.Errorf("mappings mismatch (-want +got):\n%s", diff)
	}

	for _, off := range []uint64{0, 0x2000, 0x2000 + hostarch.HugePageSize, 0x2000 + 2*hostarch.HugePageSize, length - 1} {
		addr, _ := virt.Add(off)
		if got, ok := p.Translate(addr); !ok || got != phys+hostarch.PhysicalAddress(off) {
			t.Errorf("Translate(%v): got (%v, %v), wanted %v", addr, got, ok, phys+hostarch.PhysicalAddress(off))
		}
	}
	if _, ok := p.Translate(virt + length); ok {
		t.Errorf("Translate past the end succeeded")
	}
}

func TestMapAreaSmallPages(t *testing.T) {
	for _, tc := range []struct {
		name   string
		virt   hostarch.VirtualAddress
		phys   hostarch.PhysicalAddress
		length uint64
	}{
		{"short", 0x20_0000, 0x40_0000, 0x10_0000},
		{"misaligned", 0x40_0000, 0x1000, 2 * hostarch.HugePageSize},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEnv(t)
			p := e.identity()
			if err := p.MapArea(tc.virt, tc.phys, tc.length, MapOpts{AccessType: hostarch.Read}, e.alloc); err != nil {
				t.Fatalf("MapArea failed: %v", err)
			}
			leaves := p.Mappings()
			if got, want := uint64(len(leaves)), tc.length/hostarch.PageSize; got != want {
				t.Fatalf("got %d leaves, wanted %d", got, want)
			}
			for i, l := range leaves {
				off := uint64(i) * hostarch.PageSize
				if l.Size != hostarch.PageSize || l.Start != tc.virt+hostarch.VirtualAddress(off) || l.Physical != tc.phys+hostarch.PhysicalAddress(off) {
					t.Fatalf("leaf %d: got %v", i, l)
				}
			}
		})
	}
}

func TestMapAreaPreconditions(t *testing.T) {
	e := newTestEnv(t)
	p := e.identity()
	opts := MapOpts{AccessType: hostarch.Read}
	expectPanic(t, "unaligned virtual address", func() { p.MapArea(0x1001, 0x1000, 0x1000, opts, e.alloc) })
	expectPanic(t, "unaligned physical address", func() { p.MapArea(0x1000, 0x1001, 0x1000, opts, e.alloc) })
	expectPanic(t, "unaligned length", func() { p.MapArea(0x1000, 0x1000, 0x10, opts, e.alloc) })
	expectPanic(t, "area leaving the lower half", func() { p.MapArea(0x0000_7fff_ffff_f000, 0, 0x2000, opts, e.alloc) })
}

func TestMapAreaStopsAtFirstFailure(t *testing.T) {
	e := newTestEnv(t)
	p := e.identity()
	opts := MapOpts{AccessType: hostarch.Read}
	if err := Map(p, page4K(0x3000), frame4K(0x9000), opts, e.alloc); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	err := p.MapArea(0x1000, 0x1_0000, 0x4000, opts, e.alloc)
	if !errors.Is(err, ErrAlreadyMapped) {
		t.Fatalf("MapArea over an existing page: got %v, wanted %v", err, ErrAlreadyMapped)
	}
	want := []Leaf{
		leaf4K(0x1000, 0x1_0000, opts),
		leaf4K(0x2000, 0x1_1000, opts),
		leaf4K(0x3000, 0x9000, opts),
	}
	if diff := cmp.Diff(want, p.Mappings()); diff != "" {
		t.Errorf("mappings mismatch (-want +got):\n%s", diff)
	}
}
