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

// Translate returns the physical address addr is mapped to. ok is false if
// addr is not mapped.
func (p *PageTables) Translate(addr hostarch.VirtualAddress) (phys hostarch.PhysicalAddress, ok bool) {
	l3, ok := p.L4().Next(addr.P4Index())
	if !ok {
		return 0, false
	}
	if e := l3.Entry(addr.P3Index()); e.IsHuge() {
		return leafAddress(e, addr, hostarch.SuperPageSize)
	}
	l2, ok := l3.Next(addr.P3Index())
	if !ok {
		return 0, false
	}
	if e := l2.Entry(addr.P2Index()); e.IsHuge() {
		return leafAddress(e, addr, hostarch.HugePageSize)
	}
	l1, ok := l2.Next(addr.P2Index())
	if !ok {
		return 0, false
	}
	return leafAddress(l1.Entry(addr.P1Index()), addr, hostarch.PageSize)
}

// leafAddress returns the address addr resolves to through the leaf e of the
// given size.
func leafAddress(e *PTE, addr hostarch.VirtualAddress, size uint64) (hostarch.PhysicalAddress, bool) {
	base, ok := e.Address()
	if !ok {
		return 0, false
	}
	return base.AlignDown(size) + hostarch.PhysicalAddress(uint64(addr)&(size-1)), true
}

// Map maps page to frame, creating intermediate tables from alloc as
// needed, and invalidates the page's translation.
//
// 4K pages are mapped at level 1 and 2M pages at level 2. 1G pages are not
// supported and return ErrUnsupportedPageSize. If the leaf slot is already
// in use, or a huge page lies on the path, Map returns ErrAlreadyMapped and
// the existing mapping is kept.
func Map[S hostarch.PageSizeTag](p *PageTables, page hostarch.Page[S], frame hostarch.Frame[S], opts MapOpts, alloc FrameAllocator) error {
	var s S
	addr := page.Start()
	var err error
	switch any(s).(type) {
	case hostarch.Size4KiB:
		err = p.map4K(addr, frame.Start(), flagsFor(opts), alloc)
	case hostarch.Size2MiB:
		err = p.map2M(addr, frame.Start(), flagsFor(opts)|HugePage, alloc)
	default:
		err = ErrUnsupportedPageSize
	}
	if err != nil {
		return fmt.Errorf("mapping %v to %v: %w", page, frame, err)
	}
	return nil
}

func (p *PageTables) map4K(addr hostarch.VirtualAddress, phys hostarch.PhysicalAddress, flags Flags, alloc FrameAllocator) error {
	l3, err := p.L4().NextCreate(addr.P4Index(), alloc)
	if err != nil {
		return err
	}
	l2, err := l3.NextCreate(addr.P3Index(), alloc)
	if err != nil {
		return err
	}
	l1, err := l2.NextCreate(addr.P2Index(), alloc)
	if err != nil {
		return err
	}
	return p.install(l1.Entry(addr.P1Index()), addr, phys, flags)
}

func (p *PageTables) map2M(addr hostarch.VirtualAddress, phys hostarch.PhysicalAddress, flags Flags, alloc FrameAllocator) error {
	l3, err := p.L4().NextCreate(addr.P4Index(), alloc)
	if err != nil {
		return err
	}
	l2, err := l3.NextCreate(addr.P3Index(), alloc)
	if err != nil {
		return err
	}
	return p.install(l2.Entry(addr.P2Index()), addr, phys, flags)
}

// install writes a leaf entry if the slot is unused.
func (p *PageTables) install(e *PTE, addr hostarch.VirtualAddress, phys hostarch.PhysicalAddress, flags Flags) error {
	if !e.IsUnused() {
		return ErrAlreadyMapped
	}
	e.Set(phys, flags)
	p.cpu.InvalidatePage(addr)
	return nil
}

// Unmap removes the 4K mapping of page, invalidates its translation and
// returns the frame it was mapped to. ok is false if page was not mapped,
// including when it lies within a huge page. Tables left empty are not
// freed.
//
// Unmapping 2M and 1G pages is not supported and returns
// ErrUnsupportedPageSize.
func Unmap[S hostarch.PageSizeTag](p *PageTables, page hostarch.Page[S]) (frame hostarch.Frame[S], ok bool, err error) {
	var s S
	if _, small := any(s).(hostarch.Size4KiB); !small {
		return hostarch.Frame[S]{}, false, fmt.Errorf("unmapping %v: %w", page, ErrUnsupportedPageSize)
	}
	addr := page.Start()
	l3, ok := p.L4().Next(addr.P4Index())
	if !ok {
		return hostarch.Frame[S]{}, false, nil
	}
	l2, ok := l3.Next(addr.P3Index())
	if !ok {
		return hostarch.Frame[S]{}, false, nil
	}
	l1, ok := l2.Next(addr.P2Index())
	if !ok {
		return hostarch.Frame[S]{}, false, nil
	}
	e := l1.Entry(addr.P1Index())
	phys, ok := e.Address()
	if !ok {
		return hostarch.Frame[S]{}, false, nil
	}
	e.Clear()
	p.cpu.InvalidatePage(addr)
	return hostarch.MustFrameStartingAt[S](phys), true, nil
}

// MapArea maps length bytes at virt to the same amount of memory at phys.
//
// Regions smaller than 2M are mapped with 4K pages. Larger regions are
// split into a 4K prefix up to the first 2M boundary, a middle of 2M pages
// and a 4K suffix after the last 2M boundary. If virt and phys are not
// 2M aligned relative to each other no 2M page can be used, and the whole
// region is mapped with 4K pages.
//
// The first failing page aborts the call. Pages mapped before the failure
// stay mapped.
//
// Preconditions: virt, phys and length are 4K aligned, and the region does
// not leave the canonical half it starts in.
func (p *PageTables) MapArea(virt hostarch.VirtualAddress, phys hostarch.PhysicalAddress, length uint64, opts MapOpts, alloc FrameAllocator) error {
	if !virt.IsAligned(hostarch.PageSize) || !phys.IsAligned(hostarch.PageSize) || length%hostarch.PageSize != 0 {
		panic(fmt.Sprintf("unaligned area [%v, +%#x) to %v", virt, length, phys))
	}
	end, ok := virt.Add(length)
	if !ok {
		panic(fmt.Sprintf("area [%v, +%#x) is not canonical", virt, length))
	}
	if _, ok := phys.Add(length); !ok {
		panic(fmt.Sprintf("area %v+%#x exceeds physical memory", phys, length))
	}

	sameOffset := (uint64(virt)-uint64(phys))%hostarch.HugePageSize == 0
	if length < hostarch.HugePageSize || !sameOffset {
		return mapRange[hostarch.Size4KiB](p, virt, end, phys, opts, alloc)
	}

	middleStart, _ := virt.AlignUp(hostarch.HugePageSize)
	middleEnd := end.AlignDown(hostarch.HugePageSize)
	physAt := func(v hostarch.VirtualAddress) hostarch.PhysicalAddress {
		return phys + hostarch.PhysicalAddress(v-virt)
	}

	if err := mapRange[hostarch.Size4KiB](p, virt, middleStart, phys, opts, alloc); err != nil {
		return err
	}
	if err := mapRange[hostarch.Size2MiB](p, middleStart, middleEnd, physAt(middleStart), opts, alloc); err != nil {
		return err
	}
	return mapRange[hostarch.Size4KiB](p, middleEnd, end, physAt(middleEnd), opts, alloc)
}

// mapRange maps the pages in [start, end) one at a time to consecutive
// frames from phys.
func mapRange[S hostarch.PageSizeTag](p *PageTables, start, end hostarch.VirtualAddress, phys hostarch.PhysicalAddress, opts MapOpts, alloc FrameAllocator) error {
	pages := hostarch.PageRange[S]{
		Start: hostarch.MustPageStartingAt[S](start),
		End:   hostarch.MustPageStartingAt[S](end),
	}
	frame := hostarch.MustFrameStartingAt[S](phys)
	return pages.Each(func(page hostarch.Page[S]) error {
		if err := Map(p, page, frame, opts, alloc); err != nil {
			return err
		}
		frame = frame.Next()
		return nil
	})
}
