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

package hostarch

import (
	"math/rand"
	"testing"
)

func TestNewVirtualAddress(t *testing.T) {
	for _, tc := range []struct {
		addr uint64
		ok   bool
	}{
		{0, true},
		{0x0000_7fff_ffff_ffff, true},
		{0x0000_8000_0000_0000, false},
		{0x0000_ffff_ffff_ffff, false},
		{0x1234_0000_0000_0000, false},
		{0xffff_7fff_ffff_ffff, false},
		{0xffff_8000_0000_0000, true},
		{0xffff_ffff_ffff_ffff, true},
	} {
		v, ok := NewVirtualAddress(tc.addr)
		if ok != tc.ok {
			t.Errorf("NewVirtualAddress(%#x): got ok=%v, wanted %v", tc.addr, ok, tc.ok)
			continue
		}
		if ok && uint64(v) != tc.addr {
			t.Errorf("NewVirtualAddress(%#x): got %v", tc.addr, v)
		}
	}
}

func TestCanonicalise(t *testing.T) {
	if _, ok := NewVirtualAddress(0x0000_8000_0000_0000); ok {
		t.Errorf("0x0000_8000_0000_0000 accepted by strict construction")
	}
	if got, want := CanonicalVirtualAddress(0x0000_8000_0000_0000), VirtualAddress(0xffff_8000_0000_0000); got != want {
		t.Errorf("CanonicalVirtualAddress(0x0000_8000_0000_0000): got %v, wanted %v", got, want)
	}
	if got, want := CanonicalVirtualAddress(0xffff_0000_1234_5000), VirtualAddress(0x0000_0000_1234_5000); got != want {
		t.Errorf("CanonicalVirtualAddress(0xffff_0000_1234_5000): got %v, wanted %v", got, want)
	}

	r := rand.New(rand.NewSource(47))
	for i := 0; i < 10000; i++ {
		x := r.Uint64()
		once := CanonicalVirtualAddress(x)
		if !IsCanonical(uint64(once)) {
			t.Fatalf("CanonicalVirtualAddress(%#x) = %v is not canonical", x, once)
		}
		if twice := once.Canonicalise(); twice != once {
			t.Fatalf("Canonicalise not idempotent for %#x: %v then %v", x, once, twice)
		}
		if IsCanonical(x) && uint64(once) != x {
			t.Fatalf("CanonicalVirtualAddress changed canonical input %#x to %v", x, once)
		}
	}
}

func TestTableIndices(t *testing.T) {
	for _, tc := range []struct {
		addr           VirtualAddress
		p4, p3, p2, p1 uint16
		offset         uint64
	}{
		{0, 0, 0, 0, 0, 0},
		{0x0000_4000_0000_0000, 128, 0, 0, 0, 0},
		{0x0000_0000_8000_0000, 0, 2, 0, 0, 0},
		{0x0000_0000_4020_3abc, 0, 1, 1, 3, 0xabc},
		{0xffff_8000_0000_0000, 256, 0, 0, 0, 0},
		{0xffff_ffff_ffff_f000, 511, 511, 511, 511, 0},
	} {
		if got := tc.addr.P4Index(); got != tc.p4 {
			t.Errorf("%v.P4Index(): got %d, wanted %d", tc.addr, got, tc.p4)
		}
		if got := tc.addr.P3Index(); got != tc.p3 {
			t.Errorf("%v.P3Index(): got %d, wanted %d", tc.addr, got, tc.p3)
		}
		if got := tc.addr.P2Index(); got != tc.p2 {
			t.Errorf("%v.P2Index(): got %d, wanted %d", tc.addr, got, tc.p2)
		}
		if got := tc.addr.P1Index(); got != tc.p1 {
			t.Errorf("%v.P1Index(): got %d, wanted %d", tc.addr, got, tc.p1)
		}
		if got := tc.addr.PageOffset(); got != tc.offset {
			t.Errorf("%v.PageOffset(): got %#x, wanted %#x", tc.addr, got, tc.offset)
		}
		if got := FromTableIndices(tc.p4, tc.p3, tc.p2, tc.p1, tc.offset); got != tc.addr {
			t.Errorf("FromTableIndices(%d, %d, %d, %d, %#x): got %v, wanted %v", tc.p4, tc.p3, tc.p2, tc.p1, tc.offset, got, tc.addr)
		}
	}
}

func TestTableIndexInvalidLevel(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("TableIndex(5) did not panic")
		}
	}()
	VirtualAddress(0).TableIndex(5)
}

func TestVirtualAlign(t *testing.T) {
	v := VirtualAddress(0x0000_0000_0020_1000)
	if got, want := v.AlignDown(HugePageSize), VirtualAddress(0x200000); got != want {
		t.Errorf("AlignDown: got %v, wanted %v", got, want)
	}
	up, ok := v.AlignUp(HugePageSize)
	if !ok || up != 0x400000 {
		t.Errorf("AlignUp: got (%v, %v), wanted (0x400000, true)", up, ok)
	}
	if _, ok := VirtualAddress(0x0000_7fff_ffff_f000).AlignUp(HugePageSize); ok {
		t.Errorf("AlignUp into the non-canonical hole succeeded")
	}
	if _, ok := VirtualAddress(0xffff_ffff_ffff_f000).AlignUp(HugePageSize); ok {
		t.Errorf("AlignUp past the end of the address space succeeded")
	}
	if !VirtualAddress(0x200000).IsAligned(HugePageSize) || v.IsAligned(HugePageSize) {
		t.Errorf("IsAligned returned inconsistent results")
	}
}

func TestVirtualAdd(t *testing.T) {
	if got, ok := VirtualAddress(0x1000).Add(0x1000); !ok || got != 0x2000 {
		t.Errorf("Add: got (%v, %v), wanted (0x2000, true)", got, ok)
	}
	if _, ok := VirtualAddress(0x0000_7fff_ffff_f000).Add(0x1000); ok {
		t.Errorf("Add into the non-canonical hole succeeded")
	}
	if _, ok := VirtualAddress(0xffff_ffff_ffff_f000).Add(0x1000); ok {
		t.Errorf("Add overflow succeeded")
	}
	if got, want := VirtualAddress(0x0000_7fff_ffff_f000).Offset(0x1000), VirtualAddress(0xffff_8000_0000_0000); got != want {
		t.Errorf("Offset: got %v, wanted %v", got, want)
	}
	if got, want := VirtualAddress(0x2000).Offset(-0x1000), VirtualAddress(0x1000); got != want {
		t.Errorf("Offset: got %v, wanted %v", got, want)
	}
}

func TestPhysicalAddress(t *testing.T) {
	if _, ok := NewPhysicalAddress(1 << PhysicalAddressBits); ok {
		t.Errorf("NewPhysicalAddress accepted an address beyond the physical width")
	}
	p, ok := NewPhysicalAddress(0x5123)
	if !ok {
		t.Fatalf("NewPhysicalAddress(0x5123) failed")
	}
	if got := p.AlignDown(PageSize); got != 0x5000 {
		t.Errorf("AlignDown: got %v, wanted 0x5000", got)
	}
	if got, ok := p.AlignUp(PageSize); !ok || got != 0x6000 {
		t.Errorf("AlignUp: got (%v, %v), wanted (0x6000, true)", got, ok)
	}
	if _, ok := PhysicalAddress(1<<PhysicalAddressBits - PageSize).Add(PageSize); ok {
		t.Errorf("Add beyond the physical width succeeded")
	}
}
