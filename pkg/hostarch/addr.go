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
	"fmt"

	"pagecore.dev/pagecore/pkg/bits"
)

// Canonical address constraints.
const (
	lowerTop    = 0x0000_7fff_ffff_ffff
	upperBottom = 0xffff_8000_0000_0000

	signBit       = VirtualAddressBits - 1
	signExtension = 0xffff_0000_0000_0000
)

// VirtualAddress is a canonical virtual address.
//
// The only ways to obtain one are NewVirtualAddress, which rejects
// non-canonical input, and CanonicalVirtualAddress, which sign-extends bit 47
// into bits 48-63.
type VirtualAddress uint64

// IsCanonical returns true if addr lies in [0, 2^47) or [2^64-2^47, 2^64).
func IsCanonical(addr uint64) bool {
	return addr <= lowerTop || addr >= upperBottom
}

// NewVirtualAddress returns addr as a VirtualAddress. ok is false if addr is
// not canonical.
func NewVirtualAddress(addr uint64) (v VirtualAddress, ok bool) {
	if !IsCanonical(addr) {
		return 0, false
	}
	return VirtualAddress(addr), true
}

// CanonicalVirtualAddress returns addr with bit 47 replicated into bits
// 48-63.
func CanonicalVirtualAddress(addr uint64) VirtualAddress {
	low := addr & (1<<VirtualAddressBits - 1)
	if bits.Field(addr, signBit, signBit+1) == 1 {
		return VirtualAddress(low | signExtension)
	}
	return VirtualAddress(low)
}

// FromTableIndices builds the canonical address selected by the given
// per-level table indices and page offset.
func FromTableIndices(p4, p3, p2, p1 uint16, offset uint64) VirtualAddress {
	return CanonicalVirtualAddress(uint64(p4&0x1ff)<<39 |
		uint64(p3&0x1ff)<<30 |
		uint64(p2&0x1ff)<<21 |
		uint64(p1&0x1ff)<<12 |
		offset&(PageSize-1))
}

// Canonicalise is CanonicalVirtualAddress applied to v. It is idempotent.
func (v VirtualAddress) Canonicalise() VirtualAddress {
	return CanonicalVirtualAddress(uint64(v))
}

// TableIndex returns the index into the table at the given level (4 is the
// top-level table, 1 the lowest) selected by v.
//
// Precondition: 1 <= level <= 4.
func (v VirtualAddress) TableIndex(level int) uint16 {
	if level < 1 || level > 4 {
		panic(fmt.Sprintf("invalid table level %d", level))
	}
	lo := PageShift + (level-1)*TableIndexBits
	return uint16(bits.Field(uint64(v), lo, lo+TableIndexBits))
}

// P4Index returns the top-level table index (bits 39-47).
func (v VirtualAddress) P4Index() uint16 { return v.TableIndex(4) }

// P3Index returns the level 3 table index (bits 30-38).
func (v VirtualAddress) P3Index() uint16 { return v.TableIndex(3) }

// P2Index returns the level 2 table index (bits 21-29).
func (v VirtualAddress) P2Index() uint16 { return v.TableIndex(2) }

// P1Index returns the level 1 table index (bits 12-20).
func (v VirtualAddress) P1Index() uint16 { return v.TableIndex(1) }

// PageOffset returns the offset of v into its 4K page.
func (v VirtualAddress) PageOffset() uint64 {
	return uint64(v) & (PageSize - 1)
}

// IsAligned returns true if v is a multiple of align.
//
// Precondition: align is a power of two.
func (v VirtualAddress) IsAligned(align uint64) bool {
	return bits.IsAligned(uint64(v), align)
}

// AlignDown returns the greatest address with the given alignment that is
// not above v.
//
// Precondition: align is a power of two.
func (v VirtualAddress) AlignDown(align uint64) VirtualAddress {
	if !bits.IsPowerOfTwo(align) {
		panic(fmt.Sprintf("alignment %#x is not a power of two", align))
	}
	return CanonicalVirtualAddress(bits.AlignDown(uint64(v), align))
}

// AlignUp returns the smallest address with the given alignment that is not
// below v. ok is false if no such canonical address exists.
//
// Precondition: align is a power of two.
func (v VirtualAddress) AlignUp(align uint64) (VirtualAddress, bool) {
	if !bits.IsPowerOfTwo(align) {
		panic(fmt.Sprintf("alignment %#x is not a power of two", align))
	}
	up := bits.AlignUp(uint64(v), align)
	if up < uint64(v) {
		return 0, false
	}
	return NewVirtualAddress(up)
}

// Add returns v+length. ok is false if the result overflows or is not
// canonical.
func (v VirtualAddress) Add(length uint64) (VirtualAddress, bool) {
	end := uint64(v) + length
	if end < uint64(v) {
		return 0, false
	}
	return NewVirtualAddress(end)
}

// Offset returns v moved by delta, canonicalising the result.
func (v VirtualAddress) Offset(delta int64) VirtualAddress {
	return CanonicalVirtualAddress(uint64(int64(v) + delta))
}

// Pointer returns v as a raw pointer value.
func (v VirtualAddress) Pointer() uintptr {
	return uintptr(v)
}

// String implements fmt.Stringer.String.
func (v VirtualAddress) String() string {
	return fmt.Sprintf("%#x", uint64(v))
}

// PhysicalAddress is a physical memory address. It is never dereferenced
// directly; tables and frames are reached through a translation.
type PhysicalAddress uint64

// maxPhysical is one past the largest representable physical address.
const maxPhysical = 1 << PhysicalAddressBits

// NewPhysicalAddress returns addr as a PhysicalAddress. ok is false if addr
// exceeds the physical address width.
func NewPhysicalAddress(addr uint64) (p PhysicalAddress, ok bool) {
	if addr >= maxPhysical {
		return 0, false
	}
	return PhysicalAddress(addr), true
}

// IsAligned returns true if p is a multiple of align.
//
// Precondition: align is a power of two.
func (p PhysicalAddress) IsAligned(align uint64) bool {
	return bits.IsAligned(uint64(p), align)
}

// AlignDown rounds p down to a multiple of align.
//
// Precondition: align is a power of two.
func (p PhysicalAddress) AlignDown(align uint64) PhysicalAddress {
	return PhysicalAddress(bits.AlignDown(uint64(p), align))
}

// AlignUp rounds p up to a multiple of align. ok is false if the result
// exceeds the physical address width.
//
// Precondition: align is a power of two.
func (p PhysicalAddress) AlignUp(align uint64) (PhysicalAddress, bool) {
	return NewPhysicalAddress(bits.AlignUp(uint64(p), align))
}

// Add returns p+length. ok is false if the result exceeds the physical
// address width.
func (p PhysicalAddress) Add(length uint64) (PhysicalAddress, bool) {
	end := uint64(p) + length
	if end < uint64(p) {
		return 0, false
	}
	return NewPhysicalAddress(end)
}

// String implements fmt.Stringer.String.
func (p PhysicalAddress) String() string {
	return fmt.Sprintf("%#x", uint64(p))
}
