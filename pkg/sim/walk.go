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

package sim

import (
	"pagecore.dev/pagecore/pkg/hostarch"
)

// Entry bits, as the hardware reads them.
const (
	ptePresent  = 1 << 0
	pteWrite    = 1 << 1
	pteUser     = 1 << 2
	pteAccessed = 1 << 5
	pteDirty    = 1 << 6
	pteLarge    = 1 << 7
	pteGlobal   = 1 << 8
	pteNX       = 1 << 63

	pteAddress = 0x000f_ffff_ffff_f000
)

// Translation is the result of a page walk.
type Translation struct {
	// Physical is the address the looked up address maps to.
	Physical hostarch.PhysicalAddress

	// PageSize is the size of the leaf that mapped it.
	PageSize uint64

	// Permissions are the accesses allowed by every level of the walk.
	Permissions hostarch.AccessType

	// User is true if every level allowed user access.
	User bool

	// Global is true if the leaf is global.
	Global bool
}

// walk performs a four-level page walk of addr from the installed root,
// setting accessed bits on the way and the dirty bit on the leaf for
// writes. It returns the level at which the walk found no entry, or 0.
func (c *CPU) walk(addr hostarch.VirtualAddress, write bool) (Translation, int) {
	t := Translation{
		Permissions: hostarch.AnyAccess,
		User:        true,
	}
	table := c.root
	for level := 4; level >= 1; level-- {
		slot := table + hostarch.PhysicalAddress(addr.TableIndex(level))*8
		entry := c.mem.Load64(slot)
		if entry&ptePresent == 0 {
			return Translation{}, level
		}
		t.Permissions.Write = t.Permissions.Write && entry&pteWrite != 0
		t.Permissions.Execute = t.Permissions.Execute && entry&pteNX == 0
		t.User = t.User && entry&pteUser != 0

		leaf := level == 1 || ((level == 2 || level == 3) && entry&pteLarge != 0)
		bits := uint64(pteAccessed)
		if leaf && write {
			bits |= pteDirty
		}
		if entry&bits != bits {
			c.mem.or64(slot, bits)
		}
		if leaf {
			size := uint64(hostarch.PageSize) << (hostarch.TableIndexBits * (level - 1))
			base := hostarch.PhysicalAddress(entry & pteAddress).AlignDown(size)
			t.Physical = base + hostarch.PhysicalAddress(uint64(addr)&(size-1))
			t.PageSize = size
			t.Global = entry&pteGlobal != 0
			return t, 0
		}
		table = hostarch.PhysicalAddress(entry & pteAddress)
	}
	panic("unreachable")
}
