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
	"strings"
	"sync/atomic"

	"pagecore.dev/pagecore/pkg/hostarch"
)

// Flags are the attribute bits of a page table entry.
type Flags uint64

// Entry flags.
const (
	Present        Flags = 1 << 0
	Writable       Flags = 1 << 1
	UserAccessible Flags = 1 << 2
	WriteThrough   Flags = 1 << 3
	NoCache        Flags = 1 << 4
	Accessed       Flags = 1 << 5
	Dirty          Flags = 1 << 6
	HugePage       Flags = 1 << 7
	Global         Flags = 1 << 8
	NoExecute      Flags = 1 << 63
)

// nonTerminalFlags are installed on every entry that points at a child
// table. Access control is enforced only by leaf entries.
const nonTerminalFlags = Present | Writable | UserAccessible

const (
	// addressMask selects the frame address field, bits 12-51.
	addressMask = 0x000f_ffff_ffff_f000

	// flagsMask selects every bit outside the address field.
	flagsMask = ^uint64(addressMask)

	entriesPerPage = 512
	entrySize      = 8
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{Present, "PRESENT"},
	{Writable, "WRITABLE"},
	{UserAccessible, "USER_ACCESSIBLE"},
	{WriteThrough, "WRITE_THROUGH"},
	{NoCache, "NO_CACHE"},
	{Accessed, "ACCESSED"},
	{Dirty, "DIRTY"},
	{HugePage, "HUGE_PAGE"},
	{Global, "GLOBAL"},
	{NoExecute, "NO_EXECUTE"},
}

// String implements fmt.Stringer.String.
func (f Flags) String() string {
	if f == 0 {
		return "0"
	}
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
			f &^= fn.flag
		}
	}
	if f != 0 {
		names = append(names, fmt.Sprintf("%#x", uint64(f)))
	}
	return strings.Join(names, " | ")
}

// MapOpts are the options for a leaf mapping.
type MapOpts struct {
	// AccessType defines permissions.
	AccessType hostarch.AccessType

	// Global indicates the page is globally accessible.
	Global bool

	// User indicates the page is a user page.
	User bool

	// MemoryType is the memory type.
	MemoryType hostarch.MemoryType
}

// String implements fmt.Stringer.String.
func (opts MapOpts) String() string {
	s := opts.AccessType.String() + " " + opts.MemoryType.ShortString()
	if opts.User {
		s += " user"
	}
	if opts.Global {
		s += " global"
	}
	return s
}

// flagsFor returns the leaf entry flags for opts. Present is always set, and
// a mapping that is not executable gets NoExecute.
func flagsFor(opts MapOpts) Flags {
	flags := Present
	if opts.AccessType.Write {
		flags |= Writable
	}
	if opts.User {
		flags |= UserAccessible
	}
	if !opts.AccessType.Execute {
		flags |= NoExecute
	}
	if opts.Global {
		flags |= Global
	}
	switch opts.MemoryType {
	case hostarch.MemoryTypeUncached:
		flags |= NoCache
	case hostarch.MemoryTypeWriteThrough:
		flags |= WriteThrough
	}
	return flags
}

// PTE is a single page table entry.
//
// An entry is either unused (all zero) or has Present set.
type PTE uint64

// PTEs is a collection of entries: one table.
type PTEs [entriesPerPage]PTE

func (p *PTE) load() uint64 {
	return atomic.LoadUint64((*uint64)(p))
}

func (p *PTE) store(v uint64) {
	atomic.StoreUint64((*uint64)(p), v)
}

// IsUnused returns true if the entry holds the unused sentinel.
func (p *PTE) IsUnused() bool {
	return p.load() == 0
}

// Valid returns true iff this entry is present.
func (p *PTE) Valid() bool {
	return Flags(p.load())&Present != 0
}

// IsHuge returns true if the entry is a 2M or 1G leaf.
func (p *PTE) IsHuge() bool {
	return Flags(p.load())&HugePage != 0
}

// Flags returns the entry's flag bits.
func (p *PTE) Flags() Flags {
	return Flags(p.load() & flagsMask)
}

// Address returns the frame address held by the entry. ok is false if the
// entry is not present.
func (p *PTE) Address() (addr hostarch.PhysicalAddress, ok bool) {
	v := p.load()
	if Flags(v)&Present == 0 {
		return 0, false
	}
	return hostarch.PhysicalAddress(v & addressMask), true
}

// Set writes addr and flags to the entry. Present is always set.
func (p *PTE) Set(addr hostarch.PhysicalAddress, flags Flags) {
	p.store(uint64(addr)&addressMask | uint64(flags|Present))
}

// Clear clears this PTE, including the address.
func (p *PTE) Clear() {
	p.store(0)
}

// Opts returns the leaf options described by the entry.
func (p *PTE) Opts() MapOpts {
	f := p.Flags()
	if f&Present == 0 {
		return MapOpts{}
	}
	var mt hostarch.MemoryType
	switch {
	case f&NoCache != 0:
		mt = hostarch.MemoryTypeUncached
	case f&WriteThrough != 0:
		mt = hostarch.MemoryTypeWriteThrough
	}
	return MapOpts{
		AccessType: hostarch.AccessType{
			Read:    true,
			Write:   f&Writable != 0,
			Execute: f&NoExecute == 0,
		},
		Global:     f&Global != 0,
		User:       f&UserAccessible != 0,
		MemoryType: mt,
	}
}

// String implements fmt.Stringer.String.
func (p *PTE) String() string {
	addr, ok := p.Address()
	if !ok {
		return "Not Present"
	}
	if p.IsHuge() {
		return fmt.Sprintf("[HUGE] Address: %v, Flags: %v", addr, p.Flags())
	}
	return fmt.Sprintf("Address: %v, Flags: %v", addr, p.Flags())
}
