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

// Package sim is a software model of x86-64 paging hardware: physical
// memory, and CPUs with a paging root register, a TLB and a page walker.
//
// A CPU implements the MMU and Memory interfaces of the pagetables
// package, so page tables can be built, switched and borrowed on it exactly
// as on hardware. The TLB is not coherent with the tables: a translation
// that is changed without an invalidation stays stale, as it would on a real
// CPU.
package sim

import (
	"fmt"
	"time"
	"unsafe"

	"pagecore.dev/pagecore/pkg/hostarch"
	"pagecore.dev/pagecore/pkg/log"
)

// Machine is physical memory shared by a number of CPUs.
type Machine struct {
	mem  *PhysicalMemory
	cpus []*CPU
}

// NewMachine returns a machine with memSize bytes of physical memory and
// numCPUs CPUs, all with paging disabled.
func NewMachine(memSize uint64, numCPUs int) (*Machine, error) {
	if numCPUs < 1 {
		return nil, fmt.Errorf("invalid number of CPUs %d", numCPUs)
	}
	mem, err := NewPhysicalMemory(memSize)
	if err != nil {
		return nil, err
	}
	m := &Machine{mem: mem}
	for id := 0; id < numCPUs; id++ {
		m.cpus = append(m.cpus, newCPU(id, mem))
	}
	return m, nil
}

// Memory returns the machine's physical memory.
func (m *Machine) Memory() *PhysicalMemory {
	return m.mem
}

// NumCPUs returns the number of CPUs.
func (m *Machine) NumCPUs() int {
	return len(m.cpus)
}

// CPU returns CPU id.
func (m *Machine) CPU(id int) *CPU {
	return m.cpus[id]
}

// Release releases the machine's memory.
func (m *Machine) Release() error {
	return m.mem.Release()
}

// Stats are event counters of a CPU.
type Stats struct {
	Walks         uint64
	Hits          uint64
	Faults        uint64
	Invalidations uint64
	Flushes       uint64
	RootWrites    uint64
}

// tlbEntry caches the translation of one 4K page.
type tlbEntry struct {
	frame       hostarch.PhysicalAddress
	permissions hostarch.AccessType
	global      bool
}

// CPU is a single processor. A CPU must only be used by one goroutine at a
// time.
type CPU struct {
	id  int
	mem *PhysicalMemory

	// root is the paging root register.
	root hostarch.PhysicalAddress

	// paging is set once EnablePaging is called. Before that, virtual
	// addresses are physical addresses.
	paging bool

	// tlb is keyed by 4K virtual page.
	tlb map[hostarch.VirtualAddress]tlbEntry

	stats Stats

	// faults reports page faults without flooding the log.
	faults log.Logger
}

func newCPU(id int, mem *PhysicalMemory) *CPU {
	return &CPU{
		id:     id,
		mem:    mem,
		tlb:    make(map[hostarch.VirtualAddress]tlbEntry),
		faults: log.BasicRateLimitedLogger(time.Second),
	}
}

// ID returns the CPU's index in its machine.
func (c *CPU) ID() int {
	return c.id
}

// Stats returns the CPU's counters.
func (c *CPU) Stats() Stats {
	return c.stats
}

// EnablePaging turns on translation through the installed root.
func (c *CPU) EnablePaging() {
	if !c.mem.Contains(c.root, hostarch.PageSize) {
		panic(fmt.Sprintf("CPU %d: enabling paging with root %v outside physical memory", c.id, c.root))
	}
	c.paging = true
	c.dropTLB(true)
}

// PagingEnabled returns true once EnablePaging has been called.
func (c *CPU) PagingEnabled() bool {
	return c.paging
}

// Root implements pagetables.MMU.Root.
func (c *CPU) Root() hostarch.PhysicalAddress {
	return c.root
}

// SetRoot implements pagetables.MMU.SetRoot.
func (c *CPU) SetRoot(root hostarch.PhysicalAddress) {
	if !root.IsAligned(hostarch.PageSize) {
		panic(fmt.Sprintf("CPU %d: unaligned root %v", c.id, root))
	}
	c.stats.RootWrites++
	c.root = root
	c.dropTLB(false)
}

// InvalidatePage implements pagetables.MMU.InvalidatePage.
func (c *CPU) InvalidatePage(addr hostarch.VirtualAddress) {
	c.stats.Invalidations++
	delete(c.tlb, addr.AlignDown(hostarch.PageSize))
}

// Flush implements pagetables.MMU.Flush.
func (c *CPU) Flush() {
	c.stats.Flushes++
	c.dropTLB(false)
}

// dropTLB drops cached translations, keeping global ones unless all is set.
func (c *CPU) dropTLB(all bool) {
	for page, e := range c.tlb {
		if all || !e.global {
			delete(c.tlb, page)
		}
	}
}

// Cached returns true if the TLB holds a translation for addr.
func (c *CPU) Cached(addr hostarch.VirtualAddress) bool {
	_, ok := c.tlb[addr.AlignDown(hostarch.PageSize)]
	return ok
}

// Lookup translates addr for the given access, through the TLB as the
// hardware would. On success the translation is cached.
func (c *CPU) Lookup(addr hostarch.VirtualAddress, at hostarch.AccessType) (hostarch.PhysicalAddress, *PageFault) {
	if !c.paging {
		return hostarch.PhysicalAddress(addr), nil
	}
	page := addr.AlignDown(hostarch.PageSize)
	if e, ok := c.tlb[page]; ok {
		c.stats.Hits++
		if !permits(e.permissions, at) {
			c.stats.Faults++
			return 0, &PageFault{CPU: c.id, Addr: addr, Access: at, Present: true}
		}
		return e.frame + hostarch.PhysicalAddress(addr.PageOffset()), nil
	}

	c.stats.Walks++
	t, level := c.walk(addr, at.Write)
	if level != 0 {
		c.stats.Faults++
		return 0, &PageFault{CPU: c.id, Addr: addr, Access: at, Level: level}
	}
	if !permits(t.Permissions, at) {
		c.stats.Faults++
		return 0, &PageFault{CPU: c.id, Addr: addr, Access: at, Present: true}
	}
	c.tlb[page] = tlbEntry{
		frame:       t.Physical.AlignDown(hostarch.PageSize),
		permissions: t.Permissions,
		global:      t.Global,
	}
	return t.Physical, nil
}

// Walk returns the translation of addr straight from the tables, bypassing
// and leaving alone the TLB. ok is false if addr is not mapped.
func (c *CPU) Walk(addr hostarch.VirtualAddress) (t Translation, ok bool) {
	if !c.paging {
		return Translation{Physical: hostarch.PhysicalAddress(addr), PageSize: hostarch.PageSize, Permissions: hostarch.AnyAccess}, true
	}
	t, level := c.walk(addr, false)
	return t, level == 0
}

func permits(allowed, at hostarch.AccessType) bool {
	return (!at.Write || allowed.Write) && (!at.Execute || allowed.Execute)
}

// Access translates addr for the given access and panics with a *PageFault
// if it fails.
func (c *CPU) Access(addr hostarch.VirtualAddress, at hostarch.AccessType) hostarch.PhysicalAddress {
	phys, fault := c.Lookup(addr, at)
	if fault != nil {
		c.faults.Warningf("%v", fault)
		panic(fault)
	}
	return phys
}

// Pointer implements pagetables.Memory.Pointer. The page at addr must be
// mapped writable.
func (c *CPU) Pointer(addr hostarch.VirtualAddress) unsafe.Pointer {
	return c.mem.page(c.Access(addr, hostarch.ReadWrite))
}

// ReadUint64 reads the word at addr.
func (c *CPU) ReadUint64(addr hostarch.VirtualAddress) uint64 {
	return c.mem.Load64(c.Access(addr, hostarch.Read))
}

// WriteUint64 writes the word at addr.
func (c *CPU) WriteUint64(addr hostarch.VirtualAddress, v uint64) {
	c.mem.Store64(c.Access(addr, hostarch.Write), v)
}
