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
	"sync"

	"pagecore.dev/pagecore/pkg/cleanup"
	"pagecore.dev/pagecore/pkg/hostarch"
	"pagecore.dev/pagecore/pkg/log"
)

// Core owns the paging state of one CPU: which tables are active, and the
// recursive entry of the active tables.
//
// The active tables are reached through the recursive entry at index. Every
// set of tables activated on the Core must carry that entry.
type Core struct {
	cpu CPU

	// index is the recursive entry.
	index uint16

	// restore reaches the active root without the recursive entry. It is
	// used to put the recursive entry back after a borrow.
	restore Mapping

	// mu protects the fields below.
	mu sync.Mutex

	// active is the active tables, seen through the recursive entry.
	active *PageTables

	// borrowed is set while With runs.
	borrowed bool
}

// NewCore returns the Core for cpu, adopting the tables installed on it.
//
// Precondition: the installed tables carry a recursive entry at index, and
// restore reaches them.
func NewCore(cpu CPU, index uint16, restore Mapping) *Core {
	root := hostarch.MustFrameStartingAt[hostarch.Size4KiB](cpu.Root())
	return &Core{
		cpu:     cpu,
		index:   index,
		restore: restore,
		active:  FromFrame(cpu, root, Recursive{Index: index}),
	}
}

// Active returns the active tables.
func (c *Core) Active() *PageTables {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// NewInactive zeroes frame through the restore mapping and makes it the
// root of an inactive address space with the recursive entry installed. If
// kernel is set, the new tables share the active tables' KernelP4Entry.
func (c *Core) NewInactive(frame hostarch.Frame[hostarch.Size4KiB], kernel bool) *PageTables {
	p := New(c.cpu, frame, c.restore)
	p.installRecursiveEntry(c.index)
	if kernel {
		c.mu.Lock()
		active := c.active.Through(c.restore)
		c.mu.Unlock()
		if addr, ok := active.L4().Entry(KernelP4Entry).Address(); ok {
			p.L4().Entry(KernelP4Entry).Set(addr, Writable)
		}
	}
	return p.Through(Recursive{Index: c.index})
}

// Activate installs next and returns the previously active tables, which
// are now inactive.
//
// Precondition: next carries the Core's recursive entry.
func (c *Core) Activate(next *PageTables) (previous *PageTables) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.borrowed {
		panic("address space switch while the active tables are borrowed")
	}
	if addr, ok := next.Through(c.restore).L4().Entry(c.index).Address(); !ok || addr != next.root.Start() {
		panic(fmt.Sprintf("tables at %v have no recursive entry %d", next.root.Start(), c.index))
	}
	previous = c.active
	c.active = next.Through(Recursive{Index: c.index})
	c.active.SwitchTo()
	return previous
}

// With calls fn with a view of inactive reached through the active tables'
// recursive entry.
//
// The active recursive entry is pointed at inactive's root, and the TLB
// flushed, for the duration of fn. While it is redirected the active tables
// cannot see themselves, so fn must only touch the tables it is given. The
// entry is restored through the restore mapping, and the TLB flushed again,
// on every return from fn, including a panic.
//
// With may not be called from fn, and the Core may not switch tables while
// fn runs.
func (c *Core) With(inactive *PageTables, fn func(*PageTables) error) error {
	c.mu.Lock()
	if c.borrowed {
		c.mu.Unlock()
		panic("recursive borrow of the active tables")
	}
	c.borrowed = true
	active := c.active
	c.mu.Unlock()

	entry := active.L4().Entry(c.index)
	saved, _ := entry.Address()
	savedFlags := entry.Flags()

	cu := cleanup.Make(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.borrowed = false
	})
	defer cu.Clean()

	if log.IsLogging(log.Debug) {
		log.Debugf("Borrowing %v through recursive entry %d of %v", inactive.root.Start(), c.index, active.root.Start())
	}
	entry.Set(inactive.root.Start(), Present|Writable)
	c.cpu.Flush()
	cu.Add(func() {
		active.Through(c.restore).L4().Entry(c.index).Set(saved, savedFlags)
		c.cpu.Flush()
		if log.IsLogging(log.Debug) {
			log.Debugf("Restored recursive entry %d of %v", c.index, active.root.Start())
		}
	})

	return fn(inactive.Through(Recursive{Index: c.index}))
}
