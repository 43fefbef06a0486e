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

// Package cmd holds implementations of the pgsim commands.
package cmd

import (
	"fmt"
	"sort"

	"pagecore.dev/pagecore/pgsim/config"
	"pagecore.dev/pagecore/pkg/frames"
	"pagecore.dev/pagecore/pkg/hostarch"
	"pagecore.dev/pagecore/pkg/log"
	"pagecore.dev/pagecore/pkg/ring0"
	"pagecore.dev/pagecore/pkg/ring0/pagetables"
	"pagecore.dev/pagecore/pkg/sim"
)

// Session is a booted simulation: a machine whose CPUs all run one address
// space holding the configured regions and the kernel half.
type Session struct {
	Conf    *config.Config
	Machine *sim.Machine
	Kernel  *ring0.Kernel

	// Alloc supplies every table frame.
	Alloc *frames.Counting

	// Space is the address space, reached through the physical memory
	// mapping of CPU 0.
	Space *pagetables.PageTables
}

// NewSession boots a session from conf.
//
// Table frames come from physical memory not used by any region, so that
// regions can be written without corrupting the tables.
func NewSession(conf *config.Config) (*Session, error) {
	m, err := sim.NewMachine(conf.MemorySize, conf.Cores)
	if err != nil {
		return nil, err
	}
	s := &Session{
		Conf:    conf,
		Machine: m,
		Alloc:   frames.NewCounting(tableMemory(conf)),
	}
	if err := s.boot(); err != nil {
		m.Release()
		return nil, err
	}
	return s, nil
}

// tableMemory returns an allocator over the frames of conf's memory that no
// region maps. Frame 0 is never handed out.
func tableMemory(conf *config.Config) *frames.RegionAllocator {
	type span struct{ start, end uint64 }
	used := []span{{0, hostarch.PageSize}}
	for i := range conf.Regions {
		r := &conf.Regions[i]
		used = append(used, span{uint64(r.Physical), uint64(r.Physical) + r.Length})
	}
	sort.Slice(used, func(i, j int) bool { return used[i].start < used[j].start })

	a := frames.NewRegionAllocator()
	var next uint64
	for _, u := range used {
		if u.start > next {
			a.AddRegion(hostarch.PhysicalAddress(next), hostarch.PhysicalAddress(u.start))
		}
		if u.end > next {
			next = u.end
		}
	}
	if next < conf.MemorySize {
		a.AddRegion(hostarch.PhysicalAddress(next), hostarch.PhysicalAddress(conf.MemorySize))
	}
	return a
}

func (s *Session) boot() (err error) {
	boot := s.Machine.CPU(0)
	defer func() {
		// Allocators panic when memory runs out.
		if r := recover(); r != nil {
			if r != frames.ErrExhausted {
				panic(r)
			}
			err = fmt.Errorf("booting with %#x bytes of memory: %w", s.Conf.MemorySize, frames.ErrExhausted)
		}
	}()

	s.Kernel, err = ring0.NewKernel(boot, ring0.KernelOpts{MemorySize: s.Conf.MemorySize, Allocator: s.Alloc})
	if err != nil {
		return err
	}
	for i := 0; i < s.Machine.NumCPUs(); i++ {
		cpu := s.Machine.CPU(i)
		s.Kernel.Install(cpu)
		cpu.EnablePaging()
	}

	switch s.Conf.Strategy {
	case config.PhysicalBase:
		err = s.buildPhysical(boot)
	case config.Recursive:
		err = s.buildRecursive(boot)
	default:
		err = fmt.Errorf("unknown strategy %q", s.Conf.Strategy)
	}
	if err != nil {
		return err
	}

	for i := 1; i < s.Machine.NumCPUs(); i++ {
		s.Machine.CPU(i).SetRoot(s.Space.Root().Start())
	}
	log.Infof("Booted %d CPUs on address space %v: %d regions, %d table frames", s.Machine.NumCPUs(), s.Space.Root().Start(), len(s.Conf.Regions), s.Alloc.Outstanding())
	return nil
}

// buildPhysical maps the regions into fresh tables through the physical
// memory mapping and switches to them.
func (s *Session) buildPhysical(cpu *sim.CPU) error {
	space := s.Kernel.NewAddressSpace(cpu)
	if err := s.mapRegions(space); err != nil {
		return err
	}
	space.SwitchTo()
	s.Space = space
	return nil
}

// buildRecursive maps the regions into inactive tables borrowed through the
// kernel's recursive entry and activates them.
func (s *Session) buildRecursive(cpu *sim.CPU) error {
	core := s.Kernel.Core(cpu)
	inactive := core.NewInactive(s.Alloc.Allocate(), true)
	if err := core.With(inactive, s.mapRegions); err != nil {
		return err
	}
	core.Activate(inactive)
	s.Space = inactive.Through(pagetables.PhysicalBase{Base: pagetables.PhysicalMappingBase})
	return nil
}

func (s *Session) mapRegions(p *pagetables.PageTables) error {
	for i := range s.Conf.Regions {
		r := &s.Conf.Regions[i]
		log.Debugf("Mapping region %v", r)
		if err := p.MapArea(hostarch.VirtualAddress(r.Virtual), hostarch.PhysicalAddress(r.Physical), r.Length, r.Opts(), s.Alloc); err != nil {
			return fmt.Errorf("region %v: %w", r, err)
		}
	}
	return nil
}

// SpaceOn returns the address space as seen from CPU id.
func (s *Session) SpaceOn(id int) *pagetables.PageTables {
	return pagetables.FromFrame(s.Machine.CPU(id), s.Space.Root(), s.Space.Mapping())
}

// Release frees the simulated machine.
func (s *Session) Release() error {
	return s.Machine.Release()
}
