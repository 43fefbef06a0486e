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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"pagecore.dev/pagecore/pgsim/config"
	"pagecore.dev/pagecore/pkg/hostarch"
	"pagecore.dev/pagecore/pkg/log"
)

// Verify implements subcommands.Command for the "verify" command.
type Verify struct {
	stride uint64
}

// Name implements subcommands.Command.Name.
func (*Verify) Name() string {
	return "verify"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Verify) Synopsis() string {
	return "checks every CPU's view of the configured regions against the page tables"
}

// Usage implements subcommands.Command.Usage.
func (*Verify) Usage() string {
	return "verify [flags]\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (v *Verify) SetFlags(f *flag.FlagSet) {
	f.Uint64Var(&v.stride, "stride", hostarch.PageSize, "distance in bytes between probed addresses.")
}

// Execute implements subcommands.Command.Execute.
func (v *Verify) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || v.stride == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return withSession(args[0].(*config.Config), func(s *Session) error {
		probes, err := verifySession(ctx, s, v.stride)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "verified %d addresses on %d CPUs\n", probes, s.Machine.NumCPUs())
		return nil
	})
}

// verifySession probes the regions every stride bytes, and just past their
// ends, on all CPUs concurrently. Each probe must resolve the same way
// through the page tables, the CPU's page walk and the CPU's TLB. It returns
// the number of probes made per CPU.
func verifySession(ctx context.Context, s *Session, stride uint64) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	counts := make([]int, s.Machine.NumCPUs())
	for id := range counts {
		g.Go(func() error {
			n, err := verifyCPU(ctx, s, id, stride)
			counts[id] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return counts[0], nil
}

func verifyCPU(ctx context.Context, s *Session, id int, stride uint64) (int, error) {
	space := s.SpaceOn(id)
	cpu := s.Machine.CPU(id)
	probes := 0
	for i := range s.Conf.Regions {
		r := &s.Conf.Regions[i]
		for off := uint64(0); off < r.Length; off += stride {
			if err := ctx.Err(); err != nil {
				return probes, err
			}
			addr := hostarch.VirtualAddress(uint64(r.Virtual) + off)
			want := hostarch.PhysicalAddress(uint64(r.Physical) + off)
			if got, ok := space.Translate(addr); !ok || got != want {
				return probes, fmt.Errorf("CPU %d: tables translate %v to (%v, %v), wanted %v", id, addr, got, ok, want)
			}
			tr, ok := cpu.Walk(addr)
			if !ok || tr.Physical != want {
				return probes, fmt.Errorf("CPU %d: page walk of %v gives (%+v, %v), wanted %v", id, addr, tr, ok, want)
			}
			opts := r.Opts()
			if tr.Permissions.Write != opts.AccessType.Write || tr.Permissions.Execute != opts.AccessType.Execute || tr.User != opts.User || tr.Global != opts.Global {
				return probes, fmt.Errorf("CPU %d: %v has attributes %+v, wanted %v", id, addr, tr, opts)
			}
			if got, fault := cpu.Lookup(addr, hostarch.Read); fault != nil || got != want {
				return probes, fmt.Errorf("CPU %d: TLB lookup of %v gives (%v, %v), wanted %v", id, addr, got, fault, want)
			}
			probes++
		}

		end := r.End()
		if end >= 1<<(hostarch.VirtualAddressBits-1) || s.covered(end) {
			continue
		}
		if _, ok := space.Translate(hostarch.VirtualAddress(end)); ok {
			return probes, fmt.Errorf("CPU %d: %v past the end of %v is mapped", id, hostarch.VirtualAddress(end), r)
		}
		if _, fault := cpu.Lookup(hostarch.VirtualAddress(end), hostarch.Read); fault == nil {
			return probes, fmt.Errorf("CPU %d: lookup of %v past the end of %v succeeded", id, hostarch.VirtualAddress(end), r)
		}
		probes++
	}
	stats := cpu.Stats()
	log.Infof("CPU %d: %d probes, %d walks, %d TLB hits, %d faults", id, probes, stats.Walks, stats.Hits, stats.Faults)
	return probes, nil
}

// covered returns true if a configured region maps addr.
func (s *Session) covered(addr uint64) bool {
	for i := range s.Conf.Regions {
		r := &s.Conf.Regions[i]
		if addr >= uint64(r.Virtual) && addr < r.End() {
			return true
		}
	}
	return false
}
