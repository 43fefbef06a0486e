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
	"io"
	"os"

	"github.com/google/subcommands"

	"pagecore.dev/pagecore/pgsim/config"
	"pagecore.dev/pagecore/pkg/hostarch"
	"pagecore.dev/pagecore/pkg/ring0/pagetables"
)

// Boot implements subcommands.Command for the "boot" command.
type Boot struct{}

// Name implements subcommands.Command.Name.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Boot) Synopsis() string {
	return "boots the simulated machine and summarizes the address space"
}

// Usage implements subcommands.Command.Usage.
func (*Boot) Usage() string {
	return "boot\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Boot) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Boot) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return withSession(args[0].(*config.Config), func(s *Session) error {
		return writeSummary(os.Stdout, s)
	})
}

// writeSummary writes the layout of the session's address space and what it
// cost to build.
func writeSummary(w io.Writer, s *Session) error {
	var user, kernel [3]uint64
	s.Space.Walk(func(l pagetables.Leaf) bool {
		counts := &user
		if l.Start >= pagetables.PhysicalMappingBase {
			counts = &kernel
		}
		switch l.Size {
		case hostarch.PageSize:
			counts[0]++
		case hostarch.HugePageSize:
			counts[1]++
		default:
			counts[2]++
		}
		return true
	})
	fmt.Fprintf(w, "strategy:     %s\n", s.Conf.Strategy)
	fmt.Fprintf(w, "cpus:         %d\n", s.Machine.NumCPUs())
	fmt.Fprintf(w, "memory:       %#x bytes\n", s.Conf.MemorySize)
	fmt.Fprintf(w, "kernel root:  %v\n", s.Kernel.Root().Start())
	fmt.Fprintf(w, "space root:   %v\n", s.Space.Root().Start())
	fmt.Fprintf(w, "user pages:   %d 4KiB, %d 2MiB, %d 1GiB\n", user[0], user[1], user[2])
	fmt.Fprintf(w, "kernel pages: %d 4KiB, %d 2MiB, %d 1GiB\n", kernel[0], kernel[1], kernel[2])
	_, err := fmt.Fprintf(w, "tables:       %d frames\n", s.Alloc.Outstanding())
	return err
}
