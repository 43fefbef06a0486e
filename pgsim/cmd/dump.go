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
	"pagecore.dev/pagecore/pkg/ring0/pagetables"
)

// Dump implements subcommands.Command for the "dump" command.
type Dump struct {
	kernel bool
	tables bool
}

// Name implements subcommands.Command.Name.
func (*Dump) Name() string {
	return "dump"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Dump) Synopsis() string {
	return "lists the leaf mappings of the simulated address space"
}

// Usage implements subcommands.Command.Usage.
func (*Dump) Usage() string {
	return "dump [flags]\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (d *Dump) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&d.kernel, "kernel", false, "include the kernel half.")
	f.BoolVar(&d.tables, "tables", false, "print the populated top-level entries first.")
}

// Execute implements subcommands.Command.Execute.
func (d *Dump) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return withSession(args[0].(*config.Config), func(s *Session) error {
		if d.tables {
			if err := writeTopLevel(os.Stdout, s.Space); err != nil {
				return err
			}
		}
		return writeMappings(os.Stdout, s.Space, d.kernel)
	})
}

// writeTopLevel writes every populated top-level entry of p.
func writeTopLevel(w io.Writer, p *pagetables.PageTables) error {
	l4 := p.L4()
	for i := uint16(0); i < 512; i++ {
		if e := l4.Entry(i); !e.IsUnused() {
			if _, err := fmt.Fprintf(w, "L4[%3d] %v\n", i, e); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeMappings writes the leaves of p in address order, leaving out the
// kernel half unless kernel is set.
func writeMappings(w io.Writer, p *pagetables.PageTables, kernel bool) error {
	var err error
	p.Walk(func(l pagetables.Leaf) bool {
		if !kernel && l.Start >= pagetables.PhysicalMappingBase {
			return false
		}
		_, err = fmt.Fprintln(w, l)
		return err == nil
	})
	return err
}
