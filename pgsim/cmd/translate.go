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
)

// Translate implements subcommands.Command for the "translate" command.
type Translate struct {
	cpu int
}

// Name implements subcommands.Command.Name.
func (*Translate) Name() string {
	return "translate"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Translate) Synopsis() string {
	return "translates virtual addresses in the simulated address space"
}

// Usage implements subcommands.Command.Usage.
func (*Translate) Usage() string {
	return "translate [flags] <address>...\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (t *Translate) SetFlags(f *flag.FlagSet) {
	f.IntVar(&t.cpu, "cpu", 0, "CPU whose view of the address space is used.")
}

// Execute implements subcommands.Command.Execute.
func (t *Translate) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	var addrs []hostarch.VirtualAddress
	for _, arg := range f.Args() {
		addr, err := parseAddress(arg)
		if err != nil {
			return Errorf("%v", err)
		}
		addrs = append(addrs, addr)
	}
	conf := args[0].(*config.Config)
	if t.cpu < 0 || t.cpu >= conf.Cores {
		return Errorf("cpu %d not in [0, %d)", t.cpu, conf.Cores)
	}
	return withSession(conf, func(s *Session) error {
		return writeTranslations(os.Stdout, s, t.cpu, addrs)
	})
}

// writeTranslations writes one line per address, as resolved by the page
// tables and by the CPU's page walk. The two must agree.
func writeTranslations(w io.Writer, s *Session, cpu int, addrs []hostarch.VirtualAddress) error {
	space := s.SpaceOn(cpu)
	for _, addr := range addrs {
		phys, ok := space.Translate(addr)
		tr, walked := s.Machine.CPU(cpu).Walk(addr)
		switch {
		case ok != walked || (ok && phys != tr.Physical):
			return fmt.Errorf("%v: tables give (%v, %v), page walk gives (%v, %v)", addr, phys, ok, tr.Physical, walked)
		case !ok:
			fmt.Fprintf(w, "%v: not mapped\n", addr)
		default:
			attrs := tr.Permissions.String()
			if tr.User {
				attrs += " user"
			}
			if tr.Global {
				attrs += " global"
			}
			fmt.Fprintf(w, "%v -> %v (%s page, %s)\n", addr, phys, sizeName(tr.PageSize), attrs)
		}
	}
	return nil
}

func sizeName(size uint64) string {
	switch size {
	case hostarch.PageSize:
		return hostarch.Size4KiB{}.String()
	case hostarch.HugePageSize:
		return hostarch.Size2MiB{}.String()
	case hostarch.SuperPageSize:
		return hostarch.Size1GiB{}.String()
	default:
		return fmt.Sprintf("%#x", size)
	}
}
