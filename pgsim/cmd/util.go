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
	"fmt"
	"os"
	"strconv"

	"github.com/google/subcommands"

	"pagecore.dev/pagecore/pgsim/config"
	"pagecore.dev/pagecore/pkg/hostarch"
	"pagecore.dev/pagecore/pkg/log"
)

// Errorf logs the error and writes it to stderr. It returns ExitFailure so
// that commands can return its result.
func Errorf(format string, args ...any) subcommands.ExitStatus {
	log.Warningf(format, args...)
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return subcommands.ExitFailure
}

// Fatalf logs the same way as Errorf and exits with status 128, a value
// unlikely to be confused with a command result.
func Fatalf(format string, args ...any) {
	Errorf(format, args...)
	os.Exit(128)
}

// parseAddress parses a canonical virtual address in any base accepted by
// strconv.
func parseAddress(s string) (hostarch.VirtualAddress, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	addr, ok := hostarch.NewVirtualAddress(v)
	if !ok {
		return 0, fmt.Errorf("address %#x is not canonical", v)
	}
	return addr, nil
}

// withSession boots conf and calls fn with the session, releasing it after.
func withSession(conf *config.Config, fn func(s *Session) error) subcommands.ExitStatus {
	s, err := NewSession(conf)
	if err != nil {
		return Errorf("booting: %v", err)
	}
	defer s.Release()
	if err := fn(s); err != nil {
		return Errorf("%v", err)
	}
	return subcommands.ExitSuccess
}
