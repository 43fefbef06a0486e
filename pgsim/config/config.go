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

// Package config holds the pgsim configuration, read from a TOML file.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"pagecore.dev/pagecore/pkg/hostarch"
	"pagecore.dev/pagecore/pkg/log"
	"pagecore.dev/pagecore/pkg/ring0/pagetables"
)

// Strategy selects how the simulated address space is built.
type Strategy string

const (
	// PhysicalBase builds the address space through the mapping of all
	// physical memory, then switches to it.
	PhysicalBase Strategy = "physical-base"

	// Recursive builds the address space as inactive tables borrowed
	// through the kernel's recursive entry, then activates it.
	Recursive Strategy = "recursive"
)

const (
	// maxCores is the most simulated CPUs a configuration may ask for.
	maxCores = 256

	// lowerHalfEnd is one past the last lower half address.
	lowerHalfEnd = 1 << (hostarch.VirtualAddressBits - 1)
)

// Address is a virtual or physical address. In a file it may be an integer
// or, for addresses that do not fit a TOML integer, a string such as
// "0xffff_8000_0000_0000".
type Address uint64

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(b []byte) error {
	v, err := strconv.ParseUint(strings.TrimSpace(string(b)), 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", b, err)
	}
	*a = Address(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// String implements fmt.Stringer.String.
func (a Address) String() string {
	return fmt.Sprintf("%#x", uint64(a))
}

// Region is one mapped area of the simulated address space.
type Region struct {
	// Virtual is the first virtual address of the region.
	Virtual Address `toml:"virtual"`

	// Physical is the physical address Virtual maps to.
	Physical Address `toml:"physical"`

	// Length is the size of the region in bytes.
	Length uint64 `toml:"length"`

	Writable   bool `toml:"writable"`
	Executable bool `toml:"executable"`
	User       bool `toml:"user"`
	Global     bool `toml:"global"`
	Uncached   bool `toml:"uncached"`
}

// Opts returns the mapping options of the region.
func (r *Region) Opts() pagetables.MapOpts {
	opts := pagetables.MapOpts{
		AccessType: hostarch.AccessType{Read: true, Write: r.Writable, Execute: r.Executable},
		Global:     r.Global,
		User:       r.User,
	}
	if r.Uncached {
		opts.MemoryType = hostarch.MemoryTypeUncached
	}
	return opts
}

// End returns one past the last virtual address of the region.
func (r *Region) End() uint64 {
	return uint64(r.Virtual) + r.Length
}

// String implements fmt.Stringer.String.
func (r *Region) String() string {
	return fmt.Sprintf("%v+%#x -> %v (%v)", r.Virtual, r.Length, r.Physical, r.Opts())
}

// Config holds the configuration of a simulation.
type Config struct {
	// MemorySize is the size of simulated physical memory. All of it is
	// mapped in the kernel half.
	MemorySize uint64 `toml:"memory_size"`

	// Strategy selects how the address space is built.
	Strategy Strategy `toml:"strategy"`

	// Cores is the number of simulated CPUs the address space is installed
	// on.
	Cores int `toml:"cores"`

	// LogLevel is the lowest level logged.
	LogLevel log.Level `toml:"log_level"`

	// LogFormat is the log format, "text" or "json".
	LogFormat string `toml:"log_format"`

	// LogFile is where logs go. The token %COMMAND% is replaced by the
	// subcommand name. Logs go to stderr if empty.
	LogFile string `toml:"log_file"`

	// Regions are mapped in the lower half of the address space.
	Regions []Region `toml:"region"`
}

// Default returns the configuration used when no file is given: 64 MiB of
// memory, two cores and a single region mixing 4K and 2M pages.
func Default() *Config {
	return &Config{
		MemorySize: 64 << 20,
		Strategy:   Recursive,
		Cores:      2,
		LogLevel:   log.Info,
		LogFormat:  "text",
		Regions: []Region{
			{
				Virtual:  0x4000_0000_0000 - 0x3000,
				Physical: 0x20_0000 - 0x3000,
				Length:   0x60_0000,
				Writable: true,
				User:     true,
			},
		},
	}
}

// Load reads the file at path over the defaults. Keys that do not belong to
// the configuration are an error.
func Load(path string) (*Config, error) {
	c := Default()
	regions := c.Regions
	c.Regions = nil
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		return nil, fmt.Errorf("unknown keys in %q: %v", path, keys)
	}
	if !md.IsDefined("region") {
		c.Regions = regions
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %q: %w", path, err)
	}
	return c, nil
}

// Validate checks that the configuration can be simulated.
func (c *Config) Validate() error {
	if c.MemorySize == 0 || c.MemorySize > pagetables.PhysicalMappingSize || c.MemorySize%hostarch.PageSize != 0 {
		return fmt.Errorf("memory_size %#x must be a multiple of %#x in (0, %#x]", c.MemorySize, hostarch.PageSize, uint64(pagetables.PhysicalMappingSize))
	}
	switch c.Strategy {
	case PhysicalBase, Recursive:
	default:
		return fmt.Errorf("unknown strategy %q, must be %q or %q", c.Strategy, PhysicalBase, Recursive)
	}
	if c.Cores < 1 || c.Cores > maxCores {
		return fmt.Errorf("cores %d not in [1, %d]", c.Cores, maxCores)
	}
	if c.LogLevel > log.Debug {
		return fmt.Errorf("invalid log_level %v", c.LogLevel)
	}
	if _, err := log.FormatEmitter(c.LogFormat, nil); err != nil {
		return err
	}

	for i := range c.Regions {
		if err := c.validateRegion(&c.Regions[i]); err != nil {
			return fmt.Errorf("region %d: %w", i, err)
		}
	}
	sorted := make([]*Region, len(c.Regions))
	for i := range c.Regions {
		sorted[i] = &c.Regions[i]
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Virtual < sorted[j].Virtual })
	for i := 1; i < len(sorted); i++ {
		if prev := sorted[i-1]; prev.End() > uint64(sorted[i].Virtual) {
			return fmt.Errorf("regions %v and %v overlap", prev, sorted[i])
		}
	}
	return nil
}

func (c *Config) validateRegion(r *Region) error {
	if r.Length == 0 {
		return fmt.Errorf("empty region at %v", r.Virtual)
	}
	if uint64(r.Virtual)%hostarch.PageSize != 0 || uint64(r.Physical)%hostarch.PageSize != 0 || r.Length%hostarch.PageSize != 0 {
		return fmt.Errorf("%v is not page aligned", r)
	}
	// The upper half belongs to the kernel.
	if uint64(r.Virtual) >= lowerHalfEnd || r.Length > lowerHalfEnd-uint64(r.Virtual) {
		return fmt.Errorf("%v is not in the lower half", r)
	}
	if end := uint64(r.Physical) + r.Length; end < uint64(r.Physical) || end > c.MemorySize {
		return fmt.Errorf("%v exceeds physical memory of %#x bytes", r, c.MemorySize)
	}
	return nil
}

// Log logs the configuration.
func (c *Config) Log() {
	log.Infof("Config:")
	log.Infof("\tmemory_size: %#x", c.MemorySize)
	log.Infof("\tstrategy: %s", c.Strategy)
	log.Infof("\tcores: %d", c.Cores)
	log.Infof("\tlog_level: %v, log_format: %s, log_file: %q", c.LogLevel, c.LogFormat, c.LogFile)
	for i := range c.Regions {
		log.Infof("\tregion: %v", &c.Regions[i])
	}
}
