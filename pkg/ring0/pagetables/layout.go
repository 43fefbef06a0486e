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
	"pagecore.dev/pagecore/pkg/hostarch"
)

// Kernel address space layout. These are fixed when the kernel image is
// built.
const (
	// KernelP4Entry is the top-level entry shared by every address space.
	// It holds the kernel image and the physical memory mapping.
	KernelP4Entry = 511

	// RecursiveEntry is the top-level entry that refers back to the
	// top-level table under the recursive strategy.
	RecursiveEntry = 510

	// PhysicalMappingBase is where all of physical memory is mapped, at
	// the start of KernelP4Entry.
	PhysicalMappingBase hostarch.VirtualAddress = 0xffff_ff80_0000_0000

	// PhysicalMappingSize is the most physical memory that can be mapped
	// from PhysicalMappingBase.
	PhysicalMappingSize = 1 << 39
)

// KernelMapOpts returns the options used for kernel mappings of physical memory.
func KernelMapOpts() MapOpts {
	return MapOpts{
		AccessType: hostarch.ReadWrite,
		Global:     true,
	}
}
