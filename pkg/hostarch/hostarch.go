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

// Package hostarch contains the address, frame and page types shared by the
// paging core and its collaborators on x86-64 with four-level paging.
package hostarch

const (
	// PageShift is the binary log of the smallest page size.
	PageShift = 12

	// PageSize is the smallest page size.
	PageSize = 1 << PageShift

	// HugePageShift is the binary log of the huge (level 2) page size.
	HugePageShift = 21

	// HugePageSize is the huge page size.
	HugePageSize = 1 << HugePageShift

	// SuperPageShift is the binary log of the super (level 3) page size.
	SuperPageShift = 30

	// SuperPageSize is the super page size.
	SuperPageSize = 1 << SuperPageShift

	// VirtualAddressBits is the number of implemented virtual address bits.
	VirtualAddressBits = 48

	// PhysicalAddressBits is the architectural limit on physical address
	// width.
	PhysicalAddressBits = 52

	// TableIndexBits is the width of each per-level table index.
	TableIndexBits = 9
)
