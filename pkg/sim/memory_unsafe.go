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

package sim

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"pagecore.dev/pagecore/pkg/hostarch"
)

// page returns a pointer to the start of the page containing addr.
func (m *PhysicalMemory) page(addr hostarch.PhysicalAddress) unsafe.Pointer {
	base := addr.AlignDown(hostarch.PageSize)
	if !m.Contains(base, hostarch.PageSize) {
		panic(fmt.Sprintf("physical address %v is outside physical memory of %#x bytes", addr, m.Size()))
	}
	return unsafe.Pointer(&m.data[base])
}

// word returns the 8 byte aligned word at addr.
func (m *PhysicalMemory) word(addr hostarch.PhysicalAddress) *uint64 {
	if !addr.IsAligned(8) {
		panic(fmt.Sprintf("unaligned word access at %v", addr))
	}
	return (*uint64)(unsafe.Add(m.page(addr), uint64(addr)%hostarch.PageSize))
}

// Load64 atomically loads the word at addr.
func (m *PhysicalMemory) Load64(addr hostarch.PhysicalAddress) uint64 {
	return atomic.LoadUint64(m.word(addr))
}

// Store64 atomically stores v to the word at addr.
func (m *PhysicalMemory) Store64(addr hostarch.PhysicalAddress, v uint64) {
	atomic.StoreUint64(m.word(addr), v)
}

// or64 atomically sets bits in the word at addr.
func (m *PhysicalMemory) or64(addr hostarch.PhysicalAddress, bits uint64) {
	atomic.OrUint64(m.word(addr), bits)
}
