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

	"golang.org/x/sys/unix"

	"pagecore.dev/pagecore/pkg/hostarch"
)

// PhysicalMemory is the physical address space of a Machine, backed by an
// anonymous host mapping. Physical address 0 is the first byte.
type PhysicalMemory struct {
	data []byte
}

// NewPhysicalMemory returns size bytes of zeroed physical memory.
func NewPhysicalMemory(size uint64) (*PhysicalMemory, error) {
	if size == 0 || size%hostarch.PageSize != 0 {
		return nil, fmt.Errorf("physical memory size %#x is not a positive multiple of %#x", size, hostarch.PageSize)
	}
	if _, ok := hostarch.NewPhysicalAddress(size - 1); !ok {
		return nil, fmt.Errorf("physical memory size %#x exceeds the physical address width", size)
	}
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE)
	if err != nil {
		return nil, fmt.Errorf("mapping %#x bytes of physical memory: %w", size, err)
	}
	return &PhysicalMemory{data: data}, nil
}

// Release unmaps the memory. It must not be used afterwards.
func (m *PhysicalMemory) Release() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}

// Size returns the size of the memory in bytes.
func (m *PhysicalMemory) Size() uint64 {
	return uint64(len(m.data))
}

// Contains returns true if [addr, addr+length) lies within the memory.
func (m *PhysicalMemory) Contains(addr hostarch.PhysicalAddress, length uint64) bool {
	end := uint64(addr) + length
	return end >= uint64(addr) && end <= m.Size()
}

// Discard zeroes [addr, addr+length), returning the host pages backing it.
//
// Precondition: addr and length are page aligned.
func (m *PhysicalMemory) Discard(addr hostarch.PhysicalAddress, length uint64) error {
	if !addr.IsAligned(hostarch.PageSize) || length%hostarch.PageSize != 0 {
		panic(fmt.Sprintf("unaligned discard of %v+%#x", addr, length))
	}
	if !m.Contains(addr, length) {
		return fmt.Errorf("discard of %v+%#x is outside physical memory", addr, length)
	}
	if length == 0 {
		return nil
	}
	return unix.Madvise(m.data[addr:uint64(addr)+length], unix.MADV_DONTNEED)
}

// ReadAt implements io.ReaderAt over physical addresses.
func (m *PhysicalMemory) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || !m.Contains(hostarch.PhysicalAddress(off), uint64(len(p))) {
		return 0, fmt.Errorf("read of %#x+%#x is outside physical memory", off, len(p))
	}
	return copy(p, m.data[off:]), nil
}

// WriteAt implements io.WriterAt over physical addresses.
func (m *PhysicalMemory) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || !m.Contains(hostarch.PhysicalAddress(off), uint64(len(p))) {
		return 0, fmt.Errorf("write of %#x+%#x is outside physical memory", off, len(p))
	}
	return copy(m.data[off:], p), nil
}
