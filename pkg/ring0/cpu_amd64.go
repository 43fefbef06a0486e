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

//go:build amd64
// +build amd64

package ring0

import (
	"pagecore.dev/pagecore/pkg/hostarch"
	"pagecore.dev/pagecore/pkg/ring0/pagetables"
)

// cr3AddressMask selects the root table address in CR3.
const cr3AddressMask = 0x000f_ffff_ffff_f000

// Direct is the CPU the caller is running on. It may only be used in ring 0,
// with interrupts disabled for as long as the caller depends on staying on
// the same CPU.
type Direct struct{}

var _ pagetables.CPU = Direct{}

// Root implements pagetables.MMU.Root.
func (Direct) Root() hostarch.PhysicalAddress {
	return hostarch.PhysicalAddress(readCR3() & cr3AddressMask)
}

// SetRoot implements pagetables.MMU.SetRoot.
func (Direct) SetRoot(root hostarch.PhysicalAddress) {
	writeCR3(uintptr(root))
}

// InvalidatePage implements pagetables.MMU.InvalidatePage.
func (Direct) InvalidatePage(addr hostarch.VirtualAddress) {
	invlpg(addr.Pointer())
}

// Flush implements pagetables.MMU.Flush. Reloading CR3 leaves global
// translations in place.
func (Direct) Flush() {
	writeCR3(readCR3())
}
