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
	"fmt"
	"unsafe"

	"pagecore.dev/pagecore/pkg/hostarch"
)

// Size of a table, checked at compile time.
var _ [hostarch.PageSize]byte = [unsafe.Sizeof(PTEs{})]byte{}

// view returns the table at addr as entries.
//
// This is the only place a virtual address becomes a table.
func (p *PageTables) view(addr hostarch.VirtualAddress) *PTEs {
	if !addr.IsAligned(hostarch.PageSize) {
		panic(fmt.Sprintf("table address %v is not page aligned", addr))
	}
	return (*PTEs)(p.cpu.Pointer(addr))
}
