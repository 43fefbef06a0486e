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

	"pagecore.dev/pagecore/pkg/hostarch"
)

// PageFault describes a failed translation. CPU.Access and CPU.Pointer
// panic with a *PageFault.
type PageFault struct {
	// CPU is the faulting CPU.
	CPU int

	// Addr is the faulting address.
	Addr hostarch.VirtualAddress

	// Access is the attempted access.
	Access hostarch.AccessType

	// Present is true if the translation exists but forbids Access.
	Present bool

	// Level is the table level at which the walk stopped. It is zero for
	// protection faults.
	Level int
}

// Error implements error.Error.
func (f *PageFault) Error() string {
	if f.Present {
		return fmt.Sprintf("CPU %d: protection fault on %v access to %v", f.CPU, f.Access, f.Addr)
	}
	return fmt.Sprintf("CPU %d: page fault on %v access to %v: no entry at level %d", f.CPU, f.Access, f.Addr, f.Level)
}
