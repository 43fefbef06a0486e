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
	"testing"

	"pagecore.dev/pagecore/pkg/hostarch"
)

func TestRecursiveAddresses(t *testing.T) {
	m := Recursive{Index: RecursiveEntry}
	root := m.Root(0x1234_5000)
	if want := hostarch.VirtualAddress(0xffff_ff7f_bfdf_e000); root != want {
		t.Errorf("Root: got %v, wanted %v", root, want)
	}
	l3 := m.Child(root, 3, 0)
	if want := hostarch.FromTableIndices(RecursiveEntry, RecursiveEntry, RecursiveEntry, 3, 0); l3 != want {
		t.Errorf("Child(root, 3): got %v, wanted %v", l3, want)
	}
	l2 := m.Child(l3, 7, 0)
	if want := hostarch.FromTableIndices(RecursiveEntry, RecursiveEntry, 3, 7, 0); l2 != want {
		t.Errorf("Child(l3, 7): got %v, wanted %v", l2, want)
	}
	l1 := m.Child(l2, 256, 0)
	if want := hostarch.FromTableIndices(RecursiveEntry, 3, 7, 256, 0); l1 != want {
		t.Errorf("Child(l2, 256): got %v, wanted %v", l1, want)
	}
}

func TestRecursiveLowIndex(t *testing.T) {
	m := Recursive{Index: 1}
	if got, want := m.Root(0), hostarch.VirtualAddress(0x0000_0080_4020_1000); got != want {
		t.Errorf("Root: got %v, wanted %v", got, want)
	}
}

func TestPhysicalBase(t *testing.T) {
	m := PhysicalBase{Base: PhysicalMappingBase}
	if got, want := m.Root(0x3000), PhysicalMappingBase+0x3000; got != want {
		t.Errorf("Root: got %v, wanted %v", got, want)
	}
	if got, want := m.Child(0, 5, 0x7000), PhysicalMappingBase+0x7000; got != want {
		t.Errorf("Child: got %v, wanted %v", got, want)
	}
	if got := (Identity{}).Root(0x3000); got != 0x3000 {
		t.Errorf("Identity Root: got %v, wanted 0x3000", got)
	}
	expectPanic(t, "translation past the end of the lower half", func() {
		PhysicalBase{Base: 0x0000_7fff_ffff_f000}.Root(0x2000)
	})
}
