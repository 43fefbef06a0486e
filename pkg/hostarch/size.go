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

package hostarch

// PageSizeTag is implemented by the page size tags Size4KiB, Size2MiB and
// Size1GiB. The set is closed: the unexported method keeps other packages
// from adding sizes the hardware does not have.
type PageSizeTag interface {
	// Size returns the size in bytes.
	Size() uint64

	// String returns a short human-readable name.
	String() string

	pageSizeTag()
}

// Size4KiB tags a 4K page or frame.
type Size4KiB struct{}

// Size implements PageSizeTag.Size.
func (Size4KiB) Size() uint64 { return PageSize }

// String implements PageSizeTag.String.
func (Size4KiB) String() string { return "4KiB" }

func (Size4KiB) pageSizeTag() {}

// Size2MiB tags a 2M huge page or frame.
type Size2MiB struct{}

// Size implements PageSizeTag.Size.
func (Size2MiB) Size() uint64 { return HugePageSize }

// String implements PageSizeTag.String.
func (Size2MiB) String() string { return "2MiB" }

func (Size2MiB) pageSizeTag() {}

// Size1GiB tags a 1G super page or frame.
type Size1GiB struct{}

// Size implements PageSizeTag.Size.
func (Size1GiB) Size() uint64 { return SuperPageSize }

// String implements PageSizeTag.String.
func (Size1GiB) String() string { return "1GiB" }

func (Size1GiB) pageSizeTag() {}

// SizeOf returns the size in bytes of the tag S.
func SizeOf[S PageSizeTag]() uint64 {
	var s S
	return s.Size()
}
