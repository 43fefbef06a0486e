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

import (
	"fmt"
)

// Frame is a physical frame of size S. Its start is always aligned to S.
type Frame[S PageSizeTag] struct {
	start PhysicalAddress
}

// FrameStartingAt returns the frame that starts at addr. ok is false if addr
// is not aligned to S.
func FrameStartingAt[S PageSizeTag](addr PhysicalAddress) (f Frame[S], ok bool) {
	if !addr.IsAligned(SizeOf[S]()) {
		return Frame[S]{}, false
	}
	return Frame[S]{start: addr}, true
}

// MustFrameStartingAt is FrameStartingAt, panicking on unaligned input.
func MustFrameStartingAt[S PageSizeTag](addr PhysicalAddress) Frame[S] {
	f, ok := FrameStartingAt[S](addr)
	if !ok {
		var s S
		panic(fmt.Sprintf("physical address %v is not %v aligned", addr, s))
	}
	return f
}

// FrameContaining returns the frame that contains addr.
func FrameContaining[S PageSizeTag](addr PhysicalAddress) Frame[S] {
	return Frame[S]{start: addr.AlignDown(SizeOf[S]())}
}

// Start returns the first address of the frame.
func (f Frame[S]) Start() PhysicalAddress {
	return f.start
}

// Size returns the size of the frame in bytes.
func (f Frame[S]) Size() uint64 {
	return SizeOf[S]()
}

// Next returns the frame that immediately follows f.
func (f Frame[S]) Next() Frame[S] {
	return Frame[S]{start: f.start + PhysicalAddress(SizeOf[S]())}
}

// String implements fmt.Stringer.String.
func (f Frame[S]) String() string {
	var s S
	return fmt.Sprintf("Frame[%v](%v)", s, f.start)
}

// FrameRange is the half-open range of frames [Start, End).
type FrameRange[S PageSizeTag] struct {
	Start Frame[S]
	End   Frame[S]
}

// Len returns the number of frames in the range.
func (r FrameRange[S]) Len() uint64 {
	if r.End.start <= r.Start.start {
		return 0
	}
	return uint64(r.End.start-r.Start.start) / SizeOf[S]()
}

// Each calls fn for every frame in the range in ascending order, stopping at
// the first error.
func (r FrameRange[S]) Each(fn func(Frame[S]) error) error {
	for f := r.Start; f.start < r.End.start; f = f.Next() {
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// Page is a virtual page of size S. Its start is always aligned to S.
type Page[S PageSizeTag] struct {
	start VirtualAddress
}

// PageStartingAt returns the page that starts at addr. ok is false if addr
// is not aligned to S.
func PageStartingAt[S PageSizeTag](addr VirtualAddress) (p Page[S], ok bool) {
	if !addr.IsAligned(SizeOf[S]()) {
		return Page[S]{}, false
	}
	return Page[S]{start: addr}, true
}

// MustPageStartingAt is PageStartingAt, panicking on unaligned input.
func MustPageStartingAt[S PageSizeTag](addr VirtualAddress) Page[S] {
	p, ok := PageStartingAt[S](addr)
	if !ok {
		var s S
		panic(fmt.Sprintf("virtual address %v is not %v aligned", addr, s))
	}
	return p
}

// PageContaining returns the page that contains addr.
func PageContaining[S PageSizeTag](addr VirtualAddress) Page[S] {
	return Page[S]{start: addr.AlignDown(SizeOf[S]())}
}

// Start returns the first address of the page.
func (p Page[S]) Start() VirtualAddress {
	return p.start
}

// Size returns the size of the page in bytes.
func (p Page[S]) Size() uint64 {
	return SizeOf[S]()
}

// Next returns the page that immediately follows p. The result is
// canonicalised, so the page after the last lower-half page is the first
// upper-half page.
func (p Page[S]) Next() Page[S] {
	return Page[S]{start: CanonicalVirtualAddress(uint64(p.start) + SizeOf[S]())}
}

// String implements fmt.Stringer.String.
func (p Page[S]) String() string {
	var s S
	return fmt.Sprintf("Page[%v](%v)", s, p.start)
}

// PageRange is the half-open range of pages [Start, End).
type PageRange[S PageSizeTag] struct {
	Start Page[S]
	End   Page[S]
}

// Len returns the number of pages in the range.
func (r PageRange[S]) Len() uint64 {
	if r.End.start <= r.Start.start {
		return 0
	}
	return uint64(r.End.start-r.Start.start) / SizeOf[S]()
}

// Each calls fn for every page in the range in ascending order, stopping at
// the first error.
func (r PageRange[S]) Each(fn func(Page[S]) error) error {
	for p, n := r.Start, r.Len(); n > 0; p, n = p.Next(), n-1 {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}
