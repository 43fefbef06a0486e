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

// Package bits includes all bit related types and operations.
package bits

import "golang.org/x/exp/constraints"

// IsOn returns true if *all* bits set in 'bits' are set in 'mask'.
func IsOn[T constraints.Unsigned](mask, bits T) bool {
	return mask&bits == bits
}

// IsAnyOn returns true if *any* bit set in 'bits' is set in 'mask'.
func IsAnyOn[T constraints.Unsigned](mask, bits T) bool {
	return mask&bits != 0
}

// Mask returns a T with all of the given bits set.
func Mask[T constraints.Unsigned](is ...int) T {
	ret := T(0)
	for _, i := range is {
		ret |= MaskOf[T](i)
	}
	return ret
}

// MaskOf is like Mask, but sets only a single bit (more efficiently).
func MaskOf[T constraints.Unsigned](i int) T {
	return T(1) << uint(i)
}

// Field returns bits [lo, hi) of v, shifted down to bit 0.
//
// Precondition: 0 <= lo < hi <= 64.
func Field[T constraints.Unsigned](v T, lo, hi int) T {
	width := uint(hi - lo)
	if width >= 64 {
		return v >> uint(lo)
	}
	return (v >> uint(lo)) & (T(1)<<width - 1)
}

// IsPowerOfTwo returns true if v is a power of two. Zero is not.
func IsPowerOfTwo[T constraints.Unsigned](v T) bool {
	return v != 0 && v&(v-1) == 0
}

// AlignDown rounds v down to the nearest multiple of align.
//
// Precondition: align is a power of two.
func AlignDown[T constraints.Unsigned](v, align T) T {
	return v &^ (align - 1)
}

// AlignUp rounds v up to the nearest multiple of align. The result wraps if
// v is within align of the maximum value of T.
//
// Precondition: align is a power of two.
func AlignUp[T constraints.Unsigned](v, align T) T {
	return AlignDown(v+align-1, align)
}

// IsAligned returns true if v is a multiple of align.
//
// Precondition: align is a power of two.
func IsAligned[T constraints.Unsigned](v, align T) bool {
	return v&(align-1) == 0
}
