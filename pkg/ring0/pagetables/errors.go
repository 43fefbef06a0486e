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

import "errors"

var (
	// ErrAlreadyMapped is returned when a leaf slot is occupied, or when a
	// table would be created beneath a huge page leaf. No state is changed.
	ErrAlreadyMapped = errors.New("already mapped")

	// ErrUnsupportedPageSize is returned for 1G mappings and for 2M and 1G
	// unmappings.
	ErrUnsupportedPageSize = errors.New("unsupported page size")
)
