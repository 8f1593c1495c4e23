// Copyright 2025 the oneDNN-go Authors
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

package brgemm

import "errors"

// Build-time failure classes. Builds are hard-fail: a descriptor that
// produces any of these is permanently rejected rather than risking a
// miscompiled kernel. Invocation has no error channel.
var (
	// ErrInvalidDesc reports a descriptor invariant violation.
	ErrInvalidDesc = errors.New("brgemm: invalid descriptor")

	// ErrUnsupported reports a type/tier combination the generator cannot
	// compile.
	ErrUnsupported = errors.New("brgemm: unsupported type/isa combination")

	// ErrRegisterBudget reports that the requested row/column tiling needs
	// more accumulator registers than the tier leaves available after
	// feature reservations.
	ErrRegisterBudget = errors.New("brgemm: accumulator register budget exceeded")

	// ErrAliasing reports a build-time co-liveness violation in the
	// register role table. It indicates a planner bug, never bad input.
	ErrAliasing = errors.New("brgemm: register role aliasing violation")

	// ErrReleased reports use of a kernel after Release.
	ErrReleased = errors.New("brgemm: kernel released")
)
