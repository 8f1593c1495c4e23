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

package simd

// Floats is a constraint for floating-point lane types.
type Floats interface {
	~float32 | ~float64
}

// SignedInts is a constraint for signed integer lane types.
type SignedInts interface {
	~int8 | ~int16 | ~int32 | ~int64
}

// UnsignedInts is a constraint for unsigned integer lane types.
type UnsignedInts interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Integers is a constraint for all integer lane types.
type Integers interface {
	SignedInts | UnsignedInts
}

// Lanes is a constraint for all types that can be stored in vector lanes.
type Lanes interface {
	Floats | Integers
}

// Vec is a fixed-lane vector value. The lane count is chosen by the caller
// from the kernel's pinned tier (Level.Width() / element size), not from the
// host CPU, so kernels built for different tiers can coexist in one process.
//
// Vec instances should be created with Load, LoadPartial, Set, or Zero.
type Vec[T Lanes] struct {
	data []T
}

// NumLanes returns the number of lanes in this vector.
func (v Vec[T]) NumLanes() int {
	return len(v.data)
}

// Data returns the underlying lane slice. The epilogue and the post-op
// injector rewrite accumulator lanes through this view.
func (v Vec[T]) Data() []T {
	return v.data
}

// Zero creates a vector of the given lane count with all lanes zero.
func Zero[T Lanes](lanes int) Vec[T] {
	return Vec[T]{data: make([]T, lanes)}
}

// Set creates a vector with all lanes set to value.
func Set[T Lanes](value T, lanes int) Vec[T] {
	data := make([]T, lanes)
	for i := range data {
		data[i] = value
	}
	return Vec[T]{data: data}
}

// Load creates a vector from the first lanes elements of src.
// PRECONDITION: len(src) >= lanes.
func Load[T Lanes](src []T, lanes int) Vec[T] {
	data := make([]T, lanes)
	copy(data, src[:lanes])
	return Vec[T]{data: data}
}

// LoadPartial creates a vector from the first n elements of src, zero-filling
// the remaining lanes. This is the byte-granular tail load: it never touches
// src beyond n elements.
func LoadPartial[T Lanes](src []T, lanes, n int) Vec[T] {
	data := make([]T, lanes)
	copy(data, src[:n])
	return Vec[T]{data: data}
}

// Store writes all lanes of v to dst.
func Store[T Lanes](v Vec[T], dst []T) {
	copy(dst[:len(v.data)], v.data)
}

// StorePartial writes the first n lanes of v to dst, leaving the rest of dst
// untouched. This is the masked tail store.
func StorePartial[T Lanes](v Vec[T], dst []T, n int) {
	copy(dst[:n], v.data[:n])
}

// Add performs lane-wise addition.
func Add[T Lanes](a, b Vec[T]) Vec[T] {
	out := make([]T, len(a.data))
	for i := range out {
		out[i] = a.data[i] + b.data[i]
	}
	return Vec[T]{data: out}
}

// Sub performs lane-wise subtraction.
func Sub[T Lanes](a, b Vec[T]) Vec[T] {
	out := make([]T, len(a.data))
	for i := range out {
		out[i] = a.data[i] - b.data[i]
	}
	return Vec[T]{data: out}
}

// Mul performs lane-wise multiplication.
func Mul[T Lanes](a, b Vec[T]) Vec[T] {
	out := make([]T, len(a.data))
	for i := range out {
		out[i] = a.data[i] * b.data[i]
	}
	return Vec[T]{data: out}
}

// Min performs lane-wise minimum.
func Min[T Lanes](a, b Vec[T]) Vec[T] {
	out := make([]T, len(a.data))
	for i := range out {
		if a.data[i] < b.data[i] {
			out[i] = a.data[i]
		} else {
			out[i] = b.data[i]
		}
	}
	return Vec[T]{data: out}
}

// Max performs lane-wise maximum.
func Max[T Lanes](a, b Vec[T]) Vec[T] {
	out := make([]T, len(a.data))
	for i := range out {
		if a.data[i] > b.data[i] {
			out[i] = a.data[i]
		} else {
			out[i] = b.data[i]
		}
	}
	return Vec[T]{data: out}
}

// MulAdd returns a*b + c per lane (fused multiply-add).
func MulAdd[T Lanes](a, b, c Vec[T]) Vec[T] {
	out := make([]T, len(c.data))
	for i := range out {
		out[i] = a.data[i]*b.data[i] + c.data[i]
	}
	return Vec[T]{data: out}
}

// ConvertI32F32 converts an int32 vector to float32 lane-wise. This is the
// one-way cvtdq2ps step the epilogue takes when integer accumulation first
// needs float math.
func ConvertI32F32(v Vec[int32]) Vec[float32] {
	out := make([]float32, len(v.data))
	for i, x := range v.data {
		out[i] = float32(x)
	}
	return Vec[float32]{data: out}
}
