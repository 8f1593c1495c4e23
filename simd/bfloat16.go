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

import "math"

// BFloat16 is a Brain Float 16 value stored as raw bits: float32 with the
// low 16 mantissa bits dropped, so it keeps the float32 exponent range at
// reduced precision. The kernel generator consumes these conversions as a
// bit-exact emulation service for tiers without native bf16 arithmetic.
//
// Format: Sign (1 bit) | Exponent (8 bits, bias 127) | Mantissa (7 bits)
type BFloat16 uint16

// BFloat16ToFloat32 converts a single BFloat16 to float32.
// Since bfloat16 is truncated float32, this is a bit shift.
func BFloat16ToFloat32(b BFloat16) float32 {
	return math.Float32frombits(uint32(b) << 16)
}

// Float32ToBFloat16 converts a float32 to BFloat16 with round-to-nearest-even
// on the truncated bits.
func Float32ToBFloat16(f float32) BFloat16 {
	bits := math.Float32bits(f)

	// NaN: return the canonical quiet NaN with the input sign.
	if bits&0x7FFFFFFF > 0x7F800000 {
		return BFloat16((bits >> 16) | 0x0040)
	}

	// Round to nearest even at bit 15: add 0x7FFF plus the parity of the
	// kept mantissa's low bit.
	rounding := uint32(0x7FFF) + ((bits >> 16) & 1)
	bits += rounding

	return BFloat16(bits >> 16)
}

// Float32 converts this BFloat16 to float32.
func (b BFloat16) Float32() float32 {
	return BFloat16ToFloat32(b)
}

// IsNaN returns true if b is a NaN value.
func (b BFloat16) IsNaN() bool {
	return (b>>7)&0xFF == 0xFF && b&0x7F != 0
}

// Bits returns the raw uint16 representation.
func (b BFloat16) Bits() uint16 {
	return uint16(b)
}

// BFloat16FromBits creates a BFloat16 from raw bits.
func BFloat16FromBits(bits uint16) BFloat16 {
	return BFloat16(bits)
}
