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

// Float16 is an IEEE 754 half-precision (binary16) value stored as raw bits.
// The kernel generator consumes these conversions as a bit-exact emulation
// service for tiers without native f16 arithmetic.
//
// Format: Sign (1 bit) | Exponent (5 bits, bias 15) | Mantissa (10 bits)
type Float16 uint16

// Float16ToFloat32 converts a single Float16 to float32.
// Handles all special cases: zero, denormals, infinity, NaN.
func Float16ToFloat32(h Float16) float32 {
	bits := uint32(h)
	sign := bits >> 15
	exp := (bits >> 10) & 0x1F
	mant := bits & 0x3FF

	if exp == 0 {
		if mant == 0 {
			return math.Float32frombits(sign << 31)
		}
		// Denormal: shift until the implicit leading 1 appears, then rebias.
		exp = 1
		for mant&0x400 == 0 {
			mant <<= 1
			exp--
		}
		mant &= 0x3FF
		exp = uint32(int32(exp) + 127 - 15)
	} else if exp == 31 {
		if mant == 0 {
			return math.Float32frombits((sign << 31) | 0x7F800000)
		}
		return math.Float32frombits((sign << 31) | 0x7FC00000 | (mant << 13))
	} else {
		exp = exp + 127 - 15
	}

	return math.Float32frombits((sign << 31) | (exp << 23) | (mant << 13))
}

// Float32ToFloat16 converts a float32 to Float16 with round-to-nearest-even.
// Overflow goes to infinity, underflow to zero.
func Float32ToFloat16(f float32) Float16 {
	bits := math.Float32bits(f)
	sign := uint16((bits >> 16) & 0x8000)
	exp := int((bits>>23)&0xFF) - 127 + 15
	mant := bits & 0x7FFFFF

	if exp <= 0 {
		if exp < -10 {
			return Float16(sign)
		}
		mant = (mant | 0x800000) >> uint(1-exp)
		if mant&0x1000 != 0 && (mant&0x2FFF) != 0 {
			mant += 0x2000
		}
		return Float16(sign | uint16(mant>>13))
	} else if exp == 0xFF-127+15 {
		if mant != 0 {
			return Float16(sign | 0x7E00 | uint16(mant>>13))
		}
		return Float16(sign | 0x7C00)
	} else if exp >= 31 {
		return Float16(sign | 0x7C00)
	}

	if mant&0x1000 != 0 && mant&0x2FFF != 0 {
		mant += 0x2000
		if mant&0x800000 != 0 {
			mant = 0
			exp++
			if exp >= 31 {
				return Float16(sign | 0x7C00)
			}
		}
	}

	return Float16(sign | uint16(exp<<10) | uint16(mant>>13))
}

// Float32 converts this Float16 to float32.
func (h Float16) Float32() float32 {
	return Float16ToFloat32(h)
}

// IsNaN returns true if h is a NaN value.
func (h Float16) IsNaN() bool {
	return (h>>10)&0x1F == 31 && h&0x3FF != 0
}

// Bits returns the raw uint16 representation.
func (h Float16) Bits() uint16 {
	return uint16(h)
}

// Float16FromBits creates a Float16 from raw bits.
func Float16FromBits(bits uint16) Float16 {
	return Float16(bits)
}
