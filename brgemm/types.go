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

import (
	"encoding/binary"
	"math"

	"github.com/jhansom/oneDNN/simd"
)

// DataType enumerates the operand element types a descriptor may name.
type DataType int

const (
	// TypeNone marks an absent operand (e.g. no bias).
	TypeNone DataType = iota
	F32
	BF16
	F16
	S8
	U8
	S32
)

// String returns the conventional lower-case type name.
func (dt DataType) String() string {
	switch dt {
	case TypeNone:
		return "none"
	case F32:
		return "f32"
	case BF16:
		return "bf16"
	case F16:
		return "f16"
	case S8:
		return "s8"
	case U8:
		return "u8"
	case S32:
		return "s32"
	default:
		return "unknown"
	}
}

// Size returns the element size in bytes.
func (dt DataType) Size() int {
	switch dt {
	case BF16, F16:
		return 2
	case S8, U8:
		return 1
	case F32, S32:
		return 4
	default:
		return 0
	}
}

// ParseDataType returns the type for a conventional lower-case name as
// produced by String, or false for an unknown name.
func ParseDataType(s string) (DataType, bool) {
	for dt := TypeNone; dt <= S32; dt++ {
		if dt.String() == s {
			return dt, true
		}
	}
	return TypeNone, false
}

func (dt DataType) isInt8() bool { return dt == S8 || dt == U8 }

func (dt DataType) isXF16() bool { return dt == BF16 || dt == F16 }

// loadF32 reads element idx of buf as float32, converting from the element
// type. Integer types convert exactly (the accumulator domain handles them
// separately; this path serves C/D/bias reads).
func (dt DataType) loadF32(buf []byte, idx int) float32 {
	switch dt {
	case F32:
		return math.Float32frombits(binary.LittleEndian.Uint32(buf[idx*4:]))
	case BF16:
		return simd.BFloat16FromBits(binary.LittleEndian.Uint16(buf[idx*2:])).Float32()
	case F16:
		return simd.Float16FromBits(binary.LittleEndian.Uint16(buf[idx*2:])).Float32()
	case S8:
		return float32(int8(buf[idx]))
	case U8:
		return float32(buf[idx])
	case S32:
		return float32(int32(binary.LittleEndian.Uint32(buf[idx*4:])))
	default:
		panic("brgemm: load from absent operand")
	}
}

// loadI32 reads element idx of buf in the 32-bit integer domain.
// Only meaningful for integer element types.
func (dt DataType) loadI32(buf []byte, idx int) int32 {
	switch dt {
	case S8:
		return int32(int8(buf[idx]))
	case U8:
		return int32(buf[idx])
	case S32:
		return int32(binary.LittleEndian.Uint32(buf[idx*4:]))
	default:
		panic("brgemm: integer load from " + dt.String())
	}
}

// storeF32 writes v as element idx of buf with a saturating conversion to
// the element type: clamp to the type's range, then round to nearest even
// for integer destinations.
func (dt DataType) storeF32(buf []byte, idx int, v float32) {
	switch dt {
	case F32:
		binary.LittleEndian.PutUint32(buf[idx*4:], math.Float32bits(v))
	case BF16:
		binary.LittleEndian.PutUint16(buf[idx*2:], simd.Float32ToBFloat16(v).Bits())
	case F16:
		binary.LittleEndian.PutUint16(buf[idx*2:], simd.Float32ToFloat16(v).Bits())
	case S8:
		buf[idx] = byte(int8(saturateRound(v, -128, 127)))
	case U8:
		buf[idx] = byte(saturateRound(v, 0, 255))
	case S32:
		binary.LittleEndian.PutUint32(buf[idx*4:], uint32(saturateRound(v, math.MinInt32, math.MaxInt32)))
	default:
		panic("brgemm: store to absent operand")
	}
}

// storeI32 writes an integer-domain accumulator value without a float
// round trip. Used when the destination is s32 and no epilogue step forced
// a float conversion.
func (dt DataType) storeI32(buf []byte, idx int, v int32) {
	switch dt {
	case S32:
		binary.LittleEndian.PutUint32(buf[idx*4:], uint32(v))
	case S8:
		buf[idx] = byte(int8(clampI32(v, -128, 127)))
	case U8:
		buf[idx] = byte(clampI32(v, 0, 255))
	default:
		panic("brgemm: integer store to " + dt.String())
	}
}

// saturateRound clamps v to [lo, hi] and rounds to nearest even, matching
// the hardware's saturating float-to-int conversion.
func saturateRound(v float32, lo, hi float64) int64 {
	x := float64(v)
	if x < lo {
		x = lo
	}
	if x > hi {
		x = hi
	}
	return int64(math.RoundToEven(x))
}

func clampI32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// rdStepOf returns the reduction packing granularity for the A/B type pair:
// 4 consecutive reduction elements per int8 dot, 2 per xf16 dot, 1 for f32.
func rdStepOf(ta, tb DataType) int {
	switch {
	case ta.isInt8():
		return 4
	case ta.isXF16() || tb.isXF16():
		return 2
	default:
		return 1
	}
}
