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

// Package simd provides the instruction-set tier model, fixed-lane vector and
// tile values, and the narrow floating-point emulators consumed by the brgemm
// kernel generator.
//
// A generated kernel pins its tier at build time, so unlike a process-global
// SIMD library the vector constructors here take an explicit lane count taken
// from the kernel's tier rather than from the host CPU.
package simd

import (
	"os"
	"strconv"
)

// Level is an instruction-set tier. A brgemm descriptor pins exactly one
// Level; the generated kernel never re-specializes at run time.
type Level int

const (
	// LevelAuto, the zero value, asks the kernel builder to pin the best
	// tier the host supports. It never appears in a built kernel.
	LevelAuto Level = iota

	// LevelScalar is the pure Go tier with 16-byte logical vectors.
	LevelScalar

	// LevelSSE2 is the x86-64 baseline tier (128-bit vectors).
	LevelSSE2

	// LevelAVX2 is the 256-bit x86-64 tier.
	LevelAVX2

	// LevelAVX2VNNI is AVX2 plus the packed int8 dot product.
	LevelAVX2VNNI

	// LevelAVX512 is the 512-bit x86-64 tier with 32 vector registers.
	LevelAVX512

	// LevelAVX512VNNI is AVX-512 plus the packed int8 dot product.
	LevelAVX512VNNI

	// LevelAMX is AVX-512 VNNI plus hardware matrix tiles.
	LevelAMX

	// LevelNEON is the 128-bit ARM tier.
	LevelNEON
)

// String returns the conventional lower-case tier name.
func (l Level) String() string {
	switch l {
	case LevelAuto:
		return "auto"
	case LevelScalar:
		return "scalar"
	case LevelSSE2:
		return "sse2"
	case LevelAVX2:
		return "avx2"
	case LevelAVX2VNNI:
		return "avx2_vnni"
	case LevelAVX512:
		return "avx512"
	case LevelAVX512VNNI:
		return "avx512_vnni"
	case LevelAMX:
		return "amx"
	case LevelNEON:
		return "neon"
	default:
		return "unknown"
	}
}

// Width returns the vector register width in bytes for this tier.
func (l Level) Width() int {
	switch l {
	case LevelAVX2, LevelAVX2VNNI:
		return 32
	case LevelAVX512, LevelAVX512VNNI, LevelAMX:
		return 64
	default:
		return 16
	}
}

// VecRegs returns the architectural vector register count for this tier.
// The allocation planner budgets accumulators against this number.
func (l Level) VecRegs() int {
	switch l {
	case LevelAVX512, LevelAVX512VNNI, LevelAMX:
		return 32
	case LevelNEON:
		return 32
	default:
		return 16
	}
}

// HasInt8Dot reports whether the tier has a native packed int8 dot product.
// Tiers without it use the widen-multiply, horizontal-add fallback and pay
// two extra temporary registers for it.
func (l Level) HasInt8Dot() bool {
	switch l {
	case LevelAVX2VNNI, LevelAVX512VNNI, LevelAMX:
		return true
	default:
		return false
	}
}

// HasTile reports whether the tier has hardware matrix-tile registers.
func (l Level) HasTile() bool {
	return l == LevelAMX
}

// HasMasks reports whether the tier supports masked loads and stores for
// column tails. Tiers without masks fall back to byte-granular tail loads.
func (l Level) HasMasks() bool {
	switch l {
	case LevelAVX512, LevelAVX512VNNI, LevelAMX:
		return true
	default:
		return false
	}
}

// ParseLevel returns the tier for a conventional name as produced by
// String, or false for an unknown name.
func ParseLevel(s string) (Level, bool) {
	for l := LevelAuto; l <= LevelNEON; l++ {
		if l.String() == s {
			return l, true
		}
	}
	return LevelAuto, false
}

// detected is the best tier found on the host, set by init in detect_*.go.
var detected Level

// Detect returns the best instruction-set tier available on the host.
// The BRG_NO_SIMD environment variable forces LevelScalar, which is
// useful for comparing tiers in tests.
func Detect() Level {
	if noSimdEnv() {
		return LevelScalar
	}
	return detected
}

// noSimdEnv checks the BRG_NO_SIMD environment variable.
func noSimdEnv() bool {
	val := os.Getenv("BRG_NO_SIMD")
	if val == "" {
		return false
	}
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	return true
}
