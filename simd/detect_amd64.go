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

//go:build amd64

package simd

import "golang.org/x/sys/cpu"

func init() {
	detected = detectX86()
}

func detectX86() Level {
	switch {
	case cpu.X86.HasAVX512 && cpu.X86.HasAVX512VNNI && cpu.X86.HasAMXTile && cpu.X86.HasAMXInt8:
		return LevelAMX
	case cpu.X86.HasAVX512 && cpu.X86.HasAVX512VNNI:
		return LevelAVX512VNNI
	case cpu.X86.HasAVX512:
		return LevelAVX512
	case cpu.X86.HasAVX2 && cpu.X86.HasAVXVNNI:
		return LevelAVX2VNNI
	case cpu.X86.HasAVX2:
		return LevelAVX2
	case cpu.X86.HasSSE2:
		return LevelSSE2
	default:
		return LevelScalar
	}
}
