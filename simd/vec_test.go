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

import "testing"

func TestVecConstructors(t *testing.T) {
	t.Run("Zero", func(t *testing.T) {
		v := Zero[float32](8)
		if v.NumLanes() != 8 {
			t.Fatalf("NumLanes: got %d, want 8", v.NumLanes())
		}
		for i, x := range v.Data() {
			if x != 0 {
				t.Errorf("lane %d: got %v, want 0", i, x)
			}
		}
	})

	t.Run("Set", func(t *testing.T) {
		v := Set[int32](7, 4)
		for i, x := range v.Data() {
			if x != 7 {
				t.Errorf("lane %d: got %v, want 7", i, x)
			}
		}
	})

	t.Run("Load", func(t *testing.T) {
		src := []float32{1, 2, 3, 4, 5}
		v := Load(src, 4)
		want := []float32{1, 2, 3, 4}
		for i := range want {
			if v.Data()[i] != want[i] {
				t.Errorf("lane %d: got %v, want %v", i, v.Data()[i], want[i])
			}
		}
		// Load copies: mutating the source must not change the vector.
		src[0] = 100
		if v.Data()[0] != 1 {
			t.Errorf("aliased source: got %v, want 1", v.Data()[0])
		}
	})
}

// TestLoadPartial checks that dead lanes past n are zero-filled and the
// source is never read past n elements.
func TestLoadPartial(t *testing.T) {
	src := []float32{1, 2, 3}
	v := LoadPartial(src, 8, 3)
	want := []float32{1, 2, 3, 0, 0, 0, 0, 0}
	for i := range want {
		if v.Data()[i] != want[i] {
			t.Errorf("lane %d: got %v, want %v", i, v.Data()[i], want[i])
		}
	}
}

// TestStorePartial checks that a tail store leaves the destination past n
// untouched.
func TestStorePartial(t *testing.T) {
	v := Set[float32](9, 8)
	dst := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	StorePartial(v, dst, 3)
	want := []float32{9, 9, 9, 4, 5, 6, 7, 8}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("element %d: got %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestVecArithmetic(t *testing.T) {
	a := Load([]float32{1, 2, 3, 4}, 4)
	b := Load([]float32{10, 20, 30, 40}, 4)

	cases := []struct {
		name string
		got  Vec[float32]
		want []float32
	}{
		{"Add", Add(a, b), []float32{11, 22, 33, 44}},
		{"Sub", Sub(b, a), []float32{9, 18, 27, 36}},
		{"Mul", Mul(a, b), []float32{10, 40, 90, 160}},
		{"Min", Min(a, Set[float32](2.5, 4)), []float32{1, 2, 2.5, 2.5}},
		{"Max", Max(a, Set[float32](2.5, 4)), []float32{2.5, 2.5, 3, 4}},
		{"MulAdd", MulAdd(a, b, Set[float32](1, 4)), []float32{11, 41, 91, 161}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for i := range tc.want {
				if tc.got.Data()[i] != tc.want[i] {
					t.Errorf("lane %d: got %v, want %v", i, tc.got.Data()[i], tc.want[i])
				}
			}
		})
	}
}

// TestVecOpsDoNotMutate checks the value semantics: ops return fresh
// vectors and never write through their inputs.
func TestVecOpsDoNotMutate(t *testing.T) {
	a := Load([]float32{1, 2, 3, 4}, 4)
	b := Load([]float32{5, 6, 7, 8}, 4)
	_ = Add(a, b)
	_ = MulAdd(a, b, a)
	for i, want := range []float32{1, 2, 3, 4} {
		if a.Data()[i] != want {
			t.Fatalf("input mutated: lane %d = %v, want %v", i, a.Data()[i], want)
		}
	}
}

func TestConvertI32F32(t *testing.T) {
	v := Load([]int32{-3, 0, 7, 1 << 20}, 4)
	f := ConvertI32F32(v)
	want := []float32{-3, 0, 7, 1 << 20}
	for i := range want {
		if f.Data()[i] != want[i] {
			t.Errorf("lane %d: got %v, want %v", i, f.Data()[i], want[i])
		}
	}
}

func TestIntegerVec(t *testing.T) {
	a := Load([]int32{100, -100, 1 << 30, 0}, 4)
	b := Load([]int32{1, 2, 2, 5}, 4)
	got := Mul(a, b)
	// Integer lanes wrap modulo 2^32 like the hardware.
	want := []int32{100, -200, -(1 << 31), 0}
	for i := range want {
		if got.Data()[i] != want[i] {
			t.Errorf("lane %d: got %v, want %v", i, got.Data()[i], want[i])
		}
	}
}
