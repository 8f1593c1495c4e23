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
	"errors"
	"testing"

	"github.com/jhansom/oneDNN/simd"
)

func TestDescValidation(t *testing.T) {
	cases := []struct {
		name string
		mod  func(d *Desc, a *Attr)
		want error
	}{
		{
			name: "zero rows",
			mod:  func(d *Desc, a *Attr) { d.M = 0 },
			want: ErrInvalidDesc,
		},
		{
			name: "short ldb",
			mod:  func(d *Desc, a *Attr) { d.LDB = d.N - 1 },
			want: ErrInvalidDesc,
		},
		{
			name: "short ldc",
			mod:  func(d *Desc, a *Attr) { d.LDC = d.N - 1 },
			want: ErrInvalidDesc,
		},
		{
			name: "mixed narrow floats",
			mod:  func(d *Desc, a *Attr) { d.TypeA, d.TypeB = BF16, F32 },
			want: ErrUnsupported,
		},
		{
			name: "f32 by int8 without decompression",
			mod:  func(d *Desc, a *Attr) { d.TypeB = S8 },
			want: ErrInvalidDesc,
		},
		{
			name: "s32 accumulator for float types",
			mod:  func(d *Desc, a *Attr) { d.TypeC = S32 },
			want: ErrUnsupported,
		},
		{
			name: "compensation on float types",
			mod:  func(d *Desc, a *Attr) { a.ReqS8S8Comp = true },
			want: ErrInvalidDesc,
		},
		{
			name: "zero point on float types",
			mod:  func(d *Desc, a *Attr) { a.ZPTypeA = BcastPerTensor },
			want: ErrInvalidDesc,
		},
		{
			name: "tile on vector tier",
			mod:  func(d *Desc, a *Attr) { d.UseTile = true },
			want: ErrUnsupported,
		},
		{
			name: "stride batch without strides",
			mod:  func(d *Desc, a *Attr) { d.Batch = BatchStride },
			want: ErrInvalidDesc,
		},
		{
			name: "negative padding bound",
			mod:  func(d *Desc, a *Attr) { d.MaxVPadT = -1 },
			want: ErrInvalidDesc,
		},
		{
			name: "decompression without group size",
			mod: func(d *Desc, a *Attr) {
				d.TypeB = S8
				a.WithWeiDecomp = true
			},
			want: ErrInvalidDesc,
		},
		{
			name: "dynamic quant without decompression",
			mod: func(d *Desc, a *Attr) {
				a.WithSrcDynQuant = true
				a.SrcScaleGroupK = 4
			},
			want: ErrInvalidDesc,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			desc := f32Desc(8, 16, 8, simd.LevelAVX512)
			var attr Attr
			tc.mod(desc, &attr)
			_, err := New(desc, &attr)
			if !errors.Is(err, tc.want) {
				t.Fatalf("New: got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNilDesc(t *testing.T) {
	if _, err := New(nil, nil); !errors.Is(err, ErrInvalidDesc) {
		t.Fatalf("New(nil): got %v, want ErrInvalidDesc", err)
	}
}

func TestRDBlockGranularity(t *testing.T) {
	desc := int8Desc(4, 16, 16, U8, simd.LevelAVX512VNNI)
	desc.RDBlock = 6 // int8 packs reduction in groups of 4
	if _, err := New(desc, nil); !errors.Is(err, ErrInvalidDesc) {
		t.Fatalf("New: got %v, want ErrInvalidDesc", err)
	}
}

func TestScratchSize(t *testing.T) {
	vec := f32Desc(8, 16, 8, simd.LevelAVX512)
	if got := vec.ScratchSize(); got != 0 {
		t.Fatalf("vector ScratchSize: got %d, want 0", got)
	}

	tile := f32Desc(32, 64, 64, simd.LevelAMX)
	tile.UseTile = true
	if got := tile.ScratchSize(); got <= 0 {
		t.Fatalf("tile ScratchSize: got %d, want > 0", got)
	}
}

func TestParseDataType(t *testing.T) {
	for dt := TypeNone; dt <= S32; dt++ {
		got, ok := ParseDataType(dt.String())
		if !ok || got != dt {
			t.Fatalf("ParseDataType(%q) = %v, %v", dt.String(), got, ok)
		}
	}
	if _, ok := ParseDataType("f64"); ok {
		t.Fatal("ParseDataType accepted unknown name")
	}
}
