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
	"math/rand"
	"testing"

	"github.com/jhansom/oneDNN/simd"
)

func encodeI(dt DataType, vals []int32) []byte {
	buf := make([]byte, len(vals)*dt.Size())
	for i, v := range vals {
		dt.storeI32(buf, i, v)
	}
	return buf
}

func decodeI(dt DataType, buf []byte, n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = dt.loadI32(buf, i)
	}
	return out
}

func randI32(rng *rand.Rand, n, lo, hi int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(lo + rng.Intn(hi-lo+1))
	}
	return out
}

func refGemmI32(m, n, kk int, as, bs [][]int32) []int32 {
	out := make([]int32, m*n)
	for row, row_n := 0, m; row < row_n; row++ {
		for col, col_n := 0, n; col < col_n; col++ {
			var acc int32
			for step := range as {
				for x, x_n := 0, kk; x < x_n; x++ {
					acc += as[step][row*kk+x] * bs[step][x*n+col]
				}
			}
			out[row*n+col] = acc
		}
	}
	return out
}

func int8Desc(m, n, kk int, ta DataType, level simd.Level) *Desc {
	return &Desc{
		TypeA: ta, TypeB: S8, TypeC: S32, TypeD: S32,
		M: m, N: n, K: kk,
		LDA: kk, LDB: n, LDC: n, LDD: n,
		Alpha: 1, Beta: 0,
		Level: level,
		Batch: BatchAddr,
		MaxBS: 4,
	}
}

func addrBatchI(ta, tb DataType, as, bs [][]int32) []BatchElement {
	batch := make([]BatchElement, len(as))
	for i := range as {
		batch[i] = BatchElement{A: encodeI(ta, as[i]), B: encodeI(tb, bs[i])}
	}
	return batch
}

func checkEqualI(t *testing.T, got, want []int32) {
	t.Helper()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("element %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

// TestInt8Exact runs u8 x s8 on a tier with the widening dot product; the
// result is the exact int32 sum.
func TestInt8Exact(t *testing.T) {
	m, n, kk := 6, 21, 15
	rng := rand.New(rand.NewSource(20))
	a := randI32(rng, m*kk, 0, 255)
	b := randI32(rng, kk*n, -128, 127)
	want := refGemmI32(m, n, kk, [][]int32{a}, [][]int32{b})

	kern, err := New(int8Desc(m, n, kk, U8, simd.LevelAVX512VNNI), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer kern.Release()

	c := make([]byte, m*n*4)
	kern.Execute(&Params{
		Batch: addrBatchI(U8, S8, [][]int32{a}, [][]int32{b}),
		C:     c,
	})
	checkEqualI(t, decodeI(S32, c, m*n), want)
}

// TestInt8MaddFallback checks the two-instruction emulation on a tier
// without the widening dot. Small operands stay below the int16 saturation
// threshold, so the fallback agrees with the exact sum.
func TestInt8MaddFallback(t *testing.T) {
	m, n, kk := 5, 9, 14
	rng := rand.New(rand.NewSource(21))
	a := randI32(rng, m*kk, 0, 15)
	b := randI32(rng, kk*n, -15, 15)
	want := refGemmI32(m, n, kk, [][]int32{a}, [][]int32{b})

	kern, err := New(int8Desc(m, n, kk, U8, simd.LevelAVX512), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer kern.Release()

	c := make([]byte, m*n*4)
	kern.Execute(&Params{
		Batch: addrBatchI(U8, S8, [][]int32{a}, [][]int32{b}),
		C:     c,
	})
	checkEqualI(t, decodeI(S32, c, m*n), want)
}

// TestInt8MaddSaturation pins the deliberate intermediate saturation of
// the fallback: a pair sum beyond int16 clamps, exactly as the hardware
// instruction does.
func TestInt8MaddSaturation(t *testing.T) {
	desc := int8Desc(1, 1, 4, U8, simd.LevelAVX512)
	kern, err := New(desc, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer kern.Release()

	a := []int32{255, 255, 0, 0}
	b := []int32{127, 127, 0, 0}
	c := make([]byte, 4)
	kern.Execute(&Params{
		Batch: addrBatchI(U8, S8, [][]int32{a}, [][]int32{b}),
		C:     c,
	})
	if got := decodeI(S32, c, 1)[0]; got != 32767 {
		t.Fatalf("saturated pair sum: got %d, want 32767", got)
	}
}

// TestS8S8Compensation checks the signed-by-signed emulation: the kernel
// shifts A into the unsigned domain and the precomputed column sums
// restore the exact signed result.
func TestS8S8Compensation(t *testing.T) {
	m, n, kk, steps := 7, 13, 12, 2
	rng := rand.New(rand.NewSource(22))
	var as, bs [][]int32
	for _i, _i_n := 0, steps; _i < _i_n; _i++ {
		as = append(as, randI32(rng, m*kk, -128, 127))
		bs = append(bs, randI32(rng, kk*n, -128, 127))
	}
	want := refGemmI32(m, n, kk, as, bs)

	comp := make([]int32, n)
	for col, col_n := 0, n; col < col_n; col++ {
		for _, b := range bs {
			for x, x_n := 0, kk; x < x_n; x++ {
				comp[col] -= 128 * b[x*n+col]
			}
		}
	}

	kern, err := New(int8Desc(m, n, kk, S8, simd.LevelAVX512VNNI),
		&Attr{ReqS8S8Comp: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer kern.Release()

	c := make([]byte, m*n*4)
	kern.Execute(&Params{
		Batch:        addrBatchI(S8, S8, as, bs),
		C:            c,
		Compensation: comp,
		ApplyComp:    true,
	})
	checkEqualI(t, decodeI(S32, c, m*n), want)
}

// TestZeroPointA checks A zero-point compensation: the buffer holds the
// negated B column sums and the kernel scales them by the runtime zero
// point.
func TestZeroPointA(t *testing.T) {
	m, n, kk := 4, 10, 8
	zpA := int32(5)
	rng := rand.New(rand.NewSource(23))
	a := randI32(rng, m*kk, 0, 255)
	b := randI32(rng, kk*n, -100, 100)

	want := make([]int32, m*n)
	for row, row_n := 0, m; row < row_n; row++ {
		for col, col_n := 0, n; col < col_n; col++ {
			var acc int32
			for x, x_n := 0, kk; x < x_n; x++ {
				acc += (a[row*kk+x] - zpA) * b[x*n+col]
			}
			want[row*n+col] = acc
		}
	}

	zpComp := make([]int32, n)
	for col, col_n := 0, n; col < col_n; col++ {
		for x, x_n := 0, kk; x < x_n; x++ {
			zpComp[col] -= b[x*n+col]
		}
	}

	kern, err := New(int8Desc(m, n, kk, U8, simd.LevelAVX512VNNI),
		&Attr{ZPTypeA: BcastPerTensor})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer kern.Release()

	c := make([]byte, m*n*4)
	kern.Execute(&Params{
		Batch:     addrBatchI(U8, S8, [][]int32{a}, [][]int32{b}),
		C:         c,
		ZPCompA:   zpComp,
		ZPAVal:    zpA,
		ApplyComp: true,
	})
	checkEqualI(t, decodeI(S32, c, m*n), want)
}

// TestCompensationWithPadding runs the same padded problem through both
// compensation policies. The just-in-time kernel needs no buffers; the
// precomputed kernel corrects its over-subtraction on padded rows. Both
// must match the direct reference.
func TestCompensationWithPadding(t *testing.T) {
	m, n, kk, steps := 6, 8, 8, 2
	rng := rand.New(rand.NewSource(24))
	var as, bs [][]int32
	for _i, _i_n := 0, steps; _i < _i_n; _i++ {
		as = append(as, randI32(rng, m*kk, -50, 50))
		bs = append(bs, randI32(rng, kk*n, -50, 50))
	}
	vpt := [2]int{2, 0}
	vpb := [2]int{0, 3}

	want := make([]int32, m*n)
	for step, step_n := 0, steps; step < step_n; step++ {
		for row := vpt[step]; row < m-vpb[step]; row++ {
			for col, col_n := 0, n; col < col_n; col++ {
				var acc int32
				for x, x_n := 0, kk; x < x_n; x++ {
					acc += as[step][row*kk+x] * bs[step][x*n+col]
				}
				want[row*n+col] += acc
			}
		}
	}

	newBatch := func() []BatchElement {
		batch := addrBatchI(S8, S8, as, bs)
		for i := range batch {
			batch[i].VPadTop = vpt[i]
			batch[i].VPadBottom = vpb[i]
		}
		return batch
	}

	baseDesc := func() *Desc {
		d := int8Desc(m, n, kk, S8, simd.LevelAVX512VNNI)
		d.MaxVPadT, d.MaxVPadB = 3, 3
		d.BDBlock = 4
		return d
	}

	t.Run("jit", func(t *testing.T) {
		kern, err := New(baseDesc(), &Attr{ReqS8S8Comp: true, ReqCalCompPads: true})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer kern.Release()

		c := make([]byte, m*n*4)
		kern.Execute(&Params{Batch: newBatch(), C: c})
		checkEqualI(t, decodeI(S32, c, m*n), want)
	})

	t.Run("precomputed", func(t *testing.T) {
		comp := make([]int32, n)
		for col, col_n := 0, n; col < col_n; col++ {
			for _, b := range bs {
				for x, x_n := 0, kk; x < x_n; x++ {
					comp[col] -= 128 * b[x*n+col]
				}
			}
		}

		kern, err := New(baseDesc(), &Attr{ReqS8S8Comp: true})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer kern.Release()

		c := make([]byte, m*n*4)
		kern.Execute(&Params{
			Batch:        newBatch(),
			C:            c,
			Compensation: comp,
			ApplyComp:    true,
		})
		checkEqualI(t, decodeI(S32, c, m*n), want)
	})
}

// TestInt8BetaOne checks the pure-integer blend: alpha and beta one keep
// the whole path in int32, including the C read.
func TestInt8BetaOne(t *testing.T) {
	m, n, kk := 4, 6, 8
	rng := rand.New(rand.NewSource(25))
	a := randI32(rng, m*kk, 0, 100)
	b := randI32(rng, kk*n, -100, 100)
	c0 := randI32(rng, m*n, -1000, 1000)

	prod := refGemmI32(m, n, kk, [][]int32{a}, [][]int32{b})
	want := make([]int32, m*n)
	for i := range want {
		want[i] = c0[i] + prod[i]
	}

	desc := int8Desc(m, n, kk, U8, simd.LevelAVX512VNNI)
	desc.Beta = 1
	kern, err := New(desc, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer kern.Release()

	c := encodeI(S32, c0)
	kern.Execute(&Params{
		Batch: addrBatchI(U8, S8, [][]int32{a}, [][]int32{b}),
		C:     c,
	})
	checkEqualI(t, decodeI(S32, c, m*n), want)
}

// TestWeightDecompression checks grouped dequantization of int8 weights
// against float A: each reduction group carries its own scale and zero
// point. Power-of-two scales keep the arithmetic exact.
func TestWeightDecompression(t *testing.T) {
	m, n, kk, groupK := 4, 6, 8, 4
	groups := kk / groupK
	rng := rand.New(rand.NewSource(26))
	a := randInts(rng, m*kk, -8, 8)
	bq := randI32(rng, kk*n, -16, 16)

	scales := make([]float32, groups*n)
	zps := make([]float32, groups*n)
	for i := range scales {
		scales[i] = []float32{0.5, 0.25, 1, 2}[rng.Intn(4)]
		zps[i] = float32(rng.Intn(9) - 4)
	}

	want := make([]float32, m*n)
	for row, row_n := 0, m; row < row_n; row++ {
		for col, col_n := 0, n; col < col_n; col++ {
			var acc float32
			for x, x_n := 0, kk; x < x_n; x++ {
				g := x / groupK
				w := (float32(bq[x*n+col]) - zps[g*n+col]) * scales[g*n+col]
				acc += a[row*kk+x] * w
			}
			want[row*n+col] = acc
		}
	}

	desc := &Desc{
		TypeA: F32, TypeB: S8, TypeC: F32, TypeD: F32,
		M: m, N: n, K: kk,
		LDA: kk, LDB: n, LDC: n, LDD: n,
		Alpha: 1,
		Level: simd.LevelAVX512,
		Batch: BatchAddr,
	}
	attr := &Attr{WithWeiDecomp: true, WithWeiDecompZP: true, WeiGroupK: groupK}
	kern, err := New(desc, attr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer kern.Release()

	c := make([]byte, m*n*4)
	kern.Execute(&Params{
		Batch:           []BatchElement{{A: encode(F32, a), B: encodeI(S8, bq)}},
		C:               c,
		WeiDecompScales: scales,
		WeiDecompZP:     zps,
	})
	checkClose(t, decode(F32, c, m*n), want, 1e-6)
}

// TestDynamicQuantization checks the int8 x decompressed-int8 body: exact
// integer accumulation per reduction block, flushed through the combined
// source and weight group scales. Group indices are global across batch
// steps.
func TestDynamicQuantization(t *testing.T) {
	m, n, kk, steps := 3, 5, 8, 2
	rd := 4
	groups := steps * kk / rd
	rng := rand.New(rand.NewSource(27))

	var as, bqs [][]int32
	for _i, _i_n := 0, steps; _i < _i_n; _i++ {
		as = append(as, randI32(rng, m*kk, -16, 16))
		bqs = append(bqs, randI32(rng, kk*n, -16, 16))
	}

	wScales := make([]float32, groups*n)
	zps := make([]float32, groups*n)
	for i := range wScales {
		wScales[i] = []float32{0.5, 0.25, 1, 2}[rng.Intn(4)]
		zps[i] = float32(rng.Intn(5) - 2)
	}
	sScales := make([]float32, groups)
	for i := range sScales {
		sScales[i] = []float32{0.5, 1, 2}[rng.Intn(3)]
	}

	want := make([]float32, m*n)
	for step, step_n := 0, steps; step < step_n; step++ {
		for row, row_n := 0, m; row < row_n; row++ {
			for col, col_n := 0, n; col < col_n; col++ {
				for x, x_n := 0, kk; x < x_n; x++ {
					kg := step*kk + x
					g := kg / rd
					w := (float32(bqs[step][x*n+col]) - zps[g*n+col]) * wScales[g*n+col]
					want[row*n+col] += sScales[kg/rd] * float32(as[step][row*kk+x]) * w
				}
			}
		}
	}

	desc := &Desc{
		TypeA: S8, TypeB: S8, TypeC: F32, TypeD: F32,
		M: m, N: n, K: kk,
		LDA: kk, LDB: n, LDC: n, LDD: n,
		Alpha:   1,
		Level:   simd.LevelAVX512VNNI,
		Batch:   BatchAddr,
		MaxBS:   steps,
		RDBlock: rd,
	}
	attr := &Attr{
		WithWeiDecomp: true, WithWeiDecompZP: true, WeiGroupK: rd,
		WithSrcDynQuant: true, SrcScaleGroupK: rd,
	}
	kern, err := New(desc, attr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer kern.Release()

	c := make([]byte, m*n*4)
	kern.Execute(&Params{
		Batch:           addrBatchI(S8, S8, as, bqs),
		C:               c,
		WeiDecompScales: wScales,
		WeiDecompZP:     zps,
		SrcScales:       sScales,
	})
	checkClose(t, decode(F32, c, m*n), want, 1e-6)
}

// TestDynamicQuantizationAlignment rejects per-step reduction lengths that
// are not block aligned: the global reduction position advances by K per
// batch step, so a misaligned K would land a later step's block across two
// scale groups.
func TestDynamicQuantizationAlignment(t *testing.T) {
	desc := &Desc{
		TypeA: S8, TypeB: S8, TypeC: F32, TypeD: F32,
		M: 3, N: 5, K: 6,
		LDA: 6, LDB: 5, LDC: 5, LDD: 5,
		Alpha:   1,
		Level:   simd.LevelAVX512VNNI,
		Batch:   BatchAddr,
		MaxBS:   2,
		RDBlock: 4,
	}
	attr := &Attr{
		WithWeiDecomp: true, WithWeiDecompZP: true, WeiGroupK: 4,
		WithSrcDynQuant: true, SrcScaleGroupK: 4,
	}
	if _, err := New(desc, attr); !errors.Is(err, ErrInvalidDesc) {
		t.Fatalf("New: got %v, want ErrInvalidDesc", err)
	}
}

// TestZeroPointB checks the per-row B zero-point term: the buffer holds
// -zpB * rowsum(A) and the kernel adds it to every column of that row.
func TestZeroPointB(t *testing.T) {
	m, n, kk := 5, 9, 8
	zpB := int32(3)
	rng := rand.New(rand.NewSource(28))
	a := randI32(rng, m*kk, 0, 255)
	b := randI32(rng, kk*n, -100, 100)

	want := make([]int32, m*n)
	for row, row_n := 0, m; row < row_n; row++ {
		for col, col_n := 0, n; col < col_n; col++ {
			var acc int32
			for x, x_n := 0, kk; x < x_n; x++ {
				acc += a[row*kk+x] * (b[x*n+col] - zpB)
			}
			want[row*n+col] = acc
		}
	}

	zpComp := make([]int32, m)
	for row, row_n := 0, m; row < row_n; row++ {
		for x, x_n := 0, kk; x < x_n; x++ {
			zpComp[row] -= zpB * a[row*kk+x]
		}
	}

	kern, err := New(int8Desc(m, n, kk, U8, simd.LevelAVX512VNNI),
		&Attr{ZPTypeB: BcastPerTensor})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer kern.Release()

	c := make([]byte, m*n*4)
	kern.Execute(&Params{
		Batch:     addrBatchI(U8, S8, [][]int32{a}, [][]int32{b}),
		C:         c,
		ZPCompB:   zpComp,
		ApplyComp: true,
	})
	checkEqualI(t, decodeI(S32, c, m*n), want)
}
