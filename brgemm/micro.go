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

import "github.com/jhansom/oneDNN/simd"

// buildMicro selects the reduction-block body for the vector path. All
// type and tier decisions happen here; the returned function is the one
// the batch loop calls.
func (k *Kernel) buildMicro() func(fr *callFrame, job *tileJob, a, b []byte, kOff, kLen, kGlobal, rowLo, rowHi int) {
	if k.desc.UseTile {
		return nil
	}
	switch {
	case k.attr.WithSrcDynQuant:
		return k.microDynQuant
	case k.sh.isInt8:
		if k.desc.Level.HasInt8Dot() {
			return k.microInt8Dot
		}
		return k.microInt8Madd
	default:
		return k.microFloat
	}
}

// loadStripF stages one B strip at reduction row kx into dst, widening and
// (when built with weight decompression) dequantizing each element.
// Dead lanes of the masked tail strip are zero-filled so they accumulate
// nothing.
func (k *Kernel) loadStripF(p *Params, b []byte, kx, kGlobalRow, col, ln int, dst []float32) {
	base := kx*k.desc.LDB + col
	if k.decompB != nil {
		for l, l_n := 0, ln; l < l_n; l++ {
			dst[l] = k.decompB(p, b, base+l, kGlobalRow, col+l)
		}
	} else {
		for l, l_n := 0, ln; l < l_n; l++ {
			dst[l] = k.loadBF(b, base+l)
		}
	}
	for l := ln; l < len(dst); l++ {
		dst[l] = 0
	}
}

func (k *Kernel) loadStripI(b []byte, kx, col, ln int, dst []int32) {
	base := kx*k.desc.LDB + col
	for l, l_n := 0, ln; l < l_n; l++ {
		dst[l] = k.loadBI(b, base+l)
	}
	for l := ln; l < len(dst); l++ {
		dst[l] = 0
	}
}

// microFloat accumulates one reduction block in float32: f32 operands
// directly, narrow floats widened on load, decompressed weights through the
// group dequantizer. Each reduction row stages the B strips once and
// broadcasts A down the live rows.
func (k *Kernel) microFloat(fr *callFrame, job *tileJob, a, b []byte, kOff, kLen, kGlobal, rowLo, rowHi int) {
	pl, lanes := k.pl, k.sh.lanes
	lda := k.desc.LDA
	for kk, kk_n := 0, kLen; kk < kk_n; kk++ {
		kx := kOff + kk
		for s, s_n := 0, job.strips; s < s_n; s++ {
			k.loadStripF(fr.p, b, kx, kGlobal+kk, job.ldOff+s*lanes,
				job.stripLanes(s, lanes), fr.f[pl.load[s]])
		}
		for row := rowLo; row < rowHi; row++ {
			bc := simd.Set(k.loadAF(a, row*lda+kx), lanes)
			accRow := pl.acc[row-job.bdOff]
			for s, s_n := 0, job.strips; s < s_n; s++ {
				acc := simd.Load(fr.f[accRow[s]], lanes)
				ld := simd.Load(fr.f[pl.load[s]], lanes)
				simd.Store(simd.MulAdd(bc, ld, acc), fr.f[accRow[s]])
			}
		}
	}
}

// microInt8Dot accumulates one reduction block with the exact widening
// int8 dot product: every product lands in int32 with no intermediate
// narrowing. The s8s8 shift moves A into the unsigned domain; the matching
// compensation restores the result later.
func (k *Kernel) microInt8Dot(fr *callFrame, job *tileJob, a, b []byte, kOff, kLen, kGlobal, rowLo, rowHi int) {
	pl, lanes := k.pl, k.sh.lanes
	lda := k.desc.LDA
	var shift int32
	if k.attr.ReqS8S8Comp {
		shift = 128
	}
	for kk, kk_n := 0, kLen; kk < kk_n; kk++ {
		kx := kOff + kk
		for s, s_n := 0, job.strips; s < s_n; s++ {
			k.loadStripI(b, kx, job.ldOff+s*lanes, job.stripLanes(s, lanes), fr.i[pl.load[s]])
		}
		for row := rowLo; row < rowHi; row++ {
			av := k.loadAI(a, row*lda+kx) + shift
			accRow := pl.acc[row-job.bdOff]
			for s, s_n := 0, job.strips; s < s_n; s++ {
				acc := fr.i[accRow[s]]
				ld := fr.i[pl.load[s]]
				for l, l_n := 0, lanes; l < l_n; l++ {
					acc[l] += av * ld[l]
				}
			}
		}
	}
}

// microInt8Madd is the int8 body for tiers without a widening dot product.
// It reproduces the two-instruction emulation exactly: adjacent pairs of
// products are summed with saturation to int16, then pairs of int16 are
// summed exactly into int32. Saturation in the intermediate is observable
// and deliberate; results match the hardware fallback, not the exact dot.
func (k *Kernel) microInt8Madd(fr *callFrame, job *tileJob, a, b []byte, kOff, kLen, kGlobal, rowLo, rowHi int) {
	pl, lanes := k.pl, k.sh.lanes
	lda, ldb := k.desc.LDA, k.desc.LDB
	var shift int32
	if k.attr.ReqS8S8Comp {
		shift = 128
	}
	prod := func(row, kx int, col, ln int, dst []int32) {
		// One pmaddubsw-style pair: u8(A) * s8(B) saturated to int16.
		if kx >= kOff+kLen {
			clear(dst[:ln])
			return
		}
		av := k.loadAI(a, row*lda+kx) + shift
		base := kx*ldb + col
		for l, l_n := 0, ln; l < l_n; l++ {
			dst[l] = av * k.loadBI(b, base+l)
		}
		for l := ln; l < len(dst); l++ {
			dst[l] = 0
		}
	}
	t0 := fr.i[pl.int8Tmp]
	t1 := fr.i[pl.load[0]] // load slots double as pair temporaries here
	for g := kOff; g < kOff+kLen; g += 4 {
		for s, s_n := 0, job.strips; s < s_n; s++ {
			col := job.ldOff + s*lanes
			ln := job.stripLanes(s, lanes)
			for row := rowLo; row < rowHi; row++ {
				acc := fr.i[pl.acc[row-job.bdOff][s]]
				prod(row, g, col, ln, t0)
				prod(row, g+1, col, ln, t1)
				for l, l_n := 0, ln; l < l_n; l++ {
					acc[l] += sat16(t0[l] + t1[l])
				}
				prod(row, g+2, col, ln, t0)
				prod(row, g+3, col, ln, t1)
				for l, l_n := 0, ln; l < l_n; l++ {
					acc[l] += sat16(t0[l] + t1[l])
				}
			}
		}
	}
}

func sat16(v int32) int32 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return v
}

// microDynQuant runs the dynamically-quantized int8 body: a fresh integer
// pass accumulator per reduction block, flushed into the persistent float
// accumulators with the combined source × weight group scale. The integer
// and float accumulators share plan slots through the frame's two views.
func (k *Kernel) microDynQuant(fr *callFrame, job *tileJob, a, b []byte, kOff, kLen, kGlobal, rowLo, rowHi int) {
	pl, lanes := k.pl, k.sh.lanes
	p := fr.p
	lda := k.desc.LDA
	n := k.desc.N

	for row := rowLo; row < rowHi; row++ {
		accRow := pl.acc[row-job.bdOff]
		for s, s_n := 0, job.strips; s < s_n; s++ {
			clear(fr.i[accRow[s]])
		}
	}

	rowsum := make([]int32, rowHi-rowLo)
	for kk, kk_n := 0, kLen; kk < kk_n; kk++ {
		kx := kOff + kk
		for s, s_n := 0, job.strips; s < s_n; s++ {
			k.loadStripI(b, kx, job.ldOff+s*lanes, job.stripLanes(s, lanes), fr.i[pl.load[s]])
		}
		for row := rowLo; row < rowHi; row++ {
			av := k.loadAI(a, row*lda+kx)
			rowsum[row-rowLo] += av
			accRow := pl.acc[row-job.bdOff]
			for s, s_n := 0, job.strips; s < s_n; s++ {
				acc := fr.i[accRow[s]]
				ld := fr.i[pl.load[s]]
				for l, l_n := 0, lanes; l < l_n; l++ {
					acc[l] += av * ld[l]
				}
			}
		}
	}

	// Flush: (sum a*b - zp * sum a) * srcScale * weiScale. Group indices
	// are uniform across the block; the derivation enforces that.
	srcScale := p.SrcScales[kGlobal/k.attr.SrcScaleGroupK]
	g := kGlobal / k.attr.WeiGroupK
	for row := rowLo; row < rowHi; row++ {
		rs := float32(rowsum[row-rowLo])
		accRow := pl.acc[row-job.bdOff]
		for s, s_n := 0, job.strips; s < s_n; s++ {
			iacc := fr.i[accRow[s]]
			facc := fr.f[accRow[s]]
			col := job.ldOff + s*lanes
			ln := job.stripLanes(s, lanes)
			for l, l_n := 0, ln; l < l_n; l++ {
				v := float32(iacc[l])
				if k.attr.WithWeiDecompZP {
					v -= p.WeiDecompZP[g*n+col+l] * rs
				}
				facc[l] += v * srcScale * p.WeiDecompScales[g*n+col+l]
			}
		}
	}
}

// buildCompInline selects the per-batch-step compensation hook: the
// just-in-time column-sum path, or the padded-row correction that undoes
// the over-subtraction of full-reduction precomputed buffers.
func (k *Kernel) buildCompInline() func(fr *callFrame, job *tileJob, b []byte, rowLo, rowHi int, v accView) {
	if !k.attr.ReqS8S8Comp && k.attr.ZPTypeA == BcastNone {
		return nil
	}
	if k.attr.ReqCalCompPads {
		return k.compJIT
	}
	if k.desc.MaxVPadT+k.desc.MaxVPadB > 0 {
		return k.compPadFix
	}
	return nil
}

// compJIT subtracts (shift + zpA) * colsum(B_step) from every row that
// accumulated this step. Precomputed buffers are absent in this mode.
func (k *Kernel) compJIT(fr *callFrame, job *tileJob, b []byte, rowLo, rowHi int, v accView) {
	k.compApply(fr, job, b, rowLo, rowHi, -1, v)
}

// compPadFix adds (shift + zpA) * colsum(B_step) back to the rows this
// step virtually padded: the precomputed buffers assume every row saw
// every step, so padded rows are over-corrected by exactly one step's
// column sum.
func (k *Kernel) compPadFix(fr *callFrame, job *tileJob, b []byte, rowLo, rowHi int, v accView) {
	if !fr.p.ApplyComp {
		return
	}
	end := job.bdOff + job.bdLen
	k.compApply(fr, job, b, job.bdOff, min(rowLo, end), 1, v)
	k.compApply(fr, job, b, max(rowHi, job.bdOff), end, 1, v)
}

// compApply folds sign * (shift + zpA) * colsum(B over the step's full
// reduction) into the integer accumulators of rows [lo, hi).
func (k *Kernel) compApply(fr *callFrame, job *tileJob, b []byte, lo, hi int, sign int32, v accView) {
	if hi <= lo {
		return
	}
	factor := int32(0)
	if k.attr.ReqS8S8Comp {
		factor += 128
	}
	if k.attr.ZPTypeA != BcastNone {
		factor += fr.p.ZPAVal
	}
	if factor == 0 {
		return
	}
	factor *= sign

	pl, lanes := k.pl, k.sh.lanes
	ldb := k.desc.LDB
	cs := fr.i[pl.compAcc]
	for s, s_n := 0, job.strips; s < s_n; s++ {
		ln := job.stripLanes(s, lanes)
		clear(cs)
		for kx, kx_n := 0, k.desc.K; kx < kx_n; kx++ {
			base := kx*ldb + job.ldOff + s*lanes
			for l, l_n := 0, ln; l < l_n; l++ {
				cs[l] += k.loadBI(b, base+l)
			}
		}
		for row := lo; row < hi; row++ {
			acc := v.rowI(row-job.bdOff, s)
			for l, l_n := 0, ln; l < l_n; l++ {
				acc[l] += factor * cs[l]
			}
		}
	}
}
