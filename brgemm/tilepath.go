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

// tileView exposes the staged accumulator tile to the shared epilogue: one
// tile row per output row, sliced into strip-wide lane groups.
type tileView struct {
	fr    *callFrame
	lanes int
}

func (v tileView) rowF(bd, s int) []float32 {
	r := v.fr.accF.Row(bd)
	return r[s*v.lanes : (s+1)*v.lanes]
}

func (v tileView) rowI(bd, s int) []int32 {
	r := v.fr.accI.Row(bd)
	return r[s*v.lanes : (s+1)*v.lanes]
}

// runTileJob is the matrix-tile job body. Accumulators live in a staged
// tile rather than the vector register file; operand panels are staged per
// reduction block with dead rows, lanes and reduction tails zero-filled,
// so one full-size tile multiply serves every regime.
func (k *Kernel) runTileJob(fr *callFrame, job *tileJob) {
	sh := &k.sh
	if sh.isInt8 {
		fr.accI.Zero()
	} else {
		fr.accF.Zero()
	}

	view := tileView{fr: fr, lanes: sh.lanes}
	p := fr.p
	if !p.SkipAccum && k.desc.Alpha != 0 {
		for step, step_n := 0, p.batchLen(); step < step_n; step++ {
			a, b, vpt, vpb := k.operand(p, step)
			rowLo := max(job.bdOff, vpt)
			rowHi := min(job.bdOff+job.bdLen, k.desc.M-vpb)
			if rowHi > rowLo {
				for rb, rb_n := 0, sh.rdb; rb < rb_n; rb++ {
					k.tilePass(fr, job, a, b, rb*sh.rdBlock, sh.rdBlock, rowLo, rowHi)
				}
				if sh.rdbTail > 0 {
					k.tilePass(fr, job, a, b, sh.rdb*sh.rdBlock, sh.rdbTail, rowLo, rowHi)
				}
			}
			if k.compInline != nil {
				k.compInline(fr, job, b, rowLo, rowHi, view)
			}
		}
	}

	k.storeJob(fr, job, view)
}

// tilePassF stages one reduction block in float32 and accumulates with the
// float tile multiply. Narrow-float operands widen during staging, which
// is where the hardware widens them too.
func (k *Kernel) tilePassF(fr *callFrame, job *tileJob, a, b []byte, kOff, kLen, rowLo, rowHi int) {
	lanes := k.sh.lanes
	lda, ldb := k.desc.LDA, k.desc.LDB

	fr.aF.Zero()
	for row := rowLo; row < rowHi; row++ {
		dst := fr.aF.Row(row - job.bdOff)
		base := row*lda + kOff
		for kk, kk_n := 0, kLen; kk < kk_n; kk++ {
			dst[kk] = k.loadAF(a, base+kk)
		}
	}

	fr.bF.Zero()
	for kk, kk_n := 0, kLen; kk < kk_n; kk++ {
		dst := fr.bF.Row(kk)
		base := (kOff + kk) * ldb
		for s, s_n := 0, job.strips; s < s_n; s++ {
			col := job.ldOff + s*lanes
			for l, l_n := 0, job.stripLanes(s, lanes); l < l_n; l++ {
				dst[s*lanes+l] = k.loadBF(b, base+col+l)
			}
		}
	}

	simd.MatMulAddF32(&fr.accF, &fr.aF, &fr.bF)
}

// tilePassI stages one reduction block widened to int32 and accumulates
// with the exact integer tile multiply. The s8s8 shift applies during A
// staging when requested, matched by the compensation terms later.
func (k *Kernel) tilePassI(fr *callFrame, job *tileJob, a, b []byte, kOff, kLen, rowLo, rowHi int) {
	lanes := k.sh.lanes
	lda, ldb := k.desc.LDA, k.desc.LDB
	var shift int32
	if k.attr.ReqS8S8Comp {
		shift = 128
	}

	fr.aI.Zero()
	for row := rowLo; row < rowHi; row++ {
		dst := fr.aI.Row(row - job.bdOff)
		base := row*lda + kOff
		for kk, kk_n := 0, kLen; kk < kk_n; kk++ {
			dst[kk] = k.loadAI(a, base+kk) + shift
		}
	}

	fr.bI.Zero()
	for kk, kk_n := 0, kLen; kk < kk_n; kk++ {
		dst := fr.bI.Row(kk)
		base := (kOff + kk) * ldb
		for s, s_n := 0, job.strips; s < s_n; s++ {
			col := job.ldOff + s*lanes
			for l, l_n := 0, job.stripLanes(s, lanes); l < l_n; l++ {
				dst[s*lanes+l] = k.loadBI(b, base+col+l)
			}
		}
	}

	simd.MatMulAddI32(&fr.accI, &fr.aI, &fr.bI)
}
