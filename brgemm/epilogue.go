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
	"github.com/jhansom/oneDNN/postops"
	"github.com/jhansom/oneDNN/simd"
)

// accView exposes one job's accumulator block to the store epilogue. Both
// storage strategies implement it: the vector path over the register file,
// the tile path over the staged accumulator tile. The two row views share
// backing slots; toFloat copies i-domain lanes into the f-domain view.
type accView interface {
	rowF(bd, s int) []float32
	rowI(bd, s int) []int32
}

// epiState threads one job through the stage chain. isInt tracks the
// current accumulator domain: integer kernels stay in int32 until the
// first stage that needs float math, mirroring the one-way conversion of
// the hardware path.
type epiState struct {
	fr    *callFrame
	job   *tileJob
	v     accView
	isInt bool
}

// toFloat converts the job's accumulators to float32 in place. Idempotent;
// later stages read only the float view once any stage has called it.
func (k *Kernel) toFloat(es *epiState) {
	if !es.isInt {
		return
	}
	lanes := k.sh.lanes
	for bd, bd_n := 0, es.job.bdLen; bd < bd_n; bd++ {
		for s, s_n := 0, es.job.strips; s < s_n; s++ {
			simd.Store(simd.ConvertI32F32(simd.Load(es.v.rowI(bd, s), lanes)), es.v.rowF(bd, s))
		}
	}
	es.isInt = false
}

// storeJob runs the store path for one job: compensation, beta blending,
// then either the raw accumulator write to C or the attribute stage chain
// and the saturating write to D.
func (k *Kernel) storeJob(fr *callFrame, job *tileJob, v accView) {
	es := &epiState{fr: fr, job: job, v: v, isInt: k.sh.isInt8}
	k.applyCompBuffers(es)
	k.applyAlphaBeta(es)
	if !fr.p.ApplyPostOps {
		k.storeToC(es)
		return
	}
	for _, stage := range k.epiStages {
		stage(es)
	}
	k.storeToD(es)
}

// applyCompBuffers folds the precomputed compensation buffers into the
// integer accumulators: the s8s8 column sums, the A zero-point column
// sums, and the B zero-point row terms. The just-in-time mode computed all
// of this inline, so it skips here.
func (k *Kernel) applyCompBuffers(es *epiState) {
	if !es.isInt || !es.fr.p.ApplyComp || k.attr.ReqCalCompPads {
		return
	}
	p, job, lanes := es.fr.p, es.job, k.sh.lanes
	withS8S8 := k.attr.ReqS8S8Comp
	withZPA := k.attr.ZPTypeA != BcastNone
	withZPB := k.attr.ZPTypeB != BcastNone
	if !withS8S8 && !withZPA && !withZPB {
		return
	}
	for bd, bd_n := 0, job.bdLen; bd < bd_n; bd++ {
		row := job.bdOff + bd
		for s, s_n := 0, job.strips; s < s_n; s++ {
			acc := es.v.rowI(bd, s)
			col := job.ldOff + s*lanes
			ln := job.stripLanes(s, lanes)
			for l, l_n := 0, ln; l < l_n; l++ {
				if withS8S8 {
					acc[l] += p.Compensation[col+l]
				}
				if withZPA {
					acc[l] += p.ZPCompA[col+l] * p.ZPAVal
				}
				if withZPB {
					acc[l] += p.ZPCompB[row]
				}
			}
		}
	}
}

// applyAlphaBeta blends the accumulators with the existing C values. The
// pure-integer case (alpha and beta both one, integer domain) adds C
// without leaving int32; every other case converts and blends in float.
func (k *Kernel) applyAlphaBeta(es *epiState) {
	alpha, beta := k.desc.Alpha, k.desc.Beta
	p, job, lanes := es.fr.p, es.job, k.sh.lanes
	tc := k.desc.TypeC

	if beta == 0 {
		if alpha != 1 && alpha != 0 {
			k.toFloat(es)
			for bd, bd_n := 0, job.bdLen; bd < bd_n; bd++ {
				for s, s_n := 0, job.strips; s < s_n; s++ {
					acc := es.v.rowF(bd, s)
					for l := range acc {
						acc[l] *= alpha
					}
				}
			}
		}
		return
	}

	if es.isInt && beta == 1 && alpha == 1 {
		for bd, bd_n := 0, job.bdLen; bd < bd_n; bd++ {
			row := job.bdOff + bd
			for s, s_n := 0, job.strips; s < s_n; s++ {
				acc := es.v.rowI(bd, s)
				base := row*es.fr.ldc + job.ldOff + s*lanes
				for l, l_n := 0, job.stripLanes(s, lanes); l < l_n; l++ {
					acc[l] += tc.loadI32(p.C, base+l)
				}
			}
		}
		return
	}

	k.toFloat(es)
	for bd, bd_n := 0, job.bdLen; bd < bd_n; bd++ {
		row := job.bdOff + bd
		for s, s_n := 0, job.strips; s < s_n; s++ {
			acc := es.v.rowF(bd, s)
			base := row*es.fr.ldc + job.ldOff + s*lanes
			for l, l_n := 0, job.stripLanes(s, lanes); l < l_n; l++ {
				acc[l] = alpha*acc[l] + beta*tc.loadF32(p.C, base+l)
			}
		}
	}
}

// storeToC writes the blended accumulators back to the accumulation buffer
// in its native type, with no destination-domain processing.
func (k *Kernel) storeToC(es *epiState) {
	job, lanes := es.job, k.sh.lanes
	p := es.fr.p
	tc := k.desc.TypeC
	for bd, bd_n := 0, job.bdLen; bd < bd_n; bd++ {
		row := job.bdOff + bd
		for s, s_n := 0, job.strips; s < s_n; s++ {
			base := row*es.fr.ldc + job.ldOff + s*lanes
			ln := job.stripLanes(s, lanes)
			if es.isInt {
				acc := es.v.rowI(bd, s)
				for l, l_n := 0, ln; l < l_n; l++ {
					tc.storeI32(p.C, base+l, acc[l])
				}
			} else {
				acc := es.v.rowF(bd, s)
				for l, l_n := 0, ln; l < l_n; l++ {
					tc.storeF32(p.C, base+l, acc[l])
				}
			}
		}
	}
}

// storeToD writes the finished values to the destination with the
// saturating conversion to TypeD. Integer-domain values that never needed
// float math take the exact integer clamp instead of a float round trip.
func (k *Kernel) storeToD(es *epiState) {
	job, lanes := es.job, k.sh.lanes
	p := es.fr.p
	td := k.desc.TypeD
	for bd, bd_n := 0, job.bdLen; bd < bd_n; bd++ {
		row := job.bdOff + bd
		for s, s_n := 0, job.strips; s < s_n; s++ {
			base := row*es.fr.ldd + job.ldOff + s*lanes
			ln := job.stripLanes(s, lanes)
			if es.isInt {
				acc := es.v.rowI(bd, s)
				for l, l_n := 0, ln; l < l_n; l++ {
					td.storeI32(p.D, base+l, acc[l])
				}
			} else {
				acc := es.v.rowF(bd, s)
				for l, l_n := 0, ln; l < l_n; l++ {
					td.storeF32(p.D, base+l, acc[l])
				}
			}
		}
	}
}

// buildEpilogue composes the destination-domain stage chain from the
// attributes: bias, weight scales, the post-op chain, destination scales,
// and the output zero point, in that order. Only configured stages exist
// in the chain.
func (k *Kernel) buildEpilogue() []func(es *epiState) {
	var stages []func(es *epiState)
	if k.desc.TypeBias != TypeNone {
		stages = append(stages, k.stageBias)
	}
	if k.attr.WithScales {
		stages = append(stages, k.stageWeiScales)
	}
	if k.inj.Len() > 0 {
		stages = append(stages, k.stagePostOps)
	}
	if k.attr.WithDstScales {
		stages = append(stages, k.stageDstScales)
	}
	if k.attr.ZPTypeC != BcastNone {
		stages = append(stages, k.stageZPC)
	}
	return stages
}

func (k *Kernel) stageBias(es *epiState) {
	k.toFloat(es)
	job, lanes := es.job, k.sh.lanes
	p := es.fr.p
	tb := k.desc.TypeBias
	for bd, bd_n := 0, job.bdLen; bd < bd_n; bd++ {
		for s, s_n := 0, job.strips; s < s_n; s++ {
			acc := es.v.rowF(bd, s)
			col := job.ldOff + s*lanes
			for l, l_n := 0, job.stripLanes(s, lanes); l < l_n; l++ {
				acc[l] += tb.loadF32(p.Bias, col+l)
			}
		}
	}
}

func (k *Kernel) stageWeiScales(es *epiState) {
	k.toFloat(es)
	job, lanes := es.job, k.sh.lanes
	p := es.fr.p
	if !k.attr.ScalesPerN {
		sc := p.WeiScales[0]
		for bd, bd_n := 0, job.bdLen; bd < bd_n; bd++ {
			for s, s_n := 0, job.strips; s < s_n; s++ {
				acc := es.v.rowF(bd, s)
				for l, l_n := 0, job.stripLanes(s, lanes); l < l_n; l++ {
					acc[l] *= sc
				}
			}
		}
		return
	}
	for bd, bd_n := 0, job.bdLen; bd < bd_n; bd++ {
		for s, s_n := 0, job.strips; s < s_n; s++ {
			acc := es.v.rowF(bd, s)
			col := job.ldOff + s*lanes
			for l, l_n := 0, job.stripLanes(s, lanes); l < l_n; l++ {
				acc[l] *= p.WeiScales[col+l]
			}
		}
	}
}

// stagePostOps hands the job's live accumulator lanes to the injector.
// Register index order is row-major over (row, strip), and tail strips are
// truncated to their live lanes before the injector sees them.
func (k *Kernel) stagePostOps(es *epiState) {
	k.toFloat(es)
	job, lanes := es.job, k.sh.lanes
	p := es.fr.p

	regs := make([][]float32, 0, job.bdLen*job.strips)
	for bd, bd_n := 0, job.bdLen; bd < bd_n; bd++ {
		for s, s_n := 0, job.strips; s < s_n; s++ {
			regs = append(regs, es.v.rowF(bd, s)[:job.stripLanes(s, lanes)])
		}
	}

	var addr postops.AddrFn
	if k.inj.NumBinary() > 0 {
		bcast := make([]float32, lanes)
		addr = func(binIdx, reg int) []float32 {
			buf := p.BinaryArgs[binIdx]
			if len(buf) == 1 {
				for l := range bcast {
					bcast[l] = buf[0]
				}
				return bcast
			}
			s := reg % job.strips
			return buf[job.ldOff+s*lanes:]
		}
	}

	var sum postops.SumFn
	if k.inj.HasSum() {
		sumDT := k.attr.SumDT
		if sumDT == TypeNone {
			sumDT = k.desc.TypeD
		}
		prev := make([]float32, lanes)
		sum = func(reg int) []float32 {
			bd, s := reg/job.strips, reg%job.strips
			base := (job.bdOff+bd)*es.fr.ldd + job.ldOff + s*lanes
			for l, l_n := 0, job.stripLanes(s, lanes); l < l_n; l++ {
				prev[l] = sumDT.loadF32(p.D, base+l)
			}
			return prev
		}
	}

	k.inj.Apply(regs, addr, sum)
}

func (k *Kernel) stageDstScales(es *epiState) {
	k.toFloat(es)
	job, lanes := es.job, k.sh.lanes
	sc := es.fr.p.DstScales[0]
	for bd, bd_n := 0, job.bdLen; bd < bd_n; bd++ {
		for s, s_n := 0, job.strips; s < s_n; s++ {
			acc := es.v.rowF(bd, s)
			for l, l_n := 0, job.stripLanes(s, lanes); l < l_n; l++ {
				acc[l] *= sc
			}
		}
	}
}

func (k *Kernel) stageZPC(es *epiState) {
	k.toFloat(es)
	job, lanes := es.job, k.sh.lanes
	p := es.fr.p
	if k.attr.ZPTypeC == BcastPerTensor {
		zp := float32(p.ZPCValues[0])
		for bd, bd_n := 0, job.bdLen; bd < bd_n; bd++ {
			for s, s_n := 0, job.strips; s < s_n; s++ {
				acc := es.v.rowF(bd, s)
				for l, l_n := 0, job.stripLanes(s, lanes); l < l_n; l++ {
					acc[l] += zp
				}
			}
		}
		return
	}
	for bd, bd_n := 0, job.bdLen; bd < bd_n; bd++ {
		for s, s_n := 0, job.strips; s < s_n; s++ {
			acc := es.v.rowF(bd, s)
			col := job.ldOff + s*lanes
			for l, l_n := 0, job.stripLanes(s, lanes); l < l_n; l++ {
				acc[l] += float32(p.ZPCValues[col+l])
			}
		}
	}
}
