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

// tileJob is one fully-resolved iteration of the outer loop nest: a row
// block crossed with a column tile. Everything shape-dependent is folded in
// at build, so running a job never re-derives the tiling.
type tileJob struct {
	bdOff     int // first output row
	bdLen     int // rows in this block
	ldOff     int // first output column
	strips    int // vector strips in this tile
	lastLanes int // live lanes of the final strip
}

// stripLanes returns the live lane count of strip s; only the final strip
// of the masked tail tile runs short.
func (j *tileJob) stripLanes(s, lanes int) int {
	if s == j.strips-1 {
		return j.lastLanes
	}
	return lanes
}

// buildJobs unrolls the row-block and column-tile loops into a flat job
// list: full column tiles first within each row block, then the strip-count
// tail tile, then the masked single-strip tail. On the tile path bdBlock2
// row blocks fold into one pass, so its jobs span that many blocks.
func buildJobs(d *Desc, sh shape) []tileJob {
	rowBlock := sh.bdBlock
	if d.UseTile {
		rowBlock = sh.bdBlock * sh.bdBlock2
	}
	var bdRanges []tileJob
	full := d.M / rowBlock
	for i, i_n := 0, full; i < i_n; i++ {
		bdRanges = append(bdRanges, tileJob{bdOff: i * rowBlock, bdLen: rowBlock})
	}
	if tail := d.M % rowBlock; tail > 0 {
		bdRanges = append(bdRanges, tileJob{bdOff: full * rowBlock, bdLen: tail})
	}

	var jobs []tileJob
	for _, bd := range bdRanges {
		col := 0
		for _i, _i_n := 0, sh.ldb2; _i < _i_n; _i++ {
			jobs = append(jobs, tileJob{
				bdOff: bd.bdOff, bdLen: bd.bdLen,
				ldOff: col, strips: sh.ldBlock2, lastLanes: sh.lanes,
			})
			col += sh.ldBlock2 * sh.lanes
		}
		if sh.ldb2Tail > 0 {
			jobs = append(jobs, tileJob{
				bdOff: bd.bdOff, bdLen: bd.bdLen,
				ldOff: col, strips: sh.ldb2Tail, lastLanes: sh.lanes,
			})
			col += sh.ldb2Tail * sh.lanes
		}
		if sh.ldbTail > 0 {
			jobs = append(jobs, tileJob{
				bdOff: bd.bdOff, bdLen: bd.bdLen,
				ldOff: col, strips: 1, lastLanes: sh.ldbTail,
			})
		}
	}
	return jobs
}

// buildOperand resolves the batch addressing mode once at build.
func buildOperand(d *Desc) func(p *Params, step int) ([]byte, []byte, int, int) {
	switch d.Batch {
	case BatchAddr:
		return func(p *Params, step int) ([]byte, []byte, int, int) {
			e := &p.Batch[step]
			return e.A, e.B, e.VPadTop, e.VPadBottom
		}
	case BatchOffset:
		return func(p *Params, step int) ([]byte, []byte, int, int) {
			e := &p.Batch[step]
			return p.A[e.OffA:], p.B[e.OffB:], e.VPadTop, e.VPadBottom
		}
	default: // BatchStride
		strideA, strideB := d.StrideA, d.StrideB
		return func(p *Params, step int) ([]byte, []byte, int, int) {
			return p.A[int64(step)*strideA:], p.B[int64(step)*strideB:], 0, 0
		}
	}
}

// runVecJob is the vector-path job body: zero the accumulator block, fold
// every batch step's reduction into it, then hand off to the store
// epilogue. Virtual padding clamps the live row range per step; a fully
// padded step still runs its compensation hook.
func (k *Kernel) runVecJob(fr *callFrame, job *tileJob) {
	sh := &k.sh
	for bd, bd_n := 0, job.bdLen; bd < bd_n; bd++ {
		for s, s_n := 0, job.strips; s < s_n; s++ {
			phys := k.pl.acc[bd][s]
			if sh.isInt8 {
				clear(fr.i[phys])
			} else {
				clear(fr.f[phys])
			}
		}
	}

	view := vecView{fr: fr, pl: k.pl}
	p := fr.p
	if !p.SkipAccum && k.desc.Alpha != 0 {
		for step, step_n := 0, p.batchLen(); step < step_n; step++ {
			a, b, vpt, vpb := k.operand(p, step)
			rowLo := max(job.bdOff, vpt)
			rowHi := min(job.bdOff+job.bdLen, k.desc.M-vpb)
			kGlobal := step * k.desc.K
			if rowHi > rowLo {
				for rb, rb_n := 0, sh.rdb; rb < rb_n; rb++ {
					off := rb * sh.rdBlock
					k.micro(fr, job, a, b, off, sh.rdBlock, kGlobal+off, rowLo, rowHi)
				}
				if sh.rdbTail > 0 {
					off := sh.rdb * sh.rdBlock
					k.micro(fr, job, a, b, off, sh.rdbTail, kGlobal+off, rowLo, rowHi)
				}
			}
			if k.compInline != nil {
				k.compInline(fr, job, b, rowLo, rowHi, view)
			}
		}
	}

	k.storeJob(fr, job, view)
}

// vecView exposes the register-file accumulator block of one job to the
// shared epilogue.
type vecView struct {
	fr *callFrame
	pl *plan
}

func (v vecView) rowF(bd, s int) []float32 { return v.fr.f[v.pl.acc[bd][s]] }
func (v vecView) rowI(bd, s int) []int32   { return v.fr.i[v.pl.acc[bd][s]] }
