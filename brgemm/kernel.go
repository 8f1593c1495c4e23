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

// Package brgemm builds batch-reduce matrix-multiply kernels ahead of use.
// A kernel is compiled once from an immutable descriptor: every shape,
// type, tier and attribute decision is taken at build time and baked into
// the kernel's job list and function composition, so the invocation path
// runs straight through without consulting the descriptor again.
//
// The computation is C[M×N] (+)= alpha * sum_over_batch(A_i[M×K] × B_i[K×N])
// followed by a store epilogue that applies compensation, beta blending,
// bias, scales, the post-op chain and a saturating conversion to the
// destination type.
package brgemm

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/jhansom/oneDNN/postops"
	"github.com/jhansom/oneDNN/simd"
	"github.com/jhansom/oneDNN/workerpool"
)

// Kernel is a built batch-reduce kernel. It is immutable after New and safe
// for concurrent Execute calls; per-invocation state lives in pooled call
// frames.
type Kernel struct {
	desc Desc
	attr Attr
	sh   shape
	pl   *plan
	inj  *postops.Injector
	jobs []tileJob

	// Element accessors resolved at build so the loop body never switches
	// on operand types.
	loadAF func(buf []byte, idx int) float32
	loadBF func(buf []byte, idx int) float32
	loadAI func(buf []byte, idx int) int32
	loadBI func(buf []byte, idx int) int32

	// decompB widens one quantized B element through its group scale and
	// zero point. Nil without weight decompression.
	decompB func(p *Params, buf []byte, idx, kGlobal, col int) float32

	// operand resolves one batch step to its A/B slices and virtual
	// padding, per the descriptor's addressing mode.
	operand func(p *Params, step int) (a, b []byte, vpadTop, vpadBottom int)

	// run executes one row-block × column-tile job: accumulate over the
	// batch, then store. Selected at build (vector or tile path).
	run func(fr *callFrame, job *tileJob)

	// micro runs one reduction block of the vector path.
	micro func(fr *callFrame, job *tileJob, a, b []byte, kOff, kLen, kGlobal, rowLo, rowHi int)

	// compInline is the per-step integer compensation hook: either the
	// just-in-time column-sum subtraction or the padded-row correction of
	// precomputed buffers. Nil when neither applies. It writes through the
	// caller's accumulator view so both storage strategies share it.
	compInline func(fr *callFrame, job *tileJob, b []byte, rowLo, rowHi int, v accView)

	// tilePass stages one reduction block into operand tiles and runs the
	// tile multiply. Nil on the vector path.
	tilePass func(fr *callFrame, job *tileJob, a, b []byte, kOff, kLen, rowLo, rowHi int)

	// epiStages is the destination-domain stage chain of the store
	// epilogue, composed once from the attributes.
	epiStages []func(es *epiState)

	frames   sync.Pool
	released atomic.Bool
}

// callFrame is the per-invocation register file and staging storage. Frames
// are pooled by the kernel; a frame never outlives one Execute call's view
// of its Params.
type callFrame struct {
	p        *Params
	ldc, ldd int

	// Logical vector register file, float and integer views of the same
	// plan slots. The accumulation domain picks the view; the epilogue
	// may convert a slot from i to f in place.
	f [][]float32
	i [][]int32

	// Hardware-tile staging (tile path only).
	accF, aF, bF simd.Tile[float32]
	accI, aI, bI simd.Tile[int32]
}

// New compiles a kernel for the descriptor and attributes. A nil attr means
// no attributes. Builds are hard-fail: any invariant violation or budget
// overrun rejects the descriptor rather than producing a partial kernel.
//
// desc.Level left at LevelAuto (the zero value) selects the best tier the
// host supports; any explicit tier, including LevelScalar, is pinned as is.
func New(desc *Desc, attr *Attr) (*Kernel, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: nil descriptor", ErrInvalidDesc)
	}
	k := &Kernel{desc: *desc}
	if attr != nil {
		k.attr = *attr
	}
	if k.desc.Level == simd.LevelAuto {
		k.desc.Level = simd.Detect()
	}

	if err := k.desc.validate(&k.attr); err != nil {
		return nil, err
	}

	avail := k.desc.Level.VecRegs() - planReservations(&k.desc, &k.attr)
	sh, err := k.desc.derive(&k.attr, avail)
	if err != nil {
		return nil, err
	}
	k.sh = sh

	k.pl, err = newPlan(&k.desc, &k.attr, sh)
	if err != nil {
		return nil, err
	}

	k.inj, err = postops.New(k.attr.PostOps)
	if err != nil {
		return nil, err
	}

	k.loadAF = floatLoader(k.desc.TypeA)
	k.loadBF = floatLoader(k.desc.TypeB)
	if sh.isInt8 {
		k.loadAI = intLoader(k.desc.TypeA)
		k.loadBI = intLoader(k.desc.TypeB)
	}
	if k.attr.WithWeiDecomp {
		k.decompB = k.buildDecompB()
		if k.attr.WithSrcDynQuant {
			k.loadAI = intLoader(k.desc.TypeA)
			k.loadBI = intLoader(k.desc.TypeB)
		}
	}

	k.jobs = buildJobs(&k.desc, sh)
	k.operand = buildOperand(&k.desc)
	k.micro = k.buildMicro()
	k.compInline = k.buildCompInline()
	k.epiStages = k.buildEpilogue()
	if k.desc.UseTile {
		k.run = k.runTileJob
		if sh.isInt8 {
			k.tilePass = k.tilePassI
		} else {
			k.tilePass = k.tilePassF
		}
	} else {
		k.run = k.runVecJob
	}

	k.frames.New = func() any { return k.newFrame() }
	return k, nil
}

func (k *Kernel) newFrame() *callFrame {
	fr := &callFrame{
		f: make([][]float32, k.pl.nregs),
		i: make([][]int32, k.pl.nregs),
	}
	for r := range fr.f {
		fr.f[r] = make([]float32, k.sh.lanes)
		fr.i[r] = make([]int32, k.sh.lanes)
	}
	if k.desc.UseTile {
		// bdBlock2 row blocks accumulate through one staged pass.
		rows := k.sh.bdBlock * k.sh.bdBlock2
		cols := k.sh.ldBlock2 * k.sh.lanes
		// The float accumulator tile always exists: it is the conversion
		// target when the integer epilogue leaves the int32 domain.
		fr.accF = simd.NewTile[float32](rows, cols)
		if k.sh.isInt8 {
			fr.accI = simd.NewTile[int32](rows, cols)
			fr.aI = simd.NewTile[int32](rows, k.sh.rdBlock)
			fr.bI = simd.NewTile[int32](k.sh.rdBlock, cols)
		} else {
			fr.aF = simd.NewTile[float32](rows, k.sh.rdBlock)
			fr.bF = simd.NewTile[float32](k.sh.rdBlock, cols)
		}
	}
	return fr
}

// Execute runs one invocation. Params must be consistent with the build
// descriptor; using a released kernel panics with ErrReleased. Execute is
// safe to call concurrently with itself on distinct Params.
func (k *Kernel) Execute(p *Params) {
	if k.released.Load() {
		panic(ErrReleased)
	}
	fr := k.frames.Get().(*callFrame)
	fr.p = p
	fr.ldc = k.desc.LDC
	if k.desc.RuntimeLDC {
		fr.ldc = p.LDC
	}
	fr.ldd = k.desc.LDD
	if k.desc.RuntimeLDD {
		fr.ldd = p.LDD
	}
	for idx := range k.jobs {
		k.run(fr, &k.jobs[idx])
	}
	fr.p = nil
	k.frames.Put(fr)
}

// ExecuteBatch runs many independent invocations on the pool, one frame per
// worker. Load balancing is work-stealing since ragged batches make call
// costs uneven. A nil pool runs sequentially.
func (k *Kernel) ExecuteBatch(pool *workerpool.Pool, calls []Params) {
	if pool == nil {
		for idx := range calls {
			k.Execute(&calls[idx])
		}
		return
	}
	pool.ParallelForAtomic(len(calls), func(idx int) {
		k.Execute(&calls[idx])
	})
}

// Release discards the kernel's job list and frame pool. Subsequent Execute
// calls panic with ErrReleased. Release is idempotent.
func (k *Kernel) Release() {
	k.released.Store(true)
	k.jobs = nil
	k.frames = sync.Pool{}
}

// buildDecompB composes the grouped dequantization of one B element:
// widen, subtract the group zero point when present, multiply by the group
// scale. Group index is the global reduction position across batch steps.
func (k *Kernel) buildDecompB() func(p *Params, buf []byte, idx, kGlobal, col int) float32 {
	widen := floatLoader(k.desc.TypeB)
	n := k.desc.N
	groupK := k.attr.WeiGroupK
	if k.attr.WithWeiDecompZP {
		return func(p *Params, buf []byte, idx, kGlobal, col int) float32 {
			g := kGlobal / groupK
			return (widen(buf, idx) - p.WeiDecompZP[g*n+col]) * p.WeiDecompScales[g*n+col]
		}
	}
	return func(p *Params, buf []byte, idx, kGlobal, col int) float32 {
		g := kGlobal / groupK
		return widen(buf, idx) * p.WeiDecompScales[g*n+col]
	}
}

// floatLoader returns the element-to-float32 reader for dt, resolved once
// at build.
func floatLoader(dt DataType) func(buf []byte, idx int) float32 {
	switch dt {
	case F32:
		return func(buf []byte, idx int) float32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(buf[idx*4:]))
		}
	case BF16:
		return func(buf []byte, idx int) float32 {
			return simd.BFloat16FromBits(binary.LittleEndian.Uint16(buf[idx*2:])).Float32()
		}
	case F16:
		return func(buf []byte, idx int) float32 {
			return simd.Float16FromBits(binary.LittleEndian.Uint16(buf[idx*2:])).Float32()
		}
	case S8:
		return func(buf []byte, idx int) float32 { return float32(int8(buf[idx])) }
	case U8:
		return func(buf []byte, idx int) float32 { return float32(buf[idx]) }
	case S32:
		return func(buf []byte, idx int) float32 {
			return float32(int32(binary.LittleEndian.Uint32(buf[idx*4:])))
		}
	default:
		return nil
	}
}

// intLoader returns the element-to-int32 reader for dt.
func intLoader(dt DataType) func(buf []byte, idx int) int32 {
	switch dt {
	case S8:
		return func(buf []byte, idx int) int32 { return int32(int8(buf[idx])) }
	case U8:
		return func(buf []byte, idx int) int32 { return int32(buf[idx]) }
	case S32:
		return func(buf []byte, idx int) int32 {
			return int32(binary.LittleEndian.Uint32(buf[idx*4:]))
		}
	default:
		return nil
	}
}
