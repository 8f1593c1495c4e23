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
	"fmt"

	"github.com/jhansom/oneDNN/postops"
	"github.com/jhansom/oneDNN/simd"
)

// Broadcast describes how a quantization parameter varies over the output.
type Broadcast int

const (
	// BcastNone disables the parameter.
	BcastNone Broadcast = iota

	// BcastPerTensor is one value for the whole output.
	BcastPerTensor

	// BcastPerN is one value per output column.
	BcastPerN
)

func (b Broadcast) String() string {
	switch b {
	case BcastNone:
		return "none"
	case BcastPerTensor:
		return "per_tensor"
	case BcastPerN:
		return "per_n"
	default:
		return "unknown"
	}
}

// Attr carries the quantization and post-op attributes of a kernel,
// validated together with the descriptor at build time.
type Attr struct {
	// PostOps is the injected chain, applied in order by the epilogue.
	PostOps []postops.Op

	// SumDT is the element type the sum post-op re-reads from D. Zero
	// value means Desc.TypeD.
	SumDT DataType

	// WithScales enables the weight-scale multiply; ScalesPerN selects
	// per-channel over per-tensor. WithDstScales enables the destination
	// scale multiply.
	WithScales    bool
	ScalesPerN    bool
	WithDstScales bool

	// Zero-point presence per operand.
	ZPTypeA Broadcast
	ZPTypeB Broadcast
	ZPTypeC Broadcast

	// ReqS8S8Comp requests the shift-and-correct emulation of s8×s8 on
	// tiers whose int8 dot product takes an unsigned left operand.
	ReqS8S8Comp bool

	// ReqCalCompPads selects just-in-time compensation computed inside the
	// kernel instead of precomputed compensation buffers. The two policies
	// are mutually exclusive by construction: this flag picks one.
	ReqCalCompPads bool

	// Grouped weight decompression: B holds quantized integers widened and
	// rescaled inline before each accumulate. WeiGroupK is the reduction
	// group size sharing one scale/zero-point row.
	WithWeiDecomp   bool
	WithWeiDecompZP bool
	WeiGroupK       int

	// Dynamic source quantization: integer accumulation converted to float
	// once per reduction pass with a source-scale × weight-scale multiply.
	WithSrcDynQuant bool
	SrcScaleGroupK  int
}

// Desc is the immutable build-time description of one kernel shape. Create
// one per distinct shape, fill the exported fields, and pass it to New.
type Desc struct {
	TypeA    DataType
	TypeB    DataType
	TypeC    DataType
	TypeD    DataType
	TypeBias DataType // TypeNone disables the bias add

	// Problem dimensions: C[M×N] accumulates A[M×K] × B[K×N] over the
	// batch. Leading dimensions are in elements.
	M, N, K            int
	LDA, LDB, LDC, LDD int

	// RuntimeLDC/RuntimeLDD defer the C/D leading dimension to Params.
	RuntimeLDC bool
	RuntimeLDD bool

	Alpha float32
	Beta  float32

	// Level pins the instruction-set tier for this kernel. UseTile selects
	// the hardware matrix-tile path (requires Level.HasTile()).
	Level   simd.Level
	UseTile bool

	// Batch addressing mode; StrideA/StrideB are byte strides for
	// BatchStride mode.
	Batch    BatchKind
	StrideA  int64
	StrideB  int64
	MaxBS    int
	MaxVPadT int
	MaxVPadB int

	// Block sizes. Zero means choose automatically against the register
	// budget. LDBlock is always one vector strip (Level.Width()/4
	// elements) and cannot be overridden; LDBlock2 is the strip
	// multiplicity per column tile.
	BDBlock  int
	LDBlock2 int
	RDBlock  int

	// BDBlock2 groups row blocks into one tile pass on the tile path.
	BDBlock2 int
}

// shape is the derived tiling, computed once at build.
type shape struct {
	lanes int // accumulator lanes per vector strip (32-bit domain)

	bdBlock int // rows per row block
	bdb     int // full row blocks
	bdbTail int // rows in the tail row block (0 = none)

	ldBlock2 int // strips per full column tile
	ldb2     int // full column tiles
	ldb2Tail int // strips in the second-level tail tile (0 = none)
	ldbTail  int // lanes in the single-tail strip (0 = none)

	rdBlock int // reduction elements per block
	rdb     int // full reduction blocks
	rdbTail int // reduction elements in the tail pass (0 = none)
	rdStep  int // packing granularity of the dot product

	bdBlock2 int // row blocks per tile pass (tile path only)

	isInt8 bool // integer accumulation domain
}

// validate checks every descriptor invariant that does not depend on the
// register budget (the planner checks that one).
func (d *Desc) validate(attr *Attr) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrInvalidDesc}, args...)...)
	}

	if d.M <= 0 || d.N <= 0 || d.K <= 0 {
		return fail("dimensions must be positive, got M=%d N=%d K=%d", d.M, d.N, d.K)
	}
	if d.BDBlock < 0 || d.LDBlock2 < 0 || d.RDBlock < 0 || d.BDBlock2 < 0 {
		return fail("negative block size")
	}
	if d.LDA < d.K || d.LDB < d.N {
		return fail("leading dimension smaller than row length")
	}
	if !d.RuntimeLDC && d.LDC < d.N {
		return fail("LDC %d < N %d", d.LDC, d.N)
	}
	if !d.RuntimeLDD && d.LDD < d.N {
		return fail("LDD %d < N %d", d.LDD, d.N)
	}

	switch {
	case d.TypeA == F32 && (d.TypeB == F32 || d.TypeB.isInt8()):
	case d.TypeA == BF16 && d.TypeB == BF16:
	case d.TypeA == F16 && d.TypeB == F16:
	case d.TypeA.isInt8() && d.TypeB == S8:
	default:
		return fmt.Errorf("%w: A=%s B=%s", ErrUnsupported, d.TypeA, d.TypeB)
	}
	if d.TypeA == F32 && d.TypeB.isInt8() && !attr.WithWeiDecomp {
		return fail("f32×int8 requires weight decompression")
	}

	isInt8 := d.TypeA.isInt8() && !attr.WithWeiDecomp
	if d.TypeC != F32 && !(d.TypeC == S32 && isInt8) {
		return fmt.Errorf("%w: accumulator type %s for A=%s", ErrUnsupported, d.TypeC, d.TypeA)
	}

	if (attr.ReqS8S8Comp || attr.ZPTypeA != BcastNone || attr.ZPTypeB != BcastNone) && !isInt8 {
		return fail("compensation flags require integer operand types")
	}
	if attr.ReqS8S8Comp && d.TypeA != S8 {
		return fail("s8s8 compensation with A=%s", d.TypeA)
	}
	if attr.WithWeiDecomp && !d.TypeB.isInt8() {
		return fail("weight decompression with B=%s", d.TypeB)
	}
	if attr.WithWeiDecomp && attr.WeiGroupK <= 0 {
		return fail("weight decompression needs WeiGroupK > 0")
	}
	if attr.WithSrcDynQuant {
		if !d.TypeA.isInt8() || !attr.WithWeiDecomp {
			return fail("dynamic quantization requires int8 A and decompressed B")
		}
		if attr.SrcScaleGroupK <= 0 {
			return fail("dynamic quantization needs SrcScaleGroupK > 0")
		}
	}

	if d.UseTile && !d.Level.HasTile() {
		return fmt.Errorf("%w: tile path on %s", ErrUnsupported, d.Level)
	}
	if d.UseTile && (attr.WithWeiDecomp || attr.WithSrcDynQuant) {
		return fmt.Errorf("%w: tile path with inline dequantization", ErrUnsupported)
	}

	if d.Batch == BatchStride && (d.StrideA <= 0 || d.StrideB <= 0) {
		return fail("stride batch mode needs positive strides")
	}
	if d.MaxVPadT < 0 || d.MaxVPadB < 0 {
		return fail("negative virtual padding bound")
	}

	return nil
}

// derive computes the tiling. Block sizes left zero are chosen against the
// register budget: ldBlock2 starts at 4 strips (shrinking for narrow N) and
// bdBlock takes whatever accumulator rows remain.
func (d *Desc) derive(attr *Attr, avail int) (shape, error) {
	var sh shape
	sh.lanes = d.Level.Width() / 4
	sh.isInt8 = d.TypeA.isInt8() && !attr.WithWeiDecomp
	sh.rdStep = rdStepOf(d.TypeA, d.TypeB)
	if attr.WithWeiDecomp {
		// Decompressed weights accumulate in f32 regardless of storage.
		sh.rdStep = 1
	}

	strips := d.N / sh.lanes
	sh.ldbTail = d.N % sh.lanes

	sh.ldBlock2 = d.LDBlock2
	if sh.ldBlock2 == 0 {
		sh.ldBlock2 = min(4, max(1, strips))
	}

	// One broadcast register and ldBlock2 load registers accompany the
	// accumulators; shrink the column tile until at least one accumulator
	// row fits.
	for sh.ldBlock2 > 1 && avail-(sh.ldBlock2+1) < sh.ldBlock2 {
		sh.ldBlock2--
	}

	maxBD := (avail - sh.ldBlock2 - 1) / sh.ldBlock2
	if maxBD < 1 {
		return sh, fmt.Errorf("%w: %d registers available for %d-strip tile",
			ErrRegisterBudget, avail, sh.ldBlock2)
	}

	sh.bdBlock = d.BDBlock
	if sh.bdBlock == 0 {
		sh.bdBlock = min(d.M, maxBD)
		if d.UseTile {
			sh.bdBlock = min(d.M, 16)
		}
	}
	if !d.UseTile && sh.bdBlock > maxBD {
		return sh, fmt.Errorf("%w: bdBlock=%d ldBlock2=%d needs %d accumulators, %d available",
			ErrRegisterBudget, sh.bdBlock, sh.ldBlock2,
			sh.bdBlock*sh.ldBlock2, maxBD*sh.ldBlock2)
	}

	sh.bdb = d.M / sh.bdBlock
	sh.bdbTail = d.M % sh.bdBlock

	sh.ldb2 = strips / sh.ldBlock2
	sh.ldb2Tail = strips % sh.ldBlock2

	sh.rdBlock = d.RDBlock
	if sh.rdBlock == 0 {
		sh.rdBlock = min(d.K, 16*sh.rdStep)
		// Round up to the packing granularity; the tail pass absorbs the
		// difference when K is short.
		sh.rdBlock = (sh.rdBlock + sh.rdStep - 1) / sh.rdStep * sh.rdStep
	}
	if sh.rdBlock%sh.rdStep != 0 {
		return sh, fmt.Errorf("%w: RDBlock %d not a multiple of the %d-element packing granularity",
			ErrInvalidDesc, sh.rdBlock, sh.rdStep)
	}
	sh.rdb = d.K / sh.rdBlock
	sh.rdbTail = d.K % sh.rdBlock

	// The dynamically-quantized body flushes once per reduction block with
	// one group index, so both group sizes must align to the block. The
	// global reduction position advances by K per batch step, so K itself
	// must also align: otherwise later steps' blocks straddle group
	// boundaries.
	if attr.WithSrcDynQuant {
		if attr.WeiGroupK%sh.rdBlock != 0 {
			return sh, fmt.Errorf("%w: WeiGroupK %d not a multiple of RDBlock %d",
				ErrInvalidDesc, attr.WeiGroupK, sh.rdBlock)
		}
		if attr.SrcScaleGroupK%sh.rdBlock != 0 {
			return sh, fmt.Errorf("%w: SrcScaleGroupK %d not a multiple of RDBlock %d",
				ErrInvalidDesc, attr.SrcScaleGroupK, sh.rdBlock)
		}
		if d.K%sh.rdBlock != 0 {
			return sh, fmt.Errorf("%w: K %d not a multiple of RDBlock %d under dynamic quantization",
				ErrInvalidDesc, d.K, sh.rdBlock)
		}
	}

	if d.UseTile {
		if sh.bdBlock > 16 {
			return sh, fmt.Errorf("%w: tile row block %d exceeds 16", ErrInvalidDesc, sh.bdBlock)
		}
		sh.bdBlock2 = d.BDBlock2
		if sh.bdBlock2 == 0 {
			sh.bdBlock2 = min(2, max(1, sh.bdb))
		}
	}

	return sh, nil
}

// ScratchSize returns the per-invocation tile staging footprint in bytes.
// Only the hardware-tile path stages accumulators through memory; vector
// kernels report zero. The kernel pools this storage internally; the figure
// serves memory budgeting in callers that bound per-thread footprint.
func (d *Desc) ScratchSize() int {
	if !d.UseTile {
		return 0
	}
	lanes := d.Level.Width() / 4
	bd := d.BDBlock
	if bd == 0 {
		bd = min(d.M, 16)
	}
	bd2 := d.BDBlock2
	if bd2 == 0 {
		bd2 = 2
	}
	ld2 := d.LDBlock2
	if ld2 == 0 {
		ld2 = 4
	}
	return bd2 * bd * ld2 * lanes * 4
}
