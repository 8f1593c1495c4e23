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

// BatchKind selects how one invocation addresses its batch elements.
type BatchKind int

const (
	// BatchAddr: each BatchElement carries its own A/B slices.
	BatchAddr BatchKind = iota

	// BatchOffset: each BatchElement carries byte offsets into Params.A/B.
	BatchOffset

	// BatchStride: element i implicitly starts at i*StrideA / i*StrideB
	// bytes into Params.A/B.
	BatchStride
)

func (k BatchKind) String() string {
	switch k {
	case BatchAddr:
		return "addr"
	case BatchOffset:
		return "offset"
	case BatchStride:
		return "stride"
	default:
		return "unknown"
	}
}

// BatchElement describes one batch step. It is read-only to the kernel and
// must stay valid for the duration of one invocation.
//
// VPadTop / VPadBottom declare virtually padded rows at the top/bottom of
// the A block for this step: those rows are excluded from accumulation
// without changing the physical layout. At most one of the two may be
// non-zero per element.
type BatchElement struct {
	// A and B are the operand slices for BatchAddr mode.
	A []byte
	B []byte

	// OffA and OffB are byte offsets into Params.A/B for BatchOffset mode.
	OffA int64
	OffB int64

	VPadTop    int
	VPadBottom int
}

// Params is the per-invocation parameter block. It must be consistent with
// the descriptor the kernel was built from; the call path performs no
// validation. There is no runtime error channel; invalid slices are caller
// bugs and surface as bounds panics at best.
type Params struct {
	// A and B are the operand base buffers for BatchOffset/BatchStride
	// modes. Unused in BatchAddr mode.
	A []byte
	B []byte

	// Batch lists the batch elements for BatchAddr/BatchOffset modes.
	// In BatchStride mode it may be nil; BS gives the step count.
	Batch []BatchElement

	// BS is the batch step count for BatchStride mode. Ignored when Batch
	// is non-nil.
	BS int

	// C is the accumulation buffer (read under beta != 0, written only by
	// the no-post-ops store). D is the final destination.
	C []byte
	D []byte

	// Bias has N elements of Desc.TypeBias. Nil when the kernel was built
	// without bias.
	Bias []byte

	// BinaryArgs holds one operand buffer per binary post-op, in chain
	// order: 1 element broadcasts per-tensor, N elements select per
	// column. Nil when the chain has no binary ops.
	BinaryArgs [][]float32

	// WeiScales holds the weight scales: 1 element per-tensor, or N
	// elements per-channel.
	WeiScales []float32

	// DstScales holds the single destination scale.
	DstScales []float32

	// WeiDecompScales and WeiDecompZP hold grouped weight-decompression
	// scales and zero-points, indexed [kGroup*N + n]; kGroup counts global
	// reduction position across batch steps in units of Attr.WeiGroupK.
	WeiDecompScales []float32
	WeiDecompZP     []float32

	// SrcScales holds dynamic-quantization source scales, one per
	// Attr.SrcScaleGroupK reduction elements (global across batch steps).
	SrcScales []float32

	// Compensation is the precomputed s8s8 compensation, N int32 values:
	// -128 * sum_k B[k][n] over the full reduction.
	Compensation []int32

	// ZPCompA is the precomputed zero-point compensation for A, N values
	// of -sum_k B[k][n]; the kernel multiplies by ZPAVal at run time.
	// ZPCompB is the per-row compensation for B's zero point, M values.
	// ZPCValues is the output zero point: 1 value per-tensor or N
	// per-channel.
	ZPCompA   []int32
	ZPCompB   []int32
	ZPCValues []int32

	// LDC and LDD override the descriptor leading dimensions (in elements)
	// when the kernel was built with RuntimeLDC/RuntimeLDD.
	LDC int
	LDD int

	// Control flags. ApplyPostOps gates the injected post-op chain and all
	// destination-domain epilogue steps; ApplyComp gates the precomputed
	// compensation reads; SkipAccum zero-fills accumulators and runs only
	// the epilogue.
	ApplyPostOps bool
	ApplyComp    bool
	SkipAccum    bool

	// ZPAVal is the scalar zero point of operand A, used by just-in-time
	// compensation.
	ZPAVal int32
}

// batchLen returns the number of batch steps for this invocation.
func (p *Params) batchLen() int {
	if p.Batch != nil {
		return len(p.Batch)
	}
	return p.BS
}
