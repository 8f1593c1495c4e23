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

// Package postops implements the post-op injector consumed by the brgemm
// store epilogue. An Injector is constructed once per kernel build from an
// ordered op chain and rewrites a contiguous range of accumulator registers
// in place. Broadcast operands for binary ops and the destination re-read
// for the sum op are resolved through caller-provided callbacks, so the
// injector itself never touches kernel addressing state.
package postops

import (
	"errors"
	"fmt"
)

// Kind discriminates the op categories of a chain entry.
type Kind int

const (
	// Eltwise is a unary elementwise transform.
	Eltwise Kind = iota

	// Binary combines the accumulator with a broadcast operand.
	Binary

	// Sum re-reads the current destination value, optionally subtracts a
	// zero-point and applies a scale, then adds it into the accumulator.
	Sum
)

// EltwiseAlg enumerates the supported elementwise transforms.
type EltwiseAlg int

const (
	// ReLU computes max(x, 0), or x*Alpha for negative x when Alpha != 0.
	ReLU EltwiseAlg = iota

	// Linear computes Alpha*x + Beta.
	Linear

	// Clip clamps x to [Alpha, Beta].
	Clip
)

// BinaryAlg enumerates the supported binary transforms.
type BinaryAlg int

const (
	BinAdd BinaryAlg = iota
	BinSub
	BinMul
	BinMax
	BinMin
)

// Op is one entry of a post-op chain. Exactly the fields for its Kind are
// meaningful.
type Op struct {
	Kind Kind

	// Eltwise parameters.
	Alg   EltwiseAlg
	Alpha float32
	Beta  float32

	// Binary parameters. The operand itself is resolved at apply time
	// through the AddrFn callback.
	BinAlg BinaryAlg

	// Sum parameters.
	SumScale float32
	SumZP    int32
}

// AddrFn resolves the broadcast operand lanes for binary op opIdx and
// accumulator register reg. The returned slice is read-only and must be at
// least as long as the accumulator slice being rewritten.
type AddrFn func(opIdx, reg int) []float32

// SumFn returns the current destination values for accumulator register reg,
// already converted to float32. Only called when the chain contains a Sum op.
type SumFn func(reg int) []float32

// ErrUnsupported is returned by New for an op the injector cannot compile.
var ErrUnsupported = errors.New("postops: unsupported post-op")

type applyFn func(acc [][]float32, addr AddrFn, sum SumFn)

// Injector applies a compiled post-op chain to accumulator registers.
// It is immutable after New and safe for concurrent use.
type Injector struct {
	prog    []applyFn
	hasSum  bool
	numOps  int
	numBins int
}

// New compiles the op chain. It fails, and the enclosing kernel build must
// fail with it, when any entry names an unsupported transform.
func New(ops []Op) (*Injector, error) {
	in := &Injector{numOps: len(ops)}
	for i, op := range ops {
		switch op.Kind {
		case Eltwise:
			fn, err := compileEltwise(op)
			if err != nil {
				return nil, err
			}
			in.prog = append(in.prog, fn)
		case Binary:
			fn, err := compileBinary(op, in.numBins)
			if err != nil {
				return nil, err
			}
			in.numBins++
			in.prog = append(in.prog, fn)
		case Sum:
			if in.hasSum {
				return nil, fmt.Errorf("%w: second sum op at index %d", ErrUnsupported, i)
			}
			in.hasSum = true
			in.prog = append(in.prog, compileSum(op))
		default:
			return nil, fmt.Errorf("%w: kind %d at index %d", ErrUnsupported, op.Kind, i)
		}
	}
	return in, nil
}

// HasSum reports whether the chain contains a sum op. Kernels use it to
// decide whether a destination re-read callback is needed.
func (in *Injector) HasSum() bool { return in.hasSum }

// NumBinary reports the number of binary ops in the chain, in chain order.
// Binary operand buffers are indexed by this position.
func (in *Injector) NumBinary() int { return in.numBins }

// Len reports the chain length.
func (in *Injector) Len() int { return in.numOps }

// Apply rewrites the accumulator registers in place, running the chain in
// order. acc[reg] holds the valid lanes of one accumulator register (tails
// already truncated by the caller). addr may be nil when the chain has no
// binary ops; sum may be nil when HasSum() is false.
func (in *Injector) Apply(acc [][]float32, addr AddrFn, sum SumFn) {
	for _, fn := range in.prog {
		fn(acc, addr, sum)
	}
}

func compileEltwise(op Op) (applyFn, error) {
	switch op.Alg {
	case ReLU:
		slope := op.Alpha
		return func(acc [][]float32, _ AddrFn, _ SumFn) {
			for _, lanes := range acc {
				for i, x := range lanes {
					if x < 0 {
						lanes[i] = x * slope
					}
				}
			}
		}, nil
	case Linear:
		a, b := op.Alpha, op.Beta
		return func(acc [][]float32, _ AddrFn, _ SumFn) {
			for _, lanes := range acc {
				for i, x := range lanes {
					lanes[i] = a*x + b
				}
			}
		}, nil
	case Clip:
		lo, hi := op.Alpha, op.Beta
		return func(acc [][]float32, _ AddrFn, _ SumFn) {
			for _, lanes := range acc {
				for i, x := range lanes {
					lanes[i] = min(max(x, lo), hi)
				}
			}
		}, nil
	default:
		return nil, fmt.Errorf("%w: eltwise alg %d", ErrUnsupported, op.Alg)
	}
}

func compileBinary(op Op, idx int) (applyFn, error) {
	var elem func(x, y float32) float32
	switch op.BinAlg {
	case BinAdd:
		elem = func(x, y float32) float32 { return x + y }
	case BinSub:
		elem = func(x, y float32) float32 { return x - y }
	case BinMul:
		elem = func(x, y float32) float32 { return x * y }
	case BinMax:
		elem = func(x, y float32) float32 { return max(x, y) }
	case BinMin:
		elem = func(x, y float32) float32 { return min(x, y) }
	default:
		return nil, fmt.Errorf("%w: binary alg %d", ErrUnsupported, op.BinAlg)
	}
	return func(acc [][]float32, addr AddrFn, _ SumFn) {
		for reg, lanes := range acc {
			operand := addr(idx, reg)
			for i, x := range lanes {
				lanes[i] = elem(x, operand[i])
			}
		}
	}, nil
}

func compileSum(op Op) applyFn {
	scale := op.SumScale
	zp := float32(op.SumZP)
	return func(acc [][]float32, _ AddrFn, sum SumFn) {
		for reg, lanes := range acc {
			prev := sum(reg)
			for i, x := range lanes {
				lanes[i] = x + (prev[i]-zp)*scale
			}
		}
	}
}
