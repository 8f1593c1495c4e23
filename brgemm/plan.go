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

import "fmt"

// Execution phases of the generated kernel body. A physical register may
// serve different roles as long as the roles' phases never overlap.
const (
	phaseMicro    uint8 = 1 << iota // inner accumulate loop
	phaseEpilogue                   // store path after the loop nest
)

// regRole names one use of a physical vector register in one phase set.
type regRole struct {
	name   string
	phys   int
	phases uint8
}

// plan is the build-time register assignment. Physical indices are logical
// slots into the invocation's register file; the accumulator block sits at
// the top of the file and feature reservations at the bottom, so widening
// one never silently collides with the other.
type plan struct {
	nregs int
	roles []regRole

	// Loop-body registers.
	bcst int
	load []int   // one per column strip in the tile
	acc  [][]int // [row][strip]

	// Feature reservations; -1 when the feature is off.
	ones      int // all-ones words for the int8 widening dot
	int8Tmp   int // vpmaddubsw-style intermediate
	shift     int // +128 byte shift for s8s8 emulation
	compAcc   int // running column-sum for just-in-time compensation
	zpABcast  int // broadcast zero point of A
	decompZP  int // weight-decompression zero-point row
	decompScl int // weight-decompression scale row
	dynScale  int // dynamic-quantization combined scale
	emuTmp    int // narrow-float widening temporaries (pair base)
	tailMask  int // masked tail strip
}

// planReservations counts the feature registers a descriptor needs beyond
// the broadcast/load/accumulator set.
func planReservations(d *Desc, attr *Attr) int {
	n := 0
	isInt8 := d.TypeA.isInt8() && !attr.WithWeiDecomp
	if isInt8 && !d.Level.HasInt8Dot() {
		n += 2 // ones + widening intermediate
	}
	if attr.ReqS8S8Comp {
		n++ // shift
	}
	if attr.ReqS8S8Comp || attr.ZPTypeA != BcastNone {
		n += 2 // compAcc + zpABcast
	}
	if attr.WithWeiDecomp {
		n += 2 // zero-point row + scale row
	}
	if attr.WithSrcDynQuant {
		n++ // combined scale
	}
	if d.TypeA.isXF16() && !d.Level.HasMasks() {
		n += 2 // widening pair on tiers without native narrow-float dot
	}
	if !d.Level.HasMasks() {
		n++ // tail mask emulated through a blend register
	}
	return n
}

// newPlan lays out the register file for an already-derived shape. The
// derivation guarantees the accumulator block fits; newPlan asserts the
// full layout is collision-free.
func newPlan(d *Desc, attr *Attr, sh shape) (*plan, error) {
	p := &plan{
		nregs:    d.Level.VecRegs(),
		ones:     -1,
		int8Tmp:  -1,
		shift:    -1,
		compAcc:  -1,
		zpABcast: -1,
		decompZP: -1, decompScl: -1,
		dynScale: -1,
		emuTmp:   -1,
		tailMask: -1,
	}

	next := 0
	take := func(name string, phases uint8) int {
		idx := next
		next++
		p.roles = append(p.roles, regRole{name: name, phys: idx, phases: phases})
		return idx
	}

	p.bcst = take("bcst", phaseMicro)
	p.load = make([]int, sh.ldBlock2)
	for i := range p.load {
		p.load[i] = take(fmt.Sprintf("load%d", i), phaseMicro)
	}

	isInt8 := d.TypeA.isInt8() && !attr.WithWeiDecomp
	if isInt8 && !d.Level.HasInt8Dot() {
		p.ones = take("ones", phaseMicro)
		p.int8Tmp = take("int8_tmp", phaseMicro)
	}
	if attr.ReqS8S8Comp {
		p.shift = take("shift", phaseMicro)
	}
	if attr.ReqS8S8Comp || attr.ZPTypeA != BcastNone {
		p.compAcc = take("comp_acc", phaseMicro|phaseEpilogue)
		p.zpABcast = take("zp_a_bcast", phaseMicro|phaseEpilogue)
	}
	if attr.WithWeiDecomp {
		p.decompZP = take("decomp_zp", phaseMicro)
		p.decompScl = take("decomp_scale", phaseMicro)
	}
	if attr.WithSrcDynQuant {
		p.dynScale = take("dyn_scale", phaseMicro)
	}
	if d.TypeA.isXF16() && !d.Level.HasMasks() {
		p.emuTmp = take("xf16_emu", phaseMicro)
		take("xf16_emu_hi", phaseMicro)
	}
	if !d.Level.HasMasks() {
		p.tailMask = take("tail_mask", phaseMicro|phaseEpilogue)
	}

	// The epilogue reuses the broadcast and load slots for scale, bias and
	// post-op operands once the loop nest has retired.
	p.roles = append(p.roles,
		regRole{name: "epi_scale", phys: p.bcst, phases: phaseEpilogue},
	)
	if len(p.load) > 0 {
		p.roles = append(p.roles, regRole{name: "epi_bias", phys: p.load[0], phases: phaseEpilogue})
	}
	if len(p.load) > 1 {
		p.roles = append(p.roles, regRole{name: "epi_zp_c", phys: p.load[1], phases: phaseEpilogue})
	}

	// Accumulators grow down from the top of the file, mirroring the loop
	// body's addressing: row-major, strip-minor. The tile path keeps its
	// accumulators in tile registers instead and allocates none here.
	if !d.UseTile {
		p.acc = make([][]int, sh.bdBlock)
		accBase := p.nregs - sh.bdBlock*sh.ldBlock2
		if accBase < next {
			return nil, fmt.Errorf("%w: %d feature registers plus %d accumulators exceed %d",
				ErrRegisterBudget, next, sh.bdBlock*sh.ldBlock2, p.nregs)
		}
		for bd := range p.acc {
			p.acc[bd] = make([]int, sh.ldBlock2)
			for ld := range p.acc[bd] {
				idx := accBase + bd*sh.ldBlock2 + ld
				p.acc[bd][ld] = idx
				p.roles = append(p.roles, regRole{
					name:   fmt.Sprintf("acc%d_%d", bd, ld),
					phys:   idx,
					phases: phaseMicro | phaseEpilogue,
				})
			}
		}
	}

	if err := p.verify(); err != nil {
		return nil, err
	}
	return p, nil
}

// verify asserts that no two roles sharing a physical slot are live in the
// same phase. A failure is a planner bug and permanently rejects the build.
func (p *plan) verify() error {
	byPhys := make(map[int][]regRole)
	for _, r := range p.roles {
		if r.phys < 0 || r.phys >= p.nregs {
			return fmt.Errorf("%w: role %s assigned slot %d of %d", ErrAliasing, r.name, r.phys, p.nregs)
		}
		for _, prev := range byPhys[r.phys] {
			if prev.phases&r.phases != 0 {
				return fmt.Errorf("%w: roles %s and %s co-live in slot %d",
					ErrAliasing, prev.name, r.name, r.phys)
			}
		}
		byPhys[r.phys] = append(byPhys[r.phys], r)
	}
	return nil
}
