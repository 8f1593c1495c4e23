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
	"strings"
)

// DumpPlan renders the build outcome in a stable text form: tier and types,
// the derived tiling, the register role table and the unrolled job list.
// The output is meant for humans and golden tests, not for parsing.
func (k *Kernel) DumpPlan() string {
	var b strings.Builder
	d, sh := &k.desc, &k.sh

	path := "vector"
	if d.UseTile {
		path = "tile"
	}
	fmt.Fprintf(&b, "isa: %s\n", d.Level)
	fmt.Fprintf(&b, "path: %s\n", path)
	fmt.Fprintf(&b, "types: A=%s B=%s C=%s D=%s bias=%s\n",
		d.TypeA, d.TypeB, d.TypeC, d.TypeD, d.TypeBias)
	fmt.Fprintf(&b, "dims: M=%d N=%d K=%d batch=%s\n", d.M, d.N, d.K, d.Batch)
	fmt.Fprintf(&b, "tiling: lanes=%d bd=%dx%d+%d ld2=%dx%d+%d ldTail=%d rd=%dx%d+%d rdStep=%d\n",
		sh.lanes,
		sh.bdBlock, sh.bdb, sh.bdbTail,
		sh.ldBlock2, sh.ldb2, sh.ldb2Tail, sh.ldbTail,
		sh.rdBlock, sh.rdb, sh.rdbTail, sh.rdStep)

	fmt.Fprintf(&b, "regs: %d\n", k.pl.nregs)
	for _, r := range k.pl.roles {
		fmt.Fprintf(&b, "  v%-2d %-12s %s\n", r.phys, r.name, phaseString(r.phases))
	}

	fmt.Fprintf(&b, "jobs: %d\n", len(k.jobs))
	for i := range k.jobs {
		j := &k.jobs[i]
		fmt.Fprintf(&b, "  job %d: rows [%d,%d) cols [%d,%d) strips=%d lastLanes=%d\n",
			i, j.bdOff, j.bdOff+j.bdLen,
			j.ldOff, j.ldOff+(j.strips-1)*sh.lanes+j.lastLanes,
			j.strips, j.lastLanes)
	}
	return b.String()
}

func phaseString(phases uint8) string {
	var parts []string
	if phases&phaseMicro != 0 {
		parts = append(parts, "micro")
	}
	if phases&phaseEpilogue != 0 {
		parts = append(parts, "epilogue")
	}
	return "[" + strings.Join(parts, ",") + "]"
}
