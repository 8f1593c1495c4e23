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

// brgplan builds a kernel for a shape given on the command line and prints
// the resulting plan: chosen tiling, register roles and the unrolled job
// list. It never executes the kernel, so it is safe to run for tiers the
// host does not support.
//
// Usage:
//
//	brgplan -m 64 -n 48 -k 256 -ta s8 -tb s8 -tc s32 -td u8 -isa avx512_vnni
package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jhansom/oneDNN/brgemm"
	"github.com/jhansom/oneDNN/simd"
)

var (
	flagM = flag.Int("m", 16, "output rows")
	flagN = flag.Int("n", 16, "output columns")
	flagK = flag.Int("k", 64, "reduction length per batch step")

	flagLDA = flag.Int("lda", 0, "A leading dimension in elements (0 = k)")
	flagLDB = flag.Int("ldb", 0, "B leading dimension in elements (0 = n)")
	flagLDC = flag.Int("ldc", 0, "C leading dimension in elements (0 = n)")
	flagLDD = flag.Int("ldd", 0, "D leading dimension in elements (0 = n)")

	flagTA    = flag.String("ta", "f32", "A element type")
	flagTB    = flag.String("tb", "f32", "B element type")
	flagTC    = flag.String("tc", "f32", "C element type")
	flagTD    = flag.String("td", "f32", "D element type")
	flagTBias = flag.String("tbias", "none", "bias element type")

	flagISA   = flag.String("isa", "", "instruction-set tier (empty = detect)")
	flagTile  = flag.Bool("tile", false, "use the hardware matrix-tile path")
	flagBatch = flag.String("batch", "addr", "batch addressing: addr, offset, stride")
	flagBS    = flag.Int("bs", 1, "maximum batch step count")

	flagAlpha = flag.Float64("alpha", 1, "accumulation scale")
	flagBeta  = flag.Float64("beta", 0, "C blend factor")

	flagBD  = flag.Int("bd", 0, "row block override (0 = auto)")
	flagLD2 = flag.Int("ld2", 0, "column strip multiplicity override (0 = auto)")
	flagRD  = flag.Int("rd", 0, "reduction block override (0 = auto)")
)

func parseType(name, val string) brgemm.DataType {
	dt, ok := brgemm.ParseDataType(val)
	if !ok {
		fmt.Fprintf(os.Stderr, "brgplan: unknown %s type %q\n", name, val)
		os.Exit(2)
	}
	return dt
}

func main() {
	flag.Parse()

	defLD := func(v int) int {
		if v == 0 {
			return *flagN
		}
		return v
	}

	desc := &brgemm.Desc{
		TypeA:    parseType("a", *flagTA),
		TypeB:    parseType("b", *flagTB),
		TypeC:    parseType("c", *flagTC),
		TypeD:    parseType("d", *flagTD),
		TypeBias: parseType("bias", *flagTBias),
		M:        *flagM, N: *flagN, K: *flagK,
		LDA:     *flagLDA,
		LDB:     defLD(*flagLDB),
		LDC:     defLD(*flagLDC),
		LDD:     defLD(*flagLDD),
		Alpha:   float32(*flagAlpha),
		Beta:    float32(*flagBeta),
		UseTile: *flagTile,
		MaxBS:   *flagBS,
		BDBlock: *flagBD, LDBlock2: *flagLD2, RDBlock: *flagRD,
	}
	if desc.LDA == 0 {
		desc.LDA = *flagK
	}

	switch *flagBatch {
	case "addr":
		desc.Batch = brgemm.BatchAddr
	case "offset":
		desc.Batch = brgemm.BatchOffset
	case "stride":
		desc.Batch = brgemm.BatchStride
		desc.StrideA = int64(*flagK * desc.TypeA.Size())
		desc.StrideB = int64(*flagK * desc.LDB * desc.TypeB.Size())
	default:
		fmt.Fprintf(os.Stderr, "brgplan: unknown batch mode %q\n", *flagBatch)
		os.Exit(2)
	}

	if *flagISA != "" {
		level, ok := simd.ParseLevel(*flagISA)
		if !ok {
			fmt.Fprintf(os.Stderr, "brgplan: unknown isa %q\n", *flagISA)
			os.Exit(2)
		}
		desc.Level = level
	}

	kern, err := brgemm.New(desc, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "brgplan:", err)
		os.Exit(1)
	}
	defer kern.Release()

	title := cases.Title(language.English)
	fmt.Printf("%s %dx%dx%d\n\n", title.String("kernel plan for"), *flagM, *flagN, *flagK)
	fmt.Print(kern.DumpPlan())
}
