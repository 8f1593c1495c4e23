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

package simd

// Tile is a 2D matrix register modeled on hardware matrix tiles: a rows×cols
// sub-matrix loaded and stored through dedicated operations, distinct from
// ordinary vectors. The brgemm tile path keeps accumulators and staged
// operand panels in Tiles and moves partial sums to vectors only at the
// store epilogue.
type Tile[T Lanes] struct {
	data []T
	rows int
	cols int
}

// NewTile creates a zeroed rows×cols tile.
func NewTile[T Lanes](rows, cols int) Tile[T] {
	return Tile[T]{data: make([]T, rows*cols), rows: rows, cols: cols}
}

// Rows returns the tile row count.
func (t *Tile[T]) Rows() int { return t.rows }

// Cols returns the tile column count.
func (t *Tile[T]) Cols() int { return t.cols }

// Zero clears every element of the tile.
func (t *Tile[T]) Zero() {
	var zero T
	for i := range t.data {
		t.data[i] = zero
	}
}

// Row returns the storage for row i. Writing through it is how operand
// panels are staged before a tile multiply.
func (t *Tile[T]) Row(i int) []T {
	return t.data[i*t.cols : (i+1)*t.cols]
}

// MatMulAddF32 accumulates acc += a × b where a is M×K, b is K×N and acc is
// M×N. This is the float tile multiply; operands are staged in float32 by
// the caller (bf16/f16 sources are widened during staging, matching the
// hardware's internal widening).
func MatMulAddF32(acc, a, b *Tile[float32]) {
	for i, i_n := 0, acc.rows; i < i_n; i++ {
		arow := a.Row(i)
		crow := acc.Row(i)
		for k, k_n := 0, a.cols; k < k_n; k++ {
			av := arow[k]
			brow := b.Row(k)
			for j, j_n := 0, acc.cols; j < j_n; j++ {
				crow[j] += av * brow[j]
			}
		}
	}
}

// MatMulAddI32 accumulates acc += a × b in exact 32-bit integer arithmetic.
// Operands hold widened int8 values; accumulation is exact modulo 32-bit
// overflow, matching the hardware int8 tile dot product.
func MatMulAddI32(acc, a, b *Tile[int32]) {
	for i, i_n := 0, acc.rows; i < i_n; i++ {
		arow := a.Row(i)
		crow := acc.Row(i)
		for k, k_n := 0, a.cols; k < k_n; k++ {
			av := arow[k]
			brow := b.Row(k)
			for j, j_n := 0, acc.cols; j < j_n; j++ {
				crow[j] += av * brow[j]
			}
		}
	}
}
