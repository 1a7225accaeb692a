// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package container

// PermutationVariant selects how a Permutation's entries map back to
// origin strings.
type PermutationVariant int

const (
	// Simple permutations are produced by a single-rank sort: every
	// entry's Rank is that one rank.
	Simple PermutationVariant = iota
	// MultiLevel permutations are produced across a subcommunicator
	// grid: one rank-reassignment per level is folded into Rank
	// before the caller sees it.
	MultiLevel
	// NonUnique permutations may repeat a (Rank, StringIndex) pair
	// when duplicate strings were deliberately not collapsed.
	NonUnique
)

// Permutation records, for each position in a global sort order, the
// (rank, local index) pair that produced it, without requiring the
// sorted strings themselves to be materialized anywhere.
type Permutation struct {
	Variant       PermutationVariant
	Ranks         []uint32
	StringIndices []uint32
}

// NewPermutation builds an empty permutation with capacity for n
// entries.
func NewPermutation(variant PermutationVariant, n int) *Permutation {
	return &Permutation{
		Variant:       variant,
		Ranks:         make([]uint32, 0, n),
		StringIndices: make([]uint32, 0, n),
	}
}

// Append records one more (rank, index) pair at the next position.
func (p *Permutation) Append(rank, index uint32) {
	p.Ranks = append(p.Ranks, rank)
	p.StringIndices = append(p.StringIndices, index)
}

// Len returns the number of positions recorded so far.
func (p *Permutation) Len() int { return len(p.Ranks) }
