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

package dedup

import (
	"sort"

	"github.com/sneller-dsss/dsss/hashing"
)

// LocalPass marks runs of equal hash within entries, which must
// already be sorted by Hash. The first entry of a run of length > 1
// keeps LocalDuplicate|SendAnyway; the rest get plain LocalDuplicate.
// It returns the filtered list to ship to the distributed pass
// (every entry with !LocalDuplicate || SendAnyway) and the sorted set
// of local indices already known to be duplicates from this pass
// alone.
func LocalPass(entries []hashing.HashStringIndex) (filtered []hashing.HashStringIndex, localDuplicates []uint32) {
	for i := 0; i < len(entries); {
		j := i + 1
		for j < len(entries) && entries[j].Hash == entries[i].Hash {
			j++
		}
		if j-i > 1 {
			entries[i].Flags |= hashing.LocalDuplicate | hashing.SendAnyway
			for k := i + 1; k < j; k++ {
				entries[k].Flags |= hashing.LocalDuplicate
				localDuplicates = append(localDuplicates, entries[k].LocalIndex)
			}
		}
		i = j
	}
	for _, e := range entries {
		if e.Flags&hashing.LocalDuplicate == 0 || e.Flags&hashing.SendAnyway != 0 {
			filtered = append(filtered, e)
		}
	}
	sort.Slice(localDuplicates, func(i, j int) bool { return localDuplicates[i] < localDuplicates[j] })
	return filtered, localDuplicates
}

// ApplyLcpLocalRoots marks entries[i] as LcpLocalRoot for every i the
// upstream hash generator found to be LCP-duplicated with its
// immediate predecessor (lcpDuplicate[i] true), and additionally
// marks the predecessor entries[i-1] SendAnyway so the distributed
// pass still receives a representative of the pair. entries must be
// in the same order the hash generator produced lcpDuplicate in
// (string order, not hash order) — call this before sorting by hash.
func ApplyLcpLocalRoots(entries []hashing.HashStringIndex, lcpDuplicate []bool) {
	for i, dup := range lcpDuplicate {
		if !dup || i == 0 {
			continue
		}
		entries[i].Flags |= hashing.LcpLocalRoot
		entries[i-1].Flags |= hashing.SendAnyway
	}
}

// LocalDuplicateIndices returns the sorted local indices of entries
// carrying any of the flag bits in want. Useful once the caller has
// the final flags settled (after LocalPass and ApplyLcpLocalRoots) and
// wants one of the local input streams of the three-way output merge.
func LocalDuplicateIndices(entries []hashing.HashStringIndex, want hashing.Flags) []uint32 {
	var out []uint32
	for _, e := range entries {
		if e.Flags&want != 0 {
			out = append(out, e.LocalIndex)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
