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
	"context"
	"sort"

	"github.com/sneller-dsss/dsss/comm"
	"github.com/sneller-dsss/dsss/container"
	"github.com/sneller-dsss/dsss/hashing"
)

// PrefixDouble runs the Bloom filter driver (spec.md §4.4): starting
// at probe depth d0, it doubles the depth round by round, at each
// round running the distributed duplicate resolver (§4.3, LocalPass +
// the multi-level DistributedPassMultiLevel) over the current
// candidate set, settling DistinguishingDepth for any candidate that
// round's resolver found unique, and carrying forward only the still-
// ambiguous candidates. lcps must be c's up-to-date LCP array (c is
// assumed sorted). It returns, for every local string, the
// distinguishing depth at which it was confirmed not to share a
// prefix with any other string in the grid's root communicator
// (capped at the string's own length).
func PrefixDouble(ctx context.Context, c *container.StringContainer, lcps []uint32, hasher hashing.Hasher, grid *comm.Grid, d0 int, useGolomb bool) ([]int, error) {
	group := grid.Levels[0]
	n := c.Len()
	depth := make([]int, n)
	for i := range depth {
		depth[i] = -1
	}
	candidates := make([]uint32, n)
	for i := range candidates {
		candidates[i] = uint32(i)
	}

	d := d0
	if d <= 0 {
		d = 1
	}
	prevHash := make([]uint64, n)
	havePrev := make([]bool, n)
	lastDepthUsed := d

	// Every rank must call the same sequence of collectives (spec.md
	// §5), so whether to run another round is itself decided by a
	// collective: a rank whose own candidate set has gone empty keeps
	// participating (with empty contributions) for as long as any
	// other rank in the group still has ambiguous candidates, keeping
	// every rank's probe depth d in lockstep.
	for {
		anyHasWork, err := group.Allreduce(ctx, boolToU64(len(candidates) > 0), comm.LogicalOr)
		if err != nil {
			return nil, err
		}
		if anyHasWork == 0 {
			break
		}
		lastDepthUsed = d

		entries := make([]hashing.HashStringIndex, 0, len(candidates))
		lcpDuplicate := make([]bool, 0, len(candidates))
		carried := candidates[:0:0]

		for ci, idx := range candidates {
			s := c.At(int(idx))
			if len(s) < d {
				depth[idx] = len(s)
				continue
			}
			var h uint64
			if havePrev[idx] {
				h = hasher.HashIncremental(s, d/2, d, prevHash[idx])
			} else {
				h = hasher.Hash(s, d)
			}
			prevHash[idx] = h
			havePrev[idx] = true

			lcpDuplicate = append(lcpDuplicate, ci > 0 && candidates[ci-1] == idx-1 && int(lcps[idx]) >= d)
			carried = append(carried, idx)
			entries = append(entries, hashing.HashStringIndex{Hash: h, LocalIndex: idx})
		}

		// entries is still in string order here, which ApplyLcpLocalRoots
		// requires: it marks the LCP-adjacent duplicate of its
		// predecessor, and the predecessor SendAnyway so the distributed
		// pass still sees one representative of the pair.
		ApplyLcpLocalRoots(entries, lcpDuplicate)

		sort.Sort(hashing.HashStringIndexByHash(entries))
		filtered, localDup := LocalPass(entries)
		remoteDup, err := DistributedPassMultiLevel(ctx, filtered, grid, useGolomb)
		if err != nil {
			return nil, err
		}

		lcpDup := LocalDuplicateIndices(entries, hashing.LcpLocalRoot|hashing.SendAnyway)

		dup := UnionDuplicateIndices(localDup, lcpDup, remoteDup)
		dupSet := make(map[uint32]bool, len(dup))
		for _, v := range dup {
			dupSet[v] = true
		}
		for _, idx := range carried {
			if !dupSet[idx] {
				depth[idx] = d
			}
		}
		candidates = dup
		d *= 2
	}

	out := make([]int, n)
	for i, v := range depth {
		if v < 0 {
			v = lastDepthUsed
		}
		out[i] = v
	}
	return out, nil
}
