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

import "github.com/sneller-dsss/dsss/merge"

// UnionDuplicateIndices three-way merges the local-hash-duplicate,
// local-LCP-duplicate, and remote-duplicate index streams (spec.md
// §4.3's "output merge") into the sorted, deduplicated set of local
// string indices whose prefix at the current depth is known to be
// non-distinguishing. Each input must already be sorted ascending;
// remoteDup is expected to already have had any index present in
// localHashDup dropped (those were reported via SendAnyway and are
// already accounted for).
func UnionDuplicateIndices(localHashDup, localLcpDup, remoteDup []uint32) []uint32 {
	merged := merge.Merge([][]uint32{localHashDup, localLcpDup, remoteDup}, func(a, b uint32) bool { return a < b })
	out := make([]uint32, 0, len(merged))
	for i, v := range merged {
		if i == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
