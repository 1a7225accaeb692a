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

package hashing

// Flags on a HashStringIndex entry, set by the local duplicate pass
// and consumed by the distributed pass.
type Flags uint8

const (
	// LocalDuplicate marks an entry whose hash collides with another
	// local entry's hash.
	LocalDuplicate Flags = 1 << iota
	// SendAnyway marks an entry that must still be shipped to the
	// distributed pass even though it is a LocalDuplicate: either it
	// is the first of a local run (so the receiver can still see one
	// representative) or it is the LCP-duplicate predecessor of a
	// string the upstream hash generator already decided to send.
	SendAnyway
	// LcpLocalRoot marks an entry the hash generator found to be
	// LCP-duplicated with its immediate predecessor, with that
	// predecessor already emitted.
	LcpLocalRoot
)

// HashStringIndex pairs a prefix hash with the local string it came
// from, plus the duplicate-detection bookkeeping flags.
type HashStringIndex struct {
	Hash       uint64
	LocalIndex uint32
	Flags      Flags
}

// HashStringIndexByHash sorts a []HashStringIndex by Hash.
type HashStringIndexByHash []HashStringIndex

func (s HashStringIndexByHash) Len() int           { return len(s) }
func (s HashStringIndexByHash) Less(i, j int) bool { return s[i].Hash < s[j].Hash }
func (s HashStringIndexByHash) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// HashPEIndex attaches the originating PE to a hash, produced when a
// receiver merges the sorted runs it received from every sender.
type HashPEIndex struct {
	Hash uint64
	PE   uint32
	// RunningIndex is the sender's own local index for this hash,
	// shipped alongside it; it is what gets reported back, unchanged,
	// to the origin PE as "mark local index RunningIndex as a
	// duplicate".
	RunningIndex uint32
}

// HashPEIndexByHash sorts a []HashPEIndex by Hash, breaking ties by
// PE so the merge in the distributed duplicate pass is deterministic.
type HashPEIndexByHash []HashPEIndex

func (s HashPEIndexByHash) Len() int { return len(s) }
func (s HashPEIndexByHash) Less(i, j int) bool {
	if s[i].Hash != s[j].Hash {
		return s[i].Hash < s[j].Hash
	}
	return s[i].PE < s[j].PE
}
func (s HashPEIndexByHash) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

// RecvData is the receive side of one filter round: the hashes
// received from every rank, concatenated, plus the per-sender counts
// and global offsets needed to map a position in Hashes back to
// (sender PE, index within that sender's send buffer).
type RecvData struct {
	Hashes             []uint64
	PerPECounts        []int
	PerPEGlobalOffsets []int
}

// PEOf returns the sender PE that contributed RecvData.Hashes[pos].
func (r *RecvData) PEOf(pos int) uint32 {
	for pe := len(r.PerPECounts) - 1; pe >= 0; pe-- {
		if pos >= r.PerPEGlobalOffsets[pe] {
			return uint32(pe)
		}
	}
	return 0
}
