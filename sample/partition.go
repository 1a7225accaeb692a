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

package sample

import (
	"context"
	"encoding/binary"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/sneller-dsss/dsss/comm"
	"github.com/sneller-dsss/dsss/container"
)

func encodeCandidates(cands []Candidate) []byte {
	var buf []byte
	var hdr [12]byte
	for _, c := range cands {
		binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(c.Value)))
		binary.LittleEndian.PutUint64(hdr[4:12], c.Index)
		buf = append(buf, hdr[:]...)
		buf = append(buf, c.Value...)
	}
	return buf
}

func decodeCandidates(buf []byte) ([]Candidate, error) {
	var out []Candidate
	for off := 0; off < len(buf); {
		if off+12 > len(buf) {
			return nil, errors.AssertionFailedf("sample: truncated candidate header at offset %d", off)
		}
		n := int(binary.LittleEndian.Uint32(buf[off : off+4]))
		idx := binary.LittleEndian.Uint64(buf[off+4 : off+12])
		off += 12
		if off+n > len(buf) {
			return nil, errors.AssertionFailedf("sample: truncated candidate value at offset %d", off)
		}
		out = append(out, Candidate{Value: buf[off : off+n], Index: idx})
		off += n
	}
	return out, nil
}

// SampleAndSort draws candidates from c under policy with sampling
// rate k, gathers every rank's candidates across comm, and returns
// the P-1 evenly spaced splitters shared identically by every rank
// in the group.
//
// The splitter array itself is sorted with a single local sort of the
// fully gathered sample rather than a distributed quicksort over the
// sample: both produce the same globally sorted sample and the same
// resulting splitters. The sample size is not bounded by the group
// size: Draw takes every k-th string (or byte boundary), so each rank
// contributes about c.Len()/k candidates, and every rank receives and
// sorts the whole gathered sample.
func SampleAndSort(ctx context.Context, c *container.StringContainer, group comm.Communicator, policy Policy, k int, globalOffset uint64) ([][]byte, error) {
	local := Draw(c, policy, k, globalOffset)
	recv, _, err := group.Allgatherv(ctx, encodeCandidates(local))
	if err != nil {
		return nil, errors.Wrapf(err, "sample: gathering splitter candidates")
	}
	all, err := decodeCandidates(recv)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return Less(all[i], all[j]) })

	p := group.Size()
	if p <= 1 || len(all) == 0 {
		return nil, nil
	}
	splitters := make([][]byte, 0, p-1)
	for i := 1; i < p; i++ {
		pos := i * len(all) / p
		if pos >= len(all) {
			pos = len(all) - 1
		}
		splitters = append(splitters, all[pos].Value)
	}
	return splitters, nil
}

// Partition maps every local string in c to a destination rank by
// binary search against splitters (P-1 splitter values dividing the
// key space into P buckets) and returns send_counts, whose sum
// equals c.Len().
func Partition(c *container.StringContainer, splitters [][]byte) []int {
	p := len(splitters) + 1
	counts := make([]int, p)
	for i := 0; i < c.Len(); i++ {
		counts[destinationOf(c.At(i), splitters)]++
	}
	return counts
}

// destinationOf returns the index of the first splitter greater than
// or equal to s, i.e. the bucket s belongs to under the convention
// that splitters[j] is the inclusive upper bound of bucket j.
func destinationOf(s []byte, splitters [][]byte) int {
	lo, hi := 0, len(splitters)
	for lo < hi {
		mid := (lo + hi) / 2
		if bytesLessOrEqual(s, splitters[mid]) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func bytesLessOrEqual(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) <= len(b)
}
