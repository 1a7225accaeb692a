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

package sorter

import (
	"bytes"
	"context"
	"encoding/binary"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/sneller-dsss/dsss/comm"
	"github.com/sneller-dsss/dsss/container"
	"github.com/sneller-dsss/dsss/merge"
	"github.com/sneller-dsss/dsss/sample"
)

const defaultQuantileBudget = 100 << 20 // 100 MiB, spec.md §4.7's default

type originEntry struct {
	value []byte
	pe    uint32
	index uint32
}

// SpaceEfficientSort is the space-efficient variant of the multi-
// level merge sort driver: it streams the root communicator's input
// in quantiles bounded by budgetBytes (0 selects the spec's 100 MiB
// default), running one single-level sample/partition/exchange/merge
// round per quantile, and emits only the resulting global rank
// permutation rather than materializing the sorted strings.
//
// Quantiles are processed independently to bound peak memory; the
// permutation is globally correct only if every rank feeds its
// quantiles to SpaceEfficientSort in the same, already range-
// compatible order (e.g. output from a prior coarse partitioning
// pass). This mirrors how a streaming quantile pass is normally
// staged in front of a full sort rather than used as a complete
// substitute for one.
func SpaceEfficientSort(ctx context.Context, c *container.StringContainer, group comm.Communicator, policy sample.Policy, sampleRate int, budgetBytes int) (*container.Permutation, error) {
	if budgetBytes <= 0 {
		budgetBytes = defaultQuantileBudget
	}
	if sampleRate <= 0 {
		sampleRate = 1
	}
	perm := container.NewPermutation(container.Simple, c.Len())
	rank := uint32(group.Rank())

	// Every rank in group must call the same sequence of collectives
	// (spec.md §5), so a rank that has exhausted its own input keeps
	// participating in empty rounds for as long as any other rank
	// still has quantiles left to stream.
	lo := 0
	for {
		localHasWork := uint64(0)
		if lo < c.Len() {
			localHasWork = 1
		}
		anyHasWork, err := group.Allreduce(ctx, localHasWork, comm.LogicalOr)
		if err != nil {
			return nil, errors.Wrapf(err, "sorter: checking for remaining quantiles")
		}
		if anyHasWork == 0 {
			break
		}
		hi := lo
		size := 0
		for hi < c.Len() && (hi == lo || size < budgetBytes) {
			size += len(c.At(hi)) + 1
			hi++
		}
		if err := runQuantile(ctx, c, lo, hi, rank, group, policy, sampleRate, perm); err != nil {
			return nil, errors.Wrapf(err, "sorter: quantile [%d, %d)", lo, hi)
		}
		lo = hi
	}
	return perm, nil
}

func runQuantile(ctx context.Context, c *container.StringContainer, lo, hi int, rank uint32, group comm.Communicator, policy sample.Policy, sampleRate int, perm *container.Permutation) error {
	batch := make([]originEntry, hi-lo)
	for i := lo; i < hi; i++ {
		batch[i-lo] = originEntry{value: c.At(i), pe: rank, index: uint32(i)}
	}
	sort.Slice(batch, func(i, j int) bool { return bytes.Compare(batch[i].value, batch[j].value) < 0 })

	batchContainer := entriesToContainer(batch)
	splitters, err := sample.SampleAndSort(ctx, batchContainer, group, policy, sampleRate, 0)
	if err != nil {
		return errors.Wrapf(err, "sampling")
	}
	counts := sample.Partition(batchContainer, splitters)

	p := group.Size()
	send := make([]byte, 0)
	sendCounts := make([]int, p)
	off := 0
	for dst := 0; dst < p; dst++ {
		n := counts[dst]
		chunk := encodeOrigin(batch[off : off+n])
		send = append(send, chunk...)
		sendCounts[dst] = len(chunk)
		off += n
	}

	recv, recvCounts, err := group.Alltoallv(ctx, send, sendCounts)
	if err != nil {
		return errors.Wrapf(err, "alltoallv")
	}

	var runs [][]originEntry
	roff := 0
	for src := 0; src < p; src++ {
		entries, err := decodeOrigin(recv[roff : roff+recvCounts[src]])
		if err != nil {
			return errors.Wrapf(err, "decoding quantile payload from PE %d", src)
		}
		runs = append(runs, entries)
		roff += recvCounts[src]
	}

	less := func(a, b originEntry) bool { return bytes.Compare(a.value, b.value) < 0 }
	merged := merge.Merge(runs, less)
	for _, e := range merged {
		perm.Append(e.pe, e.index)
	}
	return nil
}

func entriesToContainer(batch []originEntry) *container.StringContainer {
	arena := &container.Arena{}
	strs := make([]container.String, len(batch))
	for i, e := range batch {
		strs[i] = arena.AppendTerminated(e.value)
	}
	return &container.StringContainer{Arena: arena, Strings: strs}
}

func encodeOrigin(entries []originEntry) []byte {
	var buf []byte
	var hdr [4]byte
	for _, e := range entries {
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(e.value)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, e.value...)
		binary.LittleEndian.PutUint32(hdr[:], e.pe)
		buf = append(buf, hdr[:]...)
		binary.LittleEndian.PutUint32(hdr[:], e.index)
		buf = append(buf, hdr[:]...)
	}
	return buf
}

func decodeOrigin(buf []byte) ([]originEntry, error) {
	var out []originEntry
	off := 0
	for off < len(buf) {
		if off+4 > len(buf) {
			return nil, errors.AssertionFailedf("sorter: truncated quantile entry length")
		}
		n := int(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
		if off+n+8 > len(buf) {
			return nil, errors.AssertionFailedf("sorter: truncated quantile entry body")
		}
		value := buf[off : off+n]
		off += n
		pe := binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
		idx := binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
		out = append(out, originEntry{value: value, pe: pe, index: idx})
	}
	return out, nil
}
