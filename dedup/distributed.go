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
	"encoding/binary"
	"math/big"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/sneller-dsss/dsss/comm"
	"github.com/sneller-dsss/dsss/golomb"
	"github.com/sneller-dsss/dsss/hashing"
)

// hashRange is a half-open interval [Lo, Lo+Width) of the u64 hash
// space. Width is a count of hash values, which for the whole space
// (2^64 values) does not fit in a uint64, hence big.Int.
type hashRange struct {
	Lo    uint64
	Width *big.Int
}

// fullRange is the entire u64 hash space, the range the top-level
// call into the distributed pass always starts from (spec.md §4.2:
// "the Bloom-filter filter size is 2^64").
func fullRange() hashRange {
	return hashRange{Lo: 0, Width: new(big.Int).Lsh(big.NewInt(1), 64)}
}

// boundary returns the low (inclusive) bound of bucket k out of p
// equal shares of r: r.Lo + floor(r.Width*k/p).
func (r hashRange) boundary(k, p int) uint64 {
	if k <= 0 {
		return r.Lo
	}
	num := new(big.Int).Mul(r.Width, big.NewInt(int64(k)))
	num.Div(num, big.NewInt(int64(p)))
	num.Add(num, new(big.Int).SetUint64(r.Lo))
	return num.Uint64()
}

// bucketWidthBig returns the exact width of bucket k out of p shares
// of r, which may exceed what fits in a uint64 (only possible for the
// single bucket of a size-1 group spanning the whole range).
func (r hashRange) bucketWidthBig(k, p int) *big.Int {
	lo := r.boundary(k, p)
	var hi *big.Int
	if k == p-1 {
		hi = new(big.Int).Add(new(big.Int).SetUint64(r.Lo), r.Width)
	} else {
		hi = new(big.Int).SetUint64(r.boundary(k+1, p))
	}
	return new(big.Int).Sub(hi, new(big.Int).SetUint64(lo))
}

// bucketWidth approximates bucketWidthBig as a uint64, clamping to
// the maximum representable value when the exact width doesn't fit.
// It only feeds golomb.Parameter's choice of encoding width, so the
// clamp is a harmless approximation, not a correctness concern.
func (r hashRange) bucketWidth(k, p int) uint64 {
	w := r.bucketWidthBig(k, p)
	if w.IsUint64() {
		return w.Uint64()
	}
	return ^uint64(0)
}

// sub returns the sub-range bucket k out of p shares of r, the
// narrower range the next grid level recurses into.
func (r hashRange) sub(k, p int) hashRange {
	return hashRange{Lo: r.boundary(k, p), Width: r.bucketWidthBig(k, p)}
}

// destinationInRange returns the receiver owning h under the linear
// partition of r into p intervals.
func destinationInRange(h uint64, r hashRange, p int) int {
	lo, hi := 0, p-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if r.boundary(mid, p) <= h {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// DistributedPass runs one round of spec.md §4.3's distributed pass
// over the whole of group: filtered (already sorted ascending by
// Hash, as LocalPass produces) is partitioned by hash interval and
// exchanged over group; the receiver multiway-merges the runs it
// gets, finds globally duplicated hashes, and ships the resulting
// local indices back to their origin ranks. It returns the sorted
// local indices (into this rank's own filtered slice, by LocalIndex)
// that the rest of the world has determined are duplicates.
//
// This is the single-level (grid depth 1) case of
// DistributedPassMultiLevel and is kept as its own entry point
// because most callers (and this package's own tests) only ever deal
// with a flat world.
func DistributedPass(ctx context.Context, filtered []hashing.HashStringIndex, group comm.Communicator, useGolomb bool) ([]uint32, error) {
	merged, err := partitionAndExchange(ctx, filtered, group, fullRange(), useGolomb)
	if err != nil {
		return nil, err
	}
	perPEDup, any := duplicatesFromMerged(merged, group.Size())
	return finalizeBackward(ctx, group, perPEDup, any)
}

// DistributedPassMultiLevel implements spec.md §4.3's multi-level
// variant: treat the merged hash-rank pairs produced at grid level k
// as the input to level k+1, narrowing the hash range each rank owns
// to the sub-interval it was assigned at level k. The leaf level (the
// last entry of grid.Levels) runs the duplicate-detection step
// directly; every other level only partitions, exchanges, and merges,
// then recurses before mapping the returned duplicate positions back
// onto the (PE, running index) pairs it received, so unwinding always
// ships a duplicate-index list back to the same senders it received
// from at that level.
func DistributedPassMultiLevel(ctx context.Context, filtered []hashing.HashStringIndex, grid *comm.Grid, useGolomb bool) ([]uint32, error) {
	return distributedPassAtLevel(ctx, filtered, grid, 0, fullRange(), useGolomb)
}

func distributedPassAtLevel(ctx context.Context, filtered []hashing.HashStringIndex, grid *comm.Grid, level int, r hashRange, useGolomb bool) ([]uint32, error) {
	group := grid.Levels[level]
	merged, err := partitionAndExchange(ctx, filtered, group, r, useGolomb)
	if err != nil {
		return nil, errors.Wrapf(err, "dedup: distributed pass at grid level %d", level)
	}

	if level == len(grid.Levels)-1 {
		perPEDup, any := duplicatesFromMerged(merged, group.Size())
		return finalizeBackward(ctx, group, perPEDup, any)
	}

	next := make([]hashing.HashStringIndex, len(merged))
	for i, e := range merged {
		next[i] = hashing.HashStringIndex{Hash: e.Hash, LocalIndex: uint32(i)}
	}
	childRange := r.sub(group.Rank(), group.Size())
	dupPositions, err := distributedPassAtLevel(ctx, next, grid, level+1, childRange, useGolomb)
	if err != nil {
		return nil, err
	}

	perPEDup := make([][]uint32, group.Size())
	any := false
	for _, pos := range dupPositions {
		e := merged[pos]
		perPEDup[e.PE] = append(perPEDup[e.PE], e.RunningIndex)
		any = true
	}
	return finalizeBackward(ctx, group, perPEDup, any)
}

// partitionAndExchange runs steps 1-4 of spec.md §4.3's distributed
// pass: filtered is partitioned into group.Size() buckets over r,
// exchanged via group.Alltoallv, decoded, tagged with the sending
// PE's rank within group and its running index into that PE's send
// buffer, and merged into one hash-sorted stream.
func partitionAndExchange(ctx context.Context, filtered []hashing.HashStringIndex, group comm.Communicator, r hashRange, useGolomb bool) ([]hashing.HashPEIndex, error) {
	p := group.Size()

	sendHashes := make([][]uint64, p)
	sendIdx := make([][]uint32, p)
	for _, e := range filtered {
		d := destinationInRange(e.Hash, r, p)
		sendHashes[d] = append(sendHashes[d], e.Hash)
		sendIdx[d] = append(sendIdx[d], e.LocalIndex)
	}

	var send []byte
	byteCounts := make([]int, p)
	for dst := 0; dst < p; dst++ {
		chunk := encodeDistPayload(sendHashes[dst], sendIdx[dst], r.bucketWidth(dst, p), useGolomb)
		send = append(send, chunk...)
		byteCounts[dst] = len(chunk)
	}

	recv, recvCounts, err := group.Alltoallv(ctx, send, byteCounts)
	if err != nil {
		return nil, errors.Wrapf(err, "dedup: alltoallv of hash payloads")
	}

	var merged []hashing.HashPEIndex
	off := 0
	for pe := 0; pe < p; pe++ {
		hashes, idx, err := decodeDistPayload(recv[off : off+recvCounts[pe]])
		if err != nil {
			return nil, errors.Wrapf(err, "dedup: decoding payload from PE %d", pe)
		}
		for i, h := range hashes {
			merged = append(merged, hashing.HashPEIndex{Hash: h, PE: uint32(pe), RunningIndex: idx[i]})
		}
		off += recvCounts[pe]
	}
	sort.Sort(hashing.HashPEIndexByHash(merged))
	return merged, nil
}

// duplicatesFromMerged runs step 5 of spec.md §4.3: walk the merged
// stream and, for every run of equal hash, record every member's
// (PE, running index) as a duplicate to report back to that PE.
func duplicatesFromMerged(merged []hashing.HashPEIndex, groupSize int) (perPEDup [][]uint32, any bool) {
	perPEDup = make([][]uint32, groupSize)
	for i := 0; i < len(merged); {
		j := i + 1
		for j < len(merged) && merged[j].Hash == merged[i].Hash {
			j++
		}
		if j-i > 1 {
			any = true
			for k := i; k < j; k++ {
				e := merged[k]
				perPEDup[e.PE] = append(perPEDup[e.PE], e.RunningIndex)
			}
		}
		i = j
	}
	return perPEDup, any
}

// finalizeBackward runs steps 6-7 of spec.md §4.3: short-circuit via
// an Allreduce if nothing in the group found a duplicate, otherwise
// ship each PE's sorted duplicate-index list back over group and
// return the list destined for this rank.
func finalizeBackward(ctx context.Context, group comm.Communicator, perPEDup [][]uint32, any bool) ([]uint32, error) {
	anyGlobal, err := group.Allreduce(ctx, boolToU64(any), comm.LogicalOr)
	if err != nil {
		return nil, errors.Wrapf(err, "dedup: allreduce any-duplicates")
	}
	if anyGlobal == 0 {
		return nil, nil
	}

	for pe := range perPEDup {
		sort.Slice(perPEDup[pe], func(i, j int) bool { return perPEDup[pe][i] < perPEDup[pe][j] })
	}
	backSend, backCounts := encodeDupLists(perPEDup)
	backRecv, backRecvCounts, err := group.Alltoallv(ctx, backSend, backCounts)
	if err != nil {
		return nil, errors.Wrapf(err, "dedup: alltoallv of duplicate-index lists")
	}
	var mine []uint32
	boff := 0
	for pe := 0; pe < len(perPEDup); pe++ {
		mine = append(mine, decodeUint32List(backRecv[boff:boff+backRecvCounts[pe]])...)
		boff += backRecvCounts[pe]
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i] < mine[j] })
	return mine, nil
}

func boolToU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// encodeDistPayload packs one destination's (hashes, localIndices)
// pair, optionally Golomb-encoding the sorted hash sequence per
// spec.md §4.8.
func encodeDistPayload(hashes []uint64, idx []uint32, universe uint64, useGolomb bool) []byte {
	var buf []byte
	var hdr [4]byte
	if useGolomb && len(hashes) > 0 {
		b := golomb.Parameter(universe, len(hashes))
		pkt := golomb.Encode(hashes, b)
		buf = append(buf, 1)
		binary.LittleEndian.PutUint32(hdr[:], uint32(pkt.PayloadLen))
		buf = append(buf, hdr[:]...)
		var bb [8]byte
		binary.LittleEndian.PutUint64(bb[:], pkt.B)
		buf = append(buf, bb[:]...)
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(pkt.Deltas)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, pkt.Deltas...)
	} else {
		buf = append(buf, 0)
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(hashes)))
		buf = append(buf, hdr[:]...)
		for _, h := range hashes {
			var hb [8]byte
			binary.LittleEndian.PutUint64(hb[:], h)
			buf = append(buf, hb[:]...)
		}
	}
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(idx)))
	buf = append(buf, hdr[:]...)
	for _, v := range idx {
		var ib [4]byte
		binary.LittleEndian.PutUint32(ib[:], v)
		buf = append(buf, ib[:]...)
	}
	return buf
}

func decodeDistPayload(buf []byte) (hashes []uint64, idx []uint32, err error) {
	if len(buf) < 1 {
		return nil, nil, errors.AssertionFailedf("dedup: empty distributed-pass payload")
	}
	golombFlag := buf[0]
	off := 1
	if off+4 > len(buf) {
		return nil, nil, errors.AssertionFailedf("dedup: truncated payload header")
	}
	if golombFlag == 1 {
		payloadLen := int(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
		if off+8 > len(buf) {
			return nil, nil, errors.AssertionFailedf("dedup: truncated golomb header")
		}
		b := binary.LittleEndian.Uint64(buf[off : off+8])
		off += 8
		if off+4 > len(buf) {
			return nil, nil, errors.AssertionFailedf("dedup: truncated golomb delta length")
		}
		deltaLen := int(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
		if off+deltaLen > len(buf) {
			return nil, nil, errors.AssertionFailedf("dedup: truncated golomb delta stream")
		}
		hashes, err = golomb.Decode(golomb.Packet{PayloadLen: payloadLen, B: b, Deltas: buf[off : off+deltaLen]})
		if err != nil {
			return nil, nil, errors.Wrapf(err, "dedup: decoding golomb payload")
		}
		off += deltaLen
	} else {
		n := int(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
		hashes = make([]uint64, n)
		for i := 0; i < n; i++ {
			if off+8 > len(buf) {
				return nil, nil, errors.AssertionFailedf("dedup: truncated hash list")
			}
			hashes[i] = binary.LittleEndian.Uint64(buf[off : off+8])
			off += 8
		}
	}
	if off+4 > len(buf) {
		return nil, nil, errors.AssertionFailedf("dedup: truncated index-list header")
	}
	n := int(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	idx = make([]uint32, n)
	for i := 0; i < n; i++ {
		if off+4 > len(buf) {
			return nil, nil, errors.AssertionFailedf("dedup: truncated index list")
		}
		idx[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}
	return hashes, idx, nil
}

func encodeDupLists(perPEDup [][]uint32) (send []byte, counts []int) {
	counts = make([]int, len(perPEDup))
	for pe, list := range perPEDup {
		var buf [4]byte
		chunk := make([]byte, 0, 4*(1+len(list)))
		binary.LittleEndian.PutUint32(buf[:], uint32(len(list)))
		chunk = append(chunk, buf[:]...)
		for _, v := range list {
			binary.LittleEndian.PutUint32(buf[:], v)
			chunk = append(chunk, buf[:]...)
		}
		send = append(send, chunk...)
		counts[pe] = len(chunk)
	}
	return send, counts
}

func decodeUint32List(buf []byte) []uint32 {
	if len(buf) < 4 {
		return nil
	}
	n := int(binary.LittleEndian.Uint32(buf[:4]))
	out := make([]uint32, 0, n)
	off := 4
	for i := 0; i < n && off+4 <= len(buf); i++ {
		out = append(out, binary.LittleEndian.Uint32(buf[off:off+4]))
		off += 4
	}
	return out
}
