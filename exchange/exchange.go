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

// Package exchange implements the string all-to-all (C5): packing a
// partitioned StringLcpContainer into per-receiver wire slots with
// optional LCP and prefix compression, exchanging those slots over a
// comm.Communicator's Alltoallv, and unpacking the received slots
// back into a StringLcpContainer. It is grounded in the teacher's
// compr package for the optional outer byte-level compression layer
// (klauspost/compress/s2) and reuses container.ExtendPrefix to
// reconstruct prefix-compressed strings on the receiving side.
//
// When PrefixDoubling is set, the primary pass transmits only the
// distinguishing prefix of each string (dedup.PrefixDouble's output,
// carried on container.String.Depth) instead of its full content, and
// a second Alltoallv pass ships the remaining suffix bytes so the
// receiver can reassemble the exact original string once the
// ordering-relevant prefix has already landed.
package exchange

import (
	"context"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/sneller-dsss/dsss/comm"
	"github.com/sneller-dsss/dsss/compr"
	"github.com/sneller-dsss/dsss/container"
)

// Options selects which parts of the wire layout (spec.md §4.6) are
// enabled for one exchange call.
type Options struct {
	// LcpCompression transmits each string's LCP with its predecessor
	// instead of relying on the receiver to recompute it.
	LcpCompression bool
	// PrefixCompression transmits only each string's distinct tail,
	// reconstructing the shared prefix from the previous string on
	// the receiving side. Requires LcpCompression and a sorted local
	// sequence (spec.md §4.6).
	PrefixCompression bool
	// Codec optionally wraps each per-receiver slot with a byte-level
	// compressor (e.g. compr.Compression("s2")) after the LCP/prefix
	// encoding above. Nil disables it.
	Codec compr.Compressor
	// Decodec reverses Codec; must be set whenever Codec is.
	Decodec compr.Decompressor
	// PrefixDoubling caps how much of each string the primary pass
	// sends to container.String.Depth bytes (spec.md §4.3/§4.4's
	// distinguishing-prefix detector), shipping the remaining suffix
	// in a follow-up pass instead of with the ordering-relevant bytes.
	PrefixDoubling bool
}

// distinguishingRange returns the byte range [start, sentEnd) of s
// that the primary pass transmits for the string at index i: start is
// the prefix-compression cut point (0 unless PrefixCompression
// applies), sentEnd is capped to the string's distinguishing depth
// when PrefixDoubling is set, and always falls within [start, len(s)].
func distinguishingRange(c *container.StringLcpContainer, i, lo int, opt Options) (start, sentEnd int) {
	s := c.At(i)
	if opt.PrefixCompression && i > lo {
		start = int(c.Lcps[i])
	}
	sentEnd = len(s)
	if opt.PrefixDoubling {
		sentEnd = int(c.Strings[i].Depth)
		if sentEnd < start {
			sentEnd = start
		}
		if sentEnd > len(s) {
			sentEnd = len(s)
		}
	}
	return start, sentEnd
}

// packSlot encodes the strings in [lo, hi) of c (with lcps giving the
// matching LCP array, aligned to the same range) as one receiver
// slot per the spec.md §4.6 wire layout:
//
//	header: u32 count
//	lcps   : count x varint     (if LcpCompression)
//	depths : count x varint     (if PrefixDoubling, container.String.Depth per string)
//	bytes  : packed strings     (length-prefixed tails if PrefixCompression,
//	                              further capped to Depth if PrefixDoubling,
//	                              else length-prefixed full strings)
func packSlot(c *container.StringLcpContainer, lo, hi int, opt Options) []byte {
	count := hi - lo
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(count))
	out := append([]byte(nil), buf[:]...)

	if opt.LcpCompression {
		for i := lo; i < hi; i++ {
			lcp := uint64(0)
			if i > lo {
				lcp = uint64(c.Lcps[i])
			}
			out = appendVarint(out, lcp)
		}
	}
	if opt.PrefixDoubling {
		for i := lo; i < hi; i++ {
			out = appendVarint(out, uint64(c.Strings[i].Depth))
		}
	}
	for i := lo; i < hi; i++ {
		start, sentEnd := distinguishingRange(c, i, lo, opt)
		tail := c.At(i)[start:sentEnd]
		out = appendVarint(out, uint64(len(tail)))
		out = append(out, tail...)
	}
	if opt.Codec != nil {
		compressed := opt.Codec.Compress(out, nil)
		var hdr [4]byte
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(out)))
		return append(hdr[:], compressed...)
	}
	return out
}

// packTailSlot is packSlot's companion: it transmits, per string in
// [lo, hi), only the suffix bytes the primary pass held back (from
// distinguishingRange's sentEnd to the string's real length). It is
// called only when PrefixDoubling is set, over the same [lo, hi]
// destination ranges as packSlot, so the two passes stay aligned.
func packTailSlot(c *container.StringLcpContainer, lo, hi int, opt Options) []byte {
	count := hi - lo
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(count))
	out := append([]byte(nil), buf[:]...)
	for i := lo; i < hi; i++ {
		s := c.At(i)
		_, sentEnd := distinguishingRange(c, i, lo, opt)
		remainder := s[sentEnd:]
		out = appendVarint(out, uint64(len(remainder)))
		out = append(out, remainder...)
	}
	if opt.Codec != nil {
		compressed := opt.Codec.Compress(out, nil)
		var hdr [4]byte
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(out)))
		return append(hdr[:], compressed...)
	}
	return out
}

// unpackSlot reverses packSlot, appending the reconstructed strings
// and their LCPs (relative to the first string of the slot, which
// always gets Lcp 0) to dst.
func unpackSlot(buf []byte, opt Options, dst *container.StringLcpContainer) error {
	if opt.Codec != nil {
		if len(buf) < 4 {
			return errors.AssertionFailedf("exchange: slot too short for compression header")
		}
		rawLen := int(binary.LittleEndian.Uint32(buf[:4]))
		raw := make([]byte, rawLen)
		if err := opt.Decodec.Decompress(buf[4:], raw); err != nil {
			return errors.Wrapf(err, "exchange: decompressing slot")
		}
		buf = raw
	}
	if len(buf) < 4 {
		return errors.AssertionFailedf("exchange: slot too short for header")
	}
	count := int(binary.LittleEndian.Uint32(buf[:4]))
	off := 4

	lcps := make([]uint32, count)
	if opt.LcpCompression {
		for i := 0; i < count; i++ {
			v, n, err := readVarint(buf[off:])
			if err != nil {
				return errors.Wrapf(err, "exchange: reading lcp %d", i)
			}
			off += n
			if i > 0 {
				lcps[i] = uint32(v)
			}
		}
	}

	depths := make([]uint32, count)
	if opt.PrefixDoubling {
		for i := 0; i < count; i++ {
			v, n, err := readVarint(buf[off:])
			if err != nil {
				return errors.Wrapf(err, "exchange: reading depth %d", i)
			}
			off += n
			depths[i] = uint32(v)
		}
	}

	tails := make([][]byte, count)
	for i := 0; i < count; i++ {
		n, nn, err := readVarint(buf[off:])
		if err != nil {
			return errors.Wrapf(err, "exchange: reading length %d", i)
		}
		off += nn
		if off+int(n) > len(buf) {
			return errors.AssertionFailedf("exchange: truncated string %d", i)
		}
		tails[i] = buf[off : off+int(n)]
		off += int(n)
	}

	if !opt.PrefixCompression {
		for i, t := range tails {
			s := dst.Arena.AppendTerminated(t)
			s.Depth = depths[i]
			dst.Strings = append(dst.Strings, s)
			dst.Lcps = append(dst.Lcps, lcps[i])
		}
		return nil
	}

	rebuilt, err := container.ExtendPrefix(lcps, tails)
	if err != nil {
		return errors.Wrapf(err, "exchange: reconstructing prefix-compressed slot")
	}
	for i := 0; i < rebuilt.Len(); i++ {
		s := dst.Arena.AppendTerminated(rebuilt.At(i))
		s.Depth = depths[i]
		dst.Strings = append(dst.Strings, s)
		dst.Lcps = append(dst.Lcps, lcps[i])
	}
	return nil
}

// appendTailSlot decodes a packTailSlot buffer and appends its
// remainder bytes onto the corresponding strings of dst, which must
// already hold count consecutive entries starting at startIdx built
// by an earlier unpackSlot call over the same [lo, hi) range. It
// returns the number of strings it completed.
func appendTailSlot(buf []byte, opt Options, dst *container.StringLcpContainer, startIdx int) (int, error) {
	if opt.Codec != nil {
		if len(buf) < 4 {
			return 0, errors.AssertionFailedf("exchange: tail slot too short for compression header")
		}
		rawLen := int(binary.LittleEndian.Uint32(buf[:4]))
		raw := make([]byte, rawLen)
		if err := opt.Decodec.Decompress(buf[4:], raw); err != nil {
			return 0, errors.Wrapf(err, "exchange: decompressing tail slot")
		}
		buf = raw
	}
	if len(buf) < 4 {
		return 0, errors.AssertionFailedf("exchange: tail slot too short for header")
	}
	count := int(binary.LittleEndian.Uint32(buf[:4]))
	off := 4
	for i := 0; i < count; i++ {
		n, nn, err := readVarint(buf[off:])
		if err != nil {
			return 0, errors.Wrapf(err, "exchange: reading tail length %d", i)
		}
		off += nn
		if off+int(n) > len(buf) {
			return 0, errors.AssertionFailedf("exchange: truncated tail %d", i)
		}
		remainder := buf[off : off+int(n)]
		off += int(n)

		j := startIdx + i
		depth := dst.Strings[j].Depth
		full := append(append([]byte(nil), dst.At(j)...), remainder...)
		dst.Strings[j] = dst.Arena.AppendTerminated(full)
		dst.Strings[j].Depth = depth
	}
	return count, nil
}

// Exchange partitions c into group.Size() slots according to counts
// (counts[r] strings starting where counts[r-1] left off go to rank
// r), packs each slot per opt, exchanges them over group's Alltoallv,
// and returns the locally owned union of every rank's slot destined
// for this rank, in sender-rank order, as a single StringLcpContainer.
// Prefix compression requires c to be sorted with an up-to-date Lcps
// array; the caller (the multi-level merge sort driver, C6) is
// responsible for that ordering invariant.
func Exchange(ctx context.Context, c *container.StringLcpContainer, counts []int, group comm.Communicator, opt Options) (*container.StringLcpContainer, []int, error) {
	p := group.Size()
	if len(counts) != p {
		return nil, nil, errors.AssertionFailedf("exchange: counts length %d != group size %d", len(counts), p)
	}
	if opt.PrefixCompression && !opt.LcpCompression {
		return nil, nil, errors.AssertionFailedf("exchange: prefix compression requires lcp compression")
	}

	var send []byte
	sendCounts := make([]int, p)
	lo := 0
	for dst := 0; dst < p; dst++ {
		hi := lo + counts[dst]
		slot := packSlot(c, lo, hi, opt)
		send = append(send, slot...)
		sendCounts[dst] = len(slot)
		lo = hi
	}

	recv, recvCounts, err := group.Alltoallv(ctx, send, sendCounts)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "exchange: alltoallv")
	}

	out := container.NewStringLcpContainer(container.NewStringContainer(nil, nil))
	runLens := make([]int, p)
	off := 0
	for src := 0; src < p; src++ {
		before := out.Len()
		if err := unpackSlot(recv[off:off+recvCounts[src]], opt, out); err != nil {
			return nil, nil, errors.Wrapf(err, "exchange: unpacking slot from rank %d", src)
		}
		runLens[src] = out.Len() - before
		off += recvCounts[src]
	}

	if opt.PrefixDoubling {
		var sendTail []byte
		sendTailCounts := make([]int, p)
		lo = 0
		for dst := 0; dst < p; dst++ {
			hi := lo + counts[dst]
			slot := packTailSlot(c, lo, hi, opt)
			sendTail = append(sendTail, slot...)
			sendTailCounts[dst] = len(slot)
			lo = hi
		}

		recvTail, recvTailCounts, err := group.Alltoallv(ctx, sendTail, sendTailCounts)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "exchange: alltoallv (distinguishing-prefix tail pass)")
		}

		off = 0
		pos := 0
		for src := 0; src < p; src++ {
			n, err := appendTailSlot(recvTail[off:off+recvTailCounts[src]], opt, out, pos)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "exchange: unpacking tail slot from rank %d", src)
			}
			pos += n
			off += recvTailCounts[src]
		}
	}
	return out, runLens, nil
}

func appendVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

func readVarint(buf []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, errors.AssertionFailedf("exchange: varint ran past end of buffer")
}
