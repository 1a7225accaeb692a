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

// Package compr wraps the byte-level compression codec the string
// exchange layer (package exchange) can optionally run underneath its
// own LCP/prefix codec, keyed by the -codec CLI flag.
package compr

import (
	"fmt"
	"unsafe"

	"github.com/klauspost/compress/s2"
)

// Compressor is one outer wire codec exchange.Options can select.
type Compressor interface {
	Name() string
	// Compress appends the compressed contents of src to dst and
	// returns the extended slice.
	Compress(src, dst []byte) []byte
}

// Decompressor reverses a Compressor. Implementations must tolerate
// concurrent calls from different goroutines, since exchange decodes
// every sender's chunk of an alltoallv result independently.
type Decompressor interface {
	Name() string
	// Decompress expands src into dst, failing if dst's length
	// doesn't match the decoded size exactly.
	Decompress(src, dst []byte) error
}

// s2Compressor wraps klauspost/compress/s2, the one codec this module
// wires: a format aimed at speed over ratio, matching the exchange
// layer's goal of shaving wire bytes without making the hot alltoallv
// path compression-bound.
type s2Compressor struct{}

func (s2Compressor) Name() string { return "s2" }

func (s2Compressor) Compress(src, dst []byte) []byte {
	spare := dst[len(dst):cap(dst)]
	if buffersOverlap(src, spare) {
		// s2.Encode requires disjoint src/dst; fall back to letting
		// it allocate rather than risk aliasing dst's spare capacity.
		spare = nil
	}
	encoded := s2.Encode(spare, src)
	if len(dst) == 0 {
		return encoded
	}
	if len(spare) > 0 && len(encoded) > 0 && &spare[0] == &encoded[0] {
		return dst[:len(dst)+len(encoded)]
	}
	return append(dst, encoded...)
}

func (s2Compressor) Decompress(src, dst []byte) error {
	out, err := s2.Decode(dst[:0:len(dst)], src)
	if err != nil {
		return err
	}
	if len(out) != len(dst) {
		return fmt.Errorf("compr: s2 decompress: want %d bytes, got %d", len(dst), len(out))
	}
	if &out[0] != &dst[0] {
		return fmt.Errorf("compr: s2 decompress: output buffer was reallocated")
	}
	return nil
}

var codecs = map[string]s2Compressor{
	"s2": {},
}

// Compression looks up a Compressor by name, returning nil (meaning
// "no outer codec") for an unrecognized name.
func Compression(name string) Compressor {
	if c, ok := codecs[name]; ok {
		return c
	}
	return nil
}

// Decompression is Compression's Decompressor counterpart.
func Decompression(name string) Decompressor {
	if c, ok := codecs[name]; ok {
		return c
	}
	return nil
}

// buffersOverlap reports whether a and b share any byte of memory.
func buffersOverlap(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	aStart := uintptr(unsafe.Pointer(&a[0]))
	aEnd := aStart + uintptr(len(a))
	bStart := uintptr(unsafe.Pointer(&b[0]))
	bEnd := bStart + uintptr(len(b))
	return aStart < bEnd && bStart < aEnd
}
