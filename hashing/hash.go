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

// Package hashing provides the two interchangeable 64-bit string
// hashers the Bloom-filter duplicate detector is built on: SipHash
// (github.com/dchest/siphash, also used for hashing in the teacher's
// own query-planner splitter) and xxHash (github.com/cespare/xxhash/v2).
package hashing

import (
	"github.com/cespare/xxhash/v2"
	"github.com/dchest/siphash"
)

// Hasher computes a 64-bit hash of a string prefix, and can fold a
// new block's hash into a hash computed at a shallower depth without
// rehashing the shared prefix from scratch.
type Hasher interface {
	// Hash returns H(s[0:min(depth, len(s))]).
	Hash(s []byte, depth int) uint64
	// HashIncremental folds the hash of s[priorDepth:depth] into
	// prior (the hash of s[0:priorDepth]) by XOR, as used by the
	// prefix-doubling Bloom filter driver to avoid rehashing bytes
	// it has already hashed at a shallower depth.
	HashIncremental(s []byte, priorDepth, depth int, prior uint64) uint64
}

func prefixOf(s []byte, depth int) []byte {
	if depth < 0 || depth > len(s) {
		depth = len(s)
	}
	return s[:depth]
}

// SipHasher is a Hasher backed by SipHash-2-4 with a fixed key pair,
// mirroring the fixed key pair the teacher's query planner uses to
// partition blobs across tenant nodes (cmd/snellerd/splitter.go).
type SipHasher struct {
	K0, K1 uint64
}

// NewSipHasher constructs a SipHasher with the given 128-bit key.
func NewSipHasher(k0, k1 uint64) SipHasher {
	return SipHasher{K0: k0, K1: k1}
}

func (h SipHasher) Hash(s []byte, depth int) uint64 {
	return siphash.Hash(h.K0, h.K1, prefixOf(s, depth))
}

func (h SipHasher) HashIncremental(s []byte, priorDepth, depth int, prior uint64) uint64 {
	block := siphash.Hash(h.K0, h.K1, s[minInt(priorDepth, len(s)):minInt(depth, len(s))])
	return prior ^ block
}

// XXHasher is a Hasher backed by xxHash64.
type XXHasher struct {
	Seed uint64
}

// NewXXHasher constructs an XXHasher with the given seed, folded into
// every block hash the way SipHasher folds in its key.
func NewXXHasher(seed uint64) XXHasher {
	return XXHasher{Seed: seed}
}

func (h XXHasher) Hash(s []byte, depth int) uint64 {
	d := xxhash.New()
	var seed [8]byte
	putLE64(seed[:], h.Seed)
	d.Write(seed[:])
	d.Write(prefixOf(s, depth))
	return d.Sum64()
}

func (h XXHasher) HashIncremental(s []byte, priorDepth, depth int, prior uint64) uint64 {
	block := h.Hash(s[minInt(priorDepth, len(s)):minInt(depth, len(s))], -1)
	return prior ^ block
}

func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
