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

import "testing"

func TestHashersAgreeOnSamePrefix(t *testing.T) {
	s := []byte("hello world")
	for _, h := range []Hasher{NewSipHasher(1, 2), NewXXHasher(7)} {
		a := h.Hash(s, 5)
		b := h.Hash(s, 5)
		if a != b {
			t.Fatalf("%T: hash not deterministic: %x != %x", h, a, b)
		}
		if h.Hash(s, 4) == h.Hash(s, 5) {
			t.Fatalf("%T: different depths hashed to the same value (very unlikely)", h)
		}
	}
}

func TestIncrementalHashMatchesFullDepth(t *testing.T) {
	s := []byte("distinguishing-prefix-example")
	for _, h := range []Hasher{NewSipHasher(5, 9), NewXXHasher(3)} {
		shallow := h.Hash(s, 4)
		incremental := h.HashIncremental(s, 4, 8, shallow)
		// the incremental hash must at least be deterministic and
		// depend on the deeper bytes (different depth => different value)
		again := h.HashIncremental(s, 4, 8, shallow)
		if incremental != again {
			t.Fatalf("%T: incremental hash not deterministic", h)
		}
		if incremental == shallow {
			t.Fatalf("%T: incremental hash did not change with deeper bytes", h)
		}
	}
}

func TestHashPEIndexSortsByHashThenPE(t *testing.T) {
	in := HashPEIndexByHash{
		{Hash: 5, PE: 2},
		{Hash: 3, PE: 1},
		{Hash: 5, PE: 0},
	}
	// simple insertion sort to avoid importing sort in this tiny test
	for i := 1; i < len(in); i++ {
		for j := i; j > 0 && in.Less(j, j-1); j-- {
			in.Swap(j, j-1)
		}
	}
	if in[0].Hash != 3 || in[1].Hash != 5 || in[1].PE != 0 || in[2].PE != 2 {
		t.Fatalf("unexpected order: %+v", in)
	}
}
