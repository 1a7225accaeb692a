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

package golomb

import (
	"math/rand"
	"sort"
	"testing"
)

func sortedUniqueUint64s(n int, seed int64) []uint64 {
	rng := rand.New(rand.NewSource(seed))
	set := make(map[uint64]struct{}, n)
	for len(set) < n {
		set[rng.Uint64()] = struct{}{}
	}
	out := make([]uint64, 0, n)
	for v := range set {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// S6: 10000 sorted u64 drawn uniformly from [0, 2^64); encode/decode
// must be element-wise equal.
func TestGolombRoundTripUniform(t *testing.T) {
	values := sortedUniqueUint64s(10000, 1)
	b := Parameter(^uint64(0), len(values))
	p := Encode(values, b)
	got, err := Decode(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(values) {
		t.Fatalf("decoded %d values, want %d", len(got), len(values))
	}
	for i := range values {
		if got[i] != values[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, got[i], values[i])
		}
	}
}

func TestGolombRoundTripSmallUniverse(t *testing.T) {
	values := []uint64{0, 1, 1, 3, 7, 7, 7, 20, 1000}
	for _, b := range []uint64{1, 2, 3, 5, 16, 64} {
		p := Encode(values, b)
		got, err := Decode(p)
		if err != nil {
			t.Fatalf("b=%d: %v", b, err)
		}
		for i := range values {
			if got[i] != values[i] {
				t.Fatalf("b=%d: mismatch at %d: got %d want %d", b, i, got[i], values[i])
			}
		}
	}
}

func TestGolombParameterMatchesFormula(t *testing.T) {
	b := Parameter(1<<20, 1000)
	if b == 0 {
		t.Fatal("parameter must be >= 1")
	}
	// universe much larger than n -> b should be large too
	if b < 100 {
		t.Fatalf("parameter %d looks too small for U=2^20, n=1000", b)
	}
}

func TestGolombEmptySequence(t *testing.T) {
	p := Encode(nil, 4)
	got, err := Decode(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no values, got %v", got)
	}
}
