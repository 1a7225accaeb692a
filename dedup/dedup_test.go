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
	"sort"
	"sync"
	"testing"

	"github.com/sneller-dsss/dsss/comm"
	"github.com/sneller-dsss/dsss/container"
	"github.com/sneller-dsss/dsss/hashing"
)

func TestLocalPassMarksRuns(t *testing.T) {
	entries := []hashing.HashStringIndex{
		{Hash: 1, LocalIndex: 0},
		{Hash: 5, LocalIndex: 1},
		{Hash: 5, LocalIndex: 2},
		{Hash: 5, LocalIndex: 3},
		{Hash: 9, LocalIndex: 4},
	}
	filtered, dup := LocalPass(entries)
	if len(dup) != 2 || dup[0] != 2 || dup[1] != 3 {
		t.Fatalf("local duplicates = %v, want [2 3]", dup)
	}
	// filtered keeps: hash=1 (unique), hash=5 first (send_anyway), hash=9 (unique)
	if len(filtered) != 3 {
		t.Fatalf("filtered = %v, want 3 entries", filtered)
	}
	wantIdx := []uint32{0, 1, 4}
	for i, e := range filtered {
		if e.LocalIndex != wantIdx[i] {
			t.Fatalf("filtered[%d].LocalIndex = %d, want %d", i, e.LocalIndex, wantIdx[i])
		}
	}
}

func TestUnionDuplicateIndicesDedupes(t *testing.T) {
	got := UnionDuplicateIndices([]uint32{1, 3, 5}, []uint32{3, 7}, []uint32{5, 9})
	want := []uint32{1, 3, 5, 7, 9}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestDistributedPassFindsCrossRankDuplicate(t *testing.T) {
	comms := comm.NewLocal(2)
	const h = uint64(12345)
	var wg sync.WaitGroup
	results := make([][]uint32, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries := []hashing.HashStringIndex{{Hash: h, LocalIndex: uint32(i)}}
			dup, err := DistributedPass(context.Background(), entries, comms[i], false)
			if err != nil {
				t.Errorf("rank %d: %v", i, err)
				return
			}
			results[i] = dup
		}(i)
	}
	wg.Wait()
	for i := 0; i < 2; i++ {
		if len(results[i]) != 1 || results[i][0] != uint32(i) {
			t.Fatalf("rank %d dup = %v, want [%d]", i, results[i], i)
		}
	}
}

func TestDistributedPassNoDuplicatesAcrossRanks(t *testing.T) {
	comms := comm.NewLocal(2)
	var wg sync.WaitGroup
	results := make([][]uint32, 2)
	hashes := []uint64{111, 222}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries := []hashing.HashStringIndex{{Hash: hashes[i], LocalIndex: 0}}
			dup, err := DistributedPass(context.Background(), entries, comms[i], true)
			if err != nil {
				t.Errorf("rank %d: %v", i, err)
				return
			}
			results[i] = dup
		}(i)
	}
	wg.Wait()
	for i := 0; i < 2; i++ {
		if len(results[i]) != 0 {
			t.Fatalf("rank %d dup = %v, want none", i, results[i])
		}
	}
}

func buildSortedContainer(strs []string) (*container.StringContainer, []uint32) {
	var chars []byte
	descs := make([]container.String, len(strs))
	for i, s := range strs {
		off := len(chars)
		chars = append(chars, s...)
		chars = append(chars, 0)
		descs[i] = container.String{Ptr: uint32(off), Len: uint32(len(s))}
	}
	c := container.NewStringContainer(chars, descs)
	sort.Sort(c)
	lc := container.NewStringLcpContainer(c)
	lc.RecomputeLcps()
	return c, lc.Lcps
}

func TestPrefixDoubleSingleRankAllUnique(t *testing.T) {
	c, lcps := buildSortedContainer([]string{"apple", "banana", "cherry"})
	comms := comm.NewLocal(1)
	grid, err := comm.BuildGrid(context.Background(), comms[0], nil)
	if err != nil {
		t.Fatal(err)
	}
	hasher := hashing.NewXXHasher(0)
	depth, err := PrefixDouble(context.Background(), c, lcps, hasher, grid, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	for i, d := range depth {
		if d <= 0 || d > len(c.At(i)) {
			t.Fatalf("string %d: depth = %d, want in (0, %d]", i, d, len(c.At(i)))
		}
	}
}

func TestPrefixDoubleCrossRankDuplicate(t *testing.T) {
	comms := comm.NewLocal(2)
	hasher := hashing.NewXXHasher(0)
	var wg sync.WaitGroup
	depths := make([][]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			grid, err := comm.BuildGrid(context.Background(), comms[i], nil)
			if err != nil {
				t.Errorf("rank %d: %v", i, err)
				return
			}
			c, lcps := buildSortedContainer([]string{"identical"})
			d, err := PrefixDouble(context.Background(), c, lcps, hasher, grid, 1, false)
			if err != nil {
				t.Errorf("rank %d: %v", i, err)
				return
			}
			depths[i] = d
		}(i)
	}
	wg.Wait()
	for i := 0; i < 2; i++ {
		if len(depths[i]) != 1 || depths[i][0] != len("identical") {
			t.Fatalf("rank %d depth = %v, want [%d]", i, depths[i], len("identical"))
		}
	}
}

// TestPrefixDoubleBoundaryLengthString exercises the EOS edge case
// directly: one rank holds a string whose length lands exactly on a
// probe depth, while the other rank holds a string that shares that
// exact content as a proper prefix. The shorter string must still
// take part in that round's hashing (it is not strictly shorter than
// the probe depth), otherwise the longer string's duplicate goes
// undetected and it settles on a distinguishing depth one round too
// small.
func TestPrefixDoubleBoundaryLengthString(t *testing.T) {
	comms := comm.NewLocal(2)
	hasher := hashing.NewXXHasher(0)
	data := [][]string{
		{"aaaaaaaa"},  // len 8
		{"aaaaaaaab"}, // len 9, "aaaaaaaa" is a proper prefix
	}
	var wg sync.WaitGroup
	depths := make([][]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			grid, err := comm.BuildGrid(context.Background(), comms[i], nil)
			if err != nil {
				t.Errorf("rank %d: %v", i, err)
				return
			}
			c, lcps := buildSortedContainer(data[i])
			d, err := PrefixDouble(context.Background(), c, lcps, hasher, grid, 1, false)
			if err != nil {
				t.Errorf("rank %d: %v", i, err)
				return
			}
			depths[i] = d
		}(i)
	}
	wg.Wait()

	if len(depths[0]) != 1 || depths[0][0] != len("aaaaaaaa") {
		t.Fatalf("rank 0 depth = %v, want [%d]", depths[0], len("aaaaaaaa"))
	}
	if len(depths[1]) != 1 || depths[1][0] != len("aaaaaaaab") {
		t.Fatalf("rank 1 depth = %v, want [%d]", depths[1], len("aaaaaaaab"))
	}
}

// TestPrefixDoubleMultiLevelGrid exercises the recursive grid-level
// narrowing directly: 4 ranks under a [2]-level schedule (2 groups of
// 2), with a duplicate string shared by one rank in each group, so the
// duplicate can only be found once the intermediate (non-leaf) level's
// merged result is recursed into the leaf level.
func TestPrefixDoubleMultiLevelGrid(t *testing.T) {
	n := 4
	comms := comm.NewLocal(n)
	hasher := hashing.NewXXHasher(0)
	data := [][]string{
		{"identical"},
		{"unique-a"},
		{"identical"},
		{"unique-b"},
	}
	var wg sync.WaitGroup
	depths := make([][]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			grid, err := comm.BuildGrid(context.Background(), comms[i], []int{2})
			if err != nil {
				t.Errorf("rank %d: %v", i, err)
				return
			}
			c, lcps := buildSortedContainer(data[i])
			d, err := PrefixDouble(context.Background(), c, lcps, hasher, grid, 1, false)
			if err != nil {
				t.Errorf("rank %d: %v", i, err)
				return
			}
			depths[i] = d
		}(i)
	}
	wg.Wait()

	for _, i := range []int{0, 2} {
		if len(depths[i]) != 1 || depths[i][0] != len("identical") {
			t.Fatalf("rank %d depth = %v, want [%d] (cross-group duplicate)", i, depths[i], len("identical"))
		}
	}
	for i, want := range map[int]string{1: "unique-a", 3: "unique-b"} {
		if len(depths[i]) != 1 || depths[i][0] != len(want) {
			t.Fatalf("rank %d depth = %v, want [%d] (unique)", i, depths[i], len(want))
		}
	}
}
