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

package merge

import (
	"sort"
	"testing"
)

func TestMergeIntRuns(t *testing.T) {
	runs := [][]int{
		{1, 4, 9},
		{2, 3, 3, 10},
		{},
		{0, 100},
	}
	got := Merge(runs, func(a, b int) bool { return a < b })
	want := []int{0, 1, 2, 3, 3, 4, 9, 10, 100}
	if len(got) != len(want) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestMergeMatchesFlatSort(t *testing.T) {
	runs := [][]int{{5, 1, 9}, {7, 2}, {3}}
	for i := range runs {
		sort.Ints(runs[i])
	}
	merged := Merge(runs, func(a, b int) bool { return a < b })

	var flat []int
	for _, r := range runs {
		flat = append(flat, r...)
	}
	sort.Ints(flat)

	for i := range flat {
		if merged[i] != flat[i] {
			t.Fatalf("merge result diverges from flat sort at %d: %v vs %v", i, merged, flat)
		}
	}
}

func TestMergeStableOnTies(t *testing.T) {
	type tagged struct {
		v, run int
	}
	runs := [][]tagged{
		{{v: 1, run: 0}, {v: 1, run: 0}},
		{{v: 1, run: 1}},
	}
	got := Merge(runs, func(a, b tagged) bool { return a.v < b.v })
	for i, item := range got {
		if item.v != 1 {
			t.Fatalf("unexpected value at %d: %+v", i, item)
		}
	}
	if got[0].run != 0 || got[1].run != 0 || got[2].run != 1 {
		t.Fatalf("tie-break not stable by run index: %+v", got)
	}
}
