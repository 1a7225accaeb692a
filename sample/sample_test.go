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
	"sort"
	"sync"
	"testing"

	"github.com/sneller-dsss/dsss/comm"
	"github.com/sneller-dsss/dsss/container"
)

func buildContainer(t *testing.T, strs []string) *container.StringContainer {
	t.Helper()
	var chars []byte
	descs := make([]container.String, len(strs))
	for i, s := range strs {
		off := len(chars)
		chars = append(chars, s...)
		chars = append(chars, 0)
		descs[i] = container.String{Ptr: uint32(off), Len: uint32(len(s))}
	}
	return container.NewStringContainer(chars, descs)
}

func TestCandidateEncodeDecodeRoundTrip(t *testing.T) {
	cands := []Candidate{{Value: []byte("abc"), Index: 5}, {Value: []byte(""), Index: 9}}
	got, err := decodeCandidates(encodeCandidates(cands))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(cands) {
		t.Fatalf("got %d candidates, want %d", len(got), len(cands))
	}
	for i := range cands {
		if string(got[i].Value) != string(cands[i].Value) || got[i].Index != cands[i].Index {
			t.Fatalf("mismatch at %d: got %+v want %+v", i, got[i], cands[i])
		}
	}
}

func TestPartitionSendCountsSumToLen(t *testing.T) {
	c := buildContainer(t, []string{"a", "b", "c", "d", "e", "f"})
	sort.Sort(c)
	splitters := [][]byte{[]byte("b"), []byte("d")}
	counts := Partition(c, splitters)
	sum := 0
	for _, n := range counts {
		sum += n
	}
	if sum != c.Len() {
		t.Fatalf("send counts sum to %d, want %d", sum, c.Len())
	}
	if len(counts) != 3 {
		t.Fatalf("expected 3 buckets for 2 splitters, got %d", len(counts))
	}
}

// S2: 2 ranks, rank 0 = ["c","a"], rank 1 = ["b","d"]; with splitter
// "b": rank 0 outputs ["a","b"], rank 1 outputs ["c","d"].
func TestPartitionScenarioS2(t *testing.T) {
	splitters := [][]byte{[]byte("b")}

	c0 := buildContainer(t, []string{"c", "a"})
	sort.Sort(c0)
	counts0 := Partition(c0, splitters)
	if counts0[0] != 1 || counts0[1] != 1 {
		t.Fatalf("rank 0 counts = %v, want [1 1]", counts0)
	}

	c1 := buildContainer(t, []string{"b", "d"})
	sort.Sort(c1)
	counts1 := Partition(c1, splitters)
	if counts1[0] != 1 || counts1[1] != 1 {
		t.Fatalf("rank 1 counts = %v, want [1 1]", counts1)
	}
}

func TestSampleAndSortAgreesAcrossRanks(t *testing.T) {
	n := 4
	comms := comm.NewLocal(n)
	data := [][]string{
		{"mango", "apple", "kiwi"},
		{"pear", "fig", "grape"},
		{"date", "lemon"},
		{"plum", "cherry", "berry", "olive"},
	}
	results := make([][][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := buildContainer(t, data[i])
			sort.Sort(c)
			splitters, err := SampleAndSort(context.Background(), c, comms[i], Strings, 1, 0)
			if err != nil {
				t.Errorf("rank %d: %v", i, err)
				return
			}
			results[i] = splitters
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if len(results[i]) != len(results[0]) {
			t.Fatalf("rank %d got %d splitters, rank 0 got %d", i, len(results[i]), len(results[0]))
		}
		for j := range results[0] {
			if string(results[i][j]) != string(results[0][j]) {
				t.Fatalf("rank %d splitter %d = %q, rank 0 = %q", i, j, results[i][j], results[0][j])
			}
		}
	}
}
