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

package localsort

import (
	"testing"

	"github.com/sneller-dsss/dsss/container"
)

func buildContainer(strs []string) *container.StringLcpContainer {
	var chars []byte
	descs := make([]container.String, len(strs))
	for i, s := range strs {
		off := len(chars)
		chars = append(chars, s...)
		chars = append(chars, 0)
		descs[i] = container.String{Ptr: uint32(off), Len: uint32(len(s))}
	}
	c := container.NewStringContainer(chars, descs)
	return container.NewStringLcpContainer(c)
}

func TestSortOrdersAndFillsLcps(t *testing.T) {
	c := buildContainer([]string{"banana", "apple", "app", "banner"})
	Sort(c)

	want := []string{"app", "apple", "banana", "banner"}
	for i, w := range want {
		if string(c.At(i)) != w {
			t.Fatalf("position %d = %q, want %q", i, c.At(i), w)
		}
	}
	if !c.IsSelfConsistent() {
		t.Fatal("lcp array inconsistent after Sort")
	}
}

func TestIsSortedDetectsUnsortedInput(t *testing.T) {
	c := buildContainer([]string{"b", "a"})
	if IsSorted(c.StringContainer) {
		t.Fatal("expected unsorted input to report false")
	}
	Sort(c)
	if !IsSorted(c.StringContainer) {
		t.Fatal("expected sorted output to report true")
	}
}

func TestStableSortPreservesOrderOfEqualKeys(t *testing.T) {
	c := buildContainer([]string{"x", "a", "x", "a"})
	c.Strings[0].Index = 10
	c.Strings[2].Index = 20
	StableSort(c)

	if string(c.At(0)) != "a" || string(c.At(1)) != "a" {
		t.Fatalf("expected the two a's first, got %q %q", c.At(0), c.At(1))
	}
	if string(c.At(2)) != "x" || string(c.At(3)) != "x" {
		t.Fatalf("expected the two x's last, got %q %q", c.At(2), c.At(3))
	}
	if c.Strings[2].Index != 10 || c.Strings[3].Index != 20 {
		t.Fatalf("stable sort reordered equal keys: got indices %d, %d", c.Strings[2].Index, c.Strings[3].Index)
	}
}
