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

package generate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGenRandomProducesRequestedCountAndLengthRange(t *testing.T) {
	cfg := Config{Kind: Random, NStrings: 50, MinLen: 4, MaxLen: 8, DNRatio: 0.5, Seed: 42}
	c, err := Generate(cfg, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 50 {
		t.Fatalf("got %d strings, want 50", c.Len())
	}
	for i := 0; i < c.Len(); i++ {
		n := len(c.At(i))
		if n < 4 || n > 8 {
			t.Fatalf("string %d has length %d, want [4,8]", i, n)
		}
	}
}

func TestGenRandomDistinctRatioApproximatelyHonored(t *testing.T) {
	cfg := Config{Kind: Random, NStrings: 1000, MinLen: 10, MaxLen: 10, DNRatio: 0.1, Seed: 7}
	c, err := Generate(cfg, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for i := 0; i < c.Len(); i++ {
		seen[string(c.At(i))] = true
	}
	// With dn_ratio 0.1 over 1000 strings, the distinct pool has 100
	// entries; birthday-paradox overlap with 10-byte random strings
	// means the observed distinct count should land close to 100, well
	// under the full 1000.
	if len(seen) > 200 {
		t.Fatalf("observed %d distinct strings, want well under 200 for dn_ratio=0.1", len(seen))
	}
}

func TestGenFileSplitsLinesRoundRobin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "text.txt")
	if err := os.WriteFile(path, []byte("aaa\nbbb\nccc\nddd\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Config{Kind: File, Path: path}
	c0, err := Generate(cfg, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	c1, err := Generate(cfg, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if c0.Len() != 2 || c1.Len() != 2 {
		t.Fatalf("got %d/%d lines per rank, want 2/2", c0.Len(), c1.Len())
	}
	if string(c0.At(0)) != "aaa" || string(c0.At(1)) != "ccc" {
		t.Fatalf("rank 0 got %q %q, want aaa ccc", c0.At(0), c0.At(1))
	}
	if string(c1.At(0)) != "bbb" || string(c1.At(1)) != "ddd" {
		t.Fatalf("rank 1 got %q %q, want bbb ddd", c1.At(0), c1.At(1))
	}
}

func TestGenFileSegmentSplitsFileByByteRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "text.txt")
	if err := os.WriteFile(path, []byte("0123456789ABCDEFGHIJ"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Config{Kind: FileSegment, Path: path, BytesPerRank: 10}
	c0, err := Generate(cfg, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	c1, err := Generate(cfg, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if string(c0.At(0)) != "0123456789" {
		t.Fatalf("rank 0 segment = %q, want 0123456789", c0.At(0))
	}
	if string(c1.At(0)) != "ABCDEFGHIJ" {
		t.Fatalf("rank 1 segment = %q, want ABCDEFGHIJ", c1.At(0))
	}
}

func TestGenSuffixStepsThroughText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "text.txt")
	if err := os.WriteFile(path, []byte("banana"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Config{Kind: Suffix, Path: path, Step: 2}
	c, err := Generate(cfg, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"banana", "nana", "na"}
	if c.Len() != len(want) {
		t.Fatalf("got %d suffixes, want %d", c.Len(), len(want))
	}
	for i, w := range want {
		if string(c.At(i)) != w {
			t.Fatalf("suffix %d = %q, want %q", i, c.At(i), w)
		}
	}
}

func TestGenWindowProducesFixedLengthSubstrings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "text.txt")
	if err := os.WriteFile(path, []byte("abcdef"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Config{Kind: Window, Path: path, WindowLen: 3, Step: 1}
	c, err := Generate(cfg, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"abc", "bcd", "cde", "def"}
	if c.Len() != len(want) {
		t.Fatalf("got %d windows, want %d", c.Len(), len(want))
	}
	for i, w := range want {
		if string(c.At(i)) != w {
			t.Fatalf("window %d = %q, want %q", i, c.At(i), w)
		}
	}
}

func TestDifferenceCoverCoversEveryResidue(t *testing.T) {
	for _, v := range []int{2, 3, 5, 7, 11, 16} {
		cover := differenceCover(v)
		covered := make([]bool, v)
		for _, d1 := range cover {
			for _, d2 := range cover {
				covered[(((d1-d2)%v)+v)%v] = true
			}
		}
		for r, ok := range covered {
			if !ok {
				t.Fatalf("modulus %d: residue %d not covered by %v", v, r, cover)
			}
		}
	}
}

func TestGenDifferenceCoverProducesNonEmptyDeterministicSample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "text.txt")
	if err := os.WriteFile(path, []byte("the quick brown fox jumps over the lazy dog"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Config{Kind: DifferenceCover, Path: path, Modulus: 5}
	c1, err := Generate(cfg, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := Generate(cfg, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if c1.Len() == 0 {
		t.Fatal("expected a non-empty sample")
	}
	if c1.Len() != c2.Len() {
		t.Fatalf("non-deterministic sample size: %d vs %d", c1.Len(), c2.Len())
	}
	for i := 0; i < c1.Len(); i++ {
		if string(c1.At(i)) != string(c2.At(i)) {
			t.Fatalf("non-deterministic sample at %d: %q vs %q", i, c1.At(i), c2.At(i))
		}
	}
}
