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

// Package generate implements the six input-generator configurations
// spec.md §6 enumerates, each producing one rank's local batch as a
// container.StringContainer. This mirrors how the teacher's own
// generate/ packages (e.g. the synthetic row generators under
// expr/partiql's test fixtures) build deterministic or
// pseudo-random fixtures behind a small enum-selected config rather
// than one generator per call site.
package generate

import (
	"bufio"
	"math/rand"
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/sneller-dsss/dsss/container"
	"github.com/sneller-dsss/dsss/ints"
)

// Kind selects one of the six generator configurations.
type Kind int

const (
	Random Kind = iota
	File
	FileSegment
	Suffix
	Window
	DifferenceCover
)

// Config holds every option needed by any generator kind; only the
// fields relevant to Kind are consulted.
type Config struct {
	Kind Kind

	// Random
	NStrings int
	MinLen   int
	MaxLen   int
	DNRatio  float64 // distinct/total ratio in (0, 1]; 1 means all distinct

	// File, FileSegment, Suffix, Window, DifferenceCover
	Path string

	// FileSegment
	BytesPerRank int

	// Suffix, Window
	Step      int
	WindowLen int

	// DifferenceCover
	Modulus int

	// Seed seeds Random's string lengths and pool draws; 0 selects a
	// per-rank default. The string bytes come from crypto/rand, so
	// they differ between runs even for a fixed Seed.
	Seed int64
}

// Generate produces rank's local batch out of size total ranks,
// according to cfg.
func Generate(cfg Config, rank, size int) (*container.StringContainer, error) {
	switch cfg.Kind {
	case Random:
		return genRandom(cfg, rank)
	case File:
		return genFile(cfg, rank, size)
	case FileSegment:
		return genFileSegment(cfg, rank, size)
	case Suffix:
		return genSuffix(cfg, rank, size)
	case Window:
		return genWindow(cfg, rank, size)
	case DifferenceCover:
		return genDifferenceCover(cfg, rank, size)
	default:
		return nil, errors.AssertionFailedf("generate: unknown generator kind %d", cfg.Kind)
	}
}

// genRandom builds n_strings strings per rank with lengths uniform in
// [MinLen, MaxLen], holding a controlled distinct/total ratio: a pool
// of ceil(DNRatio*NStrings) random strings is generated first, then
// the batch is filled by drawing uniformly with replacement from that
// pool, so the distinct count is at most the pool size and usually
// close to it.
func genRandom(cfg Config, rank int) (*container.StringContainer, error) {
	if cfg.NStrings <= 0 {
		return nil, errors.AssertionFailedf("generate: random NStrings must be positive, got %d", cfg.NStrings)
	}
	if cfg.MinLen <= 0 || cfg.MaxLen < cfg.MinLen {
		return nil, errors.AssertionFailedf("generate: random len_range invalid [%d, %d]", cfg.MinLen, cfg.MaxLen)
	}
	ratio := cfg.DNRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	distinct := int(float64(cfg.NStrings)*ratio + 0.999999)
	if distinct < 1 {
		distinct = 1
	}
	if distinct > cfg.NStrings {
		distinct = cfg.NStrings
	}

	seed := cfg.Seed
	if seed == 0 {
		mult := uint64(0x9E3779B97F4A7C15)
		seed = int64(rank)*int64(mult) + 1
	}
	rng := rand.New(rand.NewSource(seed))

	pool := make([][]byte, distinct)
	for i := range pool {
		n := cfg.MinLen
		if cfg.MaxLen > cfg.MinLen {
			n += rng.Intn(cfg.MaxLen - cfg.MinLen + 1)
		}
		s := make([]byte, n)
		if err := ints.RandomFillSlice(s); err != nil {
			return nil, errors.Wrapf(err, "generate: filling random string")
		}
		for j := range s {
			s[j] = 'a' + s[j]%26
		}
		pool[i] = s
	}

	arena := &container.Arena{}
	strs := make([]container.String, cfg.NStrings)
	for i := 0; i < cfg.NStrings; i++ {
		strs[i] = arena.AppendTerminated(pool[rng.Intn(distinct)])
	}
	return &container.StringContainer{Arena: arena, Strings: strs}, nil
}

func readLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "generate: opening %s", path)
	}
	defer f.Close()
	var lines [][]byte
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := append([]byte(nil), sc.Bytes()...)
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "generate: reading %s", path)
	}
	return lines, nil
}

// genFile broadcasts (conceptually; every rank independently reads
// the same file) a shared text file and splits its lines round-robin
// across ranks by rank index, one line per string.
func genFile(cfg Config, rank, size int) (*container.StringContainer, error) {
	lines, err := readLines(cfg.Path)
	if err != nil {
		return nil, err
	}
	arena := &container.Arena{}
	var strs []container.String
	for i, line := range lines {
		if size > 0 && i%size != rank {
			continue
		}
		strs = append(strs, arena.AppendTerminated(line))
	}
	return &container.StringContainer{Arena: arena, Strings: strs}, nil
}

func readRankSegment(path string, rank, size, bytesPerRank int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "generate: opening %s", path)
	}
	defer f.Close()
	off := int64(rank) * int64(bytesPerRank)
	if _, err := f.Seek(off, 0); err != nil {
		return nil, errors.Wrapf(err, "generate: seeking to rank segment")
	}
	buf := make([]byte, bytesPerRank)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return nil, nil
	}
	return buf[:n], nil
}

// genFileSegment has each rank read its own disjoint byte slice of
// the shared file (rank*bytesPerRank for bytesPerRank bytes), split
// into lines on its own boundaries.
func genFileSegment(cfg Config, rank, size int) (*container.StringContainer, error) {
	if cfg.BytesPerRank <= 0 {
		return nil, errors.AssertionFailedf("generate: file_segment bytes_per_rank must be positive, got %d", cfg.BytesPerRank)
	}
	seg, err := readRankSegment(cfg.Path, rank, size, cfg.BytesPerRank)
	if err != nil {
		return nil, err
	}
	arena := &container.Arena{}
	var strs []container.String
	start := 0
	for i := 0; i < len(seg); i++ {
		if seg[i] == '\n' {
			strs = append(strs, arena.AppendTerminated(seg[start:i]))
			start = i + 1
		}
	}
	if start < len(seg) {
		strs = append(strs, arena.AppendTerminated(seg[start:]))
	}
	return &container.StringContainer{Arena: arena, Strings: strs}, nil
}

// genSuffix emits every Step-th suffix of the shared text as a
// string, round-robin striped across ranks by suffix index.
func genSuffix(cfg Config, rank, size int) (*container.StringContainer, error) {
	text, err := readWholeFile(cfg.Path)
	if err != nil {
		return nil, err
	}
	step := cfg.Step
	if step <= 0 {
		step = 1
	}
	arena := &container.Arena{}
	var strs []container.String
	idx := 0
	for start := 0; start < len(text); start += step {
		if size > 0 && idx%size != rank {
			idx++
			continue
		}
		strs = append(strs, arena.AppendTerminated(text[start:]))
		idx++
	}
	return &container.StringContainer{Arena: arena, Strings: strs}, nil
}

// genWindow emits fixed-length sliding-window substrings of the
// shared text, round-robin striped across ranks by window index.
func genWindow(cfg Config, rank, size int) (*container.StringContainer, error) {
	text, err := readWholeFile(cfg.Path)
	if err != nil {
		return nil, err
	}
	if cfg.WindowLen <= 0 {
		return nil, errors.AssertionFailedf("generate: window window_len must be positive, got %d", cfg.WindowLen)
	}
	step := cfg.Step
	if step <= 0 {
		step = 1
	}
	arena := &container.Arena{}
	var strs []container.String
	idx := 0
	for start := 0; start+cfg.WindowLen <= len(text); start += step {
		if size > 0 && idx%size != rank {
			idx++
			continue
		}
		strs = append(strs, arena.AppendTerminated(text[start:start+cfg.WindowLen]))
		idx++
	}
	return &container.StringContainer{Arena: arena, Strings: strs}, nil
}

// genDifferenceCover emits substrings starting at every position
// whose residue mod Modulus lies in a difference cover of
// [0, Modulus): a sparse, deterministic sample of starting offsets
// that still guarantees every pairwise distance mod Modulus is
// represented, the sampling strategy difference-cover suffix-array
// construction algorithms rely on.
func genDifferenceCover(cfg Config, rank, size int) (*container.StringContainer, error) {
	text, err := readWholeFile(cfg.Path)
	if err != nil {
		return nil, err
	}
	if cfg.Modulus <= 0 {
		return nil, errors.AssertionFailedf("generate: difference_cover modulus must be positive, got %d", cfg.Modulus)
	}
	cover := differenceCover(cfg.Modulus)
	inCover := make([]bool, cfg.Modulus)
	for _, d := range cover {
		inCover[d] = true
	}

	arena := &container.Arena{}
	var strs []container.String
	idx := 0
	for start := 0; start < len(text); start++ {
		if !inCover[start%cfg.Modulus] {
			continue
		}
		if size > 0 && idx%size != rank {
			idx++
			continue
		}
		strs = append(strs, arena.AppendTerminated(text[start:]))
		idx++
	}
	return &container.StringContainer{Arena: arena, Strings: strs}, nil
}

func readWholeFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "generate: reading %s", path)
	}
	return b, nil
}

// differenceCover greedily builds a difference cover D of Z/vZ: a set
// such that every residue r in [0, v) is expressible as d1-d2 (mod v)
// for some d1, d2 in D. Greedy rather than optimal, but deterministic
// and O(v log v)-ish in practice for the moduli this generator is
// used with.
func differenceCover(v int) []int {
	if v <= 1 {
		return []int{0}
	}
	covered := make([]bool, v)
	covered[0] = true
	D := []int{0}
	for {
		target := -1
		for r, c := range covered {
			if !c {
				target = r
				break
			}
		}
		if target == -1 {
			break
		}
		d := ((target + D[len(D)-1]) % v + v) % v
		D = append(D, d)
		for _, e := range D {
			covered[(((d-e)%v)+v)%v] = true
			covered[(((e-d)%v)+v)%v] = true
		}
	}
	sort.Ints(D)
	return D
}
