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

// Package sample implements the splitter sampler and partitioner
// (C4): drawing local splitter candidates under one of four sampling
// policies, sorting the gathered candidates across the communicator,
// and mapping local strings to their destination rank by binary
// search against the chosen splitters.
package sample

import (
	"bytes"

	"github.com/sneller-dsss/dsss/container"
)

// Policy selects how splitter candidates are drawn from a local
// sorted batch of strings, matching the CLI's -s flag enumeration.
type Policy int

const (
	// Strings samples every k-th string.
	Strings Policy = iota
	// Chars samples candidates at every k-th byte boundary across
	// each local string.
	Chars
	// IndexedStrings is Strings, but every candidate carries its
	// global index so that ties in value compare as distinct rather
	// than collapsing arbitrarily.
	IndexedStrings
	// IndexedChars is Chars with the same global-index tie-break.
	IndexedChars
)

// Candidate is one splitter candidate. Index is only meaningful
// (non-zero-by-construction) under the Indexed* policies; Less
// compares by Value first and falls back to Index only when the
// bytes are equal, so identically-valued candidates still have a
// well-defined, identity-stable order instead of an arbitrary one.
type Candidate struct {
	Value []byte
	Index uint64
}

// Less orders a before b the way the distributed splitter sort
// requires.
func Less(a, b Candidate) bool {
	if c := bytes.Compare(a.Value, b.Value); c != 0 {
		return c < 0
	}
	return a.Index < b.Index
}

// Draw draws candidates from c under policy, taking every k-th
// string (Strings/IndexedStrings) or every k-th byte (Chars/IndexedChars).
// globalOffset is this rank's first string's position in the global
// (pre-partition) ordering, used to populate Candidate.Index under the
// Indexed* policies.
func Draw(c *container.StringContainer, policy Policy, k int, globalOffset uint64) []Candidate {
	if k <= 0 {
		k = 1
	}
	var out []Candidate
	switch policy {
	case Strings, IndexedStrings:
		for i := 0; i < c.Len(); i += k {
			out = append(out, Candidate{
				Value: append([]byte(nil), c.At(i)...),
				Index: globalOffset + uint64(i),
			})
		}
	case Chars, IndexedChars:
		pos := uint64(0)
		for i := 0; i < c.Len(); i++ {
			s := c.At(i)
			for b := 0; b < len(s); b += k {
				out = append(out, Candidate{
					Value: append([]byte(nil), s[:b+1]...),
					Index: globalOffset + pos,
				})
			}
			pos++
		}
	}
	if policy == Strings || policy == Chars {
		// Only the Indexed* policies carry a global index.
		for i := range out {
			out[i].Index = 0
		}
	}
	return out
}
