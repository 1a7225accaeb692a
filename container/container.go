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

package container

// StringContainer owns exactly one Arena and a sequence of String
// descriptors pointing into it. Descriptors may be freely reordered;
// MakeContiguous is the only operation that rewrites the arena.
type StringContainer struct {
	Arena   *Arena
	Strings []String
}

// NewStringContainer builds a container directly from chars and a
// set of descriptors already pointing into chars. chars is copied.
func NewStringContainer(chars []byte, strs []String) *StringContainer {
	return &StringContainer{
		Arena:   NewArena(chars),
		Strings: strs,
	}
}

// Len returns the number of strings held by the container.
func (c *StringContainer) Len() int { return len(c.Strings) }

// At returns the bytes of the i-th string.
func (c *StringContainer) At(i int) []byte { return c.Strings[i].Bytes(c.Arena) }

// MakeContiguous rewrites the arena so that descriptors point to
// disjoint, contiguous, NUL-terminated runs in descriptor order:
// for all i, Strings[i].Ptr + Strings[i].Len + 1 == Strings[i+1].Ptr.
// The result is deterministic given the current descriptor order,
// regardless of how the descriptors got there.
func (c *StringContainer) MakeContiguous() {
	total := uint32(0)
	for i := range c.Strings {
		total += c.Strings[i].Len + 1
	}
	out := make([]byte, total)
	off := uint32(0)
	for i := range c.Strings {
		s := &c.Strings[i]
		src := s.Bytes(c.Arena)
		copy(out[off:off+s.Len], src)
		out[off+s.Len] = 0
		s.Ptr = off
		off += s.Len + 1
	}
	c.Arena = &Arena{Bytes: out}
}

// IsConsistent is a postcondition checker used in tests: every
// descriptor's range must lie within the arena's bounds.
func (c *StringContainer) IsConsistent() bool {
	n := uint32(len(c.Arena.Bytes))
	for i := range c.Strings {
		s := c.Strings[i]
		if s.Ptr > n || s.Ptr+s.Len > n {
			return false
		}
	}
	return true
}

// IsContiguous reports whether the descriptors satisfy the
// post-MakeContiguous invariant: each string is immediately
// followed by its NUL terminator and the next string's start.
func (c *StringContainer) IsContiguous() bool {
	for i := range c.Strings {
		s := c.Strings[i]
		if int(s.Ptr+s.Len) >= len(c.Arena.Bytes) || c.Arena.Bytes[s.Ptr+s.Len] != 0 {
			return false
		}
		if i+1 < len(c.Strings) && s.Ptr+s.Len+1 != c.Strings[i+1].Ptr {
			return false
		}
	}
	return true
}

// Swap exchanges descriptors i and j; used by sort.Interface-style
// local sorters operating directly on the container.
func (c *StringContainer) Swap(i, j int) {
	c.Strings[i], c.Strings[j] = c.Strings[j], c.Strings[i]
}

// Less performs a lexicographic byte comparison of strings i and j.
func (c *StringContainer) Less(i, j int) bool {
	a, b := c.At(i), c.At(j)
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for k := 0; k < n; k++ {
		if a[k] != b[k] {
			return a[k] < b[k]
		}
	}
	return len(a) < len(b)
}
