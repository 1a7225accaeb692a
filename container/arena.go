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

// Package container implements the contiguous char arena and string
// descriptors that every other component in the distributed sorter
// builds on: StringContainer and its LCP-tracking counterpart
// StringLcpContainer.
package container

// String is a descriptor into an Arena. Ptr and Len describe a
// range [Ptr, Ptr+Len) of Arena.Bytes that must lie entirely within
// the arena's validity range; the byte at Arena.Bytes[Ptr+Len] is
// always the string's terminating NUL.
type String struct {
	Ptr    uint32
	Len    uint32
	PE     uint32 // originating PE, 0 if not meaningful
	Index  uint32 // index within the originating PE's local batch
	Depth  uint32 // distinguishing depth from dedup.PrefixDouble, 0 if not computed
}

// Bytes returns the string's content from the given arena.
func (s String) Bytes(a *Arena) []byte {
	return a.Bytes[s.Ptr : s.Ptr+s.Len]
}

// Arena owns a contiguous, NUL-terminated backing store for a batch
// of strings. It never aliases another Arena's storage.
type Arena struct {
	Bytes []byte
}

// NewArena copies chars into a fresh Arena.
func NewArena(chars []byte) *Arena {
	a := &Arena{Bytes: make([]byte, len(chars))}
	copy(a.Bytes, chars)
	return a
}

// Append appends a raw byte run (without a NUL terminator) to the
// arena and returns its starting offset.
func (a *Arena) Append(b []byte) uint32 {
	off := uint32(len(a.Bytes))
	a.Bytes = append(a.Bytes, b...)
	return off
}

// AppendTerminated appends b followed by a NUL byte and returns a
// descriptor pointing at the distinct (non-NUL) range.
func (a *Arena) AppendTerminated(b []byte) String {
	off := a.Append(b)
	a.Bytes = append(a.Bytes, 0)
	return String{Ptr: off, Len: uint32(len(b))}
}
