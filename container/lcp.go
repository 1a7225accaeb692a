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

import (
	"github.com/cockroachdb/errors"
)

// StringLcpContainer adds a parallel LCP array to a StringContainer.
// Lcps[i] is the length of the common prefix of Strings[i-1] and
// Strings[i]; Lcps[0] is always 0.
type StringLcpContainer struct {
	*StringContainer
	Lcps []uint32
}

// NewStringLcpContainer wraps c with an LCP array of the right length,
// set entirely to zero.
func NewStringLcpContainer(c *StringContainer) *StringLcpContainer {
	return &StringLcpContainer{
		StringContainer: c,
		Lcps:             make([]uint32, len(c.Strings)),
	}
}

// Lcp computes the byte length of the common prefix of a and b.
func Lcp(a, b []byte) uint32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return uint32(i)
}

// RecomputeLcps fills Lcps from the current (assumed sorted)
// descriptor order; used after a local sort that did not itself
// produce an LCP array.
func (c *StringLcpContainer) RecomputeLcps() {
	if len(c.Lcps) != len(c.Strings) {
		c.Lcps = make([]uint32, len(c.Strings))
	}
	for i := 1; i < len(c.Strings); i++ {
		c.Lcps[i] = Lcp(c.At(i-1), c.At(i))
	}
}

// IsSelfConsistent checks testable property 3 of the specification:
// for all i>0, Lcps[i] == Lcp(Strings[i-1], Strings[i]).
func (c *StringLcpContainer) IsSelfConsistent() bool {
	if len(c.Lcps) != len(c.Strings) {
		return false
	}
	if len(c.Lcps) > 0 && c.Lcps[0] != 0 {
		return false
	}
	for i := 1; i < len(c.Strings); i++ {
		if c.Lcps[i] != Lcp(c.At(i-1), c.At(i)) {
			return false
		}
	}
	return true
}

// ExtendPrefix reconstructs full strings from an LCP-compressed
// transmission: tails holds, for each i, the distinct suffix that
// follows the shared lcps[i]-byte prefix with the previous string.
// The result is a fresh, contiguous StringLcpContainer.
func ExtendPrefix(lcps []uint32, tails [][]byte) (*StringLcpContainer, error) {
	if len(lcps) != len(tails) {
		return nil, errors.AssertionFailedf("extend_prefix: lcps length %d != tails length %d", len(lcps), len(tails))
	}
	if len(lcps) > 0 && lcps[0] != 0 {
		return nil, errors.AssertionFailedf("extend_prefix: lcps[0] = %d, want 0", lcps[0])
	}
	arena := &Arena{}
	strs := make([]String, len(lcps))
	var prev []byte
	for i := range lcps {
		full := make([]byte, 0, int(lcps[i])+len(tails[i]))
		if lcps[i] > 0 {
			if int(lcps[i]) > len(prev) {
				return nil, errors.AssertionFailedf("extend_prefix: lcp[%d]=%d exceeds previous string length %d", i, lcps[i], len(prev))
			}
			full = append(full, prev[:lcps[i]]...)
		}
		full = append(full, tails[i]...)
		strs[i] = arena.AppendTerminated(full)
		prev = full
	}
	return &StringLcpContainer{
		StringContainer: &StringContainer{Arena: arena, Strings: strs},
		Lcps:             append([]uint32(nil), lcps...),
	}, nil
}
