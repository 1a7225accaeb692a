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

// Package localsort provides the black-box shared-memory local
// sorter every level of the distributed driver calls before it
// samples and exchanges: a plain comparison sort over a
// StringContainer's descriptors, with an LCP array filled in
// afterward. The algorithm itself is swappable (spec.md treats local
// sorting as an opaque primitive); this package just commits to one,
// the way the teacher's own row sorters (sorting/rows_writer.go) wrap
// sort.Sort over a comparator rather than reimplementing a sort
// algorithm from scratch.
package localsort

import (
	"sort"

	"github.com/sneller-dsss/dsss/container"
)

// Sort locally sorts c's descriptors in place by lexicographic byte
// order and fills in c.Lcps to match, so the result satisfies
// StringLcpContainer.IsSelfConsistent.
func Sort(c *container.StringLcpContainer) {
	sort.Sort(c.StringContainer)
	c.RecomputeLcps()
}

// IsSorted reports whether c is already in non-decreasing order, so
// callers can skip a redundant sort when they know the input is a
// merge of already-sorted runs.
func IsSorted(c *container.StringContainer) bool {
	return sort.IsSorted(c)
}

// StableSort behaves like Sort but preserves the relative order of
// descriptors that compare equal (two descriptors whose strings are
// byte-identical). Used where the caller cares about sort-stability
// of PE/Index metadata carried alongside equal strings, e.g. when
// resolving ties against origin bookkeeping deterministically.
func StableSort(c *container.StringLcpContainer) {
	sort.Stable(c.StringContainer)
	c.RecomputeLcps()
}
