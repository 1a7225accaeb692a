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

// Package merge implements the generic multiway merge the top-level
// sort driver (C6) uses to combine P already-sorted runs into one,
// and the duplicate resolver (C2) uses to union its sorted
// duplicate-index streams (dedup.UnionDuplicateIndices). It is
// built the way the teacher's sorting.Ktop merges heaps (container/heap
// over a small handle type), generalized with a type parameter instead
// of being specialized to one record type.
package merge

import "container/heap"

// Merge combines len(runs) already-sorted slices into one sorted
// slice, using less to compare elements. It is a stable merge: ties
// are resolved by run index, so the order of equal elements across
// runs is deterministic (lowest run index first).
func Merge[T any](runs [][]T, less func(a, b T) bool) []T {
	total := 0
	for _, r := range runs {
		total += len(r)
	}
	out := make([]T, 0, total)
	h := &mergeHeap[T]{less: less}
	for i, r := range runs {
		if len(r) > 0 {
			h.items = append(h.items, cursor[T]{run: i, idx: 0})
		}
	}
	h.runs = runs
	heap.Init(h)
	for h.Len() > 0 {
		c := h.items[0]
		out = append(out, runs[c.run][c.idx])
		if c.idx+1 < len(runs[c.run]) {
			h.items[0] = cursor[T]{run: c.run, idx: c.idx + 1}
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}
	}
	return out
}

type cursor[T any] struct {
	run, idx int
}

type mergeHeap[T any] struct {
	items []cursor[T]
	runs  [][]T
	less  func(a, b T) bool
}

func (h *mergeHeap[T]) Len() int { return len(h.items) }

func (h *mergeHeap[T]) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	av, bv := h.runs[a.run][a.idx], h.runs[b.run][b.idx]
	if h.less(av, bv) {
		return true
	}
	if h.less(bv, av) {
		return false
	}
	return a.run < b.run
}

func (h *mergeHeap[T]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *mergeHeap[T]) Push(x any) { h.items = append(h.items, x.(cursor[T])) }

func (h *mergeHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}
