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

// Package sorter implements the multi-level merge sort driver (C6):
// the top-level loop that, for every level of a subcommunicator grid
// (C7), locally sorts, samples and partitions (C4), exchanges strings
// (C5), and merges the received runs — the way the teacher's
// sorting.MultiColumnSort composes a comparator-driven local sort
// with a merge step, generalized here to a distributed, multi-round
// pipeline.
package sorter

import (
	"bytes"
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/sneller-dsss/dsss/comm"
	"github.com/sneller-dsss/dsss/container"
	"github.com/sneller-dsss/dsss/exchange"
	"github.com/sneller-dsss/dsss/merge"
	"github.com/sneller-dsss/dsss/sample"
)

// Options configures one Sort call.
type Options struct {
	Policy      sample.Policy
	SampleRate  int
	ExchangeOpt exchange.Options
}

// Sort runs spec.md §4.7's driver: for every level of grid, from the
// full-world level down to the leaf, it locally sorts the container,
// samples and partitions it within that level's group, exchanges
// strings, and multiway-merges the P_k received runs, carrying the
// result into the next (smaller) level. After the last level the
// container is locally sorted and globally range-partitioned across
// the root communicator.
func Sort(ctx context.Context, c *container.StringLcpContainer, grid *comm.Grid, opt Options) (*container.StringLcpContainer, error) {
	if opt.SampleRate <= 0 {
		opt.SampleRate = 1
	}
	cur := c
	for k, level := range grid.Levels {
		sort.Sort(cur.StringContainer)
		cur.RecomputeLcps()

		splitters, err := sample.SampleAndSort(ctx, cur.StringContainer, level, opt.Policy, opt.SampleRate, 0)
		if err != nil {
			return nil, errors.Wrapf(err, "sorter: sampling at grid level %d", k)
		}
		counts := sample.Partition(cur.StringContainer, splitters)

		received, runLens, err := exchange.Exchange(ctx, cur, counts, level, opt.ExchangeOpt)
		if err != nil {
			return nil, errors.Wrapf(err, "sorter: exchanging strings at grid level %d", k)
		}
		cur = mergeRuns(received, runLens)
	}
	return cur, nil
}

// mergeRuns multiway-merges the P sorted runs packed contiguously in
// received (runLens[i] strings from sender i, in sender order) into a
// single sorted StringLcpContainer.
func mergeRuns(received *container.StringLcpContainer, runLens []int) *container.StringLcpContainer {
	runs := make([][]int, len(runLens))
	off := 0
	for i, n := range runLens {
		run := make([]int, n)
		for j := 0; j < n; j++ {
			run[j] = off + j
		}
		runs[i] = run
		off += n
	}
	less := func(a, b int) bool { return bytes.Compare(received.At(a), received.At(b)) < 0 }
	order := merge.Merge(runs, less)

	arena := &container.Arena{}
	strs := make([]container.String, len(order))
	for i, idx := range order {
		strs[i] = arena.AppendTerminated(received.At(idx))
		strs[i].Depth = received.Strings[idx].Depth
	}
	out := container.NewStringLcpContainer(&container.StringContainer{Arena: arena, Strings: strs})
	out.RecomputeLcps()
	return out
}
