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

package comm

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Grid is the cascade of subcommunicators G = [g_0, ..., g_L] built
// from a level schedule: |g_0| is the whole world, and every g_k
// partitions the ranks of g_{k-1} into groups of size schedule[k-1].
// Grid is scoped to a single rank: Levels[k] is this rank's view of
// g_k, i.e. the Communicator it uses to talk to the other ranks that
// share its group at level k.
type Grid struct {
	Levels []Communicator
}

// ValidateSchedule checks the configuration error spec.md §7 names:
// the level schedule must be strictly decreasing and every entry
// must evenly divide the world size it is colored from.
func ValidateSchedule(worldSize int, schedule []int) error {
	prev := worldSize
	for i, l := range schedule {
		if l <= 0 {
			return errors.Newf("level schedule entry %d: group size %d must be positive", i, l)
		}
		if l >= prev {
			return errors.Newf("level schedule must be strictly decreasing: entry %d (%d) is not less than the preceding level size %d", i, l, prev)
		}
		if prev%l != 0 {
			return errors.Newf("level schedule entry %d: group size %d does not evenly divide level size %d", i, l, prev)
		}
		prev = l
	}
	return nil
}

// BuildGrid constructs this rank's view of the subcommunicator grid
// by repeatedly calling Split on root, coloring root's (and then
// each successive level's) ranks into contiguous blocks of the
// requested group size. It is a collective operation: every rank
// sharing root must call BuildGrid with the same schedule.
func BuildGrid(ctx context.Context, root Communicator, schedule []int) (*Grid, error) {
	if err := ValidateSchedule(root.Size(), schedule); err != nil {
		return nil, err
	}
	g := &Grid{Levels: make([]Communicator, len(schedule)+1)}
	g.Levels[0] = root
	cur := root
	for i, groupSize := range schedule {
		color := cur.Rank() / groupSize
		key := cur.Rank()
		next, err := cur.Split(ctx, color, key)
		if err != nil {
			return nil, errors.Wrapf(err, "building grid level %d", i+1)
		}
		if next.Size() != groupSize {
			return nil, errors.AssertionFailedf("grid level %d: expected group size %d, got %d", i+1, groupSize, next.Size())
		}
		g.Levels[i+1] = next
		cur = next
	}
	return g, nil
}

// Leaf returns the smallest (deepest) communicator in the grid.
func (g *Grid) Leaf() Communicator { return g.Levels[len(g.Levels)-1] }

// Root returns the whole-world communicator (g_0).
func (g *Grid) Root() Communicator { return g.Levels[0] }
