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

// Package comm abstracts the message-passing runtime the core relies
// on. MPI itself is out of scope (spec.md §1); this package specifies
// the Communicator interface every other component programs against,
// plus a goroutine-backed Local implementation that runs and tests
// the algorithm without a real cluster.
package comm

import "context"

// Op is a reduction operator for Allreduce.
type Op int

const (
	Max Op = iota
	Sum
	LogicalOr
)

// Communicator is the set of collectives the core requires. Every
// rank in a Communicator must call the same sequence of collectives
// in the same order; that ordering is a global invariant the caller
// is responsible for (spec.md §5).
type Communicator interface {
	Size() int
	Rank() int

	// Barrier blocks until every rank has entered this call.
	Barrier(ctx context.Context) error

	// Allreduce combines one uint64 scalar per rank with op and
	// returns the combined result identically on every rank.
	Allreduce(ctx context.Context, value uint64, op Op) (uint64, error)

	// Alltoall exchanges one uint64 per rank: the returned slice's
	// i-th entry is the value rank i sent to this rank.
	Alltoall(ctx context.Context, send []uint64) ([]uint64, error)

	// Alltoallv exchanges variable-length byte payloads. sendCounts
	// gives, for each rank, the number of bytes this rank sends it;
	// the return value is the concatenation of the payloads received
	// from every rank (in rank order) plus the matching recvCounts.
	Alltoallv(ctx context.Context, send []byte, sendCounts []int) (recv []byte, recvCounts []int, err error)

	// Allgather gathers one uint64 per rank into a P-length slice,
	// identical on every rank.
	Allgather(ctx context.Context, value uint64) ([]uint64, error)

	// Allgatherv gathers a variable-length byte payload from every
	// rank into the concatenation of all payloads (in rank order).
	Allgatherv(ctx context.Context, send []byte) (recv []byte, counts []int, err error)

	// Send/Recv are the point-to-point primitives the consumed
	// message-passing runtime exposes alongside the collectives above.
	Send(ctx context.Context, dst int, payload []byte) error
	Recv(ctx context.Context, src int) ([]byte, error)

	// Split partitions the calling ranks into groups by color and
	// returns a new Communicator scoped to the caller's group, with
	// ranks within the group ordered by key. It is how the
	// subcommunicator grid (C7) is built: every rank must call
	// Split with the same sequence of (color, key) pairs it would
	// derive from the agreed level schedule.
	Split(ctx context.Context, color, key int) (Communicator, error)
}
