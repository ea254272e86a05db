// Copyright 2017 The go-ethereum Authors
// (original work)
// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package mathx holds small overflow-safe integer helpers shared by the
// sequence-number map and the append-only date-tolerance check.
package mathx

// AbsoluteDifference returns the absolute value of x-y without risking
// underflow on unsigned operands. Used to compare a date-tolerant payload's
// declared timestamp against now without casting through a signed duration.
func AbsoluteDifference(x, y uint64) uint64 {
	if x > y {
		return x - y
	}
	return y - x
}

// MaxUint64Of returns the larger of x and y. The sequence-number map uses it
// to guarantee Put never lowers a stored sequence number even if a caller
// ever forgets the monotonicity check its own callers are expected to do.
func MaxUint64Of(x, y uint64) uint64 {
	if x > y {
		return x
	}
	return y
}
