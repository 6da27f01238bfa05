/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package refcount maintains <meta_ks>.blocks_usage, a counter of how many
// manifests reference a given block. The core store/restore pipelines do
// not consume these counters; maintaining them is optional, off by
// default, and exists only so a future GC sweep (unspecified here) has
// something to read. A native Cassandra counter column is the idiomatic
// way to do this kind of increment in a wide-column store, rather than
// read-modify-write.
package refcount

import (
	"github.com/tlasica/casstor/gateway"
)

const table = "blocks_usage"

// Tracker increments/decrements block_hash reference counts. A nil
// Tracker is valid and a no-op — callers that haven't opted in to
// reference counting pass one around without checking for nil.
type Tracker struct {
	gw       *gateway.Gateway
	stmtIncr string
	stmtDecr string
}

// New builds a Tracker, or returns nil if enabled is false — the
// documented default.
func New(gw *gateway.Gateway, enabled bool) *Tracker {
	if !enabled {
		return nil
	}
	qualified := gateway.Qualify(gw.MetaKS(), table)
	return &Tracker{
		gw:       gw,
		stmtIncr: "update " + qualified + " set num_ref = num_ref + 1 where block_hash = ? and block_size = ?",
		stmtDecr: "update " + qualified + " set num_ref = num_ref - 1 where block_hash = ? and block_size = ?",
	}
}

// Incr bumps the reference count for hash on a dedup hit or a fresh
// insert. Safe to call on a nil Tracker.
func (t *Tracker) Incr(hash string, size int64) error {
	if t == nil {
		return nil
	}
	return t.gw.Exec(t.stmtIncr, gateway.ConsistencyDefault, hash, int32(size))
}

// Decr lowers the reference count when a manifest that referenced hash is
// replaced or deleted. Reaching zero does not itself reclaim the block —
// GC sweep of unreferenced blocks is explicitly out of scope.
func (t *Tracker) Decr(hash string, size int64) error {
	if t == nil {
		return nil
	}
	return t.gw.Exec(t.stmtDecr, gateway.ConsistencyDefault, hash, int32(size))
}
