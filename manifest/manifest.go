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

// Package manifest is the per-path ordered chunk list: (path, offset) ->
// (hash, size), replace-on-write.
package manifest

import (
	"github.com/tlasica/casstor/block"
	"github.com/tlasica/casstor/gateway"
	"github.com/tlasica/casstor/refcount"
)

const table = "files"

// batchSize bounds each insert batch's statement count, per the design's
// "batches bounded at ~100 statements each". The delete-by-path runs as
// its own statement before the first batch.
const batchSize = 100

// Store is the Manifest Store: write replaces all rows for a path,
// read yields them back in ascending offset order.
type Store struct {
	gw         *gateway.Gateway
	rc         *refcount.Tracker
	stmtIns    string
	stmtDel    string
	stmtSelect string
}

// New builds a Store. rc may be nil — reference counting is optional
// bookkeeping (see the refcount package) and every Tracker method is a
// documented no-op on a nil receiver, so Write below never has to check.
func New(gw *gateway.Gateway, rc *refcount.Tracker) *Store {
	qualified := gateway.Qualify(gw.MetaKS(), table)
	return &Store{
		gw:         gw,
		rc:         rc,
		stmtIns:    "insert into " + qualified + "(path, block_offset, block_hash, block_size) values (?,?,?,?)",
		stmtDel:    "delete from " + qualified + " where path = ?",
		stmtSelect: "select block_offset, block_hash, block_size from " + qualified + " where path = ?",
	}
}

// Write atomically, from a reader's perspective, replaces all manifest
// rows for path with blocks: delete-by-path followed by batched inserts,
// all at quorum. A failed write leaves "manifest state undefined" per the
// contract — callers must retry or discard, never assume partial success.
// Block writes completed before a failed manifest write become orphans,
// recoverable only by the (unspecified) GC sweep.
//
// The replace is also where reference counting happens, if enabled: the
// blocks the old manifest referenced are decremented before the new set
// is written, then the new set is incremented — the old manifest's
// references are gone the moment this call replaces it, regardless of
// whether the new manifest happens to reuse some of the same blocks.
func (s *Store) Write(path string, blocks []block.Block) error {
	old, err := s.Read(path)
	if err != nil {
		return err
	}

	if err := s.gw.Exec(s.stmtDel, gateway.ConsistencyQuorum, path); err != nil {
		return err
	}
	for _, ob := range old {
		if err := s.rc.Decr(ob.Hash, ob.Size); err != nil {
			// reference counting is optional bookkeeping, never fails the
			// manifest write over a counter update.
		}
	}

	for start := 0; start < len(blocks); start += batchSize {
		end := start + batchSize
		if end > len(blocks) {
			end = len(blocks)
		}
		b := s.gw.NewBatch(gateway.ConsistencyQuorum)
		for _, blk := range blocks[start:end] {
			b.Add(s.stmtIns, path, blk.Offset, blk.Hash, int32(blk.Size))
		}
		if err := s.gw.ExecBatch(b); err != nil {
			return err
		}
	}

	for _, nb := range blocks {
		if err := s.rc.Incr(nb.Hash, nb.Size); err != nil {
			// same: optional bookkeeping, never fatal to the write.
		}
	}
	return nil
}

// Read yields the manifest for path in strictly ascending offset order.
// Ordering comes from the clustering key, not from insertion order.
func (s *Store) Read(path string) ([]block.Block, error) {
	iter := s.gw.Iter(s.stmtSelect, gateway.ConsistencyQuorum, path)
	var out []block.Block
	var offset int64
	var hash string
	var size int32
	for iter.Scan(&offset, &hash, &size) {
		out = append(out, block.Block{
			Offset: offset,
			Size:   int64(size),
			Hash:   hash,
			IsNew:  block.NoveltyUnknown,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, gateway.Classify(err)
	}
	return out, nil
}
