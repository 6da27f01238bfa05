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

// Package blockstore is the content-addressed blob namespace: hash ->
// (size, content), exactly-once insert semantics. Keyed on hash alone —
// BLAKE2b-256 makes the (hash, size) compound key the source sometimes
// used redundant, since size is a pure function of content.
package blockstore

import (
	"github.com/tlasica/casstor/block"
	"github.com/tlasica/casstor/gateway"
)

const table = "blocks"

// Store is the Block Store described in the design: exists, put,
// exists_many, maybe_store, maybe_store_batch.
type Store struct {
	gw      *gateway.Gateway
	stmtIns string
}

func New(gw *gateway.Gateway) *Store {
	return &Store{
		gw:      gw,
		stmtIns: "insert into " + gateway.Qualify(gw.DataKS(), table) + "(block_hash, block_size, content) values (?,?,?)",
	}
}

// Exists reports whether hash is present, without fetching content.
func (s *Store) Exists(hash string) (bool, error) {
	stmt := "select block_hash from " + gateway.Qualify(s.gw.DataKS(), table) + " where block_hash = ? limit 1"
	var got string
	found, err := s.gw.Row(stmt, gateway.ConsistencyDefault, []interface{}{hash}, &got)
	if err != nil {
		return false, err
	}
	return found, nil
}

// Put idempotently inserts (hash, |content|, content). Two concurrent
// Puts for the same hash both succeed and leave the same row, since the
// upsert is keyed on the primary key and content is a function of hash.
func (s *Store) Put(hash string, content []byte) error {
	return s.gw.Exec(s.stmtIns, gateway.ConsistencyDefault, hash, int32(len(content)), content)
}

// ExistsMany returns the subset of hashes already present, in one round
// trip. len(hashes) should stay within the deployment's fixed batch size
// (default 5 — see MaybeStoreBatch).
func (s *Store) ExistsMany(hashes []string) (map[string]bool, error) {
	if len(hashes) == 0 {
		return map[string]bool{}, nil
	}
	stmt := "select block_hash from " + gateway.Qualify(s.gw.DataKS(), table) + " where block_hash in ?"
	iter := s.gw.Iter(stmt, gateway.ConsistencyDefault, hashes)
	present := make(map[string]bool, len(hashes))
	var h string
	for iter.Scan(&h) {
		present[h] = true
	}
	if err := iter.Close(); err != nil {
		return nil, gateway.Classify(err)
	}
	return present, nil
}

// MaybeStore inserts content under hash if it wasn't already present and
// reports whether this call created the row. WasNew is advisory (used for
// stats only, per the contract) — it is not a correctness signal, since a
// concurrent MaybeStore for the same hash may race this one and both will
// observe !exists and both will Put; the result is unambiguous either way
// because Put is idempotent and content is determined entirely by hash.
func (s *Store) MaybeStore(hash string, content []byte) (wasNew bool, err error) {
	exists, err := s.Exists(hash)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := s.Put(hash, content); err != nil {
		return false, err
	}
	return true, nil
}

// Chunk is one input to MaybeStoreBatch: content plus its precomputed
// hash (the caller already needed the hash to decide batch membership).
type Chunk struct {
	Offset  int64
	Hash    string
	Content []byte
}

// MaybeStoreBatch performs one ExistsMany, then Put for the complement,
// returning one Block per input chunk with IsNew set relative to the
// pre-call state. Content is not retained on the returned blocks — the
// store pipeline only needs offset/size/hash/novelty past this point.
func (s *Store) MaybeStoreBatch(chunks []Chunk) ([]block.Block, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	hashes := make([]string, len(chunks))
	for i, c := range chunks {
		hashes[i] = c.Hash
	}
	present, err := s.ExistsMany(hashes)
	if err != nil {
		return nil, err
	}

	out := make([]block.Block, len(chunks))
	for i, c := range chunks {
		novelty := block.NoveltyExisting
		if !present[c.Hash] {
			if err := s.Put(c.Hash, c.Content); err != nil {
				return nil, err
			}
			novelty = block.NoveltyNew
		}
		out[i] = block.Block{
			Offset: c.Offset,
			Size:   int64(len(c.Content)),
			Hash:   c.Hash,
			IsNew:  novelty,
		}
	}
	return out, nil
}

// Get fetches content for a single hash at single-replica consistency.
// The restore pipeline does not call it; its batched fetch uses GetMany.
func (s *Store) Get(hash string) ([]byte, bool, error) {
	stmt := "select content from " + gateway.Qualify(s.gw.DataKS(), table) + " where block_hash = ?"
	var content []byte
	found, err := s.gw.Row(stmt, gateway.ConsistencyOne, []interface{}{hash}, &content)
	if err != nil {
		return nil, false, err
	}
	return content, found, nil
}

// GetMany fetches content for up to len(hashes) blocks in one round trip,
// the batched fetch the restore pipeline's workers use.
func (s *Store) GetMany(hashes []string) (map[string][]byte, error) {
	if len(hashes) == 0 {
		return map[string][]byte{}, nil
	}
	stmt := "select block_hash, content from " + gateway.Qualify(s.gw.DataKS(), table) + " where block_hash in ?"
	iter := s.gw.Iter(stmt, gateway.ConsistencyOne, hashes)
	result := make(map[string][]byte, len(hashes))
	var h string
	var content []byte
	for iter.Scan(&h, &content) {
		result[h] = content
		content = nil
	}
	if err := iter.Close(); err != nil {
		return nil, gateway.Classify(err)
	}
	return result, nil
}
