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

// Package teststore provides in-memory fakes for the block and manifest
// stores, satisfying the same method sets the pipelines consume, so the
// pipeline tests can exercise the full store/restore contract without a
// live Cassandra cluster.
package teststore

import (
	"sync"

	"github.com/tlasica/casstor/block"
	"github.com/tlasica/casstor/blockstore"
)

// Blocks is an in-memory Block Store.
type Blocks struct {
	mu      sync.Mutex
	content map[string][]byte
}

func NewBlocks() *Blocks {
	return &Blocks{content: make(map[string][]byte)}
}

func (b *Blocks) Exists(hash string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.content[hash]
	return ok
}

// Delete removes a block, used by tests exercising S6 (missing block).
func (b *Blocks) Delete(hash string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.content, hash)
}

func (b *Blocks) MaybeStoreBatch(chunks []blockstore.Chunk) ([]block.Block, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]block.Block, len(chunks))
	for i, c := range chunks {
		novelty := block.NoveltyExisting
		if _, ok := b.content[c.Hash]; !ok {
			cp := make([]byte, len(c.Content))
			copy(cp, c.Content)
			b.content[c.Hash] = cp
			novelty = block.NoveltyNew
		}
		out[i] = block.Block{Offset: c.Offset, Size: int64(len(c.Content)), Hash: c.Hash, IsNew: novelty}
	}
	return out, nil
}

func (b *Blocks) GetMany(hashes []string) (map[string][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string][]byte, len(hashes))
	for _, h := range hashes {
		if data, ok := b.content[h]; ok {
			out[h] = data
		}
	}
	return out, nil
}

// Manifests is an in-memory Manifest Store.
type Manifests struct {
	mu    sync.Mutex
	files map[string][]block.Block
}

func NewManifests() *Manifests {
	return &Manifests{files: make(map[string][]block.Block)}
}

func (m *Manifests) Write(path string, blocks []block.Block) error {
	cp := make([]block.Block, len(blocks))
	copy(cp, blocks)
	m.mu.Lock()
	m.files[path] = cp
	m.mu.Unlock()
	return nil
}

func (m *Manifests) Read(path string) ([]block.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]block.Block, len(m.files[path]))
	copy(out, m.files[path])
	return out, nil
}
