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

// Package block defines the unit of content-addressed storage shared by
// the store and restore pipelines.
package block

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the digest length of the hash function used to address
// blocks: BLAKE2b with a 32-byte output, hex-lowercase rendered to 64
// characters.
const HashSize = 32

// Novelty records whether a block was newly inserted by this session,
// already present, or unknown (the restore path never sets it).
type Novelty uint8

const (
	NoveltyUnknown Novelty = iota
	NoveltyExisting
	NoveltyNew
)

// Block is one chunk of a file: its position, its content-derived identity
// and, transiently while it flows through a pipeline stage, its bytes.
type Block struct {
	Offset  int64
	Size    int64
	Hash    string // lowercase hex, len 64
	IsNew   Novelty
	Content []byte // nil once released by the pipeline stage that produced or consumed it
}

// Hash computes the block hash for content: BLAKE2b-256, hex-lowercase.
func Hash(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// New builds a Block for freshly read content at offset, with its hash
// computed and IsNew left unknown (the caller, usually a store-pipeline
// worker, fills it in after consulting the block store).
func New(offset int64, content []byte) Block {
	return Block{
		Offset:  offset,
		Size:    int64(len(content)),
		Hash:    Hash(content),
		IsNew:   NoveltyUnknown,
		Content: content,
	}
}

// ManifestOrder reports whether the offsets of a block slice form the
// strictly increasing, gap-free sequence required of a file manifest:
// 0, size0, size0+size1, ...
func ManifestOrder(blocks []Block) bool {
	var want int64
	for _, b := range blocks {
		if b.Offset != want {
			return false
		}
		want += b.Size
	}
	return true
}
