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

// Package pipeline holds the two concurrent data-flow pipelines that make
// up the client's core: storing a file (chunk, hash, dedup-write,
// manifest) and restoring one (fetch in parallel, write in order). The
// worker-pool shape (bounded queue, N goroutines, sync.WaitGroup join)
// is the same fan-out/join every stage in this module uses.
package pipeline

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/tlasica/casstor/archive"
	"github.com/tlasica/casstor/block"
	"github.com/tlasica/casstor/blockstore"
	"github.com/tlasica/casstor/errs"
)

// BlockStore is the subset of blockstore.Store the store and restore
// pipelines need. Defining it here (rather than importing the concrete
// type everywhere) lets tests substitute an in-memory fake.
type BlockStore interface {
	MaybeStoreBatch(chunks []blockstore.Chunk) ([]block.Block, error)
	GetMany(hashes []string) (map[string][]byte, error)
}

// ManifestStore is the subset of manifest.Store the pipelines need.
type ManifestStore interface {
	Write(path string, blocks []block.Block) error
	Read(path string) ([]block.Block, error)
}

// StoreConfig tunes the store pipeline's worker count W and batch size B.
type StoreConfig struct {
	Workers   int // W, default 4
	BatchSize int // B, default 5; 1 is permitted
}

// DefaultStoreConfig matches the design's defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{Workers: 4, BatchSize: 5}
}

// StoreStats is reported on completion: existing/new/total bytes, dedup
// ratio, elapsed time, throughput.
type StoreStats struct {
	ExistingBytes  int64
	NewBytes       int64
	TotalBytes     int64
	Elapsed        time.Duration
	BlockCount     int
}

func (s StoreStats) DuplicationRatio() float64 {
	if s.TotalBytes == 0 {
		return 0
	}
	return 100 * float64(s.ExistingBytes) / float64(s.TotalBytes)
}

func (s StoreStats) ThroughputMBps() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.TotalBytes) / (1024 * 1024) / secs
}

func (s StoreStats) String() string {
	return fmt.Sprintf(
		"existing=%dB new=%dB total=%dB dup=%.1f%% elapsed=%.2fs throughput=%.2fMB/s",
		s.ExistingBytes, s.NewBytes, s.TotalBytes, s.DuplicationRatio(), s.Elapsed.Seconds(), s.ThroughputMBps())
}

// rawChunk is one sized read from the source file, still carrying its
// content, waiting to be hashed by a worker.
type rawChunk struct {
	offset  int64
	content []byte
}

// accumulator collects Block results from workers in whatever order they
// finish; the coordinator sorts by offset once every worker has joined.
type accumulator struct {
	mu     sync.Mutex
	blocks []block.Block
}

func (a *accumulator) append(bs ...block.Block) {
	a.mu.Lock()
	a.blocks = append(a.blocks, bs...)
	a.mu.Unlock()
}

// errSlot is the "shared error slot" the design calls for: the first
// worker error wins, later ones are dropped (the coordinator already
// raises on the first).
type errSlot struct {
	mu  sync.Mutex
	err error
}

func (e *errSlot) set(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.mu.Unlock()
}

func (e *errSlot) get() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// StoreFile reads srcPath, splits it into chunks of the sizes yielded by
// sizes, hashes and dedup-writes each one through store, and writes the
// resulting manifest to dstPath via manifests. It satisfies the four
// store-pipeline invariants: every source byte appears in exactly one
// Block.Content passed to a worker; every produced Block hashes and sizes
// correctly; offsets form the exact {0, size0, size0+size1, ...}
// sequence; every produced block exists in the store once this returns.
func StoreFile(srcPath, dstPath string, sizes <-chan int64, store BlockStore, manifests ManifestStore, archiver archive.Archiver, cfg StoreConfig) (StoreStats, error) {
	start := time.Now()
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	f, err := os.Open(srcPath)
	if err != nil {
		return StoreStats{}, errs.Wrap(errs.IOError, "opening source file", err)
	}
	defer f.Close()

	// Bounded queue of capacity W is the pipeline's sole backpressure
	// mechanism: the reader blocks once workers fall behind, bounding
	// in-flight content to roughly W*B*max_chunk_size bytes.
	queue := make(chan []rawChunk, cfg.Workers)
	acc := &accumulator{}
	errs_ := &errSlot{}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range queue {
				if errs_.get() != nil {
					continue // drain without doing more work once an error is latched
				}
				chunks := make([]blockstore.Chunk, len(batch))
				for i, raw := range batch {
					chunks[i] = blockstore.Chunk{
						Offset:  raw.offset,
						Hash:    block.Hash(raw.content),
						Content: raw.content,
					}
				}
				produced, err := store.MaybeStoreBatch(chunks)
				if err != nil {
					errs_.set(err)
					continue
				}
				acc.append(produced...)

				// Write-behind mirror to the optional cold tier: best
				// effort, never fatal to the foreground store (see
				// archive package docs). Only blocks this call actually
				// inserted are new content the archive hasn't seen yet.
				if archiver != nil {
					for i, p := range produced {
						if p.IsNew == block.NoveltyNew {
							if err := archiver.PutBlock(p.Hash, chunks[i].Content); err != nil {
								log.Printf("casstor: archive: storing block %s: %v", p.Hash, err)
							}
						}
					}
				}
			}
		}()
	}

	readErr := readChunksIntoQueue(f, sizes, cfg.BatchSize, queue)
	close(queue)
	wg.Wait()

	if readErr != nil {
		return StoreStats{}, readErr
	}
	if err := errs_.get(); err != nil {
		return StoreStats{}, err
	}

	sort.Slice(acc.blocks, func(i, j int) bool { return acc.blocks[i].Offset < acc.blocks[j].Offset })

	if !block.ManifestOrder(acc.blocks) {
		return StoreStats{}, errs.New(errs.IOError, "produced blocks do not form a contiguous manifest")
	}

	if err := manifests.Write(dstPath, acc.blocks); err != nil {
		return StoreStats{}, err
	}

	stats := StoreStats{BlockCount: len(acc.blocks), Elapsed: time.Since(start)}
	for _, b := range acc.blocks {
		stats.TotalBytes += b.Size
		switch b.IsNew {
		case block.NoveltyNew:
			stats.NewBytes += b.Size
		case block.NoveltyExisting:
			stats.ExistingBytes += b.Size
		}
	}
	return stats, nil
}

// readChunksIntoQueue is the single producer: it reads exactly size_i
// bytes for each size from sizes, groups B consecutive reads into a
// batch (the final batch may be short), and enqueues each batch. A short
// read (EOF before the expected size) stops the reader and enqueues
// whatever partial batch was accumulated.
func readChunksIntoQueue(f *os.File, sizes <-chan int64, batchSize int, queue chan<- []rawChunk) error {
	var offset int64
	var batch []rawChunk

	flush := func() {
		if len(batch) > 0 {
			queue <- batch
			batch = nil
		}
	}

	for size := range sizes {
		if size <= 0 {
			continue
		}
		buf := make([]byte, size)
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			batch = append(batch, rawChunk{offset: offset, content: buf[:n]})
			offset += int64(n)
			if len(batch) >= batchSize {
				flush()
			}
		}
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			flush()
			return nil
		}
		if err != nil {
			flush()
			return errs.Wrap(errs.IOError, "reading source file", err)
		}
	}
	flush()
	return nil
}
