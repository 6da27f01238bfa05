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

package pipeline

import (
	"container/heap"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tlasica/casstor/block"
	"github.com/tlasica/casstor/errs"
)

// RestoreConfig tunes the restore pipeline's worker count W and fetch
// batch size B.
type RestoreConfig struct {
	Workers   int // W, default 4
	BatchSize int // B, default 5
}

func DefaultRestoreConfig() RestoreConfig {
	return RestoreConfig{Workers: 4, BatchSize: 5}
}

// RestoreStats is reported on completion.
type RestoreStats struct {
	TotalBytes     int64
	BlockCount     int
	PeakQueueDepth int
	Elapsed        time.Duration
}

func (s RestoreStats) ThroughputMBps() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.TotalBytes) / (1024 * 1024) / secs
}

func (s RestoreStats) String() string {
	return fmt.Sprintf(
		"blocks=%d total=%dB peak_queue=%d elapsed=%.2fs throughput=%.2fMB/s",
		s.BlockCount, s.TotalBytes, s.PeakQueueDepth, s.Elapsed.Seconds(), s.ThroughputMBps())
}

// taskPool is the shared FIFO of block descriptors drained by workers via
// atomic pop-N. A worker that pops fewer than B entries has drained the
// pool and exits.
type taskPool struct {
	mu    sync.Mutex
	items []block.Block
	next  int
}

func newTaskPool(items []block.Block) *taskPool {
	return &taskPool{items: items}
}

// popN returns up to n items in FIFO order. len(result) < n means the
// pool is drained.
func (p *taskPool) popN(n int) []block.Block {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.next >= len(p.items) {
		return nil
	}
	end := p.next + n
	if end > len(p.items) {
		end = len(p.items)
	}
	out := p.items[p.next:end]
	p.next = end
	return out
}

// fetched is one (offset, Block) entry in the priority queue, ordered by
// ascending offset.
type fetched struct {
	offset int64
	blk    block.Block
}

// fetchedHeap is a min-heap on offset. The restore design requires this
// queue to stay unbounded: bounding it can deadlock a worker that has a
// late-offset block to insert while the writer is still waiting, earlier
// in the heap, for a block that hasn't arrived yet.
type fetchedHeap []fetched

func (h fetchedHeap) Len() int            { return len(h) }
func (h fetchedHeap) Less(i, j int) bool  { return h[i].offset < h[j].offset }
func (h fetchedHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *fetchedHeap) Push(x interface{}) { *h = append(*h, x.(fetched)) }
func (h *fetchedHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// orderedQueue wraps fetchedHeap with the mutex/condvar a producer/consumer
// queue needs: workers push fetched blocks, the writer blocks on pop until
// the next one arrives.
type orderedQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	h        fetchedHeap
	closed   bool
	peakSize int
}

func newOrderedQueue() *orderedQueue {
	q := &orderedQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *orderedQueue) push(f fetched) {
	q.mu.Lock()
	heap.Push(&q.h, f)
	if len(q.h) > q.peakSize {
		q.peakSize = len(q.h)
	}
	q.cond.Signal()
	q.mu.Unlock()
}

// closeWhenDone marks the queue closed; pop then returns ok=false once it
// is empty instead of blocking forever.
func (q *orderedQueue) closeWhenDone() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// pop blocks until at least one entry is available or the queue is closed
// and empty.
func (q *orderedQueue) pop() (fetched, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.h) == 0 {
		if q.closed {
			return fetched{}, false
		}
		q.cond.Wait()
	}
	item := heap.Pop(&q.h).(fetched)
	return item, true
}

// reinsert pushes an item back without re-checking closed (used by the
// writer when it peeked an offset that isn't the one it wants yet).
func (q *orderedQueue) reinsert(f fetched) {
	q.mu.Lock()
	heap.Push(&q.h, f)
	q.mu.Unlock()
}

// RestoreFile loads the manifest for srcPath from manifests, fetches its
// blocks in parallel through store, and writes them to dstPath in strict
// offset order regardless of fetch completion order. The writer never
// sees an offset less than the one it expects; seeing a greater one means
// the expected block hasn't arrived yet and the writer spins (reinserting
// what it popped) until it does.
func RestoreFile(srcPath, dstPath string, store BlockStore, manifests ManifestStore, cfg RestoreConfig) (RestoreStats, error) {
	start := time.Now()
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	expected, err := manifests.Read(srcPath)
	if err != nil {
		return RestoreStats{}, err
	}

	pool := newTaskPool(expected)
	oq := newOrderedQueue()
	errs_ := &errSlot{}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				tasks := pool.popN(cfg.BatchSize)
				if len(tasks) == 0 {
					return
				}
				hashes := make([]string, len(tasks))
				for i, t := range tasks {
					hashes[i] = t.Hash
				}
				content, err := store.GetMany(hashes)
				if err != nil {
					errs_.set(err)
					return
				}
				for _, t := range tasks {
					data, ok := content[t.Hash]
					if !ok {
						errs_.set(errs.MissingBlockErr(t.Offset, t.Hash))
						return
					}
					got := block.Hash(data)
					if got != t.Hash {
						errs_.set(errs.HashMismatchErr(t.Offset, t.Hash, got))
						return
					}
					oq.push(fetched{offset: t.Offset, blk: block.Block{
						Offset: t.Offset, Size: t.Size, Hash: t.Hash, Content: data,
					}})
				}
				if len(tasks) < cfg.BatchSize {
					return // pool drained
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		oq.closeWhenDone()
	}()

	dst, err := os.Create(dstPath)
	if err != nil {
		return RestoreStats{}, errs.Wrap(errs.IOError, "creating destination file", err)
	}
	defer dst.Close()

	var written int64
	var totalBytes int64
	for _, want := range expected {
		for {
			if err := errs_.get(); err != nil {
				return RestoreStats{}, err
			}
			item, ok := oq.pop()
			if !ok {
				if err := errs_.get(); err != nil {
					return RestoreStats{}, err
				}
				return RestoreStats{}, errs.New(errs.MissingBlock, "restore queue drained before all offsets were written")
			}
			if item.offset < want.Offset {
				return RestoreStats{}, errs.New(errs.IOError, "restore received an offset earlier than expected; duplicate delivery")
			}
			if item.offset > want.Offset {
				oq.reinsert(item)
				continue
			}
			if _, err := dst.Write(item.blk.Content); err != nil {
				return RestoreStats{}, errs.Wrap(errs.IOError, "writing destination file", err)
			}
			totalBytes += item.blk.Size
			written++
			break
		}
	}

	if err := errs_.get(); err != nil {
		return RestoreStats{}, err
	}
	if written != int64(len(expected)) {
		return RestoreStats{}, errs.New(errs.MissingBlock, "restore did not write every expected offset")
	}

	return RestoreStats{
		TotalBytes:     totalBytes,
		BlockCount:     len(expected),
		PeakQueueDepth: oq.peakSize,
		Elapsed:        time.Since(start),
	}, nil
}
