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
	"bytes"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tlasica/casstor/errs"
	"github.com/tlasica/casstor/teststore"
)

// fixedSizes emits chunk sizes of size each over a channel until they sum
// to total (the last one may be shorter), mimicking what the CDC
// collaborator yields for a fixed-size workload.
func fixedSizes(total int64, size int64) <-chan int64 {
	out := make(chan int64)
	go func() {
		defer close(out)
		for total > 0 {
			s := size
			if s > total {
				s = total
			}
			out <- s
			total -= s
		}
	}()
	return out
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

// TestStoreEmptyFile covers S1: a 0-byte source produces an empty
// manifest and restoring it produces a 0-byte file.
func TestStoreEmptyFile(t *testing.T) {
	src := writeTempFile(t, nil)
	blocks := teststore.NewBlocks()
	manifests := teststore.NewManifests()

	stats, err := StoreFile(src, "empty.bin", fixedSizes(0, 4096), blocks, manifests, nil, DefaultStoreConfig())
	if err != nil {
		t.Fatalf("StoreFile: %v", err)
	}
	if stats.BlockCount != 0 || stats.TotalBytes != 0 {
		t.Fatalf("expected empty manifest, got %+v", stats)
	}

	dst := filepath.Join(t.TempDir(), "out.bin")
	rstats, err := RestoreFile("empty.bin", dst, blocks, manifests, DefaultRestoreConfig())
	if err != nil {
		t.Fatalf("RestoreFile: %v", err)
	}
	if rstats.BlockCount != 0 {
		t.Fatalf("expected 0 blocks restored, got %d", rstats.BlockCount)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("reading restored file: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty restored file, got %d bytes", len(got))
	}
}

// TestStoreSingleChunkDedup covers S2: a single 1KiB chunk of zeros is new
// on first write, a dedup hit (100% duplication) on the second.
func TestStoreSingleChunkDedup(t *testing.T) {
	data := make([]byte, 1024)
	src := writeTempFile(t, data)
	blocks := teststore.NewBlocks()
	manifests := teststore.NewManifests()

	stats, err := StoreFile(src, "a.bin", fixedSizes(1024, 1024), blocks, manifests, nil, DefaultStoreConfig())
	if err != nil {
		t.Fatalf("StoreFile (first): %v", err)
	}
	if stats.NewBytes != 1024 || stats.ExistingBytes != 0 {
		t.Fatalf("expected first write all-new, got %+v", stats)
	}

	stats2, err := StoreFile(src, "a.bin", fixedSizes(1024, 1024), blocks, manifests, nil, DefaultStoreConfig())
	if err != nil {
		t.Fatalf("StoreFile (second): %v", err)
	}
	if stats2.ExistingBytes != 1024 || stats2.NewBytes != 0 {
		t.Fatalf("expected second write all-existing, got %+v", stats2)
	}
	if stats2.DuplicationRatio() != 100 {
		t.Fatalf("expected 100%% duplication, got %.1f", stats2.DuplicationRatio())
	}
}

// TestRoundTripIdentity covers the round-trip-identity law and S5 (restore
// order stress): a multi-chunk file restores byte-identical regardless of
// fetch completion order under a worker pool.
func TestRoundTripIdentity(t *testing.T) {
	data := make([]byte, 1000*4096)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	src := writeTempFile(t, data)
	blocks := teststore.NewBlocks()
	manifests := teststore.NewManifests()

	cfg := StoreConfig{Workers: 4, BatchSize: 5}
	if _, err := StoreFile(src, "big.bin", fixedSizes(int64(len(data)), 4096), blocks, manifests, nil, cfg); err != nil {
		t.Fatalf("StoreFile: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "restored.bin")
	rcfg := RestoreConfig{Workers: 4, BatchSize: 5}
	stats, err := RestoreFile("big.bin", dst, blocks, manifests, rcfg)
	if err != nil {
		t.Fatalf("RestoreFile: %v", err)
	}
	if stats.BlockCount != 1000 {
		t.Fatalf("expected 1000 blocks, got %d", stats.BlockCount)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("reading restored file: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("restored content does not match source")
	}
}

// TestDistinctFilesRestoreIndependently covers S3: two files with
// (roughly) disjoint chunk sets both become fully durable, and each
// restores byte-identical independently of the other.
func TestDistinctFilesRestoreIndependently(t *testing.T) {
	dataA := make([]byte, 4096*4)
	dataB := make([]byte, 4096*4)
	rand.Read(dataA)
	rand.Read(dataB)

	srcA := writeTempFile(t, dataA)
	srcB := writeTempFile(t, dataB)
	blocks := teststore.NewBlocks()
	manifests := teststore.NewManifests()

	if _, err := StoreFile(srcA, "distinct-a.bin", fixedSizes(int64(len(dataA)), 4096), blocks, manifests, nil, DefaultStoreConfig()); err != nil {
		t.Fatalf("StoreFile A: %v", err)
	}
	if _, err := StoreFile(srcB, "distinct-b.bin", fixedSizes(int64(len(dataB)), 4096), blocks, manifests, nil, DefaultStoreConfig()); err != nil {
		t.Fatalf("StoreFile B: %v", err)
	}

	for path, want := range map[string][]byte{"distinct-a.bin": dataA, "distinct-b.bin": dataB} {
		manifestBlocks, err := manifests.Read(path)
		if err != nil {
			t.Fatalf("Read manifest %s: %v", path, err)
		}
		for _, b := range manifestBlocks {
			if !blocks.Exists(b.Hash) {
				t.Fatalf("expected block %s of %s to exist after both writes", b.Hash, path)
			}
		}

		dst := filepath.Join(t.TempDir(), "out.bin")
		if _, err := RestoreFile(path, dst, blocks, manifests, DefaultRestoreConfig()); err != nil {
			t.Fatalf("RestoreFile %s: %v", path, err)
		}
		got, err := os.ReadFile(dst)
		if err != nil {
			t.Fatalf("reading restored %s: %v", path, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("restored %s does not match source", path)
		}
	}
}

// TestOverlappingFilesDedup covers S4: File A = X||Y, File B = Y||X share
// chunks, so the second write has a non-zero duplication ratio.
func TestOverlappingFilesDedup(t *testing.T) {
	x := make([]byte, 8192)
	y := make([]byte, 8192)
	rand.Read(x)
	rand.Read(y)

	a := append(append([]byte{}, x...), y...)
	b := append(append([]byte{}, y...), x...)

	srcA := writeTempFile(t, a)
	srcB := writeTempFile(t, b)
	blocks := teststore.NewBlocks()
	manifests := teststore.NewManifests()

	if _, err := StoreFile(srcA, "a.bin", fixedSizes(int64(len(a)), 4096), blocks, manifests, nil, DefaultStoreConfig()); err != nil {
		t.Fatalf("StoreFile A: %v", err)
	}
	statsB, err := StoreFile(srcB, "b.bin", fixedSizes(int64(len(b)), 4096), blocks, manifests, nil, DefaultStoreConfig())
	if err != nil {
		t.Fatalf("StoreFile B: %v", err)
	}
	if statsB.ExistingBytes == 0 {
		t.Fatalf("expected some reused chunks between A and B, got %+v", statsB)
	}
}

// TestIdempotentManifestWrite covers law 5: two successive StoreFile calls
// for the same (src, dst) leave the manifest in the same state as one
// call, modulo reference counters (which this test leaves disabled).
func TestIdempotentManifestWrite(t *testing.T) {
	data := make([]byte, 4096*6)
	rand.Read(data)
	src := writeTempFile(t, data)
	blocks := teststore.NewBlocks()
	manifests := teststore.NewManifests()

	if _, err := StoreFile(src, "idem.bin", fixedSizes(int64(len(data)), 4096), blocks, manifests, nil, DefaultStoreConfig()); err != nil {
		t.Fatalf("StoreFile (first): %v", err)
	}
	first, err := manifests.Read("idem.bin")
	if err != nil {
		t.Fatalf("Read manifest (first): %v", err)
	}

	if _, err := StoreFile(src, "idem.bin", fixedSizes(int64(len(data)), 4096), blocks, manifests, nil, DefaultStoreConfig()); err != nil {
		t.Fatalf("StoreFile (second): %v", err)
	}
	second, err := manifests.Read("idem.bin")
	if err != nil {
		t.Fatalf("Read manifest (second): %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("expected same block count, got %d then %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Offset != second[i].Offset || first[i].Hash != second[i].Hash || first[i].Size != second[i].Size {
			t.Fatalf("manifest entry %d differs between writes: %+v vs %+v", i, first[i], second[i])
		}
	}
}

// TestMissingBlockFails covers S6: deleting a blob row causes restore to
// fail with a MissingBlock error naming the offset/hash.
func TestMissingBlockFails(t *testing.T) {
	data := make([]byte, 4096*3)
	rand.Read(data)
	src := writeTempFile(t, data)
	blocks := teststore.NewBlocks()
	manifests := teststore.NewManifests()

	if _, err := StoreFile(src, "k.bin", fixedSizes(int64(len(data)), 4096), blocks, manifests, nil, DefaultStoreConfig()); err != nil {
		t.Fatalf("StoreFile: %v", err)
	}

	manifestBlocks, err := manifests.Read("k.bin")
	if err != nil {
		t.Fatalf("Read manifest: %v", err)
	}
	blocks.Delete(manifestBlocks[1].Hash)

	dst := filepath.Join(t.TempDir(), "out.bin")
	_, err = RestoreFile("k.bin", dst, blocks, manifests, DefaultRestoreConfig())
	if err == nil {
		t.Fatalf("expected MissingBlock error, got nil")
	}
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.MissingBlock {
		t.Fatalf("expected MissingBlock error, got %v", err)
	}
}
