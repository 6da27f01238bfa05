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

package chunk

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
)

// TestSizesCoverWholeFile checks that the sizes yielded by Sizes sum to the
// exact length of the source file and that the error channel reports a
// clean nil once the size channel closes.
func TestSizesCoverWholeFile(t *testing.T) {
	data := make([]byte, 3*MinSize)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	path := filepath.Join(t.TempDir(), "src.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}

	sizes, errc, err := Sizes(path)
	if err != nil {
		t.Fatalf("Sizes: %v", err)
	}

	var got []int64
	for size := range sizes {
		if size > MaxSize {
			t.Fatalf("chunk larger than MaxSize: %d", size)
		}
		got = append(got, size)
	}
	for i, size := range got {
		if i < len(got)-1 && size < MinSize {
			t.Fatalf("non-final chunk smaller than MinSize: %d", size)
		}
	}
	var total int64
	for _, size := range got {
		total += size
	}
	if total != int64(len(data)) {
		t.Fatalf("expected sizes to sum to %d, got %d", len(data), total)
	}
	if len(got) == 0 {
		t.Fatalf("expected at least one chunk from a non-empty file")
	}
	if err := <-errc; err != nil {
		t.Fatalf("expected a clean nil on the error channel, got %v", err)
	}
}

// TestSizesEmptyFile covers S1: an empty source yields zero chunk sizes and
// a clean nil error.
func TestSizesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}

	sizes, errc, err := Sizes(path)
	if err != nil {
		t.Fatalf("Sizes: %v", err)
	}
	for range sizes {
		t.Fatalf("expected no chunks from an empty file")
	}
	if err := <-errc; err != nil {
		t.Fatalf("expected a clean nil on the error channel, got %v", err)
	}
}

// TestSizesMissingFile covers the IOError path at the Sizes boundary
// itself: a nonexistent source fails before any goroutine starts.
func TestSizesMissingFile(t *testing.T) {
	_, _, err := Sizes(filepath.Join(t.TempDir(), "does-not-exist.bin"))
	if err == nil {
		t.Fatalf("expected an error opening a nonexistent file")
	}
}
