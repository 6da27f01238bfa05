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

// Package chunk is the external CDC collaborator described in the design:
// the store pipeline only ever consumes a lazy sequence of chunk sizes
// from it, never its internals. It is backed by a real Rabin-fingerprint
// content-defined chunker (github.com/restic/chunker, the library restic
// itself uses) rather than a hand-rolled rolling hash.
package chunk

import (
	"io"
	"os"

	"github.com/restic/chunker"
)

// Default average/min/max block sizes, in bytes. restic/chunker targets
// an average chunk size and self-limits to [Min, Max]; 1<<20 average is a
// reasonable default for whole-file dedup workloads.
const (
	MinSize = 512 * 1024
	MaxSize = 8 * 1024 * 1024
)

// Pol is the irreducible polynomial used to seed the rolling hash. A fixed
// polynomial is adequate for a single-deployment dedup store; multi-tenant
// deployments wanting to avoid fingerprinting collisions across tenants
// would derive one per tenant with chunker.RandomPolynomial instead.
var Pol = chunker.Pol(0x3DA3358B4DC173)

// Sizes opens path and returns a channel of chunk sizes in file order,
// closed after the last chunk or on error, plus a one-shot error channel
// that receives exactly one value (nil on a clean EOF) once sizes is
// closed. Mirrors the CDC library's role in the original design: produce
// sizes, nothing else — but a genuine read error from the chunker must
// reach the caller rather than look like a clean, short end of input, or
// the store pipeline would silently write a truncated manifest. The file
// handle is closed internally once the channel is drained.
func Sizes(path string) (<-chan int64, <-chan error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan int64)
	errc := make(chan error, 1)
	go func() {
		defer f.Close()
		defer close(out)

		c := chunker.New(f, Pol)
		buf := make([]byte, MaxSize)
		for {
			chunk, err := c.Next(buf)
			if err == io.EOF {
				errc <- nil
				return
			}
			if err != nil {
				errc <- err
				return
			}
			out <- int64(chunk.Length)
		}
	}()
	return out, errc, nil
}
