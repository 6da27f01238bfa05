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

// Package archive is the optional, off-by-default cold-storage tier: a
// write-behind mirror of newly stored blocks to S3 or Ceph/RADOS for
// out-of-band backup and export. It is never consulted during restore —
// the Block Store in Cassandra remains the single source of truth — so a
// failure to archive is logged, never fatal.
//
package archive

import "encoding/json"

// Archiver mirrors blocks to a cold tier, keyed by hash exactly like the
// Block Store itself.
type Archiver interface {
	PutBlock(hash string, content []byte) error
	Close() error
}

// Factory builds an Archiver from a JSON configuration blob.
type Factory func(raw json.RawMessage) (Archiver, error)

// Registry maps a backend name ("s3", "ceph") to its Factory. Registered
// by each backend's own init().
var Registry = map[string]Factory{}

// Open builds the configured Archiver, or nil if backend is empty — the
// archive tier is disabled by default.
func Open(backend string, raw json.RawMessage) (Archiver, error) {
	if backend == "" {
		return nil, nil
	}
	factory, ok := Registry[backend]
	if !ok {
		return nil, &unknownBackendError{backend}
	}
	return factory(raw)
}

type unknownBackendError struct{ backend string }

func (e *unknownBackendError) Error() string {
	return "archive: unknown backend " + e.backend
}
