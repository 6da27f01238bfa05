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

// Package gateway is the thin capability layer over the backend session:
// prepared statements, batched writes, consistency-tagged reads. Upper
// layers (blockstore, manifest) never see gocql types directly; they call
// the typed wrappers here. The gateway itself never retries — it only
// classifies what the driver handed back.
package gateway

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/tlasica/casstor/errs"
)

// Consistency mirrors the policy in the design: manifest writes use
// quorum, block writes use the cluster default, block existence checks
// and restore reads use a single replica.
type Consistency uint8

const (
	ConsistencyDefault Consistency = iota
	ConsistencyQuorum
	ConsistencyOne
)

func (c Consistency) level() gocql.Consistency {
	switch c {
	case ConsistencyQuorum:
		return gocql.Quorum
	case ConsistencyOne:
		return gocql.One
	default:
		return gocql.One
	}
}

// Config names the two keyspaces the gateway addresses and the contact
// points to dial.
type Config struct {
	Nodes     []string
	DataKS    string // keyspace holding <data_ks>.blocks
	MetaKS    string // keyspace holding <meta_ks>.files, <meta_ks>.blocks_usage
	Timeout   time.Duration
	PageSize  int
}

// DefaultConfig returns sane defaults, overridable field by field.
func DefaultConfig(nodes []string) Config {
	return Config{
		Nodes:    nodes,
		DataKS:   "casstor_data",
		MetaKS:   "casstor_meta",
		Timeout:  10 * time.Second,
		PageSize: 5000,
	}
}

// Gateway owns the gocql session and exposes the capability set the
// design calls for: prepare, execute, batch, batch_add, execute_batch.
// gocql sessions are themselves safe for concurrent use by many
// goroutines, which is what both pipelines rely on to avoid a
// per-worker-session scheme.
type Gateway struct {
	cfg     Config
	session *gocql.Session
}

// Dial opens one shared session against the configured nodes. Keyspace is
// not selected at the cluster level: every query qualifies its own
// keyspace, since blocks and files/manifests live in two different ones.
func Dial(cfg Config) (*Gateway, error) {
	cluster := gocql.NewCluster(cfg.Nodes...)
	cluster.Timeout = cfg.Timeout
	cluster.Consistency = gocql.One
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, errs.Wrap(errs.BackendUnavailable, "connecting to backend", err)
	}
	return &Gateway{cfg: cfg, session: session}, nil
}

func (g *Gateway) Close() {
	g.session.Close()
}

func (g *Gateway) DataKS() string { return g.cfg.DataKS }
func (g *Gateway) MetaKS() string { return g.cfg.MetaKS }

// Classify turns a gocql error into the retryable/fatal kinds the design
// requires. The gateway does not retry itself; callers decide.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch err {
	case gocql.ErrTimeoutNoResponse, gocql.ErrConnectionClosed:
		return errs.Wrap(errs.BackendTransient, "backend request timed out", err)
	case gocql.ErrNoConnections, gocql.ErrUnavailable:
		return errs.Wrap(errs.BackendUnavailable, "backend unavailable", err)
	}
	if _, ok := err.(*gocql.RequestErrWriteTimeout); ok {
		return errs.Wrap(errs.BackendTransient, "write timeout", err)
	}
	if _, ok := err.(*gocql.RequestErrReadTimeout); ok {
		return errs.Wrap(errs.BackendTransient, "read timeout", err)
	}
	return errs.Wrap(errs.BackendUnavailable, "backend request failed", err)
}

// Exec runs a statement at the given consistency, binding params.
func (g *Gateway) Exec(stmt string, consistency Consistency, params ...interface{}) error {
	q := g.session.Query(stmt, params...).Consistency(consistency.level())
	if err := q.Exec(); err != nil {
		return Classify(err)
	}
	return nil
}

// Row runs a single-row query and scans the result into dest, returning
// (false, nil) when no row matched.
func (g *Gateway) Row(stmt string, consistency Consistency, params []interface{}, dest ...interface{}) (bool, error) {
	q := g.session.Query(stmt, params...).Consistency(consistency.level())
	if err := q.Scan(dest...); err != nil {
		if err == gocql.ErrNotFound {
			return false, nil
		}
		return false, Classify(err)
	}
	return true, nil
}

// Iter runs a paged query and returns the gocql iterator directly; callers
// that need ordered, unbounded scans (manifest read) drive it themselves.
func (g *Gateway) Iter(stmt string, consistency Consistency, params ...interface{}) *gocql.Iter {
	q := g.session.Query(stmt, params...).Consistency(consistency.level())
	if g.cfg.PageSize > 0 {
		q = q.PageSize(g.cfg.PageSize)
	}
	return q.Iter()
}

// Batch is a handle to an in-progress logged batch; LoggedBatch is used
// (not Unlogged) because the design treats "all manifest rows for a path"
// as atomic from a reader's perspective.
type Batch struct {
	b            *gocql.Batch
	consistency  Consistency
}

// NewBatch starts an empty batch at the given consistency.
func (g *Gateway) NewBatch(consistency Consistency) *Batch {
	b := g.session.NewBatch(gocql.LoggedBatch)
	b.Cons = consistency.level()
	return &Batch{b: b, consistency: consistency}
}

// Add appends one bound statement to the batch.
func (b *Batch) Add(stmt string, params ...interface{}) {
	b.b.Query(stmt, params...)
}

// Len reports how many statements are queued.
func (b *Batch) Len() int { return b.b.Size() }

// ExecBatch sends the accumulated batch in one round trip.
func (g *Gateway) ExecBatch(b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	if err := g.session.ExecuteBatch(b.b); err != nil {
		return Classify(err)
	}
	return nil
}

// Qualify renders "<keyspace>.<table>" the way every statement in this
// package must: never string-formatted user data, only static identifiers
// composed once at startup.
func Qualify(keyspace, table string) string {
	return fmt.Sprintf("%s.%s", keyspace, table)
}
