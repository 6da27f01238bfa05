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

package gateway

import "fmt"

// EnsureSchema creates the two keyspaces and three tables described in
// the external interfaces if they don't already exist. It is not part of
// the core write/restore contract — operators are free to provision the
// schema themselves — but a fresh deployment needs somewhere to start
// from.
func (g *Gateway) EnsureSchema(replicationFactor int) error {
	ddls := []string{
		fmt.Sprintf(`create keyspace if not exists %s
			with replication = {'class': 'SimpleStrategy', 'replication_factor': %d}`,
			g.cfg.DataKS, replicationFactor),
		fmt.Sprintf(`create keyspace if not exists %s
			with replication = {'class': 'SimpleStrategy', 'replication_factor': %d}`,
			g.cfg.MetaKS, replicationFactor),
		fmt.Sprintf(`create table if not exists %s.blocks (
			block_hash text primary key,
			block_size int,
			content blob)`, g.cfg.DataKS),
		fmt.Sprintf(`create table if not exists %s.files (
			path text,
			block_offset bigint,
			block_hash text,
			block_size int,
			primary key (path, block_offset))
			with clustering order by (block_offset asc)`, g.cfg.MetaKS),
		fmt.Sprintf(`create table if not exists %s.blocks_usage (
			block_hash text,
			block_size int,
			num_ref counter,
			primary key (block_hash, block_size))`, g.cfg.MetaKS),
	}
	for _, ddl := range ddls {
		if err := g.Exec(ddl, ConsistencyQuorum); err != nil {
			return err
		}
	}
	return nil
}
