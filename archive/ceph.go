//go:build ceph

/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

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

package archive

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ceph/go-ceph/rados"
)

func init() {
	Registry["ceph"] = func(raw json.RawMessage) (Archiver, error) {
		var cfg cephConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("archive: invalid ceph config: %w", err)
		}
		return newCephArchiver(cfg)
	}
}

type cephConfig struct {
	UserName    string `json:"username"`
	ClusterName string `json:"cluster"`
	ConfFile    string `json:"conf_file"`
	Pool        string `json:"pool"`
	Prefix      string `json:"prefix"`
}

type cephArchiver struct {
	cfg cephConfig

	mu    sync.Mutex
	conn  *rados.Conn
	ioctx *rados.IOContext
}

func newCephArchiver(cfg cephConfig) (Archiver, error) {
	conn, err := rados.NewConnWithClusterAndUser(cfg.ClusterName, cfg.UserName)
	if err != nil {
		return nil, fmt.Errorf("archive: ceph connect: %w", err)
	}
	if cfg.ConfFile != "" {
		if err := conn.ReadConfigFile(cfg.ConfFile); err != nil {
			return nil, fmt.Errorf("archive: ceph config file: %w", err)
		}
	} else if err := conn.ReadDefaultConfigFile(); err != nil {
		return nil, fmt.Errorf("archive: ceph default config: %w", err)
	}
	if err := conn.Connect(); err != nil {
		return nil, fmt.Errorf("archive: ceph connect: %w", err)
	}
	ioctx, err := conn.OpenIOContext(cfg.Pool)
	if err != nil {
		conn.Shutdown()
		return nil, fmt.Errorf("archive: ceph open pool %s: %w", cfg.Pool, err)
	}
	return &cephArchiver{cfg: cfg, conn: conn, ioctx: ioctx}, nil
}

func (a *cephArchiver) obj(hash string) string {
	if a.cfg.Prefix == "" {
		return hash
	}
	return a.cfg.Prefix + "/" + hash
}

func (a *cephArchiver) PutBlock(hash string, content []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ioctx.WriteFull(a.obj(hash), content); err != nil {
		return fmt.Errorf("archive: ceph put %s: %w", hash, err)
	}
	return nil
}

func (a *cephArchiver) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ioctx.Destroy()
	a.conn.Shutdown()
	return nil
}
