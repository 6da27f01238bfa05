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

// casstor is a content-addressed, deduplicating file storage client over
// a wide-column backend. See the package docs under block/, blockstore/,
// manifest/, pipeline/ for the store/restore contracts this CLI drives.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/tlasica/casstor/archive"
	"github.com/tlasica/casstor/blockstore"
	"github.com/tlasica/casstor/chunk"
	"github.com/tlasica/casstor/errs"
	"github.com/tlasica/casstor/gateway"
	"github.com/tlasica/casstor/manifest"
	"github.com/tlasica/casstor/pipeline"
	"github.com/tlasica/casstor/refcount"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return errs.ExitCode(errs.New(errs.BadInvocation, "missing verb"))
	}

	// Reject an unknown verb or a wrong argument count before dialing, so a
	// bad invocation exits 2 even when the backend is unreachable.
	argRange := map[string][2]int{"write": {3, 3}, "read": {3, 3}, "watch": {3, 3}, "stats": {2, 2}, "schema": {1, 2}}
	if r, ok := argRange[args[0]]; !ok || len(args) < r[0] || len(args) > r[1] {
		usage()
		badErr := errs.New(errs.BadInvocation, fmt.Sprintf("bad invocation of verb %q", args[0]))
		log.Printf("casstor: %v", badErr)
		return errs.ExitCode(badErr)
	}

	gw, err := dial()
	if err != nil {
		log.Printf("casstor: %v", err)
		return errs.ExitCode(err)
	}
	defer gw.Close()

	rc := refcount.New(gw, refcountEnabled())
	blocks := blockstore.New(gw)
	manifests := manifest.New(gw, rc)

	var opErr error
	switch verb := args[0]; verb {
	case "write":
		if len(args) != 3 {
			opErr = errs.New(errs.BadInvocation, "usage: casstor write <src> <dst>")
			break
		}
		archiver, aerr := openArchiver()
		if aerr != nil {
			opErr = aerr
			break
		}
		if archiver != nil {
			defer archiver.Close()
		}
		opErr = doWrite(args[1], args[2], blocks, manifests, archiver)
	case "read":
		if len(args) != 3 {
			opErr = errs.New(errs.BadInvocation, "usage: casstor read <src> <dst>")
			break
		}
		opErr = doRead(args[1], args[2], blocks, manifests)
	case "watch":
		if len(args) != 3 {
			opErr = errs.New(errs.BadInvocation, "usage: casstor watch <dir> <manifest-prefix>")
			break
		}
		archiver, aerr := openArchiver()
		if aerr != nil {
			opErr = aerr
			break
		}
		if archiver != nil {
			defer archiver.Close()
		}
		opErr = doWatch(args[1], args[2], blocks, manifests, archiver)
	case "stats":
		if len(args) != 2 {
			opErr = errs.New(errs.BadInvocation, "usage: casstor stats <path>")
			break
		}
		opErr = doStats(args[1], manifests)
	case "schema":
		if len(args) > 2 {
			opErr = errs.New(errs.BadInvocation, "usage: casstor schema [replication_factor]")
			break
		}
		rf := 1
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				opErr = errs.New(errs.BadInvocation, "usage: casstor schema [replication_factor]")
				break
			}
			rf = n
		}
		opErr = gw.EnsureSchema(rf)
	default:
		usage()
		opErr = errs.New(errs.BadInvocation, fmt.Sprintf("unrecognized verb %q", verb))
	}

	if opErr != nil {
		log.Printf("casstor: %v", opErr)
	}
	return errs.ExitCode(opErr)
}

func usage() {
	fmt.Fprintln(os.Stderr, `casstor: content-addressed, deduplicating file storage

usage:
  casstor write <src> <dst>              store local file src under manifest dst
  casstor read  <src> <dst>              restore manifest src to local file dst
  casstor watch <dir> <manifest-prefix>  store every file created/written under dir
  casstor stats <path>                   report size and block count for a manifest
  casstor schema [replication_factor]    create the keyspaces/tables if missing (default rf=1)

environment:
  CASSTOR_NODES          comma-separated backend contact points (default 127.0.0.1)
  CASSTOR_REFCOUNT       set to 1 to maintain blocks_usage reference counters (default off)
  CASSTOR_ARCHIVE_BACKEND  optional cold-tier backend name ("s3" or "ceph"), off by default
  CASSTOR_ARCHIVE_CONFIG   path to that backend's JSON config file`)
}

// dial opens the gateway against CASSTOR_NODES, the one piece of ambient
// configuration this CLI reads from the environment rather than flags.
func dial() (*gateway.Gateway, error) {
	nodes := strings.Split(os.Getenv("CASSTOR_NODES"), ",")
	if len(nodes) == 1 && nodes[0] == "" {
		nodes = []string{"127.0.0.1"}
	}
	return gateway.Dial(gateway.DefaultConfig(nodes))
}

// refcountEnabled is optional bookkeeping (see refcount package), off by
// default and switched on only for operators who want a reference count
// to feed an eventual GC sweep.
func refcountEnabled() bool {
	return os.Getenv("CASSTOR_REFCOUNT") == "1"
}

// openArchiver builds the optional cold-tier Archiver from
// CASSTOR_ARCHIVE_BACKEND / CASSTOR_ARCHIVE_CONFIG, the same
// BackendRegistry-style JSON config the teacher's own persistence
// factories consume. Returns (nil, nil) when the backend is unset — the
// archive tier is disabled by default.
func openArchiver() (archive.Archiver, error) {
	backend := os.Getenv("CASSTOR_ARCHIVE_BACKEND")
	if backend == "" {
		return nil, nil
	}
	var raw json.RawMessage
	if path := os.Getenv("CASSTOR_ARCHIVE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Wrap(errs.IOError, "reading archive config", err)
		}
		raw = data
	}
	a, err := archive.Open(backend, raw)
	if err != nil {
		return nil, errs.Wrap(errs.BadInvocation, "opening archive backend", err)
	}
	return a, nil
}

func doWrite(src, dst string, blocks *blockstore.Store, manifests *manifest.Store, archiver archive.Archiver) error {
	opID := gateway.NewOpID()
	sizes, sizeErrc, err := chunk.Sizes(src)
	if err != nil {
		return errs.Wrap(errs.IOError, "opening source file", err)
	}
	stats, err := pipeline.StoreFile(src, dst, sizes, blocks, manifests, archiver, pipeline.DefaultStoreConfig())
	if err != nil {
		return err
	}
	// sizes is already closed by the time StoreFile returns, and the
	// chunker sends its one error (or nil) before closing it, so this
	// never blocks.
	if cerr := <-sizeErrc; cerr != nil {
		return errs.Wrap(errs.IOError, "chunking source file", cerr)
	}
	fmt.Println(stats)
	log.Printf("casstor: op %s store %s -> %s: %s", opID, src, dst, stats)
	return nil
}

func doRead(src, dst string, blocks *blockstore.Store, manifests *manifest.Store) error {
	opID := gateway.NewOpID()
	stats, err := pipeline.RestoreFile(src, dst, blocks, manifests, pipeline.DefaultRestoreConfig())
	if err != nil {
		return err
	}
	fmt.Println(stats)
	log.Printf("casstor: op %s restore %s -> %s: %s", opID, src, dst, stats)
	return nil
}

func doStats(path string, manifests *manifest.Store) error {
	blks, err := manifests.Read(path)
	if err != nil {
		return err
	}
	var total int64
	for _, b := range blks {
		total += b.Size
	}
	fmt.Printf("path=%s blocks=%d bytes=%d\n", path, len(blks), total)
	return nil
}

// doWatch mirrors each regular file under dir into a write of
// <prefix>/<basename>, using fsnotify the way a hot-directory ingest
// feature would: no polling, react to kernel events directly. It stores
// the file on every create or write event it receives for it, so a file
// written in several steps is stored once per event; it does not wait
// for the writer to close the file.
func doWatch(dir, prefix string, blocks *blockstore.Store, manifests *manifest.Store, archiver archive.Archiver) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(errs.IOError, "starting filesystem watcher", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return errs.Wrap(errs.IOError, "watching directory "+dir, err)
	}

	log.Printf("casstor: watching %s, writing to manifests under %s", dir, prefix)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil || info.IsDir() {
				continue
			}
			dst := filepath.Join(prefix, filepath.Base(event.Name))
			if err := doWrite(event.Name, dst, blocks, manifests, archiver); err != nil {
				log.Printf("casstor: watch: storing %s: %v", event.Name, err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("casstor: watch: %v", err)
		}
	}
}
