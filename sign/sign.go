// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package sign computes content signatures over the files of a
// materialisation root, before and after a handler run, and diffs the
// two snapshots to decide what gets uploaded.
package sign

import (
	"crypto"
	_ "crypto/sha1" // the snapshot digest
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/grailbio/base/digest"
	"github.com/grailbio/base/errors"
)

var digester = digest.Digester(crypto.SHA1)

// Signature records the content identity of one regular file:
// its path relative to the snapshot root (slash-separated), its size,
// and a 160-bit digest of its complete contents.
type Signature struct {
	Path   string
	Size   int64
	Digest digest.Digest
}

// Snapshot is the set of signatures of a root, keyed by relative
// path. Presence in the map is presence on disk.
type Snapshot map[string]Signature

// Take walks root in lexical order and signs every regular file.
// Symbolic links and directories are not signed; links are not
// followed.
func Take(root string) (Snapshot, error) {
	snap := make(Snapshot)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		sig, err := sign(path)
		if err != nil {
			return err
		}
		sig.Path = filepath.ToSlash(rel)
		snap[sig.Path] = sig
		return nil
	})
	if err != nil {
		return nil, errors.E(fmt.Sprintf("signing %s", root), err)
	}
	return snap, nil
}

func sign(path string) (Signature, error) {
	f, err := os.Open(path)
	if err != nil {
		return Signature{}, err
	}
	defer f.Close() // read-only
	w := digester.NewWriter()
	n, err := io.Copy(w, f)
	if err != nil {
		return Signature{}, err
	}
	return Signature{Size: n, Digest: w.Digest()}, nil
}

// Diff returns the signatures present in after that are absent from
// before or differ in digest, sorted by path. Files present only in
// before (deleted by the handler) are not reported: the bridge never
// deletes from S3.
func Diff(before, after Snapshot) []Signature {
	var changes []Signature
	for path, sig := range after {
		if prev, ok := before[path]; ok && prev.Digest == sig.Digest {
			continue
		}
		changes = append(changes, sig)
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}
