// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package plan computes, from a trigger key, the S3 prefix to
// enumerate and the per-key predicate selecting which enumerated
// objects are pulled to local disk.
package plan

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/grailbio/base/errors"
)

// Planner derives listing prefixes and applies the pull filter. It is
// immutable after construction and safe for concurrent use.
type Planner struct {
	parents int
	accept  []*regexp.Regexp
}

// New returns a Planner that climbs parentDirs segments above a
// trigger key's folder when computing the listing prefix, and accepts
// keys matching at least one of the matchKeys expressions. An empty
// matchKeys list accepts every key.
func New(parentDirs int, matchKeys []string) (*Planner, error) {
	if len(matchKeys) == 0 {
		matchKeys = []string{".*"}
	}
	p := &Planner{parents: parentDirs}
	for _, pattern := range matchKeys {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("compiling pull pattern %q", pattern), err)
		}
		p.accept = append(p.accept, re)
	}
	return p, nil
}

// Prefix returns the listing prefix for the given trigger key: the
// key's folder with the last parentDirs segments dropped, clamped at
// the bucket root. A negative parentDirs always selects the whole
// bucket (empty prefix). The returned prefix carries no trailing
// slash.
func (p *Planner) Prefix(key string) string {
	if p.parents < 0 {
		return ""
	}
	segments := strings.Split(key, "/")
	folder := segments[:len(segments)-1]
	keep := len(folder) - p.parents
	if keep < 0 {
		keep = 0
	}
	return strings.Join(folder[:keep], "/")
}

// Accept reports whether an enumerated key should be downloaded.
func (p *Planner) Accept(key string) bool {
	for _, re := range p.accept {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}
