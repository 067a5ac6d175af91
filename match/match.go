// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package match decides which object keys are eligible to trigger an
// invocation. Patterns are regular expressions; the older glob
// dialect is supported by rewriting it to an anchored regexp.
package match

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/grailbio/base/errors"
)

// Matcher evaluates a compiled key pattern. The zero Matcher, and a
// Matcher compiled from the empty pattern, match every key.
type Matcher struct {
	re *regexp.Regexp
}

// New compiles pattern as a regular expression. An invalid pattern is
// a configuration error and should fail the process at startup.
func New(pattern string) (*Matcher, error) {
	if pattern == "" {
		return &Matcher{}, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("compiling key pattern %q", pattern), err)
	}
	return &Matcher{re: re}, nil
}

// FromGlob compiles a pattern in the retired glob dialect, where "*"
// matches any run of characters excluding "/". The glob is rewritten
// to an anchored regexp: every non-"*" character is escaped and "*"
// becomes "[^/]*".
func FromGlob(pattern string) (*Matcher, error) {
	if pattern == "" {
		return &Matcher{}, nil
	}
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		if r == '*' {
			b.WriteString("[^/]*")
		} else {
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return New(b.String())
}

// Match reports whether key is eligible to trigger an invocation.
func (m *Matcher) Match(key string) bool {
	if m == nil || m.re == nil {
		return true
	}
	return m.re.MatchString(key)
}
