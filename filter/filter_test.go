// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package filter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grailbio/s3bridge/pull"
)

var testObjects = []pull.Object{
	{Key: "a/b/c.txt", Size: 12, LastModified: time.Unix(1700000000, 0).UTC(), ETag: `"aaa"`},
	{Key: "a/b/d.txt", Size: 0, LastModified: time.Unix(1700000100, 0).UTC(), ETag: `"bbb"`},
}

func TestEval(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		expr string
		want bool
	}{
		{"true", true},
		{"false", false},
		{"null", true},           // any non-false value passes
		{".", true},              // returning the input itself passes
		{"empty", false},         // no produced value skips
		{"length > 1", true}, // two objects
		{"length > 2", false},
		{`.[0].Key == "a/b/c.txt"`, true},
		{".[0].Size > 0", true},
		{".[1].Size > 0", false},
		{`[.[] | select(.Key | endswith(".txt"))] | length == 2`, true},
	} {
		pass, err := New(tc.expr).Eval(ctx, testObjects)
		if err != nil {
			t.Fatalf("%q: %v", tc.expr, err)
		}
		if got, want := pass, tc.want; got != want {
			t.Errorf("%q: got %v, want %v", tc.expr, got, want)
		}
	}
}

// Indexing an empty listing yields null, and jq's total ordering
// makes null > 0 the literal false, so the group is skipped.
func TestEvalEmptyListing(t *testing.T) {
	pass, err := New(".[0].Size > 0").Eval(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if pass {
		t.Error("comparison over an empty listing must skip")
	}
}

func TestEvalNil(t *testing.T) {
	var e *Evaluator
	pass, err := e.Eval(context.Background(), testObjects)
	if err != nil {
		t.Fatal(err)
	}
	if !pass {
		t.Error("nil evaluator must pass")
	}
}

func TestEvalParseError(t *testing.T) {
	e := New("][")
	if _, err := e.Eval(context.Background(), testObjects); err == nil {
		t.Fatal("got no error for unparsable expression")
	}
	// The compile result is memoised; a second call must fail the
	// same way.
	if _, err := e.Eval(context.Background(), testObjects); err == nil {
		t.Fatal("got no error on second evaluation")
	}
}

func TestEvalRuntimeError(t *testing.T) {
	if _, err := New(`error("boom")`).Eval(context.Background(), testObjects); err == nil {
		t.Fatal("got no error for failing expression")
	}
}

func TestEvalFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.jq")
	if err := os.WriteFile(path, []byte(".[0].Size > 0"), 0600); err != nil {
		t.Fatal(err)
	}
	pass, err := NewFromFile(path).Eval(context.Background(), testObjects)
	if err != nil {
		t.Fatal(err)
	}
	if !pass {
		t.Error("file-sourced filter must pass")
	}
}

func TestEvalFromMissingFile(t *testing.T) {
	e := NewFromFile(filepath.Join(t.TempDir(), "nope.jq"))
	if _, err := e.Eval(context.Background(), testObjects); err == nil {
		t.Fatal("got no error for missing filter file")
	}
}
