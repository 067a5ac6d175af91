// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package plan

import "testing"

func TestPrefix(t *testing.T) {
	for _, tc := range []struct {
		parents int
		key     string
		want    string
	}{
		{0, "x/y/z/k", "x/y/z"},
		{1, "x/y/z/k", "x/y"},
		{2, "x/y/z/k", "x"},
		{3, "x/y/z/k", ""},
		{5, "x/y/z/k", ""},
		{-1, "x/y/z/k", ""},
		{0, "k", ""},
		{1, "a/b/c.txt", "a"},
	} {
		p, err := New(tc.parents, nil)
		if err != nil {
			t.Fatal(err)
		}
		if got, want := p.Prefix(tc.key), tc.want; got != want {
			t.Errorf("parents %d key %q: got %q, want %q", tc.parents, tc.key, got, want)
		}
	}
}

func TestAccept(t *testing.T) {
	p, err := New(0, []string{`\.csv$`, `\.json$`})
	if err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		key  string
		want bool
	}{
		{"a/b.csv", true},
		{"a/b.json", true},
		{"a/b.txt", false},
	} {
		if got, want := p.Accept(tc.key), tc.want; got != want {
			t.Errorf("%q: got %v, want %v", tc.key, got, want)
		}
	}
}

func TestAcceptDefault(t *testing.T) {
	p, err := New(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Accept("any/key/whatsoever") {
		t.Error("default planner must accept every key")
	}
}

func TestNewInvalid(t *testing.T) {
	if _, err := New(0, []string{"("}); err == nil {
		t.Error("got no error for invalid pull pattern")
	}
}
