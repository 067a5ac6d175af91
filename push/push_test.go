// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package push_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/s3bridge/internal/fakes3"
	"github.com/grailbio/s3bridge/push"
	"github.com/grailbio/s3bridge/sign"
)

func TestJoin(t *testing.T) {
	for _, tc := range []struct {
		prefix, rel, want string
	}{
		{"", "out.txt", "out.txt"},
		{"", "sub/out.txt", "sub/out.txt"},
		{"a/b", "out.txt", "a/b/out.txt"},
		{"a/b/", "out.txt", "a/b/out.txt"},
		{"a", "sub/out.txt", "a/sub/out.txt"},
	} {
		if got, want := push.Join(tc.prefix, tc.rel), tc.want; got != want {
			t.Errorf("prefix %q rel %q: got %q, want %q", tc.prefix, tc.rel, got, want)
		}
	}
}

func TestPush(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "out.txt"), []byte("result"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "deep.txt"), []byte("nested"), 0600); err != nil {
		t.Fatal(err)
	}
	snap, err := sign.Take(root)
	if err != nil {
		t.Fatal(err)
	}
	changes := sign.Diff(sign.Snapshot{}, snap)

	client := fakes3.NewClient("dst")
	p := &push.Pusher{Client: client}
	if err := p.Push(context.Background(), root, "dst", "a/b", changes); err != nil {
		t.Fatal(err)
	}

	puts := client.Puts()
	if got, want := len(puts), 2; got != want {
		t.Fatalf("got %d puts, want %d", got, want)
	}
	if body, ok := client.Object("dst", "a/b/out.txt"); !ok || string(body) != "result" {
		t.Errorf("a/b/out.txt: got %q, %v", body, ok)
	}
	if body, ok := client.Object("dst", "a/b/sub/deep.txt"); !ok || string(body) != "nested" {
		t.Errorf("a/b/sub/deep.txt: got %q, %v", body, ok)
	}
}

func TestPushNothing(t *testing.T) {
	client := fakes3.NewClient("dst")
	p := &push.Pusher{Client: client}
	if err := p.Push(context.Background(), t.TempDir(), "dst", "", nil); err != nil {
		t.Fatal(err)
	}
	if got := len(client.Puts()); got != 0 {
		t.Errorf("got %d puts, want 0", got)
	}
}

func TestPushMissingFile(t *testing.T) {
	client := fakes3.NewClient("dst")
	p := &push.Pusher{Client: client}
	changes := []sign.Signature{{Path: "absent.txt"}}
	if err := p.Push(context.Background(), t.TempDir(), "dst", "", changes); err == nil {
		t.Fatal("got no error pushing a missing file")
	}
}
