// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package handler

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests drive /bin/sh")
	}
}

func TestRun(t *testing.T) {
	skipWithoutShell(t)
	root := t.TempDir()
	r := &Runner{Command: `printf '%s %s' "$BUCKET" "$KEY_PREFIX" > "$ROOT_FOLDER/env.txt"`}
	if err := r.Run(context.Background(), root, "bkt", "a/b"); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(root, "env.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), "bkt a/b"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRunCustomVars(t *testing.T) {
	skipWithoutShell(t)
	root := t.TempDir()
	r := &Runner{
		Command:   `printf '%s' "$THE_BUCKET" > "$WORKDIR/b.txt"`,
		RootVar:   "WORKDIR",
		BucketVar: "THE_BUCKET",
		PrefixVar: "THE_PREFIX",
	}
	if err := r.Run(context.Background(), root, "bkt", ""); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(root, "b.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), "bkt"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRunInheritsEnvironment(t *testing.T) {
	skipWithoutShell(t)
	t.Setenv("S3BRIDGE_TEST_INHERITED", "inherited-value")
	root := t.TempDir()
	r := &Runner{Command: `printf '%s' "$S3BRIDGE_TEST_INHERITED" > "$ROOT_FOLDER/e.txt"`}
	if err := r.Run(context.Background(), root, "b", ""); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(root, "e.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), "inherited-value"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRunExitStatus(t *testing.T) {
	skipWithoutShell(t)
	r := &Runner{Command: "exit 2"}
	err := r.Run(context.Background(), t.TempDir(), "b", "")
	if err == nil {
		t.Fatal("got no error for exit 2")
	}
	if !strings.Contains(err.Error(), "status 2") {
		t.Errorf("error %q does not name the exit status", err)
	}
}

func TestRunCancel(t *testing.T) {
	skipWithoutShell(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	// The handler traps nothing, so SIGTERM ends it well before the
	// sleep does.
	start := time.Now()
	err := (&Runner{Command: "sleep 30"}).Run(ctx, t.TempDir(), "b", "")
	if err == nil {
		t.Fatal("got no error for cancelled run")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("run took %s; SIGTERM was not forwarded", elapsed)
	}
}
