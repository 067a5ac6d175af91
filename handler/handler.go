// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package handler spawns the user-provided handler program through
// the platform shell and waits for it to exit.
package handler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Default environment variable names exposed to the handler.
const (
	DefaultRootVar   = "ROOT_FOLDER"
	DefaultBucketVar = "BUCKET"
	DefaultPrefixVar = "KEY_PREFIX"
)

// Runner invokes a handler shell expression. The child inherits the
// parent environment augmented with the materialisation root, source
// bucket and listing prefix under configurable variable names.
type Runner struct {
	// Command is the shell expression to run.
	Command string
	// RootVar, BucketVar and PrefixVar override the default names of
	// the variables exposed to the handler.
	RootVar, BucketVar, PrefixVar string
}

func name(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Run executes the handler for one group and waits for it to exit.
// Standard input is empty; standard output and error are inherited.
// When ctx is cancelled the child is sent SIGTERM and Run still waits
// for it to exit. A non-zero exit status is a handler failure.
func (r *Runner) Run(ctx context.Context, root, bucket, prefix string) error {
	shell, flag := "/bin/sh", "-c"
	if runtime.GOOS == "windows" {
		shell, flag = "cmd", "/C"
	}
	cmd := exec.CommandContext(ctx, shell, flag, r.Command)
	cmd.Env = append(os.Environ(),
		name(r.RootVar, DefaultRootVar)+"="+root,
		name(r.BucketVar, DefaultBucketVar)+"="+bucket,
		name(r.PrefixVar, DefaultPrefixVar)+"="+prefix,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Cancel = func() error {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	log.Debug.Printf("handler: %s (root %s)", r.Command, root)
	err := cmd.Run()
	if ctx.Err() != nil {
		return errors.E(errors.Canceled, "handler interrupted", ctx.Err())
	}
	if exit, ok := err.(*exec.ExitError); ok {
		return errors.E(fmt.Sprintf("handler exited with status %d", exit.ExitCode()))
	}
	if err != nil {
		return errors.E("spawning handler", err)
	}
	return nil
}
