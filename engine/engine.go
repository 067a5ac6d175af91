// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package engine orchestrates one invocation of the bridge: it
// matches and groups event records, enumerates and filters each
// group's objects, materialises them under a scoped temp root, runs
// the handler, and uploads what changed. Groups run serially within a
// batch; a group's temp root never outlives the group.
package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/grailbio/s3bridge/event"
	"github.com/grailbio/s3bridge/filter"
	"github.com/grailbio/s3bridge/handler"
	"github.com/grailbio/s3bridge/match"
	"github.com/grailbio/s3bridge/plan"
	"github.com/grailbio/s3bridge/pull"
	"github.com/grailbio/s3bridge/push"
	"github.com/grailbio/s3bridge/sign"
)

// Engine executes event batches. All fields are immutable after
// construction; the compiled matcher, planner and filter are shared
// across batches.
type Engine struct {
	S3      s3iface.S3API
	Matcher *match.Matcher
	Planner *plan.Planner
	// Filter gates group execution; nil passes every group.
	Filter *filter.Evaluator
	Runner *handler.Runner
	// TargetBucket overrides the upload destination. Empty means the
	// group's source bucket.
	TargetBucket string
	// PullLimit and PushLimit bound transfer concurrency within a
	// group; zero selects the package defaults.
	PullLimit, PushLimit int
}

// group is one execution unit: one listing prefix, one handler
// invocation, one temp root.
type group struct {
	bucket string
	prefix string
}

// Execute runs one batch. Records that fail the key matcher are
// dropped; survivors coalesce into groups by (bucket, listing
// prefix) in first-appearance order. Groups run in sequence; once ctx
// is cancelled the in-flight group fails and pending groups are
// reported cancelled without starting.
func (e *Engine) Execute(ctx context.Context, records []event.Record) *BatchResult {
	groups := e.plan(records)
	res := &BatchResult{}
	for i, g := range groups {
		if err := ctx.Err(); err != nil {
			for _, rest := range groups[i:] {
				res.Groups = append(res.Groups, GroupResult{
					Bucket: rest.bucket,
					Prefix: rest.prefix,
					Err:    errors.E(errors.Canceled, "invocation cancelled", err),
				})
			}
			break
		}
		gr := e.run(ctx, g)
		if gr.Err != nil {
			log.Error.Printf("engine: group s3://%s/%s: %v", g.bucket, g.prefix, gr.Err)
		}
		res.Groups = append(res.Groups, gr)
	}
	return res
}

func (e *Engine) plan(records []event.Record) []group {
	var (
		groups []group
		seen   = make(map[group]bool)
	)
	for _, rec := range records {
		if !e.Matcher.Match(rec.Key) {
			continue
		}
		g := group{bucket: rec.Bucket, prefix: e.Planner.Prefix(rec.Key)}
		if seen[g] {
			continue
		}
		seen[g] = true
		groups = append(groups, g)
	}
	return groups
}

// run takes one group through the pipeline. The temp root is removed
// on every exit path; a removal failure is logged, never returned, so
// it cannot mask the group's outcome.
func (e *Engine) run(ctx context.Context, g group) GroupResult {
	res := GroupResult{Bucket: g.bucket, Prefix: g.prefix}

	objects, err := pull.List(ctx, e.S3, g.bucket, g.prefix)
	if err != nil {
		res.Err = err
		return res
	}
	pass, err := e.Filter.Eval(ctx, objects)
	if err != nil {
		res.Err = err
		return res
	}
	if !pass {
		res.Skipped = true
		return res
	}
	var selected []pull.Object
	for _, o := range objects {
		if e.Planner.Accept(o.Key) {
			selected = append(selected, o)
		}
	}

	root, err := os.MkdirTemp("", "s3bridge")
	if err != nil {
		res.Err = errors.E("creating temp root", err)
		return res
	}
	defer func() {
		if rmErr := os.RemoveAll(root); rmErr != nil {
			log.Error.Printf("engine: removing %s: %v", root, rmErr)
		}
	}()

	puller := &pull.Puller{Client: e.S3, Limit: e.PullLimit}
	if err := puller.Pull(ctx, g.bucket, g.prefix, selected, root); err != nil {
		res.Err = err
		return res
	}
	before, err := sign.Take(root)
	if err != nil {
		res.Err = err
		return res
	}
	if err := e.Runner.Run(ctx, root, g.bucket, g.prefix); err != nil {
		res.Err = err
		return res
	}
	after, err := sign.Take(root)
	if err != nil {
		res.Err = err
		return res
	}
	changes := sign.Diff(before, after)

	bucket := e.TargetBucket
	if bucket == "" {
		bucket = g.bucket
	}
	pusher := &push.Pusher{Client: e.S3, Limit: e.PushLimit}
	if err := pusher.Push(ctx, root, bucket, g.prefix, changes); err != nil {
		res.Err = err
		return res
	}
	res.Uploaded = len(changes)
	return res
}

// GroupResult is the outcome of one execution group.
type GroupResult struct {
	Bucket string
	Prefix string
	// Skipped is set when the execution filter rejected the group; no
	// handler ran and nothing was transferred.
	Skipped bool
	// Uploaded counts the files uploaded for a succeeded group.
	Uploaded int
	Err      error
}

// String renders the result for host logs.
func (r GroupResult) String() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("s3://%s/%s: failed: %v", r.Bucket, r.Prefix, r.Err)
	case r.Skipped:
		return fmt.Sprintf("s3://%s/%s: skipped", r.Bucket, r.Prefix)
	default:
		return fmt.Sprintf("s3://%s/%s: ok, %d uploaded", r.Bucket, r.Prefix, r.Uploaded)
	}
}

// BatchResult aggregates group outcomes in execution order.
type BatchResult struct {
	Groups []GroupResult
}

// Failed reports whether any group failed. Skipped groups are not
// failures.
func (r *BatchResult) Failed() bool {
	return r.Err() != nil
}

// Err returns the first group failure, or nil.
func (r *BatchResult) Err() error {
	for _, g := range r.Groups {
		if g.Err != nil {
			return g.Err
		}
	}
	return nil
}
