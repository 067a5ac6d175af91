// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package filter gates group execution with a user-supplied jq
// expression evaluated over the enumerated objects.
package filter

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/itchyny/gojq"

	"github.com/grailbio/s3bridge/pull"
)

// Evaluator evaluates a jq expression over the objects enumerated
// for a group. The expression source is either inline text or a file
// path; it is compiled once per process, on first use. A nil
// Evaluator passes every group.
type Evaluator struct {
	source string
	path   string

	once       sync.Once
	code       *gojq.Code
	compileErr error
}

// New returns an Evaluator for an inline jq expression.
func New(expr string) *Evaluator {
	return &Evaluator{source: expr}
}

// NewFromFile returns an Evaluator reading its jq expression from a
// UTF-8 file at path.
func NewFromFile(path string) *Evaluator {
	return &Evaluator{path: path}
}

func (e *Evaluator) compile() {
	src := e.source
	if e.path != "" {
		data, err := os.ReadFile(e.path)
		if err != nil {
			e.compileErr = errors.E("reading execution filter", err)
			return
		}
		src = string(data)
	}
	query, err := gojq.Parse(src)
	if err != nil {
		e.compileErr = errors.E(errors.Invalid, fmt.Sprintf("parsing execution filter %q", src), err)
		return
	}
	code, err := gojq.Compile(query)
	if err != nil {
		e.compileErr = errors.E(errors.Invalid, fmt.Sprintf("compiling execution filter %q", src), err)
		return
	}
	e.code = code
}

// Eval runs the expression over objects, serialised as an array of S3
// Object API-shaped values (Key, Size, LastModified, ETag). The group
// passes unless the first produced value is the literal false. An
// expression producing no values skips the group. Evaluation errors
// fail the group.
func (e *Evaluator) Eval(ctx context.Context, objects []pull.Object) (bool, error) {
	if e == nil {
		return true, nil
	}
	e.once.Do(e.compile)
	if e.compileErr != nil {
		return false, e.compileErr
	}
	input := make([]interface{}, len(objects))
	for i, o := range objects {
		input[i] = map[string]interface{}{
			"Key":          o.Key,
			"Size":         int(o.Size),
			"LastModified": o.LastModified.UTC().Format(time.RFC3339Nano),
			"ETag":         o.ETag,
		}
	}
	iter := e.code.RunWithContext(ctx, input)
	v, ok := iter.Next()
	if !ok {
		// jq empty: produced no value at all.
		return false, nil
	}
	if err, isErr := v.(error); isErr {
		return false, errors.E("evaluating execution filter", err)
	}
	return v != false, nil
}
