// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package push uploads the files a handler changed or created back to
// the target bucket at keys computed under the listing prefix.
package push

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"

	"github.com/grailbio/s3bridge/s3util"
	"github.com/grailbio/s3bridge/sign"
)

// DefaultLimit bounds concurrent uploads when Pusher.Limit is unset.
const DefaultLimit = 16

// Join joins a listing prefix and a relative path into an object key
// with exactly one "/" between a non-empty prefix and the path, and
// no leading "/" when the prefix is empty.
func Join(prefix, rel string) string {
	if prefix == "" {
		return rel
	}
	return strings.TrimSuffix(prefix, "/") + "/" + rel
}

// Pusher uploads changed files. Uploads within a call may proceed
// concurrently and complete in no particular order; already-uploaded
// files are not rolled back when a later one fails.
type Pusher struct {
	Client s3iface.S3API
	// Limit bounds upload concurrency; <= 0 selects DefaultLimit.
	Limit int
}

// Push uploads each change from under root to bucket. Content type is
// left to the SDK default.
func (p *Pusher) Push(ctx context.Context, root, bucket, prefix string, changes []sign.Signature) error {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	return traverse.Limit(limit).Each(len(changes), func(i int) error {
		return p.put(ctx, root, bucket, prefix, changes[i])
	})
}

func (p *Pusher) put(ctx context.Context, root, bucket, prefix string, sig sign.Signature) error {
	path := filepath.Join(root, filepath.FromSlash(sig.Path))
	f, err := os.Open(path)
	if err != nil {
		return errors.E(fmt.Sprintf("opening %s", path), err)
	}
	defer f.Close() // read-only
	key := Join(prefix, sig.Path)
	_, err = p.Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return s3util.E(s3util.CtxErr(ctx, err), fmt.Sprintf("put s3://%s/%s", bucket, key))
	}
	log.Debug.Printf("push: %s -> s3://%s/%s (%d bytes)", path, bucket, key, sig.Size)
	return nil
}
