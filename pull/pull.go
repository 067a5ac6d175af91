// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package pull enumerates the objects under a listing prefix and
// materialises the selected ones under a local root, preserving key
// paths relative to the prefix.
package pull

import (
	"context"
	"fmt"
	"io"
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
)

// DefaultLimit bounds concurrent downloads when Puller.Limit is
// unset. It is a tuning knob, not a correctness property.
const DefaultLimit = 16

// Puller downloads objects into a materialisation root. All
// downloads of a call complete (or the call fails) before Pull
// returns; callers may sign the tree immediately after.
type Puller struct {
	Client s3iface.S3API
	// Limit bounds download concurrency; <= 0 selects DefaultLimit.
	Limit int
}

// Pull materialises each object under root at its key's path
// relative to prefix, creating parent directories as needed. Zero
// byte folder-marker keys (trailing "/") are skipped. Any download
// failure fails the whole pull.
func (p *Puller) Pull(ctx context.Context, bucket, prefix string, objects []Object, root string) error {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	return traverse.Limit(limit).Each(len(objects), func(i int) error {
		if strings.HasSuffix(objects[i].Key, "/") {
			return nil
		}
		return p.pull(ctx, bucket, prefix, objects[i].Key, root)
	})
}

func (p *Puller) pull(ctx context.Context, bucket, prefix, key, root string) (err error) {
	path := filepath.Join(root, filepath.FromSlash(Rel(prefix, key)))
	if err = os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.E(fmt.Sprintf("creating folder for %s", path), err)
	}
	res, err := p.Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s3util.E(s3util.CtxErr(ctx, err), fmt.Sprintf("get s3://%s/%s", bucket, key))
	}
	defer func() {
		if cerr := res.Body.Close(); cerr != nil && err == nil {
			err = errors.E(fmt.Sprintf("get s3://%s/%s", bucket, key), cerr)
		}
	}()
	f, err := os.Create(path)
	if err != nil {
		return errors.E(fmt.Sprintf("creating %s", path), err)
	}
	n, err := io.Copy(f, res.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.E(fmt.Sprintf("writing %s", path), err)
	}
	log.Debug.Printf("pull: s3://%s/%s -> %s (%d bytes)", bucket, key, path, n)
	return nil
}
