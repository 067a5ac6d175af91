// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pull

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/grailbio/s3bridge/s3util"
)

// Object describes one enumerated S3 object. Field names and casing
// follow the S3 Object API; this is the shape execution filters see.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// List enumerates every object under prefix in bucket, in key order.
// The prefix is taken as a folder: a non-empty prefix is terminated
// with "/" before listing so that siblings sharing the prefix string
// are not swept in.
func List(ctx context.Context, client s3iface.S3API, bucket, prefix string) ([]Object, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var (
		objects []Object
		token   *string
	)
	for {
		res, err := client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, s3util.E(err, fmt.Sprintf("list s3://%s/%s", bucket, prefix))
		}
		for _, c := range res.Contents {
			objects = append(objects, Object{
				Key:          aws.StringValue(c.Key),
				Size:         aws.Int64Value(c.Size),
				LastModified: aws.TimeValue(c.LastModified),
				ETag:         aws.StringValue(c.ETag),
			})
		}
		if !aws.BoolValue(res.IsTruncated) {
			break
		}
		token = res.NextContinuationToken
	}
	return objects, nil
}

// Rel returns key relative to the listing prefix. Keys outside the
// prefix are returned unchanged.
func Rel(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, strings.TrimSuffix(prefix, "/")+"/")
}
