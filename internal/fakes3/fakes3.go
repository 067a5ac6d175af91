// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package fakes3 provides an in-memory S3 implementation of the
// calls the bridge makes (ListObjectsV2, GetObject, PutObject) for
// tests. PUTs are recorded and applied, so later lists and gets
// observe them. Unimplemented API methods panic via the embedded
// interface.
package fakes3

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

var lastModified = time.Unix(1700000000, 0).UTC()

// Call records one PutObject.
type Call struct {
	Bucket, Key string
	Body        []byte
}

// Client is the fake. The zero value is not usable; construct with
// NewClient.
type Client struct {
	s3iface.S3API

	// PageSize bounds the keys returned per list page; 0 means 1000.
	PageSize int
	// Err, when set, is consulted before every call and may inject a
	// failure. api is the method name, input the request input.
	Err func(api string, input interface{}) error

	mu      sync.Mutex
	objects map[string]map[string][]byte
	puts    []Call
	gets    []string
}

// NewClient returns a fake serving the given buckets.
func NewClient(buckets ...string) *Client {
	c := &Client{objects: make(map[string]map[string][]byte)}
	for _, b := range buckets {
		c.objects[b] = make(map[string][]byte)
	}
	return c
}

// SetObject stores an object without recording a PUT.
func (c *Client) SetObject(bucket, key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.objects[bucket] == nil {
		c.objects[bucket] = make(map[string][]byte)
	}
	c.objects[bucket][key] = append([]byte(nil), body...)
}

// Object returns a stored object's content.
func (c *Client) Object(bucket, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, ok := c.objects[bucket][key]
	return body, ok
}

// Puts returns the recorded PutObject calls in call order.
func (c *Client) Puts() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.puts...)
}

// Gets returns the "bucket/key" of each GetObject call in call order.
func (c *Client) Gets() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.gets...)
}

func (c *Client) inject(api string, input interface{}) error {
	if c.Err == nil {
		return nil
	}
	return c.Err(api, input)
}

func (c *Client) bucket(name string) (map[string][]byte, error) {
	b, ok := c.objects[name]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchBucket, fmt.Sprintf("no bucket %q", name), nil)
	}
	return b, nil
}

// ListObjectsV2WithContext implements s3iface.S3API.
func (c *Client) ListObjectsV2WithContext(ctx aws.Context, input *s3.ListObjectsV2Input, opts ...request.Option) (*s3.ListObjectsV2Output, error) {
	if err := c.inject("ListObjectsV2WithContext", input); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket, err := c.bucket(aws.StringValue(input.Bucket))
	if err != nil {
		return nil, err
	}
	prefix := aws.StringValue(input.Prefix)
	var keys []string
	for key := range bucket {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if after := aws.StringValue(input.ContinuationToken); after != "" {
		i := sort.SearchStrings(keys, after)
		if i < len(keys) && keys[i] == after {
			i++
		}
		keys = keys[i:]
	}
	pageSize := c.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if len(keys) > pageSize {
		keys = keys[:pageSize]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, key := range keys {
		body := bucket[key]
		out.Contents = append(out.Contents, &s3.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(body))),
			LastModified: aws.Time(lastModified),
			ETag:         aws.String(fmt.Sprintf("%q", fmt.Sprintf("%x", md5.Sum(body)))),
		})
	}
	return out, nil
}

// GetObjectWithContext implements s3iface.S3API.
func (c *Client) GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	if err := c.inject("GetObjectWithContext", input); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket, err := c.bucket(aws.StringValue(input.Bucket))
	if err != nil {
		return nil, err
	}
	key := aws.StringValue(input.Key)
	body, ok := bucket[key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, fmt.Sprintf("no key %q", key), nil)
	}
	c.gets = append(c.gets, aws.StringValue(input.Bucket)+"/"+key)
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
		LastModified:  aws.Time(lastModified),
	}, nil
}

// PutObjectWithContext implements s3iface.S3API.
func (c *Client) PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	if err := c.inject("PutObjectWithContext", input); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	name := aws.StringValue(input.Bucket)
	bucket, err := c.bucket(name)
	if err != nil {
		return nil, err
	}
	key := aws.StringValue(input.Key)
	bucket[key] = body
	c.puts = append(c.puts, Call{Bucket: name, Key: key, Body: body})
	return &s3.PutObjectOutput{}, nil
}
