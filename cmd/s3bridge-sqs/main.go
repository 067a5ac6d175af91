// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command s3bridge-sqs is the long-lived poller host. It long-polls
// SQS_QUEUE_URL, runs one engine batch per received message, and
// deletes a message when its whole batch succeeded or its body cannot
// be decoded; failed batches are left for queue redelivery. The
// process exits 0 on a
// clean termination signal and 1 on a startup error.
//
// The handler expression is the joined positional arguments;
// HANDLER_COMMAND is used when none are given.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/base/retry"

	"github.com/grailbio/s3bridge/config"
	"github.com/grailbio/s3bridge/engine"
	"github.com/grailbio/s3bridge/event"
)

// receivePolicy paces retries after failed polls; it is unbounded
// because a long-lived consumer should ride out queue outages.
var receivePolicy = retry.Jitter(retry.Backoff(time.Second, time.Minute, 2), 0.25)

func main() {
	must.Func = func(_ int, v ...interface{}) { log.Fatal(v...) }
	cfg, err := config.Load()
	must.Nil(err)
	must.True(cfg.QueueURL != "", "SQS_QUEUE_URL must be set")
	sess, err := session.NewSession()
	must.Nil(err, "creating AWS session")
	eng, err := cfg.Engine(s3.New(sess), os.Args[1:])
	must.Nil(err)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	c := &consumer{
		client:      sqs.New(sess),
		engine:      eng,
		queueURL:    cfg.QueueURL,
		visibility:  cfg.VisibilityTimeout,
		maxMessages: cfg.MaxMessages,
	}
	c.poll(ctx)
}

type consumer struct {
	client      sqsiface.SQSAPI
	engine      *engine.Engine
	queueURL    string
	visibility  int64
	maxMessages int64
}

// poll long-polls the queue until ctx is cancelled.
func (c *consumer) poll(ctx context.Context) {
	for retries := 0; ; {
		if ctx.Err() != nil {
			return
		}
		in := &sqs.ReceiveMessageInput{
			QueueUrl:        aws.String(c.queueURL),
			WaitTimeSeconds: aws.Int64(20),
		}
		if c.visibility > 0 {
			in.VisibilityTimeout = aws.Int64(c.visibility)
		}
		if c.maxMessages > 0 {
			in.MaxNumberOfMessages = aws.Int64(c.maxMessages)
		}
		out, err := c.client.ReceiveMessageWithContext(ctx, in)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error.Printf("sqs: receive %s: %v", c.queueURL, err)
			if err := retry.Wait(ctx, receivePolicy, retries); err != nil {
				return
			}
			retries++
			continue
		}
		retries = 0
		for _, msg := range out.Messages {
			c.handle(ctx, msg)
		}
	}
}

// handle runs one message's notifications as an engine batch. The
// message is deleted when the batch fully succeeds, and also when its
// body is undecodable: redelivering a malformed body can never
// succeed.
func (c *consumer) handle(ctx context.Context, msg *sqs.Message) {
	id := aws.StringValue(msg.MessageId)
	records, err := event.DecodeBatch([]byte(aws.StringValue(msg.Body)))
	if err != nil {
		log.Error.Printf("sqs: skipping message %s: %v", id, err)
		c.delete(ctx, msg)
		return
	}
	res := c.engine.Execute(ctx, records)
	for _, g := range res.Groups {
		log.Printf("message %s: %s", id, g)
	}
	if res.Failed() {
		return
	}
	c.delete(ctx, msg)
}

func (c *consumer) delete(ctx context.Context, msg *sqs.Message) {
	_, err := c.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		log.Error.Printf("sqs: delete %s: %v", aws.StringValue(msg.MessageId), err)
	}
}
