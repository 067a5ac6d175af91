// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command s3bridge-lambda is the Lambda bootstrap host. It serves
// SQS-triggered invocations, feeding each envelope's S3 notifications
// to the engine and surfacing the first group failure to the Lambda
// API so the queue redelivers the batch.
//
// The handler expression is the joined positional arguments;
// HANDLER_COMMAND is used when none are given.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"

	"github.com/grailbio/s3bridge/config"
	"github.com/grailbio/s3bridge/event"
)

func main() {
	must.Func = func(_ int, v ...interface{}) { log.Fatal(v...) }
	cfg, err := config.Load()
	must.Nil(err)
	sess, err := session.NewSession()
	must.Nil(err, "creating AWS session")
	eng, err := cfg.Engine(s3.New(sess), os.Args[1:])
	must.Nil(err)
	lambda.Start(func(ctx context.Context, ev events.SQSEvent) error {
		res := eng.Execute(ctx, event.FromSQS(ev))
		for _, g := range res.Groups {
			log.Printf("%s", g)
		}
		return res.Err()
	})
}
