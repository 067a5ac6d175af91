// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command s3bridge runs a single event batch against a handler
// program:
//
//	s3bridge [-f event.json] command [args...]
//
// The event document is read from the given file, or from standard
// input, and may be either a raw S3 notification or an SQS envelope
// of notifications. The handler expression is the joined positional
// arguments; HANDLER_COMMAND is used when none are given. The exit
// status is 0 when every group succeeded or was skipped, 1 otherwise.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"

	"github.com/grailbio/s3bridge/config"
	"github.com/grailbio/s3bridge/event"
)

func main() {
	eventFile := flag.String("f", "", "read the event document from `file` instead of stdin")
	log.AddFlags()
	flag.Parse()
	must.Func = func(_ int, v ...interface{}) { log.Fatal(v...) }

	cfg, err := config.Load()
	must.Nil(err)
	sess, err := session.NewSession()
	must.Nil(err, "creating AWS session")
	eng, err := cfg.Engine(s3.New(sess), flag.Args())
	must.Nil(err)

	var data []byte
	if *eventFile != "" {
		data, err = os.ReadFile(*eventFile)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	must.Nil(err, "reading event document")
	records, err := event.DecodeBatch(data)
	must.Nil(err)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	res := eng.Execute(ctx, records)
	for _, g := range res.Groups {
		log.Printf("%s", g)
	}
	if res.Failed() {
		os.Exit(1)
	}
}
