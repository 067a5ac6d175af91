// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package config loads the bridge configuration from environment
// variables and builds the invocation engine from it. Invalid
// configuration fails here, before any event is consumed, except for
// the execution filter: its jq expression is read and compiled on
// first use, so a bad filter fails the first group that evaluates it.
package config

import (
	"strings"

	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/grailbio/base/errors"
	"github.com/kelseyhightower/envconfig"

	"github.com/grailbio/s3bridge/engine"
	"github.com/grailbio/s3bridge/filter"
	"github.com/grailbio/s3bridge/handler"
	"github.com/grailbio/s3bridge/match"
	"github.com/grailbio/s3bridge/plan"
)

// Config is the environment configuration shared by all hosts.
type Config struct {
	// MatchKey gates trigger eligibility; empty matches every key.
	MatchKey string `envconfig:"MATCH_KEY"`
	// PullParentDirs is the number of parent segments climbed above a
	// trigger key's folder when computing the listing prefix; negative
	// selects the whole bucket.
	PullParentDirs int `envconfig:"PULL_PARENT_DIRS" default:"0"`
	// PullMatchKeys is the per-key download filter.
	PullMatchKeys []string `envconfig:"PULL_MATCH_KEYS" default:".*"`
	// FilterExpr and FilterFile supply the execution filter; at most
	// one may be set.
	FilterExpr string `envconfig:"EXECUTION_FILTER_EXPR"`
	FilterFile string `envconfig:"EXECUTION_FILTER_FILE"`
	// TargetBucket overrides the upload destination bucket.
	TargetBucket string `envconfig:"TARGET_BUCKET"`
	// HandlerCommand is the handler shell expression used when a host
	// receives no positional arguments.
	HandlerCommand string `envconfig:"HANDLER_COMMAND"`
	// RootFolderVar, BucketVar and KeyPrefixVar name the environment
	// variables exposed to the handler.
	RootFolderVar string `envconfig:"ROOT_FOLDER_VAR" default:"ROOT_FOLDER"`
	BucketVar     string `envconfig:"BUCKET_VAR" default:"BUCKET"`
	KeyPrefixVar  string `envconfig:"KEY_PREFIX_VAR" default:"KEY_PREFIX"`

	// SQS consumer host only.
	QueueURL          string `envconfig:"SQS_QUEUE_URL"`
	VisibilityTimeout int64  `envconfig:"SQS_VISIBILITY_TIMEOUT"`
	MaxMessages       int64  `envconfig:"SQS_MAX_NUMBER_OF_MESSAGES"`
}

// Load reads the configuration from the environment and validates
// cross-field constraints.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, errors.E(errors.Invalid, "loading configuration", err)
	}
	if c.FilterExpr != "" && c.FilterFile != "" {
		return nil, errors.E(errors.Invalid,
			"EXECUTION_FILTER_EXPR and EXECUTION_FILTER_FILE are mutually exclusive")
	}
	if c.MaxMessages != 0 && (c.MaxMessages < 1 || c.MaxMessages > 10) {
		return nil, errors.E(errors.Invalid, "SQS_MAX_NUMBER_OF_MESSAGES must be in 1..10")
	}
	return &c, nil
}

// Engine builds the invocation engine. args, when non-empty, is the
// host's positional arguments and overrides HANDLER_COMMAND as the
// handler shell expression. Pattern compilation failures surface
// here, at startup.
func (c *Config) Engine(client s3iface.S3API, args []string) (*engine.Engine, error) {
	command := strings.Join(args, " ")
	if command == "" {
		command = c.HandlerCommand
	}
	if command == "" {
		return nil, errors.E(errors.Invalid, "no handler command configured")
	}
	matcher, err := match.New(c.MatchKey)
	if err != nil {
		return nil, err
	}
	planner, err := plan.New(c.PullParentDirs, c.PullMatchKeys)
	if err != nil {
		return nil, err
	}
	var eval *filter.Evaluator
	switch {
	case c.FilterExpr != "":
		eval = filter.New(c.FilterExpr)
	case c.FilterFile != "":
		eval = filter.NewFromFile(c.FilterFile)
	}
	return &engine.Engine{
		S3:      client,
		Matcher: matcher,
		Planner: planner,
		Filter:  eval,
		Runner: &handler.Runner{
			Command:   command,
			RootVar:   c.RootFolderVar,
			BucketVar: c.BucketVar,
			PrefixVar: c.KeyPrefixVar,
		},
		TargetBucket: c.TargetBucket,
	}, nil
}
