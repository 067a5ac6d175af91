// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package s3util interprets AWS S3 API call errors. The bridge never
// retries S3 operations itself, but classified kinds make failures
// legible in logs and let the surrounding queue or Lambda runtime
// decide on redelivery.
package s3util

import (
	"context"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/grailbio/base/errors"
)

// E wraps an S3 API call error with its interpreted kind and
// severity, annotated with message.
func E(err error, message string) error {
	kind, severity := KindAndSeverity(err)
	return errors.E(kind, severity, message, err)
}

// CtxErr returns the context's error if set, else other. AWS
// sometimes wraps context.Canceled beyond recognition.
func CtxErr(ctx context.Context, other error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return other
}

// KindAndSeverity interprets an AWS S3 API call error.
func KindAndSeverity(err error) (errors.Kind, errors.Severity) {
	for {
		if request.IsErrorThrottle(err) {
			return errors.ResourcesExhausted, errors.Temporary
		}
		if request.IsErrorRetryable(err) {
			return errors.Other, errors.Temporary
		}
		aerr, ok := err.(awserr.Error)
		if !ok {
			break
		}
		if aerr.Code() == request.CanceledErrorCode {
			return errors.Canceled, errors.Fatal
		}
		// Best guess based on Amazon's descriptions. Code NotFound is
		// not documented, but it's what the API actually returns.
		switch aerr.Code() {
		case s3.ErrCodeNoSuchBucket, "NoSuchVersion", "NotFound":
			return errors.NotExist, errors.Fatal
		case s3.ErrCodeNoSuchKey:
			// Sometimes temporary under S3's consistency model.
			return errors.NotExist, errors.Temporary
		case "AccessDenied":
			return errors.NotAllowed, errors.Fatal
		case "InvalidRequest", "InvalidArgument", "EntityTooSmall", "EntityTooLarge", "KeyTooLong", "MethodNotAllowed":
			return errors.Invalid, errors.Fatal
		case "ExpiredToken", "AccountProblem", "ServiceUnavailable", "TokenRefreshRequired", "OperationAborted":
			return errors.Unavailable, errors.Fatal
		case "PreconditionFailed":
			return errors.Precondition, errors.Fatal
		case "SlowDown":
			return errors.ResourcesExhausted, errors.Temporary
		case "InternalError":
			return errors.Other, errors.Retriable
		case request.ErrCodeRequestError, request.ErrCodeSerialization:
			// Connection resets surface as these without being marked
			// retryable by the SDK.
			return errors.Other, errors.Temporary
		}
		if aerr.OrigErr() == nil {
			break
		}
		err = aerr.OrigErr()
	}
	switch err {
	case context.Canceled:
		return errors.Canceled, errors.Fatal
	case context.DeadlineExceeded:
		return errors.Timeout, errors.Temporary
	}
	return errors.Other, errors.Unknown
}
