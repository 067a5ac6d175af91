// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package event decodes S3 object-change notifications as they are
// delivered to the bridge: raw S3 notification documents, SQS message
// bodies wrapping them, and Lambda SQS envelopes. Undecodable records
// are logged and dropped rather than failing the batch.
package event

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Record is one S3 object-change event, with the object key already
// URL-decoded. Records are immutable once produced.
type Record struct {
	Bucket    string
	Key       string
	EventName string
	EventTime time.Time
}

// FromS3 extracts the object-change records from an S3 notification
// document. Entries that name no bucket or object (for example the
// s3:TestEvent emitted on notification setup) are dropped.
func FromS3(doc events.S3Event) []Record {
	var records []Record
	for _, rec := range doc.Records {
		bucket, key := rec.S3.Bucket.Name, rec.S3.Object.Key
		if bucket == "" || key == "" {
			continue
		}
		// Notification keys are URL-encoded, with "+" for space.
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
		records = append(records, Record{
			Bucket:    bucket,
			Key:       key,
			EventName: rec.EventName,
			EventTime: rec.EventTime,
		})
	}
	return records
}

// Decode parses body as an S3 notification document.
func Decode(body []byte) ([]Record, error) {
	var doc events.S3Event
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errors.E(errors.Invalid, "decoding S3 notification", err)
	}
	return FromS3(doc), nil
}

// FromSQS extracts records from a Lambda SQS envelope. Each message
// body is an S3 notification document; bodies that fail to decode are
// logged and skipped.
func FromSQS(ev events.SQSEvent) []Record {
	var records []Record
	for _, msg := range ev.Records {
		recs, err := Decode([]byte(msg.Body))
		if err != nil {
			log.Error.Printf("event: skipping message %s: %v", msg.MessageId, err)
			continue
		}
		records = append(records, recs...)
	}
	return records
}

// DecodeBatch parses data as either an SQS envelope of notifications
// or a bare S3 notification document, whichever it resembles. It is
// the decoding entry point for hosts handed an opaque event file.
func DecodeBatch(data []byte) ([]Record, error) {
	var envelope struct {
		Records []struct {
			Body string `json:"body"`
		} `json:"Records"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, errors.E(errors.Invalid, "decoding event batch", err)
	}
	sqsLike := len(envelope.Records) > 0
	for _, r := range envelope.Records {
		if r.Body == "" {
			sqsLike = false
			break
		}
	}
	if !sqsLike {
		return Decode(data)
	}
	var records []Record
	for _, r := range envelope.Records {
		recs, err := Decode([]byte(r.Body))
		if err != nil {
			log.Error.Printf("event: skipping undecodable record: %v", err)
			continue
		}
		records = append(records, recs...)
	}
	return records, nil
}
