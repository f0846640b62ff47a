// Package archive optionally persists each fetched transaction's raw
// meta to S3-compatible object storage, keyed by program id and
// signature, grounded on the AWS SDK v2 S3 client construction pattern
// used for object storage elsewhere in the pack.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oriys/txgraph/internal/rpcclient"
	"github.com/oriys/txgraph/internal/txtypes"
)

// Writer persists a transaction's raw fetched meta.
type Writer interface {
	Put(ctx context.Context, programID txtypes.ProgramID, signature txtypes.Signature, meta *rpcclient.TransactionMeta) error
}

// Config configures the S3 archive backend.
type Config struct {
	Bucket string
	Prefix string
	Region string
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("archive: bucket is required")
	}
	return nil
}

// S3Writer writes raw transaction metas to an S3 bucket.
type S3Writer struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Writer constructs a Writer backed by S3, using the AWS SDK's
// default credential chain (env vars, shared config, IAM role).
func NewS3Writer(ctx context.Context, cfg Config) (*S3Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	return &S3Writer{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Put uploads meta as JSON under <prefix><program_id>/<signature>.json.
// The prefix is prepended as-is; no separator is inserted after it.
func (w *S3Writer) Put(ctx context.Context, programID txtypes.ProgramID, signature txtypes.Signature, meta *rpcclient.TransactionMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("archive: marshal transaction meta: %w", err)
	}

	key := fmt.Sprintf("%s%s/%s.json", w.prefix, programID.String(), signature.String())
	_, err = w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: put %s: %w", key, err)
	}
	return nil
}
