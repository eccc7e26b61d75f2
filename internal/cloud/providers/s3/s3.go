// Package s3 saves exported result files into an S3 (or S3-compatible) bucket.
package s3

import (
	"bytes"
	"context"
	"fmt"
	nethttp "net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ocrdesk/ocrdesk/internal/cloud"
)

// Options configure the S3 client. Empty fields fall back to the standard
// AWS configuration chain (env vars, shared config, instance roles).
type Options struct {
	Region    string
	Endpoint  string // custom endpoint for MinIO and friends; enables path-style
	AccessKey string
	SecretKey string

	HTTPClient *nethttp.Client
}

// Saver puts objects under a bucket prefix.
type Saver struct {
	client *s3.Client
	dest   cloud.Destination
}

// NewSaver builds an S3 client for dest.
func NewSaver(ctx context.Context, dest cloud.Destination, opts Options) (*Saver, error) {
	if dest.Scheme != cloud.SchemeS3 || dest.Container == "" {
		return nil, fmt.Errorf("%w: %s is not an s3 destination", cloud.ErrInvalidDestination, dest)
	}

	loadOpts := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.HTTPClient != nil {
		loadOpts = append(loadOpts, config.WithHTTPClient(opts.HTTPClient))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Saver{client: client, dest: dest}, nil
}

// Location returns the s3:// URL of the destination.
func (s *Saver) Location() string {
	return s.dest.String()
}

// Save uploads data with a single PutObject call.
func (s *Saver) Save(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	objectKey, err := s.dest.ObjectKey(key)
	if err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.dest.Container),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload s3://%s/%s: %w", s.dest.Container, objectKey, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.dest.Container, objectKey), nil
}

var _ cloud.Saver = (*Saver)(nil)
