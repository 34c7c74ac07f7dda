package destination

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"snapkeep/internal/backup"
)

// S3Destination delivers artifacts to an S3 bucket. Large dump snapshots go
// through the multipart upload manager.
type S3Destination struct {
	name     string
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// S3Options configures an S3Destination. AccessKey/SecretKey are optional;
// when empty the default credential chain applies.
type S3Options struct {
	Name      string
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3Destination creates an S3 destination. Construction only builds the
// client; reachability is established per attempt by Healthy.
func NewS3Destination(ctx context.Context, opts S3Options) (*S3Destination, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 destination requires a bucket")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Destination{
		name:     opts.Name,
		bucket:   opts.Bucket,
		prefix:   opts.Prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

func (d *S3Destination) Name() string { return d.name }

// Healthy performs a real write-then-delete probe against the bucket so
// revoked credentials or a deleted bucket are caught before delivery.
func (d *S3Destination) Healthy(ctx context.Context) error {
	probeKey := d.key(".skprobe-" + uuid.New().String())

	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(probeKey),
		Body:   strings.NewReader("probe"),
	})
	if err != nil {
		return fmt.Errorf("probe write failed: %w", err)
	}

	_, err = d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(probeKey),
	})
	if err != nil {
		return fmt.Errorf("probe delete failed: %w", err)
	}
	return nil
}

// Deliver uploads the artifact under the configured prefix.
func (d *S3Destination) Deliver(ctx context.Context, srcPath string, rel string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening artifact: %w", err)
	}
	defer f.Close()

	_, err = d.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(rel)),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("uploading to %s: %w", d.name, err)
	}
	return nil
}

func (d *S3Destination) key(rel string) string {
	if d.prefix == "" {
		return rel
	}
	return path.Join(d.prefix, rel)
}

var _ backup.Destination = (*S3Destination)(nil)
