package export

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"resdex/internal/config"
)

// uploader is the subset of manager.Uploader the target needs.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Target uploads exported files to a bucket under a key prefix. Large
// files go through the multipart upload manager.
type S3Target struct {
	bucket   string
	prefix   string
	uploader uploader
}

var _ Target = (*S3Target)(nil)

// NewS3Target builds a client from cfg. Static credentials are used when
// both key fields are set, otherwise the default AWS chain applies.
func NewS3Target(ctx context.Context, cfg config.ExportConfig) (*S3Target, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 export requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Target(cfg.S3Bucket, cfg.S3Prefix, manager.NewUploader(client)), nil
}

func newS3Target(bucket, prefix string, u uploader) *S3Target {
	return &S3Target{bucket: bucket, prefix: prefix, uploader: u}
}

func (t *S3Target) key(name string) string {
	if t.prefix == "" {
		return name
	}
	return path.Join(t.prefix, name)
}

func (t *S3Target) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.key(name)),
		Body:   r,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := t.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("uploading %s to s3://%s: %w", name, t.bucket, err)
	}
	return nil
}

func (t *S3Target) Describe() string {
	return "s3://" + path.Join(t.bucket, t.prefix)
}
