package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Sink stores a finished export under key and returns where it went.
type Sink interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
}

// FSSink writes exports below a local directory.
type FSSink struct {
	Dir string
}

// Put writes r to Dir/key, creating directories as needed.
func (s FSSink) Put(_ context.Context, key string, r io.Reader, _ string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid export key %q", key)
	}
	dest := filepath.Join(s.Dir, clean)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", dest, err)
	}
	return dest, nil
}

// S3Config configures an S3 sink. Credentials come from the default AWS chain.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // optional, e.g. MinIO
	PathStyle bool
}

// S3Sink uploads exports to a bucket.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Sink builds a sink from cfg using the default AWS configuration.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3SinkWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3SinkWithClient wraps an existing client.
func NewS3SinkWithClient(client *s3.Client, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Put uploads r as bucket/prefix/key and returns the s3:// URL.
func (s *S3Sink) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	objectKey := path.Join(s.prefix, strings.TrimLeft(key, "/"))
	// The SDK needs a seekable body to sign the payload.
	if _, ok := r.(io.ReadSeeker); !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("failed to read export %s: %w", key, err)
		}
		r = bytes.NewReader(data)
	}
	input := &s3.PutObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(objectKey), Body: r}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", objectKey, err)
	}
	return "s3://" + s.bucket + "/" + objectKey, nil
}

// OpenSink picks a sink from target: "s3://bucket/prefix" uploads to S3,
// anything else is a local directory ("" means the working directory).
func OpenSink(ctx context.Context, target string) (Sink, error) {
	if !strings.HasPrefix(target, "s3://") {
		if target == "" {
			target = "."
		}
		return FSSink{Dir: target}, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid export target %q: %w", target, err)
	}
	q := u.Query()
	return NewS3Sink(ctx, S3Config{
		Bucket:    u.Host,
		Prefix:    u.Path,
		Region:    q.Get("region"),
		Endpoint:  q.Get("endpoint"),
		PathStyle: strings.EqualFold(q.Get("path_style"), "true"),
	})
}
