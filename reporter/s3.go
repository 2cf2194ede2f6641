package reporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/mlbench/mlbench/internal/awsconf"
	"github.com/mlbench/mlbench/record"
)

// S3API is the subset of the S3 client used by S3IO.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3IO stores records as objects addressed as s3://bucket/key.ext. The
// object format follows the key's extension; writes append to an existing
// object.
type S3IO struct {
	Client S3API
	Region string

	once    sync.Once
	initErr error
}

func (s *S3IO) client(ctx context.Context) (S3API, error) {
	s.once.Do(func() {
		if s.Client != nil {
			return
		}
		cfg, err := awsconf.Load(ctx, s.Region)
		if err != nil {
			s.initErr = err
			return
		}
		s.Client = s3.NewFromConfig(cfg)
	})
	return s.Client, s.initErr
}

func parseS3(uri string) (bucket, key string, err error) {
	rest := stripProtocol(uri, "s3")
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("expected s3://bucket/key, got %q", uri)
	}
	return bucket, key, nil
}

// get returns the object body, or nil if the object does not exist.
func (s *S3IO) get(ctx context.Context, c S3API, bucket, key string) ([]byte, error) {
	out, err := c.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Write implements ServiceIO.
func (s *S3IO) Write(ctx context.Context, rec *record.Record, uri string) error {
	bucket, key, err := parseS3(uri)
	if err != nil {
		return err
	}
	codec, err := codecFor(path.Base(key))
	if err != nil {
		return err
	}
	c, err := s.client(ctx)
	if err != nil {
		return err
	}
	existing, err := s.get(ctx, c, bucket, key)
	if err != nil {
		return err
	}
	data, err := appendRecord(codec, existing, rec)
	if err != nil {
		return fmt.Errorf("write s3://%s/%s: %w", bucket, key, err)
	}
	_, err = c.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// Read implements ServiceIO.
func (s *S3IO) Read(ctx context.Context, uri string) ([]*record.Record, error) {
	bucket, key, err := parseS3(uri)
	if err != nil {
		return nil, err
	}
	codec, err := codecFor(path.Base(key))
	if err != nil {
		return nil, err
	}
	c, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	data, err := s.get(ctx, c, bucket, key)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("s3://%s/%s does not exist", bucket, key)
	}
	return decodeRecords(codec, bytes.NewReader(data))
}
