// Package s3 implements internal/contentstore.Store against an S3-compatible
// bucket, grounded on the teacher's pkg/store/content/s3 PutObject/GetObject/
// DeleteObject usage.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/cubbit/metafsd/internal/contentstore"
	"github.com/cubbit/metafsd/internal/metastore"
)

// Store is an S3-backed content store. Object keys are the handle string;
// since S3 has no partial-write primitive, Write reads-modifies-writes the
// whole object, matching the teacher's non-streaming write path.
type Store struct {
	client *s3.Client
	bucket string
}

func New(ctx context.Context, bucket, region string) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}
	return &Store{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

func objectKey(h metastore.Handle) string { return string(h) }

func (s *Store) Read(ctx context.Context, h metastore.Handle, offset int64, length int) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(h)),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+int64(length)-1)),
	})
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return nil, contentstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("s3: get object: %w", err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

func (s *Store) Write(ctx context.Context, h metastore.Handle, offset int64, data []byte) error {
	existing, err := s.readWhole(ctx, h)
	if err != nil && !errors.Is(err, contentstore.ErrNotFound) {
		return err
	}

	end := int(offset) + len(data)
	if end > len(existing) {
		grown := make([]byte, end)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[offset:], data)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(h)),
		Body:   bytes.NewReader(existing),
	})
	if err != nil {
		return fmt.Errorf("s3: put object: %w", err)
	}
	return nil
}

func (s *Store) readWhole(ctx context.Context, h metastore.Handle) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(h)),
	})
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return nil, contentstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("s3: get object: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *Store) Delete(ctx context.Context, h metastore.Handle) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(h)),
	})
	if err != nil {
		return fmt.Errorf("s3: delete object: %w", err)
	}
	return nil
}
