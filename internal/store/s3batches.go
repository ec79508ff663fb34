package store

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3BatchStore keeps raw batches as objects under a bucket prefix.
// A batch identity is the object name relative to the prefix.
type S3BatchStore struct {
	client s3iface.S3API
	bucket string
	prefix string
}

func NewS3BatchStore(client s3iface.S3API, bucket, prefix string) *S3BatchStore {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3BatchStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3BatchStore) key(id string) string {
	return s.prefix + path.Base(id)
}

func (s *S3BatchStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.StringValue(obj.Key), s.prefix)
			if name == "" || strings.Contains(name, "/") || !strings.HasSuffix(name, batchExt) {
				continue
			}
			ids = append(ids, name)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *S3BatchStore) Get(ctx context.Context, id string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3BatchStore) Put(ctx context.Context, id string, data []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(id)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	return err
}
