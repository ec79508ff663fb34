package store

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in a map and serves them in two pages.
type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
	puts    []*s3.PutObjectInput
}

func (f *fakeS3) ListObjectsV2PagesWithContext(_ aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	var page []*s3.Object
	for k := range f.objects {
		if strings.HasPrefix(k, aws.StringValue(in.Prefix)) {
			page = append(page, &s3.Object{Key: aws.String(k)})
		}
	}
	half := len(page) / 2
	if !fn(&s3.ListObjectsV2Output{Contents: page[:half]}, false) {
		return nil
	}
	fn(&s3.ListObjectsV2Output{Contents: page[half:]}, true)
	return nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "not found", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.StringValue(in.Key)] = data
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func TestS3BatchStore(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{
		"raw/ingestion_run_2025-11-02T10-00-00.json":   []byte(`[]`),
		"raw/archive/old.json":                         []byte(`[]`),
		"raw/readme.md":                                []byte(`#`),
		"other/ingestion_run_2025-11-01T10-00-00.json": []byte(`[]`),
	}}
	s := NewS3BatchStore(fake, "env-bucket", "/raw/")
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "ingestion_run_2025-11-02T10-10-00.json", []byte(`[{"city":"Delhi"}]`)))
	require.Len(t, fake.puts, 1)
	assert.Equal(t, "env-bucket", aws.StringValue(fake.puts[0].Bucket))
	assert.Equal(t, "raw/ingestion_run_2025-11-02T10-10-00.json", aws.StringValue(fake.puts[0].Key))
	assert.Equal(t, "application/json", aws.StringValue(fake.puts[0].ContentType))

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"ingestion_run_2025-11-02T10-00-00.json",
		"ingestion_run_2025-11-02T10-10-00.json",
	}, ids)

	data, err := s.Get(ctx, "ingestion_run_2025-11-02T10-10-00.json")
	require.NoError(t, err)
	assert.Equal(t, `[{"city":"Delhi"}]`, string(data))

	_, err = s.Get(ctx, "missing.json")
	assert.Error(t, err)
}
