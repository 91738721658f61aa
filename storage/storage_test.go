package storage_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	users "github.com/goliatone/go-users"
	"github.com/goliatone/go-users/storage"
)

var (
	_ users.BlobStore = (*storage.Local)(nil)
	_ users.BlobStore = (*storage.S3)(nil)
)

func TestLocal_PutAndDelete(t *testing.T) {
	root := t.TempDir()
	store := storage.NewLocal(root, "http://localhost:8000/media/")
	ctx := context.Background()

	url, err := store.Put(ctx, "avatars/u1/a.png", strings.NewReader("png"), 3, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/media/avatars/u1/a.png", url)

	data, err := os.ReadFile(filepath.Join(root, "avatars", "u1", "a.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	require.NoError(t, store.Delete(ctx, "avatars/u1/a.png"))
	_, err = os.Stat(filepath.Join(root, "avatars", "u1", "a.png"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	// deleting a missing blob is fine
	require.NoError(t, store.Delete(ctx, "avatars/u1/a.png"))
}

func TestLocal_RejectsEscapingKeys(t *testing.T) {
	store := storage.NewLocal(t.TempDir(), "/media")

	for _, key := range []string{"", "../etc/passwd", "a/../../b", "/abs"} {
		_, err := store.Put(context.Background(), key, strings.NewReader("x"), 1, "")
		assert.ErrorIs(t, err, storage.ErrInvalidKey, key)
	}
}

type objectAPIMock struct {
	mock.Mock
}

func (m *objectAPIMock) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	if in.Body != nil {
		_, _ = io.Copy(io.Discard, in.Body)
	}
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *objectAPIMock) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.DeleteObjectOutput)
	return out, args.Error(1)
}

func TestS3_Put(t *testing.T) {
	client := new(objectAPIMock)
	store := storage.NewS3WithClient(client, storage.S3Options{Bucket: "media", Region: "ap-northeast-2"})

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Bucket) == "media" &&
			aws.ToString(in.Key) == "avatars/u1/a.png" &&
			aws.ToString(in.ContentType) == "image/png" &&
			aws.ToInt64(in.ContentLength) == 3
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	url, err := store.Put(context.Background(), "avatars/u1/a.png", strings.NewReader("png"), 3, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://media.s3.ap-northeast-2.amazonaws.com/avatars/u1/a.png", url)
	client.AssertExpectations(t)
}

func TestS3_PublicURLFromEndpoint(t *testing.T) {
	client := new(objectAPIMock)
	store := storage.NewS3WithClient(client, storage.S3Options{Bucket: "media", Endpoint: "http://127.0.0.1:9000/"})

	client.On("PutObject", mock.Anything, mock.Anything).Return(&s3.PutObjectOutput{}, nil)

	url, err := store.Put(context.Background(), "k.png", strings.NewReader("x"), 1, "")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000/media/k.png", url)
}

func TestS3_Errors(t *testing.T) {
	client := new(objectAPIMock)
	store := storage.NewS3WithClient(client, storage.S3Options{Bucket: "media", PublicURL: "https://cdn.example.com"})
	boom := errors.New("boom")

	client.On("PutObject", mock.Anything, mock.Anything).Return(nil, boom)
	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Key) == "k.png"
	})).Return(nil, boom)

	_, err := store.Put(context.Background(), "k.png", strings.NewReader("x"), 1, "")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, store.Delete(context.Background(), "k.png"), boom)
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := storage.NewS3(context.Background(), storage.S3Options{})
	assert.Error(t, err)
}
