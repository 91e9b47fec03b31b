// Package storage resolves chapter audio to pre-signed URLs. The service
// never proxies audio bytes; clients stream straight from object storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// AudioStore resolves and manages chapter audio objects.
type AudioStore interface {
	StreamURL(ctx context.Context, bookID string, chapterIndex int, expiry time.Duration) (string, error)
	PutChapter(ctx context.Context, bookID string, chapterIndex int, r io.Reader, size int64) error
	DeleteBook(ctx context.Context, bookID string, chapterCount int) error
}

// MinioStore implements AudioStore for MinIO/S3 compatible storage.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

// StreamURL generates a pre-signed GET URL for one chapter's audio.
func (m *MinioStore) StreamURL(ctx context.Context, bookID string, chapterIndex int, expiry time.Duration) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, m.bucket, chapterKey(bookID, chapterIndex), expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign stream url: %w", err)
	}
	return url.String(), nil
}

// PutChapter uploads one chapter's audio.
func (m *MinioStore) PutChapter(ctx context.Context, bookID string, chapterIndex int, r io.Reader, size int64) error {
	_, err := m.client.PutObject(ctx, m.bucket, chapterKey(bookID, chapterIndex), r, size, minio.PutObjectOptions{
		ContentType: "audio/mp4",
	})
	if err != nil {
		return fmt.Errorf("put chapter audio: %w", err)
	}
	return nil
}

// DeleteBook removes every chapter object of a book.
func (m *MinioStore) DeleteBook(ctx context.Context, bookID string, chapterCount int) error {
	for i := 0; i < chapterCount; i++ {
		if err := m.client.RemoveObject(ctx, m.bucket, chapterKey(bookID, i), minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("delete chapter audio: %w", err)
		}
	}
	return nil
}

func chapterKey(bookID string, chapterIndex int) string {
	return fmt.Sprintf("books/%s/chapters/%d.m4a", bookID, chapterIndex)
}
