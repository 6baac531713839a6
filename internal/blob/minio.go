package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/hitoshi/articlerepo/internal/model"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig はMinIOへの接続設定。
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore はMinIO上のBlobStore。
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore はMinIOクライアントを生成し、バケットがなければ作成する。
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// Put はオブジェクトを書き込む。サイズはMinIOが報告した値を使う。
func (s *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) (model.BlobHandle, error) {
	id := uuid.New().String()
	name := objectName(key, id)

	info, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return model.BlobHandle{}, fmt.Errorf("failed to put object %s: %w", name, err)
	}

	return model.BlobHandle{
		Bucket: s.bucket,
		Key:    key,
		UUID:   id,
		Size:   info.Size,
	}, nil
}

// Get はオブジェクトを開く。存在しない場合はErrNotFoundを返す。
func (s *MinioStore) Get(ctx context.Context, handle model.BlobHandle) (io.ReadCloser, error) {
	name := objectName(handle.Key, handle.UUID)

	// GetObjectは遅延評価のため、Statで存在を確認する
	if _, err := s.client.StatObject(ctx, handle.Bucket, name, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat object %s: %w", name, err)
	}

	obj, err := s.client.GetObject(ctx, handle.Bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", name, err)
	}
	return obj, nil
}

// compile-time interface check
var _ Store = (*MinioStore)(nil)
