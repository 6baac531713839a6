package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/hitoshi/articlerepo/internal/model"
)

// MemoryStore はプロセス内メモリに保持するBlobStore。テストと開発用。
type MemoryStore struct {
	bucket string

	mu      sync.RWMutex
	objects map[string][]byte
	puts    int
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{
		bucket:  bucket,
		objects: make(map[string][]byte),
	}
}

// Put はdataのコピーを保持する。
func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (model.BlobHandle, error) {
	if err := ctx.Err(); err != nil {
		return model.BlobHandle{}, err
	}
	id := uuid.New().String()
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.objects[objectName(key, id)] = buf
	s.puts++
	s.mu.Unlock()

	return model.BlobHandle{Bucket: s.bucket, Key: key, UUID: id, Size: int64(len(buf))}, nil
}

// Get は保持している内容を返す。
func (s *MemoryStore) Get(ctx context.Context, handle model.BlobHandle) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.objects[objectName(handle.Key, handle.UUID)]
	s.mu.RUnlock()
	if !ok || handle.Bucket != s.bucket {
		return nil, fmt.Errorf("%s: %w", objectName(handle.Key, handle.UUID), ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Puts はこれまでのPut回数を返す。
func (s *MemoryStore) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)
