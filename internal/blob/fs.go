package blob

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hitoshi/articlerepo/internal/model"
	"github.com/zeebo/blake3"
)

// FSStore はローカルファイルシステム上のBlobStore。
//
// 内容は <root>/<bucket>/objects/<blake3> に1回だけ保存し、
// 各バージョンは <root>/<bucket>/versions/<keyhash>/<uuid> に内容のハッシュを記録する。
type FSStore struct {
	root   string
	bucket string
}

// NewFSStore はFSStoreを生成する。rootが存在しなければ作成する。
func NewFSStore(root, bucket string) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("blob root directory is required")
	}
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return nil, fmt.Errorf("invalid bucket name: %q", bucket)
	}
	if err := os.MkdirAll(filepath.Join(root, bucket), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &FSStore{root: root, bucket: bucket}, nil
}

func hashHex(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (s *FSStore) objectPath(contentHash string) string {
	return filepath.Join(s.root, s.bucket, "objects", contentHash[:2], contentHash)
}

func (s *FSStore) versionPath(key, id string) string {
	return filepath.Join(s.root, s.bucket, "versions", hashHex([]byte(key)), id)
}

// Put はdataを書き込む。同じ内容は1回だけ保存される。
func (s *FSStore) Put(ctx context.Context, key string, data []byte, contentType string) (model.BlobHandle, error) {
	if err := ctx.Err(); err != nil {
		return model.BlobHandle{}, err
	}

	contentHash := hashHex(data)
	objPath := s.objectPath(contentHash)
	if _, err := os.Stat(objPath); errors.Is(err, fs.ErrNotExist) {
		if err := writeFileAtomic(objPath, data); err != nil {
			return model.BlobHandle{}, err
		}
	} else if err != nil {
		return model.BlobHandle{}, fmt.Errorf("failed to stat blob: %w", err)
	}

	info, err := os.Stat(objPath)
	if err != nil {
		return model.BlobHandle{}, fmt.Errorf("failed to stat blob: %w", err)
	}

	id := uuid.New().String()
	if err := writeFileAtomic(s.versionPath(key, id), []byte(contentHash)); err != nil {
		return model.BlobHandle{}, err
	}

	return model.BlobHandle{
		Bucket: s.bucket,
		Key:    key,
		UUID:   id,
		Size:   info.Size(),
	}, nil
}

// Get はハンドルが指すバージョンの内容を開く。
func (s *FSStore) Get(ctx context.Context, handle model.BlobHandle) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if handle.Bucket != s.bucket {
		return nil, fmt.Errorf("bucket %q is not served by this store: %w", handle.Bucket, ErrNotFound)
	}
	if _, err := uuid.Parse(handle.UUID); err != nil {
		return nil, fmt.Errorf("invalid blob uuid %q: %w", handle.UUID, ErrNotFound)
	}

	ref, err := os.ReadFile(s.versionPath(handle.Key, handle.UUID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", objectName(handle.Key, handle.UUID), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob version: %w", err)
	}

	f, err := os.Open(s.objectPath(string(ref)))
	if err != nil {
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

// writeFileAtomic は一時ファイルに書いてからrenameする。
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Store = (*FSStore)(nil)
