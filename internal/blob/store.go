// Package blob はファイル本体を保存するコンテンツアドレス型オブジェクトストアを提供する。
//
// 書き込みごとに新しいUUIDが割り当てられ、同じキー・同じ内容でも別のハンドルになる。
// 書き込まれたハンドルの内容は不変である。
package blob

import (
	"context"
	"errors"
	"io"

	"github.com/hitoshi/articlerepo/internal/model"
)

// ErrNotFound はハンドルに対応するオブジェクトが存在しないことを示す。
var ErrNotFound = errors.New("blob not found")

// Store はBlobStoreのインターフェース。
type Store interface {
	// Put はdataをkeyの新しいバージョンとして書き込み、ハンドルを返す。
	// ハンドルのSizeはストア側が報告した値。
	Put(ctx context.Context, key string, data []byte, contentType string) (model.BlobHandle, error)

	// Get はハンドルが指す内容を返す。呼び出し側でCloseすること。
	Get(ctx context.Context, handle model.BlobHandle) (io.ReadCloser, error)
}

// objectName はバケット内のオブジェクト名を返す。
// 同じキーの各バージョンはUUIDで区別する。
func objectName(key, id string) string {
	return key + "/" + id
}
