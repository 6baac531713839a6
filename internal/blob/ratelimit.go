package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/hitoshi/articlerepo/internal/model"
	"golang.org/x/time/rate"
)

// RateLimitedStore は書き込みの頻度を制限するStoreのラッパー。
// 読み込みは制限しない。
type RateLimitedStore struct {
	next    Store
	limiter *rate.Limiter
}

// NewRateLimitedStore は毎秒perSecond回までPutを許可するStoreを返す。
// perSecondが0以下の場合はnextをそのまま返す。
func NewRateLimitedStore(next Store, perSecond float64, burst int) Store {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedStore{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Put はトークンを待ってから書き込む。ctxが終了した場合は待機を中断する。
func (s *RateLimitedStore) Put(ctx context.Context, key string, data []byte, contentType string) (model.BlobHandle, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return model.BlobHandle{}, fmt.Errorf("blob write rate limit: %w", err)
	}
	return s.next.Put(ctx, key, data, contentType)
}

// Get はそのまま委譲する。
func (s *RateLimitedStore) Get(ctx context.Context, handle model.BlobHandle) (io.ReadCloser, error) {
	return s.next.Get(ctx, handle)
}

// compile-time interface check
var _ Store = (*RateLimitedStore)(nil)
