// Package notify は検索インデックス側へ記事の公開状態の変化を通知する。
// 通知は送りっぱなしで、失敗しても呼び出し側の処理には影響しない。
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/hitoshi/articlerepo/internal/model"
)

// 通知イベントの種別
const (
	EventArticleIndexed = "article.indexed"
	EventArticleRemoved = "article.removed"
)

const publishTimeout = 2 * time.Second

// Event は通知メッセージの本文。
type Event struct {
	Type           string    `json:"type"`
	Doi            string    `json:"doi"`
	RevisionNumber int       `json:"revisionNumber,omitempty"`
	Time           time.Time `json:"time"`
}

// Notifier は記事の公開状態の変化を外部へ伝える。
type Notifier interface {
	// ArticleIndexed は最新Revisionが変わったことを通知する。
	ArticleIndexed(ctx context.Context, article model.ArticleIdentifier, revisionNumber int)

	// ArticleRemoved は公開中のRevisionがなくなったことを通知する。
	ArticleRemoved(ctx context.Context, article model.ArticleIdentifier)
}

// RedisNotifier はRedisのPub/Subチャンネルへイベントを発行する。
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
	now     func() time.Time
}

// NewRedisNotifier はredis://形式のURLからRedisNotifierを生成する。
func NewRedisNotifier(redisURL, channel string, logger *zap.Logger) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return NewRedisNotifierWithClient(redis.NewClient(opts), channel, logger), nil
}

// NewRedisNotifierWithClient は既存のクライアントを使うRedisNotifierを生成する。
func NewRedisNotifierWithClient(client *redis.Client, channel string, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisNotifier{client: client, channel: channel, logger: logger, now: time.Now}
}

// ArticleIndexed はarticle.indexedイベントを発行する。
func (n *RedisNotifier) ArticleIndexed(ctx context.Context, article model.ArticleIdentifier, revisionNumber int) {
	n.publish(ctx, Event{Type: EventArticleIndexed, Doi: article.Doi.String(), RevisionNumber: revisionNumber, Time: n.now()})
}

// ArticleRemoved はarticle.removedイベントを発行する。
func (n *RedisNotifier) ArticleRemoved(ctx context.Context, article model.ArticleIdentifier) {
	n.publish(ctx, Event{Type: EventArticleRemoved, Doi: article.Doi.String(), Time: n.now()})
}

func (n *RedisNotifier) publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("failed to encode notification", zap.String("type", ev.Type), zap.Error(err))
		return
	}

	// 呼び出し元のキャンセルに巻き込まれないよう切り離す
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := n.client.Publish(pctx, n.channel, payload).Err(); err != nil {
		n.logger.Warn("failed to publish notification",
			zap.String("type", ev.Type),
			zap.String("doi", ev.Doi),
			zap.Error(err),
		)
	}
}

// Ping はRedisへの疎通を確認する。
func (n *RedisNotifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

// Close はクライアントを閉じる。
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// LogNotifier はイベントをログに記録するだけのNotifier。Redisを使わない環境向け。
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier はLogNotifierを生成する。
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) ArticleIndexed(_ context.Context, article model.ArticleIdentifier, revisionNumber int) {
	n.logger.Info(EventArticleIndexed, zap.String("doi", article.Doi.String()), zap.Int("revision_number", revisionNumber))
}

func (n *LogNotifier) ArticleRemoved(_ context.Context, article model.ArticleIdentifier) {
	n.logger.Info(EventArticleRemoved, zap.String("doi", article.Doi.String()))
}

// Nop は何もしないNotifier。
type Nop struct{}

func (Nop) ArticleIndexed(context.Context, model.ArticleIdentifier, int) {}
func (Nop) ArticleRemoved(context.Context, model.ArticleIdentifier)      {}

// インターフェースの実装を保証する
var (
	_ Notifier = (*RedisNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Nop{}
)
