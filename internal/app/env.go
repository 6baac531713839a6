package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hitoshi/articlerepo/internal/blob"
	"github.com/hitoshi/articlerepo/internal/config"
	"github.com/hitoshi/articlerepo/internal/database"
	"github.com/hitoshi/articlerepo/internal/handler"
	"github.com/hitoshi/articlerepo/internal/ingest"
	"github.com/hitoshi/articlerepo/internal/jats"
	"github.com/hitoshi/articlerepo/internal/metrics"
	"github.com/hitoshi/articlerepo/internal/notify"
	"github.com/hitoshi/articlerepo/internal/objectstore"
	"github.com/hitoshi/articlerepo/internal/relationship"
	"github.com/hitoshi/articlerepo/internal/repository"
	"github.com/hitoshi/articlerepo/internal/security"
	"github.com/hitoshi/articlerepo/internal/versioning"
	"github.com/hitoshi/articlerepo/internal/worker/inbox"
)

// Env はコマンドが使う依存関係をまとめたもの。
type Env struct {
	Config  *config.Config
	Repos   repository.Set
	Store   *versioning.Store
	Objects *objectstore.Service
	Ingest  *ingest.Service
	Logger  *zap.Logger

	// Out はコマンドの出力先。
	Out io.Writer

	healthChecks map[string]handler.Pinger
	closers      []func() error

	inboxOnce sync.Once
	inbox     *inbox.Inbox
	scheduler *inbox.Scheduler
	inboxErr  error
}

// NewEnv はリポジトリとBlobStoreから各サービスを組み立てる。
func NewEnv(
	cfg *config.Config,
	repos repository.Set,
	store blob.Store,
	notifier notify.Notifier,
	mc metrics.MetricsCollector,
	logger *zap.Logger,
	out io.Writer,
) *Env {
	if logger == nil {
		logger = zap.NewNop()
	}
	objects := objectstore.NewService(store, mc, logger, cfg.BlobWriteConcurrency)
	extractor := jats.NewExtractor(security.NewContentSanitizer())
	resolver := relationship.NewResolver(repos.Articles, repos.Ingestions, repos.Revisions, repos.Journals, repos.Relationships, logger)
	vs := versioning.NewStore(repos, objects, extractor, resolver, notifier, mc, logger)

	return &Env{
		Config:  cfg,
		Repos:   repos,
		Store:   vs,
		Objects: objects,
		Ingest:  ingest.NewService(vs, extractor, mc, logger, cfg.IngestMaxAttempts),
		Logger:  logger,
		Out:     out,
	}
}

// openEnv はDB、BlobStore、通知先に接続してEnvを組み立てる。
func openEnv(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer, out io.Writer) (*Env, error) {
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info("database connection established")

	store, err := newBlobStore(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	var closers []func() error
	checks := map[string]handler.Pinger{"database": db}
	if cfg.RedisURL != "" {
		rn, err := notify.NewRedisNotifier(cfg.RedisURL, cfg.NotifyChannel, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		notifier = rn
		closers = append(closers, rn.Close)
		checks["notifier"] = handler.PingFunc(rn.Ping)
	}

	env := NewEnv(cfg, repository.NewPostgresSet(db), store, notifier, metrics.NewCollector(reg), logger, out)
	env.healthChecks = checks
	env.closers = append(closers, db.Close)
	return env, nil
}

// Close は接続を閉じる。
func (e *Env) Close() error {
	var first error
	for _, c := range e.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// newBlobStore は設定されたバックエンドのBlobStoreを生成する。
// BLOB_WRITES_PER_SECONDが正の場合は書き込み頻度を制限する。
func newBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	var store blob.Store
	switch cfg.BlobBackend {
	case config.BlobBackendFS:
		fs, err := blob.NewFSStore(cfg.BlobRoot, cfg.BlobBucket)
		if err != nil {
			return nil, err
		}
		store = fs
	case config.BlobBackendS3:
		client, err := blob.NewS3Client(ctx, blob.S3Config{
			Endpoint:  cfg.BlobEndpoint,
			Region:    cfg.BlobRegion,
			AccessKey: cfg.BlobAccessKey,
			SecretKey: cfg.BlobSecretKey,
			Bucket:    cfg.BlobBucket,
		})
		if err != nil {
			return nil, err
		}
		store = blob.NewS3Store(client, cfg.BlobBucket)
	case config.BlobBackendMinio:
		ms, err := blob.NewMinioStore(ctx, blob.MinioConfig{
			Endpoint:  cfg.BlobEndpoint,
			AccessKey: cfg.BlobAccessKey,
			SecretKey: cfg.BlobSecretKey,
			Bucket:    cfg.BlobBucket,
			UseSSL:    cfg.BlobUseSSL,
		})
		if err != nil {
			return nil, err
		}
		store = ms
	case config.BlobBackendMemory:
		store = blob.NewMemoryStore(cfg.BlobBucket)
	default:
		return nil, fmt.Errorf("unsupported BLOB_BACKEND: %q", cfg.BlobBackend)
	}
	return blob.NewRateLimitedStore(store, cfg.BlobWritesPerSecond, cfg.BlobWriteConcurrency), nil
}

// newInbox は取り込み待ちディレクトリが設定されていればスケジューラを生成する。
// スケジューラはEnvごとに1つで、定期実行と名前指定の取り込みで共有する。
func (e *Env) newInbox() (*inbox.Inbox, *inbox.Scheduler, error) {
	e.inboxOnce.Do(func() {
		if e.Config.IngestSourceDir == "" {
			e.inboxErr = fmt.Errorf("INGEST_SOURCE_DIR is not set")
			return
		}
		ib, err := inbox.New(inbox.Dirs{
			Source: e.Config.IngestSourceDir,
			Dest:   e.Config.IngestDestDir,
			Failed: e.Config.IngestFailedDir,
		})
		if err != nil {
			e.inboxErr = err
			return
		}
		e.inbox = ib
		e.scheduler = inbox.NewScheduler(ib, e.Ingest, e.Logger, e.Config.IngestConcurrency)
	})
	return e.inbox, e.scheduler, e.inboxErr
}
