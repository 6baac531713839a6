// Package ingest はアーカイブ1件の取り込みを統括する。
// マニフェスト解析 → 原稿メタデータ抽出 → パッケージ組み立て → 保存の順に実行する。
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hitoshi/articlerepo/internal/archive"
	"github.com/hitoshi/articlerepo/internal/articlepkg"
	"github.com/hitoshi/articlerepo/internal/jats"
	"github.com/hitoshi/articlerepo/internal/manifest"
	"github.com/hitoshi/articlerepo/internal/metrics"
	"github.com/hitoshi/articlerepo/internal/model"
	"github.com/hitoshi/articlerepo/internal/versioning"
)

const (
	// initialRetryDelay は取り込み番号が衝突したときの最初の待ち時間。
	initialRetryDelay = 50 * time.Millisecond
	// maxRetryDelay は待ち時間の上限。
	maxRetryDelay = time.Second
)

// Persister は組み立て済みパッケージを保存する。versioning.Storeが実装する。
type Persister interface {
	PersistPackage(ctx context.Context, pkg *articlepkg.Package, meta *model.ArticleMetadata) (*model.Ingestion, error)
}

// Result は取り込みの結果。
type Result struct {
	Doi       model.Doi
	Ingestion *model.Ingestion
	Items     int
	Files     int
}

// Service は取り込みサービス。
type Service struct {
	persister   Persister
	extractor   jats.MetadataExtractor
	metrics     metrics.MetricsCollector
	logger      *zap.Logger
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewService はServiceを生成する。maxAttemptsは取り込み番号が衝突したときの試行回数の上限。
func NewService(persister Persister, extractor jats.MetadataExtractor, mc metrics.MetricsCollector, logger *zap.Logger, maxAttempts int) *Service {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		persister:   persister,
		extractor:   extractor,
		metrics:     mc,
		logger:      logger,
		maxAttempts: maxAttempts,
		sleep:       sleepContext,
	}
}

// Ingest はアーカイブを新しい取り込みとして保存する。
// 保存前の検証で失敗した場合は何も書き込まない。
func (s *Service) Ingest(ctx context.Context, arc *archive.Archive) (*Result, error) {
	start := time.Now()
	result, err := s.ingest(ctx, arc)
	s.metrics.RecordIngestLatency(time.Since(start))
	if err != nil {
		reason := FailureReason(err)
		s.metrics.RecordIngestFailure(reason)
		s.logger.Error("ingest failed",
			zap.String("archive", arc.Name()),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordIngestSuccess()
	s.logger.Info("ingest completed",
		zap.String("archive", arc.Name()),
		zap.String("doi", result.Doi.String()),
		zap.Int("ingestion_number", result.Ingestion.IngestionNumber),
		zap.Int("items", result.Items),
		zap.Int("files", result.Files),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (s *Service) ingest(ctx context.Context, arc *archive.Archive) (*Result, error) {
	// 1. マニフェストの解析と検証
	m, err := ReadManifest(arc)
	if err != nil {
		return nil, err
	}

	// 2. 原稿メタデータの抽出
	entry, err := m.ManuscriptEntry()
	if err != nil {
		return nil, err
	}
	doc, err := arc.ReadEntry(entry)
	if err != nil {
		return nil, model.ErrInvalidPackage.Wrap(err)
	}
	meta, err := s.extractor.Extract(doc)
	if err != nil {
		return nil, err
	}

	// 3. パッケージの組み立て
	pkg, err := articlepkg.Build(arc, m, meta)
	if err != nil {
		return nil, err
	}

	// 4. 保存（取り込み番号の衝突時は全体をやり直す）
	delay := initialRetryDelay
	for attempt := 1; ; attempt++ {
		ingestion, err := s.persister.PersistPackage(ctx, pkg, meta)
		if err == nil {
			return &Result{Doi: pkg.Doi, Ingestion: ingestion, Items: len(pkg.Items), Files: pkg.FileCount()}, nil
		}
		if !versioning.ErrIngestionConflict.Has(err) || attempt >= s.maxAttempts {
			return nil, err
		}

		s.metrics.RecordIngestRetry()
		s.logger.Warn("ingestion number conflict, retrying",
			zap.String("doi", pkg.Doi.String()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

// ReadManifest はアーカイブのマニフェストを解析し、参照先のエントリがすべて存在することを確認する。
func ReadManifest(arc *archive.Archive) (*manifest.Manifest, error) {
	if !arc.Has(manifest.EntryName) {
		return nil, model.ErrManifest.New("archive %s has no %s", arc.Name(), manifest.EntryName)
	}
	rc, err := arc.OpenEntry(manifest.EntryName)
	if err != nil {
		return nil, model.ErrInvalidPackage.Wrap(err)
	}
	defer rc.Close()

	m, err := manifest.Parse(rc)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(arc.EntryNames()); err != nil {
		return nil, err
	}
	return m, nil
}

// FailureReason はエラーをメトリクスの原因ラベルに分類する。
func FailureReason(err error) string {
	switch {
	case model.ErrManifest.Has(err):
		return "manifest"
	case model.ErrMetadataExtraction.Has(err):
		return "metadata"
	case model.ErrInvalidPackage.Has(err):
		return "invalid_package"
	case model.ErrStorageWrite.Has(err):
		return "storage_write"
	case model.ErrDataIntegrity.Has(err):
		return "data_integrity"
	case model.ErrConfiguration.Has(err):
		return "configuration"
	case versioning.ErrIngestionConflict.Has(err):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("取り込みの再試行を中断しました: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
