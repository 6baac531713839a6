package inbox

import (
	"context"
	"sync"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/hitoshi/articlerepo/internal/archive"
	"github.com/hitoshi/articlerepo/internal/ingest"
)

// Ingester はアーカイブ1件を取り込む。ingest.Serviceが実装する。
type Ingester interface {
	Ingest(ctx context.Context, arc *archive.Archive) (*ingest.Result, error)
}

// ErrArchiveBusy は同じアーカイブを取り込み中の場合に返す。
var ErrArchiveBusy = errs.Class("archive busy")

// Scheduler は取り込み待ちディレクトリを一定間隔で確認し、並列数を制限して取り込む。
// 同じ名前のアーカイブを同時に2回取り込むことはない。
type Scheduler struct {
	inbox          *Inbox
	ingester       Ingester
	logger         *zap.Logger
	maxConcurrency int

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewScheduler はSchedulerを生成する。maxConcurrencyが0以下の場合は1を使う。
func NewScheduler(inbox *Inbox, ingester Ingester, logger *zap.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		inbox:          inbox,
		ingester:       ingester,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		inFlight:       make(map[string]bool),
	}
}

// Start はコンテキストがキャンセルされるまでinterval間隔でRunOnceを実行する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("inbox scheduler started",
		zap.Duration("interval", interval),
		zap.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	s.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("inbox scheduler stopped")
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("inbox cycle failed", zap.Error(err))
	}
}

// Summary は1回の実行結果。
type Summary struct {
	Ingested []string
	Failed   []string
}

// RunOnce は取り込み待ちのアーカイブをすべて取り込む。
// 個々のアーカイブの失敗はSummaryに記録し、エラーとしては返さない。
func (s *Scheduler) RunOnce(ctx context.Context) (*Summary, error) {
	start := time.Now()

	names, err := s.inbox.List()
	if err != nil {
		return nil, err
	}
	summary := &Summary{}
	if len(names) == 0 {
		return summary, nil
	}

	s.logger.Info("inbox cycle started", zap.Int("archives", len(names)))

	var mu sync.Mutex
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

loop:
	for _, name := range names {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break loop
		}
		wg.Add(1)

		go func(name string) {
			defer wg.Done()
			defer func() { <-sem }()

			err := s.ingestOne(ctx, name)
			if ErrArchiveBusy.Has(err) {
				return
			}
			mu.Lock()
			if err == nil {
				summary.Ingested = append(summary.Ingested, name)
			} else {
				summary.Failed = append(summary.Failed, name)
			}
			mu.Unlock()
		}(name)
	}
	wg.Wait()

	s.logger.Info("inbox cycle completed",
		zap.Int("ingested", len(summary.Ingested)),
		zap.Int("failed", len(summary.Failed)),
		zap.Duration("duration", time.Since(start)),
	)
	return summary, nil
}

// ingestOne はアーカイブを取り込む。取り込み中のアーカイブは飛ばす。
func (s *Scheduler) ingestOne(ctx context.Context, name string) error {
	_, err := s.IngestArchive(ctx, name)
	switch {
	case err == nil:
	case ErrArchiveBusy.Has(err):
		s.logger.Debug("archive skipped, already in flight", zap.String("archive", name))
	case ctx.Err() == nil:
		s.logger.Warn("archive ingest failed", zap.String("archive", name), zap.Error(err))
	}
	return err
}

// IngestArchive は取り込み待ちディレクトリのアーカイブを名前で取り込み、結果に応じて移動する。
// キャンセルされた場合はアーカイブを移動せず、次回に持ち越す。
// 同じ名前のアーカイブを取り込み中の場合はErrArchiveBusyを返し、何もしない。
func (s *Scheduler) IngestArchive(ctx context.Context, name string) (*ingest.Result, error) {
	if !s.acquire(name) {
		return nil, ErrArchiveBusy.New("%s is already being ingested", name)
	}
	defer s.release(name)

	arc, err := archive.Open(s.inbox.Path(name))
	var result *ingest.Result
	if err == nil {
		result, err = s.ingester.Ingest(ctx, arc)
		arc.Close()
	}

	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		if _, moveErr := s.inbox.MarkFailed(name); moveErr != nil {
			s.logger.Error("failed to move archive", zap.String("archive", name), zap.Error(moveErr))
		}
		return nil, err
	}

	if _, err := s.inbox.MarkIngested(name); err != nil {
		s.logger.Error("failed to move archive", zap.String("archive", name), zap.Error(err))
	}
	return result, nil
}

func (s *Scheduler) acquire(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[name] {
		return false
	}
	s.inFlight[name] = true
	return true
}

func (s *Scheduler) release(name string) {
	s.mu.Lock()
	delete(s.inFlight, name)
	s.mu.Unlock()
}
