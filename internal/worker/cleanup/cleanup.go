// Package cleanup は取り込み済みアーカイブの自動削除ジョブを提供する。
// 保管ディレクトリと失敗ディレクトリのうち、保持期間を超過したアーカイブを
// 定期的に削除する。記事の内容はBlobStoreに保存済みのため、元アーカイブは再取り込み用の控えにすぎない。
package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Job は保持期間を超過したアーカイブの削除ジョブ。
// 冪等であり、削除対象がない場合もエラーにならない。
type Job struct {
	dirs      []string
	logger    *zap.Logger
	Retention time.Duration // アーカイブの保持期間（デフォルト: 180日）
	now       func() time.Time
}

// NewJob は新しいJobを生成する。デフォルトの保持期間は180日。
func NewJob(logger *zap.Logger, dirs ...string) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		dirs:      dirs,
		logger:    logger,
		Retention: 180 * 24 * time.Hour,
		now:       time.Now,
	}
}

// Run は更新日時が保持期間より古いzipアーカイブを削除し、削除件数を返す。
// 存在しないディレクトリは無視する。
func (j *Job) Run(ctx context.Context) (int, error) {
	start := j.now()
	cutoff := start.Add(-j.Retention)

	deleted := 0
	for _, dir := range j.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			j.logger.Error("アーカイブクリーンアップジョブの実行に失敗しました",
				zap.String("dir", dir),
				zap.Error(err),
			)
			return deleted, fmt.Errorf("アーカイブクリーンアップの実行に失敗: %w", err)
		}

		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return deleted, err
			}
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".zip") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return deleted, fmt.Errorf("アーカイブの削除に失敗 %s: %w", path, err)
			}
			deleted++
		}
	}

	j.logger.Info("アーカイブクリーンアップジョブが完了しました",
		zap.Int("deleted_count", deleted),
		zap.Duration("retention", j.Retention),
		zap.Duration("duration", j.now().Sub(start)),
	)
	return deleted, nil
}

// Start はコンテキストがキャンセルされるまでinterval間隔でRunを実行する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
			j.logger.Error("archive cleanup failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
