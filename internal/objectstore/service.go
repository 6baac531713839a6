// Package objectstore はArticlePackageのファイルをBlobStoreへ書き込み、
// ハンドルを持つItem・Fileを組み立てる。
package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/articlerepo/internal/archive"
	"github.com/hitoshi/articlerepo/internal/articlepkg"
	"github.com/hitoshi/articlerepo/internal/blob"
	"github.com/hitoshi/articlerepo/internal/metrics"
	"github.com/hitoshi/articlerepo/internal/model"
)

// Service はObjectStorageServiceの実装。
type Service struct {
	store       blob.Store
	metrics     metrics.MetricsCollector
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
}

// NewService はServiceを生成する。concurrencyは1件の取り込みで同時に行うPutの上限。
func NewService(store blob.Store, mc metrics.MetricsCollector, logger *zap.Logger, concurrency int) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:       store,
		metrics:     mc,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Stored はStoreAllの結果。
type Stored struct {
	Items     []*model.Item
	Ancillary []*model.File
}

// StoreItem はItemの全ファイル表現を書き込み、未永続化のItemを返す。
// ファイルが1つもないItemも有効。失敗時はItemを返さない。
func (s *Service) StoreItem(ctx context.Context, input articlepkg.ItemInput, ingestion *model.Ingestion) (*model.Item, error) {
	files, err := s.storeFiles(ctx, input.Files, ingestion)
	if err != nil {
		return nil, err
	}
	return s.newItem(input, ingestion, files), nil
}

// StoreAncillaryFiles は付随ファイルを書き込み、Itemを持たないFileを返す。
func (s *Service) StoreAncillaryFiles(ctx context.Context, pkg *articlepkg.Package, ingestion *model.Ingestion) ([]*model.File, error) {
	return s.storeFiles(ctx, pkg.Ancillary, ingestion)
}

// StoreAll はパッケージのすべてのファイルを1回の並列書き込みで保存する。
// ingestionがnilの場合、IngestionIDは0のままにする。呼び出し側が行の挿入前に設定する。
func (s *Service) StoreAll(ctx context.Context, pkg *articlepkg.Package, ingestion *model.Ingestion) (*Stored, error) {
	inputs := make([]articlepkg.FileInput, 0, pkg.FileCount())
	for _, item := range pkg.Items {
		inputs = append(inputs, item.Files...)
	}
	inputs = append(inputs, pkg.Ancillary...)

	files, err := s.storeFiles(ctx, inputs, ingestion)
	if err != nil {
		return nil, err
	}

	stored := &Stored{Items: make([]*model.Item, 0, len(pkg.Items))}
	offset := 0
	for _, item := range pkg.Items {
		n := len(item.Files)
		stored.Items = append(stored.Items, s.newItem(item, ingestion, files[offset:offset+n]))
		offset += n
	}
	stored.Ancillary = files[offset:]
	return stored, nil
}

func (s *Service) newItem(input articlepkg.ItemInput, ingestion *model.Ingestion, files []*model.File) *model.Item {
	return &model.Item{
		IngestionID: ingestionID(ingestion),
		Doi:         input.Doi,
		ItemType:    input.ItemType,
		Files:       files,
		Created:     s.now(),
	}
}

// storeFiles はinputsを並列に書き込み、入力と同じ順序でFileを返す。
// 1件でも失敗した場合は残りを取り消し、ErrStorageWriteを返す。
func (s *Service) storeFiles(ctx context.Context, inputs []articlepkg.FileInput, ingestion *model.Ingestion) ([]*model.File, error) {
	files := make([]*model.File, len(inputs))
	if len(inputs) == 0 {
		return files, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			f, err := s.storeFile(gctx, in, ingestion)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func (s *Service) storeFile(ctx context.Context, in articlepkg.FileInput, ingestion *model.Ingestion) (*model.File, error) {
	data, err := in.Read()
	if err != nil {
		return nil, model.ErrInvalidPackage.Wrap(fmt.Errorf("failed to read %s: %w", in.Entry, err))
	}

	handle, err := s.store.Put(ctx, in.Key, data, in.ContentType)
	if err != nil {
		s.logger.Warn("blob write failed",
			zap.String("entry", in.Entry),
			zap.String("key", in.Key),
			zap.Error(err),
		)
		return nil, model.ErrStorageWrite.Wrap(fmt.Errorf("failed to store %s: %w", in.Entry, err))
	}
	s.metrics.RecordBlobWrite(handle.Size)

	return &model.File{
		IngestionID:      ingestionID(ingestion),
		FileType:         in.FileType,
		Handle:           handle,
		IngestedFileName: in.Entry,
		DownloadName:     in.DownloadName,
		ContentType:      in.ContentType,
		Created:          s.now(),
	}, nil
}

func ingestionID(in *model.Ingestion) int64 {
	if in == nil {
		return 0
	}
	return in.ID
}

// Open は保存済みファイルの内容を返す。呼び出し側でCloseすること。
func (s *Service) Open(ctx context.Context, f *model.File) (io.ReadCloser, error) {
	rc, err := s.store.Get(ctx, f.Handle)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.IngestedFileName, err)
	}
	return rc, nil
}

// Repack は保存済みのファイルを取り込み時のエントリ名でzipアーカイブに書き戻す。
// 同じエントリを複数の表現が参照している場合は最初のものだけを書く。
func (s *Service) Repack(ctx context.Context, files []*model.File, w io.Writer) error {
	entries := make([]archive.Entry, 0, len(files))
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		f := f
		if seen[f.IngestedFileName] {
			continue
		}
		seen[f.IngestedFileName] = true
		entries = append(entries, archive.Entry{
			Name: f.IngestedFileName,
			Open: func() (io.ReadCloser, error) { return s.Open(ctx, f) },
		})
	}
	return archive.Write(w, entries)
}
