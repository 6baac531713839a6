package versioning

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hitoshi/articlerepo/internal/articlepkg"
	"github.com/hitoshi/articlerepo/internal/model"
	"github.com/hitoshi/articlerepo/internal/objectstore"
	"github.com/hitoshi/articlerepo/internal/repository"
)

// PersistPackage はパッケージを新しい取り込みとして保存する。
// Blobはトランザクションの外で先に書き込み、取り込み・Item・Fileの行は
// 1つのトランザクションでまとめて保存する。途中で失敗した場合は行を残さない。
// 書き込み済みのBlobは参照されないまま残る。
// 取り込み番号が衝突した場合はErrIngestionConflictを返す。
func (s *Store) PersistPackage(ctx context.Context, pkg *articlepkg.Package, meta *model.ArticleMetadata) (*model.Ingestion, error) {
	// 1. ジャーナルの解決
	journal, err := s.ResolveJournal(ctx, meta)
	if err != nil {
		return nil, err
	}

	// 2. アセットが他の記事に属していないことの確認
	if err := s.CheckAssetOwnership(ctx, pkg); err != nil {
		return nil, err
	}

	// 3. 記事の取得または作成
	article, err := s.GetOrCreateArticle(ctx, pkg.Doi)
	if err != nil {
		return nil, err
	}

	// 4. Blobの書き込み。採番の行ロックを取る前に終える
	stored, err := s.StoreFiles(ctx, pkg)
	if err != nil {
		return nil, err
	}

	// 5. 取り込み・Item・Fileの保存
	var ingestion *model.Ingestion
	var items []*model.Item
	err = s.repos.Ingestions.WithinTx(ctx, func(w repository.IngestionWriter) error {
		in, err := s.PersistIngestion(ctx, w, article, journal, meta)
		if err != nil {
			return err
		}
		persisted, _, err := s.PersistItemsAndFiles(ctx, w, stored, in)
		if err != nil {
			return err
		}
		if striking := ResolveStrikingImage(pkg, persisted); striking != nil {
			modified := s.now()
			if err := w.SetStrikingImage(ctx, in.ID, striking.ID, modified); err != nil {
				return fmt.Errorf("代表画像の設定に失敗しました: %w", err)
			}
			in.StrikingImageItemID = &striking.ID
			in.LastModified = modified
		}
		ingestion, items = in, persisted
		return nil
	})
	if err != nil {
		if repository.IsUniqueViolation(err, repository.ConstraintIngestionNumber) {
			return nil, ErrIngestionConflict.Wrap(err)
		}
		return nil, err
	}

	s.logger.Info("ingestion persisted",
		zap.String("doi", article.Doi.String()),
		zap.Int("ingestion_number", ingestion.IngestionNumber),
		zap.Int("items", len(items)),
		zap.Int("files", pkg.FileCount()),
	)
	return ingestion, nil
}

// ResolveJournal はジャーナルキーの完全一致で、見つからなければeIssnでジャーナルを解決する。
// どちらでも見つからない場合はmodel.ErrConfigurationを返す。
func (s *Store) ResolveJournal(ctx context.Context, meta *model.ArticleMetadata) (*model.Journal, error) {
	if meta.JournalKey != "" {
		j, err := s.repos.Journals.FindByKey(ctx, meta.JournalKey)
		if err != nil {
			return nil, fmt.Errorf("ジャーナルの検索に失敗しました: %w", err)
		}
		if j != nil {
			return j, nil
		}
	}
	if meta.EIssn != "" {
		j, err := s.repos.Journals.FindByEIssn(ctx, meta.EIssn)
		if err != nil {
			return nil, fmt.Errorf("ジャーナルの検索に失敗しました: %w", err)
		}
		if j != nil {
			return j, nil
		}
	}
	return nil, model.ErrConfiguration.New("journal not found: key=%q eIssn=%q", meta.JournalKey, meta.EIssn)
}

// CheckAssetOwnership はパッケージのItemのDoiが他の記事の取り込みで使われていないことを確認する。
// 記事はDoiで比べるので、記事がまだ作成されていなくても判定できる。
func (s *Store) CheckAssetOwnership(ctx context.Context, pkg *articlepkg.Package) error {
	owners := make(map[int64]model.Doi)
	for _, input := range pkg.Items {
		existing, err := s.repos.Items.ListByDOI(ctx, input.Doi)
		if err != nil {
			return fmt.Errorf("Itemの検索に失敗しました: %w", err)
		}
		for _, item := range existing {
			owner, ok := owners[item.IngestionID]
			if !ok {
				if owner, err = s.ownerOf(ctx, item); err != nil {
					return err
				}
				owners[item.IngestionID] = owner
			}
			if owner != pkg.Doi {
				return model.ErrDataIntegrity.New("asset %s already belongs to %s", input.Doi, owner)
			}
		}
	}
	return nil
}

func (s *Store) ownerOf(ctx context.Context, item *model.Item) (model.Doi, error) {
	in, err := s.repos.Ingestions.FindByID(ctx, item.IngestionID)
	if err != nil {
		return "", fmt.Errorf("取り込みの検索に失敗しました: %w", err)
	}
	if in == nil {
		return "", model.ErrDataIntegrity.New("item %d points at missing ingestion %d", item.ID, item.IngestionID)
	}
	article, err := s.repos.Articles.FindByID(ctx, in.ArticleID)
	if err != nil {
		return "", fmt.Errorf("記事の検索に失敗しました: %w", err)
	}
	if article == nil {
		return "", model.ErrDataIntegrity.New("ingestion %d points at missing article %d", in.ID, in.ArticleID)
	}
	return article.Doi, nil
}

// PersistIngestion は次の取り込み番号を採番して取り込みの行を挿入する。
// 採番と挿入は同じトランザクションで行う。
func (s *Store) PersistIngestion(ctx context.Context, w repository.IngestionWriter, article *model.Article, journal *model.Journal, meta *model.ArticleMetadata) (*model.Ingestion, error) {
	number, err := w.NextIngestionNumber(ctx, article.ID)
	if err != nil {
		return nil, fmt.Errorf("取り込み番号の採番に失敗しました: %w", err)
	}

	now := s.now()
	ingestion := &model.Ingestion{
		ArticleID:        article.ID,
		IngestionNumber:  number,
		Title:            meta.Title,
		PublicationDate:  meta.PublicationDate,
		RevisionDate:     meta.RevisionDate,
		ArticleType:      meta.ArticleType,
		PublicationStage: meta.PublicationStage,
		JournalID:        journal.ID,
		Created:          now,
		LastModified:     now,
	}
	if err := w.InsertIngestion(ctx, ingestion); err != nil {
		return nil, fmt.Errorf("取り込みの保存に失敗しました: %w", err)
	}
	return ingestion, nil
}

// StoreFiles はパッケージのファイルをBlobStoreへ書き込み、未永続化のItemとFileを返す。
// 1つのItemに同じファイル種別が2つあればmodel.ErrDataIntegrityを返し、何も書き込まない。
func (s *Store) StoreFiles(ctx context.Context, pkg *articlepkg.Package) (*objectstore.Stored, error) {
	for _, input := range pkg.Items {
		if err := checkDistinctFileTypes(input); err != nil {
			return nil, err
		}
	}
	return s.objects.StoreAll(ctx, pkg, nil)
}

// PersistItemsAndFiles は書き込み済みのItemとFileをingestionに結び付けて行を挿入する。
func (s *Store) PersistItemsAndFiles(ctx context.Context, w repository.IngestionWriter, stored *objectstore.Stored, ingestion *model.Ingestion) ([]*model.Item, []*model.File, error) {
	for _, item := range stored.Items {
		item.IngestionID = ingestion.ID
		if err := w.InsertItem(ctx, item); err != nil {
			return nil, nil, fmt.Errorf("Item %s の保存に失敗しました: %w", item.Doi, err)
		}
		for _, f := range item.Files {
			f.IngestionID = ingestion.ID
			f.ItemID = &item.ID
			if err := insertFile(ctx, w, f); err != nil {
				return nil, nil, err
			}
		}
	}
	for _, f := range stored.Ancillary {
		f.IngestionID = ingestion.ID
		if err := insertFile(ctx, w, f); err != nil {
			return nil, nil, err
		}
	}
	return stored.Items, stored.Ancillary, nil
}

func insertFile(ctx context.Context, w repository.IngestionWriter, f *model.File) error {
	err := w.InsertFile(ctx, f)
	if err == nil {
		return nil
	}
	if repository.IsUniqueViolation(err, repository.ConstraintItemFileType) {
		return model.ErrDataIntegrity.New("duplicate file type %s at %s", f.FileType, f.IngestedFileName)
	}
	return fmt.Errorf("ファイル %s の保存に失敗しました: %w", f.IngestedFileName, err)
}

func checkDistinctFileTypes(input articlepkg.ItemInput) error {
	seen := make(map[model.FileType]bool, len(input.Files))
	for _, f := range input.Files {
		if seen[f.FileType] {
			return model.ErrDataIntegrity.New("duplicate file type %s for item %s", f.FileType, input.Doi)
		}
		seen[f.FileType] = true
	}
	return nil
}

// ResolveStrikingImage はパッケージが宣言した代表画像を保存済みのItemから探す。
// 宣言がない場合や見つからない場合はnilを返す。
func ResolveStrikingImage(pkg *articlepkg.Package, items []*model.Item) *model.Item {
	if pkg.StrikingImageDoi == "" {
		return nil
	}
	for _, item := range items {
		if item.Doi == pkg.StrikingImageDoi {
			return item
		}
	}
	return nil
}
