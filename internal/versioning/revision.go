package versioning

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/hitoshi/articlerepo/internal/model"
	"github.com/hitoshi/articlerepo/internal/repository"
)

// CreateRevision は取り込みをrevisionNumberとして公開する。
// 番号が既に使われていればmodel.ErrDuplicateRevisionを返す。判定はデータベースの一意制約による。
func (s *Store) CreateRevision(ctx context.Context, id model.ArticleIngestionIdentifier, revisionNumber int) (*model.Revision, error) {
	if revisionNumber < 1 {
		return nil, fmt.Errorf("invalid revision number: %d", revisionNumber)
	}
	article, ingestion, err := s.GetIngestion(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.createRevision(ctx, article, ingestion, revisionNumber)
}

// CreateNextRevision は取り込みを最新のRevision番号+1（未公開なら1）として公開する。
func (s *Store) CreateNextRevision(ctx context.Context, id model.ArticleIngestionIdentifier) (*model.Revision, error) {
	article, ingestion, err := s.GetIngestion(ctx, id)
	if err != nil {
		return nil, err
	}
	latest, err := s.repos.Revisions.Latest(ctx, article.ID)
	if err != nil {
		return nil, fmt.Errorf("Revisionの検索に失敗しました: %w", err)
	}
	next := 1
	if latest != nil {
		next = latest.RevisionNumber + 1
	}
	return s.createRevision(ctx, article, ingestion, next)
}

func (s *Store) createRevision(ctx context.Context, article *model.Article, ingestion *model.Ingestion, number int) (*model.Revision, error) {
	rev := &model.Revision{
		ArticleID:      article.ID,
		RevisionNumber: number,
		IngestionID:    ingestion.ID,
		Created:        s.now(),
	}
	if err := s.repos.Revisions.Create(ctx, rev); err != nil {
		if repository.IsUniqueViolation(err, repository.ConstraintRevisionNumber) {
			return nil, model.ErrDuplicateRevision.New("%s", model.ArticleRevisionIdentifier{Doi: article.Doi, RevisionNumber: number})
		}
		return nil, fmt.Errorf("Revisionの作成に失敗しました: %w", err)
	}
	s.metrics.RecordRevisionPublished()
	s.logger.Info("revision published",
		zap.String("doi", article.Doi.String()),
		zap.Int("revision_number", number),
		zap.Int("ingestion_number", ingestion.IngestionNumber),
	)

	s.afterRevisionChange(ctx, article)
	return rev, nil
}

// WriteRevision はRevisionを取り込みに向ける。Revisionがなければ作成し、あれば指す先を移す。
// Revisionと取り込みは同じ記事のものでなければならない。
func (s *Store) WriteRevision(ctx context.Context, revID model.ArticleRevisionIdentifier, ingestionID model.ArticleIngestionIdentifier) (*model.Revision, error) {
	if revID.Doi != ingestionID.Doi {
		return nil, model.ErrDataIntegrity.New("%s and %s belong to different articles", revID, ingestionID)
	}
	article, ingestion, err := s.GetIngestion(ctx, ingestionID)
	if err != nil {
		return nil, err
	}

	rev, err := s.repos.Revisions.FindByNumber(ctx, article.ID, revID.RevisionNumber)
	if err != nil {
		return nil, fmt.Errorf("Revisionの検索に失敗しました: %w", err)
	}
	if rev == nil {
		return s.createRevision(ctx, article, ingestion, revID.RevisionNumber)
	}
	if rev.IngestionID == ingestion.ID {
		return rev, nil
	}

	if err := s.repos.Revisions.UpdateIngestion(ctx, rev.ID, ingestion.ID); err != nil {
		return nil, fmt.Errorf("Revisionの更新に失敗しました: %w", err)
	}
	rev.IngestionID = ingestion.ID
	s.logger.Info("revision moved",
		zap.String("doi", article.Doi.String()),
		zap.Int("revision_number", rev.RevisionNumber),
		zap.Int("ingestion_number", ingestion.IngestionNumber),
	)

	s.afterRevisionChange(ctx, article)
	return rev, nil
}

// DeleteRevision はRevisionの行だけを削除する。取り込み・Item・Fileは残る。
// Revisionが存在しなければmodel.ErrNotFoundを返す。
func (s *Store) DeleteRevision(ctx context.Context, id model.ArticleRevisionIdentifier) error {
	article, err := s.GetArticle(ctx, model.ArticleIdentifier{Doi: id.Doi})
	if err != nil {
		return err
	}
	rev, err := s.repos.Revisions.FindByNumber(ctx, article.ID, id.RevisionNumber)
	if err != nil {
		return fmt.Errorf("Revisionの検索に失敗しました: %w", err)
	}
	if rev == nil {
		return model.ErrNotFound.New("%s", id)
	}
	if err := s.repos.Revisions.Delete(ctx, rev.ID); err != nil {
		return err
	}
	s.metrics.RecordRevisionDeleted()
	s.logger.Info("revision deleted",
		zap.String("doi", article.Doi.String()),
		zap.Int("revision_number", id.RevisionNumber),
	)

	s.afterRevisionChange(ctx, article)
	return nil
}

// afterRevisionChange は最新Revisionに合わせて記事からのリンクを更新し、索引に通知する。
// 公開Revisionがなくなった場合はリンクを消して削除を通知する。
// Revisionの変更はコミット済みなので、ここでの失敗はログに残すだけにする。
func (s *Store) afterRevisionChange(ctx context.Context, article *model.Article) {
	latest, err := s.repos.Revisions.Latest(ctx, article.ID)
	if err != nil {
		s.logger.Warn("latest revision lookup failed", zap.String("doi", article.Doi.String()), zap.Error(err))
		return
	}
	identifier := model.ArticleIdentifier{Doi: article.Doi}

	if latest == nil {
		if err := s.resolver.Refresh(ctx, article, nil); err != nil {
			s.logger.Warn("relationship refresh failed", zap.String("doi", article.Doi.String()), zap.Error(err))
		}
		s.notifier.ArticleRemoved(ctx, identifier)
		return
	}

	links, err := s.relatedArticles(ctx, article, latest)
	if err != nil {
		s.logger.Warn("manuscript read failed", zap.String("doi", article.Doi.String()), zap.Error(err))
	} else if err := s.resolver.Refresh(ctx, article, links); err != nil {
		s.logger.Warn("relationship refresh failed", zap.String("doi", article.Doi.String()), zap.Error(err))
	}
	s.notifier.ArticleIndexed(ctx, identifier, latest.RevisionNumber)
}

// relatedArticles はRevisionが指す取り込みの原稿から関連記事の宣言を読み出す。
func (s *Store) relatedArticles(ctx context.Context, article *model.Article, rev *model.Revision) ([]model.RelatedArticleLink, error) {
	ingestion, err := s.ingestionOf(ctx, rev)
	if err != nil {
		return nil, err
	}
	set, err := s.ReadItemSet(ctx, ingestion)
	if err != nil {
		return nil, err
	}
	manuscript := set.Manuscript(article.Doi)
	if manuscript == nil {
		return nil, model.ErrDataIntegrity.New("ingestion %d of %s has no manuscript", ingestion.IngestionNumber, article.Doi)
	}

	rc, err := s.objects.Open(ctx, manuscript)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	doc, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("原稿の読み込みに失敗しました: %w", err)
	}
	meta, err := s.extractor.Extract(doc)
	if err != nil {
		return nil, err
	}
	return meta.RelatedArticles, nil
}
