// Package versioning は記事・取り込み・公開Revisionの状態を管理する。
//
// 取り込みは記事ごとに連番で不変に保存され、公開はRevisionという別の番号付きの
// ポインタで行う。Revisionの作成と削除は取り込みの内容に影響しない。
package versioning

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/hitoshi/articlerepo/internal/articlepkg"
	"github.com/hitoshi/articlerepo/internal/jats"
	"github.com/hitoshi/articlerepo/internal/metrics"
	"github.com/hitoshi/articlerepo/internal/model"
	"github.com/hitoshi/articlerepo/internal/notify"
	"github.com/hitoshi/articlerepo/internal/objectstore"
	"github.com/hitoshi/articlerepo/internal/overview"
	"github.com/hitoshi/articlerepo/internal/relationship"
	"github.com/hitoshi/articlerepo/internal/repository"
)

// ErrIngestionConflict は同じ記事への同時取り込みで取り込み番号が衝突したことを示す。
// 呼び出し側は取り込み全体をやり直す。
var ErrIngestionConflict = errs.Class("ingestion number conflict")

// articleCreateAttempts は記事作成が一意制約で競合したときの再取得回数。
const articleCreateAttempts = 3

// ObjectStorage はBlobStoreへの書き込みと読み出し。objectstore.Serviceが実装する。
type ObjectStorage interface {
	StoreAll(ctx context.Context, pkg *articlepkg.Package, ingestion *model.Ingestion) (*objectstore.Stored, error)
	Open(ctx context.Context, f *model.File) (io.ReadCloser, error)
}

// Store はVersioningStoreの実装。
type Store struct {
	repos     repository.Set
	objects   ObjectStorage
	extractor jats.MetadataExtractor
	resolver  *relationship.Resolver
	notifier  notify.Notifier
	metrics   metrics.MetricsCollector
	logger    *zap.Logger
	now       func() time.Time
}

// NewStore はStoreを生成する。notifier、mc、loggerはnilでもよい。
func NewStore(
	repos repository.Set,
	objects ObjectStorage,
	extractor jats.MetadataExtractor,
	resolver *relationship.Resolver,
	notifier notify.Notifier,
	mc metrics.MetricsCollector,
	logger *zap.Logger,
) *Store {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		repos:     repos,
		objects:   objects,
		extractor: extractor,
		resolver:  resolver,
		notifier:  notifier,
		metrics:   mc,
		logger:    logger,
		now:       time.Now,
	}
}

// GetOrCreateArticle はDoiの記事を返す。存在しなければ作成する。
// 同時に作成された場合は一意制約違反を受けて既存の行を読み直す。
func (s *Store) GetOrCreateArticle(ctx context.Context, doi model.Doi) (*model.Article, error) {
	for attempt := 0; attempt < articleCreateAttempts; attempt++ {
		article, err := s.repos.Articles.FindByDOI(ctx, doi)
		if err != nil {
			return nil, fmt.Errorf("記事の検索に失敗しました: %w", err)
		}
		if article != nil {
			return article, nil
		}

		article = &model.Article{Doi: doi, Created: s.now()}
		err = s.repos.Articles.Create(ctx, article)
		if err == nil {
			return article, nil
		}
		if !repository.IsUniqueViolation(err, repository.ConstraintArticleDoi) {
			return nil, fmt.Errorf("記事の作成に失敗しました: %w", err)
		}
		s.logger.Debug("article created concurrently", zap.String("doi", doi.String()))
	}
	return nil, fmt.Errorf("記事 %s の作成が競合し続けました", doi)
}

// GetArticle はDoiの記事を返す。存在しなければmodel.ErrNotFoundを返す。
func (s *Store) GetArticle(ctx context.Context, id model.ArticleIdentifier) (*model.Article, error) {
	article, err := s.repos.Articles.FindByDOI(ctx, id.Doi)
	if err != nil {
		return nil, fmt.Errorf("記事の検索に失敗しました: %w", err)
	}
	if article == nil {
		return nil, model.ErrNotFound.New("article %s", id)
	}
	return article, nil
}

// GetIngestion は記事の取り込みを番号で返す。
func (s *Store) GetIngestion(ctx context.Context, id model.ArticleIngestionIdentifier) (*model.Article, *model.Ingestion, error) {
	article, err := s.GetArticle(ctx, model.ArticleIdentifier{Doi: id.Doi})
	if err != nil {
		return nil, nil, err
	}
	ingestion, err := s.repos.Ingestions.FindByNumber(ctx, article.ID, id.IngestionNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("取り込みの検索に失敗しました: %w", err)
	}
	if ingestion == nil {
		return nil, nil, model.ErrNotFound.New("%s", id)
	}
	return article, ingestion, nil
}

// ListIngestions は記事の取り込みを番号順に返す。
func (s *Store) ListIngestions(ctx context.Context, id model.ArticleIdentifier) ([]*model.Ingestion, error) {
	article, err := s.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.repos.Ingestions.ListByArticle(ctx, article.ID)
}

// ListRevisions は記事のRevisionを番号順に返す。
func (s *Store) ListRevisions(ctx context.Context, id model.ArticleIdentifier) ([]*model.Revision, error) {
	article, err := s.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.repos.Revisions.ListByArticle(ctx, article.ID)
}

// GetRevision はRevisionとそれが指す取り込みを返す。
func (s *Store) GetRevision(ctx context.Context, id model.ArticleRevisionIdentifier) (*model.Revision, *model.Ingestion, error) {
	article, err := s.GetArticle(ctx, model.ArticleIdentifier{Doi: id.Doi})
	if err != nil {
		return nil, nil, err
	}
	rev, err := s.repos.Revisions.FindByNumber(ctx, article.ID, id.RevisionNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("Revisionの検索に失敗しました: %w", err)
	}
	if rev == nil {
		return nil, nil, model.ErrNotFound.New("%s", id)
	}
	ingestion, err := s.ingestionOf(ctx, rev)
	if err != nil {
		return nil, nil, err
	}
	return rev, ingestion, nil
}

// GetLatestRevision は最大番号のRevisionを返す。公開されていなければnilを返す。
func (s *Store) GetLatestRevision(ctx context.Context, id model.ArticleIdentifier) (*model.Revision, error) {
	article, err := s.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.repos.Revisions.Latest(ctx, article.ID)
}

// Overview は記事の取り込みとRevisionの対応表を返す。
func (s *Store) Overview(ctx context.Context, id model.ArticleIdentifier) (*model.ArticleOverview, error) {
	article, err := s.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	ingestions, err := s.repos.Ingestions.ListByArticle(ctx, article.ID)
	if err != nil {
		return nil, fmt.Errorf("取り込みの一覧取得に失敗しました: %w", err)
	}
	revisions, err := s.repos.Revisions.ListByArticle(ctx, article.ID)
	if err != nil {
		return nil, fmt.Errorf("Revisionの一覧取得に失敗しました: %w", err)
	}
	return overview.Build(article, ingestions, revisions)
}

// Relationships は記事に関係するリンクをどちらの向きに記録されたかによらず返す。
func (s *Store) Relationships(ctx context.Context, id model.ArticleIdentifier) ([]relationship.View, error) {
	article, err := s.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.resolver.GetRelationshipViews(ctx, article.ID)
}

func (s *Store) ingestionOf(ctx context.Context, rev *model.Revision) (*model.Ingestion, error) {
	ingestion, err := s.repos.Ingestions.FindByID(ctx, rev.IngestionID)
	if err != nil {
		return nil, fmt.Errorf("取り込みの検索に失敗しました: %w", err)
	}
	if ingestion == nil {
		return nil, model.ErrDataIntegrity.New("revision %d points at missing ingestion %d", rev.RevisionNumber, rev.IngestionID)
	}
	return ingestion, nil
}
