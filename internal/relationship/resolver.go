// Package relationship は記事間リンクを双方向のビューとして解決する。
//
// 永続化するのは送信元からの向きのみで、逆向きの種別は読み出し時に
// 固定の対応表から求める。
package relationship

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hitoshi/articlerepo/internal/model"
	"github.com/hitoshi/articlerepo/internal/repository"
)

// JournalView はビューに載せるジャーナル情報。
type JournalView struct {
	JournalKey string `json:"journalKey"`
	EIssn      string `json:"eIssn,omitempty"`
	Title      string `json:"title"`
}

// View は相手側の記事から見たリンク。
// 相手側の記事に公開Revisionがない場合、Title以下は空になる。
type View struct {
	Doi             model.Doi    `json:"doi"`
	Type            string       `json:"type"`
	SpecificUse     string       `json:"specificUse,omitempty"`
	Title           string       `json:"title,omitempty"`
	PublicationDate *time.Time   `json:"publicationDate,omitempty"`
	RevisionNumber  *int         `json:"revisionNumber,omitempty"`
	Journal         *JournalView `json:"journal,omitempty"`
}

// Resolver はRelationshipResolverの実装。
type Resolver struct {
	articles      repository.ArticleRepository
	ingestions    repository.IngestionRepository
	revisions     repository.RevisionRepository
	journals      repository.JournalRepository
	relationships repository.RelationshipRepository
	logger        *zap.Logger
	now           func() time.Time
}

// NewResolver はResolverを生成する。
func NewResolver(
	articles repository.ArticleRepository,
	ingestions repository.IngestionRepository,
	revisions repository.RevisionRepository,
	journals repository.JournalRepository,
	relationships repository.RelationshipRepository,
	logger *zap.Logger,
) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		articles:      articles,
		ingestions:    ingestions,
		revisions:     revisions,
		journals:      journals,
		relationships: relationships,
		logger:        logger,
		now:           time.Now,
	}
}

// Of は宛先の記事から見たリンクを、送信元の記事の最新Revisionの情報で表す。
// 種別は保存された値を正規化したもの。
func (r *Resolver) Of(ctx context.Context, rel *model.Relationship) (View, error) {
	return r.describe(ctx, rel.SourceArticleID, CanonicalType(rel.Type), rel.SpecificUse)
}

// Invert は送信元の記事から見たリンクを、宛先の記事の最新Revisionの情報で表す。
// 種別は逆向きの種別。
func (r *Resolver) Invert(ctx context.Context, rel *model.Relationship) (View, error) {
	return r.describe(ctx, rel.TargetArticleID, InvertType(rel.Type), rel.SpecificUse)
}

func (r *Resolver) describe(ctx context.Context, articleID int64, linkType, specificUse string) (View, error) {
	article, err := r.articles.FindByID(ctx, articleID)
	if err != nil {
		return View{}, err
	}
	if article == nil {
		return View{}, model.ErrNotFound.New("article %d", articleID)
	}

	view := View{Doi: article.Doi, Type: linkType, SpecificUse: specificUse}

	revision, err := r.revisions.Latest(ctx, articleID)
	if err != nil {
		return View{}, err
	}
	if revision == nil {
		return view, nil
	}
	ingestion, err := r.ingestions.FindByID(ctx, revision.IngestionID)
	if err != nil {
		return View{}, err
	}
	if ingestion == nil {
		return View{}, model.ErrDataIntegrity.New("revision %d points at missing ingestion %d", revision.ID, revision.IngestionID)
	}
	journal, err := r.journals.FindByID(ctx, ingestion.JournalID)
	if err != nil {
		return View{}, err
	}

	number := revision.RevisionNumber
	date := ingestion.PublicationDate
	view.Title = ingestion.Title
	view.PublicationDate = &date
	view.RevisionNumber = &number
	if journal != nil {
		view.Journal = &JournalView{JournalKey: journal.JournalKey, EIssn: journal.EIssn, Title: journal.Title}
	}
	return view, nil
}

// GetRelationshipViews は記事に関係するすべてのリンクを、どちらの記事が記録したかによらず返す。
// 記事を宛先とするリンクはOf、送信元とするリンクはInvertで表し、重複は除く。
func (r *Resolver) GetRelationshipViews(ctx context.Context, articleID int64) ([]View, error) {
	inbound, err := r.relationships.ListTo(ctx, articleID)
	if err != nil {
		return nil, err
	}
	outbound, err := r.relationships.ListFrom(ctx, articleID)
	if err != nil {
		return nil, err
	}

	views := make([]View, 0, len(inbound)+len(outbound))
	seen := make(map[string]bool)
	add := func(v View) {
		key := fmt.Sprintf("%s\x00%s\x00%s", v.Doi, v.Type, v.SpecificUse)
		if seen[key] {
			return
		}
		seen[key] = true
		views = append(views, v)
	}

	for _, rel := range inbound {
		v, err := r.Of(ctx, rel)
		if err != nil {
			return nil, err
		}
		add(v)
	}
	for _, rel := range outbound {
		v, err := r.Invert(ctx, rel)
		if err != nil {
			return nil, err
		}
		add(v)
	}
	return views, nil
}

// Refresh は記事を送信元とするリンクを、原稿で宣言された関連記事で置き換える。
// まだ取り込まれていない記事へのリンクと自己参照は保存しない。
func (r *Resolver) Refresh(ctx context.Context, article *model.Article, links []model.RelatedArticleLink) error {
	type edge struct {
		target int64
		typ    string
	}
	seen := make(map[edge]bool)
	var rels []*model.Relationship

	for _, link := range links {
		target, err := r.articles.FindByDOI(ctx, link.Doi)
		if err != nil {
			return err
		}
		if target == nil {
			r.logger.Debug("related article not ingested",
				zap.String("doi", article.Doi.String()),
				zap.String("related_doi", link.Doi.String()),
			)
			continue
		}
		if target.ID == article.ID {
			continue
		}
		e := edge{target: target.ID, typ: CanonicalType(link.Type)}
		if seen[e] {
			continue
		}
		seen[e] = true
		rels = append(rels, &model.Relationship{
			SourceArticleID: article.ID,
			TargetArticleID: target.ID,
			Type:            e.typ,
			SpecificUse:     link.SpecificUse,
			Created:         r.now(),
		})
	}

	if err := r.relationships.ReplaceFrom(ctx, article.ID, rels); err != nil {
		return fmt.Errorf("failed to refresh relationships of %s: %w", article.Doi, err)
	}
	return nil
}
