// Package overview は記事の取り込みと公開Revisionの対応表を組み立てる。
package overview

import (
	"sort"

	"github.com/hitoshi/articlerepo/internal/model"
)

// Build はIngestionとRevisionの一覧からArticleOverviewを組み立てる。
// 入力の順序によらず同じ結果を返し、入力を変更しない。
// 入力にないIngestionを指すRevisionがあればmodel.ErrDataIntegrityを返す。
func Build(article *model.Article, ingestions []*model.Ingestion, revisions []*model.Revision) (*model.ArticleOverview, error) {
	ov := &model.ArticleOverview{
		ArticleID:  article.ID,
		Doi:        article.Doi,
		Ingestions: make(map[int][]int, len(ingestions)),
		Revisions:  make(map[int]int, len(revisions)),
	}

	numbers := make(map[int64]int, len(ingestions))
	for _, in := range ingestions {
		if in.ArticleID != article.ID {
			return nil, model.ErrDataIntegrity.New("ingestion %d belongs to article %d, not %d", in.ID, in.ArticleID, article.ID)
		}
		numbers[in.ID] = in.IngestionNumber
		ov.Ingestions[in.IngestionNumber] = []int{}
	}

	for _, rev := range revisions {
		number, ok := numbers[rev.IngestionID]
		if !ok {
			return nil, model.ErrDataIntegrity.New("revision %d points at unknown ingestion %d", rev.RevisionNumber, rev.IngestionID)
		}
		ov.Ingestions[number] = append(ov.Ingestions[number], rev.RevisionNumber)
		ov.Revisions[rev.RevisionNumber] = number
	}

	for _, set := range ov.Ingestions {
		sort.Ints(set)
	}
	return ov, nil
}
