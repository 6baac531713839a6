package versioning

import (
	"context"
	"fmt"
	"sort"

	"github.com/hitoshi/articlerepo/internal/model"
)

// ItemSet は1つの取り込みのItemと付随ファイル。
type ItemSet struct {
	Ingestion *model.Ingestion
	Items     []*model.Item
	Ancillary []*model.File
}

// Manuscript は記事本体のItemの原稿ファイルを返す。
func (s *ItemSet) Manuscript(doi model.Doi) *model.File {
	for _, item := range s.Items {
		if item.Doi == doi && item.ItemType == model.ItemTypeArticle {
			return item.File(model.FileTypeManuscript)
		}
	}
	return nil
}

// Files は付随ファイルを含むすべてのFileを返す。
func (s *ItemSet) Files() []*model.File {
	var files []*model.File
	for _, item := range s.Items {
		files = append(files, item.Files...)
	}
	return append(files, s.Ancillary...)
}

// ReadItemSet は取り込みのItemとFileを読み出し、親子関係を検証する。
// 別の取り込みに属する行や存在しないItemを指すFileがあればmodel.ErrDataIntegrityを返す。
func (s *Store) ReadItemSet(ctx context.Context, ingestion *model.Ingestion) (*ItemSet, error) {
	items, err := s.repos.Items.ListByIngestion(ctx, ingestion.ID)
	if err != nil {
		return nil, fmt.Errorf("Itemの一覧取得に失敗しました: %w", err)
	}
	files, err := s.repos.Items.ListFilesByIngestion(ctx, ingestion.ID)
	if err != nil {
		return nil, fmt.Errorf("ファイルの一覧取得に失敗しました: %w", err)
	}

	set := &ItemSet{Ingestion: ingestion, Items: items}
	byID := make(map[int64]*model.Item, len(items))
	for _, item := range items {
		if item.IngestionID != ingestion.ID {
			return nil, model.ErrDataIntegrity.New("item %s belongs to ingestion %d, not %d", item.Doi, item.IngestionID, ingestion.ID)
		}
		item.Files = nil
		byID[item.ID] = item
	}

	for _, f := range files {
		if f.IngestionID != ingestion.ID {
			return nil, model.ErrDataIntegrity.New("file %d belongs to ingestion %d, not %d", f.ID, f.IngestionID, ingestion.ID)
		}
		if f.ItemID == nil {
			set.Ancillary = append(set.Ancillary, f)
			continue
		}
		item, ok := byID[*f.ItemID]
		if !ok {
			return nil, model.ErrDataIntegrity.New("file %d points at item %d outside ingestion %d", f.ID, *f.ItemID, ingestion.ID)
		}
		item.Files = append(item.Files, f)
	}
	return set, nil
}

// ItemRef はItemとそれを含む取り込み。
type ItemRef struct {
	Article   *model.Article
	Ingestion *model.Ingestion
	Item      *model.Item
}

// ResolveItem はItemのDoiから、それを含むすべての取り込みを取り込み番号順に返す。
// 見つからなければmodel.ErrNotFoundを返す。
func (s *Store) ResolveItem(ctx context.Context, doi model.Doi) ([]ItemRef, error) {
	items, err := s.repos.Items.ListByDOI(ctx, doi)
	if err != nil {
		return nil, fmt.Errorf("Itemの検索に失敗しました: %w", err)
	}
	if len(items) == 0 {
		return nil, model.ErrNotFound.New("item %s", doi)
	}

	refs := make([]ItemRef, 0, len(items))
	for _, item := range items {
		ingestion, err := s.repos.Ingestions.FindByID(ctx, item.IngestionID)
		if err != nil {
			return nil, fmt.Errorf("取り込みの検索に失敗しました: %w", err)
		}
		if ingestion == nil {
			return nil, model.ErrDataIntegrity.New("item %s points at missing ingestion %d", doi, item.IngestionID)
		}
		article, err := s.repos.Articles.FindByID(ctx, ingestion.ArticleID)
		if err != nil {
			return nil, fmt.Errorf("記事の検索に失敗しました: %w", err)
		}
		if article == nil {
			return nil, model.ErrDataIntegrity.New("ingestion %d points at missing article %d", ingestion.ID, ingestion.ArticleID)
		}
		refs = append(refs, ItemRef{Article: article, Ingestion: ingestion, Item: item})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Article.ID != refs[j].Article.ID {
			return refs[i].Article.ID < refs[j].Article.ID
		}
		return refs[i].Ingestion.IngestionNumber < refs[j].Ingestion.IngestionNumber
	})
	return refs, nil
}
