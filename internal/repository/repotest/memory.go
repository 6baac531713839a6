// Package repotest はテスト用のインメモリリポジトリを提供する。
//
// 一意制約はPostgreSQLと同じ制約名の*pq.Errorで報告する。
// IngestionWriterの書き込みはコミットまで他から見えず、取り込み番号の一意制約は
// コミット時に検査するため、同時取り込みの競合を再現できる。
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/articlerepo/internal/model"
	"github.com/hitoshi/articlerepo/internal/repository"
)

func uniqueViolation(constraint string) error {
	return &pq.Error{Code: "23505", Constraint: constraint, Message: "duplicate key value violates unique constraint"}
}

// Store はすべてのテーブルを保持する。
type Store struct {
	mu sync.Mutex

	nextID int64

	journals      map[int64]*model.Journal
	articles      map[int64]*model.Article
	ingestions    map[int64]*model.Ingestion
	items         map[int64]*model.Item
	files         map[int64]*model.File
	revisions     map[int64]*model.Revision
	relationships map[int64]*model.Relationship

	// BeforeCommit はテストからコミット直前に割り込むためのフック。
	BeforeCommit func()
}

// New は空のStoreを生成する。
func New() *Store {
	return &Store{
		journals:      make(map[int64]*model.Journal),
		articles:      make(map[int64]*model.Article),
		ingestions:    make(map[int64]*model.Ingestion),
		items:         make(map[int64]*model.Item),
		files:         make(map[int64]*model.File),
		revisions:     make(map[int64]*model.Revision),
		relationships: make(map[int64]*model.Relationship),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Articles はArticleRepositoryを返す。
func (s *Store) Articles() repository.ArticleRepository { return articleRepo{s} }

// Journals はJournalRepositoryを返す。
func (s *Store) Journals() repository.JournalRepository { return journalRepo{s} }

// Ingestions はIngestionRepositoryを返す。
func (s *Store) Ingestions() repository.IngestionRepository { return ingestionRepo{s} }

// Items はItemRepositoryを返す。
func (s *Store) Items() repository.ItemRepository { return itemRepo{s} }

// Revisions はRevisionRepositoryを返す。
func (s *Store) Revisions() repository.RevisionRepository { return revisionRepo{s} }

// Relationships はRelationshipRepositoryを返す。
func (s *Store) Relationships() repository.RelationshipRepository { return relationshipRepo{s} }

// Counts はテーブルごとの行数を返す。
func (s *Store) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int{
		"articles":      len(s.articles),
		"ingestions":    len(s.ingestions),
		"items":         len(s.items),
		"files":         len(s.files),
		"revisions":     len(s.revisions),
		"relationships": len(s.relationships),
	}
}

// InsertItemDirect はトランザクションを経由せずにItemを登録する。不整合データの再現用。
func (s *Store) InsertItemDirect(item *model.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.id()
	cp := *item
	cp.Files = nil
	s.items[item.ID] = &cp
}

// InsertFileDirect はトランザクションを経由せずにFileを登録する。不整合データの再現用。
func (s *Store) InsertFileDirect(f *model.File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.ID = s.id()
	cp := *f
	s.files[f.ID] = &cp
}

type articleRepo struct{ s *Store }

func (r articleRepo) FindByID(_ context.Context, id int64) (*model.Article, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a, ok := r.s.articles[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (r articleRepo) FindByDOI(_ context.Context, doi model.Doi) (*model.Article, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.articles {
		if a.Doi == doi {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r articleRepo) Create(_ context.Context, article *model.Article) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.articles {
		if a.Doi == article.Doi {
			return uniqueViolation(repository.ConstraintArticleDoi)
		}
	}
	article.ID = r.s.id()
	cp := *article
	r.s.articles[article.ID] = &cp
	return nil
}

type journalRepo struct{ s *Store }

func (r journalRepo) find(match func(*model.Journal) bool) *model.Journal {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, j := range r.s.journals {
		if match(j) {
			cp := *j
			return &cp
		}
	}
	return nil
}

func (r journalRepo) FindByKey(_ context.Context, key string) (*model.Journal, error) {
	return r.find(func(j *model.Journal) bool { return j.JournalKey == key }), nil
}

func (r journalRepo) FindByEIssn(_ context.Context, eIssn string) (*model.Journal, error) {
	if eIssn == "" {
		return nil, nil
	}
	return r.find(func(j *model.Journal) bool { return j.EIssn == eIssn }), nil
}

func (r journalRepo) FindByID(_ context.Context, id int64) (*model.Journal, error) {
	return r.find(func(j *model.Journal) bool { return j.ID == id }), nil
}

func (r journalRepo) Create(_ context.Context, journal *model.Journal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, j := range r.s.journals {
		if j.JournalKey == journal.JournalKey {
			return uniqueViolation(repository.ConstraintJournalKey)
		}
		if journal.EIssn != "" && j.EIssn == journal.EIssn {
			return uniqueViolation(repository.ConstraintJournalEIssn)
		}
	}
	journal.ID = r.s.id()
	cp := *journal
	r.s.journals[journal.ID] = &cp
	return nil
}

type ingestionRepo struct{ s *Store }

func (r ingestionRepo) FindByID(_ context.Context, id int64) (*model.Ingestion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if in, ok := r.s.ingestions[id]; ok {
		cp := *in
		return &cp, nil
	}
	return nil, nil
}

func (r ingestionRepo) FindByNumber(_ context.Context, articleID int64, number int) (*model.Ingestion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, in := range r.s.ingestions {
		if in.ArticleID == articleID && in.IngestionNumber == number {
			cp := *in
			return &cp, nil
		}
	}
	return nil, nil
}

func (r ingestionRepo) ListByArticle(_ context.Context, articleID int64) ([]*model.Ingestion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Ingestion
	for _, in := range r.s.ingestions {
		if in.ArticleID == articleID {
			cp := *in
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IngestionNumber < out[j].IngestionNumber })
	return out, nil
}

func (r ingestionRepo) WithinTx(ctx context.Context, fn func(w repository.IngestionWriter) error) error {
	tx := &memTx{s: r.s}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if hook := r.s.BeforeCommit; hook != nil {
		hook()
	}
	return tx.commit()
}

// memTx はコミットまで書き込みを保留するIngestionWriter。
type memTx struct {
	s *Store

	ingestions []*model.Ingestion
	items      []*model.Item
	files      []*model.File
}

func (t *memTx) NextIngestionNumber(_ context.Context, articleID int64) (int, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.articles[articleID]; !ok {
		return 0, model.ErrNotFound.New("article %d", articleID)
	}
	max := 0
	for _, in := range t.s.ingestions {
		if in.ArticleID == articleID && in.IngestionNumber > max {
			max = in.IngestionNumber
		}
	}
	return max + 1, nil
}

func (t *memTx) InsertIngestion(_ context.Context, in *model.Ingestion) error {
	t.s.mu.Lock()
	in.ID = t.s.id()
	t.s.mu.Unlock()
	cp := *in
	t.ingestions = append(t.ingestions, &cp)
	return nil
}

func (t *memTx) InsertItem(_ context.Context, item *model.Item) error {
	for _, it := range t.items {
		if it.IngestionID == item.IngestionID && it.Doi == item.Doi {
			return uniqueViolation(repository.ConstraintItemDoi)
		}
	}
	t.s.mu.Lock()
	item.ID = t.s.id()
	t.s.mu.Unlock()
	cp := *item
	cp.Files = nil
	t.items = append(t.items, &cp)
	return nil
}

func (t *memTx) InsertFile(_ context.Context, f *model.File) error {
	if f.ItemID != nil {
		for _, existing := range t.files {
			if existing.ItemID != nil && *existing.ItemID == *f.ItemID && existing.FileType == f.FileType {
				return uniqueViolation(repository.ConstraintItemFileType)
			}
		}
	}
	t.s.mu.Lock()
	f.ID = t.s.id()
	t.s.mu.Unlock()
	cp := *f
	t.files = append(t.files, &cp)
	return nil
}

func (t *memTx) SetStrikingImage(_ context.Context, ingestionID, itemID int64, lastModified time.Time) error {
	for _, in := range t.ingestions {
		if in.ID == ingestionID {
			in.StrikingImageItemID = &itemID
			in.LastModified = lastModified
			return nil
		}
	}
	return model.ErrNotFound.New("ingestion %d", ingestionID)
}

func (t *memTx) commit() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for _, in := range t.ingestions {
		for _, existing := range t.s.ingestions {
			if existing.ArticleID == in.ArticleID && existing.IngestionNumber == in.IngestionNumber {
				return uniqueViolation(repository.ConstraintIngestionNumber)
			}
		}
	}
	for _, in := range t.ingestions {
		t.s.ingestions[in.ID] = in
	}
	for _, it := range t.items {
		t.s.items[it.ID] = it
	}
	for _, f := range t.files {
		t.s.files[f.ID] = f
	}
	return nil
}

type itemRepo struct{ s *Store }

func (r itemRepo) list(match func(*model.Item) bool) []*model.Item {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Item
	for _, it := range r.s.items {
		if match(it) {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r itemRepo) ListByIngestion(_ context.Context, ingestionID int64) ([]*model.Item, error) {
	return r.list(func(it *model.Item) bool { return it.IngestionID == ingestionID }), nil
}

func (r itemRepo) ListByDOI(_ context.Context, doi model.Doi) ([]*model.Item, error) {
	return r.list(func(it *model.Item) bool { return it.Doi == doi }), nil
}

func (r itemRepo) ListFilesByIngestion(_ context.Context, ingestionID int64) ([]*model.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.File
	for _, f := range r.s.files {
		if f.IngestionID == ingestionID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type revisionRepo struct{ s *Store }

func (r revisionRepo) find(match func(*model.Revision) bool) *model.Revision {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *model.Revision
	for _, rev := range r.s.revisions {
		if match(rev) && (found == nil || rev.RevisionNumber > found.RevisionNumber) {
			found = rev
		}
	}
	if found == nil {
		return nil
	}
	cp := *found
	return &cp
}

func (r revisionRepo) FindByID(_ context.Context, id int64) (*model.Revision, error) {
	return r.find(func(rev *model.Revision) bool { return rev.ID == id }), nil
}

func (r revisionRepo) FindByNumber(_ context.Context, articleID int64, number int) (*model.Revision, error) {
	return r.find(func(rev *model.Revision) bool {
		return rev.ArticleID == articleID && rev.RevisionNumber == number
	}), nil
}

func (r revisionRepo) Latest(_ context.Context, articleID int64) (*model.Revision, error) {
	return r.find(func(rev *model.Revision) bool { return rev.ArticleID == articleID }), nil
}

func (r revisionRepo) ListByArticle(_ context.Context, articleID int64) ([]*model.Revision, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Revision
	for _, rev := range r.s.revisions {
		if rev.ArticleID == articleID {
			cp := *rev
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RevisionNumber < out[j].RevisionNumber })
	return out, nil
}

func (r revisionRepo) Create(_ context.Context, rev *model.Revision) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.revisions {
		if existing.ArticleID == rev.ArticleID && existing.RevisionNumber == rev.RevisionNumber {
			return uniqueViolation(repository.ConstraintRevisionNumber)
		}
	}
	in, ok := r.s.ingestions[rev.IngestionID]
	if !ok || in.ArticleID != rev.ArticleID {
		return &pq.Error{Code: "23503", Constraint: "revisions_ingestion_fkey"}
	}
	rev.ID = r.s.id()
	cp := *rev
	r.s.revisions[rev.ID] = &cp
	return nil
}

func (r revisionRepo) UpdateIngestion(_ context.Context, id, ingestionID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rev, ok := r.s.revisions[id]
	if !ok {
		return model.ErrNotFound.New("revision %d", id)
	}
	rev.IngestionID = ingestionID
	return nil
}

func (r revisionRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.revisions[id]; !ok {
		return model.ErrNotFound.New("revision %d", id)
	}
	delete(r.s.revisions, id)
	return nil
}

type relationshipRepo struct{ s *Store }

func (r relationshipRepo) list(match func(*model.Relationship) bool) []*model.Relationship {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Relationship
	for _, rel := range r.s.relationships {
		if match(rel) {
			cp := *rel
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r relationshipRepo) ListFrom(_ context.Context, sourceArticleID int64) ([]*model.Relationship, error) {
	return r.list(func(rel *model.Relationship) bool { return rel.SourceArticleID == sourceArticleID }), nil
}

func (r relationshipRepo) ListTo(_ context.Context, targetArticleID int64) ([]*model.Relationship, error) {
	return r.list(func(rel *model.Relationship) bool { return rel.TargetArticleID == targetArticleID }), nil
}

func (r relationshipRepo) ReplaceFrom(_ context.Context, sourceArticleID int64, rels []*model.Relationship) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, rel := range r.s.relationships {
		if rel.SourceArticleID == sourceArticleID {
			delete(r.s.relationships, id)
		}
	}
	for _, rel := range rels {
		rel.ID = r.s.id()
		rel.SourceArticleID = sourceArticleID
		cp := *rel
		r.s.relationships[rel.ID] = &cp
	}
	return nil
}

var (
	_ repository.ArticleRepository      = articleRepo{}
	_ repository.JournalRepository      = journalRepo{}
	_ repository.IngestionRepository    = ingestionRepo{}
	_ repository.IngestionWriter        = (*memTx)(nil)
	_ repository.ItemRepository         = itemRepo{}
	_ repository.RevisionRepository     = revisionRepo{}
	_ repository.RelationshipRepository = relationshipRepo{}
)

// Set はリポジトリ一式を返す。
func (s *Store) Set() repository.Set {
	return repository.Set{
		Articles:      s.Articles(),
		Journals:      s.Journals(),
		Ingestions:    s.Ingestions(),
		Items:         s.Items(),
		Revisions:     s.Revisions(),
		Relationships: s.Relationships(),
	}
}
