// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/articlerepo/internal/model"
)

// ArticleRepository は記事データの永続化インターフェース。
type ArticleRepository interface {
	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Article, error)

	// FindByDOI はDoiで記事を検索する。見つからない場合はnilを返す。
	FindByDOI(ctx context.Context, doi model.Doi) (*model.Article, error)

	// Create は記事を作成し、採番されたIDをarticle.IDに設定する。
	// 同じDoiが既に存在する場合はarticles_doi_key制約違反のエラーを返す。
	Create(ctx context.Context, article *model.Article) error
}

// JournalRepository はジャーナルデータの永続化インターフェース。
type JournalRepository interface {
	// FindByKey はジャーナルキーの完全一致で検索する。見つからない場合はnilを返す。
	FindByKey(ctx context.Context, key string) (*model.Journal, error)

	// FindByEIssn はeIssnの完全一致で検索する。見つからない場合はnilを返す。
	FindByEIssn(ctx context.Context, eIssn string) (*model.Journal, error)

	// FindByID は指定IDのジャーナルを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Journal, error)

	// Create はジャーナルを作成する。
	Create(ctx context.Context, journal *model.Journal) error
}

// IngestionWriter は1件の取り込みを永続化するトランザクション内の書き込み操作。
// WithinTxに渡された関数がエラーを返した場合、すべての書き込みは破棄される。
type IngestionWriter interface {
	// NextIngestionNumber は記事の次の取り込み番号（既存の最大値+1、なければ1）を返す。
	// 記事の行をロックしてから計算する。
	NextIngestionNumber(ctx context.Context, articleID int64) (int, error)

	// InsertIngestion はIngestionを挿入し、採番されたIDを設定する。
	InsertIngestion(ctx context.Context, ingestion *model.Ingestion) error

	// InsertItem はItemを挿入し、採番されたIDを設定する。Filesは挿入しない。
	InsertItem(ctx context.Context, item *model.Item) error

	// InsertFile はFileを挿入し、採番されたIDを設定する。
	// 同じItemに同じファイル種別が既に存在する場合はfiles_item_file_type_key制約違反のエラーを返す。
	InsertFile(ctx context.Context, file *model.File) error

	// SetStrikingImage はIngestionの代表画像とlast_modifiedを更新する。
	SetStrikingImage(ctx context.Context, ingestionID, itemID int64, lastModified time.Time) error
}

// IngestionRepository は取り込みデータの永続化インターフェース。
type IngestionRepository interface {
	// FindByID は指定IDのIngestionを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Ingestion, error)

	// FindByNumber は記事と取り込み番号でIngestionを取得する。見つからない場合はnilを返す。
	FindByNumber(ctx context.Context, articleID int64, number int) (*model.Ingestion, error)

	// ListByArticle は記事のIngestionを取り込み番号の昇順で返す。
	ListByArticle(ctx context.Context, articleID int64) ([]*model.Ingestion, error)

	// WithinTx は1つのトランザクション内でfnを実行する。fnがnilを返した場合のみコミットする。
	WithinTx(ctx context.Context, fn func(w IngestionWriter) error) error
}

// ItemRepository はItemとFileの読み出しインターフェース。書き込みはIngestionWriterが担う。
type ItemRepository interface {
	// ListByIngestion はIngestionのItemをID順で返す。Filesは設定しない。
	ListByIngestion(ctx context.Context, ingestionID int64) ([]*model.Item, error)

	// ListFilesByIngestion はIngestionのすべてのFile（付随ファイルを含む）をID順で返す。
	ListFilesByIngestion(ctx context.Context, ingestionID int64) ([]*model.File, error)

	// ListByDOI はDoiを持つItemをすべてのIngestionから返す。
	ListByDOI(ctx context.Context, doi model.Doi) ([]*model.Item, error)
}

// RevisionRepository は公開Revisionの永続化インターフェース。
type RevisionRepository interface {
	// FindByID は指定IDのRevisionを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Revision, error)

	// FindByNumber は記事とRevision番号で取得する。見つからない場合はnilを返す。
	FindByNumber(ctx context.Context, articleID int64, number int) (*model.Revision, error)

	// Latest は記事の最大Revision番号のRevisionを返す。存在しない場合はnilを返す。
	Latest(ctx context.Context, articleID int64) (*model.Revision, error)

	// ListByArticle は記事のRevisionをRevision番号の昇順で返す。
	ListByArticle(ctx context.Context, articleID int64) ([]*model.Revision, error)

	// Create はRevisionを作成する。番号が既に存在する場合は
	// revisions_article_number_key制約違反のエラーを返す。
	Create(ctx context.Context, revision *model.Revision) error

	// UpdateIngestion はRevisionの指すIngestionを変更する。
	UpdateIngestion(ctx context.Context, id, ingestionID int64) error

	// Delete はRevisionのみを削除する。存在しない場合はmodel.ErrNotFoundを返す。
	Delete(ctx context.Context, id int64) error
}

// RelationshipRepository は記事間リンクの永続化インターフェース。
// 永続化するのは送信元からの向きのみ。
type RelationshipRepository interface {
	// ListFrom は記事を送信元とするリンクを返す。
	ListFrom(ctx context.Context, sourceArticleID int64) ([]*model.Relationship, error)

	// ListTo は記事を宛先とするリンクを返す。
	ListTo(ctx context.Context, targetArticleID int64) ([]*model.Relationship, error)

	// ReplaceFrom は記事を送信元とするリンクをrelsで置き換える。
	ReplaceFrom(ctx context.Context, sourceArticleID int64, rels []*model.Relationship) error
}

// Set はサービス層が使うリポジトリ一式。
type Set struct {
	Articles      ArticleRepository
	Journals      JournalRepository
	Ingestions    IngestionRepository
	Items         ItemRepository
	Revisions     RevisionRepository
	Relationships RelationshipRepository
}
