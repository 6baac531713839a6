package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/articlerepo/internal/model"
)

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindByID(ctx context.Context, id int64) (*model.Article, error) {
	return r.findOne(ctx, `SELECT id, doi, created_at FROM articles WHERE id = $1`, id)
}

// FindByDOI はDoiで記事を検索する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindByDOI(ctx context.Context, doi model.Doi) (*model.Article, error) {
	return r.findOne(ctx, `SELECT id, doi, created_at FROM articles WHERE doi = $1`, doi.String())
}

func (r *PostgresArticleRepo) findOne(ctx context.Context, query string, arg any) (*model.Article, error) {
	a := &model.Article{}
	var doi string
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&a.ID, &doi, &a.Created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	a.Doi = model.Doi(doi)
	return a, nil
}

// Create は記事を作成し、採番されたIDをarticle.IDに設定する。
func (r *PostgresArticleRepo) Create(ctx context.Context, article *model.Article) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO articles (doi, created_at) VALUES ($1, $2) RETURNING id`,
		article.Doi.String(), article.Created,
	).Scan(&article.ID)
	if err != nil {
		return fmt.Errorf("記事の作成に失敗しました: %w", err)
	}
	return nil
}

// インターフェースの実装を保証する
var _ ArticleRepository = (*PostgresArticleRepo)(nil)
