package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/articlerepo/internal/model"
)

// PostgresRevisionRepo はPostgreSQLを使用したRevisionリポジトリ。
type PostgresRevisionRepo struct {
	db *sql.DB
}

// NewPostgresRevisionRepo はPostgresRevisionRepoを生成する。
func NewPostgresRevisionRepo(db *sql.DB) *PostgresRevisionRepo {
	return &PostgresRevisionRepo{db: db}
}

const revisionColumns = `id, article_id, revision_number, ingestion_id, created_at`

func (r *PostgresRevisionRepo) findOne(ctx context.Context, query string, args ...any) (*model.Revision, error) {
	rev := &model.Revision{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&rev.ID, &rev.ArticleID, &rev.RevisionNumber, &rev.IngestionID, &rev.Created,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Revisionの取得に失敗しました: %w", err)
	}
	return rev, nil
}

// FindByID は指定IDのRevisionを取得する。見つからない場合はnilを返す。
func (r *PostgresRevisionRepo) FindByID(ctx context.Context, id int64) (*model.Revision, error) {
	return r.findOne(ctx, `SELECT `+revisionColumns+` FROM revisions WHERE id = $1`, id)
}

// FindByNumber は記事とRevision番号で取得する。見つからない場合はnilを返す。
func (r *PostgresRevisionRepo) FindByNumber(ctx context.Context, articleID int64, number int) (*model.Revision, error) {
	return r.findOne(ctx,
		`SELECT `+revisionColumns+` FROM revisions WHERE article_id = $1 AND revision_number = $2`,
		articleID, number)
}

// Latest は記事の最大Revision番号のRevisionを返す。存在しない場合はnilを返す。
func (r *PostgresRevisionRepo) Latest(ctx context.Context, articleID int64) (*model.Revision, error) {
	return r.findOne(ctx,
		`SELECT `+revisionColumns+` FROM revisions WHERE article_id = $1 ORDER BY revision_number DESC LIMIT 1`,
		articleID)
}

// ListByArticle は記事のRevisionをRevision番号の昇順で返す。
func (r *PostgresRevisionRepo) ListByArticle(ctx context.Context, articleID int64) ([]*model.Revision, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+revisionColumns+` FROM revisions WHERE article_id = $1 ORDER BY revision_number`,
		articleID)
	if err != nil {
		return nil, fmt.Errorf("Revision一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var revisions []*model.Revision
	for rows.Next() {
		rev := &model.Revision{}
		if err := rows.Scan(&rev.ID, &rev.ArticleID, &rev.RevisionNumber, &rev.IngestionID, &rev.Created); err != nil {
			return nil, fmt.Errorf("Revisionのスキャンに失敗しました: %w", err)
		}
		revisions = append(revisions, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Revision一覧の走査に失敗しました: %w", err)
	}
	return revisions, nil
}

// Create はRevisionを作成する。
func (r *PostgresRevisionRepo) Create(ctx context.Context, rev *model.Revision) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO revisions (article_id, revision_number, ingestion_id, created_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		rev.ArticleID, rev.RevisionNumber, rev.IngestionID, rev.Created,
	).Scan(&rev.ID)
	if err != nil {
		return fmt.Errorf("Revisionの作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateIngestion はRevisionの指すIngestionを変更する。
func (r *PostgresRevisionRepo) UpdateIngestion(ctx context.Context, id, ingestionID int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE revisions SET ingestion_id = $2 WHERE id = $1`, id, ingestionID)
	if err != nil {
		return fmt.Errorf("Revisionの更新に失敗しました: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return model.ErrNotFound.New("revision %d", id)
	}
	return nil
}

// Delete はRevisionのみを削除する。Ingestionには波及しない。
func (r *PostgresRevisionRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM revisions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("Revisionの削除に失敗しました: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return model.ErrNotFound.New("revision %d", id)
	}
	return nil
}

// インターフェースの実装を保証する
var _ RevisionRepository = (*PostgresRevisionRepo)(nil)
