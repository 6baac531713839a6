package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/articlerepo/internal/model"
)

// PostgresRelationshipRepo はPostgreSQLを使用した記事間リンクのリポジトリ。
type PostgresRelationshipRepo struct {
	db *sql.DB
}

// NewPostgresRelationshipRepo はPostgresRelationshipRepoを生成する。
func NewPostgresRelationshipRepo(db *sql.DB) *PostgresRelationshipRepo {
	return &PostgresRelationshipRepo{db: db}
}

// ListFrom は記事を送信元とするリンクを返す。
func (r *PostgresRelationshipRepo) ListFrom(ctx context.Context, sourceArticleID int64) ([]*model.Relationship, error) {
	return r.list(ctx, `WHERE source_article_id = $1`, sourceArticleID)
}

// ListTo は記事を宛先とするリンクを返す。
func (r *PostgresRelationshipRepo) ListTo(ctx context.Context, targetArticleID int64) ([]*model.Relationship, error) {
	return r.list(ctx, `WHERE target_article_id = $1`, targetArticleID)
}

func (r *PostgresRelationshipRepo) list(ctx context.Context, where string, articleID int64) ([]*model.Relationship, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, source_article_id, target_article_id, relationship_type, specific_use, created_at
		 FROM article_relationships `+where+` ORDER BY id`,
		articleID)
	if err != nil {
		return nil, fmt.Errorf("記事間リンクの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var rels []*model.Relationship
	for rows.Next() {
		rel := &model.Relationship{}
		if err := rows.Scan(&rel.ID, &rel.SourceArticleID, &rel.TargetArticleID, &rel.Type, &rel.SpecificUse, &rel.Created); err != nil {
			return nil, fmt.Errorf("記事間リンクのスキャンに失敗しました: %w", err)
		}
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事間リンクの走査に失敗しました: %w", err)
	}
	return rels, nil
}

// ReplaceFrom は記事を送信元とするリンクをrelsで同一トランザクション内に置き換える。
func (r *PostgresRelationshipRepo) ReplaceFrom(ctx context.Context, sourceArticleID int64, rels []*model.Relationship) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM article_relationships WHERE source_article_id = $1`, sourceArticleID,
	); err != nil {
		return fmt.Errorf("failed to delete relationships: %w", err)
	}

	for _, rel := range rels {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO article_relationships (source_article_id, target_article_id, relationship_type, specific_use, created_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT ON CONSTRAINT article_relationships_edge_key DO UPDATE SET specific_use = EXCLUDED.specific_use
			 RETURNING id`,
			sourceArticleID, rel.TargetArticleID, rel.Type, rel.SpecificUse, rel.Created,
		).Scan(&rel.ID)
		if err != nil {
			return fmt.Errorf("failed to insert relationship: %w", err)
		}
		rel.SourceArticleID = sourceArticleID
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// インターフェースの実装を保証する
var _ RelationshipRepository = (*PostgresRelationshipRepo)(nil)
