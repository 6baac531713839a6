package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/articlerepo/internal/model"
)

// PostgresItemRepo はPostgreSQLを使用したItem・Fileの読み出しリポジトリ。
type PostgresItemRepo struct {
	db *sql.DB
}

// NewPostgresItemRepo はPostgresItemRepoを生成する。
func NewPostgresItemRepo(db *sql.DB) *PostgresItemRepo {
	return &PostgresItemRepo{db: db}
}

// ListByIngestion はIngestionのItemをID順で返す。Filesは設定しない。
func (r *PostgresItemRepo) ListByIngestion(ctx context.Context, ingestionID int64) ([]*model.Item, error) {
	return r.listItems(ctx,
		`SELECT id, ingestion_id, doi, item_type, created_at FROM items WHERE ingestion_id = $1 ORDER BY id`,
		ingestionID)
}

// ListByDOI はDoiを持つItemをすべてのIngestionから返す。
func (r *PostgresItemRepo) ListByDOI(ctx context.Context, doi model.Doi) ([]*model.Item, error) {
	return r.listItems(ctx,
		`SELECT id, ingestion_id, doi, item_type, created_at FROM items WHERE doi = $1 ORDER BY id`,
		doi.String())
}

func (r *PostgresItemRepo) listItems(ctx context.Context, query string, arg any) ([]*model.Item, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("Itemの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []*model.Item
	for rows.Next() {
		item := &model.Item{}
		var doi, itemType string
		if err := rows.Scan(&item.ID, &item.IngestionID, &doi, &itemType, &item.Created); err != nil {
			return nil, fmt.Errorf("Itemのスキャンに失敗しました: %w", err)
		}
		item.Doi = model.Doi(doi)
		item.ItemType = model.ItemType(itemType)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Item一覧の走査に失敗しました: %w", err)
	}
	return items, nil
}

// ListFilesByIngestion はIngestionのすべてのFile（付随ファイルを含む）をID順で返す。
func (r *PostgresItemRepo) ListFilesByIngestion(ctx context.Context, ingestionID int64) ([]*model.File, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, ingestion_id, item_id, file_type, bucket_name, crepo_key, crepo_uuid,
		        file_size, ingested_file_name, download_name, content_type, created_at
		 FROM files WHERE ingestion_id = $1 ORDER BY id`,
		ingestionID)
	if err != nil {
		return nil, fmt.Errorf("Fileの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var files []*model.File
	for rows.Next() {
		f := &model.File{}
		var itemID sql.NullInt64
		var fileType sql.NullString
		err := rows.Scan(
			&f.ID, &f.IngestionID, &itemID, &fileType,
			&f.Handle.Bucket, &f.Handle.Key, &f.Handle.UUID, &f.Handle.Size,
			&f.IngestedFileName, &f.DownloadName, &f.ContentType, &f.Created,
		)
		if err != nil {
			return nil, fmt.Errorf("Fileのスキャンに失敗しました: %w", err)
		}
		f.ItemID = int64Ptr(itemID)
		f.FileType = model.FileType(nullStringValue(fileType))
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("File一覧の走査に失敗しました: %w", err)
	}
	return files, nil
}

// インターフェースの実装を保証する
var _ ItemRepository = (*PostgresItemRepo)(nil)
