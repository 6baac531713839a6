package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/articlerepo/internal/model"
)

// PostgresIngestionRepo はPostgreSQLを使用した取り込みリポジトリ。
type PostgresIngestionRepo struct {
	db *sql.DB
}

// NewPostgresIngestionRepo はPostgresIngestionRepoを生成する。
func NewPostgresIngestionRepo(db *sql.DB) *PostgresIngestionRepo {
	return &PostgresIngestionRepo{db: db}
}

const ingestionColumns = `id, article_id, ingestion_number, title, publication_date, revision_date,
	article_type, publication_stage, journal_id, striking_image_item_id, created_at, last_modified`

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIngestion(row rowScanner) (*model.Ingestion, error) {
	in := &model.Ingestion{}
	var revisionDate sql.NullTime
	var strikingImage sql.NullInt64
	err := row.Scan(
		&in.ID, &in.ArticleID, &in.IngestionNumber, &in.Title, &in.PublicationDate, &revisionDate,
		&in.ArticleType, &in.PublicationStage, &in.JournalID, &strikingImage, &in.Created, &in.LastModified,
	)
	if err != nil {
		return nil, err
	}
	if revisionDate.Valid {
		d := revisionDate.Time
		in.RevisionDate = &d
	}
	in.StrikingImageItemID = int64Ptr(strikingImage)
	return in, nil
}

// FindByID は指定IDのIngestionを取得する。見つからない場合はnilを返す。
func (r *PostgresIngestionRepo) FindByID(ctx context.Context, id int64) (*model.Ingestion, error) {
	in, err := scanIngestion(r.db.QueryRowContext(ctx,
		`SELECT `+ingestionColumns+` FROM ingestions WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Ingestionの取得に失敗しました: %w", err)
	}
	return in, nil
}

// FindByNumber は記事と取り込み番号でIngestionを取得する。見つからない場合はnilを返す。
func (r *PostgresIngestionRepo) FindByNumber(ctx context.Context, articleID int64, number int) (*model.Ingestion, error) {
	in, err := scanIngestion(r.db.QueryRowContext(ctx,
		`SELECT `+ingestionColumns+` FROM ingestions WHERE article_id = $1 AND ingestion_number = $2`,
		articleID, number))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("取り込み番号によるIngestionの取得に失敗しました: %w", err)
	}
	return in, nil
}

// ListByArticle は記事のIngestionを取り込み番号の昇順で返す。
func (r *PostgresIngestionRepo) ListByArticle(ctx context.Context, articleID int64) ([]*model.Ingestion, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ingestionColumns+` FROM ingestions WHERE article_id = $1 ORDER BY ingestion_number`,
		articleID)
	if err != nil {
		return nil, fmt.Errorf("Ingestion一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ingestions []*model.Ingestion
	for rows.Next() {
		in, err := scanIngestion(rows)
		if err != nil {
			return nil, fmt.Errorf("Ingestionのスキャンに失敗しました: %w", err)
		}
		ingestions = append(ingestions, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Ingestion一覧の走査に失敗しました: %w", err)
	}
	return ingestions, nil
}

// WithinTx は1つのトランザクション内でfnを実行する。fnがnilを返した場合のみコミットする。
func (r *PostgresIngestionRepo) WithinTx(ctx context.Context, fn func(w IngestionWriter) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgIngestionWriter{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// pgIngestionWriter はトランザクションに束縛されたIngestionWriter。
type pgIngestionWriter struct {
	tx *sql.Tx
}

func (w *pgIngestionWriter) NextIngestionNumber(ctx context.Context, articleID int64) (int, error) {
	// 同じ記事への同時取り込みを直列化する。一意制約は最終防衛線として残る。
	var locked int64
	err := w.tx.QueryRowContext(ctx,
		`SELECT id FROM articles WHERE id = $1 FOR UPDATE`, articleID,
	).Scan(&locked)
	if err == sql.ErrNoRows {
		return 0, model.ErrNotFound.New("article %d", articleID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock article: %w", err)
	}

	var next int
	err = w.tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(ingestion_number), 0) + 1 FROM ingestions WHERE article_id = $1`,
		articleID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next ingestion number: %w", err)
	}
	return next, nil
}

func (w *pgIngestionWriter) InsertIngestion(ctx context.Context, in *model.Ingestion) error {
	var revisionDate sql.NullTime
	if in.RevisionDate != nil {
		revisionDate = sql.NullTime{Time: *in.RevisionDate, Valid: true}
	}
	err := w.tx.QueryRowContext(ctx,
		`INSERT INTO ingestions (article_id, ingestion_number, title, publication_date, revision_date,
		                         article_type, publication_stage, journal_id, striking_image_item_id,
		                         created_at, last_modified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		in.ArticleID, in.IngestionNumber, in.Title, in.PublicationDate, revisionDate,
		in.ArticleType, in.PublicationStage, in.JournalID, nullInt64(in.StrikingImageItemID),
		in.Created, in.LastModified,
	).Scan(&in.ID)
	if err != nil {
		return fmt.Errorf("failed to insert ingestion: %w", err)
	}
	return nil
}

func (w *pgIngestionWriter) InsertItem(ctx context.Context, item *model.Item) error {
	err := w.tx.QueryRowContext(ctx,
		`INSERT INTO items (ingestion_id, doi, item_type, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		item.IngestionID, item.Doi.String(), item.ItemType.String(), item.Created,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

func (w *pgIngestionWriter) InsertFile(ctx context.Context, f *model.File) error {
	err := w.tx.QueryRowContext(ctx,
		`INSERT INTO files (ingestion_id, item_id, file_type, bucket_name, crepo_key, crepo_uuid,
		                    file_size, ingested_file_name, download_name, content_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		f.IngestionID, nullInt64(f.ItemID), nullString(f.FileType.String()),
		f.Handle.Bucket, f.Handle.Key, f.Handle.UUID, f.Handle.Size,
		f.IngestedFileName, f.DownloadName, f.ContentType, f.Created,
	).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

func (w *pgIngestionWriter) SetStrikingImage(ctx context.Context, ingestionID, itemID int64, lastModified time.Time) error {
	result, err := w.tx.ExecContext(ctx,
		`UPDATE ingestions SET striking_image_item_id = $2, last_modified = $3 WHERE id = $1`,
		ingestionID, itemID, lastModified,
	)
	if err != nil {
		return fmt.Errorf("failed to set striking image: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return model.ErrNotFound.New("ingestion %d", ingestionID)
	}
	return nil
}

// インターフェースの実装を保証する
var (
	_ IngestionRepository = (*PostgresIngestionRepo)(nil)
	_ IngestionWriter     = (*pgIngestionWriter)(nil)
)
