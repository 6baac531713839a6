package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/articlerepo/internal/model"
)

// PostgresJournalRepo はPostgreSQLを使用したジャーナルリポジトリ。
type PostgresJournalRepo struct {
	db *sql.DB
}

// NewPostgresJournalRepo はPostgresJournalRepoを生成する。
func NewPostgresJournalRepo(db *sql.DB) *PostgresJournalRepo {
	return &PostgresJournalRepo{db: db}
}

const journalColumns = `id, journal_key, eissn, title`

// FindByKey はジャーナルキーの完全一致で検索する。見つからない場合はnilを返す。
func (r *PostgresJournalRepo) FindByKey(ctx context.Context, key string) (*model.Journal, error) {
	return r.findOne(ctx, `SELECT `+journalColumns+` FROM journals WHERE journal_key = $1`, key)
}

// FindByEIssn はeIssnの完全一致で検索する。見つからない場合はnilを返す。
func (r *PostgresJournalRepo) FindByEIssn(ctx context.Context, eIssn string) (*model.Journal, error) {
	return r.findOne(ctx, `SELECT `+journalColumns+` FROM journals WHERE eissn = $1`, eIssn)
}

// FindByID は指定IDのジャーナルを取得する。見つからない場合はnilを返す。
func (r *PostgresJournalRepo) FindByID(ctx context.Context, id int64) (*model.Journal, error) {
	return r.findOne(ctx, `SELECT `+journalColumns+` FROM journals WHERE id = $1`, id)
}

func (r *PostgresJournalRepo) findOne(ctx context.Context, query string, arg any) (*model.Journal, error) {
	j := &model.Journal{}
	var eIssn sql.NullString
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&j.ID, &j.JournalKey, &eIssn, &j.Title)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ジャーナルの取得に失敗しました: %w", err)
	}
	j.EIssn = nullStringValue(eIssn)
	return j, nil
}

// Create はジャーナルを作成する。
func (r *PostgresJournalRepo) Create(ctx context.Context, journal *model.Journal) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO journals (journal_key, eissn, title) VALUES ($1, $2, $3) RETURNING id`,
		journal.JournalKey, nullString(journal.EIssn), journal.Title,
	).Scan(&journal.ID)
	if err != nil {
		return fmt.Errorf("ジャーナルの作成に失敗しました: %w", err)
	}
	return nil
}

// インターフェースの実装を保証する
var _ JournalRepository = (*PostgresJournalRepo)(nil)
