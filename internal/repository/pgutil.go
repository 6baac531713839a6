package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// IsUniqueViolationで判定に使う一意制約の名前
const (
	ConstraintJournalKey       = "journals_journal_key_key"
	ConstraintJournalEIssn     = "journals_eissn_key"
	ConstraintArticleDoi       = "articles_doi_key"
	ConstraintIngestionNumber  = "ingestions_article_number_key"
	ConstraintRevisionNumber   = "revisions_article_number_key"
	ConstraintItemFileType     = "files_item_file_type_key"
	ConstraintItemDoi          = "items_ingestion_doi_key"
	ConstraintRelationshipEdge = "article_relationships_edge_key"
)

const uniqueViolation = pq.ErrorCode("23505")

// IsUniqueViolation はerrが指定された一意制約の違反かどうかを返す。
// constraintが空の場合はいずれかの一意制約違反であればtrueを返す。
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringを文字列に変換する。NULLの場合は空文字列。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
