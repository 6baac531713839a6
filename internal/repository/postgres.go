package repository

import "database/sql"

// NewPostgresSet はPostgreSQL実装のリポジトリ一式を生成する。
func NewPostgresSet(db *sql.DB) Set {
	return Set{
		Articles:      NewPostgresArticleRepo(db),
		Journals:      NewPostgresJournalRepo(db),
		Ingestions:    NewPostgresIngestionRepo(db),
		Items:         NewPostgresItemRepo(db),
		Revisions:     NewPostgresRevisionRepo(db),
		Relationships: NewPostgresRelationshipRepo(db),
	}
}
