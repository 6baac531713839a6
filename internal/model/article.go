package model

import (
	"fmt"
	"time"
)

// Article はDoiごとに1件存在する記事。通常運用では削除されない。
type Article struct {
	ID      int64
	Doi     Doi
	Created time.Time
}

// Journal は取り込み先のジャーナル。
type Journal struct {
	ID         int64
	JournalKey string
	EIssn      string
	Title      string
}

// Ingestion は記事パッケージの1回のアップロードを表す。
// 作成後に変更されるのはStrikingImageItemIDとLastModifiedのみ。
type Ingestion struct {
	ID                  int64
	ArticleID           int64
	IngestionNumber     int
	Title               string
	PublicationDate     time.Time
	RevisionDate        *time.Time
	ArticleType         string
	PublicationStage    string
	JournalID           int64
	StrikingImageItemID *int64
	Created             time.Time
	LastModified        time.Time
}

// Revision は公開用のポインタ。revisionNumberはArticle内で一意。
// Revisionの削除は参照先のIngestionに影響しない。
type Revision struct {
	ID             int64
	ArticleID      int64
	RevisionNumber int
	IngestionID    int64
	Created        time.Time
}

// Relationship は記事間の有向リンク。永続化するのは送信元からの向きのみ。
type Relationship struct {
	ID              int64
	SourceArticleID int64
	TargetArticleID int64
	Type            string
	SpecificUse     string
	Created         time.Time
}

// ArticleIdentifier は記事をDoiで指す。
type ArticleIdentifier struct {
	Doi Doi
}

func (id ArticleIdentifier) String() string {
	return id.Doi.String()
}

// ArticleIngestionIdentifier は記事の特定のIngestionを指す。
type ArticleIngestionIdentifier struct {
	Doi             Doi
	IngestionNumber int
}

func (id ArticleIngestionIdentifier) String() string {
	return fmt.Sprintf("%s ingestion %d", id.Doi, id.IngestionNumber)
}

// ArticleRevisionIdentifier は記事の特定のRevisionを指す。
type ArticleRevisionIdentifier struct {
	Doi            Doi
	RevisionNumber int
}

func (id ArticleRevisionIdentifier) String() string {
	return fmt.Sprintf("%s revision %d", id.Doi, id.RevisionNumber)
}

// ArticleMetadata は原稿XMLから抽出したメタデータ。
type ArticleMetadata struct {
	Doi              Doi
	Title            string
	ArticleType      string
	PublicationDate  time.Time
	RevisionDate     *time.Time
	PublicationStage string
	EIssn            string
	JournalKey       string
	JournalName      string
	RelatedArticles  []RelatedArticleLink
	AssetDois        []Doi
}

// RelatedArticleLink は原稿で宣言された他記事へのリンク。
type RelatedArticleLink struct {
	Type        string
	SpecificUse string
	Doi         Doi
}
