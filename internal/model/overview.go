package model

// ArticleOverview は記事のIngestionとRevisionの対応を表す読み取り専用の射影。
// 永続化はせず、読み出しのたびに組み立てる。
type ArticleOverview struct {
	ArticleID int64
	Doi       Doi

	// Ingestions は取り込み番号からそれを指すRevision番号（昇順）への対応。
	// 公開されていない取り込みは空のスライスになる。
	Ingestions map[int][]int

	// Revisions はRevision番号から表示する取り込み番号への対応。
	Revisions map[int]int
}
