package app

// Command はアプリケーションの起動モードまたはサブコマンドを表す。
type Command string

const (
	// CommandServe は運用APIと取り込み待ちディレクトリの監視を起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"

	CommandIngest        Command = "ingest"
	CommandIngestibles   Command = "ingestibles"
	CommandPublish       Command = "publish"
	CommandRevise        Command = "revise"
	CommandUnpublish     Command = "unpublish"
	CommandIngestions    Command = "ingestions"
	CommandRevisions     Command = "revisions"
	CommandShow          Command = "show"
	CommandOverview      Command = "overview"
	CommandRelationships Command = "relationships"
	CommandRepack        Command = "repack"
	CommandItem          Command = "item"
	CommandJournal       Command = "journal"
	CommandHelp          Command = "help"

	// CommandUnknown はサポート外のコマンド。
	CommandUnknown Command = ""
)

var commands = map[string]Command{
	"serve":         CommandServe,
	"migrate":       CommandMigrate,
	"healthcheck":   CommandHealthcheck,
	"ingest":        CommandIngest,
	"ingestibles":   CommandIngestibles,
	"publish":       CommandPublish,
	"revise":        CommandRevise,
	"unpublish":     CommandUnpublish,
	"ingestions":    CommandIngestions,
	"revisions":     CommandRevisions,
	"show":          CommandShow,
	"overview":      CommandOverview,
	"relationships": CommandRelationships,
	"repack":        CommandRepack,
	"item":          CommandItem,
	"journal":       CommandJournal,
	"help":          CommandHelp,
}

// ParseCommand はコマンドライン引数からサブコマンドと残りの引数を解析する。
// 引数が空の場合はCommandServeを返す。
func ParseCommand(args []string) (Command, []string) {
	if len(args) == 0 {
		return CommandServe, nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return CommandUnknown, args
	}
	return cmd, args[1:]
}

const usage = `usage: articlerepo <command> [arguments]

commands:
  serve                                   運用API（/health, /metrics, /ingestibles）と取り込み待ちディレクトリの監視を起動
  migrate                                 データベースマイグレーションを適用
  healthcheck                             起動中のサーバーの/healthを確認
  ingest [--publish] <archive.zip>...     アーカイブを取り込む
  ingestibles [--ingest NAME]             取り込み待ちのアーカイブを一覧、または名前で取り込む
  publish <doi> <ingestion> [--revision N] 取り込みをRevisionとして公開
  revise <doi> <revision> <ingestion>     既存のRevisionを別の取り込みに向ける
  unpublish <doi> <revision>              Revisionを削除
  ingestions <doi>                        取り込みの一覧
  revisions <doi>                         Revisionの一覧
  show <doi> <ingestion>                  取り込みのItemとファイル
  overview <doi>                          取り込みとRevisionの対応表
  relationships <doi>                     関連記事
  repack <doi> <ingestion> [--out FILE]   保存済みのファイルからアーカイブを作り直す
  item <doi>                              ItemのDoiから所在を引く
  journal add <key> <eissn> <title>       ジャーナルを登録
`
