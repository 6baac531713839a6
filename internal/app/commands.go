package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/hitoshi/articlerepo/internal/archive"
	"github.com/hitoshi/articlerepo/internal/ingest"
	"github.com/hitoshi/articlerepo/internal/model"
	"github.com/hitoshi/articlerepo/internal/repository"
	"github.com/hitoshi/articlerepo/internal/view"
)

// ErrUsage は引数の誤り。
var ErrUsage = errors.New("invalid arguments")

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: usage: articlerepo %s", ErrUsage, fmt.Sprintf(format, args...))
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// Exec はDB接続を必要とするサブコマンドを実行する。
func (e *Env) Exec(ctx context.Context, cmd Command, args []string) error {
	handlers := map[Command]func(context.Context, []string) error{
		CommandIngest:        e.cmdIngest,
		CommandIngestibles:   e.cmdIngestibles,
		CommandPublish:       e.cmdPublish,
		CommandRevise:        e.cmdRevise,
		CommandUnpublish:     e.cmdUnpublish,
		CommandIngestions:    e.cmdIngestions,
		CommandRevisions:     e.cmdRevisions,
		CommandShow:          e.cmdShow,
		CommandOverview:      e.cmdOverview,
		CommandRelationships: e.cmdRelationships,
		CommandRepack:        e.cmdRepack,
		CommandItem:          e.cmdItem,
		CommandJournal:       e.cmdJournal,
	}
	h, ok := handlers[cmd]
	if !ok {
		return fmt.Errorf("unsupported command: %q", cmd)
	}
	return h(ctx, args)
}

func (e *Env) printJSON(v any) error {
	enc := json.NewEncoder(e.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseDoi(s string) (model.Doi, error) {
	doi, err := model.ParseDoi(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return doi, nil
}

func parseNumber(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer: %q", ErrUsage, name, s)
	}
	return n, nil
}

// parseArticle は<doi>だけを取るコマンドの引数を解析する。
func parseArticle(name string, args []string) (model.ArticleIdentifier, error) {
	fs := newFlagSet(name)
	if err := fs.Parse(args); err != nil {
		return model.ArticleIdentifier{}, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() != 1 {
		return model.ArticleIdentifier{}, usageError("%s <doi>", name)
	}
	doi, err := parseDoi(fs.Arg(0))
	if err != nil {
		return model.ArticleIdentifier{}, err
	}
	return model.ArticleIdentifier{Doi: doi}, nil
}

func parseIngestionID(doiArg, numberArg string) (model.ArticleIngestionIdentifier, error) {
	doi, err := parseDoi(doiArg)
	if err != nil {
		return model.ArticleIngestionIdentifier{}, err
	}
	n, err := parseNumber("ingestion", numberArg)
	if err != nil {
		return model.ArticleIngestionIdentifier{}, err
	}
	return model.ArticleIngestionIdentifier{Doi: doi, IngestionNumber: n}, nil
}

func ingestResultView(r *ingest.Result) view.IngestResult {
	return view.IngestResult{
		Doi:             r.Doi,
		IngestionNumber: r.Ingestion.IngestionNumber,
		Items:           r.Items,
		Files:           r.Files,
	}
}

// cmdIngest はアーカイブファイルを取り込む。--publishで次のRevisionとして公開する。
func (e *Env) cmdIngest(ctx context.Context, args []string) error {
	fs := newFlagSet("ingest")
	publish := fs.Bool("publish", false, "取り込み後に次のRevisionとして公開する")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() == 0 {
		return usageError("ingest [--publish] <archive.zip>...")
	}

	for _, path := range fs.Args() {
		arc, err := archive.Open(path)
		if err != nil {
			return err
		}
		result, err := e.Ingest.Ingest(ctx, arc)
		arc.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		out := ingestResultView(result)
		if *publish {
			rev, err := e.Store.CreateNextRevision(ctx, model.ArticleIngestionIdentifier{
				Doi:             result.Doi,
				IngestionNumber: result.Ingestion.IngestionNumber,
			})
			if err != nil {
				return err
			}
			out.RevisionNumber = &rev.RevisionNumber
		}
		if err := e.printJSON(out); err != nil {
			return err
		}
	}
	return nil
}

// cmdIngestibles は取り込み待ちディレクトリを一覧する。--ingestで名前を指定して取り込む。
func (e *Env) cmdIngestibles(ctx context.Context, args []string) error {
	fs := newFlagSet("ingestibles")
	name := fs.String("ingest", "", "取り込むアーカイブ名")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() != 0 {
		return usageError("ingestibles [--ingest NAME]")
	}

	ib, scheduler, err := e.newInbox()
	if err != nil {
		return err
	}
	if *name == "" {
		names, err := ib.List()
		if err != nil {
			return err
		}
		if names == nil {
			names = []string{}
		}
		return e.printJSON(names)
	}

	result, err := scheduler.IngestArchive(ctx, *name)
	if err != nil {
		return err
	}
	return e.printJSON(ingestResultView(result))
}

// cmdPublish は取り込みをRevisionとして公開する。--revision省略時は次の番号を使う。
func (e *Env) cmdPublish(ctx context.Context, args []string) error {
	fs := newFlagSet("publish")
	revision := fs.Int("revision", 0, "Revision番号（省略時は最新+1）")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() != 2 {
		return usageError("publish <doi> <ingestion> [--revision N]")
	}
	id, err := parseIngestionID(fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}

	var rev *model.Revision
	if fs.Changed("revision") {
		rev, err = e.Store.CreateRevision(ctx, id, *revision)
	} else {
		rev, err = e.Store.CreateNextRevision(ctx, id)
	}
	if err != nil {
		return err
	}
	return e.printRevision(ctx, id.Doi, rev)
}

// cmdRevise は既存のRevisionを別の取り込みに向ける。Revisionがなければ作成する。
func (e *Env) cmdRevise(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return usageError("revise <doi> <revision> <ingestion>")
	}
	id, err := parseIngestionID(args[0], args[2])
	if err != nil {
		return err
	}
	n, err := parseNumber("revision", args[1])
	if err != nil {
		return err
	}

	rev, err := e.Store.WriteRevision(ctx, model.ArticleRevisionIdentifier{Doi: id.Doi, RevisionNumber: n}, id)
	if err != nil {
		return err
	}
	return e.printRevision(ctx, id.Doi, rev)
}

func (e *Env) printRevision(ctx context.Context, doi model.Doi, rev *model.Revision) error {
	_, ingestion, err := e.Store.GetRevision(ctx, model.ArticleRevisionIdentifier{Doi: doi, RevisionNumber: rev.RevisionNumber})
	if err != nil {
		return err
	}
	return e.printJSON(view.NewRevision(doi, rev, ingestion))
}

// cmdUnpublish はRevisionを削除する。取り込みは残る。
func (e *Env) cmdUnpublish(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("unpublish <doi> <revision>")
	}
	doi, err := parseDoi(args[0])
	if err != nil {
		return err
	}
	n, err := parseNumber("revision", args[1])
	if err != nil {
		return err
	}
	id := model.ArticleRevisionIdentifier{Doi: doi, RevisionNumber: n}
	if err := e.Store.DeleteRevision(ctx, id); err != nil {
		return err
	}
	e.Logger.Info("revision deleted", zap.String("doi", doi.String()), zap.Int("revision_number", n))
	return nil
}

// cmdIngestions は記事の取り込みを番号順に出力する。
func (e *Env) cmdIngestions(ctx context.Context, args []string) error {
	id, err := parseArticle("ingestions", args)
	if err != nil {
		return err
	}
	ingestions, err := e.Store.ListIngestions(ctx, id)
	if err != nil {
		return err
	}

	out := make([]view.Ingestion, 0, len(ingestions))
	for _, in := range ingestions {
		set, err := e.Store.ReadItemSet(ctx, in)
		if err != nil {
			return err
		}
		out = append(out, view.NewIngestion(id.Doi, in, set.Items))
	}
	return e.printJSON(out)
}

// cmdRevisions は記事のRevisionを番号順に出力する。
func (e *Env) cmdRevisions(ctx context.Context, args []string) error {
	id, err := parseArticle("revisions", args)
	if err != nil {
		return err
	}
	revisions, err := e.Store.ListRevisions(ctx, id)
	if err != nil {
		return err
	}
	ingestions, err := e.Store.ListIngestions(ctx, id)
	if err != nil {
		return err
	}
	byID := make(map[int64]*model.Ingestion, len(ingestions))
	for _, in := range ingestions {
		byID[in.ID] = in
	}

	out := make([]view.Revision, 0, len(revisions))
	for _, rev := range revisions {
		in, ok := byID[rev.IngestionID]
		if !ok {
			return model.ErrDataIntegrity.New("revision %d points at unknown ingestion %d", rev.RevisionNumber, rev.IngestionID)
		}
		out = append(out, view.NewRevision(id.Doi, rev, in))
	}
	return e.printJSON(out)
}

// cmdShow は取り込みのItemとファイルを出力する。
func (e *Env) cmdShow(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("show <doi> <ingestion>")
	}
	id, err := parseIngestionID(args[0], args[1])
	if err != nil {
		return err
	}
	_, ingestion, err := e.Store.GetIngestion(ctx, id)
	if err != nil {
		return err
	}
	set, err := e.Store.ReadItemSet(ctx, ingestion)
	if err != nil {
		return err
	}
	return e.printJSON(view.NewItemSet(id.Doi, ingestion, set.Items, set.Ancillary))
}

func (e *Env) cmdOverview(ctx context.Context, args []string) error {
	id, err := parseArticle("overview", args)
	if err != nil {
		return err
	}
	ov, err := e.Store.Overview(ctx, id)
	if err != nil {
		return err
	}
	return e.printJSON(view.NewOverview(ov))
}

func (e *Env) cmdRelationships(ctx context.Context, args []string) error {
	id, err := parseArticle("relationships", args)
	if err != nil {
		return err
	}
	views, err := e.Store.Relationships(ctx, id)
	if err != nil {
		return err
	}
	return e.printJSON(views)
}

// cmdRepack は保存済みのファイルから取り込みのアーカイブを作り直す。
// --outを省略するか"-"を指定した場合は標準出力に書く。
func (e *Env) cmdRepack(ctx context.Context, args []string) error {
	fs := newFlagSet("repack")
	outPath := fs.String("out", "-", "出力するzipファイル")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() != 2 {
		return usageError("repack <doi> <ingestion> [--out FILE]")
	}
	id, err := parseIngestionID(fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}
	_, ingestion, err := e.Store.GetIngestion(ctx, id)
	if err != nil {
		return err
	}
	set, err := e.Store.ReadItemSet(ctx, ingestion)
	if err != nil {
		return err
	}

	if *outPath == "-" {
		return e.Objects.Repack(ctx, set.Files(), e.Out)
	}
	f, err := os.Create(*outPath)
	if err != nil {
		return fmt.Errorf("出力ファイルの作成に失敗しました: %w", err)
	}
	if err := e.Objects.Repack(ctx, set.Files(), f); err != nil {
		f.Close()
		os.Remove(*outPath)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	e.Logger.Info("ingestion repacked", zap.String("ingestion", id.String()), zap.String("out", *outPath))
	return nil
}

// cmdItem はItemのDoiから、それを含む取り込みを出力する。
func (e *Env) cmdItem(ctx context.Context, args []string) error {
	id, err := parseArticle("item", args)
	if err != nil {
		return err
	}
	refs, err := e.Store.ResolveItem(ctx, id.Doi)
	if err != nil {
		return err
	}
	out := make([]view.ItemLocation, 0, len(refs))
	for _, ref := range refs {
		set, err := e.Store.ReadItemSet(ctx, ref.Ingestion)
		if err != nil {
			return err
		}
		item := ref.Item
		for _, it := range set.Items {
			if it.ID == ref.Item.ID {
				item = it
				break
			}
		}
		out = append(out, view.NewItemLocation(ref.Article.Doi, ref.Ingestion, item))
	}
	return e.printJSON(out)
}

// cmdJournal はジャーナルを登録する。
func (e *Env) cmdJournal(ctx context.Context, args []string) error {
	if len(args) < 4 || args[0] != "add" {
		return usageError("journal add <key> <eissn> <title>")
	}
	journal := &model.Journal{
		JournalKey: args[1],
		EIssn:      args[2],
		Title:      strings.Join(args[3:], " "),
	}
	if err := e.Repos.Journals.Create(ctx, journal); err != nil {
		if repository.IsUniqueViolation(err, "") {
			return fmt.Errorf("journal %s or eIssn %s is already registered: %w", journal.JournalKey, journal.EIssn, err)
		}
		return err
	}
	e.Logger.Info("journal registered", zap.String("journal_key", journal.JournalKey), zap.String("eissn", journal.EIssn))
	return e.printJSON(view.NewJournal(journal))
}
