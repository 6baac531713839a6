package versioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/articlerepo/internal/articlepkg"
	"github.com/hitoshi/articlerepo/internal/blob"
	"github.com/hitoshi/articlerepo/internal/jats"
	"github.com/hitoshi/articlerepo/internal/model"
	"github.com/hitoshi/articlerepo/internal/objectstore"
	"github.com/hitoshi/articlerepo/internal/relationship"
	"github.com/hitoshi/articlerepo/internal/repository"
	"github.com/hitoshi/articlerepo/internal/repository/repotest"
	"github.com/hitoshi/articlerepo/internal/security"
)

// recordingNotifier は通知を記録するモック。
type recordingNotifier struct {
	mu      sync.Mutex
	indexed []string
	removed []string
}

func (n *recordingNotifier) ArticleIndexed(_ context.Context, article model.ArticleIdentifier, revisionNumber int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.indexed = append(n.indexed, fmt.Sprintf("%s@%d", article.Doi, revisionNumber))
}

func (n *recordingNotifier) ArticleRemoved(_ context.Context, article model.ArticleIdentifier) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.removed = append(n.removed, article.Doi.String())
}

// countingMetrics はRevisionの公開と削除を数えるモック。
type countingMetrics struct {
	mu        sync.Mutex
	published int
	deleted   int
	writes    int
}

func (m *countingMetrics) RecordIngestSuccess()              {}
func (m *countingMetrics) RecordIngestFailure(string)        {}
func (m *countingMetrics) RecordIngestRetry()                {}
func (m *countingMetrics) RecordIngestLatency(time.Duration) {}
func (m *countingMetrics) RecordBlobWrite(int64) {
	m.mu.Lock()
	m.writes++
	m.mu.Unlock()
}
func (m *countingMetrics) RecordRevisionPublished() {
	m.mu.Lock()
	m.published++
	m.mu.Unlock()
}
func (m *countingMetrics) RecordRevisionDeleted() {
	m.mu.Lock()
	m.deleted++
	m.mu.Unlock()
}

// failingBlobStore はPutが常に失敗するBlobStore。
type failingBlobStore struct {
	blob.Store
}

func (failingBlobStore) Put(context.Context, string, []byte, string) (model.BlobHandle, error) {
	return model.BlobHandle{}, errors.New("quota exceeded")
}

type fixture struct {
	db       *repotest.Store
	blobs    *blob.MemoryStore
	store    *Store
	notifier *recordingNotifier
	metrics  *countingMetrics
	journal  *model.Journal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithBlobs(t, nil)
}

func newFixtureWithBlobs(t *testing.T, wrap func(blob.Store) blob.Store) *fixture {
	t.Helper()
	db := repotest.New()
	journal := &model.Journal{JournalKey: "PLoSONE", EIssn: "1932-6203", Title: "PLOS ONE"}
	if err := db.Journals().Create(context.Background(), journal); err != nil {
		t.Fatalf("failed to create journal: %v", err)
	}

	mem := blob.NewMemoryStore("corpus")
	var bs blob.Store = mem
	if wrap != nil {
		bs = wrap(mem)
	}
	mc := &countingMetrics{}
	notifier := &recordingNotifier{}
	repos := db.Set()
	resolver := relationship.NewResolver(repos.Articles, repos.Ingestions, repos.Revisions, repos.Journals, repos.Relationships, nil)
	objects := objectstore.NewService(bs, mc, nil, 4)
	extractor := jats.NewExtractor(security.NewContentSanitizer())

	return &fixture{
		db:       db,
		blobs:    mem,
		store:    NewStore(repos, objects, extractor, resolver, notifier, mc, nil),
		notifier: notifier,
		metrics:  mc,
		journal:  journal,
	}
}

// storeWith はreposとbsを差し替えたStoreを作る。通知とメトリクスはfixtureのものを使う。
func (f *fixture) storeWith(repos repository.Set, bs blob.Store) *Store {
	objects := objectstore.NewService(bs, f.metrics, nil, 4)
	return NewStore(repos, objects, jats.NewExtractor(security.NewContentSanitizer()), nil, f.notifier, f.metrics, nil)
}

type related struct {
	typ string
	doi model.Doi
}

// manuscript は最小限のJATS原稿を返す。
func manuscript(doi model.Doi, title, journalKey string, links ...related) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<article xmlns:xlink="http://www.w3.org/1999/xlink" article-type="research-article">
<front>
<journal-meta>
<journal-id journal-id-type="publisher-id">` + journalKey + `</journal-id>
<journal-title-group><journal-title>PLOS ONE</journal-title></journal-title-group>
<issn pub-type="epub">1932-6203</issn>
</journal-meta>
<article-meta>
<article-id pub-id-type="doi">` + doi.String() + `</article-id>
<title-group><article-title>` + title + `</article-title></title-group>
<pub-date pub-type="epub"><day>1</day><month>5</month><year>2013</year></pub-date>
`)
	for _, l := range links {
		fmt.Fprintf(&b, `<related-article related-article-type="%s" xlink:href="info:doi/%s"/>`+"\n", l.typ, l.doi)
	}
	b.WriteString(`</article-meta>
</front>
<body>
<fig><object-id pub-id-type="doi">` + doi.String() + `.g001</object-id></fig>
</body>
</article>`)
	return []byte(b.String())
}

func fileInput(fileType model.FileType, entry, contentType string, data []byte) articlepkg.FileInput {
	return articlepkg.FileInput{
		FileType:    fileType,
		Entry:       entry,
		Key:         entry,
		ContentType: contentType,
		Read:        func() ([]byte, error) { return data, nil },
	}
}

// testPackage は原稿、PDF、図1つ、付随ファイル1つのパッケージとそのメタデータを返す。
// 図は代表画像として宣言する。
func testPackage(t *testing.T, doi model.Doi, title string, links ...related) (*articlepkg.Package, *model.ArticleMetadata) {
	t.Helper()
	doc := manuscript(doi, title, "PLoSONE", links...)
	meta, err := jats.NewExtractor(security.NewContentSanitizer()).Extract(doc)
	if err != nil {
		t.Fatalf("failed to extract test manuscript: %v", err)
	}
	figure := doi + ".g001"
	pkg := &articlepkg.Package{
		Doi: doi,
		Items: []articlepkg.ItemInput{
			{
				Doi:      doi,
				ItemType: model.ItemTypeArticle,
				Files: []articlepkg.FileInput{
					fileInput(model.FileTypeManuscript, "manuscript.xml", "application/xml", doc),
					fileInput(model.FileTypePrintable, "article.pdf", "application/pdf", []byte("%PDF-1.4")),
				},
			},
			{
				Doi:      figure,
				ItemType: model.ItemTypeFigure,
				Files: []articlepkg.FileInput{
					fileInput(model.FileTypeOriginal, "g001.tif", "image/tiff", []byte("tiff")),
				},
			},
		},
		Ancillary:        []articlepkg.FileInput{fileInput("", "manifest.xml", "application/xml", []byte("<manifest/>"))},
		StrikingImageDoi: figure,
	}
	return pkg, meta
}

// ingest はパッケージを保存し、番号が衝突した場合はやり直す。
func (f *fixture) ingest(t *testing.T, doi model.Doi, title string, links ...related) *model.Ingestion {
	t.Helper()
	pkg, meta := testPackage(t, doi, title, links...)
	in, err := persistWithRetry(context.Background(), f.store, pkg, meta)
	if err != nil {
		t.Fatalf("PersistPackage(%s) error: %v", doi, err)
	}
	return in
}

func persistWithRetry(ctx context.Context, s *Store, pkg *articlepkg.Package, meta *model.ArticleMetadata) (*model.Ingestion, error) {
	for {
		in, err := s.PersistPackage(ctx, pkg, meta)
		if ErrIngestionConflict.Has(err) {
			continue
		}
		return in, err
	}
}

func ingestionID(doi model.Doi, number int) model.ArticleIngestionIdentifier {
	return model.ArticleIngestionIdentifier{Doi: doi, IngestionNumber: number}
}

func revisionID(doi model.Doi, number int) model.ArticleRevisionIdentifier {
	return model.ArticleRevisionIdentifier{Doi: doi, RevisionNumber: number}
}
