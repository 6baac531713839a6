package versioning

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/articlerepo/internal/articlepkg"
	"github.com/hitoshi/articlerepo/internal/blob"
	"github.com/hitoshi/articlerepo/internal/model"
)

const doiX = model.Doi("10.1371/x")

// 取り込み → 公開 → 再取り込み → 公開の一連の流れ
func TestStore_IngestPublishReingestPublish(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.ingest(t, doiX, "First")
	if first.IngestionNumber != 1 {
		t.Fatalf("first IngestionNumber = %d, want 1", first.IngestionNumber)
	}
	if _, err := f.store.CreateRevision(ctx, ingestionID(doiX, 1), 1); err != nil {
		t.Fatalf("CreateRevision(1) error: %v", err)
	}
	latest, err := f.store.GetLatestRevision(ctx, model.ArticleIdentifier{Doi: doiX})
	if err != nil {
		t.Fatalf("GetLatestRevision() error: %v", err)
	}
	if latest == nil || latest.RevisionNumber != 1 {
		t.Fatalf("latest = %+v, want revision 1", latest)
	}

	second := f.ingest(t, doiX, "Corrected")
	if second.IngestionNumber != 2 {
		t.Fatalf("second IngestionNumber = %d, want 2", second.IngestionNumber)
	}
	if _, err := f.store.CreateRevision(ctx, ingestionID(doiX, 2), 2); err != nil {
		t.Fatalf("CreateRevision(2) error: %v", err)
	}

	ov, err := f.store.Overview(ctx, model.ArticleIdentifier{Doi: doiX})
	if err != nil {
		t.Fatalf("Overview() error: %v", err)
	}
	if diff := cmp.Diff(map[int][]int{1: {1}, 2: {2}}, ov.Ingestions); diff != "" {
		t.Errorf("Ingestions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[int]int{1: 1, 2: 2}, ov.Revisions); diff != "" {
		t.Errorf("Revisions mismatch (-want +got):\n%s", diff)
	}

	latest, _ = f.store.GetLatestRevision(ctx, model.ArticleIdentifier{Doi: doiX})
	if latest.RevisionNumber != 2 {
		t.Errorf("latest RevisionNumber = %d, want 2", latest.RevisionNumber)
	}

	if diff := cmp.Diff([]string{"10.1371/x@1", "10.1371/x@2"}, f.notifier.indexed); diff != "" {
		t.Errorf("indexed notifications mismatch (-want +got):\n%s", diff)
	}
	if f.metrics.published != 2 {
		t.Errorf("published = %d, want 2", f.metrics.published)
	}
}

func TestStore_PersistPackage_WritesRowsAndBlobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	in := f.ingest(t, doiX, "Title <i>x</i>")

	if in.JournalID != f.journal.ID {
		t.Errorf("JournalID = %d, want %d", in.JournalID, f.journal.ID)
	}
	if in.PublicationStage != "" || in.ArticleType != "research-article" {
		t.Errorf("ingestion metadata = %+v", in)
	}
	counts := f.db.Counts()
	if counts["articles"] != 1 || counts["ingestions"] != 1 || counts["items"] != 2 || counts["files"] != 4 {
		t.Errorf("counts = %v", counts)
	}
	if f.blobs.Puts() != 4 {
		t.Errorf("blob puts = %d, want 4", f.blobs.Puts())
	}

	set, err := f.store.ReadItemSet(ctx, in)
	if err != nil {
		t.Fatalf("ReadItemSet() error: %v", err)
	}
	if len(set.Items) != 2 || len(set.Ancillary) != 1 {
		t.Fatalf("set = %d items, %d ancillary", len(set.Items), len(set.Ancillary))
	}
	if set.Manuscript(doiX) == nil {
		t.Error("Manuscript() = nil")
	}
	if len(set.Files()) != 4 {
		t.Errorf("len(Files()) = %d, want 4", len(set.Files()))
	}

	// 代表画像は図のItem
	if in.StrikingImageItemID == nil {
		t.Fatal("StrikingImageItemID = nil")
	}
	stored, _ := f.db.Ingestions().FindByID(ctx, in.ID)
	if stored.StrikingImageItemID == nil || *stored.StrikingImageItemID != *in.StrikingImageItemID {
		t.Errorf("stored striking image = %v", stored.StrikingImageItemID)
	}
	for _, item := range set.Items {
		if item.ID == *in.StrikingImageItemID && item.Doi != doiX+".g001" {
			t.Errorf("striking image item = %s", item.Doi)
		}
	}
}

func TestStore_PersistPackage_JournalFallbackToEIssn(t *testing.T) {
	f := newFixture(t)
	pkg, meta := testPackage(t, doiX, "Title")
	meta.JournalKey = "unknown"

	in, err := f.store.PersistPackage(context.Background(), pkg, meta)
	if err != nil {
		t.Fatalf("PersistPackage() error: %v", err)
	}
	if in.JournalID != f.journal.ID {
		t.Errorf("JournalID = %d, want %d", in.JournalID, f.journal.ID)
	}
}

func TestStore_PersistPackage_UnknownJournal(t *testing.T) {
	f := newFixture(t)
	pkg, meta := testPackage(t, doiX, "Title")
	meta.JournalKey = "unknown"
	meta.EIssn = "0000-0000"

	_, err := f.store.PersistPackage(context.Background(), pkg, meta)
	if !model.ErrConfiguration.Has(err) {
		t.Fatalf("PersistPackage() error = %v, want configuration error", err)
	}
	if counts := f.db.Counts(); counts["articles"] != 0 || counts["ingestions"] != 0 {
		t.Errorf("counts = %v, want nothing persisted", counts)
	}
}

func TestStore_PersistPackage_StorageFailureLeavesNoRows(t *testing.T) {
	f := newFixtureWithBlobs(t, func(s blob.Store) blob.Store { return failingBlobStore{s} })
	pkg, meta := testPackage(t, doiX, "Title")

	_, err := f.store.PersistPackage(context.Background(), pkg, meta)
	if !model.ErrStorageWrite.Has(err) {
		t.Fatalf("PersistPackage() error = %v, want storage write error", err)
	}
	counts := f.db.Counts()
	if counts["ingestions"] != 0 || counts["items"] != 0 || counts["files"] != 0 {
		t.Errorf("counts = %v, want no ingestion rows", counts)
	}
}

func TestStore_PersistPackage_DuplicateFileType(t *testing.T) {
	f := newFixture(t)
	pkg, meta := testPackage(t, doiX, "Title")
	pkg.Items[1].Files = append(pkg.Items[1].Files, fileInput(model.FileTypeOriginal, "g001-2.tif", "image/tiff", []byte("tiff")))

	_, err := f.store.PersistPackage(context.Background(), pkg, meta)
	if !model.ErrDataIntegrity.Has(err) {
		t.Fatalf("PersistPackage() error = %v, want data integrity error", err)
	}
	if counts := f.db.Counts(); counts["files"] != 0 {
		t.Errorf("files = %d, want 0", counts["files"])
	}
}

func TestStore_PersistPackage_AssetOwnedByOtherArticle(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, doiX, "X")

	other := model.Doi("10.1371/y")
	pkg, meta := testPackage(t, other, "Y")
	pkg.Items[1].Doi = doiX + ".g001"
	pkg.StrikingImageDoi = ""

	_, err := f.store.PersistPackage(context.Background(), pkg, meta)
	if !model.ErrDataIntegrity.Has(err) {
		t.Fatalf("PersistPackage() error = %v, want data integrity error", err)
	}
	if counts := f.db.Counts(); counts["articles"] != 1 {
		t.Errorf("articles = %d, want 1", counts["articles"])
	}
}

// 同じ記事への同時取り込みは重複しない連番になる
func TestStore_ConcurrentIngestsAllocateDistinctNumbers(t *testing.T) {
	f := newFixture(t)
	const n = 8

	pkg, meta := testPackage(t, doiX, "Title")

	var wg sync.WaitGroup
	numbers := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in, err := persistWithRetry(context.Background(), f.store, pkg, meta)
			errs[i] = err
			if in != nil {
				numbers[i] = in.IngestionNumber
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("ingest %d error: %v", i, err)
		}
	}
	sort.Ints(numbers)
	for i, got := range numbers {
		if got != i+1 {
			t.Fatalf("numbers = %v, want 1..%d", numbers, n)
		}
	}
	if counts := f.db.Counts(); counts["articles"] != 1 || counts["ingestions"] != n {
		t.Errorf("counts = %v", counts)
	}
}

func TestStore_ConcurrentGetOrCreateArticle(t *testing.T) {
	f := newFixture(t)
	const n = 16

	var wg sync.WaitGroup
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := f.store.GetOrCreateArticle(context.Background(), doiX)
			if err != nil {
				t.Errorf("GetOrCreateArticle() error: %v", err)
				return
			}
			ids[i] = a.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("ids = %v, want all equal", ids)
		}
	}
	if counts := f.db.Counts(); counts["articles"] != 1 {
		t.Errorf("articles = %d, want 1", counts["articles"])
	}
}

func TestResolveStrikingImage(t *testing.T) {
	items := []*model.Item{{ID: 1, Doi: "10.1/a"}, {ID: 2, Doi: "10.1/a.g001"}}

	if got := ResolveStrikingImage(&articlepkg.Package{StrikingImageDoi: "10.1/a.g001"}, items); got == nil || got.ID != 2 {
		t.Errorf("ResolveStrikingImage() = %v, want item 2", got)
	}
	if got := ResolveStrikingImage(&articlepkg.Package{}, items); got != nil {
		t.Errorf("ResolveStrikingImage() = %v, want nil", got)
	}
	if got := ResolveStrikingImage(&articlepkg.Package{StrikingImageDoi: "10.1/missing"}, items); got != nil {
		t.Errorf("ResolveStrikingImage() = %v, want nil", got)
	}
}

func TestStore_GetArticle_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.store.GetArticle(ctx, model.ArticleIdentifier{Doi: doiX}); !model.ErrNotFound.Has(err) {
		t.Errorf("GetArticle() error = %v, want not found", err)
	}
	f.ingest(t, doiX, "X")
	if _, _, err := f.store.GetIngestion(ctx, ingestionID(doiX, 2)); !model.ErrNotFound.Has(err) {
		t.Errorf("GetIngestion() error = %v, want not found", err)
	}
	latest, err := f.store.GetLatestRevision(ctx, model.ArticleIdentifier{Doi: doiX})
	if err != nil || latest != nil {
		t.Errorf("GetLatestRevision() = %v, %v, want nil, nil", latest, err)
	}
}

func TestStore_ListIngestionsAndRevisions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ingest(t, doiX, "A")
	f.ingest(t, doiX, "B")
	if _, err := f.store.CreateRevision(ctx, ingestionID(doiX, 2), 1); err != nil {
		t.Fatal(err)
	}

	ingestions, err := f.store.ListIngestions(ctx, model.ArticleIdentifier{Doi: doiX})
	if err != nil {
		t.Fatalf("ListIngestions() error: %v", err)
	}
	if len(ingestions) != 2 || ingestions[0].Title != "A" || ingestions[1].Title != "B" {
		t.Errorf("ingestions = %+v", ingestions)
	}
	revisions, err := f.store.ListRevisions(ctx, model.ArticleIdentifier{Doi: doiX})
	if err != nil {
		t.Fatalf("ListRevisions() error: %v", err)
	}
	if len(revisions) != 1 || revisions[0].IngestionID != ingestions[1].ID {
		t.Errorf("revisions = %+v", revisions)
	}
	rev, in, err := f.store.GetRevision(ctx, revisionID(doiX, 1))
	if err != nil {
		t.Fatalf("GetRevision() error: %v", err)
	}
	if rev.RevisionNumber != 1 || in.IngestionNumber != 2 {
		t.Errorf("GetRevision() = %+v, %+v", rev, in)
	}
}
