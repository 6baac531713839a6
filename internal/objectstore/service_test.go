package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/articlerepo/internal/archive"
	"github.com/hitoshi/articlerepo/internal/articlepkg"
	"github.com/hitoshi/articlerepo/internal/blob"
	"github.com/hitoshi/articlerepo/internal/model"
)

func fileInput(ft model.FileType, entry, content string) articlepkg.FileInput {
	return articlepkg.FileInput{
		FileType:    ft,
		Entry:       entry,
		Key:         entry,
		ContentType: "application/octet-stream",
		Read:        func() ([]byte, error) { return []byte(content), nil },
	}
}

// failingStore は指定キーへの書き込みを失敗させる。
type failingStore struct {
	blob.Store
	failKey string

	mu   sync.Mutex
	puts []string
}

func (s *failingStore) Put(ctx context.Context, key string, data []byte, contentType string) (model.BlobHandle, error) {
	s.mu.Lock()
	s.puts = append(s.puts, key)
	s.mu.Unlock()
	if key == s.failKey {
		return model.BlobHandle{}, errors.New("quota exceeded")
	}
	return s.Store.Put(ctx, key, data, contentType)
}

// sizeStore はストア側の報告サイズを固定値で返す。
type sizeStore struct {
	blob.Store
	size int64
}

func (s sizeStore) Put(ctx context.Context, key string, data []byte, contentType string) (model.BlobHandle, error) {
	h, err := s.Store.Put(ctx, key, data, contentType)
	h.Size = s.size
	return h, err
}

type countingMetrics struct {
	mu     sync.Mutex
	writes int
	bytes  int64
}

func (m *countingMetrics) RecordIngestSuccess()              {}
func (m *countingMetrics) RecordIngestFailure(string)        {}
func (m *countingMetrics) RecordIngestRetry()                {}
func (m *countingMetrics) RecordIngestLatency(time.Duration) {}
func (m *countingMetrics) RecordRevisionPublished()          {}
func (m *countingMetrics) RecordRevisionDeleted()            {}
func (m *countingMetrics) RecordBlobWrite(size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.bytes += size
}

func TestStoreItem_WritesEachRepresentation(t *testing.T) {
	store := blob.NewMemoryStore("corpus")
	svc := NewService(store, nil, nil, 4)
	ingestion := &model.Ingestion{ID: 42}

	input := articlepkg.ItemInput{
		Doi:      "10.1371/journal.pone.0000001.g001",
		ItemType: model.ItemTypeFigure,
		Files: []articlepkg.FileInput{
			fileInput(model.FileTypeOriginal, "g001.tif", "original"),
			fileInput(model.FileTypeSmall, "g001.PNG_S", "small"),
		},
	}

	item, err := svc.StoreItem(context.Background(), input, ingestion)
	if err != nil {
		t.Fatalf("StoreItem returned error: %v", err)
	}
	if item.IngestionID != 42 {
		t.Errorf("IngestionID = %d, want 42", item.IngestionID)
	}
	if len(item.Files) != 2 {
		t.Fatalf("len(Files) = %d, want 2", len(item.Files))
	}
	orig := item.File(model.FileTypeOriginal)
	if orig == nil {
		t.Fatal("original representation missing")
	}
	if orig.Handle.Size != int64(len("original")) {
		t.Errorf("Size = %d, want %d", orig.Handle.Size, len("original"))
	}
	if orig.IngestedFileName != "g001.tif" || orig.IngestionID != 42 || orig.ItemID != nil {
		t.Errorf("unexpected file: %+v", orig)
	}
	if store.Puts() != 2 {
		t.Errorf("Puts() = %d, want 2", store.Puts())
	}
}

func TestStoreItem_NoRepresentations(t *testing.T) {
	svc := NewService(blob.NewMemoryStore("corpus"), nil, nil, 4)

	item, err := svc.StoreItem(context.Background(), articlepkg.ItemInput{
		Doi:      "10.1371/journal.pone.0000001.s001",
		ItemType: model.ItemTypeSupplementaryMaterial,
	}, &model.Ingestion{ID: 1})
	if err != nil {
		t.Fatalf("StoreItem returned error: %v", err)
	}
	if item == nil {
		t.Fatal("expected item")
	}
	if len(item.Files) != 0 {
		t.Errorf("len(Files) = %d, want 0", len(item.Files))
	}
}

// サイズはアップロード側の申告ではなくストアの報告値を使う
func TestStoreItem_SizeFromStore(t *testing.T) {
	svc := NewService(sizeStore{Store: blob.NewMemoryStore("corpus"), size: 999}, nil, nil, 1)

	item, err := svc.StoreItem(context.Background(), articlepkg.ItemInput{
		Doi:      "10.1371/journal.pone.0000001",
		ItemType: model.ItemTypeArticle,
		Files:    []articlepkg.FileInput{fileInput(model.FileTypeManuscript, "m.xml", "abc")},
	}, &model.Ingestion{ID: 1})
	if err != nil {
		t.Fatalf("StoreItem returned error: %v", err)
	}
	if got := item.Files[0].Handle.Size; got != 999 {
		t.Errorf("Size = %d, want 999", got)
	}
}

func TestStoreItem_StoreFailure(t *testing.T) {
	store := &failingStore{Store: blob.NewMemoryStore("corpus"), failKey: "g001.PNG_S"}
	svc := NewService(store, nil, nil, 1)

	item, err := svc.StoreItem(context.Background(), articlepkg.ItemInput{
		Doi:      "10.1371/journal.pone.0000001.g001",
		ItemType: model.ItemTypeFigure,
		Files: []articlepkg.FileInput{
			fileInput(model.FileTypeOriginal, "g001.tif", "original"),
			fileInput(model.FileTypeSmall, "g001.PNG_S", "small"),
		},
	}, &model.Ingestion{ID: 1})
	if !model.ErrStorageWrite.Has(err) {
		t.Fatalf("error = %v, want ErrStorageWrite", err)
	}
	if item != nil {
		t.Errorf("expected no item on failure, got %+v", item)
	}
}

func TestStoreItem_ReadFailure(t *testing.T) {
	svc := NewService(blob.NewMemoryStore("corpus"), nil, nil, 1)
	broken := fileInput(model.FileTypeManuscript, "m.xml", "")
	broken.Read = func() ([]byte, error) { return nil, errors.New("truncated") }

	_, err := svc.StoreItem(context.Background(), articlepkg.ItemInput{
		Doi: "10.1371/x", ItemType: model.ItemTypeArticle, Files: []articlepkg.FileInput{broken},
	}, &model.Ingestion{ID: 1})
	if !model.ErrInvalidPackage.Has(err) {
		t.Fatalf("error = %v, want ErrInvalidPackage", err)
	}
}

func TestStoreAncillaryFiles(t *testing.T) {
	svc := NewService(blob.NewMemoryStore("corpus"), nil, nil, 2)
	pkg := &articlepkg.Package{
		Ancillary: []articlepkg.FileInput{
			fileInput("", "manifest.xml", "<manifest/>"),
			fileInput("", "readme.txt", "hello"),
		},
	}

	files, err := svc.StoreAncillaryFiles(context.Background(), pkg, &model.Ingestion{ID: 7})
	if err != nil {
		t.Fatalf("StoreAncillaryFiles returned error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("len(files) = %d, want 2", len(files))
	}
	for _, f := range files {
		if !f.IsAncillary() || f.FileType != "" {
			t.Errorf("file %s should be ancillary: %+v", f.IngestedFileName, f)
		}
	}
	if files[0].IngestedFileName != "manifest.xml" || files[1].IngestedFileName != "readme.txt" {
		t.Errorf("files out of input order: %s, %s", files[0].IngestedFileName, files[1].IngestedFileName)
	}
}

func TestStoreAll_GroupsFilesByItem(t *testing.T) {
	mc := &countingMetrics{}
	svc := NewService(blob.NewMemoryStore("corpus"), nil, nil, 3)
	svc.metrics = mc

	pkg := &articlepkg.Package{
		Doi: "10.1371/x",
		Items: []articlepkg.ItemInput{
			{Doi: "10.1371/x", ItemType: model.ItemTypeArticle, Files: []articlepkg.FileInput{
				fileInput(model.FileTypeManuscript, "x.xml", "xml"),
				fileInput(model.FileTypePrintable, "x.pdf", "pdf"),
			}},
			{Doi: "10.1371/x.s001", ItemType: model.ItemTypeSupplementaryMaterial},
			{Doi: "10.1371/x.g001", ItemType: model.ItemTypeFigure, Files: []articlepkg.FileInput{
				fileInput(model.FileTypeOriginal, "g001.tif", "tif"),
			}},
		},
		Ancillary: []articlepkg.FileInput{fileInput("", "manifest.xml", "m")},
	}

	stored, err := svc.StoreAll(context.Background(), pkg, &model.Ingestion{ID: 3})
	if err != nil {
		t.Fatalf("StoreAll returned error: %v", err)
	}

	var counts []int
	for _, item := range stored.Items {
		counts = append(counts, len(item.Files))
	}
	if fmt.Sprint(counts) != "[2 0 1]" {
		t.Errorf("files per item = %v, want [2 0 1]", counts)
	}
	if stored.Items[2].File(model.FileTypeOriginal).IngestedFileName != "g001.tif" {
		t.Error("figure file was attached to the wrong item")
	}
	if len(stored.Ancillary) != 1 || stored.Ancillary[0].IngestedFileName != "manifest.xml" {
		t.Errorf("unexpected ancillary: %+v", stored.Ancillary)
	}
	if mc.writes != 4 || mc.bytes != int64(len("xml")+len("pdf")+len("tif")+len("m")) {
		t.Errorf("metrics writes=%d bytes=%d", mc.writes, mc.bytes)
	}
}

func TestStoreAll_WithoutIngestionKeepsDownloadName(t *testing.T) {
	svc := NewService(blob.NewMemoryStore("corpus"), nil, nil, 2)
	pdf := fileInput(model.FileTypePrintable, "x.pdf", "pdf")
	pdf.DownloadName = "journal.pone.0000001.PDF"
	pkg := &articlepkg.Package{
		Items: []articlepkg.ItemInput{{Doi: "10.1371/x", ItemType: model.ItemTypeArticle, Files: []articlepkg.FileInput{pdf}}},
	}

	stored, err := svc.StoreAll(context.Background(), pkg, nil)
	if err != nil {
		t.Fatalf("StoreAll returned error: %v", err)
	}
	item := stored.Items[0]
	if item.IngestionID != 0 {
		t.Errorf("item IngestionID = %d, want 0", item.IngestionID)
	}
	f := item.File(model.FileTypePrintable)
	if f.IngestionID != 0 {
		t.Errorf("file IngestionID = %d, want 0", f.IngestionID)
	}
	if f.DownloadName != "journal.pone.0000001.PDF" {
		t.Errorf("DownloadName = %q, want %q", f.DownloadName, "journal.pone.0000001.PDF")
	}
}

func TestStoreAll_CancelledContext(t *testing.T) {
	svc := NewService(blob.NewMemoryStore("corpus"), nil, nil, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.StoreAll(ctx, &articlepkg.Package{
		Items: []articlepkg.ItemInput{{Doi: "10.1371/x", ItemType: model.ItemTypeArticle, Files: []articlepkg.FileInput{
			fileInput(model.FileTypeManuscript, "x.xml", "xml"),
		}}},
	}, &model.Ingestion{ID: 1})
	if !model.ErrStorageWrite.Has(err) {
		t.Fatalf("error = %v, want ErrStorageWrite", err)
	}
}

func TestRepack_RoundTrip(t *testing.T) {
	svc := NewService(blob.NewMemoryStore("corpus"), nil, nil, 2)
	stored, err := svc.StoreAll(context.Background(), &articlepkg.Package{
		Items: []articlepkg.ItemInput{{Doi: "10.1371/x", ItemType: model.ItemTypeArticle, Files: []articlepkg.FileInput{
			fileInput(model.FileTypeManuscript, "x.xml", "<article/>"),
		}}},
		Ancillary: []articlepkg.FileInput{fileInput("", "manifest.xml", "<manifest/>")},
	}, &model.Ingestion{ID: 1})
	if err != nil {
		t.Fatalf("StoreAll returned error: %v", err)
	}

	files := append(append([]*model.File{}, stored.Items[0].Files...), stored.Ancillary...)
	files = append(files, stored.Ancillary[0])

	var buf bytes.Buffer
	if err := svc.Repack(context.Background(), files, &buf); err != nil {
		t.Fatalf("Repack returned error: %v", err)
	}

	arc, err := archive.FromBytes("repacked.zip", buf.Bytes())
	if err != nil {
		t.Fatalf("FromBytes returned error: %v", err)
	}
	names := arc.EntryNames()
	sort.Strings(names)
	if fmt.Sprint(names) != "[manifest.xml x.xml]" {
		t.Errorf("entries = %v", names)
	}
	rc, err := arc.OpenEntry("x.xml")
	if err != nil {
		t.Fatalf("OpenEntry returned error: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "<article/>" {
		t.Errorf("x.xml = %q", data)
	}
}
