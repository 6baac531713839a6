package articlepkg

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/articlerepo/internal/manifest"
	"github.com/hitoshi/articlerepo/internal/model"
)

type fakeArchive map[string][]byte

func (a fakeArchive) ReadEntry(entry string) ([]byte, error) {
	data, ok := a[entry]
	if !ok {
		return nil, fmt.Errorf("no entry %s", entry)
	}
	return data, nil
}

const articleDoi = model.Doi("10.1371/journal.pone.0000001")

func testArchive() fakeArchive {
	return fakeArchive{
		"manuscript.xml": []byte(`<?xml version="1.0"?><article/>`),
		"article.pdf":    []byte("%PDF-1.4"),
		"g001.tif":       []byte("tiff"),
		"g001.PNG_S":     []byte("\x89PNG\r\n\x1a\nrest"),
		"si.bin":         []byte("\x89PNG\r\n\x1a\nrest"),
		"manifest.xml":   []byte("<manifest/>"),
	}
}

func testManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Article: manifest.Asset{
			Type: model.ItemTypeArticle,
			Doi:  articleDoi,
			Representations: []manifest.Representation{
				{FileType: model.FileTypeManuscript, File: manifest.File{Entry: "manuscript.xml", Key: "manuscript.xml", MimeType: "application/xml"}},
				{FileType: model.FileTypePrintable, File: manifest.File{Entry: "article.pdf", Key: "article.pdf", MimeType: "application/pdf"}},
			},
		},
		Assets: []manifest.Asset{
			{
				Type: model.ItemTypeFigure,
				Doi:  articleDoi + ".g001",
				Representations: []manifest.Representation{
					{FileType: model.FileTypeOriginal, File: manifest.File{Entry: "g001.tif", Key: "g001.tif", MimeType: "image/tiff"}},
					{FileType: model.FileTypeSmall, File: manifest.File{Entry: "g001.PNG_S", Key: "g001.PNG_S"}},
				},
			},
		},
		Ancillary: []manifest.File{
			{Entry: "manifest.xml", Key: "manifest.xml", MimeType: "application/xml"},
		},
	}
}

func testMetadata() *model.ArticleMetadata {
	return &model.ArticleMetadata{
		Doi:       articleDoi,
		AssetDois: []model.Doi{articleDoi + ".g001"},
	}
}

func TestBuild_AssemblesItemsAndAncillary(t *testing.T) {
	pkg, err := Build(testArchive(), testManifest(), testMetadata())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	if pkg.Doi != articleDoi {
		t.Errorf("Doi = %q, want %q", pkg.Doi, articleDoi)
	}
	if len(pkg.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(pkg.Items))
	}
	if pkg.Items[0].ItemType != model.ItemTypeArticle {
		t.Errorf("first item type = %q, want article", pkg.Items[0].ItemType)
	}
	if pkg.FileCount() != 5 {
		t.Errorf("FileCount() = %d, want 5", pkg.FileCount())
	}

	type summary struct {
		FileType     model.FileType
		ContentType  string
		DownloadName string
	}
	var got []summary
	for _, item := range pkg.Items {
		for _, f := range item.Files {
			got = append(got, summary{f.FileType, f.ContentType, f.DownloadName})
		}
	}
	want := []summary{
		{model.FileTypeManuscript, "application/xml", "journal.pone.0000001.xml"},
		{model.FileTypePrintable, "application/pdf", "journal.pone.0000001.pdf"},
		{model.FileTypeOriginal, "image/tiff", "journal.pone.0000001.g001.tif"},
		{model.FileTypeSmall, "image/png", "journal.pone.0000001.g001.PNG"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("file inputs mismatch (-want +got):\n%s", diff)
	}

	if len(pkg.Ancillary) != 1 || pkg.Ancillary[0].DownloadName != "manifest.xml" || pkg.Ancillary[0].FileType != "" {
		t.Errorf("unexpected ancillary files: %+v", pkg.Ancillary)
	}

	data, err := pkg.Items[1].Files[0].Read()
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if string(data) != "tiff" {
		t.Errorf("Read() = %q, want %q", data, "tiff")
	}
}

func TestBuild_InconsistentDoi(t *testing.T) {
	meta := testMetadata()
	meta.Doi = "10.1371/journal.pone.0000002"

	_, err := Build(testArchive(), testManifest(), meta)
	if !model.ErrInvalidPackage.Has(err) {
		t.Fatalf("error = %v, want ErrInvalidPackage", err)
	}
}

func TestBuild_AssetNotMentionedInManuscript(t *testing.T) {
	meta := testMetadata()
	meta.AssetDois = nil

	_, err := Build(testArchive(), testManifest(), meta)
	if !model.ErrInvalidPackage.Has(err) {
		t.Fatalf("error = %v, want ErrInvalidPackage", err)
	}
}

// 原稿から参照されない代表画像は単独の代表画像として扱う
func TestBuild_StandaloneStrikingImage(t *testing.T) {
	m := testManifest()
	m.Assets = append(m.Assets, manifest.Asset{
		Type:          model.ItemTypeFigure,
		Doi:           articleDoi + ".strk",
		StrikingImage: true,
		Representations: []manifest.Representation{
			{FileType: model.FileTypeOriginal, File: manifest.File{Entry: "si.bin", Key: "si.bin"}},
		},
	})

	pkg, err := Build(testArchive(), m, testMetadata())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	last := pkg.Items[len(pkg.Items)-1]
	if last.ItemType != model.ItemTypeStandaloneStrikingImage {
		t.Errorf("ItemType = %q, want %q", last.ItemType, model.ItemTypeStandaloneStrikingImage)
	}
	if pkg.StrikingImageDoi != articleDoi+".strk" {
		t.Errorf("StrikingImageDoi = %q", pkg.StrikingImageDoi)
	}
	if last.Files[0].ContentType != "image/png" {
		t.Errorf("inferred ContentType = %q, want image/png", last.Files[0].ContentType)
	}
}

func TestBuild_MissingAssetInPackage(t *testing.T) {
	meta := testMetadata()
	meta.AssetDois = append(meta.AssetDois, articleDoi+".t001", articleDoi+".g002")

	_, err := Build(testArchive(), testManifest(), meta)
	if !model.ErrInvalidPackage.Has(err) {
		t.Fatalf("error = %v, want ErrInvalidPackage", err)
	}
}

func TestBuild_ArticleWithoutManuscript(t *testing.T) {
	m := testManifest()
	m.Article.Representations = m.Article.Representations[1:]

	_, err := Build(testArchive(), m, testMetadata())
	if !model.ErrInvalidPackage.Has(err) {
		t.Fatalf("error = %v, want ErrInvalidPackage", err)
	}
}

func TestBuild_UnsupportedFileType(t *testing.T) {
	m := testManifest()
	m.Assets[0].Representations = append(m.Assets[0].Representations, manifest.Representation{
		FileType: model.FileTypeLetter,
		File:     manifest.File{Entry: "g001.tif", Key: "g001.tif", MimeType: "image/tiff"},
	})

	_, err := Build(testArchive(), m, testMetadata())
	if !model.ErrInvalidPackage.Has(err) {
		t.Fatalf("error = %v, want ErrInvalidPackage", err)
	}
}

func TestDownloadName(t *testing.T) {
	tests := []struct {
		doi   model.Doi
		entry string
		want  string
	}{
		{"10.1371/journal.pone.0000001.g001", "g001.tif", "journal.pone.0000001.g001.tif"},
		{"10.1371/journal.pone.0000001.g001", "g001.PNG_M", "journal.pone.0000001.g001.PNG"},
		{"10.1371/journal.pone.0000001.g001", "g001.png_l", "journal.pone.0000001.g001.png"},
		{"10.1371/journal.pone.0000001", "noext", "journal.pone.0000001.noext"},
	}
	for _, tt := range tests {
		if got := downloadName(tt.doi, tt.entry); got != tt.want {
			t.Errorf("downloadName(%q, %q) = %q, want %q", tt.doi, tt.entry, got, tt.want)
		}
	}
}
