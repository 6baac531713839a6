// Package articlepkg は解析済みのマニフェストと原稿メタデータから
// 取り込み用のArticlePackageを組み立てる。
package articlepkg

import (
	"regexp"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/hitoshi/articlerepo/internal/manifest"
	"github.com/hitoshi/articlerepo/internal/model"
)

// EntryReader はアーカイブからエントリの内容を読み出す。
type EntryReader interface {
	ReadEntry(entry string) ([]byte, error)
}

// FileInput は保存前の1ファイル。付随ファイルではFileTypeが空になる。
type FileInput struct {
	FileType     model.FileType
	Entry        string
	Key          string
	ContentType  string
	DownloadName string

	// Read はアーカイブからファイルの内容を読み出す。
	Read func() ([]byte, error)
}

// ItemInput は保存前のItem。
type ItemInput struct {
	Doi      model.Doi
	ItemType model.ItemType
	Files    []FileInput
}

// Package は1回の取り込みでBlobStoreへ書き込む内容のすべて。
// Itemsの先頭は記事本体。
type Package struct {
	Doi              model.Doi
	Items            []ItemInput
	Ancillary        []FileInput
	StrikingImageDoi model.Doi
}

// FileCount はパッケージに含まれるファイル数を返す。
func (p *Package) FileCount() int {
	n := len(p.Ancillary)
	for _, item := range p.Items {
		n += len(item.Files)
	}
	return n
}

// Build はマニフェストと原稿メタデータを突き合わせてPackageを組み立てる。
// 内容の読み出し以外の副作用はない。
func Build(arc EntryReader, m *manifest.Manifest, meta *model.ArticleMetadata) (*Package, error) {
	if meta.Doi != m.Article.Doi {
		return nil, model.ErrInvalidPackage.New(
			"article DOI is inconsistent. From manifest: %q From manuscript: %q", m.Article.Doi, meta.Doi)
	}

	mentioned := make(map[model.Doi]bool, len(meta.AssetDois))
	for _, d := range meta.AssetDois {
		mentioned[d] = true
	}

	pkg := &Package{Doi: meta.Doi}
	if s := m.StrikingImage(); s != nil {
		pkg.StrikingImageDoi = s.Doi
	}

	article, err := buildItem(arc, m.Article, model.ItemTypeArticle)
	if err != nil {
		return nil, err
	}
	pkg.Items = append(pkg.Items, article)

	for _, asset := range m.Assets {
		itemType := asset.Type
		if !mentioned[asset.Doi] {
			if !asset.StrikingImage {
				return nil, model.ErrInvalidPackage.New("asset not mentioned in manuscript: %s", asset.Doi)
			}
			itemType = model.ItemTypeStandaloneStrikingImage
		}
		item, err := buildItem(arc, asset, itemType)
		if err != nil {
			return nil, err
		}
		pkg.Items = append(pkg.Items, item)
	}

	for _, f := range m.Ancillary {
		in, err := buildFile(arc, f, "", f.Entry)
		if err != nil {
			return nil, err
		}
		pkg.Ancillary = append(pkg.Ancillary, in)
	}

	if err := validateAssetCompleteness(pkg, meta.AssetDois); err != nil {
		return nil, err
	}
	return pkg, nil
}

func buildItem(arc EntryReader, asset manifest.Asset, itemType model.ItemType) (ItemInput, error) {
	item := ItemInput{Doi: asset.Doi, ItemType: itemType}
	for _, rep := range asset.Representations {
		if !itemType.Supports(rep.FileType) {
			return ItemInput{}, model.ErrInvalidPackage.New("%s: file type %s is not allowed for %s", asset.Doi, rep.FileType, itemType)
		}
		in, err := buildFile(arc, rep.File, rep.FileType, downloadName(asset.Doi, rep.File.Entry))
		if err != nil {
			return ItemInput{}, err
		}
		item.Files = append(item.Files, in)
	}
	for _, required := range itemType.RequiredFileTypes() {
		if !hasFileType(item.Files, required) {
			return ItemInput{}, model.ErrInvalidPackage.New("%s has no %s representation", asset.Doi, required)
		}
	}
	return item, nil
}

func buildFile(arc EntryReader, f manifest.File, fileType model.FileType, name string) (FileInput, error) {
	entry := f.Entry
	in := FileInput{
		FileType:     fileType,
		Entry:        entry,
		Key:          f.Key,
		ContentType:  f.MimeType,
		DownloadName: name,
		Read:         func() ([]byte, error) { return arc.ReadEntry(entry) },
	}
	if in.ContentType == "" {
		data, err := arc.ReadEntry(entry)
		if err != nil {
			return FileInput{}, model.ErrInvalidPackage.Wrap(err)
		}
		in.ContentType = mimetype.Detect(data).String()
	}
	return in, nil
}

func hasFileType(files []FileInput, ft model.FileType) bool {
	for _, f := range files {
		if f.FileType == ft {
			return true
		}
	}
	return false
}

// validateAssetCompleteness は原稿が参照するアセットのDoiがすべてパッケージに含まれることを確認する。
func validateAssetCompleteness(pkg *Package, manuscriptDois []model.Doi) error {
	included := make(map[model.Doi]bool, len(pkg.Items))
	for _, item := range pkg.Items {
		included[item.Doi] = true
	}
	var missing []string
	for _, d := range manuscriptDois {
		if !included[d] {
			missing = append(missing, d.String())
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return model.ErrInvalidPackage.New("asset DOIs mentioned in manuscript are not included in package: %s", strings.Join(missing, ", "))
	}
	return nil
}

var pngThumbnailPattern = regexp.MustCompile(`(?i)^(PNG)_\w+$`)

// downloadName はDoiの末尾とエントリの拡張子からダウンロード時のファイル名を作る。
// "PNG_S" のようなサムネイル用の拡張子は "PNG" に戻す。
func downloadName(doi model.Doi, entry string) string {
	ext := entry
	if i := strings.LastIndex(entry, "."); i >= 0 {
		ext = entry[i+1:]
	}
	if m := pngThumbnailPattern.FindStringSubmatch(ext); m != nil {
		ext = m[1]
	}
	return doi.Suffix() + "." + ext
}
