// Package manifest はアーカイブ内の manifest.xml を解析する。
//
// マニフェストはアーカイブに含まれる論理的な構成要素（原稿、図、補足資料）と
// それぞれのファイル表現、どの構成要素にも属さない付随ファイルを宣言する。
package manifest

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hitoshi/articlerepo/internal/model"
)

// EntryName はアーカイブ内のマニフェストのエントリ名。
const EntryName = "manifest.xml"

// Manifest は解析済みのマニフェスト。
type Manifest struct {
	Article   Asset
	Assets    []Asset
	Ancillary []File
}

// Asset はマニフェストに宣言された構成要素。
type Asset struct {
	Type            model.ItemType
	Doi             model.Doi
	StrikingImage   bool
	Representations []Representation
}

// Representation は構成要素のファイル表現。
type Representation struct {
	FileType model.FileType
	File     File
}

// File はアーカイブ内の1ファイルへの参照。
// Keyはコンテンツリポジトリ上のキー、MimeTypeは省略されうる。
type File struct {
	Entry    string
	Key      string
	MimeType string
}

type xmlManifest struct {
	XMLName   xml.Name  `xml:"manifest"`
	Bundle    xmlBundle `xml:"articleBundle"`
	Ancillary []xmlFile `xml:"ancillary>file"`
}

type xmlBundle struct {
	Article *xmlAsset  `xml:"article"`
	Objects []xmlAsset `xml:"object"`
}

type xmlAsset struct {
	Type            string              `xml:"type,attr"`
	URI             string              `xml:"uri,attr"`
	StrikingImage   string              `xml:"strikingImage,attr"`
	Representations []xmlRepresentation `xml:"representation"`
}

type xmlRepresentation struct {
	Type string `xml:"type,attr"`
	xmlFile
}

type xmlFile struct {
	Entry    string `xml:"entry,attr"`
	Key      string `xml:"key,attr"`
	MimeType string `xml:"mimetype,attr"`
}

// Parse はmanifest.xmlを読み込んでManifestを返す。
// 構文エラーおよび宣言内容の不整合はmodel.ErrManifestとして返す。
func Parse(r io.Reader) (*Manifest, error) {
	var doc xmlManifest
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, model.ErrManifest.New("manifest is empty")
		}
		return nil, model.ErrManifest.Wrap(fmt.Errorf("failed to decode manifest: %w", err))
	}

	if doc.Bundle.Article == nil {
		return nil, model.ErrManifest.New("manifest has no 'article' node")
	}

	article, err := convertAsset(*doc.Bundle.Article, model.ItemTypeArticle)
	if err != nil {
		return nil, err
	}

	m := &Manifest{Article: article}

	seen := map[model.Doi]bool{article.Doi: true}
	for _, obj := range doc.Bundle.Objects {
		if obj.Type == "" {
			return nil, model.ErrManifest.New("'object' node must have 'type' attribute")
		}
		itemType, err := model.ParseItemType(obj.Type)
		if err != nil {
			return nil, model.ErrManifest.Wrap(err)
		}
		asset, err := convertAsset(obj, itemType)
		if err != nil {
			return nil, err
		}
		if seen[asset.Doi] {
			return nil, model.ErrManifest.New("Manifest has assets with duplicate uri: %s", asset.Doi)
		}
		seen[asset.Doi] = true
		m.Assets = append(m.Assets, asset)
	}

	for _, f := range doc.Ancillary {
		file, err := convertFile(f)
		if err != nil {
			return nil, err
		}
		m.Ancillary = append(m.Ancillary, file)
	}

	striking := 0
	for _, a := range m.Items() {
		if a.StrikingImage {
			striking++
		}
	}
	if striking > 1 {
		return nil, model.ErrManifest.New("manifest declares %d striking images", striking)
	}

	return m, nil
}

func convertAsset(x xmlAsset, itemType model.ItemType) (Asset, error) {
	if x.URI == "" {
		return Asset{}, model.ErrManifest.New("'%s' node must have 'uri' attribute", nodeName(itemType))
	}
	doi, err := model.ParseDoi(x.URI)
	if err != nil {
		return Asset{}, model.ErrManifest.Wrap(err)
	}

	asset := Asset{
		Type:          itemType,
		Doi:           doi,
		StrikingImage: strings.EqualFold(strings.TrimSpace(x.StrikingImage), "true"),
	}

	seen := make(map[model.FileType]bool)
	for _, rep := range x.Representations {
		fileType, err := model.ParseFileType(rep.Type)
		if err != nil {
			return Asset{}, model.ErrManifest.Wrap(fmt.Errorf("%s: %w", doi, err))
		}
		if seen[fileType] {
			return Asset{}, model.ErrManifest.New("%s has duplicate representation: %s", doi, fileType)
		}
		seen[fileType] = true

		file, err := convertFile(rep.xmlFile)
		if err != nil {
			return Asset{}, err
		}
		asset.Representations = append(asset.Representations, Representation{
			FileType: fileType,
			File:     file,
		})
	}
	return asset, nil
}

func convertFile(x xmlFile) (File, error) {
	entry := strings.TrimSpace(x.Entry)
	if entry == "" {
		return File{}, model.ErrManifest.New("file node must have 'entry' attribute")
	}
	key := strings.TrimSpace(x.Key)
	if key == "" {
		key = entry
	}
	return File{
		Entry:    entry,
		Key:      key,
		MimeType: strings.TrimSpace(x.MimeType),
	}, nil
}

func nodeName(t model.ItemType) string {
	if t == model.ItemTypeArticle {
		return "article"
	}
	return "object"
}

// Items は記事本体を先頭にした全構成要素を返す。
func (m *Manifest) Items() []Asset {
	items := make([]Asset, 0, len(m.Assets)+1)
	items = append(items, m.Article)
	return append(items, m.Assets...)
}

// StrikingImage はstrikingImage属性が付いた構成要素を返す。宣言がなければnil。
func (m *Manifest) StrikingImage() *Asset {
	if m.Article.StrikingImage {
		return &m.Article
	}
	for i := range m.Assets {
		if m.Assets[i].StrikingImage {
			return &m.Assets[i]
		}
	}
	return nil
}

// ManuscriptEntry は記事本体の原稿XMLのエントリ名を返す。
func (m *Manifest) ManuscriptEntry() (string, error) {
	for _, rep := range m.Article.Representations {
		if rep.FileType == model.FileTypeManuscript {
			return rep.File.Entry, nil
		}
	}
	return "", model.ErrManifest.New("article %s has no manuscript representation", m.Article.Doi)
}

// Entries はマニフェストが参照する全エントリ名を重複なしでソートして返す。
func (m *Manifest) Entries() []string {
	set := make(map[string]struct{})
	for _, a := range m.Items() {
		for _, rep := range a.Representations {
			set[rep.File.Entry] = struct{}{}
		}
	}
	for _, f := range m.Ancillary {
		set[f.Entry] = struct{}{}
	}
	entries := make([]string, 0, len(set))
	for e := range set {
		entries = append(entries, e)
	}
	sort.Strings(entries)
	return entries
}

// Validate はマニフェストが参照するエントリがすべてアーカイブに存在することを確認する。
// manifest.xml自体は参照されていなくてもよい。
func (m *Manifest) Validate(archiveEntries []string) error {
	present := make(map[string]bool, len(archiveEntries))
	for _, e := range archiveEntries {
		present[e] = true
	}

	var missing []string
	for _, e := range m.Entries() {
		if !present[e] {
			missing = append(missing, e)
		}
	}
	if len(missing) > 0 {
		return model.ErrManifest.New("manifest references entries not in archive: %s", strings.Join(missing, ", "))
	}
	return nil
}
