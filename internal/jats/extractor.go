// Package jats はJATS形式の原稿XMLから記事メタデータを抽出する。
package jats

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/articlerepo/internal/model"
	"github.com/hitoshi/articlerepo/internal/security"
)

// MetadataExtractor は原稿文書からメタデータを取り出すインターフェース。
// 失敗はmodel.ErrMetadataExtractionとして返す。
type MetadataExtractor interface {
	Extract(doc []byte) (*model.ArticleMetadata, error)
}

// custom-metaの名前
const (
	metaRevisionDate     = "Revision Date"
	metaPublicationStage = "Publication Stage"
)

// Extractor はJATS原稿用のMetadataExtractor実装。
type Extractor struct {
	sanitizer security.ContentSanitizerService
}

// NewExtractor はExtractorを生成する。
func NewExtractor(sanitizer security.ContentSanitizerService) *Extractor {
	return &Extractor{sanitizer: sanitizer}
}

type xmlArticle struct {
	XMLName     xml.Name `xml:"article"`
	ArticleType string   `xml:"article-type,attr"`
	Front       xmlFront `xml:"front"`
}

type xmlFront struct {
	JournalMeta xmlJournalMeta `xml:"journal-meta"`
	ArticleMeta xmlArticleMeta `xml:"article-meta"`
}

type xmlJournalMeta struct {
	JournalIDs   []xmlTyped `xml:"journal-id"`
	JournalTitle string     `xml:"journal-title-group>journal-title"`
	ISSNs        []xmlISSN  `xml:"issn"`
}

type xmlArticleMeta struct {
	ArticleIDs []xmlPubID      `xml:"article-id"`
	Title      xmlInner        `xml:"title-group>article-title"`
	PubDates   []xmlDate       `xml:"pub-date"`
	CustomMeta []xmlCustomMeta `xml:"custom-meta-group>custom-meta"`
}

type xmlTyped struct {
	Type  string `xml:"journal-id-type,attr"`
	Value string `xml:",chardata"`
}

type xmlISSN struct {
	PubType           string `xml:"pub-type,attr"`
	PublicationFormat string `xml:"publication-format,attr"`
	Value             string `xml:",chardata"`
}

type xmlPubID struct {
	Type  string `xml:"pub-id-type,attr"`
	Value string `xml:",chardata"`
}

type xmlInner struct {
	Inner string `xml:",innerxml"`
}

type xmlDate struct {
	PubType  string `xml:"pub-type,attr"`
	DateType string `xml:"date-type,attr"`
	Day      string `xml:"day"`
	Month    string `xml:"month"`
	Year     string `xml:"year"`
}

type xmlCustomMeta struct {
	Name  string `xml:"meta-name"`
	Value string `xml:"meta-value"`
}

func newDecoder(doc []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	dec.Entity = xml.HTMLEntity
	return dec
}

// Extract は原稿XMLを解析してメタデータを返す。
// DOI、タイトル、公開日のいずれかが欠けている場合はエラーとする。
func (e *Extractor) Extract(doc []byte) (*model.ArticleMetadata, error) {
	var article xmlArticle
	if err := newDecoder(doc).Decode(&article); err != nil {
		return nil, model.ErrMetadataExtraction.Wrap(fmt.Errorf("failed to parse manuscript: %w", err))
	}

	front := article.Front
	meta := &model.ArticleMetadata{
		ArticleType: strings.TrimSpace(article.ArticleType),
		JournalName: strings.TrimSpace(front.JournalMeta.JournalTitle),
		JournalKey:  journalKey(front.JournalMeta.JournalIDs),
		EIssn:       electronicISSN(front.JournalMeta.ISSNs),
	}

	for _, id := range front.ArticleMeta.ArticleIDs {
		if id.Type == "doi" {
			doi, err := model.ParseDoi(id.Value)
			if err != nil {
				return nil, model.ErrMetadataExtraction.Wrap(err)
			}
			meta.Doi = doi
			break
		}
	}
	if meta.Doi == "" {
		return nil, model.ErrMetadataExtraction.New("manuscript has no article DOI")
	}

	meta.Title = e.sanitizer.Sanitize(front.ArticleMeta.Title.Inner)
	if meta.Title == "" {
		return nil, model.ErrMetadataExtraction.New("manuscript %s has no title", meta.Doi)
	}

	pubDate, err := publicationDate(front.ArticleMeta.PubDates)
	if err != nil {
		return nil, model.ErrMetadataExtraction.Wrap(fmt.Errorf("%s: %w", meta.Doi, err))
	}
	meta.PublicationDate = pubDate

	for _, cm := range front.ArticleMeta.CustomMeta {
		name := strings.TrimSpace(cm.Name)
		value := strings.TrimSpace(cm.Value)
		switch name {
		case metaRevisionDate:
			if value == "" {
				continue
			}
			d, err := time.Parse("2006-01-02", value)
			if err != nil {
				return nil, model.ErrMetadataExtraction.New("%s: invalid revision date %q", meta.Doi, value)
			}
			meta.RevisionDate = &d
		case metaPublicationStage:
			meta.PublicationStage = value
		}
	}

	if err := scanReferences(doc, meta); err != nil {
		return nil, model.ErrMetadataExtraction.Wrap(fmt.Errorf("%s: %w", meta.Doi, err))
	}

	return meta, nil
}

// scanReferences は文書全体から図表等のDOIと関連記事宣言を集める。
func scanReferences(doc []byte, meta *model.ArticleMetadata) error {
	dec := newDecoder(doc)
	seen := make(map[model.Doi]bool)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "object-id":
			if attr(start, "pub-id-type") != "doi" {
				continue
			}
			var value string
			if err := dec.DecodeElement(&value, &start); err != nil {
				return err
			}
			doi, err := model.ParseDoi(value)
			if err != nil {
				return err
			}
			if doi != meta.Doi && !seen[doi] {
				seen[doi] = true
				meta.AssetDois = append(meta.AssetDois, doi)
			}
		case "related-article":
			href := attr(start, "href")
			if href == "" {
				continue
			}
			doi, err := model.ParseDoi(href)
			if err != nil {
				continue
			}
			meta.RelatedArticles = append(meta.RelatedArticles, model.RelatedArticleLink{
				Type:        attr(start, "related-article-type"),
				SpecificUse: attr(start, "specific-use"),
				Doi:         doi,
			})
		}
	}
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

func journalKey(ids []xmlTyped) string {
	var fallback string
	for _, id := range ids {
		v := strings.TrimSpace(id.Value)
		switch id.Type {
		case "publisher-id":
			return v
		case "nlm-ta":
			if fallback == "" {
				fallback = v
			}
		}
	}
	return fallback
}

func electronicISSN(issns []xmlISSN) string {
	for _, i := range issns {
		if i.PubType == "epub" || i.PublicationFormat == "electronic" {
			return strings.TrimSpace(i.Value)
		}
	}
	return ""
}

// publicationDate は電子版の公開日を優先し、なければ最初のpub-dateを使う。
func publicationDate(dates []xmlDate) (time.Time, error) {
	if len(dates) == 0 {
		return time.Time{}, fmt.Errorf("manuscript has no publication date")
	}
	chosen := dates[0]
	for _, d := range dates {
		if d.PubType == "epub" || d.DateType == "pub" {
			chosen = d
			break
		}
	}

	year, err := strconv.Atoi(strings.TrimSpace(chosen.Year))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid publication year %q", chosen.Year)
	}
	month := 1
	if s := strings.TrimSpace(chosen.Month); s != "" {
		if month, err = strconv.Atoi(s); err != nil || month < 1 || month > 12 {
			return time.Time{}, fmt.Errorf("invalid publication month %q", chosen.Month)
		}
	}
	day := 1
	if s := strings.TrimSpace(chosen.Day); s != "" {
		if day, err = strconv.Atoi(s); err != nil || day < 1 || day > 31 {
			return time.Time{}, fmt.Errorf("invalid publication day %q", chosen.Day)
		}
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}
