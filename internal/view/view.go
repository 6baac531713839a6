// Package view はCLIと運用APIが出力するJSON表現を定義する。
package view

import (
	"sort"
	"time"

	"github.com/hitoshi/articlerepo/internal/model"
)

// Ingestion はIngestionのJSON表現。
type Ingestion struct {
	Doi              model.Doi  `json:"doi"`
	IngestionNumber  int        `json:"ingestionNumber"`
	Title            string     `json:"title"`
	ArticleType      string     `json:"articleType,omitempty"`
	PublicationStage string     `json:"publicationStage,omitempty"`
	PublicationDate  string     `json:"publicationDate"`
	RevisionDate     string     `json:"revisionDate,omitempty"`
	StrikingImage    *model.Doi `json:"strikingImage,omitempty"`
	Created          time.Time  `json:"created"`
	LastModified     time.Time  `json:"lastModified"`
}

const dateLayout = "2006-01-02"

// NewIngestion はIngestionのJSON表現を作る。itemsは目を引く画像のDoiを引くために使う。
func NewIngestion(doi model.Doi, in *model.Ingestion, items []*model.Item) Ingestion {
	v := Ingestion{
		Doi:              doi,
		IngestionNumber:  in.IngestionNumber,
		Title:            in.Title,
		ArticleType:      in.ArticleType,
		PublicationStage: in.PublicationStage,
		PublicationDate:  in.PublicationDate.Format(dateLayout),
		Created:          in.Created,
		LastModified:     in.LastModified,
	}
	if in.RevisionDate != nil {
		v.RevisionDate = in.RevisionDate.Format(dateLayout)
	}
	if in.StrikingImageItemID != nil {
		for _, item := range items {
			if item.ID == *in.StrikingImageItemID {
				d := item.Doi
				v.StrikingImage = &d
				break
			}
		}
	}
	return v
}

// Revision はRevisionのJSON表現。
type Revision struct {
	Doi             model.Doi `json:"doi"`
	RevisionNumber  int       `json:"revisionNumber"`
	IngestionNumber int       `json:"ingestionNumber"`
	Created         time.Time `json:"created"`
}

// NewRevision はRevisionのJSON表現を作る。
func NewRevision(doi model.Doi, rev *model.Revision, ingestion *model.Ingestion) Revision {
	return Revision{
		Doi:             doi,
		RevisionNumber:  rev.RevisionNumber,
		IngestionNumber: ingestion.IngestionNumber,
		Created:         rev.Created,
	}
}

// Overview はArticleOverviewのJSON表現。マップのキーは番号の文字列になる。
type Overview struct {
	Doi        model.Doi     `json:"doi"`
	Ingestions map[int][]int `json:"ingestions"`
	Revisions  map[int]int   `json:"revisions"`
}

// NewOverview はArticleOverviewのJSON表現を作る。
func NewOverview(ov *model.ArticleOverview) Overview {
	return Overview{
		Doi:        ov.Doi,
		Ingestions: ov.Ingestions,
		Revisions:  ov.Revisions,
	}
}

// File はFileのJSON表現。
type File struct {
	Type         string `json:"type,omitempty"`
	Name         string `json:"name"`
	DownloadName string `json:"downloadName,omitempty"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
	Bucket       string `json:"bucket"`
	Key          string `json:"key"`
	UUID         string `json:"uuid"`
}

// NewFile はFileのJSON表現を作る。
func NewFile(f *model.File) File {
	return File{
		Type:         f.FileType.String(),
		Name:         f.IngestedFileName,
		DownloadName: f.DownloadName,
		ContentType:  f.ContentType,
		Size:         f.Handle.Size,
		Bucket:       f.Handle.Bucket,
		Key:          f.Handle.Key,
		UUID:         f.Handle.UUID,
	}
}

// Item はItemのJSON表現。ファイルは種別順に並べる。
type Item struct {
	Doi      model.Doi `json:"doi"`
	ItemType string    `json:"itemType"`
	Files    []File    `json:"files"`
}

// NewItem はItemのJSON表現を作る。
func NewItem(item *model.Item) Item {
	v := Item{Doi: item.Doi, ItemType: item.ItemType.String(), Files: []File{}}
	for _, f := range item.Files {
		v.Files = append(v.Files, NewFile(f))
	}
	sort.Slice(v.Files, func(i, j int) bool { return v.Files[i].Type < v.Files[j].Type })
	return v
}

// ItemSet はIngestionに含まれるItemと付随ファイルのJSON表現。
type ItemSet struct {
	Ingestion Ingestion `json:"ingestion"`
	Items     []Item    `json:"items"`
	Ancillary []File    `json:"ancillaryFiles"`
}

// NewItemSet はItemSetのJSON表現を作る。ItemはDoi順に並べる。
func NewItemSet(doi model.Doi, ingestion *model.Ingestion, items []*model.Item, ancillary []*model.File) ItemSet {
	v := ItemSet{
		Ingestion: NewIngestion(doi, ingestion, items),
		Items:     []Item{},
		Ancillary: []File{},
	}
	for _, item := range items {
		v.Items = append(v.Items, NewItem(item))
	}
	sort.Slice(v.Items, func(i, j int) bool { return v.Items[i].Doi < v.Items[j].Doi })
	for _, f := range ancillary {
		v.Ancillary = append(v.Ancillary, NewFile(f))
	}
	sort.Slice(v.Ancillary, func(i, j int) bool { return v.Ancillary[i].Name < v.Ancillary[j].Name })
	return v
}

// ItemLocation はItemのDoiから引いた所在。
type ItemLocation struct {
	Article         model.Doi `json:"article"`
	IngestionNumber int       `json:"ingestionNumber"`
	Item            Item      `json:"item"`
}

// IngestResult は取り込み結果のJSON表現。
type IngestResult struct {
	Doi             model.Doi `json:"doi"`
	IngestionNumber int       `json:"ingestionNumber"`
	Items           int       `json:"items"`
	Files           int       `json:"files"`
	RevisionNumber  *int      `json:"revisionNumber,omitempty"`
}

// Journal はJournalのJSON表現。
type Journal struct {
	JournalKey string `json:"journalKey"`
	EIssn      string `json:"eIssn,omitempty"`
	Title      string `json:"title"`
}

// NewJournal はJournalのJSON表現を作る。
func NewJournal(j *model.Journal) Journal {
	return Journal{JournalKey: j.JournalKey, EIssn: j.EIssn, Title: j.Title}
}

// NewItemLocation はItemの所在のJSON表現を作る。
func NewItemLocation(article model.Doi, ingestion *model.Ingestion, item *model.Item) ItemLocation {
	return ItemLocation{
		Article:         article,
		IngestionNumber: ingestion.IngestionNumber,
		Item:            NewItem(item),
	}
}
