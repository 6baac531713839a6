package model

import (
	"fmt"
	"time"
)

// Item はIngestion内の論理的な構成要素（原稿本体、図、補足資料など）。
type Item struct {
	ID          int64
	IngestionID int64
	Doi         Doi
	ItemType    ItemType
	Files       []*File
	Created     time.Time
}

// File は指定した種別のファイル表現を返す。なければnil。
func (i *Item) File(fileType FileType) *File {
	for _, f := range i.Files {
		if f.FileType == fileType {
			return f
		}
	}
	return nil
}

// BlobHandle はBlobStoreに書き込んだオブジェクトのバージョン付きハンドル。
type BlobHandle struct {
	Bucket string
	Key    string
	UUID   string
	Size   int64
}

// File はItemの物理的な表現、またはItemに属さない付随ファイル。
// ItemIDがnilの場合は付随ファイルで、FileTypeは空になる。
// DownloadNameは配信時に提示するファイル名。
type File struct {
	ID               int64
	IngestionID      int64
	ItemID           *int64
	FileType         FileType
	Handle           BlobHandle
	IngestedFileName string
	DownloadName     string
	ContentType      string
	Created          time.Time
}

// IsAncillary はItemに属さないファイルかどうかを返す。
func (f *File) IsAncillary() bool {
	return f.ItemID == nil
}

// ItemType はItemの種別。
type ItemType string

const (
	ItemTypeArticle                 ItemType = "article"
	ItemTypeFigure                  ItemType = "figure"
	ItemTypeTable                   ItemType = "table"
	ItemTypeGraphic                 ItemType = "graphic"
	ItemTypeReviewLetter            ItemType = "reviewLetter"
	ItemTypeSupplementaryMaterial   ItemType = "supplementaryMaterial"
	ItemTypeStandaloneStrikingImage ItemType = "standaloneStrikingImage"
)

// FileType はファイル表現の種別。
type FileType string

const (
	FileTypeManuscript    FileType = "manuscript"
	FileTypePrintable     FileType = "printable"
	FileTypeOriginal      FileType = "original"
	FileTypeThumbnail     FileType = "thumbnail"
	FileTypeSmall         FileType = "small"
	FileTypeInline        FileType = "inline"
	FileTypeMedium        FileType = "medium"
	FileTypeLarge         FileType = "large"
	FileTypeLetter        FileType = "letter"
	FileTypeSupplementary FileType = "supplementary"
)

var imageFileTypes = []FileType{
	FileTypeOriginal, FileTypeSmall, FileTypeInline, FileTypeMedium, FileTypeLarge,
}

// itemFileTypes は種別ごとに許可されるファイル表現。
var itemFileTypes = map[ItemType][]FileType{
	ItemTypeArticle:                 {FileTypeManuscript, FileTypePrintable},
	ItemTypeFigure:                  imageFileTypes,
	ItemTypeTable:                   imageFileTypes,
	ItemTypeStandaloneStrikingImage: imageFileTypes,
	ItemTypeGraphic:                 {FileTypeOriginal, FileTypeThumbnail},
	ItemTypeReviewLetter:            {FileTypeLetter},
	ItemTypeSupplementaryMaterial:   {FileTypeSupplementary},
}

// ParseItemType は文字列をItemTypeに変換する。未知の値はエラー。
func ParseItemType(s string) (ItemType, error) {
	t := ItemType(s)
	if _, ok := itemFileTypes[t]; !ok {
		return "", fmt.Errorf("unknown item type: %q", s)
	}
	return t, nil
}

func (t ItemType) String() string {
	return string(t)
}

// SupportedFileTypes は種別が持てるファイル表現を返す。
func (t ItemType) SupportedFileTypes() []FileType {
	return itemFileTypes[t]
}

// Supports は種別がファイル表現を持てるかどうかを返す。
func (t ItemType) Supports(ft FileType) bool {
	for _, s := range itemFileTypes[t] {
		if s == ft {
			return true
		}
	}
	return false
}

// RequiredFileTypes は種別が必ず持つべきファイル表現を返す。
func (t ItemType) RequiredFileTypes() []FileType {
	if t == ItemTypeArticle {
		return []FileType{FileTypeManuscript}
	}
	return nil
}

var fileTypes = map[FileType]struct{}{
	FileTypeManuscript:    {},
	FileTypePrintable:     {},
	FileTypeOriginal:      {},
	FileTypeThumbnail:     {},
	FileTypeSmall:         {},
	FileTypeInline:        {},
	FileTypeMedium:        {},
	FileTypeLarge:         {},
	FileTypeLetter:        {},
	FileTypeSupplementary: {},
}

// ParseFileType は文字列をFileTypeに変換する。未知の値はエラー。
func ParseFileType(s string) (FileType, error) {
	t := FileType(s)
	if _, ok := fileTypes[t]; !ok {
		return "", fmt.Errorf("unknown file type: %q", s)
	}
	return t, nil
}

func (t FileType) String() string {
	return string(t)
}
