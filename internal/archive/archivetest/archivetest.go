// Package archivetest はテスト用の記事アーカイブを組み立てる。
package archivetest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/hitoshi/articlerepo/internal/archive"
)

// Related は原稿に宣言する関連記事。
type Related struct {
	Type string
	Doi  string
}

// Article は記事アーカイブの内容。
type Article struct {
	Doi        string
	Title      string
	JournalKey string
	Related    []Related
}

// Suffix はDoiの最後の"/"より後ろ。
func (a Article) Suffix() string {
	return a.Doi[strings.LastIndex(a.Doi, "/")+1:]
}

// Manuscript は最小限のJATS原稿を返す。本文に図1つを参照する。
func (a Article) Manuscript() []byte {
	key := a.JournalKey
	if key == "" {
		key = "PLoSONE"
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?>
<article xmlns:xlink="http://www.w3.org/1999/xlink" article-type="research-article">
<front>
<journal-meta>
<journal-id journal-id-type="publisher-id">%s</journal-id>
<journal-title-group><journal-title>PLOS ONE</journal-title></journal-title-group>
<issn pub-type="epub">1932-6203</issn>
</journal-meta>
<article-meta>
<article-id pub-id-type="doi">%s</article-id>
<title-group><article-title>%s</article-title></title-group>
<pub-date pub-type="epub"><day>1</day><month>5</month><year>2013</year></pub-date>
`, key, a.Doi, a.Title)
	for _, r := range a.Related {
		fmt.Fprintf(&b, `<related-article related-article-type="%s" xlink:href="info:doi/%s"/>`+"\n", r.Type, r.Doi)
	}
	fmt.Fprintf(&b, `</article-meta>
</front>
<body>
<fig><object-id pub-id-type="doi">%s.g001</object-id></fig>
</body>
</article>`, a.Doi)
	return []byte(b.String())
}

// Manifest は原稿、PDF、図1つ（代表画像）、付随ファイル1つを宣言するマニフェストを返す。
func (a Article) Manifest() []byte {
	s := a.Suffix()
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<manifest>
  <articleBundle>
    <article uri="info:doi/%[1]s">
      <representation type="manuscript" entry="%[2]s.xml" key="%[1]s.XML" mimetype="application/xml"/>
      <representation type="printable" entry="%[2]s.pdf" key="%[1]s.PDF" mimetype="application/pdf"/>
    </article>
    <object type="figure" uri="info:doi/%[1]s.g001" strikingImage="true">
      <representation type="original" entry="%[2]s.g001.tif" key="%[1]s.g001.TIF" mimetype="image/tiff"/>
      <representation type="small" entry="%[2]s.g001.PNG_S" key="%[1]s.g001.PNG_S"/>
    </object>
  </articleBundle>
  <ancillary>
    <file entry="manifest.xml" key="%[1]s.manifest.xml" mimetype="application/xml"/>
  </ancillary>
</manifest>`, a.Doi, s))
}

// Files はアーカイブのエントリ名と内容を返す。
func (a Article) Files() map[string][]byte {
	s := a.Suffix()
	return map[string][]byte{
		"manifest.xml":     a.Manifest(),
		s + ".xml":         a.Manuscript(),
		s + ".pdf":         []byte("%PDF-1.4\n"),
		s + ".g001.tif":    []byte("II*\x00tiff"),
		s + ".g001.PNG_S": []byte("\x89PNG\r\n\x1a\nrest"),
	}
}

// Zip はfilesをzipにしたバイト列を返す。エントリは名前順に書く。
func Zip(t testing.TB, files map[string][]byte) []byte {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]archive.Entry, 0, len(names))
	for _, name := range names {
		data := files[name]
		entries = append(entries, archive.Entry{
			Name: name,
			Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
		})
	}
	var buf bytes.Buffer
	if err := archive.Write(&buf, entries); err != nil {
		t.Fatalf("failed to build zip: %v", err)
	}
	return buf.Bytes()
}

// Open はfilesから読み取り用のアーカイブを作る。
func Open(t testing.TB, name string, files map[string][]byte) *archive.Archive {
	t.Helper()
	arc, err := archive.FromBytes(name, Zip(t, files))
	if err != nil {
		t.Fatalf("failed to open zip: %v", err)
	}
	return arc
}

// WriteFile はfilesのzipをdir/nameに書き出してパスを返す。
func WriteFile(t testing.TB, dir, name string, files map[string][]byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Zip(t, files), 0o644); err != nil {
		t.Fatalf("failed to write zip: %v", err)
	}
	return path
}
