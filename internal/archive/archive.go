// Package archive は取り込み対象のzipアーカイブの読み書きを提供する。
package archive

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zip"
)

// Archive は読み取り専用のzipアーカイブ。
type Archive struct {
	name    string
	files   map[string]*zip.File
	entries []string
	closer  io.Closer
}

// Open はファイルパスからアーカイブを開く。使用後はCloseを呼ぶこと。
func Open(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	a, err := newArchive(path, &rc.Reader)
	if err != nil {
		rc.Close()
		return nil, err
	}
	a.closer = rc
	return a, nil
}

// FromBytes はメモリ上のzipデータからアーカイブを生成する。
func FromBytes(name string, data []byte) (*Archive, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to read archive %s: %w", name, err)
	}
	return newArchive(name, r)
}

func newArchive(name string, r *zip.Reader) (*Archive, error) {
	a := &Archive{
		name:  name,
		files: make(map[string]*zip.File, len(r.File)),
	}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if _, dup := a.files[f.Name]; dup {
			return nil, fmt.Errorf("archive %s has duplicate entry: %s", name, f.Name)
		}
		a.files[f.Name] = f
		a.entries = append(a.entries, f.Name)
	}
	sort.Strings(a.entries)
	return a, nil
}

// Name はアーカイブ名を返す。
func (a *Archive) Name() string {
	return a.name
}

// EntryNames はディレクトリを除くエントリ名をソートして返す。
func (a *Archive) EntryNames() []string {
	out := make([]string, len(a.entries))
	copy(out, a.entries)
	return out
}

// Has はエントリが存在するかどうかを返す。
func (a *Archive) Has(entry string) bool {
	_, ok := a.files[entry]
	return ok
}

// OpenEntry はエントリの内容を読むReadCloserを返す。
func (a *Archive) OpenEntry(entry string) (io.ReadCloser, error) {
	f, ok := a.files[entry]
	if !ok {
		return nil, fmt.Errorf("archive %s has no entry: %s", a.name, entry)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open entry %s: %w", entry, err)
	}
	return rc, nil
}

// ReadEntry はエントリの内容をすべて読み込む。
func (a *Archive) ReadEntry(entry string) ([]byte, error) {
	rc, err := a.OpenEntry(entry)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read entry %s: %w", entry, err)
	}
	return data, nil
}

// Close はファイルから開いたアーカイブを閉じる。
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// Entry は書き出すアーカイブの1エントリ。
type Entry struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// Write はエントリを順番にzipとしてwへ書き出す。
func Write(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		if err := writeEntry(zw, e); err != nil {
			zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

func writeEntry(zw *zip.Writer, e Entry) error {
	dst, err := zw.Create(e.Name)
	if err != nil {
		return fmt.Errorf("failed to create entry %s: %w", e.Name, err)
	}
	src, err := e.Open()
	if err != nil {
		return fmt.Errorf("failed to open source for %s: %w", e.Name, err)
	}
	defer src.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to write entry %s: %w", e.Name, err)
	}
	return nil
}
