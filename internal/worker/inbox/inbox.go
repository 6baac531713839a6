// Package inbox は取り込み待ちディレクトリのアーカイブを定期的に取り込む。
// 取り込みに成功したアーカイブは保管ディレクトリへ、失敗したものは失敗ディレクトリへ移す。
package inbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Dirs は取り込み待ち、保管、失敗の各ディレクトリ。
type Dirs struct {
	Source string
	Dest   string
	Failed string
}

// Inbox は取り込み待ちディレクトリの操作。
type Inbox struct {
	dirs Dirs
}

// New はInboxを生成し、保管ディレクトリと失敗ディレクトリを作成する。
// Failedが空の場合はSource/failedを使う。
func New(dirs Dirs) (*Inbox, error) {
	if dirs.Source == "" || dirs.Dest == "" {
		return nil, fmt.Errorf("inbox requires source and destination directories")
	}
	if dirs.Failed == "" {
		dirs.Failed = filepath.Join(dirs.Source, "failed")
	}
	for _, d := range []string{dirs.Dest, dirs.Failed} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("ディレクトリの作成に失敗しました %s: %w", d, err)
		}
	}
	return &Inbox{dirs: dirs}, nil
}

// Dirs は既定値を補ったディレクトリ設定を返す。
func (i *Inbox) Dirs() Dirs {
	return i.dirs
}

// List は取り込み待ちのzipアーカイブ名をソートして返す。
func (i *Inbox) List() ([]string, error) {
	entries, err := os.ReadDir(i.dirs.Source)
	if err != nil {
		return nil, fmt.Errorf("取り込み待ちディレクトリの読み込みに失敗しました: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".zip") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Path は取り込み待ちアーカイブのパスを返す。
func (i *Inbox) Path(name string) string {
	return filepath.Join(i.dirs.Source, filepath.Base(name))
}

// MarkIngested はアーカイブを保管ディレクトリへ移す。
func (i *Inbox) MarkIngested(name string) (string, error) {
	return i.move(name, i.dirs.Dest)
}

// MarkFailed はアーカイブを失敗ディレクトリへ移す。
func (i *Inbox) MarkFailed(name string) (string, error) {
	return i.move(name, i.dirs.Failed)
}

func (i *Inbox) move(name, dir string) (string, error) {
	dest := filepath.Join(dir, filepath.Base(name))
	if err := os.Rename(i.Path(name), dest); err != nil {
		return "", fmt.Errorf("アーカイブの移動に失敗しました %s: %w", name, err)
	}
	return dest, nil
}
