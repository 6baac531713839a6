package model

import (
	"fmt"
	"strings"
)

// Doi は学術著作の識別子。大文字小文字を保持し、比較は完全一致で行う。
// 内部表現はスキーム接頭辞を含まない "10.1371/journal.pone.0000001" 形式。
type Doi string

// 外部入力で見られるスキーム接頭辞。先頭から順に一致を試みる。
var doiPrefixes = []string{
	"info:doi/",
	"doi:",
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
}

// ParseDoi は外部から受け取った文字列を正規化してDoiを返す。
// 接頭辞の判定のみ大文字小文字を区別せず、本体は入力のまま保持する。
func ParseDoi(raw string) (Doi, error) {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	for _, prefix := range doiPrefixes {
		if strings.HasPrefix(lower, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	if s == "" {
		return "", fmt.Errorf("invalid doi: %q", raw)
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return "", fmt.Errorf("invalid doi: %q", raw)
	}
	return Doi(s), nil
}

// MustParseDoi はParseDoiの失敗時にpanicする。テストと定数定義用。
func MustParseDoi(raw string) Doi {
	d, err := ParseDoi(raw)
	if err != nil {
		panic(err)
	}
	return d
}

// String は正規化済みのDoi文字列を返す。
func (d Doi) String() string {
	return string(d)
}

// URI は "info:doi/" スキーム付きの表現を返す。
func (d Doi) URI() string {
	return "info:doi/" + string(d)
}

// Suffix は最後の "/" 以降の部分を返す。ダウンロード名の生成に使う。
// 例: "10.1371/journal.pone.0000001.g001" → "journal.pone.0000001.g001"
func (d Doi) Suffix() string {
	s := string(d)
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}
