// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は原稿XMLから抽出したタイトル等のマークアップをサニタイズし、
// 表示用に安全なインライン書式のみを残す。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// JATSのインライン書式要素のみを通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はマークアップのサニタイズ機能のインターフェースを定義する。
// 取り込み時のメタデータ抽出で使用される。
type ContentSanitizerService interface {
	// Sanitize はマークアップをサニタイズして安全な文字列を返す。
	// 許可要素（italic, bold, sub, sup, sc, underline, monospace）のみを通過させ、
	// それ以外の要素はタグを除去して本文のみ残す。
	// 連続する空白は1つの空白にまとめる。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// inlineElements はJATSのインライン書式要素。
var inlineElements = []string{
	"italic", "bold", "sub", "sup", "sc", "underline", "monospace",
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 許可する要素はいずれも属性を持たない形でのみ通過させる。
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(inlineElements...)
	p.AllowNoAttrs().OnElements(inlineElements...)

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize はマークアップをサニタイズして安全な文字列を返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	cleaned := s.policy.Sanitize(raw)
	return strings.Join(strings.Fields(cleaned), " ")
}
