// Package model はドメインモデルを定義する。
package model

import (
	"github.com/zeebo/errs"
)

// エラー分類。呼び出し側は Class.Has で判定する。
var (
	// ErrNotFound は要求された Article/Ingestion/Revision/Item が存在しないことを示す。
	ErrNotFound = errs.Class("not found")

	// ErrDuplicateRevision は既存の revisionNumber に Revision を作成しようとしたことを示す。
	// クライアント側のロジックエラーであり自動リトライしない。
	ErrDuplicateRevision = errs.Class("duplicate revision")

	// ErrDataIntegrity は取り込みパイプラインが不整合な出力を生成したことを示す。
	// 取り込み全体を中断しなければならない。
	ErrDataIntegrity = errs.Class("data integrity violation")

	// ErrConfiguration はジャーナルがキーでも eIssn でも解決できないことを示す。
	ErrConfiguration = errs.Class("configuration")

	// ErrStorageWrite は BlobStore への書き込み失敗を示す。取り込み全体を再実行してよい。
	ErrStorageWrite = errs.Class("storage write")

	// ErrMetadataExtraction は原稿XMLが不正、または必須項目が欠けていることを示す。
	ErrMetadataExtraction = errs.Class("metadata extraction")

	// ErrManifest はアーカイブのマニフェストが不正であることを示す。
	ErrManifest = errs.Class("invalid manifest")

	// ErrInvalidPackage はマニフェストと原稿の内容が食い違っていることを示す。
	ErrInvalidPackage = errs.Class("invalid package")
)
