package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/articlerepo/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{Code: code, Message: message})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、呼び出し側には一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "内部エラーが発生しました。")
}

// WriteError はエラー分類に応じたステータスとコードでレスポンスを書き込む。
// 分類されていないエラーは内部エラーとして扱う。
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case model.ErrNotFound.Has(err):
		WriteErrorResponse(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case model.ErrDuplicateRevision.Has(err):
		WriteErrorResponse(w, http.StatusConflict, "DUPLICATE_REVISION", err.Error())
	case model.ErrManifest.Has(err), model.ErrMetadataExtraction.Has(err), model.ErrInvalidPackage.Has(err):
		WriteErrorResponse(w, http.StatusBadRequest, "INVALID_PACKAGE", err.Error())
	case model.ErrDataIntegrity.Has(err):
		WriteErrorResponse(w, http.StatusUnprocessableEntity, "DATA_INTEGRITY", err.Error())
	case model.ErrConfiguration.Has(err):
		WriteErrorResponse(w, http.StatusUnprocessableEntity, "CONFIGURATION", err.Error())
	case model.ErrStorageWrite.Has(err):
		WriteErrorResponse(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", err.Error())
	default:
		WriteInternalServerError(w)
	}
}
