// Package handler はREST APIのHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"net/http"
)

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeError は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiErrorResponse{Code: code, Message: message})
}

// writeInternalError は500レスポンスを書き込む。詳細はログに残し、
// レスポンスには内部情報を含めない。
func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "内部エラーが発生しました。")
}
