package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vodman/internal/config"
)

// SettingsStore は設定ハンドラーが必要とするKVストアのインターフェース。
type SettingsStore interface {
	// All は全設定をキーと値のマップで返す。
	All(ctx context.Context) (map[string]string, error)
	// Get は指定キーの設定値を返す。キーが存在しない場合はエラーを返す。
	Get(ctx context.Context, key string) (string, error)
	// Set は設定値を冪等にUPSERTする。
	Set(ctx context.Context, key, value string) error
}

// 更新を許可する設定キー。未知のキーの書き込みは拒否し、
// タイプミスによる設定の死蔵を防ぐ。
var writableSettingKeys = map[string]bool{
	config.KeyPathTemp:   true,
	config.KeyPathMedia:  true,
	config.KeySubLang:    true,
	config.KeyRetryLimit: true,
}

// SettingsHandler は実行時設定のHTTPハンドラー。
type SettingsHandler struct {
	settings SettingsStore
	logger   *slog.Logger
}

// NewSettingsHandler はSettingsHandlerを生成する。
func NewSettingsHandler(settings SettingsStore, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, logger: logger}
}

// updateSettingRequest は設定更新リクエストのボディ。
type updateSettingRequest struct {
	Value string `json:"value"`
}

// List は全設定を返す。
// GET /api/settings
func (h *SettingsHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.settings.All(r.Context())
	if err != nil {
		h.logger.Error("設定一覧の取得に失敗しました", slog.Any("error", err))
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

// Get は指定キーの設定値を返す。
// GET /api/settings/{key}
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	value, err := h.settings.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, "SETTING_NOT_FOUND", "指定された設定キーが見つかりません。")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

// Update は設定値を更新する。
// PUT /api/settings/{key}
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !writableSettingKeys[key] {
		writeError(w, http.StatusBadRequest, "UNKNOWN_SETTING", "未定義の設定キーです。")
		return
	}

	var req updateSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "リクエストボディの解析に失敗しました。")
		return
	}
	if req.Value == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "valueが空です。")
		return
	}

	if err := h.settings.Set(r.Context(), key, req.Value); err != nil {
		h.logger.Error("設定の更新に失敗しました", slog.String("key", key), slog.Any("error", err))
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}
