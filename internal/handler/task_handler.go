package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/vodman/internal/model"
)

var errBadPayload = errors.New("ペイロードが不正です")

// TaskQueue はタスクハンドラーが必要とするキュー操作のインターフェース。
type TaskQueue interface {
	// Enqueue は新規タスクをWAIT状態で投入し、採番されたIDを返す。
	Enqueue(ctx context.Context, kind model.TaskKind, payload string) (int64, error)
	// List はタスクをID降順で最大limit件返す。
	List(ctx context.Context, limit int) ([]*model.Task, error)
}

// TaskHandler はタスクキューのHTTPハンドラー。
type TaskHandler struct {
	queue  TaskQueue
	logger *slog.Logger
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(queue TaskQueue, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{queue: queue, logger: logger}
}

// enqueueTaskRequest はタスク投入リクエストのボディ。
type enqueueTaskRequest struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// taskResponse はタスクのAPIレスポンス。
type taskResponse struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	Payload    string    `json:"payload"`
	State      string    `json:"state"`
	RetryCount int       `json:"retry_count"`
	ErrorCode  int       `json:"error_code"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:         t.ID,
		Kind:       string(t.Kind),
		Payload:    t.Payload,
		State:      string(t.State),
		RetryCount: t.RetryCount,
		ErrorCode:  int(t.LastError),
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

// Enqueue はタスク投入を処理する。
// POST /api/tasks
func (h *TaskHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "リクエストボディの解析に失敗しました。")
		return
	}

	if !model.ValidTaskKind(req.Kind) {
		writeError(w, http.StatusBadRequest, "UNKNOWN_KIND", "未定義のタスク種別です。")
		return
	}

	payload, err := validatePayload(model.TaskKind(req.Kind), req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_PAYLOAD", "ペイロードが不正です。")
		return
	}

	id, err := h.queue.Enqueue(r.Context(), model.TaskKind(req.Kind), payload)
	if err != nil {
		h.logger.Error("タスク投入に失敗しました", slog.Any("error", err))
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int64{"id": id})
}

// List はタスク一覧を返す。
// GET /api/tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "limitは1から1000の整数で指定してください。")
			return
		}
		limit = n
	}

	tasks, err := h.queue.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("タスク一覧の取得に失敗しました", slog.Any("error", err))
		writeInternalError(w)
		return
	}

	resp := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, toTaskResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// validatePayload は種別ごとのペイロード構造を検証し、
// 保存用の正規化済みJSONテキストを返す。
func validatePayload(kind model.TaskKind, raw json.RawMessage) (string, error) {
	switch kind {
	case model.TaskKindVideoDownload:
		var p model.DownloadPayload
		if err := strictDecode(raw, &p); err != nil || p.URL == "" {
			return "", errBadPayload
		}
	case model.TaskKindChannelAdd:
		var p model.ChannelAddPayload
		if err := strictDecode(raw, &p); err != nil || p.URL == "" {
			return "", errBadPayload
		}
	case model.TaskKindChannelFetch:
		var p model.ChannelFetchPayload
		if err := strictDecode(raw, &p); err != nil || p.Domain == "" || p.ChannelID == "" {
			return "", errBadPayload
		}
	}
	return string(raw), nil
}

func strictDecode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errBadPayload
	}
	return json.Unmarshal(raw, v)
}
