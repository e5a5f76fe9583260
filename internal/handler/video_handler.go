package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vodman/internal/model"
)

// VideoStore は動画ハンドラーが必要とする永続化インターフェース。
type VideoStore interface {
	// List は動画をID降順で最大limit件返す。
	List(ctx context.Context, requestedOnly bool, limit int) ([]*model.Video, error)
	// FindByID は指定IDの動画を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Video, error)
	// MarkRequested は動画のリクエスト済みフラグを立てる。
	MarkRequested(ctx context.Context, id int64) error
}

// VideoHandler は動画参照・リクエストのHTTPハンドラー。
// リクエスト操作はフラグを立てた上でダウンロードタスクをキューに積む。
type VideoHandler struct {
	videos VideoStore
	queue  TaskQueue
	logger *slog.Logger
}

// NewVideoHandler はVideoHandlerを生成する。
func NewVideoHandler(videos VideoStore, queue TaskQueue, logger *slog.Logger) *VideoHandler {
	return &VideoHandler{videos: videos, queue: queue, logger: logger}
}

// videoResponse は動画のAPIレスポンス。
type videoResponse struct {
	ID                  int64      `json:"id"`
	ChannelID           *int64     `json:"channel_id"`
	Domain              string     `json:"domain"`
	URL                 string     `json:"url"`
	Name                string     `json:"name"`
	VideoID             string     `json:"video_id"`
	IsRequested         bool       `json:"is_requested"`
	IsDownloaded        bool       `json:"is_downloaded"`
	ReleaseDate         *time.Time `json:"release_date"`
	ReleaseDateEstimate *time.Time `json:"release_date_estimate"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func toVideoResponse(v *model.Video) videoResponse {
	return videoResponse{
		ID:                  v.ID,
		ChannelID:           v.ChannelID,
		Domain:              v.Domain,
		URL:                 v.URL,
		Name:                v.Name,
		VideoID:             v.VideoID,
		IsRequested:         v.IsRequested,
		IsDownloaded:        v.IsDownloaded,
		ReleaseDate:         v.ReleaseDate,
		ReleaseDateEstimate: v.ReleaseDateEstimate,
		UpdatedAt:           v.UpdatedAt,
	}
}

// List は動画一覧を返す。requested=trueでリクエスト済みに絞り込む。
// GET /api/videos
func (h *VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	requestedOnly := r.URL.Query().Get("requested") == "true"

	videos, err := h.videos.List(r.Context(), requestedOnly, 200)
	if err != nil {
		h.logger.Error("動画一覧の取得に失敗しました", slog.Any("error", err))
		writeInternalError(w)
		return
	}

	resp := make([]videoResponse, 0, len(videos))
	for _, v := range videos {
		resp = append(resp, toVideoResponse(v))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Request は動画のダウンロードをリクエストする。
// リクエスト済みフラグを立て、VIDEO-DOWNLOADタスクを投入する。
// POST /api/videos/{id}/request
func (h *VideoHandler) Request(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "動画IDは整数で指定してください。")
		return
	}

	v, err := h.videos.FindByID(r.Context(), id)
	if err != nil {
		h.logger.Error("動画の取得に失敗しました", slog.Int64("video_id", id), slog.Any("error", err))
		writeInternalError(w)
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "VIDEO_NOT_FOUND", "指定された動画が見つかりません。")
		return
	}

	if v.IsDownloaded {
		writeError(w, http.StatusConflict, "ALREADY_DOWNLOADED", "この動画はダウンロード済みです。")
		return
	}

	if err := h.videos.MarkRequested(r.Context(), id); err != nil {
		h.logger.Error("動画のリクエスト記録に失敗しました", slog.Int64("video_id", id), slog.Any("error", err))
		writeInternalError(w)
		return
	}

	payload, err := json.Marshal(model.DownloadPayload{URL: v.URL})
	if err != nil {
		writeInternalError(w)
		return
	}

	taskID, err := h.queue.Enqueue(r.Context(), model.TaskKindVideoDownload, string(payload))
	if err != nil {
		h.logger.Error("ダウンロードタスクの投入に失敗しました", slog.Int64("video_id", id), slog.Any("error", err))
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int64{"video_id": id, "task_id": taskID})
}
