package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vodman/internal/model"
)

// defaultDomain はdomainクエリ未指定時に使うソースドメイン。
const defaultDomain = "youtube.com"

// ChannelFinder はチャンネルハンドラーが必要とする検索インターフェース。
type ChannelFinder interface {
	// List は全チャンネルをID昇順で返す。
	List(ctx context.Context) ([]*model.Channel, error)
	// FindByNormalizedName は(domain, 正規化名)でチャンネルを検索する。
	// 見つからない場合はnilを返す。
	FindByNormalizedName(ctx context.Context, domain, nameNormalized string) (*model.Channel, error)
}

// ChannelVideoLister はチャンネル配下の動画一覧のインターフェース。
type ChannelVideoLister interface {
	// ListByChannel は指定チャンネルの動画を公開日降順で返す。
	ListByChannel(ctx context.Context, channelID int64) ([]*model.Video, error)
}

// ChannelHandler はチャンネル参照のHTTPハンドラー。
type ChannelHandler struct {
	channels ChannelFinder
	videos   ChannelVideoLister
	logger   *slog.Logger
}

// NewChannelHandler はChannelHandlerを生成する。
func NewChannelHandler(channels ChannelFinder, videos ChannelVideoLister, logger *slog.Logger) *ChannelHandler {
	return &ChannelHandler{channels: channels, videos: videos, logger: logger}
}

// channelResponse はチャンネルのAPIレスポンス。
type channelResponse struct {
	ID             int64     `json:"id"`
	Domain         string    `json:"domain"`
	URL            string    `json:"url"`
	ChannelID      string    `json:"channel_id"`
	Name           string    `json:"name"`
	NameNormalized string    `json:"name_normalized"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toChannelResponse(ch *model.Channel) channelResponse {
	return channelResponse{
		ID:             ch.ID,
		Domain:         ch.Domain,
		URL:            ch.URL,
		ChannelID:      ch.ChannelID,
		Name:           ch.Name,
		NameNormalized: ch.NameNormalized,
		UpdatedAt:      ch.UpdatedAt,
	}
}

// List はチャンネル一覧を返す。
// GET /api/channels
func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	channels, err := h.channels.List(r.Context())
	if err != nil {
		h.logger.Error("チャンネル一覧の取得に失敗しました", slog.Any("error", err))
		writeInternalError(w)
		return
	}

	resp := make([]channelResponse, 0, len(channels))
	for _, ch := range channels {
		resp = append(resp, toChannelResponse(ch))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get は名前でチャンネルを検索して返す。
// パスセグメントは読み取り時に正規化するため、表示名そのままでも引ける。
// GET /api/channels/{name}
func (h *ChannelHandler) Get(w http.ResponseWriter, r *http.Request) {
	ch := h.findByPathName(w, r)
	if ch == nil {
		return
	}
	writeJSON(w, http.StatusOK, toChannelResponse(ch))
}

// ListVideos はチャンネル配下の動画一覧を返す。
// GET /api/channels/{name}/videos
func (h *ChannelHandler) ListVideos(w http.ResponseWriter, r *http.Request) {
	ch := h.findByPathName(w, r)
	if ch == nil {
		return
	}

	videos, err := h.videos.ListByChannel(r.Context(), ch.ID)
	if err != nil {
		h.logger.Error("チャンネル動画一覧の取得に失敗しました",
			slog.Int64("channel_id", ch.ID), slog.Any("error", err))
		writeInternalError(w)
		return
	}

	resp := make([]videoResponse, 0, len(videos))
	for _, v := range videos {
		resp = append(resp, toVideoResponse(v))
	}
	writeJSON(w, http.StatusOK, resp)
}

// findByPathName はパスのnameセグメントを正規化してチャンネルを検索する。
// 見つからない場合は404を書き込みnilを返す。
func (h *ChannelHandler) findByPathName(w http.ResponseWriter, r *http.Request) *model.Channel {
	name := chi.URLParam(r, "name")
	domain := r.URL.Query().Get("domain")
	if domain == "" {
		domain = defaultDomain
	}

	ch, err := h.channels.FindByNormalizedName(r.Context(), domain, model.NormalizeChannelName(name))
	if err != nil {
		h.logger.Error("チャンネルの検索に失敗しました",
			slog.String("name", name), slog.Any("error", err))
		writeInternalError(w)
		return nil
	}
	if ch == nil {
		writeError(w, http.StatusNotFound, "CHANNEL_NOT_FOUND", "指定されたチャンネルが見つかりません。")
		return nil
	}
	return ch
}
