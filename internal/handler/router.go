package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vodman/internal/middleware"
)

// Pinger はヘルスチェックで使うDB疎通確認のインターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger      *slog.Logger
	RateLimiter *middleware.RateLimiter

	Tasks         TaskQueue
	Channels      ChannelFinder
	ChannelVideos ChannelVideoLister
	Videos        VideoStore
	Settings      SettingsStore

	DB      Pinger
	Metrics http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → RateLimit(General)
//
// タスク投入と動画リクエストには投入専用のレート制限を追加する。
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))

	taskHandler := NewTaskHandler(deps.Tasks, deps.Logger)
	channelHandler := NewChannelHandler(deps.Channels, deps.ChannelVideos, deps.Logger)
	videoHandler := NewVideoHandler(deps.Videos, deps.Tasks, deps.Logger)
	settingsHandler := NewSettingsHandler(deps.Settings, deps.Logger)

	// --- 運用ルート（レート制限なし） ---

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := deps.DB.PingContext(req.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "UNHEALTHY", "データベースに接続できません。")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// --- APIルート ---

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/tasks", func(r chi.Router) {
			// 投入は外部コマンド実行を伴うため専用のレート制限を追加
			r.With(deps.RateLimiter.EnqueueMiddleware()).Post("/", taskHandler.Enqueue)
			r.Get("/", taskHandler.List)
		})

		r.Route("/api/channels", func(r chi.Router) {
			r.Get("/", channelHandler.List)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", channelHandler.Get)
				r.Get("/videos", channelHandler.ListVideos)
			})
		})

		r.Route("/api/videos", func(r chi.Router) {
			r.Get("/", videoHandler.List)
			r.With(deps.RateLimiter.EnqueueMiddleware()).Post("/{id}/request", videoHandler.Request)
		})

		r.Route("/api/settings", func(r chi.Router) {
			r.Get("/", settingsHandler.List)
			r.Get("/{key}", settingsHandler.Get)
			r.Put("/{key}", settingsHandler.Update)
		})
	})

	return r
}
