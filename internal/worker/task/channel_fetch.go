package task

import (
	"context"
	"log/slog"

	"github.com/hitoshi/vodman/internal/model"
	"github.com/hitoshi/vodman/internal/repository"
	"github.com/hitoshi/vodman/internal/security"
	"github.com/hitoshi/vodman/internal/ytdlp"
)

// ChannelFetchWorker はCHANNEL-FETCHタスクを実行する。
// 登録済みチャンネルの直近の動画一覧を取り込む。
type ChannelFetchWorker struct {
	runner    ytdlp.Runner
	channels  repository.ChannelRepository
	videos    repository.VideoRepository
	sanitizer security.TextSanitizerService
	logger    *slog.Logger
}

// NewChannelFetchWorker はChannelFetchWorkerを生成する。
func NewChannelFetchWorker(
	runner ytdlp.Runner,
	channels repository.ChannelRepository,
	videos repository.VideoRepository,
	sanitizer security.TextSanitizerService,
	logger *slog.Logger,
) *ChannelFetchWorker {
	return &ChannelFetchWorker{
		runner:    runner,
		channels:  channels,
		videos:    videos,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// Run はチャンネル更新タスクを1件実行する。
func (w *ChannelFetchWorker) Run(ctx context.Context, t *model.Task) model.ErrCode {
	var payload model.ChannelFetchPayload
	if err := model.DecodePayload(t, &payload); err != nil {
		w.logger.Error("ペイロードのデコードに失敗しました",
			slog.Int64("task_id", t.ID),
			slog.String("error", err.Error()),
		)
		return model.ErrCodeBadPayload
	}

	if payload.Domain != supportedDomain {
		w.logger.Error("未対応のドメインです",
			slog.Int64("task_id", t.ID),
			slog.String("domain", payload.Domain),
		)
		return model.ErrCodeUnsupportedDomain
	}

	ch, err := w.channels.FindBySourceID(ctx, payload.Domain, payload.ChannelID)
	if err != nil {
		w.logger.Error("チャンネルの検索に失敗しました",
			slog.Int64("task_id", t.ID),
			slog.String("channel_id", payload.ChannelID),
			slog.String("error", err.Error()),
		)
		return model.ErrCodeStoreFailed
	}
	if ch == nil {
		w.logger.Error("チャンネルが登録されていません",
			slog.Int64("task_id", t.ID),
			slog.String("domain", payload.Domain),
			slog.String("channel_id", payload.ChannelID),
		)
		return model.ErrCodeBadPayload
	}

	if err := FetchChannelVideos(ctx, w.runner, w.videos, w.sanitizer, w.logger, ch, true); err != nil {
		w.logger.Error("動画一覧の取り込みに失敗しました",
			slog.Int64("task_id", t.ID),
			slog.String("channel_id", payload.ChannelID),
			slog.String("error", err.Error()),
		)
		return adapterCode(err, model.ErrCodeResolveFailed)
	}

	return model.ErrCodeNone
}

// compile-time interface check
var _ Worker = (*ChannelFetchWorker)(nil)
