package task

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/vodman/internal/model"
	"github.com/hitoshi/vodman/internal/repository"
	"github.com/hitoshi/vodman/internal/security"
	"github.com/hitoshi/vodman/internal/urlutil"
	"github.com/hitoshi/vodman/internal/ytdlp"
)

// supportedDomain は現時点で購読をサポートする唯一のドメイン。
const supportedDomain = "youtube.com"

// ChannelAddWorker はCHANNEL-ADDタスクを実行する。
// チャンネルの先頭1件からIDと表示名を解決して登録し、
// 登録に成功した場合は既存動画の一覧取り込みをベストエフォートで行う。
type ChannelAddWorker struct {
	runner    ytdlp.Runner
	channels  repository.ChannelRepository
	videos    repository.VideoRepository
	sanitizer security.TextSanitizerService
	logger    *slog.Logger
}

// NewChannelAddWorker はChannelAddWorkerを生成する。
func NewChannelAddWorker(
	runner ytdlp.Runner,
	channels repository.ChannelRepository,
	videos repository.VideoRepository,
	sanitizer security.TextSanitizerService,
	logger *slog.Logger,
) *ChannelAddWorker {
	return &ChannelAddWorker{
		runner:    runner,
		channels:  channels,
		videos:    videos,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// Run はチャンネル登録タスクを1件実行する。
func (w *ChannelAddWorker) Run(ctx context.Context, t *model.Task) model.ErrCode {
	var payload model.ChannelAddPayload
	if err := model.DecodePayload(t, &payload); err != nil {
		w.logger.Error("ペイロードのデコードに失敗しました",
			slog.Int64("task_id", t.ID),
			slog.String("error", err.Error()),
		)
		return model.ErrCodeBadPayload
	}

	domain, err := urlutil.RegistrableDomain(payload.URL)
	if err != nil || domain != supportedDomain {
		w.logger.Error("未対応のドメインです",
			slog.Int64("task_id", t.ID),
			slog.String("url", payload.URL),
			slog.String("domain", domain),
		)
		return model.ErrCodeUnsupportedDomain
	}

	id, name, err := w.runner.ResolveChannel(ctx, payload.URL)
	if err != nil {
		w.logger.Error("チャンネルの解決に失敗しました",
			slog.Int64("task_id", t.ID),
			slog.String("url", payload.URL),
			slog.String("error", err.Error()),
		)
		return adapterCode(err, model.ErrCodeResolveFailed)
	}

	name = w.sanitizer.Sanitize(name)
	ch := &model.Channel{
		Domain:         domain,
		URL:            domain + "/channel/" + id,
		ChannelID:      id,
		Name:           name,
		NameNormalized: model.NormalizeChannelName(name),
	}

	if err := w.channels.Insert(ctx, ch); err != nil {
		if errors.Is(err, model.ErrChannelConflict) {
			w.logger.Error("チャンネルは既に登録されています",
				slog.Int64("task_id", t.ID),
				slog.String("channel_id", id),
				slog.String("name", name),
			)
			return model.ErrCodeConflict
		}
		w.logger.Error("チャンネルの登録に失敗しました",
			slog.Int64("task_id", t.ID),
			slog.String("channel_id", id),
			slog.String("error", err.Error()),
		)
		return model.ErrCodeStoreFailed
	}

	w.logger.Info("チャンネルを登録しました",
		slog.Int64("task_id", t.ID),
		slog.Int64("channel_row_id", ch.ID),
		slog.String("channel_id", id),
		slog.String("name", name),
	)

	// 初回の全件取り込み。失敗しても登録自体は成功として扱う
	if err := FetchChannelVideos(ctx, w.runner, w.videos, w.sanitizer, w.logger, ch, false); err != nil {
		w.logger.Warn("初回の動画一覧取り込みに失敗しました",
			slog.Int64("task_id", t.ID),
			slog.String("channel_id", id),
			slog.String("error", err.Error()),
		)
	}

	return model.ErrCodeNone
}

// compile-time interface check
var _ Worker = (*ChannelAddWorker)(nil)
