package bgjob

import (
	"context"
	"log/slog"

	"github.com/hitoshi/vodman/internal/model"
	"github.com/hitoshi/vodman/internal/repository"
	"github.com/hitoshi/vodman/internal/security"
	"github.com/hitoshi/vodman/internal/worker/task"
	"github.com/hitoshi/vodman/internal/ytdlp"
)

// ChannelRefreshJob は全登録チャンネルの新着動画を取り込むジョブ。
// チャンネルごとにCHANNEL-FETCH相当の処理を直近モードで実行する。
type ChannelRefreshJob struct {
	runner    ytdlp.Runner
	channels  repository.ChannelRepository
	videos    repository.VideoRepository
	sanitizer security.TextSanitizerService
	logger    *slog.Logger
}

// NewChannelRefreshJob はChannelRefreshJobを生成する。
func NewChannelRefreshJob(
	runner ytdlp.Runner,
	channels repository.ChannelRepository,
	videos repository.VideoRepository,
	sanitizer security.TextSanitizerService,
	logger *slog.Logger,
) *ChannelRefreshJob {
	return &ChannelRefreshJob{
		runner:    runner,
		channels:  channels,
		videos:    videos,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// Name はジョブ名を返す。
func (j *ChannelRefreshJob) Name() string {
	return model.BackgroundJobChannelRefresh
}

// Run は全チャンネルを巡回して新着動画を取り込む。
// 個々のチャンネルの失敗はログに残して継続する。
func (j *ChannelRefreshJob) Run(ctx context.Context) error {
	channels, err := j.channels.List(ctx)
	if err != nil {
		return err
	}

	var failed int
	for _, ch := range channels {
		if err := task.FetchChannelVideos(ctx, j.runner, j.videos, j.sanitizer, j.logger, ch, true); err != nil {
			j.logger.Error("チャンネル更新に失敗しました",
				slog.String("channel_id", ch.ChannelID),
				slog.String("name", ch.Name),
				slog.String("error", err.Error()),
			)
			failed++
		}
	}

	j.logger.Info("チャンネル更新が完了しました",
		slog.Int("channel_count", len(channels)),
		slog.Int("failed", failed),
	)
	return nil
}

// compile-time interface check
var _ Job = (*ChannelRefreshJob)(nil)
