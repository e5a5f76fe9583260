package task

import (
	"context"
	"log/slog"

	"github.com/hitoshi/vodman/internal/model"
	"github.com/hitoshi/vodman/internal/repository"
	"github.com/hitoshi/vodman/internal/security"
	"github.com/hitoshi/vodman/internal/ytdlp"
)

// FetchChannelVideos はチャンネルの動画一覧を取り込む。
// CHANNEL-FETCHワーカーと定期更新ジョブ、チャンネル登録直後の
// 初回取り込みで共有する。
//
// 個々のレコードの不備（日付不正、別チャンネルの混入、行の保存失敗）は
// ログを残してスキップし、バッチ全体は継続する。エラーを返すのは
// ツール呼び出し自体の失敗か、出力全体がデコード不能な場合のみ。
func FetchChannelVideos(
	ctx context.Context,
	runner ytdlp.Runner,
	videos repository.VideoRepository,
	sanitizer security.TextSanitizerService,
	logger *slog.Logger,
	ch *model.Channel,
	recentOnly bool,
) error {
	records, err := runner.ListChannelVideos(ctx, listingURL(ch), recentOnly)
	if err != nil {
		return err
	}

	var stored, skipped int
	for _, rec := range records {
		if rec.ChannelID != "" && rec.ChannelID != ch.ChannelID {
			logger.Warn("別チャンネルのレコードをスキップします",
				slog.String("channel_id", ch.ChannelID),
				slog.String("record_channel_id", rec.ChannelID),
				slog.String("video_id", rec.VideoID),
			)
			skipped++
			continue
		}

		// 公開日が欠落（NA）または不正な行は保存しない。概算日は
		// チャンネル一覧の表示順の根拠になるため、日付のない行を
		// 積んでも並べようがない。
		estimate, ok := parseUploadDate(rec.UploadDate)
		if !ok {
			logger.Warn("公開日が欠落または不正なレコードをスキップします",
				slog.String("channel_id", ch.ChannelID),
				slog.String("video_id", rec.VideoID),
				slog.String("upload_date", rec.UploadDate),
			)
			skipped++
			continue
		}

		video := &model.Video{
			ChannelID:           &ch.ID,
			Domain:              ch.Domain,
			URL:                 rec.URL,
			Name:                sanitizer.Sanitize(rec.Title),
			VideoID:             rec.VideoID,
			ReleaseDateEstimate: &estimate,
		}

		if err := videos.UpsertListing(ctx, video); err != nil {
			logger.Warn("動画行の保存に失敗したためスキップします",
				slog.String("channel_id", ch.ChannelID),
				slog.String("video_id", rec.VideoID),
				slog.String("error", err.Error()),
			)
			skipped++
			continue
		}
		stored++
	}

	logger.Info("動画一覧の取り込みが完了しました",
		slog.String("channel_id", ch.ChannelID),
		slog.Bool("recent_only", recentOnly),
		slog.Int("stored", stored),
		slog.Int("skipped", skipped),
	)
	return nil
}

// listingURL はチャンネルの動画一覧ページの完全修飾URLを組み立てる。
// チャンネル行のURLはスキームなしで保存されるため、ここで補う。
func listingURL(ch *model.Channel) string {
	return "https://www." + ch.URL + "/videos"
}
