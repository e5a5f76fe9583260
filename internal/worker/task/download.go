package task

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hitoshi/vodman/internal/config"
	"github.com/hitoshi/vodman/internal/mediafs"
	"github.com/hitoshi/vodman/internal/model"
	"github.com/hitoshi/vodman/internal/repository"
	"github.com/hitoshi/vodman/internal/security"
	"github.com/hitoshi/vodman/internal/urlutil"
	"github.com/hitoshi/vodman/internal/ytdlp"
)

// uploadDateLayout はツールが印字する公開日の形式。
const uploadDateLayout = "20060102"

// DownloadWorker はVIDEO-DOWNLOADタスクを実行する。
// メタデータ解決→ダウンロード→整定待ち→メディアルートへの移動→
// 動画行の記録、の順で進める。
type DownloadWorker struct {
	runner      ytdlp.Runner
	channels    repository.ChannelRepository
	videos      repository.VideoRepository
	sanitizer   security.TextSanitizerService
	runtime     *config.Runtime
	settleDelay time.Duration
	logger      *slog.Logger
}

// NewDownloadWorker はDownloadWorkerを生成する。
// settleDelayはダウンロード完了後、subprocessがファイルの
// フラッシュやリネームを終えるのを待つ時間。
func NewDownloadWorker(
	runner ytdlp.Runner,
	channels repository.ChannelRepository,
	videos repository.VideoRepository,
	sanitizer security.TextSanitizerService,
	runtime *config.Runtime,
	settleDelay time.Duration,
	logger *slog.Logger,
) *DownloadWorker {
	return &DownloadWorker{
		runner:      runner,
		channels:    channels,
		videos:      videos,
		sanitizer:   sanitizer,
		runtime:     runtime,
		settleDelay: settleDelay,
		logger:      logger,
	}
}

// Run はダウンロードタスクを1件実行する。
func (w *DownloadWorker) Run(ctx context.Context, t *model.Task) model.ErrCode {
	var payload model.DownloadPayload
	if err := model.DecodePayload(t, &payload); err != nil {
		w.logger.Error("ペイロードのデコードに失敗しました",
			slog.Int64("task_id", t.ID),
			slog.String("error", err.Error()),
		)
		return model.ErrCodeBadPayload
	}

	domain, err := urlutil.RegistrableDomain(payload.URL)
	if err != nil {
		w.logger.Error("ドメインを解決できませんでした",
			slog.Int64("task_id", t.ID),
			slog.String("url", payload.URL),
			slog.String("error", err.Error()),
		)
		return model.ErrCodeUnsupportedDomain
	}

	fields, err := w.runner.ResolveFields(ctx, payload.URL)
	if err != nil {
		w.logger.Error("メタデータの解決に失敗しました",
			slog.Int64("task_id", t.ID),
			slog.String("url", payload.URL),
			slog.String("error", err.Error()),
		)
		return adapterCode(err, model.ErrCodeResolveFailed)
	}

	title := w.sanitizer.Sanitize(fields.Title)
	channelName := w.sanitizer.Sanitize(fields.ChannelName)

	// 存在するフィールドだけを " - " で結合する。全欠落でも
	// 動画IDからファイル名を作れるよう、IDは最後に必ず試す。
	prefix := buildFilename(channelName, fields.UploadDate, title, fields.VideoID)
	if prefix == "" {
		w.logger.Error("ファイル名を構成できるフィールドがありません",
			slog.Int64("task_id", t.ID),
		)
		return model.ErrCodeDecodeFailed
	}

	outputTemplate := filepath.Join(w.runtime.PathTemp, prefix+".%(ext)s")
	if err := w.runner.Download(ctx, payload.URL, outputTemplate, w.runtime.SubLang); err != nil {
		w.logger.Error("ダウンロードに失敗しました",
			slog.Int64("task_id", t.ID),
			slog.String("url", payload.URL),
			slog.String("error", err.Error()),
		)
		return adapterCode(err, model.ErrCodeDownloadFailed)
	}

	// subprocessは完了報告後もファイルのフラッシュやリネームを
	// 続けることがあるため、移動前に短い整定待ちを入れる
	if w.settleDelay > 0 {
		select {
		case <-time.After(w.settleDelay):
		case <-ctx.Done():
		}
	}

	destDir := w.destinationDir(domain, channelName, fields.UploadDate)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		w.logger.Error("保存先ディレクトリの作成に失敗しました",
			slog.Int64("task_id", t.ID),
			slog.String("dest", destDir),
			slog.String("error", err.Error()),
		)
		return model.ErrCodeStoreFailed
	}

	// 移動の部分失敗はダウンロード成功を取り消さない
	moved, err := mediafs.MoveWithPrefix(w.logger, w.runtime.PathTemp, destDir, prefix)
	if err != nil {
		w.logger.Warn("ファイル移動に失敗しました",
			slog.Int64("task_id", t.ID),
			slog.String("dest", destDir),
			slog.String("error", err.Error()),
		)
	}

	video := &model.Video{
		Domain:  domain,
		URL:     payload.URL,
		Name:    title,
		VideoID: fields.VideoID,
	}
	if fields.ChannelID != "" {
		ch, err := w.channels.FindBySourceID(ctx, domain, fields.ChannelID)
		if err != nil {
			w.logger.Warn("チャンネルの検索に失敗しました",
				slog.Int64("task_id", t.ID),
				slog.String("channel_id", fields.ChannelID),
				slog.String("error", err.Error()),
			)
		} else if ch != nil {
			video.ChannelID = &ch.ID
		}
	}
	if release, ok := parseUploadDate(fields.UploadDate); ok {
		video.ReleaseDate = &release
		video.ReleaseDateEstimate = &release
	}

	if err := w.videos.RecordDownloaded(ctx, video); err != nil {
		w.logger.Error("動画行の記録に失敗しました",
			slog.Int64("task_id", t.ID),
			slog.String("video_id", fields.VideoID),
			slog.String("error", err.Error()),
		)
		return model.ErrCodeStoreFailed
	}

	w.logger.Info("ダウンロードタスクが完了しました",
		slog.Int64("task_id", t.ID),
		slog.String("video_id", fields.VideoID),
		slog.String("dest", destDir),
		slog.Int("moved_files", moved),
	)
	return model.ErrCodeNone
}

// destinationDir は <media_root>/<domain>/<channel?>/<year|other> を組み立てる。
// チャンネル名が欠落している階層は "other" で埋める。
func (w *DownloadWorker) destinationDir(domain, channelName, uploadDate string) string {
	channelDir := "other"
	if channelName != "" {
		channelDir = pathSafe(channelName)
	}
	yearDir := "other"
	if len(uploadDate) >= 4 {
		yearDir = uploadDate[:4]
	}
	return filepath.Join(w.runtime.PathMedia, domain, channelDir, yearDir)
}

// buildFilename は存在するフィールドを " - " で結合したファイル名を返す。
func buildFilename(parts ...string) string {
	present := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			present = append(present, pathSafe(p))
		}
	}
	return strings.Join(present, " - ")
}

// parseUploadDate はYYYYMMDD形式の公開日をUTC時刻として解釈する。
func parseUploadDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	parsed, err := time.ParseInLocation(uploadDateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// compile-time interface check
var _ Worker = (*DownloadWorker)(nil)
