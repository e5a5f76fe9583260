package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hitoshi/vodman/internal/config"
	"github.com/hitoshi/vodman/internal/model"
	"github.com/hitoshi/vodman/internal/repository"
	"github.com/hitoshi/vodman/internal/security"
	"github.com/hitoshi/vodman/internal/ytdlp"
)

func downloadTask(payload string) *model.Task {
	return &model.Task{
		ID:      1,
		Kind:    model.TaskKindVideoDownload,
		Payload: payload,
		State:   model.TaskStateWip,
	}
}

// ダウンロードの成功シナリオ: 保存先ディレクトリの構成、ファイル移動、
// 動画行の記録を検証
func TestDownloadWorker_Run_Success(t *testing.T) {
	db := newTestDB(t)
	channels := repository.NewSQLiteChannelRepo(db)
	videos := repository.NewSQLiteVideoRepo(db)
	logger, _ := newTestLogger()

	scratch := t.TempDir()
	mediaRoot := t.TempDir()
	runtime := &config.Runtime{
		PathTemp:   scratch,
		PathMedia:  mediaRoot,
		SubLang:    "en.*",
		RetryLimit: 3,
	}

	ch := &model.Channel{
		Domain:         "youtube.com",
		URL:            "youtube.com/channel/UCx",
		ChannelID:      "UCx",
		Name:           "Example Channel",
		NameNormalized: model.NormalizeChannelName("Example Channel"),
	}
	if err := channels.Insert(context.Background(), ch); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	runner := &mockRunner{
		resolveFieldsFunc: func(ctx context.Context, videoURL string) (*ytdlp.VideoFields, error) {
			return &ytdlp.VideoFields{
				ChannelID:   "UCx",
				ChannelName: "Example Channel",
				UploadDate:  "20230115",
				Title:       "Test Video",
				VideoID:     "abc123",
			}, nil
		},
		downloadFunc: func(ctx context.Context, videoURL, outputPath, subLang string) error {
			if subLang != "en.*" {
				t.Errorf("subLang = %q, want %q", subLang, "en.*")
			}
			// ツールが成果物を一時ディレクトリへ書き込むのを模す
			name := "Example Channel - 20230115 - Test Video - abc123.mp4"
			return os.WriteFile(filepath.Join(scratch, name), []byte("video"), 0o644)
		},
	}

	w := NewDownloadWorker(runner, channels, videos, security.NewTextSanitizer(), runtime, 0, logger)
	code := w.Run(context.Background(), downloadTask(`{"url":"https://youtube.com/watch?v=abc123"}`))
	if code != model.ErrCodeNone {
		t.Fatalf("Run() = %d, want 0", code)
	}

	// 保存先: <media_root>/youtube.com/Example Channel/2023/
	dest := filepath.Join(mediaRoot, "youtube.com", "Example Channel", "2023",
		"Example Channel - 20230115 - Test Video - abc123.mp4")
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("moved file not found: %v", err)
	}

	got, err := videos.ListByChannel(context.Background(), ch.ID)
	if err != nil {
		t.Fatalf("ListByChannel() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(videos) = %d, want 1", len(got))
	}
	v := got[0]
	if v.VideoID != "abc123" || v.Domain != "youtube.com" {
		t.Errorf("video = (%q, %q), want (youtube.com, abc123)", v.Domain, v.VideoID)
	}
	if !v.IsRequested || !v.IsDownloaded {
		t.Errorf("flags = (requested=%v, downloaded=%v), want both true", v.IsRequested, v.IsDownloaded)
	}
	if v.ReleaseDate == nil || v.ReleaseDate.Format("20060102") != "20230115" {
		t.Errorf("release_date = %v, want 2023-01-15", v.ReleaseDate)
	}
}

// 不正なペイロードが-500になることを検証
func TestDownloadWorker_Run_BadPayload(t *testing.T) {
	db := newTestDB(t)
	logger, _ := newTestLogger()
	runtime := &config.Runtime{PathTemp: t.TempDir(), PathMedia: t.TempDir()}

	w := NewDownloadWorker(&mockRunner{},
		repository.NewSQLiteChannelRepo(db), repository.NewSQLiteVideoRepo(db),
		security.NewTextSanitizer(), runtime, 0, logger)

	code := w.Run(context.Background(), downloadTask(`not json`))
	if code != model.ErrCodeBadPayload {
		t.Errorf("Run() = %d, want %d", code, model.ErrCodeBadPayload)
	}
}

// ドメインを解決できないURLが-400になることを検証
func TestDownloadWorker_Run_UnresolvableDomain(t *testing.T) {
	db := newTestDB(t)
	logger, _ := newTestLogger()
	runtime := &config.Runtime{PathTemp: t.TempDir(), PathMedia: t.TempDir()}

	w := NewDownloadWorker(&mockRunner{},
		repository.NewSQLiteChannelRepo(db), repository.NewSQLiteVideoRepo(db),
		security.NewTextSanitizer(), runtime, 0, logger)

	code := w.Run(context.Background(), downloadTask(`{"url":""}`))
	if code != model.ErrCodeUnsupportedDomain {
		t.Errorf("Run() = %d, want %d", code, model.ErrCodeUnsupportedDomain)
	}
}

// メタデータ解決の失敗が呼び出し失敗とデコード失敗で区別されることを検証
func TestDownloadWorker_Run_ResolveFailureCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.ErrCode
	}{
		{
			name: "呼び出し失敗は-502",
			err:  fmt.Errorf("%w (resolve): exit status 1", ytdlp.ErrInvoke),
			want: model.ErrCodeResolveFailed,
		},
		{
			name: "デコード失敗は-503",
			err:  fmt.Errorf("%w: フィールド数が不正です", ytdlp.ErrDecode),
			want: model.ErrCodeDecodeFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			logger, _ := newTestLogger()
			runtime := &config.Runtime{PathTemp: t.TempDir(), PathMedia: t.TempDir()}

			runner := &mockRunner{
				resolveFieldsFunc: func(ctx context.Context, videoURL string) (*ytdlp.VideoFields, error) {
					return nil, tt.err
				},
			}
			w := NewDownloadWorker(runner,
				repository.NewSQLiteChannelRepo(db), repository.NewSQLiteVideoRepo(db),
				security.NewTextSanitizer(), runtime, 0, logger)

			code := w.Run(context.Background(), downloadTask(`{"url":"https://youtube.com/watch?v=abc"}`))
			if code != tt.want {
				t.Errorf("Run() = %d, want %d", code, tt.want)
			}
		})
	}
}

// ダウンロード失敗が-504になることを検証
func TestDownloadWorker_Run_DownloadFailure(t *testing.T) {
	db := newTestDB(t)
	logger, _ := newTestLogger()
	runtime := &config.Runtime{PathTemp: t.TempDir(), PathMedia: t.TempDir()}

	runner := &mockRunner{
		resolveFieldsFunc: func(ctx context.Context, videoURL string) (*ytdlp.VideoFields, error) {
			return &ytdlp.VideoFields{VideoID: "abc123"}, nil
		},
		downloadFunc: func(ctx context.Context, videoURL, outputPath, subLang string) error {
			return fmt.Errorf("%w (download): exit status 1", ytdlp.ErrInvoke)
		},
	}
	w := NewDownloadWorker(runner,
		repository.NewSQLiteChannelRepo(db), repository.NewSQLiteVideoRepo(db),
		security.NewTextSanitizer(), runtime, 0, logger)

	code := w.Run(context.Background(), downloadTask(`{"url":"https://youtube.com/watch?v=abc123"}`))
	if code != model.ErrCodeDownloadFailed {
		t.Errorf("Run() = %d, want %d", code, model.ErrCodeDownloadFailed)
	}
}

// 全メタデータ欠落でも動画IDだけでファイル名が構成されることを検証
func TestDownloadWorker_Run_FilenameFromIDOnly(t *testing.T) {
	db := newTestDB(t)
	videos := repository.NewSQLiteVideoRepo(db)
	logger, _ := newTestLogger()

	scratch := t.TempDir()
	mediaRoot := t.TempDir()
	runtime := &config.Runtime{PathTemp: scratch, PathMedia: mediaRoot, SubLang: "en.*"}

	var gotTemplate string
	runner := &mockRunner{
		resolveFieldsFunc: func(ctx context.Context, videoURL string) (*ytdlp.VideoFields, error) {
			// "NA"はデコード境界で空文字へ写像済み
			return &ytdlp.VideoFields{VideoID: "abc123"}, nil
		},
		downloadFunc: func(ctx context.Context, videoURL, outputPath, subLang string) error {
			gotTemplate = outputPath
			return nil
		},
	}
	w := NewDownloadWorker(runner,
		repository.NewSQLiteChannelRepo(db), videos,
		security.NewTextSanitizer(), runtime, 0, logger)

	code := w.Run(context.Background(), downloadTask(`{"url":"https://youtube.com/watch?v=abc123"}`))
	if code != model.ErrCodeNone {
		t.Fatalf("Run() = %d, want 0", code)
	}

	want := filepath.Join(scratch, "abc123.%(ext)s")
	if gotTemplate != want {
		t.Errorf("output template = %q, want %q", gotTemplate, want)
	}

	// チャンネル・年が欠落した階層は"other"で埋まる
	if _, err := os.Stat(filepath.Join(mediaRoot, "youtube.com", "other", "other")); err != nil {
		t.Errorf("fallback destination dir not created: %v", err)
	}
}

// 文脈エラーの分類に使うerrors.Isがモックのラップ経由でも機能することを確認
func TestAdapterCode(t *testing.T) {
	if got := adapterCode(fmt.Errorf("wrap: %w", ytdlp.ErrDecode), model.ErrCodeResolveFailed); got != model.ErrCodeDecodeFailed {
		t.Errorf("adapterCode(ErrDecode) = %d, want %d", got, model.ErrCodeDecodeFailed)
	}
	if got := adapterCode(errors.New("plain"), model.ErrCodeResolveFailed); got != model.ErrCodeResolveFailed {
		t.Errorf("adapterCode(plain) = %d, want %d", got, model.ErrCodeResolveFailed)
	}
}
