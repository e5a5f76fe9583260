package ytdlp

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"
)

// 出力テンプレート。ツールがトークン区切りのレコードを印字するよう指示する。
const (
	videoTemplate   = "%(channel_id)s SPLITATTHISPOINT %(channel)s SPLITATTHISPOINT %(upload_date)s SPLITATTHISPOINT %(title)s SPLITATTHISPOINT %(id)s"
	channelTemplate = "%(channel_id)s SPLITATTHISPOINT %(channel)s"
	listingTemplate = "%(channel_id)s SPLITATTHISPOINT %(channel)s SPLITATTHISPOINT %(webpage_url)s SPLITATTHISPOINT %(upload_date)s SPLITATTHISPOINT %(title)s SPLITATTHISPOINT %(id)s"
)

// 呼び出しモード名。ログとメトリクスのラベルに使う。
const (
	modeResolve  = "resolve"
	modeChannel  = "channel"
	modeDownload = "download"
	modeListing  = "listing"
)

// LatencyRecorder はモード別のsubprocessレイテンシを記録するインターフェース。
type LatencyRecorder interface {
	RecordSubprocess(mode string, d time.Duration)
}

// Client は外部抽出ツールをsubprocessとして起動するRunner実装。
type Client struct {
	bin     string
	logger  *slog.Logger
	metrics LatencyRecorder // nil可
}

// NewClient はClientの新しいインスタンスを生成する。
// metricsはnilを許容する。
func NewClient(logger *slog.Logger, metrics LatencyRecorder) *Client {
	return &Client{
		bin:     "yt-dlp",
		logger:  logger,
		metrics: metrics,
	}
}

// ResolveFields は動画URLから5フィールドレコードを解決する。
func (c *Client) ResolveFields(ctx context.Context, videoURL string) (*VideoFields, error) {
	out, err := c.run(ctx, modeResolve, resolveArgs(videoURL))
	if err != nil {
		return nil, err
	}

	lines := nonEmptyLines(out)
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: 出力が空です (%s)", ErrDecode, modeResolve)
	}

	fields, err := decodeVideoFields(lines[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return fields, nil
}

// ResolveChannel はチャンネルの先頭1件からチャンネルIDと表示名を解決する。
func (c *Client) ResolveChannel(ctx context.Context, channelURL string) (string, string, error) {
	out, err := c.run(ctx, modeChannel, channelArgs(channelURL))
	if err != nil {
		return "", "", err
	}

	lines := nonEmptyLines(out)
	if len(lines) == 0 {
		return "", "", fmt.Errorf("%w: 出力が空です (%s)", ErrDecode, modeChannel)
	}

	fields, err := splitRecord(lines[0], channelFieldCount)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if fields[0] == "" {
		return "", "", fmt.Errorf("%w: チャンネルIDを解決できませんでした", ErrDecode)
	}
	return fields[0], fields[1], nil
}

// Download は動画をダウンロードする。出力の検証は行わない
// （成果物の確認と移動は呼び出し側の責務）。
func (c *Client) Download(ctx context.Context, videoURL, outputPath, subLang string) error {
	_, err := c.run(ctx, modeDownload, downloadArgs(videoURL, outputPath, subLang))
	return err
}

// ListChannelVideos はチャンネル動画一覧の6フィールドレコードを取得する。
// デコード不能な行は警告ログとともにスキップする。非空行が存在するのに
// 1行もデコードできなかった場合は全体失敗としてエラーを返す。
func (c *Client) ListChannelVideos(ctx context.Context, videosURL string, recentOnly bool) ([]ListingRecord, error) {
	out, err := c.run(ctx, modeListing, listingArgs(videosURL, recentOnly))
	if err != nil {
		return nil, err
	}

	lines := nonEmptyLines(out)
	records := make([]ListingRecord, 0, len(lines))
	for _, line := range lines {
		rec, err := decodeListingRecord(line)
		if err != nil {
			c.logger.Warn("一覧レコードをスキップします",
				slog.String("line", line),
				slog.String("error", err.Error()),
			)
			continue
		}
		records = append(records, rec)
	}

	if len(lines) > 0 && len(records) == 0 {
		return nil, fmt.Errorf("%w: 一覧出力を1行もデコードできませんでした（%d行）", ErrDecode, len(lines))
	}

	return records, nil
}

// run はツールを起動して標準出力を返す。非ゼロ終了と非UTF-8出力は
// ハードエラー。
func (c *Client) run(ctx context.Context, mode string, args []string) (string, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, c.bin, args...)
	out, err := cmd.Output()

	duration := time.Since(start)
	if c.metrics != nil {
		c.metrics.RecordSubprocess(mode, duration)
	}

	if err != nil {
		var detail string
		if exitErr, ok := err.(*exec.ExitError); ok {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		c.logger.Error("抽出ツールの呼び出しに失敗しました",
			slog.String("mode", mode),
			slog.String("error", err.Error()),
			slog.String("stderr", detail),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		return "", fmt.Errorf("%w (%s): %v", ErrInvoke, mode, err)
	}

	if !utf8.Valid(out) {
		return "", fmt.Errorf("%w: 出力が不正なUTF-8です (%s)", ErrDecode, mode)
	}

	c.logger.Debug("抽出ツールの呼び出しが完了しました",
		slog.String("mode", mode),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return string(out), nil
}

// resolveArgs はメタデータ解決モードの引数を構築する。
// プレイリストクエリ付きURLは単一動画として扱うため &list 以降を落とす。
func resolveArgs(videoURL string) []string {
	return []string{
		"--print", "filename",
		"-o", videoTemplate,
		stripListParam(videoURL),
	}
}

// channelArgs はチャンネル解決モードの引数を構築する。
// チャンネルの先頭1件のみを参照する。
func channelArgs(channelURL string) []string {
	return []string{
		"--skip-download",
		"--playlist-items", "1",
		"--print", channelTemplate,
		channelURL,
	}
}

// downloadArgs はダウンロードモードの引数を構築する。
// メタデータとサムネイル・字幕の埋め込みを要求する。
func downloadArgs(videoURL, outputPath, subLang string) []string {
	return []string{
		"--no-playlist",
		"--add-metadata",
		"--embed-metadata",
		"--write-thumbnail",
		"--convert-thumbnails", "jpg",
		"--write-subs",
		"--write-auto-subs",
		"--convert-subs", "srt",
		"--sub-lang", subLang,
		"-o", outputPath,
		videoURL,
	}
}

// listingArgs は一覧モードの引数を構築する。
// recentOnlyの場合は日付制約で直近の新着に限定し、遅延プレイリストで
// 走査を打ち切る。
func listingArgs(videosURL string, recentOnly bool) []string {
	args := []string{
		"--skip-download",
		"--extractor-args", "youtubetab:approximate_date",
		"--print", listingTemplate,
	}
	if recentOnly {
		args = append(args,
			"--dateafter", "today-2days",
			"--break-on-reject",
			"--lazy-playlist",
		)
	}
	return append(args, videosURL)
}

// stripListParam はURLから "&list" 以降のプレイリストクエリを除去する。
func stripListParam(videoURL string) string {
	if before, _, found := strings.Cut(videoURL, "&list"); found {
		return before
	}
	return videoURL
}

// compile-time interface check
var _ Runner = (*Client)(nil)
