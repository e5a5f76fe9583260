// Package ytdlp は外部抽出ツール（yt-dlp）との境界を提供する。
//
// ツールは固定の引数テンプレートで起動され、1レコードを1行として
// 区切りトークンで結合された固定フィールド数のテキストを標準出力に
// 印字する。このパッケージはその呼び出しと、行レコードの型付き
// デコードを担う。
package ytdlp

import "context"

// VideoFields は動画1本のメタデータ解決結果（5フィールドレコード）。
// 欠落フィールド（ツール出力の"NA"）は空文字列で表す。
type VideoFields struct {
	ChannelID   string
	ChannelName string
	UploadDate  string // YYYYMMDD形式、欠落時は空
	Title       string
	VideoID     string
}

// ListingRecord はチャンネル動画一覧の1行（6フィールドレコード）。
type ListingRecord struct {
	ChannelID   string
	ChannelName string
	URL         string
	UploadDate  string // YYYYMMDD形式、欠落時は空
	Title       string
	VideoID     string
}

// Runner は抽出ツールの呼び出しモードを定義するインターフェース。
// ワーカーはこのインターフェースにのみ依存し、テストではモックする。
type Runner interface {
	// ResolveFields は動画URLからファイル名決定用のメタデータを解決する。
	ResolveFields(ctx context.Context, videoURL string) (*VideoFields, error)

	// ResolveChannel はチャンネルURLの先頭1件からチャンネルIDと
	// 表示名を解決する。
	ResolveChannel(ctx context.Context, channelURL string) (id, name string, err error)

	// Download は動画をダウンロードする。outputPathは出力テンプレート
	// （一時ディレクトリ込みのパス）、subLangは字幕言語指定として
	// ツールへそのまま渡す。
	Download(ctx context.Context, videoURL, outputPath, subLang string) error

	// ListChannelVideos はチャンネルの動画一覧を取得する。
	// recentOnlyがtrueの場合は直近数日の新着のみに限定する。
	// デコード不能な行はスキップされ、結果に含まれない。
	ListChannelVideos(ctx context.Context, videosURL string, recentOnly bool) ([]ListingRecord, error)
}
