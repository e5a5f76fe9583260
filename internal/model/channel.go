package model

import (
	"regexp"
	"strings"
	"time"
)

// Channel は購読中の動画ソースを表す。
// (Domain, ChannelID) と (Domain, NameNormalized) はそれぞれ一意。
type Channel struct {
	ID             int64
	Domain         string
	URL            string
	ChannelID      string // ソース側のチャンネル識別子
	Name           string
	NameNormalized string
	UpdatedAt      time.Time
}

var (
	quoteRe      = regexp.MustCompile(`['"]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeChannelName はチャンネル表示名をURLルーティング用の正規化形に変換する。
// 引用符を除去し、連続する空白をハイフン1つに置換し、小文字化する。
// 書き込み時と読み取り時の両方でこの同じ関数を適用することで、
// DBトリガーに頼らず正規化のずれを防ぐ。
func NormalizeChannelName(name string) string {
	normalized := quoteRe.ReplaceAllString(name, "")
	normalized = whitespaceRe.ReplaceAllString(strings.TrimSpace(normalized), "-")
	return strings.ToLower(normalized)
}
