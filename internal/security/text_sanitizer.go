// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は外部抽出ツールの出力由来のテキスト（動画タイトルや
// チャンネル表示名）からマークアップを除去する。これらの値はDBに保存され
// API応答として利用者に返るため、保存前にプレーンテキスト化する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はプレーンテキスト化のインターフェースを定義する。
type TextSanitizerService interface {
	// Sanitize は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
	// 実体参照はデコードされる（"&amp;" → "&"）。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフに動作する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはすべてのタグと属性を除去する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はすべてのマークアップを除去したプレーンテキストを返す。
// bluemondayはテキストを実体参照にエスケープして返すため、
// 保存用のプレーンテキストとしてはデコードして戻す。
func (s *textSanitizer) Sanitize(raw string) string {
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}

// compile-time interface check
var _ TextSanitizerService = (*textSanitizer)(nil)
