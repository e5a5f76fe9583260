// Package urlutil はURLからの登録可能ドメイン導出を提供する。
package urlutil

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// RegistrableDomain はURLから登録可能ドメイン（eTLD+1）を導出する。
// "https://www.youtube.com/watch?v=x" → "youtube.com"。
// スキームを持たない入力は https:// を補ってからパースする。
// ホストが導出できない入力はエラーを返す。
func RegistrableDomain(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", fmt.Errorf("URLが空です")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("URLのパースに失敗しました: %w", err)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("URLにホストがありません: %q", rawURL)
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("登録可能ドメインの導出に失敗しました: %w", err)
	}

	return domain, nil
}
