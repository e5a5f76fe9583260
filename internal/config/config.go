// Package config は起動時設定とランタイム設定を提供する。
// 起動時設定は環境変数から、ランタイム設定はDBのsettingsテーブルから
// それぞれ1回だけ読み込み、以後イミュータブルとして扱う。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はプロセス起動時の設定を保持する。
type Config struct {
	// Database
	DatabasePath string

	// Dispatcher
	DispatchTick        time.Duration
	DispatchConcurrency int

	// Background jobs
	BackgroundJobTick time.Duration

	// Download
	SettleDelay time.Duration

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// すべてのキーにデフォルト値があるため、未設定でもエラーにならない。
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:        getEnvString("DATABASE_PATH", "./vodman.db"),
		DispatchTick:        getEnvDuration("DISPATCH_TICK", time.Second),
		DispatchConcurrency: getEnvInt("DISPATCH_CONCURRENCY", 3),
		BackgroundJobTick:   getEnvDuration("BGJOB_TICK", 30*time.Second),
		SettleDelay:         getEnvDuration("SETTLE_DELAY", 10*time.Second),
		ServerPort:          getEnvString("SERVER_PORT", "8080"),
	}

	if cfg.DispatchConcurrency <= 0 {
		return nil, fmt.Errorf("DISPATCH_CONCURRENCY must be positive, got %d", cfg.DispatchConcurrency)
	}

	return cfg, nil
}

// Runtime はDBのsettingsテーブル由来のランタイム設定を保持する。
// ディスパッチャ起動時に1回読み込み、ワーカーへは読み取り専用の
// スナップショットとして渡される。
type Runtime struct {
	PathTemp   string // ダウンロードの一時ディレクトリ
	PathMedia  string // メディアツリーのルート
	SubLang    string // subprocessへそのまま渡す字幕言語指定
	RetryLimit int    // FAILへ遷移するまでのリトライ上限
}

// ランタイム設定のキー。settingsテーブルの行と対応する。
const (
	KeyPathTemp   = "path_temp"
	KeyPathMedia  = "path_media"
	KeySubLang    = "sub_lang"
	KeyRetryLimit = "retry_limit"
)

// RuntimeFromMap はsettingsテーブルのkey-valueからRuntimeを構築する。
// 必須キーの欠落はエラーを返す（マイグレーションがシードするため
// 通常は起こらない）。
func RuntimeFromMap(m map[string]string) (*Runtime, error) {
	rt := &Runtime{}

	var missing []string
	var ok bool

	if rt.PathTemp, ok = m[KeyPathTemp]; !ok {
		missing = append(missing, KeyPathTemp)
	}
	if rt.PathMedia, ok = m[KeyPathMedia]; !ok {
		missing = append(missing, KeyPathMedia)
	}
	if rt.SubLang, ok = m[KeySubLang]; !ok {
		missing = append(missing, KeySubLang)
	}

	raw, ok := m[KeyRetryLimit]
	if !ok {
		missing = append(missing, KeyRetryLimit)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("ランタイム設定が不足しています: %v", missing)
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return nil, fmt.Errorf("retry_limit が不正です: %q", raw)
	}
	rt.RetryLimit = limit

	return rt, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
