package task

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"

	"github.com/hitoshi/vodman/internal/database"
	"github.com/hitoshi/vodman/internal/ytdlp"
)

// mockRunner はテスト用のRunner実装。未設定の呼び出しはエラーになる。
type mockRunner struct {
	resolveFieldsFunc  func(ctx context.Context, videoURL string) (*ytdlp.VideoFields, error)
	resolveChannelFunc func(ctx context.Context, channelURL string) (string, string, error)
	downloadFunc       func(ctx context.Context, videoURL, outputPath, subLang string) error
	listFunc           func(ctx context.Context, videosURL string, recentOnly bool) ([]ytdlp.ListingRecord, error)
}

func (m *mockRunner) ResolveFields(ctx context.Context, videoURL string) (*ytdlp.VideoFields, error) {
	if m.resolveFieldsFunc == nil {
		return nil, errors.New("resolveFieldsFunc not set")
	}
	return m.resolveFieldsFunc(ctx, videoURL)
}

func (m *mockRunner) ResolveChannel(ctx context.Context, channelURL string) (string, string, error) {
	if m.resolveChannelFunc == nil {
		return "", "", errors.New("resolveChannelFunc not set")
	}
	return m.resolveChannelFunc(ctx, channelURL)
}

func (m *mockRunner) Download(ctx context.Context, videoURL, outputPath, subLang string) error {
	if m.downloadFunc == nil {
		return errors.New("downloadFunc not set")
	}
	return m.downloadFunc(ctx, videoURL, outputPath, subLang)
}

func (m *mockRunner) ListChannelVideos(ctx context.Context, videosURL string, recentOnly bool) ([]ytdlp.ListingRecord, error) {
	if m.listFunc == nil {
		return nil, errors.New("listFunc not set")
	}
	return m.listFunc(ctx, videosURL, recentOnly)
}

var _ ytdlp.Runner = (*mockRunner)(nil)

// newTestDB はマイグレーション適用済みのインメモリDBを返す。
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := database.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

// newTestLogger はJSONログをバッファへ書くテスト用ロガーを返す。
func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewJSONHandler(buf, nil)), buf
}
