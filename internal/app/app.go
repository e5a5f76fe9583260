// Package app はアプリケーションの起動とワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/vodman/internal/config"
	"github.com/hitoshi/vodman/internal/database"
	"github.com/hitoshi/vodman/internal/handler"
	"github.com/hitoshi/vodman/internal/logger"
	"github.com/hitoshi/vodman/internal/metrics"
	"github.com/hitoshi/vodman/internal/middleware"
	"github.com/hitoshi/vodman/internal/model"
	"github.com/hitoshi/vodman/internal/repository"
	"github.com/hitoshi/vodman/internal/security"
	"github.com/hitoshi/vodman/internal/worker/bgjob"
	"github.com/hitoshi/vodman/internal/worker/dispatch"
	"github.com/hitoshi/vodman/internal/worker/task"
	"github.com/hitoshi/vodman/internal/ytdlp"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("database", cfg.DatabasePath),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバー、ディスパッチャ、定期ジョブを同一プロセスで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
// 実行中のワーカーは強制終了せず、報告を終えるまで待つ。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// 単一ノードのSQLiteなので未適用マイグレーションは起動時に適用する
	if err := database.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	taskRepo := repository.NewSQLiteTaskRepo(db)
	channelRepo := repository.NewSQLiteChannelRepo(db)
	videoRepo := repository.NewSQLiteVideoRepo(db)
	settingsRepo := repository.NewSQLiteSettingsRepo(db)
	bgjobRepo := repository.NewSQLiteBackgroundJobRepo(db)

	// 3. ランタイム設定をDBから読み込む
	settings, err := settingsRepo.All(context.Background())
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	runtime, err := config.RuntimeFromMap(settings)
	if err != nil {
		return fmt.Errorf("invalid runtime settings: %w", err)
	}

	// 4. メトリクスとドメインサービスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	runner := ytdlp.NewClient(slog.Default(), collector)
	sanitizer := security.NewTextSanitizer()

	// 5. ワーカーとディスパッチャの構築
	workers := map[model.TaskKind]task.Worker{
		model.TaskKindVideoDownload: task.NewDownloadWorker(
			runner, channelRepo, videoRepo, sanitizer, runtime, cfg.SettleDelay, slog.Default()),
		model.TaskKindChannelAdd: task.NewChannelAddWorker(
			runner, channelRepo, videoRepo, sanitizer, slog.Default()),
		model.TaskKindChannelFetch: task.NewChannelFetchWorker(
			runner, channelRepo, videoRepo, sanitizer, slog.Default()),
	}

	dispatcher := dispatch.NewDispatcher(
		taskRepo, workers, cfg.DispatchConcurrency, runtime.RetryLimit,
		slog.Default(), collector,
	)

	// 6. 定期ジョブの構築
	jobs := []bgjob.Job{
		bgjob.NewQueueCleanJob(taskRepo, slog.Default()),
		bgjob.NewChannelRefreshJob(runner, channelRepo, videoRepo, sanitizer, slog.Default()),
	}
	jobRunner := bgjob.NewRunner(bgjobRepo, jobs, slog.Default())

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:      slog.Default(),
		RateLimiter: rateLimiter,

		Tasks:         taskRepo,
		Channels:      channelRepo,
		ChannelVideos: videoRepo,
		Videos:        videoRepo,
		Settings:      settingsRepo,

		DB:      db,
		Metrics: metrics.SetupMetricsRoute(registry),
	})

	// 8. バックグラウンドループの起動
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		dispatcher.Start(ctx, cfg.DispatchTick)
	}()
	go func() {
		defer wg.Done()
		jobRunner.Start(ctx, cfg.BackgroundJobTick)
	}()

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Int("dispatch_concurrency", cfg.DispatchConcurrency),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", slog.String("error", err.Error()))
	}

	// ディスパッチャと定期ジョブを止め、実行中ワーカーの報告を待つ
	cancel()
	wg.Wait()

	slog.Info("stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database", cfg.DatabasePath),
	)

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
