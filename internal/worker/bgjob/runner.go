// Package bgjob は永続化された定期メンテナンスジョブの実行基盤を提供する。
// 発火間隔はbackground_jobsテーブルが持ち、発火時刻の更新はジョブ本体の
// 実行前に行うことで、本体が失敗しても同一間隔内の再発火を防ぐ。
package bgjob

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/vodman/internal/model"
)

// Job は定期実行されるジョブ本体。
type Job interface {
	// Name はbackground_jobsテーブルのジョブ名と対応する。
	Name() string
	// Run はジョブ本体を実行する。
	Run(ctx context.Context) error
}

// JobStore はジョブの発火時刻管理に必要な永続化操作。
type JobStore interface {
	ListDue(ctx context.Context, now time.Time) ([]*model.BackgroundJob, error)
	Touch(ctx context.Context, id int64, now time.Time) error
}

// Runner は定期ジョブの発火ループ。
type Runner struct {
	store  JobStore
	jobs   map[string]Job
	logger *slog.Logger
	now    func() time.Time // テストで注入する
}

// NewRunner はRunnerを生成する。
func NewRunner(store JobStore, jobs []Job, logger *slog.Logger) *Runner {
	byName := make(map[string]Job, len(jobs))
	for _, j := range jobs {
		byName[j.Name()] = j
	}
	return &Runner{
		store:  store,
		jobs:   byName,
		logger: logger,
		now:    time.Now,
	}
}

// Start は固定tickで発火ループを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Runner) Start(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	r.logger.Info("定期ジョブランナーを開始しました",
		slog.Duration("tick", tick),
		slog.Int("job_count", len(r.jobs)),
	)

	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error("定期ジョブの発火に失敗しました", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("定期ジョブランナーを停止しました")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("定期ジョブの発火に失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce は発火間隔を経過したジョブを1巡実行する。
// last_execはジョブ本体の前に更新する。更新に失敗した場合は
// 間隔の保証が崩れるため、そのジョブの実行を見送る。
func (r *Runner) RunOnce(ctx context.Context) error {
	now := r.now().UTC()

	due, err := r.store.ListDue(ctx, now)
	if err != nil {
		return err
	}

	for _, row := range due {
		job, ok := r.jobs[row.Name]
		if !ok {
			r.logger.Warn("対応するジョブ実装がありません", slog.String("job", row.Name))
			continue
		}

		if err := r.store.Touch(ctx, row.ID, now); err != nil {
			r.logger.Error("ジョブの実行時刻更新に失敗しました",
				slog.String("job", row.Name),
				slog.String("error", err.Error()),
			)
			continue
		}

		start := time.Now()
		if err := job.Run(ctx); err != nil {
			r.logger.Error("定期ジョブの実行に失敗しました",
				slog.String("job", row.Name),
				slog.String("error", err.Error()),
				slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
			)
			continue
		}

		r.logger.Info("定期ジョブが完了しました",
			slog.String("job", row.Name),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}
	return nil
}
