package bgjob

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/vodman/internal/model"
)

// TaskSweeper は終端タスクの削除操作。
type TaskSweeper interface {
	SweepTerminal(ctx context.Context, olderThan time.Time) (int64, error)
}

// QueueCleanJob は保持期間を超過したDONE/FAILタスク行を削除するジョブ。
// ERR行は運用者が失敗原因を確認する診断面のため削除しない。
type QueueCleanJob struct {
	tasks     TaskSweeper
	logger    *slog.Logger
	Retention time.Duration // 終端行の保持期間（デフォルト: 24時間）
}

// NewQueueCleanJob はQueueCleanJobを生成する。
func NewQueueCleanJob(tasks TaskSweeper, logger *slog.Logger) *QueueCleanJob {
	return &QueueCleanJob{
		tasks:     tasks,
		logger:    logger,
		Retention: 24 * time.Hour,
	}
}

// Name はジョブ名を返す。
func (j *QueueCleanJob) Name() string {
	return model.BackgroundJobQueueClean
}

// Run は保持期間を超過した終端タスク行を削除する。
// 削除対象がない場合でもエラーにならない。
func (j *QueueCleanJob) Run(ctx context.Context) error {
	olderThan := time.Now().UTC().Add(-j.Retention)

	deleted, err := j.tasks.SweepTerminal(ctx, olderThan)
	if err != nil {
		return fmt.Errorf("終端タスクの削除に失敗: %w", err)
	}

	j.logger.Info("キュークリーンアップが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Duration("retention", j.Retention),
	)
	return nil
}

// compile-time interface check
var _ Job = (*QueueCleanJob)(nil)
