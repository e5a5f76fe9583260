// Package dispatch はタスクキューのディスパッチャを提供する。
// 固定tickでWAITタスクを取得し、種別ごとのワーカーへ並列度上限つきで
// 振り分け、報告された結果をタスク行へ反映する。
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/vodman/internal/model"
	"github.com/hitoshi/vodman/internal/worker/task"
)

// TaskStore はディスパッチャが必要とするタスク永続化操作。
type TaskStore interface {
	ClaimWaiting(ctx context.Context, limit int) ([]*model.Task, error)
	Mark(ctx context.Context, id int64, state model.TaskState, code model.ErrCode) error
	Retry(ctx context.Context, id int64, code model.ErrCode, retryLimit int) error
}

// Metrics はディスパッチャが記録するメトリクス操作。
type Metrics interface {
	RecordTaskClaimed(kind string)
	RecordTaskSucceeded(kind string)
	RecordTaskFailed(kind string, code int)
	RecordTaskRetried(kind string)
	RecordTaskDuration(kind string, duration time.Duration)
	SetInflight(n int)
}

// started は実行中タスクの取得時情報。所要時間の計測に使う。
type started struct {
	kind model.TaskKind
	at   time.Time
}

// Dispatcher は単一goroutineで動くディスパッチループ。
// inflightカウンタと実行中タスク表はループだけが触るため、ロック不要。
type Dispatcher struct {
	store      TaskStore
	workers    map[model.TaskKind]task.Worker
	budget     int
	retryLimit int
	logger     *slog.Logger
	metrics    Metrics // nil可

	outcomes chan model.Outcome
	inflight int
	running  map[int64]started
}

// NewDispatcher はDispatcherを生成する。
// budgetが0以下の場合はデフォルト値3を使用する。
func NewDispatcher(
	store TaskStore,
	workers map[model.TaskKind]task.Worker,
	budget int,
	retryLimit int,
	logger *slog.Logger,
	metrics Metrics,
) *Dispatcher {
	if budget <= 0 {
		budget = 3
	}
	return &Dispatcher{
		store:      store,
		workers:    workers,
		budget:     budget,
		retryLimit: retryLimit,
		logger:     logger,
		metrics:    metrics,
		outcomes:   make(chan model.Outcome, budget),
		running:    make(map[int64]started),
	}
}

// Start は固定tickのディスパッチループを起動する。
// コンテキストのキャンセルで新規取得を止め、実行中のワーカーが
// すべて報告を終えてから戻る（ワーカーは強制終了しない）。
func (d *Dispatcher) Start(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	d.logger.Info("ディスパッチャを開始しました",
		slog.Duration("tick", tick),
		slog.Int("budget", d.budget),
		slog.Int("retry_limit", d.retryLimit),
	)

	if err := d.RunOnce(ctx); err != nil {
		d.logger.Error("ディスパッチtickに失敗しました", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			// 実行中のワーカーはキャンセルされないコンテキストで
			// 動いているため、終端報告まで待って反映する
			drainCtx := context.WithoutCancel(ctx)
			for d.inflight > 0 {
				d.apply(drainCtx, <-d.outcomes)
			}
			d.logger.Info("ディスパッチャを停止しました")
			return
		case <-ticker.C:
			if err := d.RunOnce(ctx); err != nil {
				d.logger.Error("ディスパッチtickに失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce はディスパッチを1tick分実行する。
// 取得→振り分け→結果の非ブロッキング反映、の順で進める。
// 取得の失敗はtickをスキップするだけで、実行中タスクの反映は続ける。
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	claimErr := d.claimAndDispatch(ctx)
	d.drainAvailable(ctx)
	return claimErr
}

func (d *Dispatcher) claimAndDispatch(ctx context.Context) error {
	if d.inflight >= d.budget {
		return nil
	}

	tasks, err := d.store.ClaimWaiting(ctx, d.budget-d.inflight)
	if err != nil {
		return err
	}

	for _, t := range tasks {
		if d.metrics != nil {
			d.metrics.RecordTaskClaimed(string(t.Kind))
		}

		w, ok := d.workers[t.Kind]
		if !ok {
			// 未定義の種別はワーカーを起動せず即座にERRへ
			d.logger.Error("未定義のタスク種別です",
				slog.Int64("task_id", t.ID),
				slog.String("kind", string(t.Kind)),
			)
			if err := d.store.Mark(ctx, t.ID, model.TaskStateErr, model.ErrCodeUnknownKind); err != nil {
				d.logger.Error("タスク状態の更新に失敗しました",
					slog.Int64("task_id", t.ID),
					slog.String("error", err.Error()),
				)
			}
			if d.metrics != nil {
				d.metrics.RecordTaskFailed(string(t.Kind), int(model.ErrCodeUnknownKind))
			}
			continue
		}

		d.inflight++
		d.running[t.ID] = started{kind: t.Kind, at: time.Now()}
		if d.metrics != nil {
			d.metrics.SetInflight(d.inflight)
		}

		d.logger.Info("タスクを開始します",
			slog.Int64("task_id", t.ID),
			slog.String("kind", string(t.Kind)),
			slog.Int("retry_count", t.RetryCount),
		)

		// シャットダウン時も実行中のsubprocessを道連れにしないよう、
		// ワーカーにはキャンセルされないコンテキストを渡す
		go d.launch(context.WithoutCancel(ctx), w, t)
	}
	return nil
}

// launch はワーカーを実行し、結果を必ず1回だけ報告する。
// panicは-599の失敗結果へ変換する。
func (d *Dispatcher) launch(ctx context.Context, w task.Worker, t *model.Task) {
	code := model.ErrCodeInternal
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("ワーカーがpanicから回復しました",
				slog.Int64("task_id", t.ID),
				slog.String("kind", string(t.Kind)),
				slog.Any("panic", r),
			)
		}
		d.outcomes <- model.Outcome{TaskID: t.ID, Code: code}
	}()
	code = w.Run(ctx, t)
}

// drainAvailable は現時点で届いている結果だけを反映する（非ブロッキング）。
func (d *Dispatcher) drainAvailable(ctx context.Context) {
	for {
		select {
		case o := <-d.outcomes:
			d.apply(ctx, o)
		default:
			return
		}
	}
}

// apply は結果1件をタスク行へ反映する。
// 成功はDONE、再試行可能な失敗はRetry経由でWAITまたはFAIL、
// それ以外の失敗はERRへ遷移させる。
func (d *Dispatcher) apply(ctx context.Context, o model.Outcome) {
	d.inflight--
	if d.metrics != nil {
		d.metrics.SetInflight(d.inflight)
	}

	info, ok := d.running[o.TaskID]
	if ok {
		delete(d.running, o.TaskID)
		if d.metrics != nil {
			d.metrics.RecordTaskDuration(string(info.kind), time.Since(info.at))
		}
	}

	switch {
	case o.Success():
		if err := d.store.Mark(ctx, o.TaskID, model.TaskStateDone, model.ErrCodeNone); err != nil {
			d.logger.Error("タスク状態の更新に失敗しました",
				slog.Int64("task_id", o.TaskID),
				slog.String("error", err.Error()),
			)
		}
		if d.metrics != nil {
			d.metrics.RecordTaskSucceeded(string(info.kind))
		}
		d.logger.Info("タスクが完了しました", slog.Int64("task_id", o.TaskID))

	case o.Code.Retryable():
		if err := d.store.Retry(ctx, o.TaskID, o.Code, d.retryLimit); err != nil {
			d.logger.Error("タスクの再試行遷移に失敗しました",
				slog.Int64("task_id", o.TaskID),
				slog.String("error", err.Error()),
			)
		}
		if d.metrics != nil {
			d.metrics.RecordTaskRetried(string(info.kind))
		}
		d.logger.Warn("タスクを再試行キューへ戻します",
			slog.Int64("task_id", o.TaskID),
			slog.Int("code", int(o.Code)),
		)

	default:
		if err := d.store.Mark(ctx, o.TaskID, model.TaskStateErr, o.Code); err != nil {
			d.logger.Error("タスク状態の更新に失敗しました",
				slog.Int64("task_id", o.TaskID),
				slog.String("error", err.Error()),
			)
		}
		if d.metrics != nil {
			d.metrics.RecordTaskFailed(string(info.kind), int(o.Code))
		}
		d.logger.Error("タスクが失敗しました",
			slog.Int64("task_id", o.TaskID),
			slog.Int("code", int(o.Code)),
		)
	}
}
