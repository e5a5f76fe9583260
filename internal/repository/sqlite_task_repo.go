package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/vodman/internal/model"
)

// SQLiteTaskRepo はSQLiteを使用したタスクキューリポジトリ。
type SQLiteTaskRepo struct {
	db *sql.DB
}

// NewSQLiteTaskRepo はSQLiteTaskRepoを生成する。
func NewSQLiteTaskRepo(db *sql.DB) *SQLiteTaskRepo {
	return &SQLiteTaskRepo{db: db}
}

// Enqueue は新規タスクをWAIT状態で投入し、採番されたIDを返す。
func (r *SQLiteTaskRepo) Enqueue(ctx context.Context, kind model.TaskKind, payload string) (int64, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (task_type, task_data, task_state, retry_count, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, 0, 0, ?, ?)`,
		string(kind), payload, string(model.TaskStateWait), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("タスクの投入に失敗しました: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("タスクIDの取得に失敗しました: %w", err)
	}
	return id, nil
}

// ClaimWaiting はWAIT状態のタスクをID昇順（挿入順）に最大limit件取得し、
// 同一トランザクション内でWIPへ遷移させて返す。
// 遷移できなかった行（並行する取得に先を越された行）は結果から除外する。
func (r *SQLiteTaskRepo) ClaimWaiting(ctx context.Context, limit int) ([]*model.Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("タスク取得トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, task_type, task_data, task_state, retry_count, last_error, created_at, updated_at
		 FROM tasks WHERE task_state = ? ORDER BY id ASC LIMIT ?`,
		string(model.TaskStateWait), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("WAITタスクの一覧取得に失敗しました: %w", err)
	}

	var candidates []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("WAITタスクの走査に失敗しました: %w", err)
	}
	rows.Close()

	now := time.Now().UTC()
	claimed := make([]*model.Task, 0, len(candidates))
	for _, t := range candidates {
		res, err := tx.ExecContext(ctx,
			`UPDATE tasks SET task_state = ?, updated_at = ? WHERE id = ? AND task_state = ?`,
			string(model.TaskStateWip), now, t.ID, string(model.TaskStateWait),
		)
		if err != nil {
			return nil, fmt.Errorf("タスクのWIP遷移に失敗しました: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("タスクのWIP遷移結果の確認に失敗しました: %w", err)
		}
		if affected != 1 {
			continue
		}
		t.State = model.TaskStateWip
		t.UpdatedAt = now
		claimed = append(claimed, t)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("タスク取得トランザクションのコミットに失敗しました: %w", err)
	}
	return claimed, nil
}

// Mark はWIP状態のタスクを終端状態へ遷移させ、診断コードを記録する。
// WIP以外の行には作用しないため、重複した報告があっても冪等に働く。
func (r *SQLiteTaskRepo) Mark(ctx context.Context, id int64, state model.TaskState, code model.ErrCode) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET task_state = ?, last_error = ?, updated_at = ?
		 WHERE id = ? AND task_state = ?`,
		string(state), int(code), time.Now().UTC(), id, string(model.TaskStateWip),
	)
	if err != nil {
		return fmt.Errorf("タスク状態の更新に失敗しました: %w", err)
	}
	return nil
}

// Retry はWIP状態のタスクのretry_countを加算し、上限以内ならWAITへ、
// 超過ならFAILへ単一の更新で遷移させる。
func (r *SQLiteTaskRepo) Retry(ctx context.Context, id int64, code model.ErrCode, retryLimit int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET
		    retry_count = retry_count + 1,
		    last_error = ?,
		    task_state = CASE WHEN retry_count + 1 > ? THEN ? ELSE ? END,
		    updated_at = ?
		 WHERE id = ? AND task_state = ?`,
		int(code), retryLimit,
		string(model.TaskStateFail), string(model.TaskStateWait),
		time.Now().UTC(), id, string(model.TaskStateWip),
	)
	if err != nil {
		return fmt.Errorf("タスクの再試行遷移に失敗しました: %w", err)
	}
	return nil
}

// SweepTerminal はolderThanより前にDONEまたはFAILへ達したタスク行を削除し、
// 件数を返す。ERR行は診断用に参照されるため削除の対象にしない。
func (r *SQLiteTaskRepo) SweepTerminal(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE task_state IN (?, ?) AND updated_at < ?`,
		string(model.TaskStateDone), string(model.TaskStateFail),
		olderThan.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("終端タスクの削除に失敗しました: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("終端タスクの削除件数の取得に失敗しました: %w", err)
	}
	return deleted, nil
}

// List はタスクをID降順で最大limit件返す。
func (r *SQLiteTaskRepo) List(ctx context.Context, limit int) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, task_type, task_data, task_state, retry_count, last_error, created_at, updated_at
		 FROM tasks ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("タスク一覧の走査に失敗しました: %w", err)
	}
	return tasks, nil
}

func scanTask(rows *sql.Rows) (*model.Task, error) {
	t := &model.Task{}
	var kind, state string
	var lastError int
	if err := rows.Scan(
		&t.ID, &kind, &t.Payload, &state, &t.RetryCount, &lastError,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("タスク行の読み取りに失敗しました: %w", err)
	}
	t.Kind = model.TaskKind(kind)
	t.State = model.TaskState(state)
	t.LastError = model.ErrCode(lastError)
	return t, nil
}

// compile-time interface check
var _ TaskRepository = (*SQLiteTaskRepo)(nil)
