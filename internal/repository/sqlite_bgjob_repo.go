package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/vodman/internal/model"
)

// SQLiteBackgroundJobRepo はSQLiteを使用した定期ジョブリポジトリ。
type SQLiteBackgroundJobRepo struct {
	db *sql.DB
}

// NewSQLiteBackgroundJobRepo はSQLiteBackgroundJobRepoを生成する。
func NewSQLiteBackgroundJobRepo(db *sql.DB) *SQLiteBackgroundJobRepo {
	return &SQLiteBackgroundJobRepo{db: db}
}

// ListDue はnow時点で発火間隔を経過したジョブを返す。
// 発火判定はDB側ではなくGo側のDueで行い、テストで時刻を注入できるようにする。
func (r *SQLiteBackgroundJobRepo) ListDue(ctx context.Context, now time.Time) ([]*model.BackgroundJob, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, job_name, last_exec, interval_sec FROM background_jobs ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("定期ジョブ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var due []*model.BackgroundJob
	for rows.Next() {
		job := &model.BackgroundJob{}
		var intervalSec int64
		if err := rows.Scan(&job.ID, &job.Name, &job.LastExec, &intervalSec); err != nil {
			return nil, fmt.Errorf("定期ジョブ行の読み取りに失敗しました: %w", err)
		}
		job.Interval = time.Duration(intervalSec) * time.Second
		if job.Due(now) {
			due = append(due, job)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("定期ジョブ一覧の走査に失敗しました: %w", err)
	}
	return due, nil
}

// Touch はジョブの最終実行時刻をnowへ更新する。
func (r *SQLiteBackgroundJobRepo) Touch(ctx context.Context, id int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE background_jobs SET last_exec = ? WHERE id = ?`,
		now.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("定期ジョブの実行時刻更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ BackgroundJobRepository = (*SQLiteBackgroundJobRepo)(nil)
