package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteSettingsRepo はSQLiteを使用した実行時設定リポジトリ。
type SQLiteSettingsRepo struct {
	db *sql.DB
}

// NewSQLiteSettingsRepo はSQLiteSettingsRepoを生成する。
func NewSQLiteSettingsRepo(db *sql.DB) *SQLiteSettingsRepo {
	return &SQLiteSettingsRepo{db: db}
}

// All は全設定をキーと値のマップで返す。
func (r *SQLiteSettingsRepo) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("設定一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("設定行の読み取りに失敗しました: %w", err)
		}
		settings[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("設定一覧の走査に失敗しました: %w", err)
	}
	return settings, nil
}

// Get は指定キーの設定値を返す。キーが存在しない場合はエラーを返す。
func (r *SQLiteSettingsRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("設定キーが存在しません: %s", key)
	}
	if err != nil {
		return "", fmt.Errorf("設定の取得に失敗しました: %w", err)
	}
	return value, nil
}

// Set は設定値を冪等にUPSERTする。
func (r *SQLiteSettingsRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("設定の保存に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SettingsRepository = (*SQLiteSettingsRepo)(nil)
