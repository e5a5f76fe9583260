package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Open はSQLiteデータベース接続を開く。
// pathはデータベースファイルのパスを指定する（":memory:" はテスト用）。
// busy_timeoutを設定し、ディスパッチャとワーカーが共有するプールからの
// 同時アクセスでロック待ちが即エラーにならないようにする。
// 接続プールはディスパッチャと全ワーカーで共有され、各操作は単一の
// ステートメントまたは短いトランザクションの間だけ接続を占有する。
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return db, nil
}
